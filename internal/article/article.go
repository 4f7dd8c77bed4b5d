// Package article parses helpdesk knowledge-base articles written in Markdown
// with a YAML frontmatter, and splits them into chat-sized message parts.
package article

import (
	"bufio"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	h1Regex      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

// Frontmatter is the metadata block of an article.
type Frontmatter struct {
	Application string   `yaml:"application"`
	Title       string   `yaml:"title"`
	Keywords    []string `yaml:"keywords"`
}

// Article represents a parsed knowledge-base article.
type Article struct {
	Frontmatter

	// Body is the Markdown after the frontmatter
	Body string

	// Structured content by heading
	Sections []Section
}

// Section represents a heading and its content.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string // The heading text
	Path    string // Full path like "# SAS > ## Connexion"
	Content string // Content under this heading
}

// Parse parses an article. A malformed frontmatter is an error.
func Parse(content string) (*Article, error) {
	a := &Article{}

	remaining := content
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx >= 0 {
			if err := yaml.Unmarshal([]byte(content[4:4+endIdx]), &a.Frontmatter); err != nil {
				return nil, fmt.Errorf("parse frontmatter: %w", err)
			}
			remaining = strings.TrimPrefix(content[4+endIdx+4:], "\n")
		}
	}

	a.Body = strings.TrimSpace(remaining)
	a.Application = strings.ToLower(strings.TrimSpace(a.Application))
	if a.Title == "" {
		if match := h1Regex.FindStringSubmatch(a.Body); len(match) > 1 {
			a.Title = strings.TrimSpace(match[1])
		}
	}
	a.Sections = parseSections(a.Body)
	return a, nil
}

// parseSections extracts sections from Markdown content.
func parseSections(content string) []Section {
	var sections []Section

	scanner := bufio.NewScanner(strings.NewReader(content))
	var currentPath []string
	var currentLevels []int

	var current *Section
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			sections = append(sections, *current)
			body.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		if match := headingRegex.FindStringSubmatch(line); len(match) > 0 {
			flush()

			level := len(match[1])
			heading := strings.TrimSpace(match[2])

			for len(currentLevels) > 0 && currentLevels[len(currentLevels)-1] >= level {
				currentPath = currentPath[:len(currentPath)-1]
				currentLevels = currentLevels[:len(currentLevels)-1]
			}
			currentPath = append(currentPath, match[1]+" "+heading)
			currentLevels = append(currentLevels, level)

			current = &Section{
				Level:   level,
				Heading: heading,
				Path:    strings.Join(currentPath, " > "),
			}
		} else if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	return sections
}

// Library indexes articles by application id.
type Library struct {
	byApp map[string]*Article
}

// LoadLibrary parses every .md file of dir in fsys. Articles without an application are skipped.
func LoadLibrary(fsys fs.FS, dir string) (*Library, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	lib := &Library{byApp: make(map[string]*Article)}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		a, err := Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if a.Application == "" {
			continue
		}
		if _, dup := lib.byApp[a.Application]; dup {
			return nil, fmt.Errorf("%s: second article for application %q", e.Name(), a.Application)
		}
		lib.byApp[a.Application] = a
	}
	return lib, nil
}

// ForApplication returns the article about an application. A nil library has none.
func (l *Library) ForApplication(id string) (*Article, bool) {
	if l == nil {
		return nil, false
	}
	a, ok := l.byApp[id]
	return a, ok
}

// Applications lists the application ids that have an article, sorted.
func (l *Library) Applications() []string {
	if l == nil {
		return nil
	}
	ids := make([]string, 0, len(l.byApp))
	for id := range l.byApp {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
