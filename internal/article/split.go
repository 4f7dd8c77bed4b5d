package article

import (
	"strings"
	"unicode"
)

// SplitConfig defines message part sizes, in bytes.
type SplitConfig struct {
	// Threshold: only split if the body exceeds this length
	Threshold int
	// TargetSize: ideal part size when splitting by sentences
	TargetSize int
	// MinSize: smaller sections merge into the previous part
	MinSize int
	// MaxSize: larger sections are split at paragraphs, then sentences
	MaxSize int
}

// DefaultSplitConfig returns sizes that read well in a chat bubble.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		Threshold:  400,
		TargetSize: 300,
		MinSize:    80,
		MaxSize:    450,
	}
}

// Split cuts an article into message parts, in reading order.
// Section boundaries are preferred, then paragraphs, then sentences.
// Each section part starts with its heading in bold.
func Split(a *Article, cfg SplitConfig) []string {
	body := strings.TrimSpace(a.Body)
	if body == "" {
		return nil
	}
	if len(body) <= cfg.Threshold {
		return []string{body}
	}

	var sections []Section
	for _, s := range a.Sections {
		if s.Content != "" {
			sections = append(sections, s)
		}
	}
	if len(sections) == 0 {
		return splitParagraphs(body, cfg)
	}

	var parts []string
	for _, s := range sections {
		text := "**" + s.Heading + "**\n\n" + s.Content
		if len(text) <= cfg.MaxSize {
			if len(text) < cfg.MinSize && len(parts) > 0 {
				parts[len(parts)-1] += "\n\n" + text
			} else {
				parts = append(parts, text)
			}
			continue
		}

		sub := splitParagraphs(s.Content, cfg)
		if len(sub) > 0 {
			sub[0] = "**" + s.Heading + "**\n\n" + sub[0]
		}
		parts = append(parts, sub...)
	}
	return parts
}

// splitParagraphs groups paragraphs up to MaxSize.
func splitParagraphs(content string, cfg SplitConfig) []string {
	var parts []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len()+len(para) > cfg.MaxSize {
			flush()
		}

		if len(para) > cfg.MaxSize {
			parts = append(parts, splitSentences(para, cfg)...)
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return parts
}

// splitSentences groups sentences up to TargetSize.
func splitSentences(text string, cfg SplitConfig) []string {
	var parts []string
	var current strings.Builder

	for _, sentence := range sentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if current.Len()+len(sentence) > cfg.TargetSize && current.Len() > 0 {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// sentences splits text after '.', '!' or '?' followed by a space.
// A single capital before the period ("M.", "J.") is taken as an abbreviation.
func sentences(text string) []string {
	var out []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && i > 0 && unicode.IsUpper(runes[i-1]) && (i == 1 || unicode.IsSpace(runes[i-2])) {
			continue
		}
		out = append(out, current.String())
		current.Reset()
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
