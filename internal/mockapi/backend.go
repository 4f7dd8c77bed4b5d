// Package mockapi is an in-memory helpdesk backend implementing the oskour HTTP contract.
// It answers by echoing the question, like the development backend it stands in for.
// Questions naming an application that has a knowledge-base article also get the
// article, split into message parts.
package mockapi

import (
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/oskour/internal/article"
	"github.com/raphaelgruber/oskour/internal/models"
)

//go:embed articles/*.md
var articleFS embed.FS

// incidentThreshold is the number of reports after which an application is shown in incident.
const incidentThreshold = 3

// activeSessionWindow bounds how long a session counts as current after its last question.
const activeSessionWindow = 30 * time.Minute

type question struct {
	text        string
	source      models.SourceScope
	application string // application id, empty when none detected
	session     string
	at          time.Time
}

type sessionState struct {
	history  int
	lastSeen time.Time
}

// Backend holds all state of the reference backend. It is safe for concurrent use.
type Backend struct {
	mu        sync.Mutex
	sessions  map[string]*sessionState
	questions []question
	replies   map[int]string // message id -> session id
	feedback  []models.Feedback
	nextID    int
	failures  map[string]int
	articles  *article.Library

	now    func() time.Time
	logger *slog.Logger
}

// New creates an empty backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	articles, err := article.LoadLibrary(articleFS, "articles")
	if err != nil {
		logger.Error("knowledge base not loaded, answering by echo only", "error", err)
	}
	return &Backend{
		sessions: make(map[string]*sessionState),
		replies:  make(map[int]string),
		failures: make(map[string]int),
		articles: articles,
		now:      time.Now,
		logger:   logger,
	}
}

// Fail makes every request to path answer with status until Recover is called.
func (b *Backend) Fail(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = status
}

// Recover clears all injected failures.
func (b *Backend) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]int)
}

func (b *Backend) failure(path string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.failures[path]
	return status, ok
}

// Feedback returns a copy of all feedback received.
func (b *Backend) Feedback() []models.Feedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Feedback(nil), b.feedback...)
}

// HistoryLen returns the number of messages the backend keeps for a session.
func (b *Backend) HistoryLen(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[sessionID]; ok {
		return s.history
	}
	return 0
}

type answer struct {
	text  string
	parts []string
	id    int
	files []string
}

// ask records a question and builds the reply.
func (b *Backend) ask(sessionID, text string, source models.SourceScope) answer {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	s, ok := b.sessions[sessionID]
	if !ok {
		s = &sessionState{}
		b.sessions[sessionID] = s
	}
	s.history++ // user message
	s.lastSeen = now
	n := s.history

	app, hasApp := detectApplication(text)
	b.questions = append(b.questions, question{
		text:        strings.TrimSpace(text),
		source:      source,
		application: app.ID,
		session:     sessionID,
		at:          now,
	})

	echo := fmt.Sprintf("Voici une réponse à votre question: '%s'. C'est votre message #%d dans cette session.", text, n)
	ans := answer{text: echo, files: []string{fmt.Sprintf("mock_file_%d.txt", n)}}
	if hasApp {
		if a, ok := b.articles.ForApplication(app.ID); ok {
			ans.parts = append([]string{echo}, article.Split(a, article.DefaultSplitConfig())...)
			ans.files = append(ans.files, "articles/"+app.ID+".md")
		} else {
			ans.parts = []string{
				echo,
				fmt.Sprintf("Application concernée : **%s**. Si le problème persiste, consultez le bandeau des incidents ou contactez le support.", app.Name),
			}
		}
		ans.text = strings.Join(ans.parts, "\n\n")
	}

	s.history++ // assistant message
	b.nextID++
	ans.id = b.nextID
	b.replies[ans.id] = sessionID
	return ans
}

// clear forgets a session's history. It reports false for unknown sessions.
func (b *Backend) clear(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return false
	}
	s.history = 0
	return true
}

// addFeedback stores feedback for a known reply.
func (b *Backend) addFeedback(fb models.Feedback) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.replies[fb.MessageID]; !ok {
		return false
	}
	b.feedback = append(b.feedback, fb)
	return true
}

// trending counts today's questions in scope, most frequent first.
// Ties keep first-asked order.
func (b *Backend) trending(limit int, source models.SourceScope) []models.TrendingQuestion {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	type entry struct {
		models.TrendingQuestion
		first int
	}
	byText := make(map[string]*entry)
	for i, q := range b.questions {
		if q.at.Before(startOfDay) || q.text == "" {
			continue
		}
		if source != models.SourceAll && q.source != source {
			continue
		}
		key := strings.ToLower(q.text)
		e, ok := byText[key]
		if !ok {
			e = &entry{first: i}
			e.Question = q.text
			e.Source = source
			if q.application != "" {
				name := applicationName(q.application)
				e.Application = &name
			}
			byText[key] = e
		}
		e.Count++
	}

	entries := make([]*entry, 0, len(byText))
	for _, e := range byText {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].first < entries[j].first
	})

	out := make([]models.TrendingQuestion, 0, limit)
	for _, e := range entries {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e.TrendingQuestion)
	}
	return out
}

func (b *Backend) chatbotStats() models.ChatbotStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	var stats models.ChatbotStats
	for _, q := range b.questions {
		stats.TotalMessages++
		if !q.at.Before(startOfDay) {
			stats.DailyMessages++
		}
		if q.at.After(weekAgo) {
			stats.WeeklyMessages++
		}
	}
	for _, s := range b.sessions {
		if now.Sub(s.lastSeen) <= activeSessionWindow {
			stats.CurrentSessions++
		}
	}
	return stats
}

func (b *Backend) applicationStats() []models.ApplicationStat {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int)
	users := make(map[string]map[string]bool)
	for _, q := range b.questions {
		if q.application == "" {
			continue
		}
		counts[q.application]++
		if users[q.application] == nil {
			users[q.application] = make(map[string]bool)
		}
		users[q.application][q.session] = true
	}

	out := make([]models.ApplicationStat, 0, len(models.DefaultApplications))
	for _, app := range models.DefaultApplications {
		stat := models.ApplicationStat{
			ID:            app.ID,
			Name:          app.Name,
			IncidentCount: counts[app.ID],
			UserCount:     len(users[app.ID]),
			Status:        models.StatusOK,
		}
		if stat.IncidentCount >= incidentThreshold {
			stat.Status = models.StatusIncident
		}
		out = append(out, stat)
	}
	return out
}

// hourlyIncidents buckets application-related questions of the last 24 hours by hour.
func (b *Backend) hourlyIncidents() []models.HourlyIncidents {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().Truncate(time.Hour)
	out := make([]models.HourlyIncidents, 24)
	for i := range out {
		h := now.Add(time.Duration(i-23) * time.Hour)
		out[i].Hour = h.Format("15:04")
	}
	for _, q := range b.questions {
		if q.application == "" {
			continue
		}
		idx := 23 - int(now.Sub(q.at.Truncate(time.Hour))/time.Hour)
		if idx >= 0 && idx < 24 {
			out[idx].Incidents++
		}
	}
	return out
}

// detectApplication finds the first known application named in text.
// Longer names win so "MyGesper" is not reported as "Gesper".
func detectApplication(text string) (models.Application, bool) {
	lower := strings.ToLower(text)
	var best models.Application
	for _, app := range models.DefaultApplications {
		if strings.Contains(lower, strings.ToLower(app.Name)) && len(app.Name) > len(best.Name) {
			best = app
		}
	}
	return best, best.ID != ""
}

func applicationName(id string) string {
	for _, app := range models.DefaultApplications {
		if app.ID == id {
			return app.Name
		}
	}
	return id
}
