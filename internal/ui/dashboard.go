package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/incident"
	"github.com/raphaelgruber/oskour/internal/models"
)

// StatsSource provides the aggregate statistics. Implementations degrade to empty values on error.
type StatsSource interface {
	ChatbotStats(ctx context.Context) models.ChatbotStats
	ApplicationStats(ctx context.Context) []models.ApplicationStat
	HourlyIncidents(ctx context.Context) []models.HourlyIncidents
}

// Thresholds are the counts from which an application is highlighted.
type Thresholds struct {
	Warn int
	Crit int
}

// Severity classifies a count against thresholds.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityCritical
)

// Level compares count against the thresholds. A non-positive threshold is disabled.
func Level(count int, t Thresholds) Severity {
	switch {
	case t.Crit > 0 && count >= t.Crit:
		return SeverityCritical
	case t.Warn > 0 && count >= t.Warn:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders values as one block character each, scaled to the maximum.
func Sparkline(values []int) string {
	peak := 0
	for _, v := range values {
		peak = max(peak, v)
	}
	var b strings.Builder
	for _, v := range values {
		if peak == 0 || v <= 0 {
			b.WriteRune(sparkBlocks[0])
			continue
		}
		b.WriteRune(sparkBlocks[v*(len(sparkBlocks)-1)/peak])
	}
	return b.String()
}

// statsMsg carries one polling round.
type statsMsg struct {
	chatbot models.ChatbotStats
	apps    []models.ApplicationStat
	hourly  []models.HourlyIncidents
	at      time.Time
}

type pollMsg struct{}

// DashboardModel polls the statistics endpoints and shows them next to the active incidents.
type DashboardModel struct {
	source     StatsSource
	incidents  *incident.Store
	bridge     *Bridge
	thresholds Thresholds
	interval   time.Duration
	theme      Theme
	bar        progress.Model

	stats   statsMsg
	loaded  bool
	records []models.IncidentRecord
}

// NewDashboardModel creates a dashboard. incidents may be nil.
func NewDashboardModel(ctx context.Context, source StatsSource, incidents *incident.Store, bridge *Bridge, t Thresholds, interval time.Duration) DashboardModel {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := DashboardModel{
		source:     source,
		incidents:  incidents,
		bridge:     bridge,
		thresholds: t,
		interval:   interval,
		theme:      ThemeFor(chat.VariantAdmin),
		bar: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(30),
		),
	}
	if incidents != nil {
		m.records = incidents.Load(ctx)
	}
	return m
}

// fetch runs one polling round. The three endpoints are independent.
func (m DashboardModel) fetch() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx := context.Background()
		return statsMsg{
			chatbot: source.ChatbotStats(ctx),
			apps:    source.ApplicationStats(ctx),
			hourly:  source.HourlyIncidents(ctx),
			at:      time.Now(),
		}
	}
}

func (m DashboardModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

// Init starts polling.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.bridge.wait())
}

// Update handles messages and returns the updated model.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statsMsg:
		m.stats = msg
		m.loaded = true
		return m, m.schedule()
	case pollMsg:
		return m, m.fetch()
	case incidentsMsg:
		m.records = msg
		return m, m.bridge.wait()
	}
	return m, nil
}

// View renders the dashboard.
func (m DashboardModel) View() tea.View {
	var b strings.Builder
	t := m.theme

	b.WriteString(t.titleStyle().Render("Oskour · cockpit"))
	b.WriteString("\n\n")

	if !m.loaded {
		b.WriteString(t.hintStyle().Render("Chargement des statistiques…"))
		b.WriteString("\n")
		return tea.NewView(b.String())
	}

	s := m.stats.chatbot
	fmt.Fprintf(&b, "Messages  jour %d · semaine %d · total %d · sessions actives %d\n\n",
		s.DailyMessages, s.WeeklyMessages, s.TotalMessages, s.CurrentSessions)

	b.WriteString(t.titleStyle().Render("Applications"))
	b.WriteString("\n")
	if len(m.stats.apps) == 0 {
		b.WriteString(t.hintStyle().Render("  Aucun signalement."))
		b.WriteString("\n")
	}
	for _, app := range m.stats.apps {
		b.WriteString(m.renderApplication(app))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(t.titleStyle().Render("Incidents par heure"))
	b.WriteString("\n")
	values := make([]int, len(m.stats.hourly))
	total := 0
	for i, h := range m.stats.hourly {
		values[i] = h.Incidents
		total += h.Incidents
	}
	fmt.Fprintf(&b, "  %s  %d sur 24h\n\n", Sparkline(values), total)

	b.WriteString(t.titleStyle().Render("Incidents déclarés"))
	b.WriteString("\n  ")
	if active := incident.Active(m.records); len(active) == 0 {
		b.WriteString(t.successStyle().Render(NominalText))
	} else {
		names := make([]string, len(active))
		for i, rec := range active {
			app := models.LookupApplication(rec)
			names[i] = app.Icon + " " + app.Name
		}
		b.WriteString(t.errorStyle().Render(strings.Join(names, ", ")))
	}
	b.WriteString("\n\n")

	b.WriteString(t.hintStyle().Render(fmt.Sprintf("Mis à jour %s · q quitter", m.stats.at.Format("15:04:05"))))
	b.WriteString("\n")
	return tea.NewView(b.String())
}

func (m DashboardModel) renderApplication(app models.ApplicationStat) string {
	name := fmt.Sprintf("  %-16s", app.Name)
	counts := fmt.Sprintf(" %3d incidents · %3d utilisateurs", app.IncidentCount, app.UserCount)

	scale := m.thresholds.Crit
	if scale <= 0 {
		scale = max(app.IncidentCount, 1)
	}
	pct := min(float64(app.IncidentCount)/float64(scale), 1)
	bar := m.bar.ViewAs(pct)

	switch Level(app.IncidentCount, m.thresholds) {
	case SeverityCritical:
		counts = m.theme.errorStyle().Render(counts)
	case SeverityWarning:
		counts = m.theme.warningStyle().Render(counts)
	}
	return name + bar + counts
}

// RunDashboard runs the dashboard until the user quits.
func RunDashboard(ctx context.Context, source StatsSource, incidents *incident.Store, t Thresholds, interval time.Duration) error {
	bridge := NewBridge()
	if incidents != nil {
		unsubscribe := incidents.Subscribe(bridge.IncidentListener())
		defer unsubscribe()
	}

	p := tea.NewProgram(NewDashboardModel(ctx, source, incidents, bridge, t, interval))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard UI error: %w", err)
	}
	return nil
}
