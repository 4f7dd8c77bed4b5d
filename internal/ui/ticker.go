package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/mattn/go-runewidth"

	"github.com/raphaelgruber/oskour/internal/incident"
	"github.com/raphaelgruber/oskour/internal/models"
)

// NominalText is shown when no application is in incident.
const NominalText = "Tous les services fonctionnent normalement"

const (
	tickerInterval = 150 * time.Millisecond
	tickerGap      = "   •   "
)

type scrollMsg time.Time

// TickerModel scrolls the applications currently in incident.
type TickerModel struct {
	store   *incident.Store
	bridge  *Bridge
	theme   Theme
	records []models.IncidentRecord
	offset  int
	width   int
}

// NewTickerModel creates a ticker over store. The caller subscribes
// bridge.IncidentListener() to the store so that changes made elsewhere are shown.
func NewTickerModel(ctx context.Context, store *incident.Store, bridge *Bridge) TickerModel {
	return TickerModel{
		store:   store,
		bridge:  bridge,
		theme:   defaultTheme,
		records: store.Load(ctx),
		width:   80,
	}
}

func scroll() tea.Cmd {
	return tea.Tick(tickerInterval, func(t time.Time) tea.Msg { return scrollMsg(t) })
}

// Init starts scrolling and listening for incident changes.
func (m TickerModel) Init() tea.Cmd {
	return tea.Batch(scroll(), m.bridge.wait())
}

// Update handles messages and returns the updated model.
func (m TickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyPressMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case scrollMsg:
		m.offset++
		return m, scroll()
	case incidentsMsg:
		m.records = msg
		m.offset = 0
		return m, m.bridge.wait()
	}
	return m, nil
}

// View renders the ticker line.
func (m TickerModel) View() tea.View {
	active := incident.Active(m.records)

	var line string
	if len(active) == 0 {
		line = m.theme.successStyle().Render("✓ " + NominalText)
	} else {
		label := m.theme.errorStyle().Render(fmt.Sprintf("⚠ %d incident(s) ", len(active)))
		width := max(m.width-runewidth.StringWidth(fmt.Sprintf("⚠ %d incident(s) ", len(active))), 10)
		line = label + m.theme.warningStyle().Render(Marquee(ActiveText(m.records), width, m.offset))
	}
	return tea.NewView(line + "\n" + m.theme.hintStyle().Render("q pour quitter") + "\n")
}

// ActiveText joins the active incidents into one ticker string, or returns NominalText.
func ActiveText(records []models.IncidentRecord) string {
	active := incident.Active(records)
	if len(active) == 0 {
		return NominalText
	}
	parts := make([]string, len(active))
	for i, rec := range active {
		app := models.LookupApplication(rec)
		parts[i] = fmt.Sprintf("%s %s : incident en cours", app.Icon, app.Name)
	}
	return strings.Join(parts, tickerGap)
}

// Marquee returns a window of exactly width display cells over text scrolled by offset.
// Text that fits is padded and does not scroll.
func Marquee(text string, width, offset int) string {
	if width <= 0 {
		return ""
	}
	textWidth := runewidth.StringWidth(text)
	if textWidth <= width {
		return runewidth.FillRight(text, width)
	}

	loop := []rune(text + tickerGap)
	start := offset % len(loop)
	if start < 0 {
		start += len(loop)
	}

	var b strings.Builder
	cells := 0
	for i := start; ; i = (i + 1) % len(loop) {
		r := loop[i]
		w := runewidth.RuneWidth(r)
		if cells+w > width {
			break
		}
		b.WriteRune(r)
		cells += w
	}
	return runewidth.FillRight(b.String(), width)
}

// RunTicker runs the ticker until the user quits.
func RunTicker(ctx context.Context, store *incident.Store) error {
	bridge := NewBridge()
	unsubscribe := store.Subscribe(bridge.IncidentListener())
	defer unsubscribe()

	p := tea.NewProgram(NewTickerModel(ctx, store, bridge))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ticker UI error: %w", err)
	}
	return nil
}
