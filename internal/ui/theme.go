// Package ui contains the terminal views: the chat widget, the incident ticker and the dashboard.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/oskour/internal/chat"
)

// Theme holds the color scheme of a view.
type Theme struct {
	Accent  lipgloss.Color
	User    lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme is the end-user scheme.
var defaultTheme = Theme{
	Accent:  lipgloss.Color("#5FAFD7"), // light blue
	User:    lipgloss.Color("#D7D7D7"), // light gray
	Success: lipgloss.Color("#00D787"), // green
	Warning: lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// ThemeFor returns the color scheme of a chat variant.
func ThemeFor(v chat.Variant) Theme {
	t := defaultTheme
	switch v {
	case chat.VariantTechnician:
		t.Accent = lipgloss.Color("#00AFAF") // teal
	case chat.VariantAdmin:
		t.Accent = lipgloss.Color("#AF87FF") // purple
	}
	return t
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}
