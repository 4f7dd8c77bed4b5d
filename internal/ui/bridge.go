package ui

import (
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/models"
)

// bridgeBuffer bounds queued notifications. Overflow is dropped; every render reads current state.
const bridgeBuffer = 64

// chatEventMsg reports a controller state change.
type chatEventMsg chat.Event

// chatErrorMsg carries a user-visible error from the controller.
type chatErrorMsg struct{ err error }

// incidentsMsg carries a freshly loaded incident collection.
type incidentsMsg []models.IncidentRecord

// Bridge turns callbacks fired on other goroutines into bubbletea messages.
type Bridge struct {
	ch chan tea.Msg
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg, bridgeBuffer)}
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
	}
}

// ChatListener forwards controller events.
func (b *Bridge) ChatListener() func(chat.Event) {
	return func(e chat.Event) { b.push(chatEventMsg(e)) }
}

// ChatNotifier forwards controller errors.
func (b *Bridge) ChatNotifier() chat.Notifier {
	return func(err error) { b.push(chatErrorMsg{err: err}) }
}

// IncidentListener forwards incident collection changes.
func (b *Bridge) IncidentListener() func([]models.IncidentRecord) {
	return func(records []models.IncidentRecord) { b.push(incidentsMsg(records)) }
}

// wait returns a command delivering the next bridged message.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		return <-b.ch
	}
}
