package ui

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/models"
)

const assistantName = "Oskour"

// reservedLines is the screen space used by everything but the transcript.
const reservedLines = 12

// actionDoneMsg reports the end of a controller call started from the view.
type actionDoneMsg struct {
	err error
	ok  string
}

// ChatModel is the bubbletea model of the chat widget. Every variant uses it; only the
// controller configuration differs.
type ChatModel struct {
	ctrl   *chat.Controller
	bridge *Bridge
	input  textinput.Model
	theme  Theme
	md     *Markdown

	width, height int
	status        string
	statusIsError bool
}

// NewChatModel creates the widget for ctrl. The controller must have been built with
// bridge.ChatListener() and bridge.ChatNotifier().
func NewChatModel(ctrl *chat.Controller, bridge *Bridge) ChatModel {
	in := textinput.New()
	in.Placeholder = "Posez votre question… (/help)"
	in.CharLimit = 2000
	in.SetWidth(76)
	in.Focus()

	return ChatModel{
		ctrl:   ctrl,
		bridge: bridge,
		input:  in,
		theme:  ThemeFor(ctrl.Config().Variant),
		md:     NewMarkdown(76),
		width:  80,
		height: 24,
	}
}

// Init starts listening to the controller.
func (m ChatModel) Init() tea.Cmd {
	return m.bridge.wait()
}

// Update handles messages and returns the updated model.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(msg.Width-4, 10))
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+n":
			return m.execute(Command{Kind: CommandNew})
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			return m.execute(ParseCommand(line))
		}

	case chatEventMsg:
		if chat.Event(msg) == chat.EventFocusInput {
			return m, tea.Batch(m.input.Focus(), m.bridge.wait())
		}
		return m, m.bridge.wait()

	case chatErrorMsg:
		m.setError(msg.err)
		return m, m.bridge.wait()

	case actionDoneMsg:
		switch {
		case msg.err != nil:
			m.setError(msg.err)
		case msg.ok != "":
			m.setStatus(msg.ok)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ChatModel) setStatus(s string) {
	m.status, m.statusIsError = s, false
}

func (m *ChatModel) setError(err error) {
	m.status, m.statusIsError = DescribeError(err), true
}

// execute runs a parsed command. Controller calls run as commands, off the update loop.
func (m ChatModel) execute(cmd Command) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl
	switch cmd.Kind {
	case CommandNone:
		return m, nil

	case CommandSend:
		m.setStatus("")
		return m, func() tea.Msg {
			return actionDoneMsg{err: ctrl.Send(context.Background(), cmd.Text)}
		}

	case CommandTrending:
		trending := ctrl.Trending()
		if cmd.Index > len(trending) {
			m.setStatus(fmt.Sprintf("Pas de question tendance n°%d.", cmd.Index))
			return m, nil
		}
		return m.execute(Command{Kind: CommandSend, Text: trending[cmd.Index-1].Question})

	case CommandNew:
		return m, func() tea.Msg {
			err := ctrl.NewConversation(context.Background())
			return actionDoneMsg{err: err, ok: "Nouvelle conversation."}
		}

	case CommandRateUp, CommandRateDown:
		idx, ok := ctrl.RateableIndex()
		if !ok {
			m.setStatus("Aucune réponse à noter.")
			return m, nil
		}
		rating := models.RatingPositive
		if cmd.Kind == CommandRateDown {
			rating = models.RatingNegative
		}
		var comment *string
		if cmd.Comment != "" {
			comment = &cmd.Comment
		}
		return m, func() tea.Msg {
			err := ctrl.SubmitFeedback(context.Background(), idx, rating, comment)
			return actionDoneMsg{err: err, ok: "Merci pour votre retour !"}
		}

	case CommandHelp:
		m.setStatus(HelpText)
		return m, nil

	case CommandQuit:
		return m, tea.Quit

	default:
		m.setStatus(fmt.Sprintf("Commande inconnue : %s", cmd.Text))
		return m, nil
	}
}

// View renders the widget.
func (m ChatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m ChatModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.theme.titleStyle().Render(assistantName+" · assistance"))
	b.WriteString("\n\n")

	transcript := RenderTranscript(m.ctrl.Messages(), m.theme, m.md.Render)
	b.WriteString(lastLines(transcript, max(m.height-reservedLines, 3)))
	b.WriteString("\n\n")

	b.WriteString(RenderTrending(m.ctrl.Config().TrendingTitle, m.ctrl.Trending(), m.theme))
	b.WriteString("\n")

	if m.status != "" {
		if m.statusIsError {
			b.WriteString(m.theme.errorStyle().Render(m.status))
		} else {
			b.WriteString(m.theme.hintStyle().Render(m.status))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("Entrée envoyer · Ctrl+N nouvelle conversation · Échap quitter"))
	b.WriteString("\n")
	return b.String()
}

// RenderTranscript formats a history. render formats assistant content (markdown).
func RenderTranscript(msgs []models.ChatMessage, theme Theme, render func(string) string) string {
	if len(msgs) == 0 {
		return theme.hintStyle().Render("Bonjour ! Je suis " + assistantName + ", comment puis-je vous aider ?")
	}
	if render == nil {
		render = func(s string) string { return s }
	}

	var blocks []string
	for _, msg := range msgs {
		switch {
		case msg.Role == models.RoleUser:
			blocks = append(blocks, theme.userStyle().Render("Vous › ")+msg.Content)
		case msg.IsLoading:
			blocks = append(blocks, theme.assistantStyle().Render(assistantName+" › ")+theme.hintStyle().Render("écrit…"))
		default:
			block := theme.assistantStyle().Render(assistantName+" › ") + render(msg.Content)
			if msg.IsLastInSequence && msg.MessageID != nil {
				block += "\n" + theme.hintStyle().Render("  Cette réponse vous a-t-elle aidé ? /up · /down")
			}
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n")
}

// RenderTrending formats the numbered trending list.
func RenderTrending(title string, list []models.TrendingQuestion, theme Theme) string {
	var b strings.Builder
	b.WriteString(theme.titleStyle().Render(title))
	b.WriteString("\n")
	if len(list) == 0 {
		b.WriteString(theme.hintStyle().Render("  Aucune question tendance pour le moment."))
		b.WriteString("\n")
		return b.String()
	}
	for i, q := range list {
		if i == 9 {
			break
		}
		line := fmt.Sprintf("  /%d %s", i+1, q.Question)
		if q.Application != nil {
			line += theme.hintStyle().Render(" [" + *q.Application + "]")
		}
		if q.Count > 1 {
			line += theme.hintStyle().Render(fmt.Sprintf(" ×%d", q.Count))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// lastLines keeps the last n lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// RunChat runs the chat widget until the user quits.
func RunChat(ctrl *chat.Controller, bridge *Bridge) error {
	p := tea.NewProgram(NewChatModel(ctrl, bridge))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
