package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/client"
)

// CommandKind identifies what a line of chat input asks for.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandSend
	CommandNew
	CommandRateUp
	CommandRateDown
	CommandTrending
	CommandHelp
	CommandQuit
	CommandUnknown
)

// Command is a parsed line of chat input.
type Command struct {
	Kind    CommandKind
	Text    string // question for CommandSend, raw input for CommandUnknown
	Index   int    // 1-based trending position for CommandTrending
	Comment string // optional feedback comment
}

// HelpText lists the slash commands.
const HelpText = "/new nouvelle conversation · /up /down [commentaire] noter la réponse · /1../9 poser une question tendance · /quit"

// ParseCommand interprets one line of input. Lines not starting with "/" are questions.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CommandNone}
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CommandSend, Text: line}
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "new", "reset":
		return Command{Kind: CommandNew}
	case "up", "+":
		return Command{Kind: CommandRateUp, Comment: rest}
	case "down", "-":
		return Command{Kind: CommandRateDown, Comment: rest}
	case "help", "?":
		return Command{Kind: CommandHelp}
	case "quit", "exit", "q":
		return Command{Kind: CommandQuit}
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= 9 {
		return Command{Kind: CommandTrending, Index: n}
	}
	return Command{Kind: CommandUnknown, Text: line}
}

// DescribeError turns a controller or client error into a short user-facing message.
func DescribeError(err error) string {
	var serr *client.ServerError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, chat.ErrBusy):
		return "Une réponse est déjà en cours…"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "Le message est vide."
	case errors.Is(err, client.ErrNetwork):
		return "Impossible de joindre le serveur. Vérifiez votre connexion."
	case errors.As(err, &serr):
		return fmt.Sprintf("Le serveur a rencontré une erreur (HTTP %d).", serr.Status)
	case errors.Is(err, client.ErrParse):
		return "Réponse du serveur illisible."
	case errors.Is(err, client.ErrValidation):
		return "Cette réponse ne peut pas être notée."
	default:
		return err.Error()
	}
}
