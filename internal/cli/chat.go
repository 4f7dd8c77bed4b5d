package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/models"
	"github.com/raphaelgruber/oskour/internal/ui"
)

var (
	chatVariant string
	chatPlain   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the helpdesk assistant",
	Long: `Open the chat widget.

The variant picks the audience: end users see the questions other users ask,
technicians see questions asked from the admin view, admins see both.
Without a terminal, or with --plain, a line-based prompt is used instead.

Commands inside the chat:
  /new                 start a new conversation (also Ctrl+N)
  /up, /down [text]    rate the last answer
  /1 .. /9             ask a trending question
  /quit                leave

Examples:
  oskour chat
  oskour chat --variant technician
  oskour chat --plain`,
	Annotations: map[string]string{fullScreen: ""},
	RunE:        runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatVariant, "variant", string(chat.VariantUser), "widget variant: user, technician or admin")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "use a line-based prompt instead of the full-screen view")
}

func runChat(cmd *cobra.Command, args []string) error {
	variant, ok := chat.ParseVariant(chatVariant)
	if !ok {
		return fmt.Errorf("unknown variant %q (want user, technician or admin)", chatVariant)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if chatPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlainChat(ctx, variant)
	}

	bridge := ui.NewBridge()
	ctrl := chat.New(api, sessions, chatConfig(variant),
		chat.WithLogger(logger),
		chat.WithNotifier(bridge.ChatNotifier()),
		chat.OnChange(bridge.ChatListener()),
	)
	go ctrl.Run(ctx)

	err := ui.RunChat(ctrl, bridge)
	cancel()
	ctrl.Wait()
	return err
}

// runPlainChat drives the controller from a liner prompt. Replies are printed as the
// controller commits them, so multi-part answers keep their pacing.
func runPlainChat(ctx context.Context, variant chat.Variant) error {
	md := ui.NewMarkdown(80)
	var ctrl *chat.Controller
	printer := &transcriptPrinter{
		out:      os.Stdout,
		render:   md.Render,
		messages: func() []models.ChatMessage { return ctrl.Messages() },
	}
	ctrl = chat.New(api, sessions, chatConfig(variant),
		chat.WithLogger(logger),
		chat.WithNotifier(func(err error) { fmt.Fprintln(os.Stderr, "Erreur:", ui.DescribeError(err)) }),
		chat.OnChange(printer.onChange),
	)
	go ctrl.Run(ctx)
	defer ctrl.Wait()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(cfg.StateDir, "chat_history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Printf("Oskour · %s\n%s\n\n", ctrl.Config().TrendingTitle, ui.HelpText)
	printTrending(os.Stdout, ctrl.Trending())

	for {
		input, err := line.Prompt("vous › ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		command := ui.ParseCommand(input)
		if command.Kind != ui.CommandNone {
			line.AppendHistory(input)
		}

		switch command.Kind {
		case ui.CommandNone:
		case ui.CommandSend:
			_ = ctrl.Send(ctx, command.Text) // failures reach the notifier
		case ui.CommandTrending:
			trending := ctrl.Trending()
			if command.Index > len(trending) {
				fmt.Printf("Pas de question tendance n°%d.\n", command.Index)
				continue
			}
			fmt.Println("vous › " + trending[command.Index-1].Question)
			_ = ctrl.Send(ctx, trending[command.Index-1].Question)
		case ui.CommandNew:
			if err := ctrl.NewConversation(ctx); err == nil {
				fmt.Println("Nouvelle conversation.")
			}
		case ui.CommandRateUp, ui.CommandRateDown:
			rateLast(ctx, ctrl, command)
		case ui.CommandHelp:
			fmt.Println(ui.HelpText)
			printTrending(os.Stdout, ctrl.Trending())
		case ui.CommandQuit:
			return nil
		default:
			fmt.Printf("Commande inconnue : %s\n", command.Text)
		}
	}
}

func rateLast(ctx context.Context, ctrl *chat.Controller, command ui.Command) {
	idx, ok := ctrl.RateableIndex()
	if !ok {
		fmt.Println("Aucune réponse à noter.")
		return
	}
	rating := models.RatingPositive
	if command.Kind == ui.CommandRateDown {
		rating = models.RatingNegative
	}
	var comment *string
	if command.Comment != "" {
		comment = &command.Comment
	}
	if err := ctrl.SubmitFeedback(ctx, idx, rating, comment); err == nil {
		fmt.Println("Merci pour votre retour !")
	}
}

// transcriptPrinter writes assistant messages once each, in order, as they are committed.
type transcriptPrinter struct {
	out      io.Writer
	render   func(string) string
	messages func() []models.ChatMessage

	mu      sync.Mutex
	printed int
}

func (p *transcriptPrinter) onChange(e chat.Event) {
	if e != chat.EventMessages {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := p.messages()
	if len(msgs) < p.printed {
		// conversation was cleared
		p.printed = 0
	}
	for _, msg := range msgs[p.printed:] {
		if msg.IsLoading {
			// its slot is reused by the next committed part
			break
		}
		p.printed++
		if msg.Role != models.RoleAssistant {
			continue
		}
		fmt.Fprintf(p.out, "oskour › %s\n", p.render(msg.Content))
		if msg.IsLastInSequence && msg.MessageID != nil {
			fmt.Fprintln(p.out, "         (/up ou /down pour noter cette réponse)")
		}
	}
}

func printTrending(w io.Writer, list []models.TrendingQuestion) {
	if len(list) == 0 {
		return
	}
	for i, q := range list {
		if i == 9 {
			break
		}
		fmt.Fprintf(w, "  /%d %s\n", i+1, q.Question)
	}
	fmt.Fprintln(w)
}
