package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/client"
	"github.com/raphaelgruber/oskour/internal/models"
	"github.com/raphaelgruber/oskour/internal/ui"
)

var (
	askSource string
	askRaw    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Send one question in the current conversation and print the answer.

The conversation id is shared with "oskour chat", so follow-up questions keep
their context. Rate the answer with "oskour feedback".

Examples:
  oskour ask "Webex ne démarre plus"
  oskour ask "Comment réinitialiser mon mot de passe SAS ?" --raw`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSource, "source", "", "question source: user or admin (default from config)")
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	source := cfg.Source
	if askSource != "" {
		source = askSource
	}
	scope, ok := models.ParseSourceScope(source)
	if !ok || scope == models.SourceAll {
		return fmt.Errorf("invalid source %q (want user or admin)", source)
	}

	resp, err := api.SendMessage(ctx, client.ChatRequest{
		SessionID:     sessions.GetOrCreate(ctx),
		Question:      args[0],
		KnowledgeBase: cfg.KnowledgeBase,
		Model:         cfg.Model,
		Source:        scope,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	md := ui.NewMarkdown(80)
	for _, part := range resp.Parts() {
		if askRaw {
			fmt.Println(part)
		} else {
			fmt.Println(md.Render(part))
		}
		fmt.Println()
	}

	if resp.MessageID != nil {
		fmt.Printf("Message #%d · oskour feedback %d --up|--down\n", *resp.MessageID, *resp.MessageID)
	}
	if verbose && len(resp.FilesUsed) > 0 {
		fmt.Printf("Sources: %v\n", resp.FilesUsed)
	}
	return nil
}
