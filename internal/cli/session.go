package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/chat"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show or reset the conversation id",
	Long: `Manage the conversation id shared by every oskour command.

Subcommands:
  show   Print the current conversation id (default)
  reset  Start a new conversation and clear the previous one on the server

Examples:
  oskour session
  oskour session reset`,
	RunE: runSessionShow,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current conversation id",
	RunE:  runSessionShow,
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new conversation",
	RunE:  runSessionReset,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	fmt.Println(sessions.GetOrCreate(context.Background()))
	return nil
}

func runSessionReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ctrl := chat.New(api, sessions, chatConfig(chat.VariantUser), chat.WithLogger(logger))
	previous := sessions.GetOrCreate(ctx)
	if err := ctrl.NewConversation(ctx); err != nil {
		// the id is rotated even when the server could not be told
		fmt.Printf("New conversation: %s\n", sessions.Current())
		return fmt.Errorf("clear history of %s: %w", previous, err)
	}

	fmt.Printf("New conversation: %s\n", sessions.Current())
	if verbose {
		fmt.Printf("Cleared: %s\n", previous)
	}
	return nil
}
