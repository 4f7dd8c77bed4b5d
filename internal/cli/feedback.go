package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/models"
)

var (
	feedbackUp      bool
	feedbackDown    bool
	feedbackComment string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <message-id>",
	Short: "Rate an answer",
	Long: `Rate an assistant answer by its message id.

Examples:
  oskour feedback 12 --up
  oskour feedback 12 --down --comment "La procédure ne marche pas"`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().BoolVar(&feedbackUp, "up", false, "the answer helped")
	feedbackCmd.Flags().BoolVar(&feedbackDown, "down", false, "the answer did not help")
	feedbackCmd.Flags().StringVarP(&feedbackComment, "comment", "c", "", "optional comment")
	feedbackCmd.MarkFlagsMutuallyExclusive("up", "down")
	feedbackCmd.MarkFlagsOneRequired("up", "down")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	fb, err := buildFeedback(args[0], feedbackUp, feedbackComment)
	if err != nil {
		return err
	}

	ack, err := api.SubmitFeedback(context.Background(), fb)
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}

	msg := "Merci pour votre retour !"
	if ack.Message != "" {
		msg = ack.Message
	}
	fmt.Println(msg)
	return nil
}

// buildFeedback turns command arguments into a feedback record.
func buildFeedback(rawID string, up bool, comment string) (models.Feedback, error) {
	id, err := strconv.Atoi(rawID)
	if err != nil || id < 0 {
		return models.Feedback{}, fmt.Errorf("invalid message id %q", rawID)
	}

	fb := models.Feedback{MessageID: id, Rating: models.RatingNegative}
	if up {
		fb.Rating = models.RatingPositive
	}
	if comment != "" {
		fb.Comment = &comment
	}
	return fb, nil
}
