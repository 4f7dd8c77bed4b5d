package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/models"
)

var (
	trendingLimit  int
	trendingSource string
	trendingForce  bool
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List today's trending questions",
	Long: `List the most asked questions of the day.

Examples:
  oskour trending
  oskour trending --source all --limit 10
  oskour trending --force`,
	RunE: runTrending,
}

func init() {
	trendingCmd.Flags().IntVarP(&trendingLimit, "limit", "n", 0, "max results (default from config)")
	trendingCmd.Flags().StringVar(&trendingSource, "source", "", "user, admin or all (default from config)")
	trendingCmd.Flags().BoolVar(&trendingForce, "force", false, "ask the server to recompute instead of using its cache")
}

func runTrending(cmd *cobra.Command, args []string) error {
	limit := cfg.TrendingLimit
	if trendingLimit > 0 {
		limit = trendingLimit
	}
	source := cfg.Source
	if trendingSource != "" {
		source = trendingSource
	}
	scope, ok := models.ParseSourceScope(source)
	if !ok {
		return fmt.Errorf("invalid source %q (want user, admin or all)", source)
	}

	questions := api.TrendingQuestions(context.Background(), limit, trendingForce, scope)
	if len(questions) == 0 {
		fmt.Println("No trending questions.")
		return nil
	}

	fmt.Printf("Trending questions (%s, %d):\n\n", scope, len(questions))
	for i, q := range questions {
		fmt.Printf("%2d. %s (%d)\n", i+1, q.Question, q.Count)
		if verbose && q.Application != nil {
			fmt.Printf("    Application: %s\n", *q.Application)
		}
	}
	return nil
}
