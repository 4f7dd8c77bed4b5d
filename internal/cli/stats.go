package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/metrics"
	"github.com/raphaelgruber/oskour/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show helpdesk statistics",
	Long: `Show the chatbot counters, incident reports per application and the
hourly incident histogram, followed by this client's call timings.

Examples:
  oskour stats
  oskour stats -v`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s := api.ChatbotStats(ctx)
	fmt.Printf("Chatbot Statistics\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Messages: %d today, %d this week, %d total\n", s.DailyMessages, s.WeeklyMessages, s.TotalMessages)
	fmt.Printf("Active sessions: %d\n", s.CurrentSessions)

	apps := api.ApplicationStats(ctx)
	fmt.Printf("\nApplications (%d):\n", len(apps))
	thresholds := ui.Thresholds{Warn: cfg.IncidentWarn, Crit: cfg.IncidentCrit}
	for _, app := range apps {
		marker := ""
		switch ui.Level(app.IncidentCount, thresholds) {
		case ui.SeverityCritical:
			marker = " [critical]"
		case ui.SeverityWarning:
			marker = " [warning]"
		}
		fmt.Printf("- %s: %d incidents, %d users (%s)%s\n", app.Name, app.IncidentCount, app.UserCount, app.Status, marker)
	}

	hourly := api.HourlyIncidents(ctx)
	values := make([]int, len(hourly))
	for i, h := range hourly {
		values[i] = h.Incidents
	}
	fmt.Printf("\nIncidents per hour: %s\n", ui.Sparkline(values))
	if verbose {
		for _, h := range hourly {
			if h.Incidents > 0 {
				fmt.Printf("  %s  %d\n", h.Hour, h.Incidents)
			}
		}
	}

	fmt.Println()
	printClientStats(collector.Snapshot())
	return nil
}

// printClientStats displays the timings of the calls made by this process.
func printClientStats(snap metrics.Snapshot) {
	fmt.Printf("Client Statistics (this run)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", snap.UptimeSeconds)
	for i := range snap.Operations {
		fmt.Printf("\n%s:\n", snap.Operations[i].Name)
		printOpStats(&snap.Operations[i])
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
