package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/ui"
)

var tickerCmd = &cobra.Command{
	Use:   "ticker",
	Short: "Scroll the applications in incident",
	Long: `Show a scrolling line with the applications currently in incident.

The ticker follows changes made by "oskour incident set" in any process
sharing the same store.`,
	Annotations: map[string]string{fullScreen: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		return ui.RunTicker(context.Background(), incidents)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the live statistics dashboard",
	Long: `Show chatbot counters, incident reports per application, the hourly
incident histogram and the declared incidents, refreshed periodically.

Applications are highlighted from OSKOUR_INCIDENT_WARN and OSKOUR_INCIDENT_CRIT reports.`,
	Annotations: map[string]string{fullScreen: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		thresholds := ui.Thresholds{Warn: cfg.IncidentWarn, Crit: cfg.IncidentCrit}
		return ui.RunDashboard(context.Background(), api, incidents, thresholds, cfg.StatsInterval)
	},
}
