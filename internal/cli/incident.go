package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/oskour/internal/incident"
	"github.com/raphaelgruber/oskour/internal/models"
)

var (
	incidentActiveOnly bool
	incidentForce      bool
	incidentFormat     string
	incidentOutput     string
	incidentImportAs   string
)

var incidentCmd = &cobra.Command{
	Use:   "incident",
	Short: "Manage application incident statuses",
	Long: `Show and change the incident status of the helpdesk applications.

Changes are picked up by every running ticker and dashboard sharing the same store.

Subcommands:
  list    List applications and their status (default)
  init    Seed the default application list
  set     Change statuses
  export  Write the list as YAML or JSON
  import  Replace the list from a YAML or JSON file

Examples:
  oskour incident list --active
  oskour incident set sas incident webex ok
  oskour incident export --format json -o incidents.json
  oskour incident import incidents.yaml`,
	RunE: runIncidentList,
}

var incidentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications and their status",
	RunE:  runIncidentList,
}

var incidentInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the default application list",
	RunE:  runIncidentInit,
}

var incidentSetCmd = &cobra.Command{
	Use:   "set <application> <ok|incident> [<application> <ok|incident>...]",
	Short: "Change application statuses",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runIncidentSet,
}

var incidentExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the incident list",
	RunE:  runIncidentExport,
}

var incidentImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the incident list from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentImport,
}

func init() {
	incidentCmd.Flags().BoolVar(&incidentActiveOnly, "active", false, "only applications in incident")
	incidentListCmd.Flags().BoolVar(&incidentActiveOnly, "active", false, "only applications in incident")
	incidentInitCmd.Flags().BoolVar(&incidentForce, "force", false, "overwrite an existing list with the defaults")
	incidentExportCmd.Flags().StringVarP(&incidentFormat, "format", "f", "yaml", "output format: yaml or json")
	incidentExportCmd.Flags().StringVarP(&incidentOutput, "output", "o", "", "write to file instead of stdout")
	incidentImportCmd.Flags().StringVarP(&incidentImportAs, "format", "f", "", "input format (default from file extension)")

	incidentCmd.AddCommand(incidentListCmd)
	incidentCmd.AddCommand(incidentInitCmd)
	incidentCmd.AddCommand(incidentSetCmd)
	incidentCmd.AddCommand(incidentExportCmd)
	incidentCmd.AddCommand(incidentImportCmd)
}

func runIncidentList(cmd *cobra.Command, args []string) error {
	records := incidents.Load(context.Background())
	if incidentActiveOnly {
		records = incident.Active(records)
	}

	if len(records) == 0 {
		fmt.Println("No application in incident.")
		return nil
	}

	fmt.Printf("Applications (%d):\n\n", len(records))
	for _, rec := range records {
		app := models.LookupApplication(rec)
		mark := ""
		if rec.Status == models.StatusIncident {
			mark = " [incident]"
		}
		fmt.Printf("- %s %s (%s)%s\n", app.Icon, app.Name, rec.ApplicationID, mark)
	}
	return nil
}

func runIncidentInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if incidentForce {
		if err := incidents.Save(ctx, models.DefaultIncidents()); err != nil {
			return fmt.Errorf("reset incidents: %w", err)
		}
		fmt.Printf("Reset %d applications to ok.\n", len(models.DefaultApplications))
		return nil
	}

	// PersistentPreRunE already seeds a missing list
	fmt.Printf("Incident list ready (%d applications).\n", len(incidents.Load(ctx)))
	return nil
}

func runIncidentSet(cmd *cobra.Command, args []string) error {
	changes, err := parseStatusChanges(args)
	if err != nil {
		return err
	}

	records, err := incidents.Apply(context.Background(), changes)
	if err != nil {
		return fmt.Errorf("apply changes: %w", err)
	}

	fmt.Printf("Updated %d application(s); %d in incident.\n", len(changes), len(incident.Active(records)))
	return nil
}

// parseStatusChanges reads alternating application id and status arguments.
func parseStatusChanges(args []string) (map[string]models.Status, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("expected <application> <status> pairs, got %d argument(s)", len(args))
	}
	changes := make(map[string]models.Status, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		status, err := models.ParseStatus(strings.ToLower(args[i+1]))
		if err != nil {
			return nil, err
		}
		changes[strings.ToLower(args[i])] = status
	}
	return changes, nil
}

func runIncidentExport(cmd *cobra.Command, args []string) error {
	format, err := incident.ParseFormat(incidentFormat)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if incidentOutput != "" {
		f, err := os.Create(incidentOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := incident.Export(w, incidents.Load(context.Background()), format); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if incidentOutput != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", incidentOutput)
	}
	return nil
}

func runIncidentImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	name := incidentImportAs
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	format, err := incident.ParseFormat(name)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := incident.Import(f, format)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if err := incidents.Save(context.Background(), records); err != nil {
		return fmt.Errorf("save incidents: %w", err)
	}

	fmt.Printf("Imported %d applications; %d in incident.\n", len(records), len(incident.Active(records)))
	return nil
}
