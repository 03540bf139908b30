package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ligrlabs/crmsync/internal/export"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
	"github.com/ligrlabs/crmsync/pkg/schema"
)

var enrichCSV string

// enrichCmd represents the enrich command
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich CRM contacts from a pre-joined export",
	Long: `Enrich loads a pre-joined export (one row per user, organization list
already rendered) and upserts every authoritative identity into the CRM:
existing contacts get their user id, organization list, and "IN DATABASE"
label refreshed; missing contacts are created.

Unlike sync, enrich visits every CRM contact in the tagging pass: contacts
with no authoritative match are tagged "not in db", and contacts with no
resolvable email at all are tagged "unknown".`,
	Example: `  crmsync enrich --csv enrichment.csv
  crmsync enrich --csv enrichment.csv --live`,
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().StringVar(&enrichCSV, "csv", "", "Pre-joined enrichment export CSV file (required)")
	_ = enrichCmd.MarkFlagRequired("csv")
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	users, err := export.LoadEnrichment(enrichCSV)
	if err != nil {
		return err
	}

	specs, err := loadSpecs(schema.EnrichSpecs())
	if err != nil {
		return err
	}

	// The pre-joined schema carries no structured org memberships, so the
	// organization pass has nothing to create.
	run := newRun(true, false)
	return runPipeline(cmd.Context(), run, users, map[string]*reconcile.Org{}, specs)
}
