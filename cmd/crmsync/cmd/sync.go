package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ligrlabs/crmsync/internal/export"
	"github.com/ligrlabs/crmsync/pkg/schema"
)

var (
	syncCSV          string
	syncLinkOnCreate bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Full reconciliation of the membership export against the CRM",
	Long: `Sync loads a membership export (one row per user and organization
pair), fetches the complete CRM snapshot, and reconciles the two:

1. Create organizations present in the export but missing from the CRM
2. Resolve each contact's organization link (current links matching any
   authoritative organization are kept)
3. Recompute the "All LIGR Organizations" field and the DB status tag
4. Create contacts for authoritative identities missing from the CRM
5. Tag CRM-only contacts as "not in db"

Writes are issued only where the computed target state differs from the
CRM's current state.`,
	Example: `  crmsync sync --csv export.csv
  crmsync sync --csv export.csv --live
  crmsync sync --csv export.csv --live --link-on-create`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncCSV, "csv", "", "Membership export CSV file (required)")
	syncCmd.Flags().BoolVar(&syncLinkOnCreate, "link-on-create", false,
		"Link newly created contacts to their first organization immediately")
	_ = syncCmd.MarkFlagRequired("csv")
}

func runSync(cmd *cobra.Command, _ []string) error {
	users, orgs, err := export.LoadMemberships(syncCSV)
	if err != nil {
		return err
	}

	specs, err := loadSpecs(schema.SyncSpecs())
	if err != nil {
		return err
	}

	run := newRun(false, syncLinkOnCreate)
	return runPipeline(cmd.Context(), run, users, orgs, specs)
}
