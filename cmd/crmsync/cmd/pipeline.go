package cmd

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ligrlabs/crmsync/internal/applier"
	"github.com/ligrlabs/crmsync/internal/config"
	"github.com/ligrlabs/crmsync/internal/pipedrive"
	"github.com/ligrlabs/crmsync/internal/transport"
	"github.com/ligrlabs/crmsync/pkg/auditlog"
	"github.com/ligrlabs/crmsync/pkg/logging"
	"github.com/ligrlabs/crmsync/pkg/reconcile"
	"github.com/ligrlabs/crmsync/pkg/schema"
)

// runPipeline drives one reconciliation run: preflight, schema
// resolution, snapshot, the two engine passes in their required order, and
// finally the audit log. Fatal errors abort before any mutation; the audit
// log is the last step regardless of per-record failures.
func runPipeline(ctx context.Context, run *reconcile.Run, users map[string]*reconcile.User,
	orgs map[string]*reconcile.Org, specs []schema.Spec) error {

	token, err := config.Token()
	if err != nil {
		return err
	}

	t, err := transport.New(baseURL, token,
		transport.WithDelay(requestDelay),
		transport.WithCounter(run))
	if err != nil {
		return err
	}
	client := pipedrive.NewClient(t)

	me, err := client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	logging.Info().Str("user", me.Name).Str("mode", run.Mode()).Str("run_id", run.ID).
		Msg("Connected to CRM")
	if run.DryRun {
		logging.Info().Msg("Dry run: no changes will be made, pass --live to execute")
	}

	handles, err := schema.Resolve(ctx, client, specs, run.DryRun)
	if err != nil {
		return err
	}
	run.Keys = fieldKeys(handles)

	snap, err := client.Snapshot(ctx, managedKeys(handles))
	if err != nil {
		return err
	}

	engine := reconcile.New(run, users, orgs, snap, applier.New(client, run))
	if err := engine.Organizations(ctx); err != nil {
		return err
	}
	if err := engine.Persons(ctx); err != nil {
		return err
	}

	files, err := auditlog.Write(outDir, time.Now(), run.Mode(), engine.Decisions(), engine.OrgResults())
	if err != nil {
		return err
	}

	logging.Info().
		Int("requests", run.Requests).
		Int("orgs_created", run.OrgsCreated).
		Int("created", run.Created).
		Int("updated", run.Updated).
		Int("no_op", run.Skipped).
		Int("tagged", run.Tagged).
		Int("failed", run.Failed).
		Str("decision_log", files.Decisions).
		Str("org_log", files.Organizations).
		Msg("Run complete")
	return nil
}

// newRun builds the run context carrying all run-scoped state.
func newRun(tagAll, linkOnCreate bool) *reconcile.Run {
	return &reconcile.Run{
		ID:           uuid.NewString(),
		DryRun:       !live,
		StartedAt:    time.Now(),
		LinkOnCreate: linkOnCreate,
		TagAll:       tagAll,
	}
}

// loadSpecs returns the field specifications for a run, from the --fields
// file when given.
func loadSpecs(defaults []schema.Spec) ([]schema.Spec, error) {
	if fieldsFile == "" {
		return defaults, nil
	}
	return schema.LoadSpecs(fieldsFile)
}

// fieldKeys maps resolved handles onto the engine's field-key set.
func fieldKeys(handles schema.Handles) reconcile.FieldKeys {
	keys := reconcile.FieldKeys{
		AllOrgs: handles.Key(schema.LogicalAllOrgs),
		Status:  handles.Key(schema.LogicalStatus),
		UserID:  handles.Key(schema.LogicalUserID),
		Label:   handles.Key(schema.LogicalLabel),
	}
	if id, ok := handles.Option(schema.LogicalLabel, schema.InDatabaseLabel); ok {
		keys.InDatabaseOption = id
	}
	return keys
}

// managedKeys lists every resolved CRM field key, for snapshot value
// extraction.
func managedKeys(handles schema.Handles) []string {
	keys := make([]string, 0, len(handles))
	for _, h := range handles {
		if h.Key != "" {
			keys = append(keys, h.Key)
		}
	}
	return keys
}
