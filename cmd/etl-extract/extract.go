package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwops/etl-core/internal/collab"
	"github.com/dwops/etl-core/internal/extract"
	"github.com/dwops/etl-core/internal/hooks"
	"github.com/dwops/etl-core/internal/relation"
	"github.com/dwops/etl-core/internal/report"
	"github.com/dwops/etl-core/internal/selector"
	"github.com/dwops/etl-core/internal/sqoop"
)

var flagRequired []string
var flagFake bool
var flagHooksDir string

func newExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract data for every configured upstream source",
		RunE:  runExtract,
	}
	cmd.Flags().BoolVar(&flagKeepGoing, "keep-going", false, "continue extracting other sources after a required relation fails")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "log intended actions without touching the object store or spawning sqoop")
	cmd.Flags().Int64Var(&flagMaxPartitions, "max-partitions", 4, "upper bound on per-table mapper count")
	cmd.Flags().StringSliceVar(&flagRequired, "required", nil, "exact schema.table identifiers that seed the required-relation closure (default: every relation)")
	cmd.Flags().BoolVar(&flagFake, "fake", false, "use a strategy that always fails, for exercising the driver off-cluster")
	cmd.Flags().StringVar(&flagReportFormat, "report", "text", "summary format: text or markdown")
	cmd.Flags().StringVar(&flagHooksDir, "hooks-dir", "", "directory of executable lifecycle hook scripts (default: <scratch-dir>/hooks)")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	blob, err := collab.NewS3Blob(ctx)
	if err != nil {
		return fmt.Errorf("init object store client: %w", err)
	}

	ordered, err := loadOrderedRelations(ctx, blob)
	if err != nil {
		return err
	}

	if err := applyRequiredSelection(ctx, ordered); err != nil {
		return err
	}

	monitor, err := collab.NewMonitor()
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}

	manifestWriter := newManifestWriter(blob)

	sqlColl := collab.NewSQL()
	proc := collab.NewProcess()

	var strategy extract.Strategy
	if flagFake {
		strategy = sqoop.NewFake(blob, sqlColl, proc, manifestWriter, log, settings.ScratchDir, flagMaxPartitions, flagDryRun)
	} else {
		strategy = sqoop.New(blob, sqlColl, proc, manifestWriter, log, settings.ScratchDir, flagMaxPartitions, flagDryRun)
	}

	base := extract.NewBase("sqoop", settings.SchemaMap(), ordered, strategy, monitor, log)
	base.KeepGoing = flagKeepGoing
	base.DryRun = flagDryRun
	base.NeedsToWait = true
	if flagHooksDir != "" {
		base.Hooks = hooks.NewRunner(flagHooksDir)
	} else {
		base.Hooks = hooks.NewRunnerFromScratchDir(settings.ScratchDir)
	}

	runErr := base.ExtractSources(ctx)

	summary := report.Summary{
		RelationCount: len(ordered),
		SourceCount:   len(settings.Sources),
		FailedSources: base.FailedSources(),
		DryRun:        flagDryRun,
	}
	if err := printSummary(summary); err != nil {
		return err
	}

	return runErr
}

func applyRequiredSelection(ctx context.Context, ordered []*relation.RelationDescription) error {
	pred := func(relation.TableName) bool { return true }
	if len(flagRequired) > 0 {
		patterns := make(map[string]struct{}, len(flagRequired))
		for _, p := range flagRequired {
			patterns[p] = struct{}{}
		}
		pred = func(t relation.TableName) bool {
			_, ok := patterns[t.Identifier()]
			return ok
		}
	}

	required, err := selector.Select(ctx, ordered, pred)
	if err != nil {
		return fmt.Errorf("select required relations: %w", err)
	}
	selector.Apply(ordered, required)
	return nil
}

func printSummary(s report.Summary) error {
	if flagReportFormat == "markdown" {
		out, err := report.Markdown(s, 100)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
	fmt.Print(s.Render())
	return nil
}
