// Package extract drives table extraction across one or many upstream
// sources, using a pluggable Strategy for the per-table work.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dwops/etl-core/internal/collab"
	"github.com/dwops/etl-core/internal/config"
	"github.com/dwops/etl-core/internal/etlerrors"
	"github.com/dwops/etl-core/internal/hooks"
	"github.com/dwops/etl-core/internal/relation"
)

// Strategy is the polymorphic extractor capability: concrete variants are
// sqoop.Strategy (shells out to sqoop) and the always-failing variant built
// by sqoop.NewFake, useful for exercising the driver off-cluster.
type Strategy interface {
	// ExtractTable extracts one relation. waitForManifest controls whether
	// the post-extraction ManifestWriter call blocks on the upstream
	// _SUCCESS sentinel or proceeds immediately with whatever files exist.
	ExtractTable(ctx context.Context, source config.DataWarehouseSchema, rel *relation.RelationDescription, waitForManifest bool) error
	OptionsInfo() string
	SourceInfo(source config.DataWarehouseSchema) string
}

// Failure records one relation's extraction failure, attributed to its
// source.
type Failure struct {
	SourceName         string
	RelationIdentifier string
	Err                error
}

// Base drives extraction across the relations assigned to one or many
// upstream sources.
type Base struct {
	Name      string
	Schemas   map[string]config.DataWarehouseSchema
	Relations []*relation.RelationDescription
	Strategy  Strategy
	Monitor   *collab.Monitor
	Log       *slog.Logger
	Hooks     *hooks.Runner // nil disables lifecycle hooks

	KeepGoing   bool
	NeedsToWait bool
	DryRun      bool

	mu            sync.Mutex
	failedSources map[string]struct{}
}

// NewBase constructs a Base with an initialized failure set.
func NewBase(name string, schemas map[string]config.DataWarehouseSchema, relations []*relation.RelationDescription, strategy Strategy, monitor *collab.Monitor, log *slog.Logger) *Base {
	return &Base{
		Name:          name,
		Schemas:       schemas,
		Relations:     relations,
		Strategy:      strategy,
		Monitor:       monitor,
		Log:           log,
		failedSources: make(map[string]struct{}),
	}
}

// FailedSources returns the set of source names that had at least one
// failed relation, safe to call after ExtractSources returns.
func (b *Base) FailedSources() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.failedSources))
	for s := range b.failedSources {
		out = append(out, s)
	}
	return out
}

func (b *Base) markFailedSource(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failedSources[name] = struct{}{}
}

func (b *Base) fireHook(event string, payload hooks.Payload) {
	if b.Hooks == nil {
		return
	}
	b.Hooks.Run(event, payload)
}

// ExtractSource extracts every relation belonging to one source, in the
// order given, returning the relations that failed. Only errors marked with
// etlerrors.Runtime count as relation failures; any other error is returned
// at once. A failure in a relation that is not in the required closure is
// always tolerated; a failure in a required relation is tolerated only when
// KeepGoing is set, otherwise it terminates this source's extraction early.
func (b *Base) ExtractSource(ctx context.Context, source config.DataWarehouseSchema, relations []*relation.RelationDescription) ([]Failure, error) {
	var failures []Failure
	total := len(relations)

	b.fireHook(hooks.EventSourceStart, hooks.Payload{Event: hooks.EventSourceStart, Source: source.Name})
	defer b.fireHook(hooks.EventSourceDone, hooks.Payload{Event: hooks.EventSourceDone, Source: source.Name})

	for i, rel := range relations {
		stepCtx, finish := b.Monitor.StepSpan(ctx, "extract", rel.Identifier())
		b.Log.Info("extracting relation",
			slog.String("source", source.Name),
			slog.String("relation", rel.Identifier()),
			slog.Int("index", i+1),
			slog.Int("total", total))

		err := b.Strategy.ExtractTable(stepCtx, source, rel, b.NeedsToWait)
		finish(err)

		if err == nil {
			b.fireHook(hooks.EventRelationOK, hooks.Payload{Event: hooks.EventRelationOK, Source: source.Name, Relation: rel.Identifier()})
			continue
		}
		if !etlerrors.IsRuntime(err) {
			return failures, err
		}

		b.markFailedSource(source.Name)
		failures = append(failures, Failure{SourceName: source.Name, RelationIdentifier: rel.Identifier(), Err: err})
		b.fireHook(hooks.EventRelationFail, hooks.Payload{Event: hooks.EventRelationFail, Source: source.Name, Relation: rel.Identifier(), Error: err.Error()})

		required, reqErr := rel.IsRequired()
		if reqErr != nil {
			return failures, reqErr
		}
		b.Monitor.RecordFailure(stepCtx, source.Name, rel.Identifier(), required)

		if !required {
			b.Log.Warn("non-required relation failed, continuing", slog.String("relation", rel.Identifier()), slog.Any("error", err))
			continue
		}
		if b.KeepGoing {
			b.Log.Warn("required relation failed, keep-going set, continuing", slog.String("relation", rel.Identifier()), slog.Any("error", err))
			continue
		}
		b.Log.Error("required relation failed, stopping source", slog.String("relation", rel.Identifier()), slog.Any("error", err))
		return failures, etlerrors.Runtime(err)
	}

	return failures, nil
}

// ExtractSources groups relations by source name and runs one task per
// source in a pool sized to len(Schemas). In keep-going mode every task
// runs to completion regardless of failures; otherwise the first task
// failure stops scheduling of new work, though already-started tasks are
// allowed to finish and their results are still reported.
func (b *Base) ExtractSources(ctx context.Context) error {
	grouped := make(map[string][]*relation.RelationDescription)
	var order []string
	for _, rel := range b.Relations {
		name := rel.SourceName()
		if _, ok := grouped[name]; !ok {
			order = append(order, name)
		}
		grouped[name] = append(grouped[name], rel)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(len(b.Schemas), 1))

	var mu sync.Mutex
	var allFailures []Failure
	failedTaskCount := 0

	for _, name := range order {
		name := name
		relations := grouped[name]

		if !b.KeepGoing {
			select {
			case <-gctx.Done():
				b.Log.Warn("skipping source, an earlier source already failed", slog.String("source", name))
				continue
			default:
			}
		}

		source, ok := b.Schemas[name]
		if !ok {
			return fmt.Errorf("extract sources: no schema configured for source %q", name)
		}

		g.Go(func() error {
			// Always run with the caller's ctx, never gctx: gctx is
			// cancelled the instant any task returns an error, and an
			// already-running source's subprocess must be allowed to
			// finish rather than be killed by an unrelated failure.
			failures, err := b.ExtractSource(ctx, source, relations)
			mu.Lock()
			allFailures = append(allFailures, failures...)
			if err != nil {
				failedTaskCount++
			}
			mu.Unlock()
			if err != nil && !b.KeepGoing {
				return err
			}
			return nil
		})
	}

	waitErr := g.Wait()

	for _, f := range allFailures {
		b.Log.Warn("relation extraction failed", slog.String("source", f.SourceName), slog.String("relation", f.RelationIdentifier), slog.Any("error", f.Err))
	}

	if waitErr != nil {
		return etlerrors.Wrapf(etlerrors.ErrDataExtract, "extract failed for %d source(s): %s", failedTaskCount, b.Name)
	}
	if failedTaskCount > 0 {
		return etlerrors.Wrapf(etlerrors.ErrDataExtract, "extract failed for %d source(s): %s", failedTaskCount, b.Name)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
