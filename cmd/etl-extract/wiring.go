package main

import (
	"context"
	"fmt"

	"github.com/dwops/etl-core/internal/collab"
	"github.com/dwops/etl-core/internal/config"
	"github.com/dwops/etl-core/internal/depgraph"
	"github.com/dwops/etl-core/internal/discovery"
	"github.com/dwops/etl-core/internal/manifest"
	"github.com/dwops/etl-core/internal/relation"
)

// loadOrderedRelations discovers, wraps, and dependency-orders every
// relation under flagDiscoverRoot. It is the shared first step of every
// subcommand.
func loadOrderedRelations(ctx context.Context, blob collab.Blob) ([]*relation.RelationDescription, error) {
	fileSets, err := discovery.DiscoverAll(ctx, log, []discovery.PathConfig{
		{Type: discovery.SourceTypeLocal, Path: flagDiscoverRoot},
	}, blob)
	if err != nil {
		return nil, fmt.Errorf("discover relations: %w", err)
	}

	relations := relation.FromFileSets(log, fileSets, blob)

	ordered, err := depgraph.Order(ctx, log, relations)
	if err != nil {
		return nil, fmt.Errorf("order relations: %w", err)
	}
	return ordered, nil
}

func loadSettings() (config.Settings, error) {
	return config.Load(flagConfigPath)
}

func newManifestWriter(blob collab.Blob) *manifest.Writer {
	w := manifest.NewWriter(blob, log)
	w.DryRun = flagDryRun
	return w
}
