package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwops/etl-core/internal/report"
)

func TestRenderAllSucceeded(t *testing.T) {
	s := report.Summary{RelationCount: 5, SourceCount: 2}
	out := s.Render()
	assert.Contains(t, out, "extraction run")
	assert.Contains(t, out, "relations ordered: 5 across 2 source(s)")
	assert.Contains(t, out, "all relations extracted successfully")
}

func TestRenderWithFailures(t *testing.T) {
	s := report.Summary{
		RelationCount:   3,
		SourceCount:     1,
		FailedRelations: []string{"public.orders"},
		FailedSources:   []string{"s1"},
	}
	out := s.Render()
	assert.Contains(t, out, "1 relation(s) failed")
	assert.Contains(t, out, "public.orders")
	assert.Contains(t, out, "affected source(s): s1")
}

func TestRenderDryRunTitle(t *testing.T) {
	s := report.Summary{DryRun: true}
	out := s.Render()
	assert.Contains(t, out, "extraction run (dry-run)")
}

func TestMarkdownIncludesCounts(t *testing.T) {
	s := report.Summary{RelationCount: 5, SourceCount: 2}
	out, err := report.Markdown(s, 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Relations ordered")
	assert.Contains(t, out, "5")
}

func TestMarkdownListsFailures(t *testing.T) {
	s := report.Summary{FailedRelations: []string{"public.orders", "public.users"}}
	out, err := report.Markdown(s, 80)
	require.NoError(t, err)
	assert.Contains(t, out, "public.orders")
	assert.Contains(t, out, "public.users")
}
