package depgraph_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"

	"github.com/dwops/etl-core/internal/depgraph"
	"github.com/dwops/etl-core/internal/etlerrors"
	"github.com/dwops/etl-core/internal/relation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newRelation(t *testing.T, dir, schema, table, design string) *relation.RelationDescription {
	t.Helper()
	path := dir + "/" + schema + "." + table + ".yaml"
	require.NoError(t, os.WriteFile(path, []byte(design), 0o644))
	fs := relation.TableFileSet{
		Scheme:          "file",
		Path:            dir,
		DesignFileName:  path,
		SourcePathName:  schema + "." + table,
		TargetTableName: relation.TableName{Schema: schema, Table: table},
	}
	return relation.New(fs, nil)
}

func identifiers(rels []*relation.RelationDescription) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.Identifier()
	}
	return out
}

// Scenario 1 — linear chain: c depends on b, b depends on a, a has no deps;
// input order [c,b,a]; expected order [a,b,c].
func TestOrderLinearChain(t *testing.T) {
	dir := t.TempDir()
	a := newRelation(t, dir, "public", "a", "columns: []\n")
	b := newRelation(t, dir, "public", "b", "columns: []\ndepends_on: [\"public.a\"]\n")
	c := newRelation(t, dir, "public", "c", "columns: []\ndepends_on: [\"public.b\"]\n")

	ordered, err := depgraph.Order(context.Background(), testLogger(), []*relation.RelationDescription{c, b, a})
	require.NoError(t, err)
	assert.Equal(t, []string{"public.a", "public.b", "public.c"}, identifiers(ordered))
}

// Scenario 2 — stable tie-break: no dependencies, input order preserved.
func TestOrderStableTieBreak(t *testing.T) {
	dir := t.TempDir()
	x := newRelation(t, dir, "public", "x", "columns: []\n")
	y := newRelation(t, dir, "public", "y", "columns: []\n")
	z := newRelation(t, dir, "public", "z", "columns: []\n")

	ordered, err := depgraph.Order(context.Background(), testLogger(), []*relation.RelationDescription{x, y, z})
	require.NoError(t, err)
	assert.Equal(t, []string{"public.x", "public.y", "public.z"}, identifiers(ordered))
}

// Scenario 3 — catalog-dependent: cat depends on pg_catalog.pg_class, others
// have no deps; cat must sort last, t1..t3 keep input order before it.
func TestOrderCatalogDependent(t *testing.T) {
	dir := t.TempDir()
	t1 := newRelation(t, dir, "public", "t1", "columns: []\n")
	t2 := newRelation(t, dir, "public", "t2", "columns: []\n")
	t3 := newRelation(t, dir, "public", "t3", "columns: []\n")
	cat := newRelation(t, dir, "public", "cat", "columns: []\ndepends_on: [\"pg_catalog.pg_class\"]\n")

	ordered, err := depgraph.Order(context.Background(), testLogger(), []*relation.RelationDescription{t1, t2, t3, cat})
	require.NoError(t, err)
	ids := identifiers(ordered)
	require.Len(t, ids, 4)
	assert.Equal(t, "public.cat", ids[3])
	assert.Equal(t, []string{"public.t1", "public.t2", "public.t3"}, ids[:3])
}

// Scenario 4 — cycle: a depends on b, b depends on a.
func TestOrderCycle(t *testing.T) {
	dir := t.TempDir()
	a := newRelation(t, dir, "public", "a", "columns: []\ndepends_on: [\"public.b\"]\n")
	b := newRelation(t, dir, "public", "b", "columns: []\ndepends_on: [\"public.a\"]\n")

	_, err := depgraph.Order(context.Background(), testLogger(), []*relation.RelationDescription{a, b})
	require.Error(t, err)
	assert.ErrorIs(t, err, etlerrors.ErrCyclicDependency)
}
