package selector_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwops/etl-core/internal/relation"
	"github.com/dwops/etl-core/internal/selector"
)

// newLocalRelation writes design under dir and wraps it as a local-filesystem
// RelationDescription.
func newLocalRelation(t *testing.T, dir, schema, table string, design string) *relation.RelationDescription {
	t.Helper()
	designPath := dir + "/" + schema + "." + table + ".yaml"
	require.NoError(t, os.WriteFile(designPath, []byte(design), 0o644))
	fs := relation.TableFileSet{
		Scheme:         "file",
		Path:           dir,
		DesignFileName: designPath,
		SourcePathName: schema + "." + table,
		TargetTableName: relation.TableName{Schema: schema, Table: table},
	}
	return relation.New(fs, nil)
}

func TestSelectExtendsToAncestors(t *testing.T) {
	dir := t.TempDir()
	a := newLocalRelation(t, dir, "public", "a", "columns: []\n")
	b := newLocalRelation(t, dir, "public", "b", "columns: []\ndepends_on: [\"public.a\"]\n")
	c := newLocalRelation(t, dir, "public", "c", "columns: []\ndepends_on: [\"public.b\"]\n")

	ordered := []*relation.RelationDescription{a, b, c}

	ctx := context.Background()
	required, err := selector.Select(ctx, ordered, func(tn relation.TableName) bool {
		return tn.Identifier() == "public.c"
	})
	require.NoError(t, err)

	for _, id := range []string{"public.a", "public.b", "public.c"} {
		_, ok := required[id]
		require.Truef(t, ok, "expected %q in required set", id)
	}
}

func TestSelectDefaultIncludesEverything(t *testing.T) {
	dir := t.TempDir()
	a := newLocalRelation(t, dir, "public", "a", "columns: []\n")
	b := newLocalRelation(t, dir, "public", "b", "columns: []\n")

	ctx := context.Background()
	required, err := selector.Select(ctx, []*relation.RelationDescription{a, b}, func(relation.TableName) bool { return true })
	require.NoError(t, err)
	require.Len(t, required, 2)
}

// Scenario 5 — required closure: u depends on v depends on w, x has no
// deps; selector matches {u}. Expected is_required: {u,v,w} true, x false.
func TestSelectRequiredClosureScenario(t *testing.T) {
	dir := t.TempDir()
	u := newLocalRelation(t, dir, "public", "u", "columns: []\ndepends_on: [\"public.v\"]\n")
	v := newLocalRelation(t, dir, "public", "v", "columns: []\ndepends_on: [\"public.w\"]\n")
	w := newLocalRelation(t, dir, "public", "w", "columns: []\n")
	x := newLocalRelation(t, dir, "public", "x", "columns: []\n")

	ordered := []*relation.RelationDescription{w, v, u, x}

	required, err := selector.Select(context.Background(), ordered, func(tn relation.TableName) bool {
		return tn.Identifier() == "public.u"
	})
	require.NoError(t, err)
	selector.Apply(ordered, required)

	for _, r := range []*relation.RelationDescription{u, v, w} {
		got, err := r.IsRequired()
		require.NoError(t, err)
		require.Truef(t, got, "expected %q to be required", r.Identifier())
	}
	gotX, err := x.IsRequired()
	require.NoError(t, err)
	require.False(t, gotX)
}

func TestApplySetsRequiredExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	a := newLocalRelation(t, dir, "public", "a", "columns: []\n")
	b := newLocalRelation(t, dir, "public", "b", "columns: []\n")

	set := selector.RequiredSet{"public.a": {}}
	selector.Apply([]*relation.RelationDescription{a, b}, set)

	aReq, err := a.IsRequired()
	require.NoError(t, err)
	require.True(t, aReq)

	bReq, err := b.IsRequired()
	require.NoError(t, err)
	require.False(t, bReq)
}
