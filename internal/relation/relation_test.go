package relation_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwops/etl-core/internal/etlerrors"
	"github.com/dwops/etl-core/internal/relation"
)

func newLocalRelation(t *testing.T, schema, table, design string) *relation.RelationDescription {
	t.Helper()
	dir := t.TempDir()
	designPath := dir + "/" + schema + "." + table + ".yaml"
	require.NoError(t, os.WriteFile(designPath, []byte(design), 0o644))
	fs := relation.TableFileSet{
		Scheme:          "file",
		Path:            dir,
		DesignFileName:  designPath,
		SourcePathName:  schema + "." + table,
		TargetTableName: relation.TableName{Schema: schema, Table: table},
	}
	return relation.New(fs, nil)
}

func TestTableNameIdentifier(t *testing.T) {
	tn := relation.TableName{Schema: "public", Table: "orders"}
	assert.Equal(t, "public.orders", tn.Identifier())
	assert.Equal(t, "public.orders", tn.String())
}

func TestIdentifierAndSourceName(t *testing.T) {
	r := newLocalRelation(t, "public", "orders", "columns: []\n")
	assert.Equal(t, "public.orders", r.Identifier())
	assert.Equal(t, "public", r.SourceName())
	assert.Equal(t, "public.orders", r.String())
}

func TestTableDesignParsesAndMemoizes(t *testing.T) {
	design := `
source_name: users
columns:
  - name: id
  - name: email
    expression: lower(email)
  - name: internal_note
    skipped: true
constraints:
  primary_key: ["id"]
`
	r := newLocalRelation(t, "public", "users", design)
	ctx := context.Background()

	d, err := r.TableDesign(ctx)
	require.NoError(t, err)
	assert.Equal(t, "users", d.SourceName)
	require.Len(t, d.Columns, 3)
	assert.Equal(t, []string{"id"}, d.Constraints.PrimaryKey)

	cols, err := r.UnquotedColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email"}, cols)

	quoted, err := r.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`"id"`, `"email"`}, quoted)

	casts, err := r.GetColumnsWithCasts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`"id"`, `lower(email) AS "email"`}, casts)

	pk, ok, err := r.FindPrimaryKey(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "id", pk)

	splitBy, ok, err := r.FindPartitionKey(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "id", splitBy)
}

func TestTableDesignMissingFileWrapsErrDesignUnavailable(t *testing.T) {
	fs := relation.TableFileSet{
		Scheme:          "file",
		DesignFileName:  "/nonexistent/path/missing.yaml",
		TargetTableName: relation.TableName{Schema: "public", Table: "missing"},
	}
	r := relation.New(fs, nil)
	_, err := r.TableDesign(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, etlerrors.ErrDesignUnavailable)
}

func TestIsCTASAndViewAndUnloadable(t *testing.T) {
	ctas := newLocalRelation(t, "public", "ctas_rel", "source_name: CTAS\ncolumns: []\n")
	view := newLocalRelation(t, "public", "view_rel", "source_name: VIEW\ncolumns: []\n")
	plain := newLocalRelation(t, "public", "plain", "columns: []\n")
	unloadable := newLocalRelation(t, "public", "unload_rel", "columns: []\nunload_target: s3://bucket/path\n")

	ctx := context.Background()

	isCTAS, err := ctas.IsCTASRelation(ctx)
	require.NoError(t, err)
	assert.True(t, isCTAS)

	isView, err := view.IsViewRelation(ctx)
	require.NoError(t, err)
	assert.True(t, isView)

	isCTAS, err = plain.IsCTASRelation(ctx)
	require.NoError(t, err)
	assert.False(t, isCTAS)

	unload, err := unloadable.IsUnloadable(ctx)
	require.NoError(t, err)
	assert.True(t, unload)

	target, err := unloadable.UnloadTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/path", target)

	notUnload, err := plain.IsUnloadable(ctx)
	require.NoError(t, err)
	assert.False(t, notUnload)
}

func TestSourceTableNameDefaultsToTarget(t *testing.T) {
	r := newLocalRelation(t, "public", "orders", "columns: []\n")
	tn, err := r.SourceTableName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relation.TableName{Schema: "public", Table: "orders"}, tn)
}

func TestSourceTableNameOverride(t *testing.T) {
	r := newLocalRelation(t, "public", "orders", "columns: []\nsource_table_name: legacy.orders_v1\n")
	tn, err := r.SourceTableName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relation.TableName{Schema: "legacy", Table: "orders_v1"}, tn)
}

func TestSourceTableNameOverrideMustBeQualified(t *testing.T) {
	r := newLocalRelation(t, "public", "orders", "columns: []\nsource_table_name: orders_v1\n")
	_, err := r.SourceTableName(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source_table_name")
}

func TestDependenciesFromDesign(t *testing.T) {
	r := newLocalRelation(t, "public", "b", "columns: []\ndepends_on: [\"public.a\", \"pg_catalog.pg_class\"]\n")
	deps, err := r.Dependencies(context.Background())
	require.NoError(t, err)
	_, hasA := deps["public.a"]
	_, hasCatalog := deps["pg_catalog.pg_class"]
	assert.True(t, hasA)
	assert.True(t, hasCatalog)
	assert.Len(t, deps, 2)
}

func TestSetRequiredIsSetOnce(t *testing.T) {
	r := newLocalRelation(t, "public", "orders", "columns: []\n")

	_, err := r.IsRequired()
	require.Error(t, err)
	assert.ErrorIs(t, err, etlerrors.ErrRequiredStateUnknown)

	r.SetRequired(true)
	r.SetRequired(false) // second call is a no-op, first write wins

	got, err := r.IsRequired()
	require.NoError(t, err)
	assert.True(t, got)
}

func TestManifestFileNameComputedEvenWithoutDiscoveredOne(t *testing.T) {
	fs := relation.TableFileSet{
		Scheme:          "file",
		Path:            "public/orders",
		SourcePathName:  "public.orders",
		TargetTableName: relation.TableName{Schema: "public", Table: "orders"},
	}
	r := relation.New(fs, nil)
	assert.False(t, r.HasManifest())
	assert.Equal(t, "public/orders/data/public.orders.manifest", r.ManifestFileName())
}

func TestForwardedFileSetAccessors(t *testing.T) {
	fs := relation.TableFileSet{
		Scheme:           "s3",
		Netloc:           "bucket",
		Path:             "public/orders",
		DesignFileName:   "public/orders/table.yaml",
		SQLFileName:      "public/orders/query.sql",
		ManifestFileName: "public/orders/data/public.orders.manifest",
		SourcePathName:   "public.orders",
		TargetTableName:  relation.TableName{Schema: "public", Table: "orders"},
		Files:            []string{"public/orders/data/part-00000"},
	}
	r := relation.New(fs, nil)

	assert.Equal(t, "public/orders/table.yaml", r.DesignFileName())
	assert.Equal(t, "public/orders/query.sql", r.SQLFileName())
	assert.Equal(t, "public/orders/data/public.orders.manifest", r.DiscoveredManifestFileName())
	assert.Equal(t, "public.orders", r.SourcePathName())
	assert.Equal(t, []string{"public/orders/data/part-00000"}, r.Files())
	assert.Equal(t, "bucket", r.BucketName())
	assert.Equal(t, "public/orders", r.Prefix())
	assert.True(t, r.HasManifest())
}

func TestQueryStmtTrimsTrailingSemicolon(t *testing.T) {
	dir := t.TempDir()
	sqlPath := dir + "/public.orders.sql"
	require.NoError(t, os.WriteFile(sqlPath, []byte("SELECT * FROM orders  ;\n\n"), 0o644))
	fs := relation.TableFileSet{
		Scheme:          "file",
		SQLFileName:     sqlPath,
		SourcePathName:  "public.orders",
		TargetTableName: relation.TableName{Schema: "public", Table: "orders"},
	}
	r := relation.New(fs, nil)

	stmt, err := r.QueryStmt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders", stmt)
}

func TestFromFileSetsSkipsMissingDesign(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	withDesign := relation.TableFileSet{
		DesignFileName:  "public.orders.yaml",
		TargetTableName: relation.TableName{Schema: "public", Table: "orders"},
	}
	withoutDesign := relation.TableFileSet{
		Files:           []string{"public/orders.sql"},
		TargetTableName: relation.TableName{Schema: "public", Table: "stray"},
	}

	got := relation.FromFileSets(log, []relation.TableFileSet{withDesign, withoutDesign}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "public.orders", got[0].Identifier())
}

func TestQueryStmtMissingFileNameWrapsErrMissingQuery(t *testing.T) {
	fs := relation.TableFileSet{
		Scheme:          "file",
		SourcePathName:  "public.orders",
		TargetTableName: relation.TableName{Schema: "public", Table: "orders"},
	}
	r := relation.New(fs, nil)
	_, err := r.QueryStmt(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, etlerrors.ErrMissingQuery)
}
