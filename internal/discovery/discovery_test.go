package discovery_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwops/etl-core/internal/discovery"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLocalSourceGroupsBySchemaAndStem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "public/orders.yaml", "columns: []\n")
	writeFile(t, root, "public/orders.sql", "SELECT 1;\n")
	writeFile(t, root, "public/orders.manifest", "{}")
	writeFile(t, root, "public/users.yaml", "columns: []\n")

	src := discovery.NewLocalSource(root)
	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "orders", found[0].TargetTableName.Table)
	assert.NotEmpty(t, found[0].DesignFileName)
	assert.NotEmpty(t, found[0].SQLFileName)
	assert.NotEmpty(t, found[0].ManifestFileName)
	assert.Len(t, found[0].Files, 3)

	assert.Equal(t, "users", found[1].TargetTableName.Table)
	assert.Empty(t, found[1].SQLFileName)
}

func TestLocalSourceRejectsFlatLayout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "orders.yaml", "columns: []\n")

	src := discovery.NewLocalSource(root)
	_, err := src.Discover(context.Background())
	require.Error(t, err)
}

func TestLocalSourceIgnoresUnrelatedExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "public/orders.yaml", "columns: []\n")
	writeFile(t, root, "public/README.md", "ignored")

	src := discovery.NewLocalSource(root)
	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
}

type fakeLister struct {
	keys []string
}

func (f *fakeLister) List(context.Context, string, string) ([]string, error) {
	return f.keys, nil
}

func TestS3SourceGroupsBySchemaAndStem(t *testing.T) {
	lister := &fakeLister{keys: []string{
		"exports/public/orders.yaml",
		"exports/public/orders.sql",
		"exports/public/users.yaml",
		"exports/public/README.md",
	}}
	src := discovery.NewS3Source("bucket/exports", lister)

	found, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "orders", found[0].TargetTableName.Table)
	assert.Equal(t, "bucket", found[0].Netloc)
	assert.Equal(t, "users", found[1].TargetTableName.Table)
}

func TestS3SourceRejectsMissingSlash(t *testing.T) {
	src := discovery.NewS3Source("bucket-without-slash", &fakeLister{})
	_, err := src.Discover(context.Background())
	require.Error(t, err)
}

func TestDiscoverAllSkipsUnknownSourceType(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "public/orders.yaml", "columns: []\n")

	paths := []discovery.PathConfig{
		{Type: discovery.SourceTypeLocal, Path: root},
		{Type: "ftp", Path: "irrelevant"},
	}
	found, err := discovery.DiscoverAll(context.Background(), testLogger(), paths, &fakeLister{})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestDiscoverAllConcatenatesSources(t *testing.T) {
	rootA := t.TempDir()
	writeFile(t, rootA, "public/orders.yaml", "columns: []\n")
	rootB := t.TempDir()
	writeFile(t, rootB, "public/users.yaml", "columns: []\n")

	paths := []discovery.PathConfig{
		{Type: discovery.SourceTypeLocal, Path: rootA},
		{Type: discovery.SourceTypeLocal, Path: rootB},
	}
	found, err := discovery.DiscoverAll(context.Background(), testLogger(), paths, &fakeLister{})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
