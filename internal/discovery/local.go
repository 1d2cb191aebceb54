package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dwops/etl-core/internal/relation"
)

// LocalSource discovers file sets under a local directory tree laid out as
// <root>/<schema>/<table>.{yaml,sql,manifest} — one design file, one
// optional query file, and one optional discovered manifest per table. The
// schema directory name doubles as the relation's source_name, the key
// ExtractorBase groups relations by.
type LocalSource struct {
	Root string
}

// NewLocalSource returns a LocalSource rooted at root.
func NewLocalSource(root string) *LocalSource {
	return &LocalSource{Root: root}
}

func (l *LocalSource) Name() string { return SourceTypeLocal }

// Discover walks Root and groups files by schema/table stem.
func (l *LocalSource) Discover(ctx context.Context) ([]relation.TableFileSet, error) {
	type key struct{ schema, table string }
	groups := make(map[key]*relation.TableFileSet)
	var order []key

	err := filepath.Walk(l.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(p))
		if ext != ".yaml" && ext != ".yml" && ext != ".sql" && ext != ".manifest" {
			return nil
		}

		relPath, err := filepath.Rel(l.Root, p)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(relPath), "/")
		if len(segments) < 2 {
			return fmt.Errorf("path %q does not match <schema>/<table>.ext layout", relPath)
		}
		schema := segments[0]
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		k := key{schema: schema, table: stem}

		fs, ok := groups[k]
		if !ok {
			fs = &relation.TableFileSet{
				Scheme:          "file",
				Path:            filepath.Dir(p),
				TargetTableName: relation.TableName{Schema: schema, Table: stem},
				SourcePathName:  stem,
			}
			groups[k] = fs
			order = append(order, k)
		}

		fs.Files = append(fs.Files, p)
		switch ext {
		case ".yaml", ".yml":
			fs.DesignFileName = p
		case ".sql":
			fs.SQLFileName = p
		case ".manifest":
			fs.ManifestFileName = p
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", l.Root, err)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].schema != order[j].schema {
			return order[i].schema < order[j].schema
		}
		return order[i].table < order[j].table
	})

	out := make([]relation.TableFileSet, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}
