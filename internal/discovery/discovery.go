// Package discovery finds table file sets (design, query and discovered
// manifest files) on the local filesystem or in an object store, grouping
// them by target table.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwops/etl-core/internal/relation"
)

// SourceType names a discovery source kind, matched against a run
// configuration's "type" field.
const (
	SourceTypeLocal = "local"
	SourceTypeS3    = "s3"
)

// PathConfig is one configured discovery root.
type PathConfig struct {
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path" json:"path"`
}

// FileSetSource discovers table file sets from one kind of backing store.
type FileSetSource interface {
	Name() string
	Discover(ctx context.Context) ([]relation.TableFileSet, error)
}

// DiscoverAll runs every configured source and concatenates their results,
// logging and skipping a source whose type isn't recognized rather than
// failing the whole run.
func DiscoverAll(ctx context.Context, log *slog.Logger, paths []PathConfig, lister S3Lister) ([]relation.TableFileSet, error) {
	var all []relation.TableFileSet

	for _, p := range paths {
		var source FileSetSource
		switch p.Type {
		case SourceTypeLocal:
			source = NewLocalSource(p.Path)
		case SourceTypeS3:
			source = NewS3Source(p.Path, lister)
		default:
			log.Warn("unknown file set source type, skipping", slog.String("type", p.Type))
			continue
		}

		found, err := source.Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover from %s source %q: %w", p.Type, p.Path, err)
		}
		all = append(all, found...)
	}

	return all, nil
}
