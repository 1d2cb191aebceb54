package discovery

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dwops/etl-core/internal/relation"
)

// S3Lister is the narrow slice of the Blob collaborator S3Source needs.
type S3Lister interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3Source discovers file sets under an S3 prefix laid out the same way as
// LocalSource: <prefix>/<schema>/<table>.{yaml,sql,manifest}.
type S3Source struct {
	BucketAndPrefix string // "bucket/prefix"
	Lister          S3Lister
}

// NewS3Source returns an S3Source over bucketAndPrefix ("bucket/prefix").
func NewS3Source(bucketAndPrefix string, lister S3Lister) *S3Source {
	return &S3Source{BucketAndPrefix: bucketAndPrefix, Lister: lister}
}

func (s *S3Source) Name() string { return SourceTypeS3 }

func (s *S3Source) Discover(ctx context.Context) ([]relation.TableFileSet, error) {
	bucket, prefix, ok := strings.Cut(s.BucketAndPrefix, "/")
	if !ok {
		return nil, fmt.Errorf("s3 source %q must be \"bucket/prefix\"", s.BucketAndPrefix)
	}

	keys, err := s.Lister.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}

	type key struct{ schema, table string }
	groups := make(map[key]*relation.TableFileSet)
	var order []key

	for _, k := range keys {
		rel := strings.TrimPrefix(strings.TrimPrefix(k, prefix), "/")
		ext := path.Ext(rel)
		lowerExt := strings.ToLower(ext)
		if lowerExt != ".yaml" && lowerExt != ".yml" && lowerExt != ".sql" && lowerExt != ".manifest" {
			continue
		}

		segments := strings.Split(rel, "/")
		if len(segments) < 2 {
			continue
		}
		schema := segments[0]
		stem := strings.TrimSuffix(path.Base(rel), ext)
		gk := key{schema: schema, table: stem}

		fs, ok := groups[gk]
		if !ok {
			fs = &relation.TableFileSet{
				Scheme:          "s3",
				Netloc:          bucket,
				Path:            path.Dir(k),
				TargetTableName: relation.TableName{Schema: schema, Table: stem},
				SourcePathName:  stem,
			}
			groups[gk] = fs
			order = append(order, gk)
		}

		fs.Files = append(fs.Files, k)
		switch lowerExt {
		case ".yaml", ".yml":
			fs.DesignFileName = k
		case ".sql":
			fs.SQLFileName = k
		case ".manifest":
			fs.ManifestFileName = k
		}
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
