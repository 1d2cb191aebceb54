// Package manifest writes the small JSON document that tells the warehouse
// loader which data files constitute one relation's load.
package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dwops/etl-core/internal/collab"
	"github.com/dwops/etl-core/internal/etlerrors"
	"github.com/dwops/etl-core/internal/relation"
)

// LoadManifest is the wire format consumed by the warehouse loader.
type LoadManifest struct {
	Entries []LoadManifestEntry `json:"entries"`
}

// LoadManifestEntry names one mandatory data file.
type LoadManifestEntry struct {
	URL       string `json:"url"`
	Mandatory bool   `json:"mandatory"`
}

// successSentinel is the file a source-extraction tool drops once it has
// finished writing every data file under a prefix.
const successSentinel = "_SUCCESS"

// Writer builds and uploads load manifests for successfully extracted
// relations.
type Writer struct {
	Blob    collab.Blob
	Log     *slog.Logger
	DryRun  bool
	// WaitTimeout bounds how long Write blocks on the _SUCCESS sentinel
	// when the caller asks it to wait. The upstream behavior this was
	// grounded on left this unbounded; an explicit timeout is safer for a
	// batch job that must eventually give up and report failure.
	WaitTimeout time.Duration
}

// NewWriter returns a Writer with a 15 minute default wait timeout.
func NewWriter(blob collab.Blob, log *slog.Logger) *Writer {
	return &Writer{Blob: blob, Log: log, WaitTimeout: 15 * time.Minute}
}

// Write probes for the _SUCCESS sentinel, lists and filters the data files
// under sourcePrefix, and uploads the resulting manifest to rel's computed
// manifest path.
func (w *Writer) Write(ctx context.Context, rel *relation.RelationDescription, sourceBucket, sourcePrefix string, wait bool) error {
	sentinelKey := path.Join(sourcePrefix, successSentinel)

	present, err := w.probeSentinel(ctx, sourceBucket, sentinelKey, wait)
	if err != nil {
		return err
	}
	if !present {
		if w.DryRun {
			w.Log.Warn("success sentinel missing, proceeding in dry-run", slog.String("key", sentinelKey))
		} else {
			return etlerrors.Wrapf(etlerrors.ErrMissingCSVFiles, "success sentinel %q never appeared", sentinelKey)
		}
	}

	keys, err := w.Blob.List(ctx, sourceBucket, sourcePrefix)
	if err != nil {
		return fmt.Errorf("list data files under %q: %w", sourcePrefix, err)
	}

	files := filterDataFiles(keys)
	sort.Strings(files)

	if len(files) == 0 {
		if w.DryRun {
			w.Log.Warn("no data files found for manifest", slog.String("prefix", sourcePrefix))
		} else {
			return etlerrors.Wrapf(etlerrors.ErrMissingCSVFiles, "no data files under %q", sourcePrefix)
		}
	}

	doc := LoadManifest{Entries: make([]LoadManifestEntry, len(files))}
	for i, key := range files {
		doc.Entries[i] = LoadManifestEntry{URL: fmt.Sprintf("s3://%s/%s", sourceBucket, key), Mandatory: true}
	}

	if w.DryRun {
		w.Log.Info("dry-run: would write manifest",
			slog.String("relation", rel.Identifier()),
			slog.Int("entries", len(doc.Entries)))
		return nil
	}

	if err := w.Blob.PutJSON(ctx, rel.BucketName(), rel.ManifestFileName(), doc); err != nil {
		return fmt.Errorf("upload manifest for %q: %w", rel.Identifier(), err)
	}
	return nil
}

func (w *Writer) probeSentinel(ctx context.Context, bucket, key string, wait bool) (bool, error) {
	if !wait || w.DryRun {
		_, ok, err := w.Blob.GetLastModified(ctx, bucket, key, false)
		return ok, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.WaitTimeout)
	defer cancel()

	_, ok, err := w.Blob.GetLastModified(waitCtx, bucket, key, true)
	if err != nil {
		if waitCtx.Err() != nil {
			return false, etlerrors.Wrapf(etlerrors.ErrMissingCSVFiles, "timed out waiting for %q", key)
		}
		return false, err
	}
	return ok, nil
}

// filterDataFiles keeps only keys that look like extracted part files.
func filterDataFiles(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.Contains(k, "part") && strings.HasSuffix(k, ".gz") {
			out = append(out, k)
		}
	}
	return out
}
