// Package sqoop implements the extraction Strategy that shells out to
// Apache Sqoop to pull one table's data into the object store.
package sqoop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dwops/etl-core/internal/collab"
	"github.com/dwops/etl-core/internal/config"
	"github.com/dwops/etl-core/internal/etlerrors"
	"github.com/dwops/etl-core/internal/manifest"
	"github.com/dwops/etl-core/internal/partition"
	"github.com/dwops/etl-core/internal/relation"
)

// csvPathName is where extracted CSV/gzip part files land, relative to a
// relation's object-store prefix.
const csvPathName = "csv"

// connectionParams is the fixed contents of the Sqoop connection-params
// side file: force SSL without validating the server certificate, matching
// how this system's upstream sources are reached.
const connectionParams = "ssl = true\nsslfactory = org.postgresql.ssl.NonValidatingFactory\n"

// Strategy runs Sqoop import jobs. A zero value is not usable; construct
// with New.
type Strategy struct {
	Blob       collab.Blob
	SQL        *collab.SQL
	Process    *collab.Process
	Manifest   *manifest.Writer
	Log        *slog.Logger

	// Executable is the sqoop binary (or, for a Strategy built by NewFake, a
	// command that always fails — used to exercise the driver off-cluster).
	Executable string

	ScratchDir    string
	MaxPartitions int64
	DryRun        bool
}

// New builds a Sqoop-backed Strategy.
func New(blob collab.Blob, sqlColl *collab.SQL, proc *collab.Process, manifestWriter *manifest.Writer, log *slog.Logger, scratchDir string, maxPartitions int64, dryRun bool) *Strategy {
	return &Strategy{
		Blob:          blob,
		SQL:           sqlColl,
		Process:       proc,
		Manifest:      manifestWriter,
		Log:           log,
		Executable:    "sqoop",
		ScratchDir:    scratchDir,
		MaxPartitions: maxPartitions,
		DryRun:        dryRun,
	}
}

// NewFake builds a Strategy whose subprocess invocation always fails,
// useful for exercising the extraction driver without a real Sqoop/EMR
// cluster available.
func NewFake(blob collab.Blob, sqlColl *collab.SQL, proc *collab.Process, manifestWriter *manifest.Writer, log *slog.Logger, scratchDir string, maxPartitions int64, dryRun bool) *Strategy {
	s := New(blob, sqlColl, proc, manifestWriter, log, scratchDir, maxPartitions, dryRun)
	s.Executable = "/usr/bin/false"
	return s
}

// OptionsInfo describes this strategy for monitoring purposes.
func (s *Strategy) OptionsInfo() string { return "with-sqoop-extractor" }

// SourceInfo describes where data comes from, for monitoring purposes.
func (s *Strategy) SourceInfo(source config.DataWarehouseSchema) string {
	return fmt.Sprintf("%s (%s:%d/%s)", source.Name, source.DSN.Host, source.DSN.Port, source.DSN.Database)
}

// ExtractTable runs one Sqoop import for rel, sourced from source, and
// writes the resulting manifest on success. waitForManifest is forwarded to
// Manifest.Write to decide whether it blocks on the upstream _SUCCESS
// sentinel.
func (s *Strategy) ExtractTable(ctx context.Context, source config.DataWarehouseSchema, rel *relation.RelationDescription, waitForManifest bool) error {
	numMappers, err := s.determinePartitions(ctx, source, rel)
	if err != nil {
		return etlerrors.Runtime(fmt.Errorf("determine partitions for %q: %w", rel.Identifier(), err))
	}

	args, err := s.buildOptions(ctx, source, rel, numMappers)
	if err != nil {
		return etlerrors.Runtime(fmt.Errorf("build sqoop options for %q: %w", rel.Identifier(), err))
	}

	optionsFile, err := s.writeOptionsFile(args)
	if err != nil {
		return etlerrors.Runtime(fmt.Errorf("write sqoop options file: %w", err))
	}

	csvPrefix := path.Join(rel.Prefix(), csvPathName)
	if err := s.preClean(ctx, rel.BucketName(), csvPrefix); err != nil {
		return etlerrors.Runtime(fmt.Errorf("pre-clean %q: %w", csvPrefix, err))
	}

	if err := s.runSqoop(ctx, optionsFile); err != nil {
		return etlerrors.Runtime(fmt.Errorf("%w: %w", etlerrors.ErrSqoopExecution, err))
	}

	if s.DryRun {
		s.Log.Info("dry-run: skipping manifest write", slog.String("relation", rel.Identifier()))
		return nil
	}
	if err := s.Manifest.Write(ctx, rel, rel.BucketName(), csvPrefix, waitForManifest); err != nil {
		return etlerrors.Runtime(err)
	}
	return nil
}

func (s *Strategy) determinePartitions(ctx context.Context, source config.DataWarehouseSchema, rel *relation.RelationDescription) (int, error) {
	_, hasKey, err := rel.FindPartitionKey(ctx)
	if err != nil {
		return 0, err
	}
	if !hasKey {
		return 1, nil
	}

	conn, err := s.SQL.Connect(ctx, "postgres", source.DSN.ConnString(), collab.ConnectOptions{ReadOnly: true})
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	sourceTable, err := rel.SourceTableName(ctx)
	if err != nil {
		return 0, err
	}
	size, err := s.SQL.FetchTableSize(ctx, conn, sourceTable.Identifier())
	if err != nil {
		return 0, err
	}

	return partition.Choose(size, s.MaxPartitions), nil
}

// buildOptions builds the ordered Sqoop argument vector. Token quoting
// mirrors the upstream tool's quirks bit-exact: most tokens are wrapped in
// double quotes by this function, several delimiter tokens are passed as
// single-quoted literals with backslash escapes, and --query is left
// completely unquoted (quoting it breaks the generated SELECT).
func (s *Strategy) buildOptions(ctx context.Context, source config.DataWarehouseSchema, rel *relation.RelationDescription, numMappers int) ([]string, error) {
	passwordFile, err := s.writePasswordFile(source.DSN.Password)
	if err != nil {
		return nil, err
	}
	paramsFile, err := s.writeConnectionParamsFile()
	if err != nil {
		return nil, err
	}

	sourceTable, err := rel.SourceTableName(ctx)
	if err != nil {
		return nil, err
	}
	columns, err := rel.GetColumnsWithCasts(ctx)
	if err != nil {
		return nil, err
	}
	selectStmt := fmt.Sprintf("SELECT %s FROM %s WHERE $CONDITIONS", strings.Join(columns, ", "), sourceTable.Identifier())

	q := func(tok string) string { return `"` + tok + `"` }

	args := []string{
		"import",
		"--connect", q(source.DSN.JDBCURL()),
		"--driver", q("org.postgresql.Driver"),
		"--connection-param-file", q(paramsFile),
		"--username", q(source.DSN.User),
		"--password-file", `"file://` + passwordFile + `"`,
		"--verbose",
		"--fields-terminated-by", q(","),
		"--lines-terminated-by", `'\n'`,
		"--enclosed-by", `'"'`,
		"--escaped-by", `'\\'`,
		"--null-string", `'\\N'`,
		"--null-non-string", `'\\N'`,
		"--target-dir", q(fmt.Sprintf("s3n://%s/%s/%s", rel.BucketName(), rel.Prefix(), csvPathName)),
		"--query", selectStmt,
		"--hive-drop-import-delims",
		"--compress",
	}

	key, hasKey, err := rel.FindPartitionKey(ctx)
	if err != nil {
		return nil, err
	}
	if hasKey {
		args = append(args, "--split-by", q(key), "--num-mappers", strconv.Itoa(numMappers))
	} else {
		args = append(args, "--num-mappers", "1")
	}

	return args, nil
}

func (s *Strategy) writePasswordFile(password string) (string, error) {
	if s.DryRun {
		s.Log.Info("dry-run: skipping password file")
		return "/tmp/never_used", nil
	}
	return s.writeScratchFile("pw_", password)
}

func (s *Strategy) writeConnectionParamsFile() (string, error) {
	if s.DryRun {
		s.Log.Info("dry-run: skipping connection params file")
		return "/tmp/never_used", nil
	}
	return s.writeScratchFile("cp_", connectionParams)
}

func (s *Strategy) writeOptionsFile(args []string) (string, error) {
	if s.DryRun {
		s.Log.Info("dry-run: skipping sqoop options file")
		return "/tmp/never_used", nil
	}
	return s.writeScratchFile("so_", strings.Join(args, "\n")+"\n")
}

func (s *Strategy) writeScratchFile(prefix, content string) (string, error) {
	if err := os.MkdirAll(s.ScratchDir, 0o750); err != nil {
		return "", fmt.Errorf("create scratch dir %q: %w", s.ScratchDir, err)
	}
	f, err := os.CreateTemp(s.ScratchDir, prefix)
	if err != nil {
		return "", fmt.Errorf("create scratch file under %q: %w", s.ScratchDir, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("write scratch file %q: %w", f.Name(), err)
	}
	return f.Name(), nil
}

func (s *Strategy) preClean(ctx context.Context, bucket, prefix string) error {
	keys, err := s.Blob.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if s.DryRun {
		s.Log.Info("dry-run: skipping deletion of existing csv files", slog.String("prefix", prefix))
		return nil
	}
	return s.Blob.Delete(ctx, bucket, keys)
}

func (s *Strategy) runSqoop(ctx context.Context, optionsFile string) error {
	args := []string{"--options-file", optionsFile}
	if s.DryRun {
		s.Log.Info("dry-run: skipping sqoop run", slog.String("executable", s.Executable))
		return nil
	}
	result, err := s.Process.Run(ctx, s.Executable, args, filepath.Dir(optionsFile))
	s.Log.Debug("sqoop finished", slog.Int("exit_code", result.ExitCode), slog.String("stdout", result.Stdout), slog.String("stderr", result.Stderr))
	if err != nil {
		return err
	}
	return nil
}
