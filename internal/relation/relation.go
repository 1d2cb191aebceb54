package relation

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/dwops/etl-core/internal/etlerrors"
)

// ObjectGetter is the narrow slice of the Blob collaborator that
// RelationDescription needs to lazily fetch a table design or query file
// from an object store. Any concrete Blob implementation (see
// internal/collab) satisfies this structurally.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// onceField is a set-once-after-construction value (design note: "Lazy
// fields"). Guarded by a mutex rather than sync.Once because the value is
// computed lazily from an error-returning loader.
type onceField[T any] struct {
	mu  sync.Mutex
	set bool
	val T
}

func (f *onceField[T]) get() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.set
}

func (f *onceField[T]) setOnce(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		f.val = v
		f.set = true
	}
}

// RelationDescription bundles a TableFileSet with lazily-loaded TableDesign
// and SQL query text. Constructed once per discovered file set;
// immutable except for its three deferred fields, each of which is set
// exactly once.
type RelationDescription struct {
	fileSet TableFileSet
	getter  ObjectGetter // nil when bucketName is empty (local filesystem)

	bucketName       string
	prefix           string
	manifestComputed string // always present: "<prefix>/data/<source_path_name>.manifest"
	hasManifest      bool

	design   onceField[TableDesign]
	query    onceField[string]
	required onceField[bool]
}

// New builds a RelationDescription from a discovered file set. getter is
// used to fetch the design/query file when the file set lives on an object
// store (Scheme == "s3"); it is ignored for local file sets.
func New(fileSet TableFileSet, getter ObjectGetter) *RelationDescription {
	r := &RelationDescription{
		fileSet: fileSet,
		getter:  getter,
	}
	if fileSet.Scheme == "s3" {
		r.bucketName = fileSet.Netloc
	}
	r.prefix = fileSet.Path
	r.manifestComputed = path.Join(fileSet.Path, "data", fileSet.SourcePathName+".manifest")
	r.hasManifest = fileSet.ManifestFileName != ""
	return r
}

// Identifier is the relation's primary key: "<schema>.<table>".
func (r *RelationDescription) Identifier() string { return r.fileSet.TargetTableName.Identifier() }

func (r *RelationDescription) String() string { return r.Identifier() }

// TargetTableName returns the relation's qualified destination name.
func (r *RelationDescription) TargetTableName() TableName { return r.fileSet.TargetTableName }

// Forwarded file-set accessors (design note: "Dynamic attribute
// pass-through"). The Python original exposes these via __getattr__
// delegation to the file set; here each is an explicit method.
func (r *RelationDescription) DesignFileName() string   { return r.fileSet.DesignFileName }
func (r *RelationDescription) SQLFileName() string      { return r.fileSet.SQLFileName }
func (r *RelationDescription) DiscoveredManifestFileName() string {
	return r.fileSet.ManifestFileName
}
func (r *RelationDescription) SourcePathName() string { return r.fileSet.SourcePathName }
func (r *RelationDescription) Files() []string        { return r.fileSet.Files }

// SourceName is the upstream source this relation is extracted from: the
// schema portion of its target table name. Extraction groups relations by
// this value, one task pool slot per distinct source.
func (r *RelationDescription) SourceName() string { return r.fileSet.TargetTableName.Schema }

// BucketName is the object-store bucket backing this relation, or "" when
// the relation lives on the local filesystem.
func (r *RelationDescription) BucketName() string { return r.bucketName }

// Prefix is the object-store (or local) path prefix for this relation.
func (r *RelationDescription) Prefix() string { return r.prefix }

// ManifestFileName is the *computed* manifest path, always present
// regardless of whether one was discovered.
func (r *RelationDescription) ManifestFileName() string { return r.manifestComputed }

// HasManifest reports whether the file set carried a discovered manifest.
func (r *RelationDescription) HasManifest() bool { return r.hasManifest }

// TableDesign fetches (and memoizes) the relation's design document.
func (r *RelationDescription) TableDesign(ctx context.Context) (TableDesign, error) {
	if d, ok := r.design.get(); ok {
		return d, nil
	}
	raw, err := r.readFile(ctx, r.fileSet.DesignFileName)
	if err != nil {
		return TableDesign{}, etlerrors.Wrapf(fmt.Errorf("%w: %w", etlerrors.ErrDesignUnavailable, err),
			"load table design for %q", r.Identifier())
	}
	var d TableDesign
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return TableDesign{}, etlerrors.Wrapf(fmt.Errorf("%w: %w", etlerrors.ErrDesignUnavailable, err),
			"parse table design for %q", r.Identifier())
	}
	r.design.setOnce(d)
	cached, _ := r.design.get()
	return cached, nil
}

// QueryStmt fetches (and memoizes) the relation's SQL query text, with
// trailing whitespace and a single trailing ';' stripped (along with any
// whitespace left in front of that ';').
func (r *RelationDescription) QueryStmt(ctx context.Context) (string, error) {
	if q, ok := r.query.get(); ok {
		return q, nil
	}
	if r.fileSet.SQLFileName == "" {
		return "", etlerrors.Wrapf(etlerrors.ErrMissingQuery, "relation %q", r.Identifier())
	}
	raw, err := r.readFile(ctx, r.fileSet.SQLFileName)
	if err != nil {
		return "", etlerrors.Wrapf(fmt.Errorf("%w: %w", etlerrors.ErrDesignUnavailable, err),
			"load query for %q", r.Identifier())
	}
	stmt := strings.TrimRightFunc(string(raw), unicode.IsSpace)
	stmt = strings.TrimRightFunc(strings.TrimSuffix(stmt, ";"), unicode.IsSpace)
	r.query.setOnce(stmt)
	cached, _ := r.query.get()
	return cached, nil
}

func (r *RelationDescription) readFile(ctx context.Context, name string) ([]byte, error) {
	if r.bucketName != "" {
		if r.getter == nil {
			return nil, fmt.Errorf("no object getter configured for bucket %q", r.bucketName)
		}
		return r.getter.Get(ctx, r.bucketName, name)
	}
	return os.ReadFile(name) //nolint:gosec // name comes from discovered file sets, not user input
}

// SetRequired is called exactly once by the driver applying a RequiredSet
// (design note: "Mutation of is_required from outside").
func (r *RelationDescription) SetRequired(v bool) {
	r.required.setOnce(v)
}

// IsRequired returns whether RequiredSelector marked this relation as
// required. Reading it before RequiredSelector has run is a programmer
// error (ErrRequiredStateUnknown).
func (r *RelationDescription) IsRequired() (bool, error) {
	v, ok := r.required.get()
	if !ok {
		return false, etlerrors.Wrapf(etlerrors.ErrRequiredStateUnknown, "relation %q", r.Identifier())
	}
	return v, nil
}

// Dependencies returns the set of relation identifiers this relation
// declares via depends_on.
func (r *RelationDescription) Dependencies(ctx context.Context) (map[string]struct{}, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]struct{}, len(d.DependsOn))
	for _, id := range d.DependsOn {
		deps[id] = struct{}{}
	}
	return deps, nil
}

// IsCTASRelation reports whether the design's source_name is "CTAS".
func (r *RelationDescription) IsCTASRelation(ctx context.Context) (bool, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return false, err
	}
	return d.SourceName == SourceNameCTAS, nil
}

// IsViewRelation reports whether the design's source_name is "VIEW".
func (r *RelationDescription) IsViewRelation(ctx context.Context) (bool, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return false, err
	}
	return d.SourceName == SourceNameView, nil
}

// IsUnloadable reports whether the design declares an unload_target.
func (r *RelationDescription) IsUnloadable(ctx context.Context) (bool, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return false, err
	}
	return d.UnloadTarget != "", nil
}

// UnloadTarget returns the design's unload_target, if any.
func (r *RelationDescription) UnloadTarget(ctx context.Context) (string, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return "", err
	}
	return d.UnloadTarget, nil
}

// UnquotedColumns lists the non-skipped column names in design order.
func (r *RelationDescription) UnquotedColumns(ctx context.Context) ([]string, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if !c.Skipped {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

// Columns lists the delimited (double-quoted) form of UnquotedColumns.
func (r *RelationDescription) Columns(ctx context.Context) ([]string, error) {
	names, err := r.UnquotedColumns(ctx)
	if err != nil {
		return nil, err
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return quoted, nil
}

// GetColumnsWithCasts emits, in column order, "<expression> AS \"<name>\""
// for each non-skipped column with an expression, else "\"<name>\"".
func (r *RelationDescription) GetColumnsWithCasts(ctx context.Context) ([]string, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return nil, err
	}
	selected := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.Skipped {
			continue
		}
		if c.Expression != "" {
			selected = append(selected, fmt.Sprintf(`%s AS "%s"`, c.Expression, c.Name))
		} else {
			selected = append(selected, fmt.Sprintf(`"%s"`, c.Name))
		}
	}
	return selected, nil
}

// FindPrimaryKey returns the first (only) element of constraints.primary_key,
// if present.
func (r *RelationDescription) FindPrimaryKey(ctx context.Context) (string, bool, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return "", false, err
	}
	if len(d.Constraints.PrimaryKey) == 0 {
		return "", false, nil
	}
	return d.Constraints.PrimaryKey[0], true, nil
}

// FindPartitionKey returns the primary key column to use as a Sqoop
// --split-by key, if the design declares one.
func (r *RelationDescription) FindPartitionKey(ctx context.Context) (string, bool, error) {
	return r.FindPrimaryKey(ctx)
}

// SourceTableName returns the upstream table identifier to select from: the
// design's source_table_name override if present, else the relation's own
// target table name.
func (r *RelationDescription) SourceTableName(ctx context.Context) (TableName, error) {
	d, err := r.TableDesign(ctx)
	if err != nil {
		return TableName{}, err
	}
	if d.SourceTableName == "" {
		return r.fileSet.TargetTableName, nil
	}
	schema, table, ok := strings.Cut(d.SourceTableName, ".")
	if !ok {
		return TableName{}, fmt.Errorf("relation %q: invalid source_table_name %q, want \"schema.table\"", r.Identifier(), d.SourceTableName)
	}
	return TableName{Schema: schema, Table: table}, nil
}
