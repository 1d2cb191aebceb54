// Package relation implements the lazy-loading relation handle: TableName,
// TableFileSet, TableDesign and RelationDescription.
package relation

import "fmt"

// TableName is a qualified, immutable relation identifier (schema, table).
// Equality is case-sensitive; Identifier is the "<schema>.<table>" primary
// key used everywhere else in the system.
type TableName struct {
	Schema string
	Table  string
}

// Identifier returns the "<schema>.<table>" primary-key form.
func (t TableName) Identifier() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Table)
}

func (t TableName) String() string {
	return t.Identifier()
}

// Reserved source_name tags marking a relation as computed rather than
// sourced from an upstream table.
const (
	SourceNameCTAS = "CTAS"
	SourceNameView = "VIEW"
)

// ReservedCatalogPrefix marks a dependency identifier as a Postgres/Redshift
// catalog dependency: "pg_catalog" as its leading segment.
const ReservedCatalogPrefix = "pg_catalog"

// TableFileSet is an opaque record discovered from the local filesystem or
// an object store. The *discovered* manifest file name may be empty even
// when a relation later computes one.
type TableFileSet struct {
	Scheme           string // "s3" or "file"
	Netloc           string // bucket, or empty for "file"
	Path             string // prefix
	DesignFileName   string // optional
	SQLFileName      string // optional
	ManifestFileName string // optional: discovered manifest, distinct from computed
	SourcePathName   string
	TargetTableName  TableName
	Files            []string
}

// Column describes one column entry in a table design.
type Column struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Skipped    bool   `yaml:"skipped,omitempty" json:"skipped,omitempty"`
}

// Constraints holds the optional single-column primary key.
type Constraints struct {
	PrimaryKey []string `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
}

// TableDesign is the parsed descriptor for one relation.
type TableDesign struct {
	SourceName   string      `yaml:"source_name" json:"source_name"`
	Columns      []Column    `yaml:"columns" json:"columns"`
	Constraints  Constraints `yaml:"constraints" json:"constraints"`
	DependsOn    []string    `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	UnloadTarget string      `yaml:"unload_target,omitempty" json:"unload_target,omitempty"`
	// SourceTableName overrides the upstream table identifier used to build
	// the extraction SELECT, as "<schema>.<table>". Empty means the
	// upstream table has the same qualified name as the target.
	SourceTableName string `yaml:"source_table_name,omitempty" json:"source_table_name,omitempty"`
}
