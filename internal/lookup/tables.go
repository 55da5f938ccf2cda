// Allowlisted reference tables for "database"-typed fields.
//
// The dashboard historically selected the reference table by interpolating a
// source-table name into SQL. Here the indirection is a closed enum: every
// allowed source maps to its table and (value, label) columns at compile
// time, and unknown names are rejected before any query is built.
package lookup

// Source identifies one of the reference tables a "database" field may
// resolve against.
type Source int

const (
	// SourceEntity resolves labels against the entities table. A match on
	// this source also drives the submission's owning entity.
	SourceEntity Source = iota
	// SourceUser resolves labels against the users reference table.
	SourceUser
	// SourceUniMapping resolves labels against the university-name mapping.
	SourceUniMapping
)

// sourceSpec pins the physical table and columns for a Source.
type sourceSpec struct {
	name        string
	table       string
	valueColumn string
	labelColumn string
}

var sourceSpecs = map[Source]sourceSpec{
	SourceEntity:     {name: "entity", table: "entities", valueColumn: "id", labelColumn: "name"},
	SourceUser:       {name: "user", table: "users", valueColumn: "id", labelColumn: "name"},
	SourceUniMapping: {name: "uni_mapping", table: "uni_mappings", valueColumn: "id", labelColumn: "uni_name"},
}

// ParseSource maps a stored source-table name to its Source. ok is false for
// anything outside the allowlist.
func ParseSource(name string) (Source, bool) {
	for s, spec := range sourceSpecs {
		if spec.name == name {
			return s, true
		}
	}
	return 0, false
}

// String returns the configuration name of the source ("entity", "user",
// "uni_mapping").
func (s Source) String() string { return sourceSpecs[s].name }

// Table returns the physical table name for the source.
func (s Source) Table() string { return sourceSpecs[s].table }

// ValueColumn returns the column whose value is stored in the response when
// a label resolves.
func (s Source) ValueColumn() string { return sourceSpecs[s].valueColumn }

// LabelColumn returns the column the submitted label is matched against.
func (s Source) LabelColumn() string { return sourceSpecs[s].labelColumn }
