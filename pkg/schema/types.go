// Package schema defines the user-facing schema types: tables, columns,
// enums, and the scalar type union a column's value is validated against.
package schema

import "regexp"

// nameExpr is the name validation pattern for tables, columns, and enums
// named in spec.md §3.
var nameExpr = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidName reports whether name matches the required table/column/enum
// name pattern.
func ValidName(name string) bool {
	return name != "" && nameExpr.MatchString(name)
}

// Scalar is the tagged union of column value types.
type Scalar string

const (
	ScalarString Scalar = "string"
	ScalarBigInt Scalar = "bigint"
	ScalarInt    Scalar = "int"
	ScalarFloat  Scalar = "float"
	ScalarBool   Scalar = "boolean"
	ScalarBytes  Scalar = "bytes"
)

// IsValid reports whether s is one of the known scalar kinds.
func (s Scalar) IsValid() bool {
	switch s {
	case ScalarString, ScalarBigInt, ScalarInt, ScalarFloat, ScalarBool, ScalarBytes:
		return true
	default:
		return false
	}
}

// ColumnKind distinguishes a plain scalar column from an enum or a
// reference to another table's id.
type ColumnKind string

const (
	KindScalar    ColumnKind = "scalar"
	KindEnum      ColumnKind = "enum"
	KindReference ColumnKind = "reference"
)

// Column is one field of a Table.
type Column struct {
	Name string

	Kind ColumnKind
	// Scalar is set when Kind == KindScalar.
	Scalar Scalar
	// EnumName is set when Kind == KindEnum, naming an entry in Schema.Enums.
	EnumName string
	// ReferenceTable is set when Kind == KindReference, naming the table
	// whose id this column points to ("${OtherTable}.id" in spec.md §3).
	ReferenceTable string

	Optional bool
	List     bool
}

// Table is a user-defined record type. Id is the mandatory primary column,
// always string|bigint|int|bytes, non-optional, non-list, non-reference.
type Table struct {
	Name    string
	ID      Column
	Columns []Column
}

// Enum is a named set of unique string values.
type Enum struct {
	Name   string
	Values []string
}

// Schema is the full set of user-defined tables and enums.
type Schema struct {
	Tables map[string]Table
	Enums  map[string]Enum
}

// ColumnByName returns a table's column (including its id column) by name.
func (t Table) ColumnByName(name string) (Column, bool) {
	if t.ID.Name == name {
		return t.ID, true
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// AllColumns returns the id column followed by the rest, in declaration order.
func (t Table) AllColumns() []Column {
	return append([]Column{t.ID}, t.Columns...)
}
