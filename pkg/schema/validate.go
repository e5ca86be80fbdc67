package schema

import "fmt"

// idScalarKinds are the scalar types spec.md §3 allows for a table's id
// column.
var idScalarKinds = map[Scalar]bool{
	ScalarString: true,
	ScalarBigInt: true,
	ScalarInt:    true,
	ScalarBytes:  true,
}

// Validate checks every invariant spec.md §3 states for the user schema:
// name patterns, id column shape, list/reference exclusivity, reference
// type-matching, and enum member uniqueness.
func (s Schema) Validate() error {
	for tableName, table := range s.Tables {
		if tableName != table.Name {
			return fmt.Errorf("schema: table keyed %q has Name %q", tableName, table.Name)
		}
		if !ValidName(table.Name) {
			return fmt.Errorf("schema: invalid table name %q", table.Name)
		}
		if err := s.validateTable(table); err != nil {
			return fmt.Errorf("schema: table %q: %w", table.Name, err)
		}
	}

	for enumName, enum := range s.Enums {
		if enumName != enum.Name {
			return fmt.Errorf("schema: enum keyed %q has Name %q", enumName, enum.Name)
		}
		if !ValidName(enum.Name) {
			return fmt.Errorf("schema: invalid enum name %q", enum.Name)
		}
		if err := validateEnum(enum); err != nil {
			return fmt.Errorf("schema: enum %q: %w", enum.Name, err)
		}
	}

	return nil
}

func (s Schema) validateTable(table Table) error {
	if !ValidName(table.ID.Name) {
		return fmt.Errorf("invalid id column name %q", table.ID.Name)
	}
	if table.ID.Kind != KindScalar || !idScalarKinds[table.ID.Scalar] {
		return fmt.Errorf("id column must be a non-optional, non-list scalar of type string|bigint|int|bytes")
	}
	if table.ID.Optional || table.ID.List {
		return fmt.Errorf("id column %q must not be optional or list", table.ID.Name)
	}

	seen := map[string]bool{table.ID.Name: true}
	for _, col := range table.Columns {
		if !ValidName(col.Name) {
			return fmt.Errorf("invalid column name %q", col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column name %q", col.Name)
		}
		seen[col.Name] = true

		if err := s.validateColumn(table, col); err != nil {
			return fmt.Errorf("column %q: %w", col.Name, err)
		}
	}

	return nil
}

func (s Schema) validateColumn(table Table, col Column) error {
	if col.List && col.Kind == KindReference {
		return fmt.Errorf("column cannot be both list and reference")
	}

	switch col.Kind {
	case KindScalar:
		if !col.Scalar.IsValid() {
			return fmt.Errorf("unknown scalar type %q", col.Scalar)
		}
	case KindEnum:
		if _, ok := s.Enums[col.EnumName]; !ok {
			return fmt.Errorf("references undefined enum %q", col.EnumName)
		}
	case KindReference:
		// A reference column takes on the referenced table's id type by
		// construction (spec.md §3: "${OtherTable}.id"), so there is no
		// separate scalar to type-match against here — only that the
		// target exists and actually has a scalar id.
		target, ok := s.Tables[col.ReferenceTable]
		if !ok {
			return fmt.Errorf("references undefined table %q", col.ReferenceTable)
		}
		if target.ID.Kind != KindScalar {
			return fmt.Errorf("referenced table %q has a non-scalar id", col.ReferenceTable)
		}
	default:
		return fmt.Errorf("unknown column kind %q", col.Kind)
	}

	return nil
}

func validateEnum(enum Enum) error {
	if len(enum.Values) == 0 {
		return fmt.Errorf("enum must have at least one value")
	}
	seen := make(map[string]bool, len(enum.Values))
	for _, v := range enum.Values {
		if seen[v] {
			return fmt.Errorf("duplicate enum value %q", v)
		}
		seen[v] = true
	}
	return nil
}
