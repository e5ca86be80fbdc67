// Package schema parses a YAML schema definition into pkg/schema.Schema and
// builds the handler dependency DAG used by the scheduler.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

// yamlSchema mirrors the on-disk shape: a map of table/enum name to its
// definition, disambiguated by the presence of "values" (enum) vs
// "columns" (table).
type yamlSchema map[string]yamlEntry

type yamlEntry struct {
	// Table shape.
	ID      string            `yaml:"id"`
	Columns map[string]string `yaml:"columns"`

	// Enum shape.
	Values []string `yaml:"values"`
}

// LoadFile parses a YAML schema file into a validated pkg/schema.Schema.
func LoadFile(path string) (pkgschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgschema.Schema{}, fmt.Errorf("schema: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML schema bytes into a validated pkg/schema.Schema.
func Parse(data []byte) (pkgschema.Schema, error) {
	var raw yamlSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return pkgschema.Schema{}, fmt.Errorf("schema: invalid yaml: %w", err)
	}

	s := pkgschema.Schema{
		Tables: make(map[string]pkgschema.Table),
		Enums:  make(map[string]pkgschema.Enum),
	}

	// Enums are parsed first so table columns can reference them.
	for name, entry := range raw {
		if len(entry.Values) > 0 {
			s.Enums[name] = pkgschema.Enum{Name: name, Values: entry.Values}
		}
	}

	for name, entry := range raw {
		if len(entry.Values) > 0 {
			continue
		}
		table, err := parseTable(name, entry, s)
		if err != nil {
			return pkgschema.Schema{}, fmt.Errorf("schema: table %q: %w", name, err)
		}
		s.Tables[name] = table
	}

	if err := s.Validate(); err != nil {
		return pkgschema.Schema{}, err
	}

	return s, nil
}

func parseTable(name string, entry yamlEntry, s pkgschema.Schema) (pkgschema.Table, error) {
	idColumn, err := parseColumn("id", entry.ID, s)
	if err != nil {
		return pkgschema.Table{}, fmt.Errorf("id: %w", err)
	}

	table := pkgschema.Table{Name: name, ID: idColumn}
	for colName, typeExpr := range entry.Columns {
		col, err := parseColumn(colName, typeExpr, s)
		if err != nil {
			return pkgschema.Table{}, fmt.Errorf("column %q: %w", colName, err)
		}
		table.Columns = append(table.Columns, col)
	}

	return table, nil
}
