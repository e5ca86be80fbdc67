package schema

import (
	"fmt"
	"strings"

	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

// parseColumn parses a type expression like "bigint", "string optional",
// "ref:Account", or "enum:TransferStatus list" into a pkg/schema.Column.
// Grammar:
//
//	typeExpr  := base modifier*
//	base      := scalarName | "ref:" TableName | "enum:" EnumName
//	modifier  := "optional" | "list"
func parseColumn(name, typeExpr string, s pkgschema.Schema) (pkgschema.Column, error) {
	if !pkgschema.ValidName(name) {
		return pkgschema.Column{}, fmt.Errorf("invalid column name %q", name)
	}

	fields := strings.Fields(strings.TrimSpace(typeExpr))
	if len(fields) == 0 {
		return pkgschema.Column{}, fmt.Errorf("empty type expression")
	}

	col := pkgschema.Column{Name: name}
	base := fields[0]

	switch {
	case strings.HasPrefix(base, "ref:"):
		col.Kind = pkgschema.KindReference
		col.ReferenceTable = strings.TrimPrefix(base, "ref:")
	case strings.HasPrefix(base, "enum:"):
		col.Kind = pkgschema.KindEnum
		col.EnumName = strings.TrimPrefix(base, "enum:")
	default:
		scalar := pkgschema.Scalar(base)
		if !scalar.IsValid() {
			return pkgschema.Column{}, fmt.Errorf("unknown base type %q", base)
		}
		col.Kind = pkgschema.KindScalar
		col.Scalar = scalar
	}

	for _, modifier := range fields[1:] {
		switch modifier {
		case "optional":
			col.Optional = true
		case "list":
			col.List = true
		default:
			return pkgschema.Column{}, fmt.Errorf("unknown modifier %q", modifier)
		}
	}

	if col.List && col.Kind == pkgschema.KindReference {
		return pkgschema.Column{}, fmt.Errorf("reference columns cannot be list")
	}

	return col, nil
}
