package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validTransferSchema() Schema {
	return Schema{
		Tables: map[string]Table{
			"Account": {
				Name: "Account",
				ID:   Column{Name: "id", Kind: KindScalar, Scalar: ScalarString},
				Columns: []Column{
					{Name: "balance", Kind: KindScalar, Scalar: ScalarBigInt},
				},
			},
			"Transfer": {
				Name: "Transfer",
				ID:   Column{Name: "id", Kind: KindScalar, Scalar: ScalarString},
				Columns: []Column{
					{Name: "from", Kind: KindReference, ReferenceTable: "Account"},
					{Name: "to", Kind: KindReference, ReferenceTable: "Account"},
					{Name: "amount", Kind: KindScalar, Scalar: ScalarBigInt},
					{Name: "status", Kind: KindEnum, EnumName: "TransferStatus"},
				},
			},
		},
		Enums: map[string]Enum{
			"TransferStatus": {Name: "TransferStatus", Values: []string{"Pending", "Settled"}},
		},
	}
}

func TestValidateAcceptsWellFormedSchema(t *testing.T) {
	require.NoError(t, validTransferSchema().Validate())
}

func TestValidateRejectsNonScalarID(t *testing.T) {
	s := validTransferSchema()
	table := s.Tables["Account"]
	table.ID = Column{Name: "id", Kind: KindReference, ReferenceTable: "Transfer"}
	s.Tables["Account"] = table

	require.Error(t, s.Validate())
}

func TestValidateRejectsListReferenceColumn(t *testing.T) {
	s := validTransferSchema()
	table := s.Tables["Transfer"]
	table.Columns[0].List = true
	s.Tables["Transfer"] = table

	require.Error(t, s.Validate())
}

func TestValidateRejectsUndefinedReferenceTarget(t *testing.T) {
	s := validTransferSchema()
	table := s.Tables["Transfer"]
	table.Columns[0].ReferenceTable = "Nonexistent"
	s.Tables["Transfer"] = table

	require.Error(t, s.Validate())
}

func TestValidateRejectsInvalidColumnName(t *testing.T) {
	s := validTransferSchema()
	table := s.Tables["Account"]
	table.Columns = append(table.Columns, Column{Name: "bad-name", Kind: KindScalar, Scalar: ScalarInt})
	s.Tables["Account"] = table

	require.Error(t, s.Validate())
}

func TestValidateRejectsDuplicateEnumValues(t *testing.T) {
	s := validTransferSchema()
	s.Enums["TransferStatus"] = Enum{Name: "TransferStatus", Values: []string{"Pending", "Pending"}}

	require.Error(t, s.Validate())
}
