package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgschema "github.com/ponder-go/ponder/pkg/schema"
)

const sampleYAML = `
TransferStatus:
  values: [Pending, Settled]

Account:
  id: string
  columns:
    balance: bigint

Transfer:
  id: string
  columns:
    from: ref:Account
    to: ref:Account
    amount: bigint
    memo: string optional
    status: enum:TransferStatus
`

func TestParseBuildsTablesAndEnums(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.Contains(t, s.Tables, "Account")
	require.Contains(t, s.Tables, "Transfer")
	require.Contains(t, s.Enums, "TransferStatus")

	transfer := s.Tables["Transfer"]
	from, ok := transfer.ColumnByName("from")
	require.True(t, ok)
	require.Equal(t, pkgschema.KindReference, from.Kind)
	require.Equal(t, "Account", from.ReferenceTable)

	memo, ok := transfer.ColumnByName("memo")
	require.True(t, ok)
	require.True(t, memo.Optional)
}

func TestParseRejectsUnknownBaseType(t *testing.T) {
	_, err := Parse([]byte(`
Account:
  id: string
  columns:
    weird: not_a_type
`))
	require.Error(t, err)
}

func TestParseRejectsListReference(t *testing.T) {
	_, err := Parse([]byte(`
Account:
  id: string
Transfer:
  id: string
  columns:
    parties: ref:Account list
`))
	require.Error(t, err)
}
