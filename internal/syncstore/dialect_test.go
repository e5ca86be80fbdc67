package syncstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDialectResolvesKnownKinds(t *testing.T) {
	d, err := NewDialect("sqlite")
	require.NoError(t, err)
	require.Equal(t, "sqlite3", d.DriverName())
	require.Equal(t, "?", d.Placeholder(1))

	d, err = NewDialect("postgres")
	require.NoError(t, err)
	require.Equal(t, "postgres", d.DriverName())
	require.Equal(t, "$3", d.Placeholder(3))
}

func TestNewDialectRejectsUnknownKind(t *testing.T) {
	_, err := NewDialect("oracle")
	require.Error(t, err)
}
