package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTooManyResultsError(t *testing.T) {
	require.True(t, IsTooManyResultsError(errors.New("query returned more than 10000 results")))
	require.True(t, IsTooManyResultsError(errors.New("Query Returned More Than 5000 Results. Try narrowing")))
	require.False(t, IsTooManyResultsError(errors.New("connection refused")))
	require.False(t, IsTooManyResultsError(nil))
}

func TestParseSuggestedBlockRange(t *testing.T) {
	from, to, ok := ParseSuggestedBlockRange("query returned more than 10000 results. Try with this block range [0x1, 0x2710]")
	require.True(t, ok)
	require.Equal(t, uint64(1), from)
	require.Equal(t, uint64(10000), to)

	_, _, ok = ParseSuggestedBlockRange("no range here")
	require.False(t, ok)
}

func TestRetryableError(t *testing.T) {
	require.True(t, retryableError(errors.New("429 Too Many Requests")))
	require.True(t, retryableError(errors.New("unexpected EOF")))
	require.False(t, retryableError(errors.New("invalid argument")))
	require.False(t, retryableError(nil))
}
