package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Checkpoint{
		Zero,
		Max,
		{BlockTimestamp: 1700000000, ChainID: 1, BlockNumber: 19000000, TransactionIndex: 12, EventIndex: 3},
		{BlockTimestamp: 1, ChainID: 8453, BlockNumber: 1, TransactionIndex: 0, EventIndex: 0},
	}

	for _, c := range cases {
		encoded := Encode(c)
		require.Len(t, encoded, EncodedLength)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	}
}

func TestCompareMatchesLexicographicOrder(t *testing.T) {
	a := Checkpoint{BlockTimestamp: 100, ChainID: 1, BlockNumber: 5, TransactionIndex: 0, EventIndex: 0}
	b := Checkpoint{BlockTimestamp: 100, ChainID: 1, BlockNumber: 6, TransactionIndex: 0, EventIndex: 0}
	c := Checkpoint{BlockTimestamp: 101, ChainID: 1, BlockNumber: 1, TransactionIndex: 0, EventIndex: 0}

	require.Equal(t, -1, Compare(a, b))
	require.Equal(t, 1, Compare(b, a))
	require.Equal(t, 0, Compare(a, a))
	require.Less(t, Encode(a), Encode(b))
	require.Less(t, Encode(b), Encode(c))

	require.True(t, Less(a, b))
	require.False(t, Less(b, a))
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode("not-a-checkpoint")
	require.Error(t, err)

	_, err = Decode("1.2.3.4.x")
	require.Error(t, err)
}

func TestMinMax(t *testing.T) {
	a := Checkpoint{BlockNumber: 1}
	b := Checkpoint{BlockNumber: 2}

	require.Equal(t, a, Min(a, b))
	require.Equal(t, b, MaxOf(a, b))
}
