package buildid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministicRegardlessOfHandlerOrder(t *testing.T) {
	in1 := Input{
		ConfigSubset:  map[string]any{"pollingInterval": 3},
		SchemaColumns: map[string]any{"Account": []string{"id", "balance"}},
		Handlers: []HandlerSource{
			{Name: "Withdraw", Source: "func Withdraw() {}", UpstreamIDs: []string{"b", "a"}},
			{Name: "Deposit", Source: "func Deposit() {}"},
		},
	}
	in2 := Input{
		ConfigSubset:  map[string]any{"pollingInterval": 3},
		SchemaColumns: map[string]any{"Account": []string{"id", "balance"}},
		Handlers: []HandlerSource{
			{Name: "Deposit", Source: "func Deposit() {}"},
			{Name: "Withdraw", Source: "func Withdraw() {}", UpstreamIDs: []string{"a", "b"}},
		},
	}

	id1, err := Compute(in1)
	require.NoError(t, err)
	id2, err := Compute(in2)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Len(t, id1, 64)
}

func TestComputeChangesWhenHandlerSourceChanges(t *testing.T) {
	base := Input{
		Handlers: []HandlerSource{{Name: "Deposit", Source: "func Deposit() {}"}},
	}
	changed := Input{
		Handlers: []HandlerSource{{Name: "Deposit", Source: "func Deposit() { /* v2 */ }"}},
	}

	id1, err := Compute(base)
	require.NoError(t, err)
	id2, err := Compute(changed)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestComputeChangesWhenUpstreamIDChanges(t *testing.T) {
	base := Input{
		Handlers: []HandlerSource{{Name: "Burn", Source: "x", UpstreamIDs: []string{"deposit-v1"}}},
	}
	changed := Input{
		Handlers: []HandlerSource{{Name: "Burn", Source: "x", UpstreamIDs: []string{"deposit-v2"}}},
	}

	id1, err := Compute(base)
	require.NoError(t, err)
	id2, err := Compute(changed)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}
