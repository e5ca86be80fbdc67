package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDetectsEdgeOnWriteReadOverlap(t *testing.T) {
	specs := []HandlerSpec{
		{Name: "A", Writes: []string{"Account"}},
		{Name: "B", Reads: []string{"Account"}, Writes: []string{"Transfer"}},
		{Name: "C", Reads: []string{"Transfer"}},
	}

	g, err := Build(specs)
	require.NoError(t, err)
	require.Contains(t, g.Edges["A"], "B")
	require.Contains(t, g.Edges["B"], "C")
	require.NotContains(t, g.Edges["A"], "C")
}

func TestBuildDetectsSelfLoopOnReadWriteSameTable(t *testing.T) {
	specs := []HandlerSpec{
		{Name: "UpdateBalance", Reads: []string{"Account"}, Writes: []string{"Account"}},
	}

	g, err := Build(specs)
	require.NoError(t, err)
	require.True(t, g.SelfLoops["UpdateBalance"])
}

func TestLayersOrdersHandlersByDependency(t *testing.T) {
	specs := []HandlerSpec{
		{Name: "A", Writes: []string{"Account"}},
		{Name: "B", Reads: []string{"Account"}, Writes: []string{"Transfer"}},
		{Name: "C", Reads: []string{"Transfer"}},
		{Name: "Independent", Writes: []string{"Other"}},
	}

	g, err := Build(specs)
	require.NoError(t, err)

	layers, err := g.Layers()
	require.NoError(t, err)
	require.Len(t, layers, 3)
	require.ElementsMatch(t, []string{"A", "Independent"}, layers[0])
	require.Equal(t, []string{"B"}, layers[1])
	require.Equal(t, []string{"C"}, layers[2])
}

func TestLayersReturnsErrorOnCrossHandlerCycle(t *testing.T) {
	specs := []HandlerSpec{
		{Name: "A", Reads: []string{"Y"}, Writes: []string{"X"}},
		{Name: "B", Reads: []string{"X"}, Writes: []string{"Y"}},
	}

	g, err := Build(specs)
	require.NoError(t, err)

	_, err = g.Layers()
	require.Error(t, err)
}
