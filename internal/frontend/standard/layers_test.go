package standard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mc186/cocossim/internal/job"
)

func TestReadLayerFileParsesDimensions(t *testing.T) {
	in := "Matmul 64 128 64\nActivation 32\n\nSoftmax 8 64\n"
	layers, err := ReadLayerFile(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []LayerConfig{
		{LayerType: "Matmul", Dimensions: []int{64, 128, 64}},
		{LayerType: "Activation", Dimensions: []int{32}},
		{LayerType: "Softmax", Dimensions: []int{8, 64}},
	}, layers)
}

func TestReadLayerFileRejectsMissingDimensions(t *testing.T) {
	_, err := ReadLayerFile(strings.NewReader("Matmul\n"))
	require.Error(t, err)
}

func TestMakeLayersChainsMatmulThenActivation(t *testing.T) {
	arena := job.NewArena()
	cfg := ArchConfig{NCores: 1, SASize: 32, VUSize: 32, WS: true}
	c := DefaultConstants()

	layers := []LayerConfig{
		{LayerType: "Matmul", Dimensions: []int{32, 32, 32}},
		{LayerType: "Activation", Dimensions: []int{32}},
	}

	pair, err := MakeLayers(arena, cfg, c, layers)
	require.NoError(t, err)
	require.Len(t, pair.Head, 1)
	require.Len(t, pair.Tail, 1)
	require.Equal(t, job.KindSystolic, pair.Head[0].Kind)
	require.Equal(t, job.KindVector, pair.Tail[0].Kind)
	require.Contains(t, pair.Head[0].Children, pair.Tail[0].Index)
}

func TestMakeLayersRejectsUnknownType(t *testing.T) {
	arena := job.NewArena()
	cfg := ArchConfig{NCores: 1, SASize: 32, VUSize: 32}
	c := DefaultConstants()

	_, err := MakeLayers(arena, cfg, c, []LayerConfig{{LayerType: "Nonsense", Dimensions: []int{1}}})
	require.Error(t, err)
}

func TestMatmulAndConvSkipSplittingEvenWhenOversized(t *testing.T) {
	arena := job.NewArena()
	cfg := ArchConfig{NCores: 1, SASize: 32, VUSize: 32, WS: true}
	c := DefaultConstants()

	// Dimensions large enough that the original's buffer-splitting
	// heuristic would trigger; this implementation always produces one
	// unsplit job regardless.
	l := LayerConfig{LayerType: "Matmul", Dimensions: []int{4096, 4096, 4096}}
	pair := matmul(arena, cfg, c, l)
	require.Len(t, pair.Head, 1)
	require.Equal(t, 4096, pair.Head[0].Dims.N)

	l = LayerConfig{LayerType: "Conv", Dimensions: []int{4096, 4096, 4096}}
	pair = conv(arena, cfg, c, l)
	require.Len(t, pair.Head, 1)
	require.Equal(t, 4096, pair.Head[0].Dims.K)
}

func TestWriteDOTIncludesEveryReachableJob(t *testing.T) {
	arena := job.NewArena()
	root := arena.New(job.KindSystolic, job.Dims{M: 1, K: 1, N: 1}, 8, 0)
	child := arena.New(job.KindSystolic, job.Dims{M: 2, K: 2, N: 2}, 8, 0)
	arena.AddChild(root, child)

	var buf strings.Builder
	require.NoError(t, WriteDOT(&buf, arena, []*job.Job{root}))

	out := buf.String()
	require.Contains(t, out, "digraph G {")
	require.Contains(t, out, "1 x 1 x 1")
	require.Contains(t, out, "2 x 2 x 2")
	require.Contains(t, out, "job0 -> job1")
}
