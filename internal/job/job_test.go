package job

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocAddressBump(t *testing.T) {
	a := NewArena()
	j0 := a.New(KindSystolic, Dims{M: 16, K: 16, N: 16}, 1024, 0)
	j1 := a.New(KindSystolic, Dims{M: 8, K: 8, N: 8}, 256, 0)

	require.Equal(t, uint64(0), j0.BaseAddress)
	require.Equal(t, uint64(1024), j1.BaseAddress)
	require.Equal(t, j0.BaseAddress, j0.Address)
}

func TestAddChildIncrementsRemainingDeps(t *testing.T) {
	a := NewArena()
	p := a.New(KindSystolic, Dims{}, 0, 0)
	c := a.New(KindSystolic, Dims{}, 0, 0)

	require.Equal(t, 0, c.RemainingDeps)
	a.AddChild(p, c)
	require.Equal(t, 1, c.RemainingDeps)
	require.Equal(t, []int{c.Index}, p.Children)
}

func TestConnectListsIsFullBipartite(t *testing.T) {
	a := NewArena()
	src := []*Job{a.New(KindSystolic, Dims{}, 0, 0), a.New(KindSystolic, Dims{}, 0, 0)}
	tgt := []*Job{a.New(KindVector, Dims{}, 0, 0), a.New(KindVector, Dims{}, 0, 0), a.New(KindVector, Dims{}, 0, 0)}

	a.ConnectLists(src, tgt)

	for _, s := range src {
		require.Len(t, s.Children, 3)
	}
	for _, tj := range tgt {
		require.Equal(t, 2, tj.RemainingDeps)
	}
}

func TestResetVisitsDiamondOnlyOnce(t *testing.T) {
	a := NewArena()
	root := a.New(KindSystolic, Dims{}, 100, 0)
	left := a.New(KindSystolic, Dims{}, 50, 0)
	right := a.New(KindSystolic, Dims{}, 50, 0)
	shared := a.New(KindSystolic, Dims{}, 10, 0)

	a.AddChild(root, left)
	a.AddChild(root, right)
	a.AddChild(left, shared)
	a.AddChild(right, shared)

	// Simulate having run once: addresses advanced, jobs marked done.
	for _, j := range a.All() {
		j.Address += 999
		j.Done = true
	}

	a.Reset([]*Job{root})

	for _, j := range a.All() {
		require.Equal(t, j.BaseAddress, j.Address)
		require.False(t, j.Done)
	}
}

func TestVectorPayloadPhaseQueue(t *testing.T) {
	v := &VectorPayload{
		Phases: []Phase{
			{Kind: PhaseBroadcast, Latency: 1},
			{Kind: PhaseReduce, Latency: 2},
		},
	}
	require.Equal(t, 2, v.Remaining())

	p, ok := v.NextPhase()
	require.True(t, ok)
	require.Equal(t, PhaseBroadcast, p.Kind)
	require.Equal(t, 1, v.Remaining())

	p, ok = v.NextPhase()
	require.True(t, ok)
	require.Equal(t, PhaseReduce, p.Kind)

	_, ok = v.NextPhase()
	require.False(t, ok)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "SYSTOLIC_ARRAY", KindSystolic.String())
	require.Equal(t, "VECTOR_UNIT", KindVector.String())
}
