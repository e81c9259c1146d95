package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mc186/cocossim/internal/job"
	"github.com/mc186/cocossim/internal/scheduler"
)

func TestWriteReportFormat(t *testing.T) {
	labels := []UnitLabel{{Kind: job.KindSystolic, Name: "sa0"}, {Kind: job.KindVector, Name: "vu0"}}
	phases := []scheduler.PhaseStats{
		{Cycles: 100, PctActive: []float64{50, 25}},
		{Cycles: 40, PctActive: []float64{10, 90}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, labels, phases))

	require.Contains(t, buf.String(), "Cycles 100\n")
	require.Contains(t, buf.String(), "SYSTOLIC_ARRAY 50.000000\n")
	require.Contains(t, buf.String(), "VECTOR_UNIT 90.000000\n")
}

func TestDrainRatio(t *testing.T) {
	phases := []scheduler.PhaseStats{{Cycles: 150}}
	require.InDelta(t, 1.5, DrainRatio(phases, 100), 1e-9)
	require.Equal(t, float64(0), DrainRatio(nil, 100))
	require.Equal(t, float64(0), DrainRatio(phases, 0))
}

func TestVCDWriterHeaderAndSample(t *testing.T) {
	labels := []UnitLabel{{Kind: job.KindSystolic, Name: "sa0"}}
	var buf bytes.Buffer
	v, err := NewVCDWriter(&buf, labels)
	require.NoError(t, err)

	require.Contains(t, buf.String(), "$timescale 1ns $end")
	require.Contains(t, buf.String(), "sa0_state")

	require.NoError(t, v.Sample([]int{3}, []bool{true}))
	require.Contains(t, buf.String(), "#1")
	require.Contains(t, buf.String(), "b011 sa0_state")
	require.Contains(t, buf.String(), "b1 sa0_idle")
}

func TestVCDWriterSkipsUnchangedCycles(t *testing.T) {
	labels := []UnitLabel{{Kind: job.KindSystolic, Name: "sa0"}, {Kind: job.KindVector, Name: "vu0"}}
	var buf bytes.Buffer
	v, err := NewVCDWriter(&buf, labels)
	require.NoError(t, err)

	require.NoError(t, v.Sample([]int{1, 0}, []bool{false, false}))
	before := buf.Len()

	// Identical to the previous sample: no timestamp, no signal lines.
	require.NoError(t, v.Sample([]int{1, 0}, []bool{false, false}))
	require.Equal(t, before, buf.Len())

	// Only vu0's state changes: sa0's lines must not reappear.
	require.NoError(t, v.Sample([]int{1, 2}, []bool{false, false}))
	out := buf.String()
	require.Contains(t, out, "#3")
	require.NotContains(t, out, "#2")
	require.Contains(t, out, "b010 vu0_state")
}
