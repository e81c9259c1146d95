// Package systolic implements the systolic-array execution unit in both
// weight-stationary (WS) and output-stationary (OS) dataflow modes,
// grounded on _examples/original_source's SysArray.h/.cc, re-expressed as
// an explicit Go state machine over eus.Base rather than a virtual
// increment() override.
package systolic

import (
	"fmt"

	"github.com/mc186/cocossim/internal/eus"
	"github.com/mc186/cocossim/internal/job"
)

// Phase names the systolic array's five hardware states (spec §4.3).
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePrefetch
	PhaseRead
	PhaseShift
	PhaseWrite
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePrefetch:
		return "prefetch"
	case PhaseRead:
		return "read"
	case PhaseShift:
		return "shift"
	case PhaseWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Timing bundles the clock-domain constants the array's stage-cycle math
// depends on (spec §2 timing parameters), kept per-unit rather than
// global so tests can exercise non-default values.
type Timing struct {
	FPULatency    int // systolic_fpu_latency
	BatchSize     int
	DataTypeWidth int
}

// Array is one systolic-array execution unit: a fixed array dimension
// (sa_sz) plus a dataflow mode, driving jobs through the WS or OS state
// sequence spec §4.3 describes.
type Array struct {
	eus.Base

	Size int
	WS   bool

	Timing Timing
	arena  eus.JobArena

	Phase Phase

	beatsPerWB int
}

// NewArray constructs a systolic-array unit of the given array size and
// dataflow mode. emit/bytesPerTx are the shared memory-issue parameters
// (spec §4.2.1); arena lets the unit release dependent jobs on
// completion without importing a concrete arena type.
func NewArray(size int, ws bool, timing Timing, emitPerCycle, bytesPerTx, memoryPriority int, arena eus.JobArena) *Array {
	a := &Array{
		Size:   size,
		WS:     ws,
		Timing: timing,
		arena:  arena,
	}
	a.EmitPerCycle = emitPerCycle
	a.BytesPerTx = bytesPerTx
	a.MemoryPriority = memoryPriority
	a.beatsPerWB = max(size*size*timing.DataTypeWidth*timing.BatchSize/bytesPerTx, 1)
	return a
}

func (a *Array) Kind() job.Kind       { return job.KindSystolic }
func (a *Array) IsIdle() bool         { return a.Phase == PhaseIdle }
func (a *Array) CurrentJob() *job.Job { return a.Base.Job }
func (a *Array) VCDState() int        { return int(a.Phase) }

// Attach loads a new job onto the array; the caller must call Init next.
func (a *Array) Attach(j *job.Job) {
	a.Base.Job = j
}

// Init arms the array's first stage for the job currently attached,
// branching on dataflow mode exactly as SysArrayState::init does.
func (a *Array) Init() {
	j := a.Base.Job
	dt := a.Timing.DataTypeWidth
	fpuLat := max(a.Timing.FPULatency, a.Timing.BatchSize)

	if a.WS {
		a.Phase = PhasePrefetch
		a.RowTiles = ceilDiv(j.Dims.K, a.Size)
		a.ColTiles = ceilDiv(j.Dims.N, a.Size)
		sysArrayPreload := min(a.Size, j.Dims.N) * min(a.Size, j.Dims.K) * dt
		activationPreload := min(a.Size, j.Dims.K) * j.Dims.M * dt
		a.StateTransfer(activationPreload+sysArrayPreload, 0, a.Size)
	} else {
		a.Phase = PhaseRead
		a.StageCyclesLeft = j.Dims.K * fpuLat
		readBytes := min(a.Size, j.Dims.M) * j.Dims.K * (a.Timing.BatchSize + batchedWeightsFactor(j, a.Timing.BatchSize)) * dt
		readBeats := readBytes / a.BytesPerTx
		a.ReadsOutstanding, a.ReadsUnqueued = readBeats, readBeats
		a.ColTiles = max(j.Dims.N/a.Size, 1)
		a.RowTiles = max(j.Dims.M/a.Size, 1)
	}
	a.RowI, a.ColI = 1, 1

	if a.RowTiles == 0 || a.ColTiles == 0 {
		panic(fmt.Sprintf("systolic: degenerate tile count for dims %+v", j.Dims))
	}
}

func batchedWeightsFactor(j *job.Job, batchSize int) int {
	if j.BatchedWeights {
		return batchSize
	}
	return 1
}

// Tick advances the array by one cycle: drain memory, advance the stage
// timer, and on stage completion run the dataflow-specific transition.
func (a *Array) Tick(enqueueChild eus.EnqueueChildFn) bool {
	a.EnqueueReads(a)
	a.EnqueueWrites(a)
	if a.ProcessStage() {
		if a.WS {
			a.tickWS(enqueueChild)
		} else {
			a.tickOS(enqueueChild)
		}
	}
	return a.Phase != PhaseIdle
}

func (a *Array) tickWS(enqueueChild eus.EnqueueChildFn) {
	j := a.Base.Job
	dt := a.Timing.DataTypeWidth
	fpuLat := max(a.Timing.FPULatency, a.Timing.BatchSize)

	switch a.Phase {
	case PhasePrefetch:
		a.Phase = PhaseRead
		a.StateTransfer(0, 0, j.Dims.M*fpuLat)
	case PhaseRead:
		a.Phase = PhaseShift
		a.StateTransfer(min(a.Size, j.Dims.K)*min(a.Size, j.Dims.N)*dt, 0, a.Size*fpuLat)
	case PhaseShift:
		var readBytes, writeBytes int
		if a.ColI == a.ColTiles {
			if a.RowI == a.RowTiles {
				writeBytes = j.Dims.M * j.Dims.N * dt * a.Timing.BatchSize
			} else {
				readBytes = min(a.Size, j.Dims.K) * j.Dims.M * a.Timing.BatchSize * dt
			}
		}
		a.Phase = PhaseWrite
		a.StateTransfer(readBytes, writeBytes, 0)
	case PhaseWrite:
		rdCycles := j.Dims.M * fpuLat
		if a.ColI == a.ColTiles {
			if a.RowI == a.RowTiles {
				a.Phase = PhaseIdle
				a.StateTransfer(0, 0, 0)
				a.FinishJob(a.arena, enqueueChild)
				return
			}
			j.Address = j.BaseAddress
			a.Phase = PhaseRead
			a.StateTransfer(0, 0, rdCycles)
			a.ColI = 1
			a.RowI++
		} else {
			a.Phase = PhaseRead
			a.StateTransfer(0, 0, rdCycles)
			a.ColI++
		}
	}
}

func (a *Array) tickOS(enqueueChild eus.EnqueueChildFn) {
	fpuLat := min(a.Timing.FPULatency, a.Timing.BatchSize)

	switch a.Phase {
	case PhaseRead:
		a.Phase = PhaseShift
		a.StateTransfer(0, 0, a.Size*fpuLat)
	case PhaseShift:
		a.Phase = PhaseWrite
		a.StateTransfer(0, a.beatsPerWB*a.BytesPerTx, 0)
	case PhaseWrite:
		if a.ColI == a.ColTiles {
			if a.RowI == a.RowTiles {
				a.Phase = PhaseIdle
				a.StateTransfer(0, 0, 0)
				a.FinishJob(a.arena, enqueueChild)
				return
			}
			a.initRowLoop(true)
			a.Base.Job.Address = a.Base.Job.BaseAddress
			a.Phase = PhaseRead
			a.ColI = 1
			a.RowI++
		} else {
			a.initRowLoop(false)
			a.Phase = PhaseRead
			a.ColI++
		}
	}
}

// initRowLoop re-arms the read beat count for the next row-tile iteration
// in OS mode, mirroring SysArrayState::init_row_loop.
func (a *Array) initRowLoop(newRow bool) {
	j := a.Base.Job
	dt := a.Timing.DataTypeWidth
	a.StageCyclesLeft = j.Dims.K * a.Timing.FPULatency

	weightFactor := batchedWeightsFactor(j, a.Timing.BatchSize)
	var readBytes int
	if newRow {
		readBytes = min(a.Size, j.Dims.M) * j.Dims.K * (a.Timing.BatchSize + weightFactor) * dt
	} else {
		readBytes = min(a.Size, j.Dims.M) * j.Dims.K * weightFactor * dt
	}
	readBeats := max(readBytes/a.BytesPerTx, 1)
	a.ReadsOutstanding, a.ReadsUnqueued = readBeats, readBeats
	a.IdleFromMemory = false
}

func ceilDiv(q, r int) int {
	if q == 0 {
		return 0
	}
	return (q + r - 1) / r
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
