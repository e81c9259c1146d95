// Package vector implements the vector-unit execution unit: the
// REDUCE/BROADCAST phase queue machinery grounded on
// _examples/original_source's VectorUnit.h/.cc, re-expressed over
// eus.Base.
package vector

import (
	"fmt"

	"github.com/mc186/cocossim/internal/eus"
	"github.com/mc186/cocossim/internal/job"
)

// State names the vector unit's six hardware states (spec §4.4).
type State int

const (
	StateIdle State = iota
	StateUnbufferedLin
	StateUnbufferedPar
	StateBufferedLin
	StateBufferedPar
	StateWrite
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUnbufferedLin:
		return "unbuffered_lin"
	case StateUnbufferedPar:
		return "unbuffered_par"
	case StateBufferedLin:
		return "buffered_lin"
	case StateBufferedPar:
		return "buffered_par"
	case StateWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Timing bundles the clock-domain constants the vector unit's phase-cycle
// math depends on.
type Timing struct {
	BatchSize     int
	DataTypeWidth int
}

// Unit is one vector-unit execution unit: a fixed lane count (vu_sz)
// draining a job's REDUCE/BROADCAST phase queue.
type Unit struct {
	eus.Base

	Size int

	Timing Timing
	arena  eus.JobArena

	State State

	beatsPerWB int
}

// NewUnit constructs a vector-unit of the given lane count.
func NewUnit(size int, timing Timing, emitPerCycle, bytesPerTx, memoryPriority int, arena eus.JobArena) *Unit {
	u := &Unit{
		Size:   size,
		Timing: timing,
		arena:  arena,
	}
	u.EmitPerCycle = emitPerCycle
	u.BytesPerTx = bytesPerTx
	u.MemoryPriority = memoryPriority
	u.beatsPerWB = max(size*timing.BatchSize/bytesPerTx, 1)
	return u
}

func (u *Unit) Kind() job.Kind       { return job.KindVector }
func (u *Unit) IsIdle() bool         { return u.State == StateIdle }
func (u *Unit) CurrentJob() *job.Job { return u.Base.Job }
func (u *Unit) VCDState() int        { return int(u.State) }

func (u *Unit) Attach(j *job.Job) { u.Base.Job = j }

// Init arms the unit's first phase: whether the job is prebuffered
// decides the initial read cost and which of the lin/par states starts
// the run, exactly as VecUnitState::init does.
func (u *Unit) Init() {
	j := u.Base.Job
	vp := j.Vector
	if vp == nil || len(vp.Phases) == 0 {
		panic(fmt.Sprintf("vector: job %d delivered to vector unit with no phases", j.Index))
	}

	front, _ := vp.NextPhase()

	var firstRead int
	var firstState State
	if vp.Prebuffered {
		firstRead = 0
		if front.Kind == job.PhaseBroadcast {
			firstState = StateBufferedPar
		} else {
			firstState = StateBufferedLin
		}
	} else {
		firstRead = vp.Linearized * vp.Parallel * u.Timing.BatchSize * u.Timing.DataTypeWidth
		if front.Kind == job.PhaseBroadcast {
			firstState = StateUnbufferedPar
		} else {
			firstState = StateUnbufferedLin
		}
	}

	var firstCycles int
	if front.Kind == job.PhaseBroadcast {
		firstCycles = ceilDiv(vp.Linearized*vp.Parallel*front.Latency, u.Size)
	} else {
		firstCycles = vp.Linearized * max(u.Timing.BatchSize, front.Latency) * ceilDiv(vp.Parallel, u.Size)
	}

	u.State = firstState
	u.StateTransfer(firstRead, 0, firstCycles)
	u.RowTiles, u.ColTiles, u.RowI, u.ColI = 1, 1, 1, 1
}

// Tick advances the unit by one cycle.
func (u *Unit) Tick(enqueueChild eus.EnqueueChildFn) bool {
	switch u.State {
	case StateUnbufferedLin, StateUnbufferedPar, StateBufferedLin, StateBufferedPar:
		u.EnqueueReads(u)
		if u.ProcessStage() {
			u.advancePhase()
		}
	case StateWrite:
		u.EnqueueWrites(u)
		if u.ProcessStage() {
			u.State = StateIdle
			u.StateTransfer(0, 0, 0)
			u.FinishJob(u.arena, enqueueChild)
			return u.State != StateIdle
		}
	}
	return u.State != StateIdle
}

func (u *Unit) advancePhase() {
	vp := u.Base.Job.Vector
	dt := u.Timing.DataTypeWidth

	phase, ok := vp.NextPhase()
	if !ok {
		u.State = StateWrite
		u.StateTransfer(0, vp.Linearized*vp.Parallel*dt*u.Timing.BatchSize, 0)
		return
	}

	switch phase.Kind {
	case job.PhaseReduce:
		u.State = StateBufferedLin
		u.StateTransfer(0, 0, phase.Latency*vp.Linearized*ceilDiv(vp.Parallel, u.Size))
	case job.PhaseBroadcast:
		u.State = StateBufferedPar
		u.StateTransfer(0, 0, ceilDiv(vp.Linearized*vp.Parallel*phase.Latency, u.Size))
	}
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
