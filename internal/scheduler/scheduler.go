// Package scheduler implements the tick loop that drives the execution
// units and the memory arbiter forward one cycle at a time, grounded on
// _examples/original_source's Arch.cc (Arch::get_cycles).
//
// One deliberate change from the original: Arch::get_cycles stops
// scanning unit kinds for dispatch the instant any one kind successfully
// assigns a job in a given cycle, so at most one job starts per cycle
// regardless of how many units and kinds sit idle. That collapses the
// intended core-count parallelism (n_mxus, n_vpus independently
// dispatching). This engine instead dispatches to every idle unit of
// every kind whose frontier is non-empty each cycle, so core-count
// scaling behaves as the unit counts imply.
package scheduler

import (
	"math/bits"

	"github.com/mc186/cocossim/internal/eus"
	"github.com/mc186/cocossim/internal/job"
	"github.com/mc186/cocossim/internal/memsys"
)

// Config bundles the scheduler-level timing parameters spec §2 and §4.6
// name: how many memory transactions the arbiter may submit per cycle,
// and how many DRAM clock ticks elapse per accelerator cycle (the
// discretized form of the original's tCK/freq_sa accumulator).
type Config struct {
	DRAMEnqueuePerCycle int
	MemTicksPerCycle    float64
}

// PhaseEnqueue is one entry in a time-based enqueue schedule: at cycle
// AtCycle, every dependency-free job in Jobs becomes available for
// dispatch (spec §4.6's externally-triggered phase boundaries, e.g. a new
// inference request arriving mid-run). The initial batch of roots passed
// to Run counts as phase 0 and is seeded at cycle 0 before the loop
// starts; PhaseEnqueue entries describe only the boundaries after that,
// so the first entry's AtCycle is normally > 0.
type PhaseEnqueue struct {
	AtCycle uint64
	Jobs    []*job.Job
}

// PhaseStats reports, for one phase window, how many cycles it took and
// what fraction of those cycles each unit was active — the Go analogue
// of the original's RuntimeStats_t.
type PhaseStats struct {
	Cycles    uint64
	PctActive []float64
}

// Engine owns every execution unit and the memory arbiter for one
// simulation run and drives them forward cycle by cycle until the job
// graph drains.
type Engine struct {
	Arena   *job.Arena
	Units   []eus.Unit
	Arbiter *memsys.Arbiter
	Model   memsys.Model
	Config  Config

	// Trace, if set, is called once per cycle after every unit has ticked
	// with that cycle's per-unit VCDState()/MemoryIdle() values — the hook
	// stats.VCDWriter.Sample is wired through (spec §6's optional VCD
	// output). Left nil, tracing is skipped entirely.
	Trace func(states []int, idle []bool)

	frontier map[job.Kind][]*job.Job

	cycles       uint64
	dramCmds     uint64
	memAccum     float64
	activeCycles []uint64 // indexed like Units
	phaseActive  []uint64

	traceStates []int  // reused scratch buffer for Trace, indexed like Units
	traceIdle   []bool

	// byKind groups unit indices by kind so dispatch can pick an idle one
	// with a single math/bits.TrailingZeros64 instead of a linear scan —
	// the same priority-encoder idiom the reservation-station dispatcher
	// this scheduler is descended from uses for its 64-wide occupancy
	// bitmap. Limited to 64 units of a single kind, matching that width.
	byKind map[job.Kind]*kindGroup
}

type kindGroup struct {
	indices []int   // Units[] index for each bit position
	idle    uint64  // bit i set means Units[indices[i]] is idle
}

// NewEngine constructs a scheduler over a fixed set of execution units.
// units must already be wired (their Emit closures routed into arbiter,
// typically via arbiter.Enqueue, and their arena reference set).
func NewEngine(arena *job.Arena, units []eus.Unit, arbiter *memsys.Arbiter, model memsys.Model, cfg Config) *Engine {
	e := &Engine{
		Arena:        arena,
		Units:        units,
		Arbiter:      arbiter,
		Model:        model,
		Config:       cfg,
		frontier:     make(map[job.Kind][]*job.Job),
		activeCycles: make([]uint64, len(units)),
		phaseActive:  make([]uint64, len(units)),
		byKind:       make(map[job.Kind]*kindGroup),
		traceStates:  make([]int, len(units)),
		traceIdle:    make([]bool, len(units)),
	}
	for i, u := range units {
		g, ok := e.byKind[u.Kind()]
		if !ok {
			g = &kindGroup{}
			e.byKind[u.Kind()] = g
		}
		if len(g.indices) >= 64 {
			panic("scheduler: more than 64 units of one kind, exceeds the idle bitmap width")
		}
		bit := len(g.indices)
		g.indices = append(g.indices, i)
		if u.IsIdle() {
			g.idle |= 1 << uint(bit)
		}
	}
	return e
}

// EnqueueReady pushes a job onto its kind's frontier. It is the function
// passed to every unit's Tick and to Run's own dependency-free root
// seeding; jobs with unmet dependencies must not be passed here.
func (e *Engine) EnqueueReady(j *job.Job) {
	e.frontier[j.Kind] = append(e.frontier[j.Kind], j)
}

// Cycles reports the number of cycles simulated so far.
func (e *Engine) Cycles() uint64 { return e.cycles }

// DRAMCommands reports how many memory transactions the arbiter has
// successfully submitted to the DRAM model so far.
func (e *Engine) DRAMCommands() uint64 { return e.dramCmds }

// dispatch assigns frontier jobs to idle units, one idle unit at a time
// per kind, until either the frontier for that kind is empty or no more
// idle units of that kind remain.
func (e *Engine) dispatch() {
	for kind, queue := range e.frontier {
		if len(queue) == 0 {
			continue
		}
		group := e.byKind[kind]
		kept := queue[:0]
		for _, j := range queue {
			realIdx, ok := e.pickIdleUnit(group, j.CoreAffinity)
			if !ok {
				kept = append(kept, j)
				continue
			}
			e.Units[realIdx].Attach(j)
			e.Units[realIdx].Init()
		}
		e.frontier[kind] = kept
	}
}

// pickIdleUnit returns the global Units[] index of an idle unit in group,
// clearing its bit. With no affinity constraint it picks the
// lowest-numbered idle slot via TrailingZeros64 — a priority encoder over
// the idle bitmap, exactly like the reservation-station dispatcher this
// scheduler's idle-tracking is adapted from. With an affinity constraint
// it instead checks that one specific unit's bit directly.
func (e *Engine) pickIdleUnit(group *kindGroup, coreAffinity int) (int, bool) {
	if group == nil {
		return 0, false
	}
	if coreAffinity >= 0 {
		for bit, realIdx := range group.indices {
			if realIdx != coreAffinity {
				continue
			}
			mask := uint64(1) << uint(bit)
			if group.idle&mask == 0 {
				return 0, false
			}
			group.idle &^= mask
			return realIdx, true
		}
		return 0, false
	}
	if group.idle == 0 {
		return 0, false
	}
	bit := bits.TrailingZeros64(group.idle)
	group.idle &^= uint64(1) << uint(bit)
	return group.indices[bit], true
}

// markIdle sets realIdx's bit in its kind's bitmap; called after a unit's
// Tick reports it has gone idle.
func (e *Engine) markIdle(realIdx int, kind job.Kind) {
	group := e.byKind[kind]
	for bit, idx := range group.indices {
		if idx == realIdx {
			group.idle |= uint64(1) << uint(bit)
			return
		}
	}
}

// done reports whether every unit is idle and every frontier is drained,
// matching Arch::get_cycles's termination condition.
func (e *Engine) done() bool {
	for _, u := range e.Units {
		if !u.IsIdle() {
			return false
		}
	}
	for _, q := range e.frontier {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// Run drives the engine to completion, seeding roots at cycle 0 and
// folding in any additional phase enqueues at their scheduled cycle
// boundaries. It returns one PhaseStats entry per phase (including the
// trailing phase after the last scheduled boundary).
func (e *Engine) Run(roots []*job.Job, phases []PhaseEnqueue) []PhaseStats {
	for _, r := range roots {
		if r.RemainingDeps == 0 {
			e.EnqueueReady(r)
		}
	}

	var stats []PhaseStats
	phaseIdx := 0
	phaseCycles := uint64(0)
	resetPhaseActive := func() {
		for i := range e.phaseActive {
			e.phaseActive[i] = 0
		}
		phaseCycles = 0
	}

	nextPhaseCycle := ^uint64(0)
	if phaseIdx < len(phases) {
		nextPhaseCycle = phases[phaseIdx].AtCycle
	}

	for !e.done() {
		if e.cycles >= nextPhaseCycle && phaseIdx < len(phases) {
			for _, j := range phases[phaseIdx].Jobs {
				if j.RemainingDeps == 0 {
					e.EnqueueReady(j)
				}
			}
			stats = append(stats, e.snapshotPhase(phaseCycles))
			phaseIdx++
			resetPhaseActive()
			if phaseIdx < len(phases) {
				nextPhaseCycle = phases[phaseIdx].AtCycle
			} else {
				nextPhaseCycle = ^uint64(0)
			}
		}

		e.dispatch()

		e.cycles++
		phaseCycles++

		e.memAccum += e.Config.MemTicksPerCycle
		for e.memAccum >= 1 {
			e.Model.ClockTick()
			e.memAccum -= 1
		}

		for i, u := range e.Units {
			if u.Tick(e.EnqueueReady) {
				e.activeCycles[i]++
				e.phaseActive[i]++
			}
			if u.IsIdle() {
				e.markIdle(i, u.Kind())
			}
		}

		if e.Trace != nil {
			for i, u := range e.Units {
				e.traceStates[i] = u.VCDState()
				e.traceIdle[i] = u.MemoryIdle()
			}
			e.Trace(e.traceStates, e.traceIdle)
		}

		// Drain last: memory emissions from this cycle's EUS ticks become
		// eligible for DRAM submission in this same cycle (spec §5).
		for i := 0; i < e.Config.DRAMEnqueuePerCycle; i++ {
			if !e.Arbiter.TryEnqueueTx() {
				break
			}
			e.dramCmds++
		}
	}

	stats = append(stats, e.snapshotPhase(phaseCycles))
	return stats
}

func (e *Engine) snapshotPhase(phaseCycles uint64) PhaseStats {
	pct := make([]float64, len(e.Units))
	if phaseCycles > 0 {
		for i, active := range e.phaseActive {
			pct[i] = float64(active) * 100 / float64(phaseCycles)
		}
	}
	return PhaseStats{Cycles: phaseCycles, PctActive: pct}
}

// UnitActiveCycles reports the lifetime active-cycle count for the unit
// at index i, matching per_array_act in the original.
func (e *Engine) UnitActiveCycles(i int) uint64 { return e.activeCycles[i] }
