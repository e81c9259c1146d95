// Package eus implements the execution-unit state machinery shared by the
// systolic array and vector unit: the per-tick mechanics spec §4.2
// describes (emit-rate-limited memory issue, stage timer, idle-from-memory
// detection, state_transfer), factored out as a Base the two concrete
// units embed — the Go rendering of the teacher's "small dispatch table on
// a tagged variant" suggestion (spec Design Notes §9), in place of virtual
// dispatch.
package eus

import "github.com/mc186/cocossim/internal/job"

// EnqueueChildFn is called once per child job whose remaining-dependency
// count reaches zero during completion processing.
type EnqueueChildFn func(*job.Job)

// Unit is the contract every execution-unit kind implements: spec §4.2's
// init()/tick() pair, plus enough introspection for the scheduler to pick
// idle units of the right kind and for the stats sink to read percent-active.
type Unit interface {
	// Init is called once when a job is assigned; it must set up the
	// first phase and its memory/cycle budget.
	Init()
	// Tick runs one simulated cycle while a job is loaded and returns
	// true iff the unit was non-idle this cycle.
	Tick(enqueueChild EnqueueChildFn) bool
	Kind() job.Kind
	IsIdle() bool
	CurrentJob() *job.Job
	Attach(j *job.Job)
	// VCDState reports the unit's current hardware-state enum value as a
	// plain int, for stats.VCDWriter to trace without importing the
	// concrete systolic/vector packages.
	VCDState() int
	// MemoryIdle reports whether the unit is currently stalled waiting on
	// outstanding memory (spec §4.2 step 5 / §8 scenario S4).
	MemoryIdle() bool
}

// Base holds the state and mechanics spec §3's EUS data model and §4.2's
// shared tick steps describe, independent of which kind of unit it backs.
// Concrete units embed Base and drive StateTransfer/EnqueueReads/
// EnqueueWrites/ProcessStage from their own phase-specific Tick.
type Base struct {
	Job *job.Job

	MemoryPriority int
	EmitPerCycle   int // dram_enq_per_cycle
	BytesPerTx     int // bytes_per_transaction

	StageCyclesLeft int

	ReadsOutstanding  int
	WritesOutstanding int
	ReadsUnqueued     int
	WritesUnqueued    int

	IdleFromMemory bool

	// Tiling loop counters shared by both concrete kinds (spec §3 EUS
	// mutable state).
	RowTiles, ColTiles int
	RowI, ColI         int

	// Emit is the function the base calls to hand a (address, isWrite)
	// pair to the memory arbiter; it is injected rather than imported so
	// this package stays independent of memsys's concrete Arbiter type.
	Emit func(address uint64, isWrite bool, priority int, owner MemoryClient)
}

// MemoryClient mirrors memsys.MemoryClient without importing memsys, to
// avoid a dependency cycle (memsys has no reason to know about eus).
type MemoryClient interface {
	OnReadDone()
	OnWriteDone()
}

// MemoryIdle reports the shared IdleFromMemory flag; concrete units
// satisfy eus.Unit's MemoryIdle through this embedded method.
func (b *Base) MemoryIdle() bool { return b.IdleFromMemory }

// OnReadDone decrements the outstanding read counter. Called by the
// memory arbiter when a previously emitted read transaction completes.
func (b *Base) OnReadDone() {
	b.ReadsOutstanding--
}

// OnWriteDone is the write-completion counterpart of OnReadDone.
func (b *Base) OnWriteDone() {
	b.WritesOutstanding--
}

// EnqueueReads drains up to EmitPerCycle outstanding reads into the
// pending-memory list, advancing the job's address cursor by one
// transaction size per beat emitted (spec §4.2 step 1 / §4.2.1).
func (b *Base) EnqueueReads(owner MemoryClient) {
	toEmit := min(b.EmitPerCycle, b.ReadsUnqueued)
	b.ReadsUnqueued -= toEmit
	for i := 0; i < toEmit; i++ {
		b.Emit(b.Job.Address, false, b.MemoryPriority, owner)
		b.Job.Address += uint64(b.BytesPerTx)
	}
}

// EnqueueWrites is the write counterpart of EnqueueReads.
func (b *Base) EnqueueWrites(owner MemoryClient) {
	toEmit := min(b.EmitPerCycle, b.WritesUnqueued)
	b.WritesUnqueued -= toEmit
	for i := 0; i < toEmit; i++ {
		b.Emit(b.Job.Address, true, b.MemoryPriority, owner)
		b.Job.Address += uint64(b.BytesPerTx)
	}
}

// CheckIdleFromMemory flips IdleFromMemory to true the first cycle the
// stage timer has expired but memory is still outstanding (spec §4.2 step
// 5 / §8 scenario S4).
func (b *Base) CheckIdleFromMemory() {
	if b.StageCyclesLeft == 0 && !b.IdleFromMemory && (b.ReadsOutstanding > 0 || b.WritesOutstanding > 0) {
		b.IdleFromMemory = true
	}
}

// ProcessStage advances the stage timer and reports whether the stage has
// completed: timer at zero and no outstanding memory in either direction
// (spec §4.2 steps 2-3).
func (b *Base) ProcessStage() bool {
	if b.StageCyclesLeft > 0 {
		b.StageCyclesLeft--
	}
	if b.StageCyclesLeft == 0 && b.ReadsOutstanding == 0 && b.WritesOutstanding == 0 {
		return true
	}
	b.CheckIdleFromMemory()
	return false
}

// StateTransfer atomically arms the next stage: sets the cycle budget,
// converts byte counts into beat counts (at least one beat whenever the
// byte count is non-zero), and clears IdleFromMemory (spec §4.2
// state_transfer).
func (b *Base) StateTransfer(readBytes, writeBytes, minCycles int) {
	b.StageCyclesLeft = minCycles

	readBeats := 0
	if readBytes > 0 {
		readBeats = max(1, readBytes/b.BytesPerTx)
	}
	writeBeats := 0
	if writeBytes > 0 {
		writeBeats = max(1, writeBytes/b.BytesPerTx)
	}

	b.ReadsOutstanding, b.ReadsUnqueued = readBeats, readBeats
	b.WritesOutstanding, b.WritesUnqueued = writeBeats, writeBeats
	b.IdleFromMemory = false
}

// FinishJob marks the attached job done and releases every child whose
// remaining-dependency count reaches zero, matching the teacher's
// writeback-wakeup fan-out (OutOfOrderScheduler.Writeback) generalized
// from a register tag to a DAG child list.
func (b *Base) FinishJob(arena JobArena, enqueueChild EnqueueChildFn) {
	b.Job.Done = true
	for _, ci := range b.Job.Children {
		child := arena.Get(ci)
		child.RemainingDeps--
		if child.RemainingDeps == 0 {
			enqueueChild(child)
		}
	}
	b.Job = nil
}

// JobArena is the minimal read access FinishJob needs into the job
// arena — looking a child index back up into a *job.Job — without
// importing the concrete arena type, again to avoid import coupling.
type JobArena interface {
	Get(i int) *job.Job
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
