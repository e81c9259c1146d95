// Package job implements the dependency DAG the scheduler drives: a job
// arena keyed by index (per the teacher's bitmap-indexed reservation
// station arrays, generalized from a fixed 64-slot window to an
// arbitrarily sized, append-only arena), plus the topology primitives the
// frontend uses to wire layer boundaries together.
package job

import "fmt"

// Kind tags which execution-unit family consumes a job.
type Kind int

const (
	KindSystolic Kind = iota
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindSystolic:
		return "SYSTOLIC_ARRAY"
	case KindVector:
		return "VECTOR_UNIT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Dims carries the tile dimensions of a systolic job (M/K/N). Vector jobs
// leave Dims zero; their linearized/parallel dimensions and phase queue
// live in the Job's Vector payload, since those are mutable and job-kind
// specific.
type Dims struct {
	M, K, N int
}

// Job is one node in the dependency DAG: a computation tile with a fixed
// topology (frozen once the simulation starts) and mutable runtime state
// (address cursor, remaining dependency count, completion flag).
//
// Jobs never hold pointers to each other directly; children are recorded
// as indices into the owning Arena, matching the teacher's address-by-tag
// convention (reservation-station tags, physical register indices) rather
// than raw pointers.
type Job struct {
	Index int
	Kind  Kind
	Dims  Dims

	BaseAddress uint64
	AllocSize   uint64
	TaskIndex   int
	JobIndex    int
	CoreAffinity int // -1 when unconstrained

	BatchedWeights bool

	// Mutable
	Address       uint64
	RemainingDeps int
	Children      []int // indices into the owning Arena
	Done          bool

	// Vector-unit-only payload. Nil for systolic jobs.
	Vector *VectorPayload
}

// VectorPayload holds the vector-unit-specific fields a Job needs: its
// linearized/parallel dimensions, whether it starts pre-buffered, and its
// ordered phase queue.
type VectorPayload struct {
	Linearized   int
	Parallel     int
	Prebuffered  bool
	Phases       []Phase
	phaseCursor  int
}

// PhaseKind distinguishes a vector unit's two micro-op flavors.
type PhaseKind int

const (
	PhaseReduce PhaseKind = iota
	PhaseBroadcast
)

// Phase is one entry in a vector job's phase queue.
type Phase struct {
	Kind    PhaseKind
	Latency int
}

// NextPhase pops and returns the next queued phase. ok is false once the
// queue is exhausted.
func (v *VectorPayload) NextPhase() (Phase, bool) {
	if v.phaseCursor >= len(v.Phases) {
		return Phase{}, false
	}
	p := v.Phases[v.phaseCursor]
	v.phaseCursor++
	return p, true
}

// Remaining reports how many phases are still queued.
func (v *VectorPayload) Remaining() int {
	return len(v.Phases) - v.phaseCursor
}

// Arena owns every Job for the lifetime of one simulation run. DAG edges
// (each Job's Children) are recorded as arena indices rather than
// pointers — the same design the teacher uses for reservation-station
// tags and physical register indices; Get resolves an index back to its
// *Job.
type Arena struct {
	jobs        []*Job
	allocAddr   uint64
	jobCounter  int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// New allocates a job in the arena, bump-allocating its base address from
// the arena's address cursor. allocSize is the number of address-space
// bytes this job's lifetime reserves (matching the C++ original's
// alloc_addr bump allocator, now explicit arena state instead of a
// process global per the Design Notes' guidance against implicit
// globals).
func (a *Arena) New(kind Kind, dims Dims, allocSize uint64, taskIndex int) *Job {
	j := &Job{
		Index:         len(a.jobs),
		Kind:          kind,
		Dims:          dims,
		BaseAddress:   a.allocAddr,
		AllocSize:     allocSize,
		TaskIndex:     taskIndex,
		JobIndex:      a.jobCounter,
		CoreAffinity:  -1,
		Address:       a.allocAddr,
		RemainingDeps: 0,
	}
	a.allocAddr += allocSize
	a.jobCounter++
	a.jobs = append(a.jobs, j)
	return j
}

// Get returns the job at index i.
func (a *Arena) Get(i int) *Job { return a.jobs[i] }

// Len reports how many jobs the arena has ever allocated.
func (a *Arena) Len() int { return len(a.jobs) }

// All returns every job in allocation order. Callers must not retain the
// slice across further allocations.
func (a *Arena) All() []*Job { return a.jobs }

// AddChild records an edge from parent to child: child is appended to
// parent's child list and child's remaining-dependency counter is
// incremented. This is the only place remaining-dependency counts should
// be incremented; the engine only ever decrements them, during completion
// processing.
func (a *Arena) AddChild(parent, child *Job) {
	parent.Children = append(parent.Children, child.Index)
	child.RemainingDeps++
}

// ConnectLists wires a full bipartite edge set from every job in src to
// every job in tgt — the primitive the frontend uses to chain one layer's
// output jobs into the next layer's input jobs.
func (a *Arena) ConnectLists(src, tgt []*Job) {
	for _, s := range src {
		for _, t := range tgt {
			a.AddChild(s, t)
		}
	}
}

// Reset restores a job's address to its base and clears Done, recursing
// into children. A visited set prevents a diamond-shaped DAG (a job
// reachable through more than one parent) from being reset more than
// once — the open question the Design Notes flag in the original C++,
// which has no such guard.
func (a *Arena) Reset(roots []*Job) {
	visited := make([]bool, len(a.jobs))
	var walk func(j *Job)
	walk = func(j *Job) {
		if visited[j.Index] {
			return
		}
		visited[j.Index] = true
		j.Address = j.BaseAddress
		j.Done = false
		for _, ci := range j.Children {
			walk(a.jobs[ci])
		}
	}
	for _, r := range roots {
		walk(r)
	}
}
