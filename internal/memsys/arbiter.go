package memsys

import "fmt"

// MemoryClient is the owner side of a pending transaction: the
// execution-unit state that emitted it. Completion decrements whichever
// outstanding counter the transaction belonged to.
type MemoryClient interface {
	OnReadDone()
	OnWriteDone()
}

// pendingTx mirrors spec §3's "Pending memory transaction" tuple:
// (address, is_write, priority, owner_eus).
type pendingTx struct {
	address uint64
	isWrite bool
	priority int
	owner   MemoryClient
}

// scanLimit bounds how many pending entries TryEnqueueTx inspects per
// call, per spec §4.5 ("scans at most the first 64 pending entries") —
// the same bounded-linear-probe technique the teacher's reservation
// station and TAGE LRU search use instead of a sorted structure.
const scanLimit = 64

// Arbiter holds pending memory transactions with per-producer priority
// and feeds them into a DRAM Model at a controlled rate, routing
// completion callbacks back to the issuing execution unit.
type Arbiter struct {
	pending []pendingTx
	model   Model

	readsByAddr  map[uint64]MemoryClient
	writesByAddr map[uint64]MemoryClient
}

// NewArbiter constructs an arbiter bound to model. Callers must register
// arbiter.OnReadDone and arbiter.OnWriteDone as the model's completion
// callbacks at construction time (spec §6); the arbiter itself never
// constructs the model, since the model is out of this system's scope.
func NewArbiter(model Model) *Arbiter {
	return &Arbiter{
		model:        model,
		readsByAddr:  make(map[uint64]MemoryClient),
		writesByAddr: make(map[uint64]MemoryClient),
	}
}

// Enqueue records a new pending transaction, to be offered to the DRAM
// model on a future TryEnqueueTx call.
func (a *Arbiter) Enqueue(address uint64, isWrite bool, priority int, owner MemoryClient) {
	a.pending = append(a.pending, pendingTx{address: address, isWrite: isWrite, priority: priority, owner: owner})
}

// Pending reports how many transactions are waiting to be submitted.
func (a *Arbiter) Pending() int { return len(a.pending) }

// TryEnqueueTx scans at most scanLimit pending entries and submits the
// first one the DRAM model accepts, recording its owner into the
// appropriate address map and removing it from pending by swap-with-last.
// It returns false (and makes no changes) if the model accepts nothing in
// the scanned prefix.
func (a *Arbiter) TryEnqueueTx() bool {
	limit := len(a.pending)
	if limit > scanLimit {
		limit = scanLimit
	}
	for i := 0; i < limit; i++ {
		tx := a.pending[i]
		if !a.model.WillAccept(tx.address, tx.isWrite) {
			continue
		}
		a.model.AddTransaction(tx.address, tx.isWrite)
		if tx.isWrite {
			a.writesByAddr[tx.address] = tx.owner
		} else {
			a.readsByAddr[tx.address] = tx.owner
		}
		last := len(a.pending) - 1
		a.pending[i] = a.pending[last]
		a.pending = a.pending[:last]
		return true
	}
	return false
}

// OnReadDone is the callback to register with the DRAM model for read
// completions. An address with no live owner is an engine invariant
// violation (spec §7): it means a completion arrived for a transaction
// the arbiter never submitted, or submitted twice.
func (a *Arbiter) OnReadDone(addr uint64) {
	owner, ok := a.readsByAddr[addr]
	if !ok {
		panic(fmt.Sprintf("memsys: read completion for unknown address %#x", addr))
	}
	delete(a.readsByAddr, addr)
	owner.OnReadDone()
}

// OnWriteDone is the write-completion counterpart of OnReadDone.
func (a *Arbiter) OnWriteDone(addr uint64) {
	owner, ok := a.writesByAddr[addr]
	if !ok {
		panic(fmt.Sprintf("memsys: write completion for unknown address %#x", addr))
	}
	delete(a.writesByAddr, addr)
	owner.OnWriteDone()
}
