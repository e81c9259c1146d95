// Package memsys implements the memory-transaction side of the engine:
// the arbiter that throttles reads/writes into an external DRAM timing
// model, plus a reference DRAM model used by tests and by the CLI when no
// more detailed model is plugged in.
//
// The real DRAM model is explicitly out of this system's scope (spec §1);
// Model is the narrow interface the engine is written against, matching
// spec §6's "DRAM model interface (consumed)".
package memsys

// Config exposes the two DRAM-model parameters the scheduler and arbiter
// need: the DRAM clock period (used to keep the DRAM clock aligned to the
// accelerator clock) and the transaction size (used to convert byte
// counts into beats).
type Config struct {
	TCKNanos         float64
	RequestSizeBytes int
}

// Model is the external DRAM timing model's interface, as specified in
// spec §6. Implementations decide independently when to accept a
// transaction (back-pressure) and when to fire completion callbacks;
// nothing in this package assumes a particular timing policy.
type Model interface {
	WillAccept(addr uint64, isWrite bool) bool
	AddTransaction(addr uint64, isWrite bool)
	ClockTick()
	Config() Config
}

// DoneFn is the shape of the two completion callbacks a Model invokes:
// on_read_done(addr) / on_write_done(addr) from spec §6.
type DoneFn func(addr uint64)

// SimpleModel is a small reference DRAM model: a fixed per-transaction
// latency queue with a configurable acceptance rate, good enough for
// engine tests (S2-S6 in spec §8) and for a CLI run with no more detailed
// model wired in. It is not a timing-accurate DRAM model — that is
// explicitly out of scope (spec §1) — only a stand-in that satisfies the
// Model contract.
type SimpleModel struct {
	cfg Config

	latencyTicks int
	acceptEvery  int // accept only on clock ticks that are a multiple of N (any number of offers on such a tick); 0 = unlimited
	tickCount    int

	onReadDone  DoneFn
	onWriteDone DoneFn

	inFlight []inFlightTx
}

type inFlightTx struct {
	addr     uint64
	isWrite  bool
	ticksLeft int
}

// NewSimpleModel constructs a reference DRAM model. latencyTicks is the
// fixed round-trip latency (in DRAM clock ticks) from acceptance to
// completion callback. acceptEvery throttles how often a *new*
// transaction may be accepted (0 disables throttling, i.e. accept
// whenever offered); this is what spec scenario S4 (memory back-pressure)
// exercises.
func NewSimpleModel(cfg Config, latencyTicks, acceptEvery int, onReadDone, onWriteDone DoneFn) *SimpleModel {
	return &SimpleModel{
		cfg:          cfg,
		latencyTicks: latencyTicks,
		acceptEvery:  acceptEvery,
		onReadDone:   onReadDone,
		onWriteDone:  onWriteDone,
	}
}

func (m *SimpleModel) Config() Config { return m.cfg }

// WillAccept reports whether a new transaction may be submitted this
// tick, per the acceptEvery throttle. The answer depends only on the tick
// count, so every transaction offered on an accepting tick is accepted;
// the throttle does not limit a tick to one acceptance.
func (m *SimpleModel) WillAccept(addr uint64, isWrite bool) bool {
	if m.acceptEvery <= 0 {
		return true
	}
	return m.tickCount%m.acceptEvery == 0
}

// AddTransaction admits a transaction; its completion callback fires
// latencyTicks clock ticks later.
func (m *SimpleModel) AddTransaction(addr uint64, isWrite bool) {
	m.inFlight = append(m.inFlight, inFlightTx{addr: addr, isWrite: isWrite, ticksLeft: m.latencyTicks})
}

// ClockTick advances the DRAM clock by one tick, firing completion
// callbacks for any transaction whose latency has elapsed.
func (m *SimpleModel) ClockTick() {
	m.tickCount++
	remaining := m.inFlight[:0]
	for _, tx := range m.inFlight {
		tx.ticksLeft--
		if tx.ticksLeft <= 0 {
			if tx.isWrite {
				m.onWriteDone(tx.addr)
			} else {
				m.onReadDone(tx.addr)
			}
			continue
		}
		remaining = append(remaining, tx)
	}
	m.inFlight = remaining
}
