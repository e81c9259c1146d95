package memsys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	reads, writes int
}

func (f *fakeClient) OnReadDone()  { f.reads++ }
func (f *fakeClient) OnWriteDone() { f.writes++ }

func newTestArbiter(latency, acceptEvery int) *Arbiter {
	var a *Arbiter
	model := NewSimpleModel(Config{TCKNanos: 1, RequestSizeBytes: 32}, latency, acceptEvery, nil, nil)
	a = NewArbiter(model)
	model.onReadDone = a.OnReadDone
	model.onWriteDone = a.OnWriteDone
	return a
}

func TestArbiterRoundTrip(t *testing.T) {
	a := newTestArbiter(2, 0)
	owner := &fakeClient{}
	a.Enqueue(0x1000, false, 0, owner)

	require.True(t, a.TryEnqueueTx())
	require.Equal(t, 0, a.Pending())

	model := a.model.(*SimpleModel)
	model.ClockTick()
	require.Equal(t, 0, owner.reads)
	model.ClockTick()
	require.Equal(t, 1, owner.reads)
}

func TestArbiterScanStopsAtFirstFailure(t *testing.T) {
	a := newTestArbiter(1, 0)
	owner := &fakeClient{}
	a.Enqueue(0x10, false, 0, owner)
	a.Enqueue(0x20, false, 0, owner)

	// Force rejection by wiring a model that never accepts.
	a.model = rejectAllModel{}
	require.False(t, a.TryEnqueueTx())
	require.Equal(t, 2, a.Pending())
}

type rejectAllModel struct{}

func (rejectAllModel) WillAccept(uint64, bool) bool  { return false }
func (rejectAllModel) AddTransaction(uint64, bool)   {}
func (rejectAllModel) ClockTick()                    {}
func (rejectAllModel) Config() Config                { return Config{} }

func TestArbiterUnknownCompletionPanics(t *testing.T) {
	a := newTestArbiter(1, 0)
	require.Panics(t, func() { a.OnReadDone(0xDEAD) })
	require.Panics(t, func() { a.OnWriteDone(0xDEAD) })
}

func TestArbiterWriteTracksSeparatelyFromRead(t *testing.T) {
	a := newTestArbiter(1, 0)
	owner := &fakeClient{}
	a.Enqueue(0x40, true, 0, owner)
	require.True(t, a.TryEnqueueTx())

	a.model.(*SimpleModel).ClockTick()
	require.Equal(t, 1, owner.writes)
	require.Equal(t, 0, owner.reads)
}
