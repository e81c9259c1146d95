package memsys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleModelFixedLatency(t *testing.T) {
	var readAddrs []uint64
	m := NewSimpleModel(Config{RequestSizeBytes: 32}, 3, 0, func(a uint64) {
		readAddrs = append(readAddrs, a)
	}, func(uint64) {})

	m.AddTransaction(0x100, false)
	for i := 0; i < 2; i++ {
		m.ClockTick()
		require.Empty(t, readAddrs)
	}
	m.ClockTick()
	require.Equal(t, []uint64{0x100}, readAddrs)
}

func TestSimpleModelAcceptEveryThrottles(t *testing.T) {
	m := NewSimpleModel(Config{RequestSizeBytes: 32}, 1, 4, nil, nil)

	accepted := 0
	for i := 0; i < 8; i++ {
		if m.WillAccept(0, false) {
			accepted++
		}
		m.tickCount++
	}
	require.Equal(t, 2, accepted)
}
