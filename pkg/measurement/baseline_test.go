package measurement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l4slab/slicecall/pkg/rtc/types"
)

func counters(tsMs int64, bytes uint64, lost int64) types.Counters {
	return types.Counters{
		TimestampUs: tsMs * 1000,
		RTTMs:       -1,
		Video: types.StreamCounters{
			BytesReceived: bytes,
			PacketsLost:   lost,
		},
	}
}

func TestCounterBaseline(t *testing.T) {
	t.Run("loss deltas", func(t *testing.T) {
		var b CounterBaseline
		var losses []int64
		for i, lost := range []int64{10, 7, 15} {
			d, ok := b.Advance(counters(int64(i+1)*100, 0, lost))
			require.True(t, ok)
			losses = append(losses, d.PacketLoss)
		}
		require.Equal(t, []int64{10, 0, 8}, losses)
	})

	t.Run("first sample has no bitrate", func(t *testing.T) {
		var b CounterBaseline
		d, ok := b.Advance(counters(1000, 50_000, 0))
		require.True(t, ok)
		require.False(t, d.HasBitrate)

		// 12500 bytes in 100ms is 1000 kbit/s
		d, ok = b.Advance(counters(1100, 62_500, 0))
		require.True(t, ok)
		require.True(t, d.HasBitrate)
		require.InDelta(t, 1000, d.BitrateKbps, 0.001)
	})

	t.Run("stale sample is skipped", func(t *testing.T) {
		var b CounterBaseline
		_, ok := b.Advance(counters(1000, 100, 1))
		require.True(t, ok)
		_, ok = b.Advance(counters(1000, 200, 5))
		require.False(t, ok)
		_, ok = b.Advance(counters(900, 200, 5))
		require.False(t, ok)

		d, ok := b.Advance(counters(1100, 200, 5))
		require.True(t, ok)
		require.EqualValues(t, 4, d.PacketLoss)
	})

	t.Run("ecn", func(t *testing.T) {
		var b CounterBaseline
		c := counters(100, 0, 0)
		c.Ect1, c.Ce = 90, 10
		d, ok := b.Advance(c)
		require.True(t, ok)
		require.InDelta(t, 10, d.EcnCePercent, 0.001)

		c = counters(200, 0, 0)
		c.Ect1, c.Ce = 90, 10
		d, ok = b.Advance(c)
		require.True(t, ok)
		require.Zero(t, d.EcnCePercent)
	})

	t.Run("reset", func(t *testing.T) {
		var b CounterBaseline
		_, _ = b.Advance(counters(1000, 100, 3))
		b.Reset()
		d, ok := b.Advance(counters(10, 100, 3))
		require.True(t, ok)
		require.EqualValues(t, 3, d.PacketLoss)
	})
}

func TestBitrateKbps(t *testing.T) {
	kbps, ok := BitrateKbps(0, 125_000, 0, 1_000_000)
	require.True(t, ok)
	require.InDelta(t, 1000, kbps, 0.001)

	_, ok = BitrateKbps(0, 100, 5, 5)
	require.False(t, ok)

	kbps, ok = BitrateKbps(1000, 10, 0, 1_000_000)
	require.True(t, ok)
	require.Zero(t, kbps)
}

func TestEcnCePercent(t *testing.T) {
	require.Zero(t, EcnCePercent(0, 0))
	require.InDelta(t, 25, EcnCePercent(3, 1), 0.001)
	require.InDelta(t, 100, EcnCePercent(0, 7), 0.001)
}
