package measurement

import (
	"github.com/l4slab/slicecall/pkg/rtc/types"
)

// Delta is the change between two consecutive counter snapshots.
type Delta struct {
	BitrateKbps  float64
	HasBitrate   bool
	PacketLoss   int64
	Ect1         uint64
	Ce           uint64
	EcnCePercent float64
}

// CounterBaseline remembers the previous accepted snapshot. A fresh baseline
// behaves as if all counters were zero, so the first sample reports absolute
// loss and ECN counts but no bitrate.
type CounterBaseline struct {
	valid       bool
	timestampUs int64
	bytes       uint64
	lost        int64
	ect1        uint64
	ce          uint64
}

func (b *CounterBaseline) Reset() {
	*b = CounterBaseline{}
}

// Advance computes the delta against the baseline and moves the baseline
// forward. Samples that are not newer than the baseline are rejected and leave
// it unchanged.
func (b *CounterBaseline) Advance(c types.Counters) (Delta, bool) {
	if b.valid && c.TimestampUs <= b.timestampUs {
		return Delta{}, false
	}

	var d Delta
	if b.valid {
		d.BitrateKbps, d.HasBitrate = BitrateKbps(b.bytes, c.Video.BytesReceived, b.timestampUs, c.TimestampUs)
	}
	d.PacketLoss = max(0, c.Video.PacketsLost-b.lost)
	d.Ect1 = counterDelta(b.ect1, c.Ect1)
	d.Ce = counterDelta(b.ce, c.Ce)
	d.EcnCePercent = EcnCePercent(d.Ect1, d.Ce)

	b.valid = true
	b.timestampUs = c.TimestampUs
	b.bytes = c.Video.BytesReceived
	b.lost = c.Video.PacketsLost
	b.ect1 = c.Ect1
	b.ce = c.Ce
	return d, true
}

// BitrateKbps converts a byte counter change over a microsecond interval to
// kbit/s. A counter that went backwards yields zero.
func BitrateKbps(prevBytes, bytes uint64, prevUs, nowUs int64) (float64, bool) {
	dt := float64(nowUs-prevUs) / 1e6
	if dt <= 0 {
		return 0, false
	}
	if bytes < prevBytes {
		return 0, true
	}
	return float64(bytes-prevBytes) * 8 / 1000 / dt, true
}

// EcnCePercent is the share of CE marks among ECN-capable packets.
func EcnCePercent(ect1, ce uint64) float64 {
	total := ect1 + ce
	if total == 0 {
		return 0
	}
	return float64(ce) / float64(total) * 100
}

func counterDelta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
