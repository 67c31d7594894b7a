package types

// StreamCounters are cumulative receive-side counters for one media kind.
type StreamCounters struct {
	BytesReceived   uint64
	PacketsReceived uint64
	PacketsLost     int64
}

// Counters is a raw snapshot of cumulative transport statistics.
type Counters struct {
	TimestampUs int64
	// negative when unknown
	RTTMs float64
	Video StreamCounters
	Audio StreamCounters
	// ECN marks reported by the peer's congestion control feedback
	Ect1 uint64
	Ce   uint64
}

func (c Counters) HasRTT() bool {
	return c.RTTMs >= 0
}
