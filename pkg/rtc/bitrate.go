package rtc

// BitrateEnvelope bounds the encoder's target bitrate, in bits per second.
type BitrateEnvelope struct {
	MinBps int64
	MaxBps int64
}

// NewBitrateEnvelope converts a kbps range into bps. Negative minimums are
// raised to zero and the maximum never falls below the minimum.
func NewBitrateEnvelope(minKbps, maxKbps int) BitrateEnvelope {
	minBps := max(0, int64(minKbps)*1000)
	maxBps := max(minBps, int64(maxKbps)*1000)
	return BitrateEnvelope{MinBps: minBps, MaxBps: maxBps}
}
