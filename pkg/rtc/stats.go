package rtc

import (
	"github.com/l4slab/slicecall/pkg/measurement"
	"github.com/l4slab/slicecall/pkg/rtc/types"
)

const (
	ConnectivityWifi     = "Wifi"
	ConnectivitySlicing  = "Slicing"
	ConnectivityCellular = "Cellular"
)

// StatsSnapshot is the on-demand view of an active call. Unknown values are nil.
type StatsSnapshot struct {
	RTTMs            *float64 `json:"rttMs,omitempty"`
	VideoLossPercent *float64 `json:"videoLossPercent,omitempty"`
	VideoBitrateKbps *float64 `json:"videoBitrateKbps,omitempty"`
	AudioLossPercent *float64 `json:"audioLossPercent,omitempty"`
	AudioBitrateKbps *float64 `json:"audioBitrateKbps,omitempty"`
	Ect1             *uint64  `json:"ect1,omitempty"`
	Ce               *uint64  `json:"ectCe,omitempty"`
	CeInPercent      *float64 `json:"ceInPercent,omitempty"`
	Connectivity     string   `json:"connectivity"`
}

// StatsSnapshotter keeps its own baseline, independent of the measurement
// pipeline, so polling for stats never shifts the logged deltas.
type StatsSnapshotter struct {
	useScream bool

	valid       bool
	timestampUs int64
	videoBytes  uint64
	audioBytes  uint64
	ect1        uint64
	ce          uint64
}

func NewStatsSnapshotter(useScream bool) *StatsSnapshotter {
	return &StatsSnapshotter{useScream: useScream}
}

func (s *StatsSnapshotter) Reset() {
	*s = StatsSnapshotter{useScream: s.useScream}
}

func (s *StatsSnapshotter) Snapshot(c types.Counters, connectivity string) StatsSnapshot {
	snap := StatsSnapshot{
		Connectivity:     connectivity,
		VideoLossPercent: lossPercent(c.Video),
		AudioLossPercent: lossPercent(c.Audio),
	}
	if c.HasRTT() {
		rtt := c.RTTMs
		snap.RTTMs = &rtt
	}

	if s.valid && c.TimestampUs > s.timestampUs {
		if kbps, ok := measurement.BitrateKbps(s.videoBytes, c.Video.BytesReceived, s.timestampUs, c.TimestampUs); ok {
			snap.VideoBitrateKbps = &kbps
		}
		if kbps, ok := measurement.BitrateKbps(s.audioBytes, c.Audio.BytesReceived, s.timestampUs, c.TimestampUs); ok {
			snap.AudioBitrateKbps = &kbps
		}
	}

	if s.useScream {
		ect1, ce := c.Ect1, c.Ce
		snap.Ect1 = &ect1
		snap.Ce = &ce
		var dEct1, dCe uint64
		if ect1 >= s.ect1 {
			dEct1 = ect1 - s.ect1
		}
		if ce >= s.ce {
			dCe = ce - s.ce
		}
		pct := measurement.EcnCePercent(dEct1, dCe)
		snap.CeInPercent = &pct
	}

	if !s.valid || c.TimestampUs > s.timestampUs {
		s.valid = true
		s.timestampUs = c.TimestampUs
		s.videoBytes = c.Video.BytesReceived
		s.audioBytes = c.Audio.BytesReceived
		s.ect1 = c.Ect1
		s.ce = c.Ce
	}
	return snap
}

func lossPercent(sc types.StreamCounters) *float64 {
	lost := max(0, sc.PacketsLost)
	total := float64(lost) + float64(sc.PacketsReceived)
	if total <= 0 {
		return nil
	}
	pct := float64(lost) / total * 100
	return &pct
}
