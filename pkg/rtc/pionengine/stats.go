package pionengine

import (
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/l4slab/slicecall/pkg/rtc/types"
)

func countersFromReport(report webrtc.StatsReport, timestampUs int64, ect1, ce uint64) types.Counters {
	c := types.Counters{
		TimestampUs: timestampUs,
		RTTMs:       -1,
		Ect1:        ect1,
		Ce:          ce,
	}

	pairRTT := -1.0
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			var sc *types.StreamCounters
			switch strings.ToLower(st.Kind) {
			case "video":
				sc = &c.Video
			case "audio":
				sc = &c.Audio
			default:
				continue
			}
			sc.BytesReceived += st.BytesReceived
			sc.PacketsReceived += uint64(st.PacketsReceived)
			sc.PacketsLost += int64(st.PacketsLost)

		case webrtc.RemoteInboundRTPStreamStats:
			if st.RoundTripTime <= 0 {
				continue
			}
			// prefer the video stream's estimate
			if c.RTTMs < 0 || strings.EqualFold(st.Kind, "video") {
				c.RTTMs = st.RoundTripTime * 1000
			}

		case webrtc.ICECandidatePairStats:
			if st.Nominated && st.CurrentRoundTripTime > 0 {
				pairRTT = st.CurrentRoundTripTime * 1000
			}
		}
	}

	if c.RTTMs < 0 && pairRTT >= 0 {
		c.RTTMs = pairRTT
	}
	return c
}
