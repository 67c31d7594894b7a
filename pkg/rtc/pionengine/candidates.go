package pionengine

import (
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"

	"github.com/l4slab/slicecall/pkg/rtc/types"
)

func toIceCandidate(c *webrtc.ICECandidate) (types.IceCandidate, error) {
	init := c.ToJSON()
	var (
		mid   string
		index uint16
	)
	if init.SDPMid != nil {
		mid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		index = *init.SDPMLineIndex
	}
	return types.ParseIceCandidate(init.Candidate, mid, index)
}

func toCandidateInit(c types.IceCandidate) webrtc.ICECandidateInit {
	init := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		mid := c.SDPMid
		index := c.SDPMLineIndex
		init.SDPMid = &mid
		init.SDPMLineIndex = &index
	}
	return init
}

// stripCandidates removes candidate attributes whose value is in retracted,
// at session and media level. Unparseable input is returned unchanged.
func stripCandidates(sdpText string, retracted map[string]struct{}) (string, error) {
	if len(retracted) == 0 {
		return sdpText, nil
	}

	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(sdpText)); err != nil {
		return sdpText, err
	}

	filterAttributes := func(attrs []sdp.Attribute) []sdp.Attribute {
		filtered := make([]sdp.Attribute, 0, len(attrs))
		for _, a := range attrs {
			if a.Key == sdp.AttrKeyCandidate {
				if _, ok := retracted[candidateKey(a.Value)]; ok {
					continue
				}
			}
			filtered = append(filtered, a)
		}
		return filtered
	}

	parsed.Attributes = filterAttributes(parsed.Attributes)
	for _, m := range parsed.MediaDescriptions {
		m.Attributes = filterAttributes(m.Attributes)
	}

	out, err := parsed.Marshal()
	if err != nil {
		return sdpText, err
	}
	return string(out), nil
}

// candidateKey normalises a candidate attribute value for comparison.
func candidateKey(value string) string {
	value = strings.TrimPrefix(strings.TrimSpace(value), "candidate:")
	return strings.Join(strings.Fields(value), " ")
}
