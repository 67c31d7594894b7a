package rtc

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/l4slab/slicecall/pkg/config"
)

// FilterVideoCodec restricts the video section of an SDP to payload types whose
// rtpmap codec name contains codec (case-insensitive), plus RTX payloads bound
// to them. Other media sections are left untouched. The original SDP is
// returned whenever the restriction cannot be applied.
func FilterVideoCodec(sdpText string, codec string) string {
	codec = strings.TrimSpace(codec)
	if codec == "" || strings.EqualFold(codec, config.AllCodecs) {
		return sdpText
	}
	needle := strings.ToLower(codec)

	lines := strings.Split(sdpText, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	allowed := make(map[string]bool)
	rtxAssociations := make(map[string]string)
	inVideo := false
	for _, line := range lines {
		if strings.HasPrefix(line, "m=") {
			inVideo = isVideoMediaLine(line)
			continue
		}
		if !inVideo {
			continue
		}
		if pt, rest, ok := attributePayload(line, "a=rtpmap:"); ok {
			name, _, _ := strings.Cut(rest, "/")
			if strings.Contains(strings.ToLower(name), needle) {
				allowed[pt] = true
			}
		} else if pt, rest, ok := attributePayload(line, "a=fmtp:"); ok {
			if apt, ok := associatedPayload(rest); ok {
				rtxAssociations[pt] = apt
			}
		}
	}
	for pt, apt := range rtxAssociations {
		if allowed[apt] {
			allowed[pt] = true
		}
	}
	if len(allowed) == 0 {
		return sdpText
	}

	out := make([]string, 0, len(lines))
	inVideo = false
	for _, line := range lines {
		if strings.HasPrefix(line, "m=") {
			inVideo = isVideoMediaLine(line)
			if inVideo {
				tokens := strings.Fields(line)
				if len(tokens) < 3 {
					return sdpText
				}
				kept := append([]string{}, tokens[:3]...)
				for _, pt := range tokens[3:] {
					if allowed[pt] {
						kept = append(kept, pt)
					}
				}
				if len(kept) == 3 {
					return sdpText
				}
				line = strings.Join(kept, " ")
			}
			out = append(out, line)
			continue
		}

		if inVideo {
			if pt, _, ok := attributePayload(line, "a=rtpmap:"); ok && !allowed[pt] {
				continue
			}
			if pt, _, ok := attributePayload(line, "a=fmtp:"); ok && !allowed[pt] {
				continue
			}
			if pt, _, ok := attributePayload(line, "a=rtcp-fb:"); ok && pt != "*" && !allowed[pt] {
				continue
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\r\n")
}

// VideoCodecs lists the codec names offered in the video sections, in m-line order.
func VideoCodecs(sdpText string) ([]string, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(sdpText)); err != nil {
		return nil, err
	}

	var codecs []string
	seen := make(map[string]bool)
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "video" {
			continue
		}
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				continue
			}
			codec, err := sd.GetCodecForPayloadType(uint8(pt))
			if err != nil || seen[codec.Name] {
				continue
			}
			seen[codec.Name] = true
			codecs = append(codecs, codec.Name)
		}
	}
	return codecs, nil
}

func isVideoMediaLine(line string) bool {
	return strings.HasPrefix(line, "m=video ")
}

// attributePayload splits "a=<attr>:<pt> <rest>" into pt and rest.
func attributePayload(line string, prefix string) (string, string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", "", false
	}
	pt, rest, _ := strings.Cut(line[len(prefix):], " ")
	if pt == "" {
		return "", "", false
	}
	return pt, rest, true
}

func associatedPayload(params string) (string, bool) {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && key == "apt" && value != "" {
			return value, true
		}
	}
	return "", false
}
