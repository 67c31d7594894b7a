package rtc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testOffer = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0 1\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtcp-fb:111 transport-cc\r\n" +
	"a=fmtp:111 minptime=10;useinbandfec=1\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 102 103 45\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=rtcp-fb:* ccm fir\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtcp-fb:96 nack\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=fmtp:97 apt=96\r\n" +
	"a=rtpmap:102 H264/90000\r\n" +
	"a=rtcp-fb:102 nack\r\n" +
	"a=fmtp:102 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f\r\n" +
	"a=rtpmap:103 rtx/90000\r\n" +
	"a=fmtp:103 apt=102\r\n" +
	"a=rtpmap:45 AV1/90000\r\n"

func TestFilterVideoCodec(t *testing.T) {
	t.Run("all codecs is a no-op", func(t *testing.T) {
		require.Equal(t, testOffer, FilterVideoCodec(testOffer, "All Codecs"))
		require.Equal(t, testOffer, FilterVideoCodec(testOffer, "all codecs"))
		require.Equal(t, testOffer, FilterVideoCodec(testOffer, ""))
	})

	t.Run("keeps codec and its rtx", func(t *testing.T) {
		out := FilterVideoCodec(testOffer, "h264")
		require.Contains(t, out, "m=video 9 UDP/TLS/RTP/SAVPF 102 103\r\n")
		require.Contains(t, out, "a=rtpmap:102 H264/90000")
		require.Contains(t, out, "a=fmtp:103 apt=102")
		require.Contains(t, out, "a=rtcp-fb:102 nack")
		require.Contains(t, out, "a=rtcp-fb:* ccm fir")
		require.NotContains(t, out, "VP8")
		require.NotContains(t, out, "a=rtcp-fb:96")
		require.NotContains(t, out, "apt=96")
		require.NotContains(t, out, "AV1")

		// audio untouched
		require.Contains(t, out, "m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n")
		require.Contains(t, out, "a=rtpmap:111 opus/48000/2")
		require.True(t, strings.HasSuffix(out, "\r\n"))

		codecs, err := VideoCodecs(out)
		require.NoError(t, err)
		require.Equal(t, []string{"H264", "rtx"}, codecs)
	})

	t.Run("idempotent", func(t *testing.T) {
		once := FilterVideoCodec(testOffer, "VP8")
		require.Equal(t, once, FilterVideoCodec(once, "VP8"))
	})

	t.Run("every kept payload has an rtpmap", func(t *testing.T) {
		out := FilterVideoCodec(testOffer, "VP8")
		for _, line := range strings.Split(out, "\r\n") {
			if !strings.HasPrefix(line, "m=video") {
				continue
			}
			for _, pt := range strings.Fields(line)[3:] {
				require.Contains(t, out, "a=rtpmap:"+pt+" ")
			}
		}
	})

	t.Run("unknown codec leaves sdp unchanged", func(t *testing.T) {
		require.Equal(t, testOffer, FilterVideoCodec(testOffer, "VP9"))
	})

	t.Run("codec only present in audio leaves sdp unchanged", func(t *testing.T) {
		require.Equal(t, testOffer, FilterVideoCodec(testOffer, "opus"))
	})
}
