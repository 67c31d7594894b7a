package pionengine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l4slab/slicecall/pkg/rtc/types"
)

func TestEngineCreatesOffer(t *testing.T) {
	e, err := NewEngine(types.EngineParams{
		VideoCodec: "VP8",
		MinBitrate: 300_000,
		MaxBitrate: 2_000_000,
	})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.PrepareLocalMedia(context.Background()))
	// preparing twice does not add more senders
	require.NoError(t, e.PrepareLocalMedia(context.Background()))

	offer, err := e.CreateOffer(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(offer, "m=video"))
	require.Equal(t, 1, strings.Count(offer, "m=audio"))
	require.False(t, e.GatheringComplete())
	require.Empty(t, e.LocalDescription())
}

func TestEngineBitrateEnvelope(t *testing.T) {
	e, err := NewEngine(types.EngineParams{})
	require.NoError(t, err)
	defer e.Close()

	require.ErrorIs(t, e.SetSenderBitrateEnvelope(-1, 10), ErrInvalidEnvelope)
	require.ErrorIs(t, e.SetSenderBitrateEnvelope(10, 5), ErrInvalidEnvelope)
	require.NoError(t, e.SetSenderBitrateEnvelope(300_000, 2_000_000))

	require.EqualValues(t, 300_000, e.clampBitrate(1))
	require.EqualValues(t, 2_000_000, e.clampBitrate(5_000_000))
	require.EqualValues(t, 1_000_000, e.clampBitrate(1_000_000))
}

func TestEngineStatsAfterClose(t *testing.T) {
	e, err := NewEngine(types.EngineParams{})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.GetStatsSnapshot(context.Background())
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestVideoMimeType(t *testing.T) {
	require.Equal(t, "video/H264", videoMimeType("h264"))
	require.Equal(t, "video/VP8", videoMimeType("All Codecs"))
}
