package types

import (
	"context"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/slice"
)

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// MediaEngine is one call's worth of peer connection. Implementations deliver
// their callbacks in order through Events and must not block in
// RemoveIceCandidates.
type MediaEngine interface {
	// PrepareLocalMedia attaches local audio/video senders
	PrepareLocalMedia(ctx context.Context) error
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	SetLocalDescription(sdpType SDPType, sdp string) error
	SetRemoteDescription(sdpType SDPType, sdp string) error
	// LocalDescription returns the current local description, without retracted candidates
	LocalDescription() string
	AddIceCandidate(c IceCandidate) error
	RemoveIceCandidates(cs []IceCandidate) error
	GatheringComplete() bool
	SetSenderBitrateEnvelope(minBps, maxBps int64) error

	CounterSource

	Events() <-chan EngineEvent
	Close() error
}

type EngineParams struct {
	ICEServers []config.ICEServerConfig
	Trickle    bool
	UseScream  bool
	VideoCodec string
	Slice      slice.Context
	// bits per second, zero when unset
	MinBitrate int64
	MaxBitrate int64
	Logger     logger.Logger
}

type EngineFactory interface {
	NewEngine(params EngineParams) (MediaEngine, error)
}

type EngineFactoryFunc func(params EngineParams) (MediaEngine, error)

func (f EngineFactoryFunc) NewEngine(params EngineParams) (MediaEngine, error) {
	return f(params)
}

// SignalChannel is the outbound half of signalling.
type SignalChannel interface {
	SendOffer(ctx context.Context, peerID string, sdp string) error
	SendAnswer(ctx context.Context, peerID string, sdp string) error
	SendIceCandidate(ctx context.Context, peerID string, c IceCandidate) error
	SendHangup(ctx context.Context, peerID string) error
}

type CounterSource interface {
	GetStatsSnapshot(ctx context.Context) (Counters, error)
}

// StatsSampler observes an active call. Stop must not return until sampling has
// fully stopped.
type StatsSampler interface {
	Start(source CounterSource)
	Stop()
}
