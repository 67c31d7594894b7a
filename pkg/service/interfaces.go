package service

import (
	"context"

	"github.com/l4slab/slicecall/pkg/rtc"
	"github.com/l4slab/slicecall/pkg/rtc/transport"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/signalling"
)

// SignalConnection is a connected signalling channel with its inbound side.
type SignalConnection interface {
	types.SignalChannel
	ReadMessage() (*signalling.Message, error)
	Close() error
}

// Session is the part of rtc.CallSession the client drives.
type Session interface {
	State() transport.SessionState
	PeerID() string
	StartCall(ctx context.Context, peerID string) error
	ReceiveOffer(ctx context.Context, peerID string, sdp string) error
	ReceiveAnswer(ctx context.Context, peerID string, sdp string) error
	ReceiveIceCandidate(ctx context.Context, peerID string, c types.IceCandidate) error
	Hangup(ctx context.Context) error
	ReceiveHangup(ctx context.Context, peerID string) error
	Stats(ctx context.Context) (rtc.StatsSnapshot, error)
	Close()
}

var (
	_ SignalConnection = (*signalling.WSSignalConnection)(nil)
	_ Session          = (*rtc.CallSession)(nil)
)
