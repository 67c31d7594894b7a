package service

import (
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc"
	"github.com/l4slab/slicecall/pkg/rtc/transport"
)

type EndedCall struct {
	PeerID string
	Reason string
}

// CallEvents is the session handler of the client. It logs lifecycle changes
// and lets callers wait for a call to end.
type CallEvents struct {
	logger logger.Logger

	ended  chan EndedCall
	active chan string
}

func NewCallEvents(l logger.Logger) *CallEvents {
	if l == nil {
		l = logger.GetLogger()
	}
	return &CallEvents{
		logger: l.WithName("call"),
		ended:  make(chan EndedCall, 8),
		active: make(chan string, 8),
	}
}

// Ended delivers every finished call. Older entries are dropped when nobody reads.
func (e *CallEvents) Ended() <-chan EndedCall {
	return e.ended
}

func (e *CallEvents) Active() <-chan string {
	return e.active
}

func (e *CallEvents) OnStateChanged(peerID string, state transport.SessionState) {
	e.logger.Debugw("session state changed", "peerID", peerID, "state", state.String())
}

func (e *CallEvents) OnCallActive(peerID string) {
	e.logger.Infow("call active", "peerID", peerID)
	select {
	case e.active <- peerID:
	default:
	}
}

func (e *CallEvents) OnCallEnded(peerID string, reason string) {
	e.logger.Infow("call ended", "peerID", peerID, "reason", reason)

	ended := EndedCall{PeerID: peerID, Reason: reason}
	for {
		select {
		case e.ended <- ended:
			return
		default:
		}
		select {
		case <-e.ended:
		default:
		}
	}
}

func (e *CallEvents) OnFailed(peerID string, err error) {
	e.logger.Errorw("call failed", err, "peerID", peerID, "fatal", rtc.IsFatal(err))
}

func (e *CallEvents) OnTransientError(peerID string, err error) {
	e.logger.Warnw("transient call error", err, "peerID", peerID)
}
