package transport

import "fmt"

type SessionState int

const (
	SessionStateIdle SessionState = iota
	SessionStateNegotiatingOfferer
	SessionStateNegotiatingAnswerer
	SessionStateActive
	SessionStateTerminating
)

func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "IDLE"
	case SessionStateNegotiatingOfferer:
		return "NEGOTIATING_OFFERER"
	case SessionStateNegotiatingAnswerer:
		return "NEGOTIATING_ANSWERER"
	case SessionStateActive:
		return "ACTIVE"
	case SessionStateTerminating:
		return "TERMINATING"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

func (s SessionState) IsNegotiating() bool {
	return s == SessionStateNegotiatingOfferer || s == SessionStateNegotiatingAnswerer
}

// Handler receives call lifecycle notifications. Callbacks run on the session's
// event loop and must not call back into the session synchronously.
type Handler interface {
	OnStateChanged(peerID string, state SessionState)
	OnCallActive(peerID string)
	OnCallEnded(peerID string, reason string)
	// OnFailed is called for fatal errors, the call has already been torn down
	OnFailed(peerID string, err error)
	// OnTransientError is called for errors that leave the call as it was
	OnTransientError(peerID string, err error)
}

type UnimplementedHandler struct{}

func (h UnimplementedHandler) OnStateChanged(peerID string, state SessionState) {}
func (h UnimplementedHandler) OnCallActive(peerID string)                       {}
func (h UnimplementedHandler) OnCallEnded(peerID string, reason string)         {}
func (h UnimplementedHandler) OnFailed(peerID string, err error)                {}
func (h UnimplementedHandler) OnTransientError(peerID string, err error)        {}
