package types

import "fmt"

type GatheringState int

const (
	GatheringStateNew GatheringState = iota
	GatheringStateGathering
	GatheringStateComplete
)

func (g GatheringState) String() string {
	switch g {
	case GatheringStateNew:
		return "NEW"
	case GatheringStateGathering:
		return "GATHERING"
	case GatheringStateComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("%d", int(g))
	}
}

type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateChecking
	ConnectionStateConnected
	ConnectionStateCompleted
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionStateNew:
		return "NEW"
	case ConnectionStateChecking:
		return "CHECKING"
	case ConnectionStateConnected:
		return "CONNECTED"
	case ConnectionStateCompleted:
		return "COMPLETED"
	case ConnectionStateDisconnected:
		return "DISCONNECTED"
	case ConnectionStateFailed:
		return "FAILED"
	case ConnectionStateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("%d", int(c))
	}
}

// EngineEvent is implemented only by the event types in this file.
type EngineEvent interface {
	isEngineEvent()
}

type LocalCandidateEvent struct {
	Candidate IceCandidate
}

type GatheringStateEvent struct {
	State GatheringState
}

type ConnectionStateEvent struct {
	State ConnectionState
}

type SelectedPairEvent struct {
	Local  IceCandidate
	Remote IceCandidate
}

func (LocalCandidateEvent) isEngineEvent()  {}
func (GatheringStateEvent) isEngineEvent()  {}
func (ConnectionStateEvent) isEngineEvent() {}
func (SelectedPairEvent) isEngineEvent()    {}
