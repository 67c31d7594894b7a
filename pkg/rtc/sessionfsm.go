package rtc

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/l4slab/slicecall/pkg/rtc/transport"
)

const (
	stateIdle                = "idle"
	stateNegotiatingOfferer  = "negotiating_offerer"
	stateNegotiatingAnswerer = "negotiating_answerer"
	stateActive              = "active"
	stateTerminating         = "terminating"

	eventOffer     = "offer"
	eventAnswer    = "answer"
	eventActivate  = "activate"
	eventTerminate = "terminate"
	eventReset     = "reset"
)

func newSessionFSM(onChange func(src, dst string)) *fsm.FSM {
	return fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventOffer, Src: []string{stateIdle}, Dst: stateNegotiatingOfferer},
			{Name: eventAnswer, Src: []string{stateIdle}, Dst: stateNegotiatingAnswerer},
			{Name: eventActivate, Src: []string{stateNegotiatingOfferer, stateNegotiatingAnswerer}, Dst: stateActive},
			{Name: eventTerminate, Src: []string{stateNegotiatingOfferer, stateNegotiatingAnswerer, stateActive}, Dst: stateTerminating},
			{Name: eventReset, Src: []string{stateTerminating}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onChange(e.Src, e.Dst)
			},
		},
	)
}

func sessionStateFromFSM(state string) transport.SessionState {
	switch state {
	case stateNegotiatingOfferer:
		return transport.SessionStateNegotiatingOfferer
	case stateNegotiatingAnswerer:
		return transport.SessionStateNegotiatingAnswerer
	case stateActive:
		return transport.SessionStateActive
	case stateTerminating:
		return transport.SessionStateTerminating
	default:
		return transport.SessionStateIdle
	}
}
