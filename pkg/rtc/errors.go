package rtc

import (
	"errors"
)

var (
	ErrInvalidICEConfig = errors.New("invalid ICE server configuration")
	ErrICEFailed        = errors.New("ICE connection failed")
	ErrSignalSend       = errors.New("could not send signalling message")
	ErrNoActiveCall     = errors.New("no active call")
	ErrSessionClosed    = errors.New("call session closed")
	ErrUnexpectedAnswer = errors.New("received answer without an outstanding offer")
	ErrAnswerTimeout    = errors.New("peer did not answer in time")
	ErrNegotiation      = errors.New("session negotiation failed")
	ErrMissingPeerID    = errors.New("peer ID is required")
)

// IsTransient reports errors that leave an established call untouched.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSignalSend)
}

// IsFatal reports errors after which the call cannot continue.
func IsFatal(err error) bool {
	return errors.Is(err, ErrICEFailed) ||
		errors.Is(err, ErrInvalidICEConfig) ||
		errors.Is(err, ErrNegotiation) ||
		errors.Is(err, ErrAnswerTimeout)
}
