package signalling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/l4slab/slicecall/pkg/rtc/types"
)

const (
	MessageTypeOffer   = "offer"
	MessageTypeAnswer  = "answer"
	MessageTypeICE     = "ice"
	MessageTypeHangup  = "hangup"
	MessageTypeClients = "clients"
)

var (
	ErrUnknownMessageType = errors.New("unknown signalling message type")
	ErrMissingPeer        = errors.New("signalling message without peer")
)

// Message is one JSON text frame. Payload carries the SDP for offers and
// answers and an encoded IcePayload for candidates.
type Message struct {
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	Type    string       `json:"type"`
	Payload string       `json:"payload,omitempty"`
	Clients []ClientInfo `json:"clients,omitempty"`
}

type ClientInfo struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	IsOnline bool   `json:"isOnline"`
}

type IcePayload struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

func encodeIcePayload(c types.IceCandidate) (string, error) {
	b, err := json.Marshal(IcePayload{
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
		Candidate:     c.Candidate,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Candidate decodes the payload of an ice message.
func (m *Message) Candidate() (types.IceCandidate, error) {
	if m.Type != MessageTypeICE {
		return types.IceCandidate{}, fmt.Errorf("%w: %s is not a candidate", ErrUnknownMessageType, m.Type)
	}
	var p IcePayload
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil {
		return types.IceCandidate{}, err
	}
	return types.ParseIceCandidate(p.Candidate, p.SDPMid, p.SDPMLineIndex)
}

func (m *Message) validate() error {
	switch m.Type {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICE, MessageTypeHangup:
		if m.From == "" {
			return fmt.Errorf("%w: %s", ErrMissingPeer, m.Type)
		}
		return nil
	case MessageTypeClients:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
}
