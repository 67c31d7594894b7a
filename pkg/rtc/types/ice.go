package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/ice/v2"
)

var (
	ErrEmptyCandidate     = errors.New("empty ice candidate")
	ErrMalformedCandidate = errors.New("malformed ice candidate")
)

type CandidateType string

const (
	CandidateTypeHost    CandidateType = "host"
	CandidateTypeSrflx   CandidateType = "srflx"
	CandidateTypePrflx   CandidateType = "prflx"
	CandidateTypeRelay   CandidateType = "relay"
	CandidateTypeUnknown CandidateType = "unknown"
)

// IceCandidate is a parsed, immutable ICE candidate as exchanged over signalling.
type IceCandidate struct {
	// Candidate is the attribute value, always starting with "candidate:"
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16

	PrimaryAddress string
	// empty when the candidate carries no raddr
	RelatedAddress string
	Port           int
	Protocol       string
	Type           CandidateType
}

// ParseIceCandidate accepts the candidate attribute with or without the "a=" and
// "candidate:" prefixes.
func ParseIceCandidate(candidate string, sdpMid string, sdpMLineIndex uint16) (IceCandidate, error) {
	value := strings.TrimSpace(candidate)
	value = strings.TrimPrefix(value, "a=")
	value = strings.TrimPrefix(value, "candidate:")
	if value == "" {
		return IceCandidate{}, ErrEmptyCandidate
	}

	c := IceCandidate{
		Candidate:     "candidate:" + value,
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
	}

	if parsed, err := ice.UnmarshalCandidate(value); err == nil {
		c.PrimaryAddress = parsed.Address()
		c.Port = parsed.Port()
		c.Protocol = parsed.NetworkType().NetworkShort()
		c.Type = candidateTypeFromICE(parsed.Type())
		if ra := parsed.RelatedAddress(); ra != nil {
			c.RelatedAddress = ra.Address
		}
		return c, nil
	}

	// fall back to token positions, pion is strict about extensions it does not know
	tokens := strings.Fields(value)
	if len(tokens) < 6 {
		return IceCandidate{}, fmt.Errorf("%w: %q", ErrMalformedCandidate, candidate)
	}
	c.Protocol = strings.ToLower(tokens[2])
	c.PrimaryAddress = tokens[4]
	if port, err := strconv.Atoi(tokens[5]); err == nil {
		c.Port = port
	}
	c.Type = CandidateTypeUnknown
	for i := 6; i+1 < len(tokens); i++ {
		switch tokens[i] {
		case "typ":
			c.Type = candidateTypeFromString(tokens[i+1])
		case "raddr":
			c.RelatedAddress = tokens[i+1]
		}
	}
	return c, nil
}

// Addresses returns the primary address followed by the related address, if any.
func (c IceCandidate) Addresses() []string {
	if c.PrimaryAddress == "" {
		return nil
	}
	if c.RelatedAddress == "" {
		return []string{c.PrimaryAddress}
	}
	return []string{c.PrimaryAddress, c.RelatedAddress}
}

// Value is the candidate attribute without the "candidate:" prefix.
func (c IceCandidate) Value() string {
	return strings.TrimPrefix(c.Candidate, "candidate:")
}

func (c IceCandidate) IsMDNS() bool {
	return strings.HasSuffix(c.PrimaryAddress, ".local")
}

func (c IceCandidate) String() string {
	return c.Candidate
}

func candidateTypeFromICE(t ice.CandidateType) CandidateType {
	switch t {
	case ice.CandidateTypeHost:
		return CandidateTypeHost
	case ice.CandidateTypeServerReflexive:
		return CandidateTypeSrflx
	case ice.CandidateTypePeerReflexive:
		return CandidateTypePrflx
	case ice.CandidateTypeRelay:
		return CandidateTypeRelay
	default:
		return CandidateTypeUnknown
	}
}

func candidateTypeFromString(s string) CandidateType {
	switch CandidateType(strings.ToLower(s)) {
	case CandidateTypeHost:
		return CandidateTypeHost
	case CandidateTypeSrflx:
		return CandidateTypeSrflx
	case CandidateTypePrflx:
		return CandidateTypePrflx
	case CandidateTypeRelay:
		return CandidateTypeRelay
	default:
		return CandidateTypeUnknown
	}
}
