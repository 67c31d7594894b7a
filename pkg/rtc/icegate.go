package rtc

import (
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/slice"
)

type Verdict int

const (
	VerdictAdmit Verdict = iota
	// local candidate must be withdrawn from the engine
	VerdictRetract
	// remote candidate is never handed to the engine
	VerdictDrop
)

func (v Verdict) String() string {
	switch v {
	case VerdictAdmit:
		return "admit"
	case VerdictRetract:
		return "retract"
	case VerdictDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// IceCandidateGate decides which candidates may take part in a call so that
// media stays on the slice network. It does no I/O and is confined to the
// session's event loop.
type IceCandidateGate struct {
	ctx    slice.Context
	logger logger.Logger

	retracted    []types.IceCandidate
	retractedSet map[string]struct{}
}

func NewIceCandidateGate(ctx slice.Context, l logger.Logger) *IceCandidateGate {
	return &IceCandidateGate{
		ctx:          ctx,
		logger:       l,
		retractedSet: make(map[string]struct{}),
	}
}

func (g *IceCandidateGate) UpdateContext(ctx slice.Context) {
	g.ctx = ctx
}

func (g *IceCandidateGate) Context() slice.Context {
	return g.ctx
}

func (g *IceCandidateGate) AdmitLocal(c types.IceCandidate) Verdict {
	if slice.IsSliceExclusive(c.Addresses(), g.ctx) {
		return VerdictAdmit
	}
	g.logger.Debugw("retracting local candidate outside slice", "candidate", c.Candidate)
	g.recordRetracted(c)
	return VerdictRetract
}

func (g *IceCandidateGate) AdmitRemote(c types.IceCandidate) Verdict {
	if slice.IsSliceExclusive(c.Addresses(), g.ctx) {
		return VerdictAdmit
	}
	g.logger.Infow("dropping remote candidate outside slice", "candidate", c.Candidate)
	return VerdictDrop
}

// ValidateSelectedPair returns the candidates to retract for the nominated pair.
// Only the local side is checked, the remote side was gated on arrival.
func (g *IceCandidateGate) ValidateSelectedPair(local, remote types.IceCandidate) []types.IceCandidate {
	if slice.IsSliceExclusive(local.Addresses(), g.ctx) {
		return nil
	}
	g.logger.Infow("selected pair uses non-slice local candidate",
		"local", local.Candidate,
		"remote", remote.Candidate,
	)
	g.recordRetracted(local)
	return []types.IceCandidate{local}
}

// Retracted lists every local candidate retracted so far in this call.
func (g *IceCandidateGate) Retracted() []types.IceCandidate {
	return append([]types.IceCandidate(nil), g.retracted...)
}

func (g *IceCandidateGate) recordRetracted(c types.IceCandidate) {
	if _, ok := g.retractedSet[c.Candidate]; ok {
		return
	}
	g.retractedSet[c.Candidate] = struct{}{}
	g.retracted = append(g.retracted, c)
}
