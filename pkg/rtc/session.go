package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"
	"github.com/gammazero/workerpool"
	"github.com/looplab/fsm"
	"go.uber.org/atomic"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/radio"
	"github.com/l4slab/slicecall/pkg/rtc/transport"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/slice"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
)

const (
	maxPendingCandidates = 100

	roleOfferer  = "offerer"
	roleAnswerer = "answerer"
)

type CallSessionParams struct {
	ICE  config.ICEConfig
	Call config.CallConfig
	// zero disables the timeout
	AnswerTimeout time.Duration

	EngineFactory types.EngineFactory
	Signal        types.SignalChannel
	SliceProvider slice.Provider
	Radio         radio.Provider
	Sampler       types.StatsSampler
	Handler       transport.Handler
	Logger        logger.Logger
}

type pendingCandidate struct {
	peerID    string
	candidate types.IceCandidate
}

type callState struct {
	peerID string
	role   string
	engine types.MediaEngine
	events <-chan types.EngineEvent
	gate   *IceCandidateGate

	trickle              bool
	remoteDescriptionSet bool
	// set while a non-trickle description waits for gathering to complete
	pendingPublish types.SDPType

	generation  uint64
	startedAt   time.Time
	activeAt    time.Time
	answerTimer *time.Timer
}

func (c *callState) stopTimer() {
	if c.answerTimer != nil {
		c.answerTimer.Stop()
		c.answerTimer = nil
	}
}

// CallSession drives one call at a time through offer/answer and ICE
// exchange. All call state is owned by a single event loop; public methods
// hand work to the loop and wait for the result.
type CallSession struct {
	params CallSessionParams
	logger logger.Logger

	fsm          *fsm.FSM
	ops          chan func()
	sliceChanged chan struct{}
	closed       core.Fuse
	done         chan struct{}
	signalQueue  *workerpool.WorkerPool

	peerID     atomic.String
	generation atomic.Uint64

	// owned by the event loop
	callConf    config.CallConfig
	envelope    BitrateEnvelope
	call        *callState
	pending     deque.Deque[pendingCandidate]
	snapshotter *StatsSnapshotter
}

func NewCallSession(params CallSessionParams) *CallSession {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Handler == nil {
		params.Handler = transport.UnimplementedHandler{}
	}
	if params.SliceProvider == nil {
		params.SliceProvider = slice.NewStaticProvider(slice.Context{})
	}

	s := &CallSession{
		params:       params,
		logger:       params.Logger.WithName("session"),
		ops:          make(chan func()),
		closed:       core.NewFuse(),
		sliceChanged: make(chan struct{}, 1),
		done:         make(chan struct{}),
		signalQueue:  workerpool.New(1),
		callConf:     params.Call,
		envelope:     NewBitrateEnvelope(params.Call.MinBitrateKbps, params.Call.MaxBitrateKbps),
		snapshotter:  NewStatsSnapshotter(params.Call.UseScream),
	}
	s.fsm = newSessionFSM(s.onStateChanged)

	params.SliceProvider.AddObserver(fmt.Sprintf("session-%p", s), func() {
		select {
		case s.sliceChanged <- struct{}{}:
		default:
		}
	})

	go s.loop()
	return s
}

func (s *CallSession) State() transport.SessionState {
	return sessionStateFromFSM(s.fsm.Current())
}

// PeerID returns the remote peer of the current call, or an empty string.
func (s *CallSession) PeerID() string {
	return s.peerID.Load()
}

func (s *CallSession) StartCall(ctx context.Context, peerID string) error {
	return s.do(ctx, func() error {
		return s.startCall(ctx, peerID)
	})
}

func (s *CallSession) ReceiveOffer(ctx context.Context, peerID string, sdp string) error {
	return s.do(ctx, func() error {
		return s.receiveOffer(ctx, peerID, sdp)
	})
}

func (s *CallSession) ReceiveAnswer(ctx context.Context, peerID string, sdp string) error {
	return s.do(ctx, func() error {
		return s.receiveAnswer(peerID, sdp)
	})
}

func (s *CallSession) ReceiveIceCandidate(ctx context.Context, peerID string, c types.IceCandidate) error {
	return s.do(ctx, func() error {
		s.receiveIceCandidate(peerID, c)
		return nil
	})
}

// Hangup ends the current call and notifies the peer. The call is torn down
// even when the notification cannot be sent.
func (s *CallSession) Hangup(ctx context.Context) error {
	return s.do(ctx, func() error {
		cs := s.call
		if cs == nil {
			return ErrNoActiveCall
		}
		err := s.params.Signal.SendHangup(ctx, cs.peerID)
		s.teardown("local hangup", false)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSignalSend, err)
		}
		return nil
	})
}

func (s *CallSession) ReceiveHangup(ctx context.Context, peerID string) error {
	return s.do(ctx, func() error {
		cs := s.call
		if cs == nil || (peerID != "" && peerID != cs.peerID) {
			return ErrNoActiveCall
		}
		s.teardown("remote hangup", false)
		return nil
	})
}

// SetBitrateConfig changes the sender bitrate envelope, applying it to the
// current call right away.
func (s *CallSession) SetBitrateConfig(ctx context.Context, minKbps, maxKbps int) error {
	return s.do(ctx, func() error {
		s.callConf.MinBitrateKbps = minKbps
		s.callConf.MaxBitrateKbps = maxKbps
		s.envelope = NewBitrateEnvelope(minKbps, maxKbps)
		if s.call != nil {
			s.applyEnvelope(s.call)
		}
		return nil
	})
}

// SetVideoCodec restricts the video codec offered or answered in later calls.
func (s *CallSession) SetVideoCodec(ctx context.Context, codec string) error {
	return s.do(ctx, func() error {
		s.callConf.VideoCodec = codec
		return nil
	})
}

// SetTrickle switches the candidate exchange mode for later calls.
func (s *CallSession) SetTrickle(ctx context.Context, trickle bool) error {
	return s.do(ctx, func() error {
		s.callConf.TrickleICE = trickle
		return nil
	})
}

func (s *CallSession) Stats(ctx context.Context) (StatsSnapshot, error) {
	var snap StatsSnapshot
	err := s.do(ctx, func() error {
		cs := s.call
		if cs == nil || s.fsm.Current() != stateActive {
			return ErrNoActiveCall
		}
		counters, err := cs.engine.GetStatsSnapshot(ctx)
		if err != nil {
			return err
		}
		snap = s.snapshotter.Snapshot(counters, s.connectivity())
		return nil
	})
	return snap, err
}

// Close ends any call in progress and stops the event loop.
func (s *CallSession) Close() {
	s.closed.Break()
	<-s.done
}

func (s *CallSession) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case s.ops <- func() { res <- fn() }:
	case <-s.closed.Watch():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-res
}

// post queues fn without waiting for it. It is a no-op once the session is closed.
func (s *CallSession) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.closed.Watch():
	}
}

func (s *CallSession) loop() {
	defer close(s.done)

	for {
		var events <-chan types.EngineEvent
		if s.call != nil {
			events = s.call.events
		}

		select {
		case <-s.closed.Watch():
			s.teardown("session closed", false)
			s.params.SliceProvider.RemoveObserver(fmt.Sprintf("session-%p", s))
			s.signalQueue.Stop()
			return
		case op := <-s.ops:
			op()
		case ev, ok := <-events:
			if !ok {
				s.call.events = nil
				continue
			}
			s.handleEngineEvent(s.call, ev)
		case <-s.sliceChanged:
			s.onSliceChanged()
		}
	}
}

func (s *CallSession) startCall(ctx context.Context, peerID string) error {
	if peerID == "" {
		return ErrMissingPeerID
	}
	if err := s.params.ICE.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidICEConfig, err)
	}
	if s.call != nil {
		s.logger.Infow("replacing current call", "peerID", s.call.peerID, "newPeerID", peerID)
		s.teardown("replaced by new call", false)
	}
	// candidates buffered while idle belong to an offer we never answered
	s.pending.Clear()

	cs, err := s.newCall(peerID, roleOfferer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiation, err)
	}
	s.transition(eventOffer)

	if err := cs.engine.PrepareLocalMedia(ctx); err != nil {
		return s.abort(fmt.Errorf("%w: could not prepare local media: %w", ErrNegotiation, err))
	}
	offer, err := cs.engine.CreateOffer(ctx)
	if err != nil {
		return s.abort(fmt.Errorf("%w: could not create offer: %w", ErrNegotiation, err))
	}
	offer = FilterVideoCodec(offer, s.callConf.VideoCodec)
	if err := cs.engine.SetLocalDescription(types.SDPTypeOffer, offer); err != nil {
		return s.abort(fmt.Errorf("%w: could not set local description: %w", ErrNegotiation, err))
	}

	if s.params.AnswerTimeout > 0 {
		generation := cs.generation
		cs.answerTimer = time.AfterFunc(s.params.AnswerTimeout, func() {
			s.post(func() { s.onAnswerTimeout(generation) })
		})
	}

	if cs.trickle {
		if err := s.sendDescription(ctx, cs, types.SDPTypeOffer, offer); err != nil {
			return s.abort(err)
		}
		return nil
	}

	cs.pendingPublish = types.SDPTypeOffer
	if cs.engine.GatheringComplete() {
		return s.publishPending(ctx, cs)
	}
	s.logger.Debugw("waiting for ICE gathering before sending offer", "peerID", peerID)
	return nil
}

func (s *CallSession) receiveOffer(ctx context.Context, peerID string, offer string) error {
	if peerID == "" {
		return ErrMissingPeerID
	}
	if err := s.params.ICE.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidICEConfig, err)
	}
	if s.call != nil {
		s.logger.Infow("replacing current call", "peerID", s.call.peerID, "newPeerID", peerID)
		s.teardown("replaced by incoming call", false)
	}

	cs, err := s.newCall(peerID, roleAnswerer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiation, err)
	}
	s.transition(eventAnswer)

	if err := cs.engine.SetRemoteDescription(types.SDPTypeOffer, offer); err != nil {
		return s.abort(fmt.Errorf("%w: could not set remote description: %w", ErrNegotiation, err))
	}
	cs.remoteDescriptionSet = true
	s.drainPending(cs)

	if err := cs.engine.PrepareLocalMedia(ctx); err != nil {
		return s.abort(fmt.Errorf("%w: could not prepare local media: %w", ErrNegotiation, err))
	}
	answer, err := cs.engine.CreateAnswer(ctx)
	if err != nil {
		return s.abort(fmt.Errorf("%w: could not create answer: %w", ErrNegotiation, err))
	}
	answer = FilterVideoCodec(answer, s.callConf.VideoCodec)
	if err := cs.engine.SetLocalDescription(types.SDPTypeAnswer, answer); err != nil {
		return s.abort(fmt.Errorf("%w: could not set local description: %w", ErrNegotiation, err))
	}

	if cs.trickle {
		if err := s.sendDescription(ctx, cs, types.SDPTypeAnswer, answer); err != nil {
			return s.abort(err)
		}
		s.activate(cs)
		return nil
	}

	cs.pendingPublish = types.SDPTypeAnswer
	if cs.engine.GatheringComplete() {
		return s.publishPending(ctx, cs)
	}
	s.logger.Debugw("waiting for ICE gathering before sending answer", "peerID", peerID)
	return nil
}

func (s *CallSession) receiveAnswer(peerID string, answer string) error {
	cs := s.call
	if cs == nil || s.fsm.Current() != stateNegotiatingOfferer {
		return ErrUnexpectedAnswer
	}
	if peerID != "" && peerID != cs.peerID {
		return ErrUnexpectedAnswer
	}

	if err := cs.engine.SetRemoteDescription(types.SDPTypeAnswer, answer); err != nil {
		return s.abort(fmt.Errorf("%w: could not set remote description: %w", ErrNegotiation, err))
	}
	cs.stopTimer()
	cs.remoteDescriptionSet = true
	s.drainPending(cs)
	s.activate(cs)
	return nil
}

func (s *CallSession) receiveIceCandidate(peerID string, c types.IceCandidate) {
	cs := s.call
	if cs != nil && peerID != "" && peerID != cs.peerID {
		s.logger.Debugw("ignoring candidate from unrelated peer", "peerID", peerID, "candidate", c.Candidate)
		return
	}
	if cs == nil || !cs.remoteDescriptionSet {
		if s.pending.Len() >= maxPendingCandidates {
			s.pending.PopFront()
		}
		s.pending.PushBack(pendingCandidate{peerID: peerID, candidate: c})
		return
	}
	s.admitRemote(cs, c)
}

func (s *CallSession) newCall(peerID string, role string) (*callState, error) {
	sliceCtx := s.sliceContext()
	engine, err := s.params.EngineFactory.NewEngine(types.EngineParams{
		ICEServers: s.params.ICE.Servers,
		Trickle:    s.callConf.TrickleICE,
		UseScream:  s.callConf.UseScream,
		VideoCodec: s.callConf.VideoCodec,
		Slice:      sliceCtx,
		MinBitrate: s.envelope.MinBps,
		MaxBitrate: s.envelope.MaxBps,
		Logger:     s.logger.WithValues("peerID", peerID),
	})
	if err != nil {
		return nil, err
	}

	cs := &callState{
		peerID:     peerID,
		role:       role,
		engine:     engine,
		events:     engine.Events(),
		gate:       NewIceCandidateGate(sliceCtx, s.logger.WithValues("peerID", peerID)),
		trickle:    s.callConf.TrickleICE,
		generation: s.generation.Inc(),
		startedAt:  time.Now(),
	}
	s.call = cs
	s.peerID.Store(peerID)
	s.snapshotter.Reset()
	prometheus.CallStarted(role)

	s.logger.Infow("starting call",
		"peerID", peerID,
		"role", role,
		"trickle", cs.trickle,
		"videoCodec", s.callConf.VideoCodec,
		"sliceActive", sliceCtx.Active(),
	)
	s.applyEnvelope(cs)
	return cs, nil
}

func (s *CallSession) applyEnvelope(cs *callState) {
	if err := cs.engine.SetSenderBitrateEnvelope(s.envelope.MinBps, s.envelope.MaxBps); err != nil {
		s.logger.Warnw("could not apply bitrate envelope", err,
			"minBps", s.envelope.MinBps,
			"maxBps", s.envelope.MaxBps,
		)
	}
}

func (s *CallSession) sendDescription(ctx context.Context, cs *callState, sdpType types.SDPType, sdp string) error {
	var err error
	switch sdpType {
	case types.SDPTypeOffer:
		err = s.params.Signal.SendOffer(ctx, cs.peerID, sdp)
	case types.SDPTypeAnswer:
		err = s.params.Signal.SendAnswer(ctx, cs.peerID, sdp)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSignalSend, sdpType, err)
	}
	return nil
}

// publishPending sends the description held back until gathering completed.
// Runs at most once per call.
func (s *CallSession) publishPending(ctx context.Context, cs *callState) error {
	sdpType := cs.pendingPublish
	if sdpType == "" {
		return nil
	}
	cs.pendingPublish = ""

	if retracted := cs.gate.Retracted(); len(retracted) > 0 {
		if err := cs.engine.RemoveIceCandidates(retracted); err != nil {
			s.logger.Warnw("could not remove retracted candidates", err, "count", len(retracted))
		}
	}
	if err := s.sendDescription(ctx, cs, sdpType, cs.engine.LocalDescription()); err != nil {
		return s.abort(err)
	}
	if sdpType == types.SDPTypeAnswer {
		s.activate(cs)
	}
	return nil
}

func (s *CallSession) activate(cs *callState) {
	s.transition(eventActivate)
	cs.activeAt = time.Now()
	setupTime := cs.activeAt.Sub(cs.startedAt)
	prometheus.CallActive(cs.role, setupTime)
	s.logger.Infow("call active", "peerID", cs.peerID, "role", cs.role, "setupTime", setupTime)

	if s.params.Sampler != nil {
		s.params.Sampler.Start(cs.engine)
	}
	s.params.Handler.OnCallActive(cs.peerID)
}

func (s *CallSession) drainPending(cs *callState) {
	for s.pending.Len() > 0 {
		p := s.pending.PopFront()
		if p.peerID != "" && p.peerID != cs.peerID {
			continue
		}
		s.admitRemote(cs, p.candidate)
	}
}

func (s *CallSession) admitRemote(cs *callState, c types.IceCandidate) {
	verdict := cs.gate.AdmitRemote(c)
	prometheus.RecordCandidate("remote", verdict.String())
	if verdict != VerdictAdmit {
		return
	}
	if err := cs.engine.AddIceCandidate(c); err != nil {
		s.logger.Warnw("could not add remote candidate", err, "candidate", c.Candidate)
	}
}

func (s *CallSession) handleEngineEvent(cs *callState, ev types.EngineEvent) {
	switch e := ev.(type) {
	case types.LocalCandidateEvent:
		s.onLocalCandidate(cs, e.Candidate)

	case types.GatheringStateEvent:
		s.logger.Debugw("ICE gathering state changed", "peerID", cs.peerID, "state", e.State)
		if e.State == types.GatheringStateComplete {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.publishPending(ctx, cs)
			cancel()
			if err != nil {
				s.params.Handler.OnFailed(cs.peerID, err)
			}
		}

	case types.ConnectionStateEvent:
		s.logger.Infow("ICE connection state changed", "peerID", cs.peerID, "state", e.State)
		if e.State == types.ConnectionStateFailed {
			s.fail(cs, ErrICEFailed)
		}

	case types.SelectedPairEvent:
		s.logger.Debugw("selected candidate pair changed",
			"peerID", cs.peerID,
			"local", e.Local.String(),
			"remote", e.Remote.String(),
		)
		if retract := cs.gate.ValidateSelectedPair(e.Local, e.Remote); len(retract) > 0 {
			prometheus.RecordCandidate("selected", VerdictRetract.String())
			if err := cs.engine.RemoveIceCandidates(retract); err != nil {
				s.logger.Warnw("could not retract selected candidate", err, "candidate", e.Local.Candidate)
			}
		}
	}
}

func (s *CallSession) onLocalCandidate(cs *callState, c types.IceCandidate) {
	verdict := cs.gate.AdmitLocal(c)
	prometheus.RecordCandidate("local", verdict.String())
	if verdict == VerdictRetract {
		if err := cs.engine.RemoveIceCandidates([]types.IceCandidate{c}); err != nil {
			s.logger.Warnw("could not retract local candidate", err, "candidate", c.Candidate)
		}
		return
	}
	if !cs.trickle {
		return
	}

	peerID, generation := cs.peerID, cs.generation
	s.signalQueue.Submit(func() {
		if s.generation.Load() != generation {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.params.Signal.SendIceCandidate(ctx, peerID, c)
		if err != nil {
			s.logger.Warnw("could not send candidate", err, "peerID", peerID)
			s.post(func() {
				s.params.Handler.OnTransientError(peerID, fmt.Errorf("%w: candidate: %w", ErrSignalSend, err))
			})
		}
	})
}

func (s *CallSession) onAnswerTimeout(generation uint64) {
	cs := s.call
	if cs == nil || cs.generation != generation || s.fsm.Current() != stateNegotiatingOfferer {
		return
	}
	s.fail(cs, ErrAnswerTimeout)
}

func (s *CallSession) onSliceChanged() {
	ctx := s.sliceContext()
	s.logger.Debugw("slice network changed",
		"active", ctx.Active(),
		"sliceAddresses", ctx.SliceAddresses(),
		"nonSliceAddresses", ctx.NonSliceAddresses(),
	)
	if s.call != nil {
		s.call.gate.UpdateContext(ctx)
	}
}

// sliceContext is the provider's view, with slicing disabled while on Wi-Fi.
func (s *CallSession) sliceContext() slice.Context {
	ctx := s.params.SliceProvider.Current()
	if s.params.Radio != nil && s.params.Radio.Current().OnWifi {
		return ctx.WithoutSlice()
	}
	return ctx
}

func (s *CallSession) connectivity() string {
	if s.params.Radio != nil && s.params.Radio.Current().OnWifi {
		return ConnectivityWifi
	}
	if s.sliceContext().Active() {
		return ConnectivitySlicing
	}
	return ConnectivityCellular
}

// abort tears down a call that failed during negotiation and returns err.
func (s *CallSession) abort(err error) error {
	s.logger.Warnw("call setup failed", err, "peerID", s.peerID.Load())
	s.teardown(err.Error(), true)
	return err
}

func (s *CallSession) fail(cs *callState, err error) {
	s.logger.Warnw("call failed", err, "peerID", cs.peerID)
	s.teardown(err.Error(), true)
	s.params.Handler.OnFailed(cs.peerID, err)
}

// teardown stops sampling before the engine is released so that no stats
// are read from a closing transport.
func (s *CallSession) teardown(reason string, failed bool) {
	cs := s.call
	if cs == nil {
		return
	}
	s.transition(eventTerminate)
	cs.stopTimer()

	if s.params.Sampler != nil {
		s.params.Sampler.Stop()
	}
	if err := cs.engine.Close(); err != nil {
		s.logger.Warnw("could not close media engine", err, "peerID", cs.peerID)
	}
	s.pending.Clear()
	s.snapshotter.Reset()
	s.call = nil
	s.generation.Inc()

	s.transition(eventReset)
	s.peerID.Store("")

	wasActive := !cs.activeAt.IsZero()
	var duration time.Duration
	if wasActive {
		duration = time.Since(cs.activeAt)
	}
	prometheus.CallEnded(cs.role, wasActive, duration, failed)
	s.logger.Infow("call ended", "peerID", cs.peerID, "reason", reason, "duration", duration)
	s.params.Handler.OnCallEnded(cs.peerID, reason)
}

func (s *CallSession) transition(event string) {
	if err := s.fsm.Event(context.Background(), event); err != nil {
		s.logger.Warnw("invalid session transition", err, "event", event, "state", s.fsm.Current())
	}
}

func (s *CallSession) onStateChanged(src, dst string) {
	prometheus.SetSessionState(src, dst)
	s.params.Handler.OnStateChanged(s.peerID.Load(), sessionStateFromFSM(dst))
}
