package pionengine

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/interceptor/pkg/rfc8888"
	"github.com/pion/interceptor/pkg/twcc"
	"github.com/pion/webrtc/v3"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc/types"
)

const (
	eventQueueSize = 128

	iceDisconnectedTimeout = 10 * time.Second
	iceFailedTimeout       = 25 * time.Second // pion's default
	iceKeepaliveInterval   = 2 * time.Second  // pion's default

	defaultInitialBitrate = 1_000_000
)

var (
	ErrEngineClosed    = errors.New("media engine closed")
	ErrInvalidEnvelope = errors.New("invalid bitrate envelope")
)

// Factory creates pion backed engines.
func Factory() types.EngineFactory {
	return types.EngineFactoryFunc(func(params types.EngineParams) (types.MediaEngine, error) {
		e, err := NewEngine(params)
		if err != nil {
			return nil, err
		}
		return e, nil
	})
}

// Engine is one pion PeerConnection with local audio and video senders.
type Engine struct {
	params types.EngineParams
	logger logger.Logger
	pc     *webrtc.PeerConnection
	ecn    *ECNCounter
	events chan types.EngineEvent
	closed core.Fuse

	lock      sync.Mutex
	bwe       cc.BandwidthEstimator
	prepared  bool
	retracted map[string]struct{}
	minBps    int64
	maxBps    int64

	targetBitrate atomic.Int64
}

func NewEngine(params types.EngineParams) (*Engine, error) {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	e := &Engine{
		params:    params,
		logger:    params.Logger.WithName("engine"),
		ecn:       &ECNCounter{},
		closed:    core.NewFuse(),
		events:    make(chan types.EngineEvent, eventQueueSize),
		retracted: make(map[string]struct{}),
		minBps:    params.MinBitrate,
		maxBps:    params.MaxBitrate,
	}

	pc, err := e.newPeerConnection()
	if err != nil {
		return nil, err
	}
	e.pc = pc

	pc.OnICECandidate(e.onICECandidate)
	pc.OnICEGatheringStateChange(e.onICEGatheringStateChange)
	pc.OnICEConnectionStateChange(e.onICEConnectionStateChange)
	if sctp := pc.SCTP(); sctp != nil {
		if dtls := sctp.Transport(); dtls != nil {
			if iceTransport := dtls.ICETransport(); iceTransport != nil {
				iceTransport.OnSelectedCandidatePairChange(e.onSelectedCandidatePairChange)
			}
		}
	}
	return e, nil
}

func (e *Engine) newPeerConnection() (*webrtc.PeerConnection, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)
	// host candidates must carry real addresses to be classified
	se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	se.LoggerFactory = logger.LoggerFactory()

	if sliceCtx := e.params.Slice; sliceCtx.Active() {
		if iface := sliceCtx.Interface; iface != "" {
			se.SetInterfaceFilter(func(name string) bool {
				return name == iface
			})
		} else {
			se.SetIPFilter(func(ip net.IP) bool {
				return sliceCtx.IsSliceAddress(ip.String())
			})
		}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, err
	}

	gf, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(e.gccOptions()...)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "could not create congestion controller")
	}
	gf.OnNewPeerConnection(func(_ string, estimator cc.BandwidthEstimator) {
		e.onBandwidthEstimator(estimator)
	})
	ir.Add(gf)

	tf, err := twcc.NewHeaderExtensionInterceptor()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "could not create twcc header extension interceptor")
	}
	ir.Add(tf)

	if e.params.UseScream {
		ff, err := rfc8888.NewSenderInterceptor()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "could not create congestion control feedback interceptor")
		}
		ir.Add(ff)
	}
	ir.Add(&ecnInterceptorFactory{counter: e.ecn})

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(se),
		webrtc.WithInterceptorRegistry(ir),
	)
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: toICEServers(e.params.ICEServers),
	})
}

func (e *Engine) gccOptions() []gcc.Option {
	initial := int64(defaultInitialBitrate)
	opts := []gcc.Option{gcc.SendSideBWEPacer(gcc.NewNoOpPacer())}
	if e.params.MinBitrate > 0 {
		opts = append(opts, gcc.SendSideBWEMinBitrate(int(e.params.MinBitrate)))
		initial = max(initial, e.params.MinBitrate)
	}
	if e.params.MaxBitrate > 0 {
		opts = append(opts, gcc.SendSideBWEMaxBitrate(int(e.params.MaxBitrate)))
		initial = min(initial, e.params.MaxBitrate)
	}
	return append(opts, gcc.SendSideBWEInitialBitrate(int(initial)))
}

func (e *Engine) onBandwidthEstimator(estimator cc.BandwidthEstimator) {
	e.lock.Lock()
	e.bwe = estimator
	e.lock.Unlock()

	estimator.OnTargetBitrateChange(func(bitrate int) {
		target := e.clampBitrate(int64(bitrate))
		e.targetBitrate.Store(target)
		e.logger.Debugw("target bitrate changed", "estimate", bitrate, "target", target)
	})
}

func (e *Engine) clampBitrate(bps int64) int64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	if bps < e.minBps {
		bps = e.minBps
	}
	if e.maxBps > 0 && bps > e.maxBps {
		bps = e.maxBps
	}
	return bps
}

// TargetBitrate is the latest congestion controller target inside the envelope.
func (e *Engine) TargetBitrate() int64 {
	return e.targetBitrate.Load()
}

func (e *Engine) PrepareLocalMedia(_ context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.prepared {
		return nil
	}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: videoMimeType(e.params.VideoCodec)},
		"video",
		"slicecall",
	)
	if err != nil {
		return err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"slicecall",
	)
	if err != nil {
		return err
	}

	for _, track := range []webrtc.TrackLocal{video, audio} {
		sender, err := e.pc.AddTrack(track)
		if err != nil {
			return pkgerrors.Wrapf(err, "could not add %s track", track.Kind())
		}
		// RTCP has to be read for interceptors to see feedback
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	e.prepared = true
	return nil
}

func (e *Engine) CreateOffer(_ context.Context) (string, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (e *Engine) CreateAnswer(_ context.Context) (string, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (e *Engine) SetLocalDescription(sdpType types.SDPType, sdp string) error {
	return e.pc.SetLocalDescription(webrtc.SessionDescription{Type: toPionSDPType(sdpType), SDP: sdp})
}

func (e *Engine) SetRemoteDescription(sdpType types.SDPType, sdp string) error {
	return e.pc.SetRemoteDescription(webrtc.SessionDescription{Type: toPionSDPType(sdpType), SDP: sdp})
}

func (e *Engine) LocalDescription() string {
	ld := e.pc.LocalDescription()
	if ld == nil {
		return ""
	}

	e.lock.Lock()
	retracted := make(map[string]struct{}, len(e.retracted))
	for k := range e.retracted {
		retracted[k] = struct{}{}
	}
	e.lock.Unlock()

	filtered, err := stripCandidates(ld.SDP, retracted)
	if err != nil {
		e.logger.Warnw("could not strip retracted candidates", err)
	}
	return filtered
}

func (e *Engine) AddIceCandidate(c types.IceCandidate) error {
	return e.pc.AddICECandidate(toCandidateInit(c))
}

// RemoveIceCandidates withdraws local candidates. pion cannot drop a gathered
// candidate from its agent, so they are kept out of the local description.
func (e *Engine) RemoveIceCandidates(cs []types.IceCandidate) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, c := range cs {
		e.retracted[candidateKey(c.Candidate)] = struct{}{}
	}
	return nil
}

func (e *Engine) GatheringComplete() bool {
	return e.pc.ICEGatheringState() == webrtc.ICEGatheringStateComplete
}

// SetSenderBitrateEnvelope bounds the congestion controller target reported
// to the video sender.
func (e *Engine) SetSenderBitrateEnvelope(minBps, maxBps int64) error {
	if minBps < 0 || maxBps < minBps {
		return ErrInvalidEnvelope
	}

	e.lock.Lock()
	e.minBps, e.maxBps = minBps, maxBps
	bwe := e.bwe
	e.lock.Unlock()

	if bwe != nil {
		e.targetBitrate.Store(e.clampBitrate(int64(bwe.GetTargetBitrate())))
	}
	return nil
}

func (e *Engine) GetStatsSnapshot(_ context.Context) (types.Counters, error) {
	if e.closed.IsBroken() {
		return types.Counters{}, ErrEngineClosed
	}
	report := e.pc.GetStats()
	ect1, ce := e.ecn.Counts()
	return countersFromReport(report, time.Now().UnixMicro(), ect1, ce), nil
}

func (e *Engine) Events() <-chan types.EngineEvent {
	return e.events
}

func (e *Engine) Close() error {
	if e.closed.IsBroken() {
		return nil
	}
	e.closed.Break()
	return e.pc.Close()
}

func (e *Engine) push(ev types.EngineEvent) {
	select {
	case e.events <- ev:
	case <-e.closed.Watch():
	}
}

func (e *Engine) onICECandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	candidate, err := toIceCandidate(c)
	if err != nil {
		e.logger.Warnw("could not parse local candidate", err, "candidate", c.String())
		return
	}
	e.push(types.LocalCandidateEvent{Candidate: candidate})
}

func (e *Engine) onICEGatheringStateChange(state webrtc.ICEGathererState) {
	switch state {
	case webrtc.ICEGathererStateGathering:
		e.push(types.GatheringStateEvent{State: types.GatheringStateGathering})
	case webrtc.ICEGathererStateComplete:
		e.push(types.GatheringStateEvent{State: types.GatheringStateComplete})
	}
}

func (e *Engine) onICEConnectionStateChange(state webrtc.ICEConnectionState) {
	var cs types.ConnectionState
	switch state {
	case webrtc.ICEConnectionStateNew:
		cs = types.ConnectionStateNew
	case webrtc.ICEConnectionStateChecking:
		cs = types.ConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		cs = types.ConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		cs = types.ConnectionStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		cs = types.ConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		cs = types.ConnectionStateFailed
	case webrtc.ICEConnectionStateClosed:
		cs = types.ConnectionStateClosed
	default:
		return
	}
	e.push(types.ConnectionStateEvent{State: cs})
}

func (e *Engine) onSelectedCandidatePairChange(pair *webrtc.ICECandidatePair) {
	if pair == nil || pair.Local == nil || pair.Remote == nil {
		return
	}
	local, err := toIceCandidate(pair.Local)
	if err != nil {
		e.logger.Warnw("could not parse selected local candidate", err)
		return
	}
	remote, err := toIceCandidate(pair.Remote)
	if err != nil {
		e.logger.Warnw("could not parse selected remote candidate", err)
		return
	}
	e.push(types.SelectedPairEvent{Local: local, Remote: remote})
}

func toPionSDPType(t types.SDPType) webrtc.SDPType {
	if t == types.SDPTypeAnswer {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}

func toICEServers(servers []config.ICEServerConfig) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}

func videoMimeType(codec string) string {
	switch strings.ToUpper(codec) {
	case "H264":
		return webrtc.MimeTypeH264
	case "VP9":
		return webrtc.MimeTypeVP9
	case "AV1":
		return webrtc.MimeTypeAV1
	default:
		return webrtc.MimeTypeVP8
	}
}
