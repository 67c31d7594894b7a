package measurement

import (
	"context"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/radio"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
)

type PipelineParams struct {
	Config config.MeasurementConfig
	Radio  radio.Provider
	Logger logger.Logger
	// called with the summary of every call that produced measurements
	OnSummary func(Summary)
}

// Pipeline samples transport counters while a call is active, turns them into
// items, batches them and hands full batches to the current sink. It
// implements types.StatsSampler.
type Pipeline struct {
	params PipelineParams
	active atomic.Bool

	lock    sync.Mutex
	sink    Sink
	running bool
	stop    core.Fuse
	done    chan struct{}

	// owned by the sampling goroutine while running, by Stop afterwards
	baseline CounterBaseline
	batch    []Item
	acc      summaryAccumulator
}

func NewPipeline(params PipelineParams) *Pipeline {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Config.Interval < config.MinMeasurementInterval {
		params.Config.Interval = config.MinMeasurementInterval
	}
	if params.Config.BatchSize < 1 {
		params.Config.BatchSize = 1
	}
	return &Pipeline{
		params: params,
	}
}

// SetSink replaces the active sink, closing the previous one first.
func (p *Pipeline) SetSink(s Sink) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.sink != nil {
		if err := p.sink.Close(); err != nil {
			p.params.Logger.Warnw("could not close measurement sink", err, "sink", p.sink.Name())
		}
	}
	p.sink = s
}

func (p *Pipeline) currentSink() Sink {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.sink
}

func (p *Pipeline) IsActive() bool {
	return p.active.Load()
}

func (p *Pipeline) Start(source types.CounterSource) {
	if !p.params.Config.LoggingEnabled() {
		return
	}

	p.lock.Lock()
	if p.running {
		p.lock.Unlock()
		return
	}
	p.running = true
	p.stop = core.NewFuse()
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.lock.Unlock()

	p.baseline.Reset()
	p.batch = make([]Item, 0, p.params.Config.BatchSize)
	p.acc.reset()
	p.active.Store(true)

	p.params.Logger.Debugw("starting measurement sampler",
		"interval", p.params.Config.Interval,
		"batchSize", p.params.Config.BatchSize,
	)
	go p.run(source, stop, done)
}

// Stop halts sampling, waits for the sampler to exit, flushes what is left and
// emits the call summary.
func (p *Pipeline) Stop() {
	p.lock.Lock()
	if !p.running {
		p.lock.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	p.lock.Unlock()

	p.active.Store(false)
	stop.Break()
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.flush(ctx)

	if p.acc.count == 0 {
		return
	}
	summary := p.acc.summary()
	p.acc.reset()
	if sink := p.currentSink(); sink != nil {
		if err := sink.EmitSummary(ctx, summary); err != nil {
			p.params.Logger.Warnw("could not emit call summary", err, "sink", sink.Name())
		}
	}
	if p.params.OnSummary != nil {
		p.params.OnSummary(summary)
	}
}

func (p *Pipeline) run(source types.CounterSource, stop core.Fuse, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop.Watch():
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.params.Config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop.Watch():
			return
		case <-ticker.C:
			p.sample(ctx, source)
		}
	}
}

func (p *Pipeline) sample(ctx context.Context, source types.CounterSource) {
	if !p.active.Load() {
		return
	}

	counters, err := source.GetStatsSnapshot(ctx)
	if err != nil {
		// skip and try again on the next tick
		p.params.Logger.Debugw("could not read stats", "error", err)
		prometheus.RecordSkippedSample("stats_error")
		return
	}

	delta, ok := p.baseline.Advance(counters)
	if !ok {
		prometheus.RecordSkippedSample("stale")
		return
	}
	item := p.buildItem(counters, delta)

	// the call may have ended while stats were being read
	if !p.active.Load() {
		return
	}

	p.batch = append(p.batch, item)
	p.acc.add(&item)

	rtt := float64(-1)
	if item.RTTMs != nil {
		rtt = *item.RTTMs
	}
	prometheus.RecordMeasurement(rtt, delta.BitrateKbps, delta.EcnCePercent)

	if len(p.batch) >= p.params.Config.BatchSize {
		// the sampling context is cancelled on stop, a full batch must still go out
		p.flush(context.Background())
	}
}

func (p *Pipeline) buildItem(c types.Counters, d Delta) Item {
	item := Item{
		TimestampMs:     c.TimestampUs / 1000,
		EcnCePercent:    d.EcnCePercent,
		PacketLossCount: d.PacketLoss,
		StreamID:        p.params.Config.StreamID,
		SessionName:     p.params.Config.SessionName,
	}
	if c.HasRTT() {
		rtt := c.RTTMs
		item.RTTMs = &rtt
	}
	if d.HasBitrate {
		kbps := d.BitrateKbps
		item.LoadKbits = &kbps
	}

	if p.params.Radio != nil {
		r := p.params.Radio.Current()
		item.CellID = r.CellID
		item.PCI = r.PCI
		item.Band = r.BandMHz
		if r.IsNRStandalone {
			item.IsNRSA = 1
		}
		item.Dbm = r.Dbm
		if p.params.Config.IncludeLocation {
			item.Lat = r.Latitude
			item.Lon = r.Longitude
		}
	}
	return item
}

func (p *Pipeline) flush(ctx context.Context) {
	if len(p.batch) == 0 {
		return
	}
	batch := p.batch
	p.batch = make([]Item, 0, p.params.Config.BatchSize)

	sink := p.currentSink()
	if sink == nil {
		return
	}
	if err := sink.Emit(ctx, batch); err != nil {
		p.params.Logger.Warnw("could not emit measurements", err, "sink", sink.Name(), "items", len(batch))
	}
}

// Close stops sampling and closes the sink.
func (p *Pipeline) Close() {
	p.Stop()
	p.SetSink(nil)
}
