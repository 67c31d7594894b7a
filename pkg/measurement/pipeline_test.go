package measurement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/radio"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/testutils"
)

type fakeSource struct {
	lock  sync.Mutex
	calls int
	fail  bool
}

func (f *fakeSource) GetStatsSnapshot(_ context.Context) (types.Counters, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++
	if f.fail {
		return types.Counters{}, errors.New("stats unavailable")
	}
	return types.Counters{
		TimestampUs: int64(f.calls) * 50_000,
		RTTMs:       float64(f.calls),
		Video: types.StreamCounters{
			BytesReceived: uint64(f.calls) * 10_000,
			PacketsLost:   int64(f.calls),
		},
	}, nil
}

func (f *fakeSource) setFail(fail bool) {
	f.lock.Lock()
	f.fail = fail
	f.lock.Unlock()
}

type fakeSink struct {
	lock      sync.Mutex
	batches   [][]Item
	summaries []Summary
	closed    bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Configure(string, Credentials) error { return nil }

func (f *fakeSink) Emit(_ context.Context, batch []Item) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSink) EmitSummary(_ context.Context, s Summary) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeSink) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) items() []Item {
	f.lock.Lock()
	defer f.lock.Unlock()
	var items []Item
	for _, b := range f.batches {
		items = append(items, b...)
	}
	return items
}

func (f *fakeSink) batchCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.batches)
}

func testMeasurementConfig(batch int) config.MeasurementConfig {
	return config.MeasurementConfig{
		Enabled:         true,
		Sink:            config.SinkLog,
		Interval:        config.MinMeasurementInterval,
		BatchSize:       batch,
		IncludeLocation: true,
		SessionName:     "webrtc-l4s",
		StreamID:        "inbound-video",
	}
}

func TestPipeline(t *testing.T) {
	t.Run("flushes full batches and the remainder on stop", func(t *testing.T) {
		sink := &fakeSink{}
		var summary *Summary
		p := NewPipeline(PipelineParams{
			Config:    testMeasurementConfig(3),
			OnSummary: func(s Summary) { summary = &s },
		})
		p.SetSink(sink)

		p.Start(&fakeSource{})
		require.True(t, p.IsActive())
		testutils.WithTimeout(t, func() string {
			if sink.batchCount() < 2 {
				return fmt.Sprintf("expected 2 batches, got %d", sink.batchCount())
			}
			return ""
		})
		p.Stop()
		require.False(t, p.IsActive())

		sink.lock.Lock()
		for i, b := range sink.batches {
			if i < len(sink.batches)-1 {
				require.Len(t, b, 3)
			} else {
				require.NotEmpty(t, b)
				require.LessOrEqual(t, len(b), 3)
			}
		}
		require.Len(t, sink.summaries, 1)
		sink.lock.Unlock()

		items := sink.items()
		require.NotNil(t, summary)
		require.Equal(t, len(items), summary.Count)
		require.Equal(t, len(items), summary.RTTSamples)

		for i := 1; i < len(items); i++ {
			require.Greater(t, items[i].TimestampMs, items[i-1].TimestampMs)
		}
		// the first item has no bitrate and absolute loss
		require.Nil(t, items[0].LoadKbits)
		require.EqualValues(t, 1, items[0].PacketLossCount)
		require.NotNil(t, items[1].LoadKbits)
		require.EqualValues(t, 1, items[1].PacketLossCount)
		require.Equal(t, "inbound-video", items[0].StreamID)
		require.Equal(t, "webrtc-l4s", items[0].SessionName)
	})

	t.Run("no items after stop", func(t *testing.T) {
		sink := &fakeSink{}
		p := NewPipeline(PipelineParams{Config: testMeasurementConfig(1)})
		p.SetSink(sink)

		p.Start(&fakeSource{})
		testutils.WithTimeout(t, func() string {
			if len(sink.items()) == 0 {
				return "no items"
			}
			return ""
		})
		p.Stop()
		count := len(sink.items())
		time.Sleep(50 * time.Millisecond)
		require.Equal(t, count, len(sink.items()))

		// stopping twice is harmless
		p.Stop()
	})

	t.Run("restarts for the next call", func(t *testing.T) {
		sink := &fakeSink{}
		p := NewPipeline(PipelineParams{Config: testMeasurementConfig(1)})
		p.SetSink(sink)

		for call := 0; call < 2; call++ {
			before := sink.batchCount()
			p.Start(&fakeSource{})
			require.True(t, p.IsActive())
			testutils.WithTimeout(t, func() string {
				if sink.batchCount() == before {
					return "no items for call"
				}
				return ""
			})
			p.Stop()
			require.False(t, p.IsActive())
		}

		sink.lock.Lock()
		defer sink.lock.Unlock()
		require.Len(t, sink.summaries, 2)
	})

	t.Run("stats failures are skipped", func(t *testing.T) {
		sink := &fakeSink{}
		source := &fakeSource{fail: true}
		p := NewPipeline(PipelineParams{Config: testMeasurementConfig(1)})
		p.SetSink(sink)

		p.Start(source)
		testutils.WithTimeout(t, func() string {
			source.lock.Lock()
			defer source.lock.Unlock()
			if source.calls < 3 {
				return "sampler did not retry"
			}
			return ""
		})
		require.Empty(t, sink.items())

		source.setFail(false)
		testutils.WithTimeout(t, func() string {
			if len(sink.items()) == 0 {
				return "sampler did not recover"
			}
			return ""
		})
		p.Stop()
	})

	t.Run("disabled logging never samples", func(t *testing.T) {
		conf := testMeasurementConfig(1)
		conf.Sink = config.SinkNone
		source := &fakeSource{}
		p := NewPipeline(PipelineParams{Config: conf})

		p.Start(source)
		require.False(t, p.IsActive())
		time.Sleep(30 * time.Millisecond)
		p.Stop()

		source.lock.Lock()
		defer source.lock.Unlock()
		require.Zero(t, source.calls)
	})

	t.Run("set sink closes the previous one", func(t *testing.T) {
		first, second := &fakeSink{}, &fakeSink{}
		p := NewPipeline(PipelineParams{Config: testMeasurementConfig(1)})
		p.SetSink(first)
		p.SetSink(second)
		require.True(t, first.closed)
		require.False(t, second.closed)

		p.Close()
		require.True(t, second.closed)
	})
}

func TestPipelineEnrichment(t *testing.T) {
	dbm := -97
	lat, lon := 48.1, 11.5
	holder := radio.NewHolder(radio.Snapshot{
		CellID:         4711,
		PCI:            42,
		BandMHz:        3600,
		IsNRStandalone: true,
		Dbm:            &dbm,
		Latitude:       &lat,
		Longitude:      &lon,
	})

	t.Run("with location", func(t *testing.T) {
		p := NewPipeline(PipelineParams{Config: testMeasurementConfig(1), Radio: holder})
		item := p.buildItem(types.Counters{TimestampUs: 1_500_000, RTTMs: 12.5}, Delta{BitrateKbps: 800, HasBitrate: true})

		require.EqualValues(t, 1500, item.TimestampMs)
		require.Equal(t, 12.5, *item.RTTMs)
		require.Equal(t, 800.0, *item.LoadKbits)
		require.EqualValues(t, 4711, item.CellID)
		require.Equal(t, 42, item.PCI)
		require.Equal(t, 3600, item.Band)
		require.Equal(t, 1, item.IsNRSA)
		require.Equal(t, -97, *item.Dbm)
		require.Equal(t, 48.1, *item.Lat)
		require.Equal(t, 11.5, *item.Lon)
	})

	t.Run("without location or rtt", func(t *testing.T) {
		conf := testMeasurementConfig(1)
		conf.IncludeLocation = false
		p := NewPipeline(PipelineParams{Config: conf, Radio: holder})
		item := p.buildItem(types.Counters{TimestampUs: 1000, RTTMs: -1}, Delta{})

		require.Nil(t, item.RTTMs)
		require.Nil(t, item.LoadKbits)
		require.Nil(t, item.Lat)
		require.Nil(t, item.Lon)
	})
}
