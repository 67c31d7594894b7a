package main

import (
	"context"
	"os"
	"time"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/measurement"
	"github.com/l4slab/slicecall/pkg/radio"
	"github.com/l4slab/slicecall/pkg/rtc"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/service"
	"github.com/l4slab/slicecall/pkg/signalling"
	"github.com/l4slab/slicecall/pkg/slice"
)

const slicePollInterval = 5 * time.Second

func getLogger() logger.Logger {
	return logger.GetLogger()
}

// createSliceProvider uses the configured addresses when given, otherwise it
// watches the slice interface.
func createSliceProvider(ctx context.Context, conf *config.Config) (slice.Provider, func(), error) {
	if !conf.Slice.Enabled || len(conf.Slice.Addresses) > 0 || conf.Slice.Interface == "" {
		return slice.NewStaticProviderFromConfig(conf.Slice), func() {}, nil
	}

	p := slice.NewInterfaceProvider(slice.InterfaceProviderParams{
		Interface:        conf.Slice.Interface,
		DiscoverPublicIP: conf.Slice.DiscoverPublicIP,
		STUNServers:      conf.Slice.STUNServers,
		Debounce:         conf.Slice.RefreshDebounce,
		PollInterval:     slicePollInterval,
	})
	if err := p.Start(ctx); err != nil {
		return nil, nil, err
	}
	return p, p.Stop, nil
}

func createRadio(conf *config.Config) *radio.Holder {
	return radio.NewHolderFromConfig(conf.Radio)
}

func createPipeline(ctx context.Context, conf *config.Config, r radio.Provider, l logger.Logger) (*measurement.Pipeline, func(), error) {
	sink, err := measurement.NewSink(ctx, conf.Measurement, l)
	if err != nil {
		return nil, nil, err
	}
	p := measurement.NewPipeline(measurement.PipelineParams{
		Config: conf.Measurement,
		Radio:  r,
		Logger: l,
		OnSummary: func(s measurement.Summary) {
			writeSummary(os.Stdout, s)
		},
	})
	p.SetSink(sink)
	return p, p.Close, nil
}

func dialSignal(ctx context.Context, conf *config.Config, l logger.Logger) (*signalling.WSSignalConnection, error) {
	return signalling.Dial(ctx, conf.Signaling.URL, conf.ClientID, conf.Name, conf.Signaling.PingInterval, l)
}

func createSession(
	conf *config.Config,
	factory types.EngineFactory,
	signal types.SignalChannel,
	sliceProvider slice.Provider,
	r radio.Provider,
	sampler types.StatsSampler,
	events *service.CallEvents,
	l logger.Logger,
) *rtc.CallSession {
	return rtc.NewCallSession(rtc.CallSessionParams{
		ICE:           conf.ICE,
		Call:          conf.Call,
		AnswerTimeout: conf.Signaling.AnswerTimeout,
		EngineFactory: factory,
		Signal:        signal,
		SliceProvider: sliceProvider,
		Radio:         r,
		Sampler:       sampler,
		Handler:       events,
		Logger:        l,
	})
}

func createClient(conf *config.Config, signal service.SignalConnection, session service.Session, events *service.CallEvents, l logger.Logger) *service.CallClient {
	return service.NewCallClient(service.CallClientParams{
		Signal:    signal,
		Session:   session,
		Events:    events,
		DebugPort: conf.Debug.Port,
		Logger:    l,
	})
}
