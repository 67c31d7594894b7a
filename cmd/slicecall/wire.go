//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/measurement"
	"github.com/l4slab/slicecall/pkg/radio"
	"github.com/l4slab/slicecall/pkg/rtc"
	"github.com/l4slab/slicecall/pkg/rtc/pionengine"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/service"
	"github.com/l4slab/slicecall/pkg/signalling"
)

func InitializeCallClient(ctx context.Context, conf *config.Config) (*service.CallClient, func(), error) {
	wire.Build(
		getLogger,
		createSliceProvider,
		createRadio,
		wire.Bind(new(radio.Provider), new(*radio.Holder)),
		createPipeline,
		wire.Bind(new(types.StatsSampler), new(*measurement.Pipeline)),
		dialSignal,
		wire.Bind(new(types.SignalChannel), new(*signalling.WSSignalConnection)),
		wire.Bind(new(service.SignalConnection), new(*signalling.WSSignalConnection)),
		pionengine.Factory,
		service.NewCallEvents,
		createSession,
		wire.Bind(new(service.Session), new(*rtc.CallSession)),
		createClient,
	)
	return nil, nil, nil
}
