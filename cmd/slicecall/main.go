package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
	"github.com/l4slab/slicecall/version"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to slicecall config file",
	},
	&cli.StringFlag{
		Name:    "config-body",
		Usage:   "slicecall config in YAML, typically passed in as an environment var",
		EnvVars: []string{"SLICECALL_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "signal-url",
		Usage:   "websocket URL of the signalling server",
		EnvVars: []string{"SLICECALL_SIGNAL_URL"},
	},
	&cli.StringFlag{
		Name:    "client-id",
		Usage:   "identity announced to the signalling server",
		EnvVars: []string{"SLICECALL_CLIENT_ID"},
	},
	&cli.StringFlag{
		Name:  "name",
		Usage: "display name announced to the signalling server",
	},
	&cli.StringFlag{
		Name:  "video-codec",
		Usage: `restrict video to one codec (VP8, VP9, H264, AV1) or "All Codecs"`,
	},
	&cli.BoolFlag{
		Name:  "trickle",
		Usage: "send ICE candidates as they are gathered",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
	},
	&cli.UintFlag{
		Name:  "debug-port",
		Usage: "serve /state, /stats and /metrics on this port",
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "sets log-level to debug and console formatter",
	},
	&cli.BoolFlag{
		Name:   "disable-strict-config",
		Usage:  "disables strict config parsing",
		Hidden: true,
	},
}

func main() {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, true)
	if err != nil {
		fmt.Println(err)
	}

	app := &cli.App{
		Name:        "slicecall",
		Usage:       "peer-to-peer video calls over a 5G network slice",
		Description: "run without subcommands to wait for incoming calls",
		Flags:       append(baseFlags, generatedFlags...),
		Action:      listen,
		Commands: []*cli.Command{
			{
				Name:   "listen",
				Usage:  "connect to the signalling server and answer incoming calls",
				Action: listen,
			},
			{
				Name:   "call",
				Usage:  "call a peer and hang up after the given duration",
				Action: call,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "peer",
						Usage:    "client ID of the peer to call",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "duration",
						Usage: "hang up after this long, zero keeps the call until interrupted",
					},
				},
			},
			{
				Name:   "check-config",
				Usage:  "validate the configuration and print the ICE servers",
				Action: checkConfig,
			},
			{
				Name:   "addresses",
				Usage:  "print how local addresses are classified for the slice",
				Action: printAddresses,
			},
			{
				Name:   "help-verbose",
				Usage:  "prints app help, including all generated configuration flags",
				Action: helpVerbose,
			},
		},
		Version: version.Version,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Context) (*config.Config, error) {
	confString, err := config.GetConfigString(c.String("config"), c.String("config-body"))
	if err != nil {
		return nil, err
	}

	strictMode := true
	if c.Bool("disable-strict-config") {
		strictMode = false
	}

	conf, err := config.NewConfig(confString, strictMode, c, baseFlags)
	if err != nil {
		return nil, err
	}
	config.InitLoggerFromConfig(conf.Logging)
	return conf, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Infow("exit requested, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func initPrometheus(conf *config.Config) {
	prometheus.Init(conf.ClientID)
}
