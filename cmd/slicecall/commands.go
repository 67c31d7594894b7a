package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/measurement"
	"github.com/l4slab/slicecall/pkg/slice"
)

const hangupTimeout = 5 * time.Second

func listen(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	if err := conf.ValidateForCall(); err != nil {
		return err
	}
	initPrometheus(conf)

	ctx, cancel := signalContext()
	defer cancel()

	client, cleanup, err := InitializeCallClient(ctx, conf)
	if err != nil {
		return errors.Wrap(err, "could not start client")
	}
	defer cleanup()

	logger.Infow("waiting for calls", "clientID", conf.ClientID, "signalURL", conf.Signaling.URL)
	return client.Run(ctx)
}

func call(c *cli.Context) error {
	peerID := c.String("peer")

	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	if err := conf.ValidateForCall(); err != nil {
		return err
	}
	initPrometheus(conf)

	ctx, cancel := signalContext()
	defer cancel()

	client, cleanup, err := InitializeCallClient(ctx, conf)
	if err != nil {
		return errors.Wrap(err, "could not start client")
	}
	defer cleanup()

	errChan := make(chan error, 1)
	go func() {
		errChan <- client.Run(ctx)
	}()

	if err := client.Call(ctx, peerID); err != nil {
		cancel()
		<-errChan
		return errors.Wrapf(err, "could not call %s", peerID)
	}

	var timeout <-chan time.Time
	if d := c.Duration("duration"); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
		hangup(client.Hangup)
	case <-ctx.Done():
		hangup(client.Hangup)
	case ended := <-client.Events().Ended():
		logger.Infow("call finished", "peerID", ended.PeerID, "reason", ended.Reason)
	case err := <-errChan:
		return err
	}

	cancel()
	return <-errChan
}

func hangup(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), hangupTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warnw("hangup did not complete cleanly", err)
	}
}

func checkConfig(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetRowLine(true)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"URL", "Scheme", "Host", "Port", "Transport", "Credentials"})
	for _, server := range conf.ICE.Servers {
		for _, raw := range server.URLs {
			uri, err := config.ParseICEURL(raw)
			if err != nil {
				return err
			}
			creds := "no"
			if server.Username != "" {
				creds = "yes"
			}
			table.Append([]string{
				raw,
				uri.Scheme.String(),
				uri.Host,
				fmt.Sprintf("%d", uri.Port),
				uri.Proto.String(),
				creds,
			})
		}
	}
	table.Render()

	fmt.Printf("trickle ICE: %v, video codec: %s\n", conf.Call.TrickleICE, conf.Call.VideoCodec)
	fmt.Printf("bitrate envelope: %s - %s\n",
		humanize.SIWithDigits(float64(conf.Call.MinBitrateKbps)*1000, 1, "bps"),
		humanize.SIWithDigits(float64(conf.Call.MaxBitrateKbps)*1000, 1, "bps"),
	)
	if conf.Measurement.LoggingEnabled() {
		fmt.Printf("measurement: %s sink, every %v, batches of %s\n",
			conf.Measurement.Sink, conf.Measurement.Interval, humanize.Comma(int64(conf.Measurement.BatchSize)))
	} else {
		fmt.Println("measurement: disabled")
	}

	if err := conf.ValidateForCall(); err != nil {
		fmt.Println("not ready for calls:", err)
	}
	return nil
}

func printAddresses(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	provider, stop, err := createSliceProvider(c.Context, conf)
	if err != nil {
		return err
	}
	defer stop()

	byInterface, err := config.GetInterfaceAddresses()
	if err != nil {
		return err
	}
	writeAddressTable(os.Stdout, provider.Current(), byInterface)
	return nil
}

func writeAddressTable(w io.Writer, sliceCtx slice.Context, byInterface map[string][]string) {
	names := make([]string, 0, len(byInterface))
	for name := range byInterface {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Interface", "Address", "Class", "Host Candidate"})
	for _, name := range names {
		for _, addr := range byInterface[name] {
			class := "-"
			switch {
			case sliceCtx.IsSliceAddress(addr):
				class = "slice"
			case sliceCtx.IsNonSliceAddress(addr):
				class = "non-slice"
			}
			verdict := "admitted"
			if !slice.IsSliceExclusive([]string{addr}, sliceCtx) {
				verdict = "dropped"
			}
			table.Append([]string{name, addr, class, verdict})
		}
	}
	table.Render()

	if sliceCtx.Active() {
		fmt.Fprintf(w, "slice active on %q: %s\n", sliceCtx.Interface, strings.Join(sliceCtx.SliceAddresses(), ", "))
	} else {
		fmt.Fprintln(w, "slice inactive, every candidate is admitted")
	}
}

func writeSummary(w io.Writer, s measurement.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Items", "RTT Samples", "Mean RTT", "P95", "P99", "P99.95", "Lost Packets", "CE Marked"})
	table.Append([]string{
		humanize.Comma(int64(s.Count)),
		humanize.Comma(int64(s.RTTSamples)),
		fmt.Sprintf("%.2f ms", s.MeanRTTMs),
		fmt.Sprintf("%.2f ms", s.P95RTTMs),
		fmt.Sprintf("%.2f ms", s.P99RTTMs),
		fmt.Sprintf("%.2f ms", s.P9995RTTMs),
		humanize.Comma(s.TotalLoss),
		humanize.Comma(int64(s.CeMarkedItems)),
	})
	table.Render()
}

func helpVerbose(c *cli.Context) error {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, false)
	if err != nil {
		return err
	}

	c.App.Flags = append(baseFlags, generatedFlags...)
	return cli.ShowAppHelp(c)
}
