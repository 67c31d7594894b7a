package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/measurement"
	"github.com/l4slab/slicecall/pkg/slice"
)

func TestAddressTable(t *testing.T) {
	sliceCtx := slice.NewContext("rmnet1", []string{"10.0.0.5"}, []string{"192.168.1.20"})
	var buf bytes.Buffer
	writeAddressTable(&buf, sliceCtx, map[string][]string{
		"wlan0":  {"192.168.1.20"},
		"rmnet1": {"10.0.0.5"},
	})

	out := buf.String()
	require.Contains(t, out, "HOST CANDIDATE")
	require.Contains(t, out, "slice active on \"rmnet1\": 10.0.0.5")
	require.Regexp(t, `rmnet1\s+\|\s+10\.0\.0\.5\s+\|\s+slice\s+\|\s+admitted`, out)
	require.Regexp(t, `wlan0\s+\|\s+192\.168\.1\.20\s+\|\s+non-slice\s+\|\s+dropped`, out)
}

func TestAddressTableInactiveSlice(t *testing.T) {
	var buf bytes.Buffer
	writeAddressTable(&buf, slice.NewContext("", nil, []string{"192.168.1.20"}), map[string][]string{
		"wlan0": {"192.168.1.20"},
	})
	require.Contains(t, buf.String(), "admitted")
	require.Contains(t, buf.String(), "slice inactive")
}

func TestSummaryTable(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, measurement.Summary{
		Count:         12345,
		RTTSamples:    12000,
		MeanRTTMs:     20.11,
		P95RTTMs:      29.03,
		TotalLoss:     1500,
		CeMarkedItems: 3,
	})
	out := buf.String()
	require.Contains(t, out, "12,345")
	require.Contains(t, out, "1,500")
	require.Contains(t, out, "29.03 ms")
}

func TestStaticSliceProvider(t *testing.T) {
	conf := &config.Config{
		Slice: config.SliceConfig{
			Enabled:   true,
			Interface: "rmnet1",
			Addresses: []string{"10.0.0.5"},
		},
	}
	p, stop, err := createSliceProvider(context.Background(), conf)
	require.NoError(t, err)
	defer stop()
	require.True(t, p.Current().Active())
	require.True(t, p.Current().IsSliceAddress("10.0.0.5"))

	conf.Slice.Enabled = false
	p, stop, err = createSliceProvider(context.Background(), conf)
	require.NoError(t, err)
	defer stop()
	require.False(t, p.Current().Active())
}
