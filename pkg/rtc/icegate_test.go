package rtc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/slice"
)

func mustCandidate(t *testing.T, line string) types.IceCandidate {
	t.Helper()
	c, err := types.ParseIceCandidate(line, "0", 0)
	require.NoError(t, err)
	return c
}

func TestIceCandidateGate(t *testing.T) {
	sliceCtx := slice.NewContext("rmnet1", []string{"10.0.0.5", "198.51.100.7"}, []string{"192.168.1.20"})
	gate := NewIceCandidateGate(sliceCtx, logger.GetLogger())

	sliceHost := mustCandidate(t, "candidate:1 1 udp 2130706431 10.0.0.5 50000 typ host")
	wifiHost := mustCandidate(t, "candidate:2 1 udp 2130706431 192.168.1.20 50001 typ host")
	sliceSrflx := mustCandidate(t, "candidate:3 1 udp 1694498815 198.51.100.7 40000 typ srflx raddr 10.0.0.5 rport 50000")
	mixedSrflx := mustCandidate(t, "candidate:4 1 udp 1694498815 198.51.100.7 40001 typ srflx raddr 192.168.1.20 rport 50001")

	require.Equal(t, VerdictAdmit, gate.AdmitLocal(sliceHost))
	require.Equal(t, VerdictAdmit, gate.AdmitLocal(sliceSrflx))
	require.Equal(t, VerdictRetract, gate.AdmitLocal(wifiHost))
	require.Equal(t, VerdictRetract, gate.AdmitLocal(mixedSrflx))
	require.Equal(t, VerdictRetract, gate.AdmitLocal(wifiHost))
	require.Equal(t, []types.IceCandidate{wifiHost, mixedSrflx}, gate.Retracted())

	remote := mustCandidate(t, "candidate:9 1 udp 2130706431 203.0.113.4 6000 typ host")
	require.Equal(t, VerdictDrop, gate.AdmitRemote(remote))

	// selected pair: only the local side matters
	require.Empty(t, gate.ValidateSelectedPair(sliceHost, remote))
	require.Equal(t, []types.IceCandidate{wifiHost}, gate.ValidateSelectedPair(wifiHost, remote))

	gate.UpdateContext(slice.NewContext("", nil, nil))
	require.Equal(t, VerdictAdmit, gate.AdmitRemote(remote))
	require.Equal(t, VerdictAdmit, gate.AdmitLocal(wifiHost))
}
