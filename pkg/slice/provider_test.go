package slice

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/l4slab/slicecall/pkg/testutils"
)

func TestStaticProviderNotifiesOnChange(t *testing.T) {
	p := NewStaticProvider(NewContext("", nil, nil))
	calls := atomic.NewInt32(0)
	p.AddObserver("test", func() { calls.Inc() })

	p.Update(NewContext("", nil, nil))
	require.Equal(t, int32(0), calls.Load())

	p.Update(NewContext("rmnet1", []string{"10.0.0.5"}, nil))
	require.Equal(t, int32(1), calls.Load())
	require.True(t, p.Current().Active())

	p.RemoveObserver("test")
	p.Update(NewContext("", nil, nil))
	require.Equal(t, int32(1), calls.Load())
}

func TestInterfaceProviderRefresh(t *testing.T) {
	addrs := map[string][]string{
		"rmnet1": {"10.0.0.5"},
		"wlan0":  {"192.168.1.20"},
	}
	var stunLocal net.Addr
	p := NewInterfaceProvider(InterfaceProviderParams{
		Interface:        "rmnet1",
		DiscoverPublicIP: true,
		ListAddresses: func() (map[string][]string, error) {
			return addrs, nil
		},
		ExternalIP: func(_ context.Context, _ []string, localAddr net.Addr) (string, error) {
			stunLocal = localAddr
			return "198.51.100.7", nil
		},
	})
	calls := atomic.NewInt32(0)
	p.AddObserver("test", func() { calls.Inc() })

	require.NoError(t, p.Refresh(context.Background()))
	ctx := p.Current()
	require.Equal(t, []string{"10.0.0.5", "198.51.100.7"}, ctx.SliceAddresses())
	require.Equal(t, []string{"192.168.1.20"}, ctx.NonSliceAddresses())
	require.Equal(t, "10.0.0.5", stunLocal.(*net.UDPAddr).IP.String())
	require.Equal(t, int32(1), calls.Load())

	// unchanged
	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, int32(1), calls.Load())

	// slice interface gone
	delete(addrs, "rmnet1")
	require.NoError(t, p.Refresh(context.Background()))
	require.False(t, p.Current().Active())
	require.Equal(t, int32(2), calls.Load())
}

func TestInterfaceProviderKeepsLastPublicIP(t *testing.T) {
	fail := false
	p := NewInterfaceProvider(InterfaceProviderParams{
		Interface:        "rmnet1",
		DiscoverPublicIP: true,
		ListAddresses: func() (map[string][]string, error) {
			return map[string][]string{"rmnet1": {"10.0.0.5"}}, nil
		},
		ExternalIP: func(context.Context, []string, net.Addr) (string, error) {
			if fail {
				return "", errors.New("timeout")
			}
			return "198.51.100.7", nil
		},
	})
	require.NoError(t, p.Refresh(context.Background()))
	fail = true
	require.NoError(t, p.Refresh(context.Background()))
	require.True(t, p.Current().IsSliceAddress("198.51.100.7"))
}

func TestInterfaceProviderStop(t *testing.T) {
	// never started
	idle := NewInterfaceProvider(InterfaceProviderParams{Interface: "rmnet1"})
	idle.Stop()
	idle.Stop()

	polls := atomic.NewInt32(0)
	p := NewInterfaceProvider(InterfaceProviderParams{
		Interface:    "rmnet1",
		PollInterval: 5 * time.Millisecond,
		ListAddresses: func() (map[string][]string, error) {
			polls.Inc()
			return map[string][]string{"rmnet1": {"10.0.0.5"}}, nil
		},
	})
	require.NoError(t, p.Start(context.Background()))
	testutils.WithTimeout(t, func() string {
		if polls.Load() < 3 {
			return "waiting for interface polls"
		}
		return ""
	})

	p.Stop()
	// a poll already in flight may still land
	time.Sleep(20 * time.Millisecond)
	stopped := polls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, stopped, polls.Load())
	require.True(t, p.Current().Active())
}
