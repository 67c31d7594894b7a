package slice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSliceExclusive(t *testing.T) {
	ctx := NewContext("rmnet1", []string{"10.0.0.5", "2001:db8::5"}, []string{"192.168.1.20", "127.0.0.1", "fe80::1"})

	t.Run("inactive slicing allows everything", func(t *testing.T) {
		inactive := NewContext("", nil, []string{"192.168.1.20"})
		require.False(t, inactive.Active())
		require.True(t, IsSliceExclusive(nil, inactive))
		require.True(t, IsSliceExclusive([]string{"192.168.1.20"}, inactive))
	})

	t.Run("no addresses rejected", func(t *testing.T) {
		require.False(t, IsSliceExclusive(nil, ctx))
		require.False(t, IsSliceExclusive([]string{}, ctx))
	})

	t.Run("all slice addresses accepted", func(t *testing.T) {
		require.True(t, IsSliceExclusive([]string{"10.0.0.5"}, ctx))
		require.True(t, IsSliceExclusive([]string{"10.0.0.5", "2001:db8::5"}, ctx))
	})

	t.Run("any foreign address rejected", func(t *testing.T) {
		require.False(t, IsSliceExclusive([]string{"10.0.0.5", "192.168.1.20"}, ctx))
		require.False(t, IsSliceExclusive([]string{"203.0.113.9"}, ctx))
		require.False(t, IsSliceExclusive([]string{"a1b2c3.local"}, ctx))
	})

	t.Run("address in both sets rejected", func(t *testing.T) {
		both := NewContext("rmnet1", []string{"10.0.0.5"}, []string{"10.0.0.5"})
		require.False(t, IsSliceExclusive([]string{"10.0.0.5"}, both))
	})

	t.Run("addresses compared canonically", func(t *testing.T) {
		require.True(t, IsSliceExclusive([]string{"2001:DB8:0::5"}, ctx))
		require.True(t, IsSliceExclusive([]string{"[2001:db8::5]"}, ctx))
	})
}

func TestContextSkipsLocalOnlyNonSliceAddresses(t *testing.T) {
	ctx := NewContext("rmnet1", []string{"10.0.0.5"}, []string{"127.0.0.1", "::1", "fe80::1%wlan0", "0.0.0.0", "192.168.1.20"})
	require.True(t, ctx.Active())
	require.Equal(t, []string{"192.168.1.20"}, ctx.NonSliceAddresses())
	require.Equal(t, []string{"10.0.0.5"}, ctx.SliceAddresses())
}

func TestContextWithoutSlice(t *testing.T) {
	ctx := NewContext("rmnet1", []string{"10.0.0.5"}, []string{"192.168.1.20"})
	wifi := ctx.WithoutSlice()
	require.False(t, wifi.Active())
	require.True(t, IsSliceExclusive([]string{"192.168.1.20"}, wifi))
	require.Equal(t, []string{"10.0.0.5", "192.168.1.20"}, wifi.NonSliceAddresses())
}
