package slice

import (
	"net"
	"sort"
	"strings"
)

// Context is an immutable view of which local addresses belong to the network
// slice and which belong to any other interface.
type Context struct {
	Interface string

	sliceAddresses    map[string]struct{}
	nonSliceAddresses map[string]struct{}
}

// NewContext builds a Context. Loopback, link-local and unspecified addresses
// are never recorded as non-slice addresses.
func NewContext(iface string, sliceAddresses []string, nonSliceAddresses []string) Context {
	c := Context{
		Interface:         iface,
		sliceAddresses:    make(map[string]struct{}, len(sliceAddresses)),
		nonSliceAddresses: make(map[string]struct{}, len(nonSliceAddresses)),
	}
	for _, a := range sliceAddresses {
		if a = canonicalAddress(a); a != "" {
			c.sliceAddresses[a] = struct{}{}
		}
	}
	for _, a := range nonSliceAddresses {
		a = canonicalAddress(a)
		if a == "" || isLocalOnly(a) {
			continue
		}
		c.nonSliceAddresses[a] = struct{}{}
	}
	return c
}

// Active is true when slicing is in use, i.e. at least one slice address is known.
func (c Context) Active() bool {
	return len(c.sliceAddresses) > 0
}

func (c Context) IsSliceAddress(address string) bool {
	_, ok := c.sliceAddresses[canonicalAddress(address)]
	return ok
}

func (c Context) IsNonSliceAddress(address string) bool {
	_, ok := c.nonSliceAddresses[canonicalAddress(address)]
	return ok
}

func (c Context) SliceAddresses() []string {
	return sortedKeys(c.sliceAddresses)
}

func (c Context) NonSliceAddresses() []string {
	return sortedKeys(c.nonSliceAddresses)
}

func (c Context) Equal(other Context) bool {
	return c.Interface == other.Interface &&
		setEqual(c.sliceAddresses, other.sliceAddresses) &&
		setEqual(c.nonSliceAddresses, other.nonSliceAddresses)
}

// WithoutSlice drops the slice addresses, used while the device is on Wi-Fi.
func (c Context) WithoutSlice() Context {
	return NewContext("", nil, append(c.SliceAddresses(), c.NonSliceAddresses()...))
}

func canonicalAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	// strip zone, e.g. fe80::1%wlan0
	if idx := strings.IndexByte(address, '%'); idx >= 0 {
		address = address[:idx]
	}
	if ip := net.ParseIP(address); ip != nil {
		return ip.String()
	}
	return address
}

func isLocalOnly(address string) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
