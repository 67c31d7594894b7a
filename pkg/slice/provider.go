package slice

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/frostbyte73/core"

	"github.com/l4slab/slicecall/pkg/config"
	"github.com/l4slab/slicecall/pkg/logger"
)

// Provider hands out the current slice Context and tells observers when it changes.
type Provider interface {
	Current() Context
	AddObserver(key string, onChanged func())
	RemoveObserver(key string)
}

type observers struct {
	lock      sync.Mutex
	callbacks map[string]func()
}

func (o *observers) AddObserver(key string, onChanged func()) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.callbacks == nil {
		o.callbacks = make(map[string]func())
	}
	o.callbacks[key] = onChanged
}

func (o *observers) RemoveObserver(key string) {
	o.lock.Lock()
	defer o.lock.Unlock()

	delete(o.callbacks, key)
}

func (o *observers) notifyChanged() {
	o.lock.Lock()
	callbacks := make([]func(), 0, len(o.callbacks))
	for _, f := range o.callbacks {
		callbacks = append(callbacks, f)
	}
	o.lock.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// ---------------------------------------------

type StaticProvider struct {
	observers

	lock    sync.RWMutex
	current Context
}

func NewStaticProvider(ctx Context) *StaticProvider {
	return &StaticProvider{current: ctx}
}

func NewStaticProviderFromConfig(conf config.SliceConfig) *StaticProvider {
	if !conf.Enabled {
		return NewStaticProvider(NewContext("", nil, conf.NonSliceAddresses))
	}
	return NewStaticProvider(NewContext(conf.Interface, conf.Addresses, conf.NonSliceAddresses))
}

func (p *StaticProvider) Current() Context {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.current
}

func (p *StaticProvider) Update(ctx Context) {
	p.lock.Lock()
	changed := !p.current.Equal(ctx)
	p.current = ctx
	p.lock.Unlock()

	if changed {
		p.notifyChanged()
	}
}

// ---------------------------------------------

type InterfaceProviderParams struct {
	Interface        string
	DiscoverPublicIP bool
	STUNServers      []string
	Debounce         time.Duration
	PollInterval     time.Duration
	Logger           logger.Logger

	ListAddresses func() (map[string][]string, error)
	ExternalIP    func(ctx context.Context, stunServers []string, localAddr net.Addr) (string, error)
}

// InterfaceProvider derives the slice context from the host's interfaces: the
// configured slice interface contributes slice addresses, everything else is
// non-slice.
type InterfaceProvider struct {
	observers

	params   InterfaceProviderParams
	debounce func(func())

	lock     sync.RWMutex
	current  Context
	publicIP string

	stopped core.Fuse
}

func NewInterfaceProvider(params InterfaceProviderParams) *InterfaceProvider {
	if params.ListAddresses == nil {
		params.ListAddresses = config.GetInterfaceAddresses
	}
	if params.ExternalIP == nil {
		params.ExternalIP = config.GetExternalIP
	}
	if len(params.STUNServers) == 0 {
		params.STUNServers = config.DefaultStunServers
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	p := &InterfaceProvider{
		params:  params,
		current: NewContext(params.Interface, nil, nil),
		stopped: core.NewFuse(),
	}
	if params.Debounce > 0 {
		p.debounce = debounce.New(params.Debounce)
	}
	return p
}

func (p *InterfaceProvider) Current() Context {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.current
}

// Refresh re-enumerates interfaces and notifies observers if the context changed.
func (p *InterfaceProvider) Refresh(ctx context.Context) error {
	byInterface, err := p.params.ListAddresses()
	if err != nil {
		return err
	}

	var sliceAddrs, otherAddrs []string
	for name, addrs := range byInterface {
		if p.params.Interface != "" && name == p.params.Interface {
			sliceAddrs = append(sliceAddrs, addrs...)
		} else {
			otherAddrs = append(otherAddrs, addrs...)
		}
	}

	if p.params.DiscoverPublicIP && len(sliceAddrs) > 0 {
		if ip := p.discoverPublicIP(ctx, sliceAddrs); ip != "" {
			sliceAddrs = append(sliceAddrs, ip)
		}
	}

	next := NewContext(p.params.Interface, sliceAddrs, otherAddrs)

	p.lock.Lock()
	changed := !p.current.Equal(next)
	p.current = next
	p.lock.Unlock()

	if changed {
		p.params.Logger.Infow("slice context changed",
			"interface", p.params.Interface,
			"slice", next.SliceAddresses(),
			"nonSlice", next.NonSliceAddresses(),
		)
		if p.debounce != nil {
			p.debounce(p.notifyChanged)
		} else {
			p.notifyChanged()
		}
	}
	return nil
}

func (p *InterfaceProvider) discoverPublicIP(ctx context.Context, sliceAddrs []string) string {
	var local net.IP
	for _, a := range sliceAddrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			local = ip
			break
		}
	}
	if local == nil {
		return ""
	}

	ip, err := p.params.ExternalIP(ctx, p.params.STUNServers, &net.UDPAddr{IP: local})
	if err != nil {
		p.params.Logger.Warnw("could not determine slice public IP", err, "local", local.String())
		// keep the last known one
		p.lock.RLock()
		defer p.lock.RUnlock()
		return p.publicIP
	}

	p.lock.Lock()
	p.publicIP = ip
	p.lock.Unlock()
	return ip
}

// Start refreshes once and then keeps polling until Stop.
func (p *InterfaceProvider) Start(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		return err
	}
	if p.params.PollInterval <= 0 {
		return nil
	}

	go func() {
		ticker := time.NewTicker(p.params.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopped.Watch():
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					p.params.Logger.Warnw("could not refresh slice context", err)
				}
			}
		}
	}()
	return nil
}

func (p *InterfaceProvider) Stop() {
	p.stopped.Break()
}
