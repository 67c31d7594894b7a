package radio

import (
	"go.uber.org/atomic"

	"github.com/l4slab/slicecall/pkg/config"
)

// Snapshot describes the cellular context of the device at one point in time.
// Zero values mean unknown.
type Snapshot struct {
	CellID         int64
	PCI            int
	BandMHz        int
	IsNRStandalone bool
	Dbm            *int
	Latitude       *float64
	Longitude      *float64
	OnWifi         bool
}

// Provider returns the latest known snapshot without blocking.
type Provider interface {
	Current() Snapshot
}

// Holder stores the latest snapshot pushed by whatever observes the modem.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder(initial Snapshot) *Holder {
	h := &Holder{}
	h.Update(initial)
	return h
}

func NewHolderFromConfig(conf config.RadioConfig) *Holder {
	return NewHolder(Snapshot{
		CellID:         conf.CellID,
		PCI:            conf.PCI,
		BandMHz:        conf.BandMHz,
		IsNRStandalone: conf.NRStandalone,
		Dbm:            conf.Dbm,
		Latitude:       conf.Latitude,
		Longitude:      conf.Longitude,
		OnWifi:         conf.OnWifi,
	})
}

func (h *Holder) Update(s Snapshot) {
	h.current.Store(&s)
}

func (h *Holder) Current() Snapshot {
	if s := h.current.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}
