package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/burstcam/internal/device"
)

// Enumerator lists and opens simulated cameras.
type Enumerator struct {
	configs []Config

	mu        sync.Mutex
	opened    map[string]*Device
	failOpens int
}

// NewEnumerator creates an enumerator over the given camera configurations.
func NewEnumerator(configs ...Config) *Enumerator {
	normalized := make([]Config, len(configs))
	for i, cfg := range configs {
		normalized[i] = cfg.withDefaults()
	}
	return &Enumerator{
		configs: normalized,
		opened:  make(map[string]*Device),
	}
}

// FailNextOpens makes the next n Open calls fail, as a flaky USB link would.
func (e *Enumerator) FailNextOpens(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOpens = n
}

// Enumerate implements device.Enumerator.
func (e *Enumerator) Enumerate(ctx context.Context) ([]device.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos := make([]device.Info, len(e.configs))
	for i, cfg := range e.configs {
		infos[i] = device.Info{ID: cfg.ID, Model: cfg.Model, Serial: cfg.Serial, Vendor: "sim"}
	}
	return infos, nil
}

// Open implements device.Enumerator.
func (e *Enumerator) Open(ctx context.Context, info device.Info) (device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failOpens > 0 {
		e.failOpens--
		return nil, fmt.Errorf("open %s: device busy", info.ID)
	}
	for _, cfg := range e.configs {
		if cfg.ID == info.ID {
			d := New(cfg)
			e.opened[cfg.ID] = d
			return d, nil
		}
	}
	return nil, fmt.Errorf("open %s: no such device", info.ID)
}

// Lookup returns the device opened for id, if any.
func (e *Enumerator) Lookup(id string) (*Device, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.opened[id]
	return d, ok
}
