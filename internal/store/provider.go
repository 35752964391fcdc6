// Package store persists the bridge's recorded events and the sale ledger
// behind a pluggable driver.
package store

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/event"
)

// Repositories is what a driver hands back from Open.
type Repositories struct {
	Sales  SaleRepository
	Events event.Store
	// Closer releases the driver's resources.
	Closer io.Closer
	// Ping checks the backend. It feeds the readiness probe.
	Ping func(ctx context.Context) error
}

// Close releases the driver's resources, if any.
func (r *Repositories) Close() error {
	if r.Closer == nil {
		return nil
	}
	return r.Closer.Close()
}

// Driver opens a backend and returns its repositories.
type Driver func(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*Repositories, error)

var (
	mu       sync.RWMutex
	registry = map[string]Driver{}
)

// Register makes a driver available to Open under name. Driver packages
// call it from init.
func Register(name string, d Driver) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = d
}

// Open runs the driver named by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*Repositories, error) {
	mu.RLock()
	d, ok := registry[cfg.Driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	return d(ctx, cfg, clk)
}

// Drivers lists the registered driver names in order.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
