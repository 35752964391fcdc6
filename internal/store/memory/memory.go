// Package memory is the "memory" store driver. Nothing survives a restart;
// it backs local runs and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
		return &store.Repositories{
			Sales:  NewSaleRepo(),
			Events: NewEventStore(clk),
			Ping:   func(context.Context) error { return nil },
		}, nil
	})
}

// EventStore implements event.Store in memory.
type EventStore struct {
	mu     sync.RWMutex
	events []event.Event
	clock  clock.Clock
}

// NewEventStore returns an empty EventStore.
func NewEventStore(clk clock.Clock) *EventStore {
	return &EventStore{clock: clk}
}

func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(events))
	for _, e := range events {
		key := fmt.Sprintf("%s/%d", e.AggregateID, e.Version)
		if seen[key] || s.has(e.AggregateID, e.Version) {
			return fmt.Errorf("event (aggregate=%s, version=%d) already exists", e.AggregateID, e.Version)
		}
		seen[key] = true
	}

	for _, e := range events {
		e.ID = uuid.NewString()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.clock.Now()
		}
		s.events = append(s.events, e)
	}
	return nil
}

func (s *EventStore) has(aggregateID string, version int) bool {
	return slices.ContainsFunc(s.events, func(e event.Event) bool {
		return e.AggregateID == aggregateID && e.Version == version
	})
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b event.Event) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b event.Event) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// SaleRepo implements store.SaleRepository in memory.
type SaleRepo struct {
	mu    sync.RWMutex
	sales []store.Sale
}

// NewSaleRepo returns an empty SaleRepo.
func NewSaleRepo() *SaleRepo {
	return &SaleRepo{}
}

func (r *SaleRepo) Create(_ context.Context, s *store.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.NewString()
	r.sales = append(r.sales, *s)
	return nil
}

func (r *SaleRepo) GetByID(_ context.Context, id string) (*store.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sales {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
}

func (r *SaleRepo) ListByTournament(_ context.Context, tournamentID string) ([]store.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Sale
	for _, s := range r.sales {
		if s.TournamentID == tournamentID {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b store.Sale) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
