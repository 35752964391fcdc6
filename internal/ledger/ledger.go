// Package ledger keeps the record of lot outcomes the bridge observed.
// The auction server stays authoritative; the ledger is an audit trail.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// Manager records sold and unsold lots.
type Manager struct {
	sales  store.SaleRepository
	events event.Store
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager returns a new ledger Manager.
func NewManager(sales store.SaleRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		sales:  sales,
		events: events,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/ledger"),
		clock:  clk,
	}
}

// RecordSold stores a sale of player to teamID at price.
func (m *Manager) RecordSold(ctx context.Context, tournamentID string, player model.Player, teamID string, price int64) error {
	ctx, span := m.tracer.Start(ctx, "Manager.RecordSold",
		trace.WithAttributes(
			attribute.String("tournament.id", tournamentID),
			attribute.String("player_id", player.ID),
			attribute.String("team_id", teamID),
			attribute.Int64("price", price),
		),
	)
	defer span.End()

	s := &store.Sale{
		TournamentID: tournamentID,
		PlayerID:     player.ID,
		PlayerName:   player.Name,
		Price:        price,
		Status:       store.StatusSold,
		CreatedAt:    m.clock.Now(),
	}
	if teamID != "" {
		s.TeamID = &teamID
	}
	if err := m.sales.Create(ctx, s); err != nil {
		span.RecordError(err)
		return fmt.Errorf("recording sale: %w", err)
	}

	m.appendEvent(ctx, event.SaleRecorded, event.SaleData{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		TeamID:     teamID,
		Price:      price,
	})

	m.logger.InfoContext(ctx, "player sold",
		slog.String("player_id", player.ID),
		slog.String("player", player.Name),
		slog.String("team_id", teamID),
		slog.Int64("price", price),
	)
	return nil
}

// RecordUnsold stores that player went unsold.
func (m *Manager) RecordUnsold(ctx context.Context, tournamentID string, player model.Player) error {
	ctx, span := m.tracer.Start(ctx, "Manager.RecordUnsold",
		trace.WithAttributes(
			attribute.String("tournament.id", tournamentID),
			attribute.String("player_id", player.ID),
		),
	)
	defer span.End()

	s := &store.Sale{
		TournamentID: tournamentID,
		PlayerID:     player.ID,
		PlayerName:   player.Name,
		Status:       store.StatusUnsold,
		CreatedAt:    m.clock.Now(),
	}
	if err := m.sales.Create(ctx, s); err != nil {
		span.RecordError(err)
		return fmt.Errorf("recording unsold lot: %w", err)
	}

	m.appendEvent(ctx, event.UnsoldRecorded, event.SaleData{
		PlayerID:   player.ID,
		PlayerName: player.Name,
	})

	m.logger.InfoContext(ctx, "player unsold",
		slog.String("player_id", player.ID),
		slog.String("player", player.Name),
	)
	return nil
}

// List returns a tournament's recorded outcomes, oldest first.
func (m *Manager) List(ctx context.Context, tournamentID string) ([]store.Sale, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List",
		trace.WithAttributes(attribute.String("tournament.id", tournamentID)),
	)
	defer span.End()

	return m.sales.ListByTournament(ctx, tournamentID)
}

// appendEvent records a ledger event on the player's stream. Failures are
// logged; the sale row is the source of truth.
func (m *Manager) appendEvent(ctx context.Context, typ event.Type, d event.SaleData) {
	prior, err := m.events.Load(ctx, d.PlayerID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to load ledger events", slog.Any("error", err))
		return
	}

	data, _ := json.Marshal(d)
	evt := event.Event{
		AggregateID: d.PlayerID,
		Type:        typ,
		Data:        data,
		Version:     len(prior) + 1,
		CreatedAt:   m.clock.Now(),
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append ledger event",
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}
