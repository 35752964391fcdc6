package auction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/pricing"
)

// Errors returned by Mirror.Apply.
var (
	ErrUnknownEvent = errors.New("unknown auction event")
	ErrBadPayload   = errors.New("malformed event payload")
)

// Phase is the client-observed stage of the current lot.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhasePlayerSelected Phase = "player_selected"
	PhaseBidPlaced      Phase = "bid_placed"
)

// State is the local mirror of the server's auction. It is rebuilt from
// broadcasts and REST resyncs and never originates authoritative data.
type State struct {
	TournamentID    string        `json:"tournamentId"`
	CurrentPlayer   *model.Player `json:"currentPlayer"`
	CurrentBidPrice *int64        `json:"currentBidPrice"`
	CurrentBidderID string        `json:"currentBidderId,omitempty"`
	IsActive        bool          `json:"isActive"`
	Teams           []model.Team  `json:"teams"`
	Version         int           `json:"version"`
}

// Phase derives the lot stage from the mirrored fields.
func (s State) Phase() Phase {
	switch {
	case s.CurrentPlayer == nil:
		return PhaseIdle
	case s.CurrentBidderID != "":
		return PhaseBidPlaced
	default:
		return PhasePlayerSelected
	}
}

// Team looks up a mirrored team by ID.
func (s State) Team(id string) (model.Team, bool) {
	for _, t := range s.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return model.Team{}, false
}

// MinimumBid is the smallest amount the next bid may carry. Before anyone
// bids that is the asking price itself; afterwards the price plus the
// band increment. ok is false when no player is on the block.
func (s State) MinimumBid(bands []pricing.Band) (amount int64, ok bool) {
	if s.CurrentPlayer == nil {
		return 0, false
	}
	price := s.CurrentPlayer.BasePrice
	if s.CurrentBidPrice != nil {
		price = *s.CurrentBidPrice
	}
	if s.CurrentBidderID == "" {
		return price, true
	}
	return pricing.NextBid(price, bands), true
}

func (s State) clone() State {
	out := s
	if s.CurrentPlayer != nil {
		p := *s.CurrentPlayer
		out.CurrentPlayer = &p
	}
	if s.CurrentBidPrice != nil {
		v := *s.CurrentBidPrice
		out.CurrentBidPrice = &v
	}
	out.Teams = slices.Clone(s.Teams)
	return out
}

func (s *State) clearLot() {
	s.CurrentPlayer = nil
	s.CurrentBidPrice = nil
	s.CurrentBidderID = ""
	s.IsActive = false
}

func (s *State) upsertTeam(t model.Team) {
	for i := range s.Teams {
		if s.Teams[i].ID == t.ID {
			s.Teams[i] = t
			return
		}
	}
	s.Teams = append(s.Teams, t)
}

// Change describes one applied event.
type Change struct {
	Type    event.Type
	Prev    State
	Next    State
	Payload any
	// Partial is set when the payload of a sold or unsold event could not
	// be decoded. The lot is cleared anyway and Payload is filled from the
	// previous state.
	Partial error
}

// Mirror holds State and records every mutation as an event.
// It is safe for concurrent use.
type Mirror struct {
	tournamentID string

	mu     sync.RWMutex
	state  State
	events []event.Event

	clock  clock.Clock
	tracer trace.Tracer
}

// NewMirror returns an idle mirror for a tournament.
func NewMirror(tournamentID string, tp trace.TracerProvider, clk clock.Clock) *Mirror {
	return &Mirror{
		tournamentID: tournamentID,
		state:        State{TournamentID: tournamentID},
		clock:        clk,
		tracer:       tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/auction"),
	}
}

// Snapshot returns a deep copy of the current state.
func (m *Mirror) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Apply mirrors one server broadcast. Unknown events return
// ErrUnknownEvent and malformed payloads ErrBadPayload; neither changes
// the state. Sold and unsold always close the lot, whatever the payload.
func (m *Mirror) Apply(ctx context.Context, typ event.Type, data json.RawMessage) (Change, error) {
	_, span := m.tracer.Start(ctx, "Mirror.Apply",
		trace.WithAttributes(
			attribute.String("tournament.id", m.tournamentID),
			attribute.String("event", string(typ)),
		),
	)
	defer span.End()

	if !typ.Inbound() {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.clone()
	next := m.state.clone()
	payload, partial, err := applyTo(&next, typ, data)
	if err != nil {
		span.RecordError(err)
		return Change{}, err
	}
	if partial != nil {
		span.RecordError(partial)
	}
	m.commit(next, typ, data)

	return Change{Type: typ, Prev: prev, Next: m.state.clone(), Payload: payload, Partial: partial}, nil
}

// Reset replaces the mirror with the server's GET /auction/current answer.
func (m *Mirror) Reset(ctx context.Context, cur model.CurrentAuction) (Change, error) {
	_, span := m.tracer.Start(ctx, "Mirror.Reset",
		trace.WithAttributes(attribute.String("tournament.id", m.tournamentID)),
	)
	defer span.End()

	data, err := json.Marshal(event.ResyncData{Current: cur})
	if err != nil {
		span.RecordError(err)
		return Change{}, fmt.Errorf("marshaling resync data: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.clone()
	next := m.state.clone()
	resync(&next, cur)
	m.commit(next, event.AuctionResynced, data)

	return Change{Type: event.AuctionResynced, Prev: prev, Next: m.state.clone(), Payload: cur}, nil
}

// PendingEvents returns uncommitted events and clears the buffer.
func (m *Mirror) PendingEvents() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}

// restore swaps in a replayed state without recording anything.
func (m *Mirror) restore(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.clone()
}

func (m *Mirror) commit(next State, typ event.Type, data json.RawMessage) {
	next.Version = m.state.Version + 1
	m.state = next
	m.events = append(m.events, event.Event{
		AggregateID: next.TournamentID,
		Type:        typ,
		Data:        data,
		Version:     next.Version,
		CreatedAt:   m.clock.Now(),
	})
}

// applyTo mutates s according to one event and returns the decoded payload.
// partial reports a sold or unsold payload that was applied without being
// understood.
func applyTo(s *State, typ event.Type, data json.RawMessage) (payload any, partial error, err error) {
	switch typ {
	case event.AuctionStarted:
		var d event.AuctionStartedData
		if err := decode(data, &d); err != nil {
			return nil, nil, err
		}
		s.IsActive = true
		if d.Teams != nil {
			s.Teams = d.Teams
		}
		return d, nil, nil

	case event.PlayerSelected:
		var d event.PlayerSelectedData
		if err := decode(data, &d); err != nil {
			return nil, nil, err
		}
		if d.Player == nil {
			return nil, nil, fmt.Errorf("%w: %s without player", ErrBadPayload, typ)
		}
		price := d.Player.BasePrice
		if d.CurrentBidPrice != nil {
			price = *d.CurrentBidPrice
		}
		s.CurrentPlayer = d.Player
		s.CurrentBidPrice = &price
		s.CurrentBidderID = ""
		s.IsActive = true
		return d, nil, nil

	case event.BidPlaced:
		var d event.BidPlacedData
		if err := decode(data, &d); err != nil {
			return nil, nil, err
		}
		if d.TeamID == "" && d.Team != nil {
			d.TeamID = d.Team.ID
		}
		if d.TeamID == "" {
			return nil, nil, fmt.Errorf("%w: %s without team", ErrBadPayload, typ)
		}
		amount := d.Amount
		s.CurrentBidPrice = &amount
		s.CurrentBidderID = d.TeamID
		if d.Player != nil {
			s.CurrentPlayer = d.Player
		}
		if d.Team != nil {
			s.upsertTeam(*d.Team)
		}
		s.IsActive = true
		return d, nil, nil

	case event.PlayerSold:
		var d event.PlayerSoldData
		if err := decode(data, &d); err != nil {
			d, partial = event.PlayerSoldData{}, err
		}
		if d.Player == nil {
			d.Player = s.CurrentPlayer
		}
		if d.TeamID == "" && d.Team != nil {
			d.TeamID = d.Team.ID
		}
		if d.TeamID == "" {
			d.TeamID = s.CurrentBidderID
		}
		if d.SoldPrice == 0 && s.CurrentBidPrice != nil {
			d.SoldPrice = *s.CurrentBidPrice
		}
		if d.Team != nil {
			s.upsertTeam(*d.Team)
		}
		s.clearLot()
		return d, partial, nil

	case event.PlayerUnsold:
		var d event.PlayerUnsoldData
		if err := decode(data, &d); err != nil {
			d, partial = event.PlayerUnsoldData{}, err
		}
		if d.Player == nil {
			d.Player = s.CurrentPlayer
		}
		s.clearLot()
		return d, partial, nil

	case event.TeamUpdated:
		var d event.TeamUpdatedData
		if err := decode(data, &d); err != nil {
			return nil, nil, err
		}
		switch {
		case d.Teams != nil:
			s.Teams = d.Teams
		case d.Team != nil:
			s.upsertTeam(*d.Team)
		default:
			return nil, nil, fmt.Errorf("%w: %s without team", ErrBadPayload, typ)
		}
		return d, nil, nil

	case event.AuctionResynced:
		var d event.ResyncData
		if err := decode(data, &d); err != nil {
			return nil, nil, err
		}
		resync(s, d.Current)
		return d.Current, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
}

func resync(s *State, cur model.CurrentAuction) {
	s.CurrentPlayer = cur.CurrentPlayer
	s.CurrentBidPrice = cur.CurrentBidPrice
	if s.CurrentPlayer != nil && s.CurrentBidPrice == nil {
		price := s.CurrentPlayer.BasePrice
		s.CurrentBidPrice = &price
	}
	s.CurrentBidderID = cur.CurrentBidderID
	s.IsActive = cur.IsActive
	s.Teams = cur.Teams
}

// decode treats an absent or null payload as the zero value.
func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// Replay reconstructs a mirror from its recorded history.
func Replay(events []event.Event, tp trace.TracerProvider, clk clock.Clock) (*Mirror, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to replay")
	}

	m := NewMirror(events[0].AggregateID, tp, clk)
	s := State{TournamentID: events[0].AggregateID}
	for _, e := range events {
		if _, _, err := applyTo(&s, e.Type, e.Data); err != nil {
			return nil, fmt.Errorf("replaying %s v%d: %w", e.Type, e.Version, err)
		}
		s.Version = e.Version
	}
	m.state = s
	return m, nil
}
