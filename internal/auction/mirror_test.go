package auction_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/pricing"
)

var (
	testTP    = noop.NewTracerProvider()
	testEpoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func newMirror() *auction.Mirror {
	return auction.NewMirror("t1", testTP, clock.NewMock(testEpoch))
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func apply(t *testing.T, m *auction.Mirror, typ event.Type, payload any) auction.Change {
	t.Helper()
	c, err := m.Apply(context.Background(), typ, mustJSON(t, payload))
	if err != nil {
		t.Fatalf("Apply(%s) error = %v", typ, err)
	}
	return c
}

func player(id string, base int64) *model.Player {
	return &model.Player{ID: id, TournamentID: "t1", Name: "Player " + id, Category: "Batsman", BasePrice: base, Status: model.PlayerAvailable}
}

func TestMirror_FullLot(t *testing.T) {
	m := newMirror()
	teams := []model.Team{{ID: "A", Name: "Alpha", Purse: 10000}, {ID: "B", Name: "Bravo", Purse: 10000}}

	apply(t, m, event.AuctionStarted, event.AuctionStartedData{TournamentID: "t1", Teams: teams})
	if s := m.Snapshot(); !s.IsActive || len(s.Teams) != 2 || s.Phase() != auction.PhaseIdle {
		t.Fatalf("after start: %+v", s)
	}

	apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 500)})
	s := m.Snapshot()
	if s.Phase() != auction.PhasePlayerSelected {
		t.Errorf("Phase() = %s, want %s", s.Phase(), auction.PhasePlayerSelected)
	}
	if s.CurrentBidPrice == nil || *s.CurrentBidPrice != 500 {
		t.Errorf("CurrentBidPrice = %v, want 500", s.CurrentBidPrice)
	}
	if got, ok := s.MinimumBid(nil); !ok || got != 500 {
		t.Errorf("MinimumBid before any bid = %d, %v; want 500, true", got, ok)
	}

	apply(t, m, event.BidPlaced, event.BidPlacedData{Amount: 600, TeamID: "A"})
	s = m.Snapshot()
	if s.Phase() != auction.PhaseBidPlaced || s.CurrentBidderID != "A" || *s.CurrentBidPrice != 600 {
		t.Errorf("after bid: %+v", s)
	}
	if got, _ := s.MinimumBid(nil); got != 700 {
		t.Errorf("MinimumBid after bid = %d, want 700", got)
	}

	c := apply(t, m, event.PlayerSold, event.PlayerSoldData{})
	sold, ok := c.Payload.(event.PlayerSoldData)
	if !ok {
		t.Fatalf("payload type = %T", c.Payload)
	}
	if sold.Player == nil || sold.Player.ID != "p1" || sold.TeamID != "A" || sold.SoldPrice != 600 {
		t.Errorf("sold payload filled from state = %+v", sold)
	}
	s = m.Snapshot()
	if s.CurrentPlayer != nil || s.CurrentBidPrice != nil || s.CurrentBidderID != "" || s.IsActive {
		t.Errorf("lot not cleared after sale: %+v", s)
	}
	if s.Version != 4 {
		t.Errorf("Version = %d, want 4", s.Version)
	}
}

func TestMirror_SoldAndUnsoldAlwaysClearLot(t *testing.T) {
	payloads := []struct {
		name    string
		typ     event.Type
		data    string
		partial bool
	}{
		{name: "sold/no payload", typ: event.PlayerSold},
		{name: "unsold/no payload", typ: event.PlayerUnsold},
		{name: "sold/team with player ids", typ: event.PlayerSold, data: `{"team":{"id":"B","players":["p1"]}}`, partial: true},
		{name: "sold/string price", typ: event.PlayerSold, data: `{"soldPrice":"5000"}`, partial: true},
		{name: "sold/not an object", typ: event.PlayerSold, data: `"p1"`, partial: true},
		{name: "unsold/bare player id", typ: event.PlayerUnsold, data: `{"player":"p1"}`, partial: true},
	}
	setups := map[string]func(*testing.T, *auction.Mirror){
		"idle": func(*testing.T, *auction.Mirror) {},
		"selected": func(t *testing.T, m *auction.Mirror) {
			apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})
		},
		"bid placed": func(t *testing.T, m *auction.Mirror) {
			apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})
			apply(t, m, event.BidPlaced, event.BidPlacedData{Amount: 200, TeamID: "B"})
		},
	}

	for name, setup := range setups {
		for _, p := range payloads {
			t.Run(name+"/"+p.name, func(t *testing.T) {
				m := newMirror()
				setup(t, m)
				before := m.Snapshot()

				c, err := m.Apply(context.Background(), p.typ, json.RawMessage(p.data))
				if err != nil {
					t.Fatalf("Apply() error = %v", err)
				}
				if got := c.Partial != nil; got != p.partial {
					t.Errorf("Partial = %v, want partial %v", c.Partial, p.partial)
				}
				if p.partial && !errors.Is(c.Partial, auction.ErrBadPayload) {
					t.Errorf("Partial = %v, want ErrBadPayload", c.Partial)
				}

				s := m.Snapshot()
				if s.CurrentPlayer != nil || s.CurrentBidPrice != nil || s.CurrentBidderID != "" || s.IsActive {
					t.Errorf("state = %+v, want cleared lot", s)
				}
				if s.Version != before.Version+1 {
					t.Errorf("Version = %d, want %d", s.Version, before.Version+1)
				}
			})
		}
	}
}

func TestMirror_UnreadableSaleFallsBackToLot(t *testing.T) {
	m := newMirror()
	apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})
	apply(t, m, event.BidPlaced, event.BidPlacedData{Amount: 400, TeamID: "B"})

	c, err := m.Apply(context.Background(), event.PlayerSold, json.RawMessage(`{"player":"p1","soldPrice":"400"}`))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	sold, ok := c.Payload.(event.PlayerSoldData)
	if !ok {
		t.Fatalf("payload type = %T", c.Payload)
	}
	if sold.Player == nil || sold.Player.ID != "p1" || sold.TeamID != "B" || sold.SoldPrice != 400 {
		t.Errorf("payload = %+v, want p1 sold to B for 400", sold)
	}

	events := m.PendingEvents()
	replayed, err := auction.Replay(events, testTP, clock.NewMock(testEpoch))
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if s := replayed.Snapshot(); s.CurrentPlayer != nil || s.IsActive {
		t.Errorf("replayed state = %+v, want cleared lot", s)
	}
}

func TestMirror_Apply_Rejects(t *testing.T) {
	tests := []struct {
		name string
		typ  event.Type
		data string
		want error
	}{
		{name: "unknown event", typ: "chat:message", data: `{}`, want: auction.ErrUnknownEvent},
		{name: "outbound event", typ: event.JoinAuction, data: `{}`, want: auction.ErrUnknownEvent},
		{name: "malformed json", typ: event.BidPlaced, data: `{"amount":"lots"}`, want: auction.ErrBadPayload},
		{name: "selection without player", typ: event.PlayerSelected, data: `{}`, want: auction.ErrBadPayload},
		{name: "bid without team", typ: event.BidPlaced, data: `{"amount":100}`, want: auction.ErrBadPayload},
		{name: "team update without team", typ: event.TeamUpdated, data: `{}`, want: auction.ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMirror()
			before := m.Snapshot()
			_, err := m.Apply(context.Background(), tt.typ, json.RawMessage(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.want)
			}
			if after := m.Snapshot(); after.Version != before.Version {
				t.Errorf("Version changed on rejected event: %d -> %d", before.Version, after.Version)
			}
			if n := len(m.PendingEvents()); n != 0 {
				t.Errorf("PendingEvents() = %d events, want 0", n)
			}
		})
	}
}

func TestMirror_TeamUpdated(t *testing.T) {
	m := newMirror()
	apply(t, m, event.TeamUpdated, event.TeamUpdatedData{Teams: []model.Team{{ID: "A", Purse: 100}, {ID: "B", Purse: 200}}})
	apply(t, m, event.TeamUpdated, event.TeamUpdatedData{Team: &model.Team{ID: "B", Purse: 50}})
	apply(t, m, event.TeamUpdated, event.TeamUpdatedData{Team: &model.Team{ID: "C", Purse: 300}})

	s := m.Snapshot()
	if len(s.Teams) != 3 {
		t.Fatalf("len(Teams) = %d, want 3", len(s.Teams))
	}
	if b, _ := s.Team("B"); b.Purse != 50 {
		t.Errorf("team B purse = %d, want 50", b.Purse)
	}
}

func TestMirror_Reset(t *testing.T) {
	m := newMirror()
	apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})

	c, err := m.Reset(context.Background(), model.CurrentAuction{
		TournamentID:  "t1",
		CurrentPlayer: player("p9", 300),
		IsActive:      true,
		Teams:         []model.Team{{ID: "A"}},
	})
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if c.Type != event.AuctionResynced {
		t.Errorf("Change.Type = %s", c.Type)
	}
	s := m.Snapshot()
	if s.CurrentPlayer == nil || s.CurrentPlayer.ID != "p9" {
		t.Fatalf("CurrentPlayer = %+v", s.CurrentPlayer)
	}
	if s.CurrentBidPrice == nil || *s.CurrentBidPrice != 300 {
		t.Errorf("CurrentBidPrice = %v, want base price 300", s.CurrentBidPrice)
	}
}

func TestMirror_SnapshotIsACopy(t *testing.T) {
	m := newMirror()
	apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})

	s := m.Snapshot()
	s.CurrentPlayer.Name = "mutated"
	*s.CurrentBidPrice = 999

	again := m.Snapshot()
	if again.CurrentPlayer.Name == "mutated" || *again.CurrentBidPrice == 999 {
		t.Error("Snapshot() shares memory with the mirror")
	}
}

func TestMirror_PendingEvents(t *testing.T) {
	clk := clock.NewMock(testEpoch)
	m := auction.NewMirror("t1", testTP, clk)
	apply(t, m, event.AuctionStarted, event.AuctionStartedData{})
	clk.Advance(time.Minute)
	apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})

	events := m.PendingEvents()
	if len(events) != 2 {
		t.Fatalf("PendingEvents() = %d, want 2", len(events))
	}
	if events[0].AggregateID != "t1" || events[0].Version != 1 || events[1].Version != 2 {
		t.Errorf("events = %+v", events)
	}
	if !events[1].CreatedAt.Equal(testEpoch.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v", events[1].CreatedAt)
	}
	if len(m.PendingEvents()) != 0 {
		t.Error("PendingEvents() did not clear the buffer")
	}
}

func TestReplay(t *testing.T) {
	m := newMirror()
	apply(t, m, event.AuctionStarted, event.AuctionStartedData{Teams: []model.Team{{ID: "A"}}})
	apply(t, m, event.PlayerSelected, event.PlayerSelectedData{Player: player("p1", 100)})
	apply(t, m, event.BidPlaced, event.BidPlacedData{Amount: 150, TeamID: "A"})
	if _, err := m.Reset(context.Background(), model.CurrentAuction{CurrentPlayer: player("p1", 100), CurrentBidPrice: pricing.Max(250), CurrentBidderID: "A", IsActive: true}); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	replayed, err := auction.Replay(m.PendingEvents(), testTP, clock.NewMock(testEpoch))
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	want, got := m.Snapshot(), replayed.Snapshot()
	if got.Version != want.Version || *got.CurrentBidPrice != 250 || got.CurrentBidderID != "A" {
		t.Errorf("replayed = %+v, want %+v", got, want)
	}

	if _, err := auction.Replay(nil, testTP, clock.Real{}); err == nil {
		t.Error("Replay(nil) should fail")
	}
}

func TestState_MinimumBid(t *testing.T) {
	bands := []pricing.Band{
		{MinPrice: 0, MaxPrice: pricing.Max(999), Increment: 50},
		{MinPrice: 1000, Increment: 250},
	}
	price := func(v int64) *int64 { return &v }

	tests := []struct {
		name   string
		state  auction.State
		want   int64
		wantOK bool
	}{
		{name: "no player", state: auction.State{}, wantOK: false},
		{name: "opening bid at base", state: auction.State{CurrentPlayer: player("p", 400)}, want: 400, wantOK: true},
		{name: "opening bid at asking price", state: auction.State{CurrentPlayer: player("p", 400), CurrentBidPrice: price(450)}, want: 450, wantOK: true},
		{name: "raise in low band", state: auction.State{CurrentPlayer: player("p", 400), CurrentBidPrice: price(900), CurrentBidderID: "A"}, want: 950, wantOK: true},
		{name: "raise in high band", state: auction.State{CurrentPlayer: player("p", 400), CurrentBidPrice: price(1000), CurrentBidderID: "A"}, want: 1250, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.state.MinimumBid(bands)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("MinimumBid() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
