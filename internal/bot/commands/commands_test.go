package commands_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/cricket-auction/internal/api"
	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/bot/commands"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/pricing"
	"github.com/jensholdgaard/cricket-auction/internal/rules"
)

// mockAPI implements commands.AuctionAPI for testing.
type mockAPI struct {
	calls      []string
	bids       []int64
	tournament model.Tournament
	teams      map[string]model.Team
	rules      []model.Rule
	maxBids    map[string]int64
	maxBidsErr error
	err        error
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		tournament: model.Tournament{
			ID:                "t1",
			MaxPlayersPerTeam: 3,
			MinPlayersPerTeam: 2,
			MinBasePrice:      100,
			BidIncrements: []pricing.Band{
				{MinPrice: 0, MaxPrice: pricing.Max(999), Increment: 50},
				{MinPrice: 1000, Increment: 250},
			},
		},
		teams: map[string]model.Team{
			"A": {ID: "A", Name: "Alpha", Purse: 5000},
			"B": {ID: "B", Name: "Bravo", Purse: 300},
		},
		maxBids: map[string]int64{"A": 4800, "B": 200},
	}
}

func (m *mockAPI) record(name string) error {
	m.calls = append(m.calls, name)
	return m.err
}

func (m *mockAPI) Start(context.Context, string) error        { return m.record("start") }
func (m *mockAPI) Shuffle(context.Context, string) error      { return m.record("shuffle") }
func (m *mockAPI) Sell(context.Context, string) error         { return m.record("sell") }
func (m *mockAPI) MarkUnsold(context.Context, string) error   { return m.record("unsold") }
func (m *mockAPI) CancelPlayer(context.Context, string) error { return m.record("cancel") }

func (m *mockAPI) SelectPlayer(_ context.Context, _, playerID string) error {
	return m.record("select:" + playerID)
}

func (m *mockAPI) Bid(_ context.Context, _, teamID string, amount int64) error {
	m.bids = append(m.bids, amount)
	return m.record("bid:" + teamID)
}

func (m *mockAPI) MaxBids(context.Context, string) (map[string]int64, error) {
	return m.maxBids, m.maxBidsErr
}

func (m *mockAPI) GetTournament(context.Context, string) (*model.Tournament, error) {
	t := m.tournament
	return &t, nil
}

func (m *mockAPI) GetTeam(_ context.Context, id string) (*model.Team, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, &api.APIError{Status: 404, Message: "Team not found"}
	}
	return &t, nil
}

func (m *mockAPI) ListRules(context.Context, string) ([]model.Rule, error) {
	return m.rules, nil
}

type fixedMirror auction.State

func (f fixedMirror) Snapshot() auction.State { return auction.State(f) }

type recordingResponder struct {
	resp *discordgo.InteractionResponse
}

func (r *recordingResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.resp = resp
	return nil
}

func onTheBlock(price int64, bidder string) fixedMirror {
	return fixedMirror{
		TournamentID:    "t1",
		CurrentPlayer:   &model.Player{ID: "p1", Name: "Gill", Category: "Batsman", BasePrice: 500},
		CurrentBidPrice: &price,
		CurrentBidderID: bidder,
		IsActive:        true,
		Teams:           []model.Team{{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Bravo"}},
	}
}

func newHandlers(m *mockAPI, mirror commands.Snapshotter) *commands.Handlers {
	return commands.NewHandlers("t1", m, mirror, slog.New(slog.NewTextHandler(io.Discard, nil)), noop.NewTracerProvider())
}

func TestExecute_SimpleCommands(t *testing.T) {
	tests := []struct {
		cmd      commands.Command
		wantCall string
	}{
		{cmd: commands.Command{Name: commands.CmdStart}, wantCall: "start"},
		{cmd: commands.Command{Name: commands.CmdShuffle}, wantCall: "shuffle"},
		{cmd: commands.Command{Name: commands.CmdSelect, PlayerID: "p7"}, wantCall: "select:p7"},
		{cmd: commands.Command{Name: commands.CmdSell}, wantCall: "sell"},
		{cmd: commands.Command{Name: commands.CmdUnsold}, wantCall: "unsold"},
		{cmd: commands.Command{Name: commands.CmdCancel}, wantCall: "cancel"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Name, func(t *testing.T) {
			m := newMockAPI()
			h := newHandlers(m, fixedMirror{})
			reply, err := h.Execute(context.Background(), tt.cmd)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if reply == "" {
				t.Error("empty reply")
			}
			if len(m.calls) != 1 || m.calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", m.calls, tt.wantCall)
			}
		})
	}
}

func TestExecute_Bid(t *testing.T) {
	tests := []struct {
		name    string
		mirror  fixedMirror
		cmd     commands.Command
		setup   func(*mockAPI)
		wantBid int64
		wantErr error
	}{
		{
			name:    "opening bid defaults to asking price",
			mirror:  onTheBlock(500, ""),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A"},
			wantBid: 500,
		},
		{
			name:    "raise defaults to next band step",
			mirror:  onTheBlock(1000, "B"),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A"},
			wantBid: 1250,
		},
		{
			name:    "explicit amount",
			mirror:  onTheBlock(500, "B"),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A", Amount: 800},
			wantBid: 800,
		},
		{
			name:    "explicit amount below next step",
			mirror:  onTheBlock(500, "B"),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A", Amount: 520},
			wantErr: rules.ErrBelowMinimum,
		},
		{
			name:    "explicit amount below asking price",
			mirror:  onTheBlock(500, ""),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A", Amount: 400},
			wantErr: rules.ErrBelowMinimum,
		},
		{
			name:    "negative amount",
			mirror:  onTheBlock(500, ""),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A", Amount: -50},
			wantErr: rules.ErrBelowMinimum,
		},
		{
			name:    "no player",
			mirror:  fixedMirror{},
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A"},
			wantErr: rules.ErrNoPlayer,
		},
		{
			name:    "already highest",
			mirror:  onTheBlock(600, "A"),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A"},
			wantErr: rules.ErrAlreadyHighest,
		},
		{
			name:    "over purse",
			mirror:  onTheBlock(500, ""),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "B"},
			wantErr: rules.ErrInsufficientPurse,
		},
		{
			name:    "over server max bid",
			mirror:  onTheBlock(500, ""),
			cmd:     commands.Command{Name: commands.CmdBid, TeamID: "A", Amount: 4850},
			wantErr: rules.ErrExceedsMaxBid,
		},
		{
			name:   "local max bid when server is unavailable",
			mirror: onTheBlock(500, ""),
			cmd:    commands.Command{Name: commands.CmdBid, TeamID: "A", Amount: 4900},
			setup: func(m *mockAPI) {
				m.maxBidsErr = errors.New("timeout")
			},
			wantBid: 4900,
		},
		{
			name:   "category limit",
			mirror: onTheBlock(500, ""),
			cmd:    commands.Command{Name: commands.CmdBid, TeamID: "A"},
			setup: func(m *mockAPI) {
				m.rules = []model.Rule{{Category: "Batsman", MaxPlayers: 1}}
				m.teams["A"] = model.Team{ID: "A", Name: "Alpha", Purse: 5000, Players: []model.Player{{ID: "x", Category: "Batsman"}}}
			},
			wantErr: rules.ErrCategoryLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockAPI()
			if tt.setup != nil {
				tt.setup(m)
			}
			h := newHandlers(m, tt.mirror)

			_, err := h.Execute(context.Background(), tt.cmd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
				}
				if len(m.bids) != 0 {
					t.Errorf("bid sent despite rejection: %v", m.bids)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if len(m.bids) != 1 || m.bids[0] != tt.wantBid {
				t.Errorf("bids = %v, want [%d]", m.bids, tt.wantBid)
			}
		})
	}
}

func TestExecute_StatusAndPreview(t *testing.T) {
	m := newMockAPI()
	h := newHandlers(m, onTheBlock(900, "B"))
	ctx := context.Background()

	status, err := h.Execute(ctx, commands.Command{Name: commands.CmdStatus})
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"Gill", "Current price: 900", "Highest bidder: Bravo", "Next valid bid: 950"} {
		if !strings.Contains(status, want) {
			t.Errorf("status = %q, missing %q", status, want)
		}
	}

	next, err := h.Execute(ctx, commands.Command{Name: commands.CmdNext, Price: 1000})
	if err != nil {
		t.Fatalf("next error = %v", err)
	}
	if !strings.Contains(next, "1250") {
		t.Errorf("next = %q, want 1250", next)
	}

	maxBids, err := h.Execute(ctx, commands.Command{Name: commands.CmdMaxBids})
	if err != nil {
		t.Fatalf("maxbids error = %v", err)
	}
	if !strings.Contains(maxBids, "Alpha: 4800") || !strings.Contains(maxBids, "Bravo: 200") {
		t.Errorf("maxbids = %q", maxBids)
	}

	idle, _ := newHandlers(m, fixedMirror{}).Execute(ctx, commands.Command{Name: commands.CmdStatus})
	if idle != "No player on the block." {
		t.Errorf("idle status = %q", idle)
	}
}

func TestExecute_WarnsOnInconsistentBands(t *testing.T) {
	tests := []struct {
		name  string
		bands []pricing.Band
		warn  bool
	}{
		{
			name: "contiguous ladder",
			bands: []pricing.Band{
				{MinPrice: 0, MaxPrice: pricing.Max(999), Increment: 50},
				{MinPrice: 1000, Increment: 250},
			},
		},
		{
			name: "overlapping bands",
			bands: []pricing.Band{
				{MinPrice: 0, MaxPrice: pricing.Max(1000), Increment: 50},
				{MinPrice: 900, Increment: 250},
			},
			warn: true,
		},
		{
			name: "gap between bands",
			bands: []pricing.Band{
				{MinPrice: 0, MaxPrice: pricing.Max(500), Increment: 50},
				{MinPrice: 1000, Increment: 250},
			},
			warn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockAPI()
			m.tournament.BidIncrements = tt.bands
			var buf strings.Builder
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			h := commands.NewHandlers("t1", m, onTheBlock(600, ""), logger, noop.NewTracerProvider())

			if _, err := h.Execute(context.Background(), commands.Command{Name: commands.CmdNext, Price: 600}); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			out := buf.String()
			got := strings.Contains(out, "level=WARN") && strings.Contains(out, "tournament bid bands are inconsistent")
			if got != tt.warn {
				t.Errorf("warning logged = %v, want %v; log:\n%s", got, tt.warn, out)
			}
		})
	}
}

func TestHandle_Replies(t *testing.T) {
	interaction := func(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
		return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
		}}
	}

	t.Run("success is public", func(t *testing.T) {
		m := newMockAPI()
		r := &recordingResponder{}
		newHandlers(m, onTheBlock(500, "")).Handle(context.Background(), r, interaction(commands.CmdBid,
			&discordgo.ApplicationCommandInteractionDataOption{Name: "team", Type: discordgo.ApplicationCommandOptionString, Value: "A"},
			&discordgo.ApplicationCommandInteractionDataOption{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(700)},
		))
		if r.resp == nil || r.resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
			t.Fatalf("response = %+v", r.resp)
		}
		if len(m.bids) != 1 || m.bids[0] != 700 {
			t.Errorf("bids = %v, want [700]", m.bids)
		}
	})

	t.Run("api error is ephemeral with server message", func(t *testing.T) {
		m := newMockAPI()
		m.err = &api.APIError{Status: 400, Message: "Auction already started"}
		r := &recordingResponder{}
		newHandlers(m, fixedMirror{}).Handle(context.Background(), r, interaction(commands.CmdStart))
		if r.resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
			t.Error("failure reply is not ephemeral")
		}
		if r.resp.Data.Content != "Auction already started" {
			t.Errorf("content = %q", r.resp.Data.Content)
		}
	})

	t.Run("transport error uses fallback", func(t *testing.T) {
		m := newMockAPI()
		m.err = errors.New("connection reset")
		r := &recordingResponder{}
		newHandlers(m, fixedMirror{}).Handle(context.Background(), r, interaction(commands.CmdSell))
		if r.resp.Data.Content != api.FallbackMessage {
			t.Errorf("content = %q, want %q", r.resp.Data.Content, api.FallbackMessage)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		r := &recordingResponder{}
		newHandlers(newMockAPI(), fixedMirror{}).Handle(context.Background(), r, interaction("auction-reset"))
		if r.resp.Data.Content != "Unknown command" {
			t.Errorf("content = %q", r.resp.Data.Content)
		}
	})
}

func TestSlashCommands(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands.SlashCommands() {
		if seen[c.Name] {
			t.Errorf("duplicate command %q", c.Name)
		}
		seen[c.Name] = true
	}
	for _, name := range []string{commands.CmdStart, commands.CmdBid, commands.CmdSell, commands.CmdNext} {
		if !seen[name] {
			t.Errorf("missing command %q", name)
		}
	}
}
