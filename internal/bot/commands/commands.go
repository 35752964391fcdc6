// Package commands implements the admin console slash commands. Each
// command calls the auction REST API; the server's broadcast then reaches
// the mirror.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/api"
	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/pricing"
	"github.com/jensholdgaard/cricket-auction/internal/rules"
	"github.com/jensholdgaard/cricket-auction/internal/telemetry"
)

// Command names.
const (
	CmdStart   = "auction-start"
	CmdShuffle = "auction-shuffle"
	CmdSelect  = "auction-select"
	CmdBid     = "auction-bid"
	CmdSell    = "auction-sell"
	CmdUnsold  = "auction-unsold"
	CmdCancel  = "auction-cancel"
	CmdStatus  = "auction-status"
	CmdMaxBids = "auction-maxbids"
	CmdNext    = "auction-next"
)

// ErrUnknownCommand is returned by Execute for names it does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// AuctionAPI is the slice of the REST client the console drives.
// *api.Client implements it.
type AuctionAPI interface {
	Start(ctx context.Context, tournamentID string) error
	Shuffle(ctx context.Context, tournamentID string) error
	SelectPlayer(ctx context.Context, tournamentID, playerID string) error
	Bid(ctx context.Context, tournamentID, teamID string, amount int64) error
	Sell(ctx context.Context, tournamentID string) error
	MarkUnsold(ctx context.Context, tournamentID string) error
	CancelPlayer(ctx context.Context, tournamentID string) error
	MaxBids(ctx context.Context, tournamentID string) (map[string]int64, error)
	GetTournament(ctx context.Context, id string) (*model.Tournament, error)
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	ListRules(ctx context.Context, tournamentID string) ([]model.Rule, error)
}

// Snapshotter exposes the mirrored state. *auction.Bridge implements it.
type Snapshotter interface {
	Snapshot() auction.State
}

// Command is one parsed invocation.
type Command struct {
	Name     string
	PlayerID string
	TeamID   string
	// Amount is the bid amount; zero means the minimum valid bid.
	Amount int64
	Price  int64
}

// Handlers process console commands.
type Handlers struct {
	tournamentID string
	api          AuctionAPI
	mirror       Snapshotter
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(tournamentID string, client AuctionAPI, mirror Snapshotter, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		tournamentID: tournamentID,
		api:          client,
		mirror:       mirror,
		logger:       logger,
		tracer:       tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/bot/commands"),
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: CmdStart, Description: "Open the auction"},
		{Name: CmdShuffle, Description: "Shuffle the player queue"},
		{
			Name:        CmdSelect,
			Description: "Put a player on the block",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Player ID",
					Required:    true,
				},
			},
		},
		{
			Name:        CmdBid,
			Description: "Bid for a team on the current player",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "team",
					Description: "Team ID",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Bid amount (default: the next valid bid)",
					Required:    false,
				},
			},
		},
		{Name: CmdSell, Description: "Sell the current player to the highest bidder"},
		{Name: CmdUnsold, Description: "Mark the current player unsold"},
		{Name: CmdCancel, Description: "Return the current player to the pool"},
		{Name: CmdStatus, Description: "Show the current lot"},
		{Name: CmdMaxBids, Description: "Show every team's maximum bid"},
		{
			Name:        CmdNext,
			Description: "Preview the next valid bid after a price",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "price",
					Description: "Current price",
					Required:    true,
				},
			},
		},
	}
}

// Execute runs c and returns the reply text.
func (h *Handlers) Execute(ctx context.Context, c Command) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Handlers.Execute",
		trace.WithAttributes(attribute.String("command", c.Name)),
	)
	defer span.End()

	tid := h.tournamentID
	switch c.Name {
	case CmdStart:
		return "Auction started.", h.api.Start(ctx, tid)
	case CmdShuffle:
		return "Player queue shuffled.", h.api.Shuffle(ctx, tid)
	case CmdSelect:
		if err := h.api.SelectPlayer(ctx, tid, c.PlayerID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Player `%s` is on the block.", c.PlayerID), nil
	case CmdBid:
		return h.bid(ctx, c)
	case CmdSell:
		return "Player sold.", h.api.Sell(ctx, tid)
	case CmdUnsold:
		return "Player marked unsold.", h.api.MarkUnsold(ctx, tid)
	case CmdCancel:
		return "Player returned to the pool.", h.api.CancelPlayer(ctx, tid)
	case CmdStatus:
		return h.status(ctx)
	case CmdMaxBids:
		return h.maxBids(ctx)
	case CmdNext:
		return h.next(ctx, c.Price)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
}

func (h *Handlers) bid(ctx context.Context, c Command) (string, error) {
	s := h.mirror.Snapshot()
	if s.CurrentPlayer == nil {
		return "", rules.ErrNoPlayer
	}

	t, err := h.tournament(ctx)
	if err != nil {
		return "", err
	}
	team, err := h.api.GetTeam(ctx, c.TeamID)
	if err != nil {
		return "", err
	}
	rs, err := h.api.ListRules(ctx, h.tournamentID)
	if err != nil {
		return "", err
	}

	minimum, _ := s.MinimumBid(t.BidIncrements)
	amount := c.Amount
	if amount == 0 {
		amount = minimum
	}

	maxBid := rules.MaxBid(*team, *t)
	if m, err := h.api.MaxBids(ctx, h.tournamentID); err == nil {
		if v, ok := m[team.ID]; ok {
			maxBid = v
		}
	} else {
		h.logger.WarnContext(ctx, "max bids unavailable, using local estimate", slog.Any("error", err))
	}

	if err := rules.CheckBid(rules.BidCheck{
		Team:            *team,
		Player:          s.CurrentPlayer,
		Amount:          amount,
		Tournament:      *t,
		Rules:           rs,
		CurrentBidderID: s.CurrentBidderID,
		Minimum:         minimum,
		MaxBid:          maxBid,
	}); err != nil {
		return "", err
	}

	if err := h.api.Bid(ctx, h.tournamentID, team.ID, amount); err != nil {
		return "", err
	}
	return fmt.Sprintf("**%s** bids **%d** for **%s**.", team.Name, amount, s.CurrentPlayer.Name), nil
}

func (h *Handlers) status(ctx context.Context) (string, error) {
	s := h.mirror.Snapshot()
	if s.CurrentPlayer == nil {
		if s.IsActive {
			return "Auction is open. No player on the block.", nil
		}
		return "No player on the block.", nil
	}

	var b strings.Builder
	p := s.CurrentPlayer
	fmt.Fprintf(&b, "**%s** (%s), base price %d\n", p.Name, p.Category, p.BasePrice)
	if s.CurrentBidPrice != nil {
		fmt.Fprintf(&b, "Current price: %d\n", *s.CurrentBidPrice)
	}
	if s.CurrentBidderID != "" {
		name := s.CurrentBidderID
		if t, ok := s.Team(s.CurrentBidderID); ok && t.Name != "" {
			name = t.Name
		}
		fmt.Fprintf(&b, "Highest bidder: %s\n", name)
	}
	if t, err := h.tournament(ctx); err == nil {
		if next, ok := s.MinimumBid(t.BidIncrements); ok {
			fmt.Fprintf(&b, "Next valid bid: %d\n", next)
		}
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (h *Handlers) maxBids(ctx context.Context) (string, error) {
	m, err := h.api.MaxBids(ctx, h.tournamentID)
	if err != nil {
		return "", err
	}
	if len(m) == 0 {
		return "No teams.", nil
	}

	names := map[string]string{}
	for _, t := range h.mirror.Snapshot().Teams {
		names[t.ID] = t.Name
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var b strings.Builder
	b.WriteString("**Maximum bids:**")
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "\n%s: %d", name, m[id])
	}
	return b.String(), nil
}

func (h *Handlers) next(ctx context.Context, price int64) (string, error) {
	if price < 0 {
		return "", fmt.Errorf("price must not be negative")
	}
	t, err := h.tournament(ctx)
	if err != nil {
		return "", err
	}
	inc := pricing.Increment(price, t.BidIncrements)
	return fmt.Sprintf("After %d the next bid is %d (+%d).", price, price+inc, inc), nil
}

// tournament fetches the tournament settings and warns about bid bands
// that do not form one ladder. Pricing still uses them as they are.
func (h *Handlers) tournament(ctx context.Context) (*model.Tournament, error) {
	t, err := h.api.GetTournament(ctx, h.tournamentID)
	if err != nil {
		return nil, err
	}
	if err := pricing.ValidateBands(t.BidIncrements); err != nil {
		h.logger.WarnContext(ctx, "tournament bid bands are inconsistent",
			slog.String("tournament_id", t.ID),
			slog.Any("error", err),
		)
	}
	return t, nil
}

// Responder answers interactions. *discordgo.Session implements it.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.Handle(context.Background(), s, i)
}

// Handle runs one interaction and replies. Failures reply ephemerally
// with the server's message.
func (h *Handlers) Handle(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	ctx, span := h.tracer.Start(ctx, "InteractionCreate",
		trace.WithAttributes(attribute.String("command", data.Name)),
	)
	defer span.End()

	reply, err := h.Execute(ctx, parse(data))
	if err != nil {
		span.RecordError(err)
		telemetry.LogWithTrace(ctx, h.logger).WarnContext(ctx, "console command failed",
			slog.String("command", data.Name),
			slog.Any("error", err),
		)
		respond(ctx, r, i, failureMessage(err), true)
		return
	}
	respond(ctx, r, i, reply, false)
}

func parse(data discordgo.ApplicationCommandInteractionData) Command {
	c := Command{Name: data.Name}
	for _, opt := range data.Options {
		switch opt.Name {
		case "player":
			c.PlayerID = opt.StringValue()
		case "team":
			c.TeamID = opt.StringValue()
		case "amount":
			c.Amount = opt.IntValue()
		case "price":
			c.Price = opt.IntValue()
		}
	}
	return c
}

// failureMessage is the operator-facing text for err.
func failureMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrUnknownCommand) {
		return "Unknown command"
	}
	for _, target := range []error{
		rules.ErrNoPlayer, rules.ErrAlreadyHighest, rules.ErrBelowMinimum, rules.ErrSquadFull,
		rules.ErrCategoryLimit, rules.ErrInsufficientPurse, rules.ErrExceedsMaxBid,
	} {
		if errors.Is(err, target) {
			return "Bid rejected: " + err.Error()
		}
	}
	return api.FallbackMessage
}

func respond(ctx context.Context, r Responder, i *discordgo.InteractionCreate, msg string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: msg}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	_ = r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}
