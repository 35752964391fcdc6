package api

import (
	"context"
	"net/http"

	"github.com/jensholdgaard/cricket-auction/internal/model"
)

type tournamentRequest struct {
	TournamentID string `json:"tournamentId"`
}

type selectPlayerRequest struct {
	TournamentID string `json:"tournamentId"`
	PlayerID     string `json:"playerId"`
}

type bidRequest struct {
	TournamentID string `json:"tournamentId"`
	TeamID       string `json:"teamId"`
	Amount       int64  `json:"amount"`
}

// MaxBid is one entry of GET /auction/max-bids.
type MaxBid struct {
	TeamID string `json:"teamId"`
	MaxBid int64  `json:"maxBid"`
}

// Current returns the server's view of the live auction.
func (c *Client) Current(ctx context.Context, tournamentID string) (*model.CurrentAuction, error) {
	var cur model.CurrentAuction
	if err := c.do(ctx, http.MethodGet, "/auction/current", byTournament(tournamentID), nil, &cur); err != nil {
		return nil, err
	}
	if cur.TournamentID == "" {
		cur.TournamentID = tournamentID
	}
	return &cur, nil
}

// Start opens the auction for a tournament.
func (c *Client) Start(ctx context.Context, tournamentID string) error {
	return c.do(ctx, http.MethodPost, "/auction/start", nil, tournamentRequest{tournamentID}, nil)
}

// Shuffle randomizes the order of the remaining players.
func (c *Client) Shuffle(ctx context.Context, tournamentID string) error {
	return c.do(ctx, http.MethodPost, "/auction/shuffle", nil, tournamentRequest{tournamentID}, nil)
}

// SelectPlayer puts a player on the block.
func (c *Client) SelectPlayer(ctx context.Context, tournamentID, playerID string) error {
	return c.do(ctx, http.MethodPost, "/auction/select-player", nil, selectPlayerRequest{tournamentID, playerID}, nil)
}

// Bid places a bid for a team on the current player.
func (c *Client) Bid(ctx context.Context, tournamentID, teamID string, amount int64) error {
	return c.do(ctx, http.MethodPost, "/auction/bid", nil, bidRequest{tournamentID, teamID, amount}, nil)
}

// Sell awards the current player to the highest bidder.
func (c *Client) Sell(ctx context.Context, tournamentID string) error {
	return c.do(ctx, http.MethodPost, "/auction/sell", nil, tournamentRequest{tournamentID}, nil)
}

// MarkUnsold closes the current player with no sale.
func (c *Client) MarkUnsold(ctx context.Context, tournamentID string) error {
	return c.do(ctx, http.MethodPost, "/auction/mark-unsold", nil, tournamentRequest{tournamentID}, nil)
}

// CancelPlayer takes the current player off the block without an outcome.
func (c *Client) CancelPlayer(ctx context.Context, tournamentID string) error {
	return c.do(ctx, http.MethodPost, "/auction/cancel-player", nil, tournamentRequest{tournamentID}, nil)
}

// MaxBids returns each team's bid ceiling keyed by team ID.
func (c *Client) MaxBids(ctx context.Context, tournamentID string) (map[string]int64, error) {
	var entries []MaxBid
	if err := c.do(ctx, http.MethodGet, "/auction/max-bids", byTournament(tournamentID), nil, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[e.TeamID] = e.MaxBid
	}
	return out, nil
}

// Unsold lists players that went unsold.
func (c *Client) Unsold(ctx context.Context, tournamentID string) ([]model.Player, error) {
	var players []model.Player
	if err := c.do(ctx, http.MethodGet, "/auction/unsold", byTournament(tournamentID), nil, &players); err != nil {
		return nil, err
	}
	return players, nil
}
