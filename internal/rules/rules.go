// Package rules pre-checks a bid against squad limits and purse before the
// console sends it. The server still decides.
package rules

import (
	"errors"
	"fmt"

	"github.com/jensholdgaard/cricket-auction/internal/model"
)

// Errors returned by CheckBid, in the order they are checked.
var (
	ErrNoPlayer          = errors.New("no player is up for auction")
	ErrAlreadyHighest    = errors.New("team is already the highest bidder")
	ErrBelowMinimum      = errors.New("bid is below the minimum valid bid")
	ErrSquadFull         = errors.New("team squad is full")
	ErrCategoryLimit     = errors.New("team has reached the limit for this category")
	ErrInsufficientPurse = errors.New("bid exceeds remaining purse")
	ErrExceedsMaxBid     = errors.New("bid exceeds team's maximum allowed bid")
)

// BidCheck is everything CheckBid looks at.
type BidCheck struct {
	Team            model.Team
	Player          *model.Player
	Amount          int64
	Tournament      model.Tournament
	Rules           []model.Rule
	CurrentBidderID string
	// Minimum is the smallest valid amount for this lot. Zero means unknown,
	// but the amount must still be positive.
	Minimum int64
	// MaxBid is the server's ceiling for this team. Zero means unknown.
	MaxBid int64
}

// CheckBid returns the first rule the bid would break, or nil.
func CheckBid(c BidCheck) error {
	if c.Player == nil {
		return ErrNoPlayer
	}
	if c.CurrentBidderID != "" && c.CurrentBidderID == c.Team.ID {
		return ErrAlreadyHighest
	}
	if c.Amount <= 0 || c.Amount < c.Minimum {
		return fmt.Errorf("bid %d, minimum %d: %w", c.Amount, c.Minimum, ErrBelowMinimum)
	}
	if limit := c.Tournament.MaxPlayersPerTeam; limit > 0 && len(c.Team.Players) >= limit {
		return fmt.Errorf("%s has %d of %d players: %w", c.Team.Name, len(c.Team.Players), limit, ErrSquadFull)
	}
	for _, r := range c.Rules {
		if r.Category != c.Player.Category || r.MaxPlayers <= 0 {
			continue
		}
		if n := c.Team.CategoryCount(r.Category); n >= r.MaxPlayers {
			return fmt.Errorf("%s has %d %s players (max %d): %w", c.Team.Name, n, r.Category, r.MaxPlayers, ErrCategoryLimit)
		}
	}
	if c.Amount > c.Team.Purse {
		return fmt.Errorf("bid %d, purse %d: %w", c.Amount, c.Team.Purse, ErrInsufficientPurse)
	}
	if c.MaxBid > 0 && c.Amount > c.MaxBid {
		return fmt.Errorf("bid %d, max %d: %w", c.Amount, c.MaxBid, ErrExceedsMaxBid)
	}
	return nil
}

// MaxBid estimates the most a team can bid on the current player while
// keeping enough purse to fill its remaining minimum squad slots at the
// tournament's minimum base price. It is the fallback used when the
// server's /auction/max-bids is unavailable.
func MaxBid(team model.Team, t model.Tournament) int64 {
	remaining := t.MinPlayersPerTeam - len(team.Players) - 1
	if remaining < 0 {
		remaining = 0
	}
	max := team.Purse - int64(remaining)*t.MinBasePrice
	if max < 0 {
		return 0
	}
	return max
}
