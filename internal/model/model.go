// Package model holds the auction server's resources as the bridge sees
// them on the wire.
package model

import "github.com/jensholdgaard/cricket-auction/internal/pricing"

// Player statuses reported by the server.
const (
	PlayerAvailable = "available"
	PlayerSold      = "sold"
	PlayerUnsold    = "unsold"
)

// Tournament is a configured auction event.
type Tournament struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	TeamPurse         int64          `json:"teamPurse,omitempty"`
	MinPlayersPerTeam int            `json:"minPlayersPerTeam,omitempty"`
	MaxPlayersPerTeam int            `json:"maxPlayersPerTeam,omitempty"`
	MinBasePrice      int64          `json:"minBasePrice,omitempty"`
	BidIncrements     []pricing.Band `json:"bidIncrements,omitempty"`
}

// Team is a franchise bidding in a tournament.
type Team struct {
	ID           string   `json:"id"`
	TournamentID string   `json:"tournamentId,omitempty"`
	Name         string   `json:"name"`
	ShortName    string   `json:"shortName,omitempty"`
	Purse        int64    `json:"purse"`
	Players      []Player `json:"players,omitempty"`
}

// CategoryCount returns how many players of category the team has bought.
func (t Team) CategoryCount(category string) int {
	n := 0
	for _, p := range t.Players {
		if p.Category == category {
			n++
		}
	}
	return n
}

// Player is a cricketer up for auction.
type Player struct {
	ID           string `json:"id"`
	TournamentID string `json:"tournamentId,omitempty"`
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	BasePrice    int64  `json:"basePrice"`
	Status       string `json:"status,omitempty"`
	SoldPrice    *int64 `json:"soldPrice,omitempty"`
	TeamID       string `json:"teamId,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
}

// Rule constrains how many players of a category a team may hold.
type Rule struct {
	ID           string `json:"id"`
	TournamentID string `json:"tournamentId"`
	Category     string `json:"category"`
	MinPlayers   int    `json:"minPlayers"`
	MaxPlayers   int    `json:"maxPlayers"`
}

// CurrentAuction is the server's answer to GET /auction/current.
type CurrentAuction struct {
	TournamentID    string  `json:"tournamentId"`
	CurrentPlayer   *Player `json:"currentPlayer"`
	CurrentBidPrice *int64  `json:"currentBidPrice"`
	CurrentBidderID string  `json:"currentBidderId,omitempty"`
	IsActive        bool    `json:"isActive"`
	Teams           []Team  `json:"teams"`
}
