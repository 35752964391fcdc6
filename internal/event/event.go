package event

import (
	"encoding/json"
	"time"

	"github.com/jensholdgaard/cricket-auction/internal/model"
)

// Type identifies an event kind. Socket event names are used verbatim.
type Type string

// Events pushed by the auction server.
const (
	AuctionStarted Type = "auction:started"
	PlayerSelected Type = "player:selected"
	BidPlaced      Type = "bid:placed"
	PlayerSold     Type = "player:sold"
	PlayerUnsold   Type = "player:unsold"
	TeamUpdated    Type = "team:updated"
)

// Events emitted by the bridge.
const (
	JoinAuction  Type = "join:auction"
	LeaveAuction Type = "leave:auction"
)

// Events recorded locally only.
const (
	// AuctionResynced records a full state rebuild from GET /auction/current.
	AuctionResynced Type = "auction:resync"

	SaleRecorded   Type = "ledger:sold"
	UnsoldRecorded Type = "ledger:unsold"
)

// Inbound reports whether t is one of the server's broadcast events.
func (t Type) Inbound() bool {
	switch t {
	case AuctionStarted, PlayerSelected, BidPlaced, PlayerSold, PlayerUnsold, TeamUpdated:
		return true
	}
	return false
}

// Event represents a single recorded event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RoomData is the payload of join:auction and leave:auction.
type RoomData struct {
	TournamentID string `json:"tournamentId"`
}

// AuctionStartedData is the payload for AuctionStarted events.
type AuctionStartedData struct {
	TournamentID string       `json:"tournamentId,omitempty"`
	Teams        []model.Team `json:"teams,omitempty"`
}

// PlayerSelectedData is the payload for PlayerSelected events.
type PlayerSelectedData struct {
	Player          *model.Player `json:"player"`
	CurrentBidPrice *int64        `json:"currentBidPrice,omitempty"`
}

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	Amount int64         `json:"amount"`
	TeamID string        `json:"teamId"`
	Team   *model.Team   `json:"team,omitempty"`
	Player *model.Player `json:"player,omitempty"`
}

// PlayerSoldData is the payload for PlayerSold events.
type PlayerSoldData struct {
	Player    *model.Player `json:"player"`
	TeamID    string        `json:"teamId"`
	Team      *model.Team   `json:"team,omitempty"`
	SoldPrice int64         `json:"soldPrice"`
}

// PlayerUnsoldData is the payload for PlayerUnsold events.
type PlayerUnsoldData struct {
	Player *model.Player `json:"player"`
}

// TeamUpdatedData is the payload for TeamUpdated events. The server sends
// either a single team or the full list.
type TeamUpdatedData struct {
	Team  *model.Team  `json:"team,omitempty"`
	Teams []model.Team `json:"teams,omitempty"`
}

// ResyncData is the payload for AuctionResynced events.
type ResyncData struct {
	Current model.CurrentAuction `json:"current"`
}

// SaleData is the payload for ledger events.
type SaleData struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	TeamID     string `json:"team_id,omitempty"`
	Price      int64  `json:"price,omitempty"`
}
