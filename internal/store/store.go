package store

import (
	"context"
	"errors"
	"time"
)

// Sale outcomes.
const (
	StatusSold   = "sold"
	StatusUnsold = "unsold"
)

// ErrNotFound is returned when a sale does not exist.
var ErrNotFound = errors.New("not found")

// Sale is one observed lot outcome. Unsold lots have no team and a zero
// price.
type Sale struct {
	ID           string    `db:"id" json:"id"`
	TournamentID string    `db:"tournament_id" json:"tournament_id"`
	PlayerID     string    `db:"player_id" json:"player_id"`
	PlayerName   string    `db:"player_name" json:"player_name"`
	TeamID       *string   `db:"team_id" json:"team_id,omitempty"`
	Price        int64     `db:"price" json:"price"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SaleRepository defines sale persistence operations.
type SaleRepository interface {
	// Create stores s and fills in its ID. CreatedAt must be set by the caller.
	Create(ctx context.Context, s *Sale) error
	GetByID(ctx context.Context, id string) (*Sale, error)
	// ListByTournament returns a tournament's sales, oldest first.
	ListByTournament(ctx context.Context, tournamentID string) ([]Sale, error)
}
