package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// SaleRepo implements store.SaleRepository with sqlx.
type SaleRepo struct {
	db *sqlx.DB
}

// NewSaleRepo returns a new SaleRepo.
func NewSaleRepo(db *sqlx.DB) *SaleRepo {
	return &SaleRepo{db: db}
}

func (r *SaleRepo) Create(ctx context.Context, s *store.Sale) error {
	query := `INSERT INTO sales (tournament_id, player_id, player_name, team_id, price, status, created_at)
	           VALUES (:tournament_id, :player_id, :player_name, :team_id, :price, :status, :created_at)
	           RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, s)
	if err != nil {
		return fmt.Errorf("inserting sale: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return fmt.Errorf("inserting sale: no id returned")
	}
	if err := rows.Scan(&s.ID); err != nil {
		return fmt.Errorf("scanning sale id: %w", err)
	}
	return rows.Err()
}

func (r *SaleRepo) GetByID(ctx context.Context, id string) (*store.Sale, error) {
	var s store.Sale
	err := r.db.GetContext(ctx, &s, `SELECT * FROM sales WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting sale: %w", err)
	}
	return &s, nil
}

func (r *SaleRepo) ListByTournament(ctx context.Context, tournamentID string) ([]store.Sale, error) {
	var sales []store.Sale
	err := r.db.SelectContext(ctx, &sales,
		`SELECT * FROM sales WHERE tournament_id = $1 ORDER BY created_at ASC`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	return sales, nil
}
