// Package httpapi serves probes and a read-only view of the mirrored
// auction.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/health"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// StateFunc returns the snapshot to serve.
type StateFunc func(ctx context.Context) (auction.State, error)

// TournamentGetter loads tournament settings. *api.Client implements it.
type TournamentGetter interface {
	GetTournament(ctx context.Context, id string) (*model.Tournament, error)
}

// SalesLister lists recorded outcomes. *ledger.Manager implements it.
type SalesLister interface {
	List(ctx context.Context, tournamentID string) ([]store.Sale, error)
}

// Deps wires the handlers. Nil State, Tournaments or Sales disable their
// routes.
type Deps struct {
	TournamentID string
	Health       *health.Handler
	State        StateFunc
	Tournaments  TournamentGetter
	Sales        SalesLister
	Logger       *slog.Logger
}

// NewRouter builds the HTTP surface.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", d.Health.LivenessHandler())
	r.Get("/readyz", d.Health.ReadinessHandler())

	r.Route("/api/auction", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		if d.State != nil {
			r.Get("/state", stateHandler(d))
		}
		if d.Tournaments != nil {
			r.Get("/next-bid", nextBidHandler(d))
		}
		if d.Sales != nil {
			r.Get("/sales", salesHandler(d))
		}
	})
	return r
}
