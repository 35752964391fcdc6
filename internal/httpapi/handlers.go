package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jensholdgaard/cricket-auction/internal/api"
	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/cache"
	"github.com/jensholdgaard/cricket-auction/internal/model"
	"github.com/jensholdgaard/cricket-auction/internal/pricing"
)

type stateResponse struct {
	auction.State
	Phase      auction.Phase `json:"phase"`
	MinimumBid *int64        `json:"minimumBid,omitempty"`
}

type nextBidResponse struct {
	Price     int64 `json:"price"`
	Increment int64 `json:"increment"`
	NextBid   int64 `json:"nextBid"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func stateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := d.State(r.Context())
		if errors.Is(err, cache.ErrNoSnapshot) {
			writeError(w, http.StatusNotFound, "no auction state yet")
			return
		}
		if err != nil {
			d.fail(w, r, err)
			return
		}

		resp := stateResponse{State: s, Phase: s.Phase()}
		if d.Tournaments != nil && s.CurrentPlayer != nil {
			if t, err := d.tournament(r.Context()); err == nil {
				if amount, ok := s.MinimumBid(t.BidIncrements); ok {
					resp.MinimumBid = &amount
				}
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func nextBidHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		price, err := strconv.ParseInt(r.URL.Query().Get("price"), 10, 64)
		if err != nil || price < 0 {
			writeError(w, http.StatusBadRequest, "price must be a non-negative integer")
			return
		}

		t, err := d.tournament(r.Context())
		if err != nil {
			d.fail(w, r, err)
			return
		}

		inc := pricing.Increment(price, t.BidIncrements)
		writeJSON(w, http.StatusOK, nextBidResponse{Price: price, Increment: inc, NextBid: price + inc})
	}
}

func salesHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sales, err := d.Sales.List(r.Context(), d.TournamentID)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sales)
	}
}

// tournament fetches the tournament and warns when its bid bands overlap
// or leave gaps.
func (d Deps) tournament(ctx context.Context) (*model.Tournament, error) {
	t, err := d.Tournaments.GetTournament(ctx, d.TournamentID)
	if err != nil {
		return nil, err
	}
	if err := pricing.ValidateBands(t.BidIncrements); err != nil && d.Logger != nil {
		d.Logger.WarnContext(ctx, "tournament bid bands are inconsistent",
			slog.String("tournament_id", d.TournamentID),
			slog.Any("error", err),
		)
	}
	return t, nil
}

// fail logs err and relays upstream API errors with their status.
func (d Deps) fail(w http.ResponseWriter, r *http.Request, err error) {
	if d.Logger != nil {
		d.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		writeError(w, http.StatusBadGateway, apiErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, api.FallbackMessage)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
