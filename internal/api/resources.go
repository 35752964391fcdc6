package api

import (
	"context"
	"net/http"

	"github.com/jensholdgaard/cricket-auction/internal/model"
)

// Tournaments

func (c *Client) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	var out []model.Tournament
	if err := c.do(ctx, http.MethodGet, "/tournaments", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTournament(ctx context.Context, id string) (*model.Tournament, error) {
	var out model.Tournament
	if err := c.do(ctx, http.MethodGet, "/tournaments/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTournament(ctx context.Context, t model.Tournament) (*model.Tournament, error) {
	var out model.Tournament
	if err := c.do(ctx, http.MethodPost, "/tournaments", nil, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTournament(ctx context.Context, t model.Tournament) (*model.Tournament, error) {
	var out model.Tournament
	if err := c.do(ctx, http.MethodPut, "/tournaments/"+t.ID, nil, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTournament(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tournaments/"+id, nil, nil, nil)
}

// Teams

func (c *Client) ListTeams(ctx context.Context, tournamentID string) ([]model.Team, error) {
	var out []model.Team
	if err := c.do(ctx, http.MethodGet, "/teams", byTournament(tournamentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var out model.Team
	if err := c.do(ctx, http.MethodGet, "/teams/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTeam(ctx context.Context, t model.Team) (*model.Team, error) {
	var out model.Team
	if err := c.do(ctx, http.MethodPost, "/teams", nil, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTeam(ctx context.Context, t model.Team) (*model.Team, error) {
	var out model.Team
	if err := c.do(ctx, http.MethodPut, "/teams/"+t.ID, nil, t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTeam(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/teams/"+id, nil, nil, nil)
}

// Players

func (c *Client) ListPlayers(ctx context.Context, tournamentID string) ([]model.Player, error) {
	var out []model.Player
	if err := c.do(ctx, http.MethodGet, "/players", byTournament(tournamentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	var out model.Player
	if err := c.do(ctx, http.MethodGet, "/players/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePlayer(ctx context.Context, p model.Player) (*model.Player, error) {
	var out model.Player
	if err := c.do(ctx, http.MethodPost, "/players", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePlayer(ctx context.Context, p model.Player) (*model.Player, error) {
	var out model.Player
	if err := c.do(ctx, http.MethodPut, "/players/"+p.ID, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePlayer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/players/"+id, nil, nil, nil)
}

// Rules

func (c *Client) ListRules(ctx context.Context, tournamentID string) ([]model.Rule, error) {
	var out []model.Rule
	if err := c.do(ctx, http.MethodGet, "/rules", byTournament(tournamentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRule(ctx context.Context, r model.Rule) (*model.Rule, error) {
	var out model.Rule
	if err := c.do(ctx, http.MethodPost, "/rules", nil, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/rules/"+id, nil, nil, nil)
}
