// Package cache fans mirror snapshots out to Redis for viewers and for
// replicas that are not running the bridge.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/config"
)

// ErrNoSnapshot is returned by Latest before anything was published.
var ErrNoSnapshot = errors.New("no auction snapshot cached")

// Client is the subset of *redis.Client the publisher needs.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// StateKey is where a tournament's latest snapshot lives.
func StateKey(tournamentID string) string { return "auction:" + tournamentID + ":state" }

// EventsChannel is where every snapshot is published.
func EventsChannel(tournamentID string) string { return "auction:" + tournamentID + ":events" }

// Connect builds a client from cfg and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Publisher implements auction.Sink on Redis.
type Publisher struct {
	client       Client
	tournamentID string
	ttl          time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewPublisher returns a Publisher for one tournament. A zero ttl keeps
// snapshots forever.
func NewPublisher(client Client, tournamentID string, ttl time.Duration, logger *slog.Logger, tp trace.TracerProvider) *Publisher {
	return &Publisher{
		client:       client,
		tournamentID: tournamentID,
		ttl:          ttl,
		logger:       logger,
		tracer:       tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/cache"),
	}
}

// Publish stores s under StateKey and announces it on EventsChannel.
func (p *Publisher) Publish(ctx context.Context, s auction.State) error {
	ctx, span := p.tracer.Start(ctx, "Publisher.Publish",
		trace.WithAttributes(
			attribute.String("tournament.id", p.tournamentID),
			attribute.Int("version", s.Version),
		),
	)
	defer span.End()

	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := p.client.Set(ctx, StateKey(p.tournamentID), b, p.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing snapshot: %w", err)
	}
	n, err := p.client.Publish(ctx, EventsChannel(p.tournamentID), b).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("publishing snapshot: %w", err)
	}

	p.logger.DebugContext(ctx, "snapshot published",
		slog.Int("version", s.Version),
		slog.Int64("subscribers", n),
	)
	return nil
}

// Latest returns the most recently published snapshot.
func (p *Publisher) Latest(ctx context.Context) (auction.State, error) {
	ctx, span := p.tracer.Start(ctx, "Publisher.Latest")
	defer span.End()

	b, err := p.client.Get(ctx, StateKey(p.tournamentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auction.State{}, ErrNoSnapshot
	}
	if err != nil {
		return auction.State{}, fmt.Errorf("reading snapshot: %w", err)
	}

	var s auction.State
	if err := json.Unmarshal(b, &s); err != nil {
		return auction.State{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}
