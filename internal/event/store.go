package event

import "context"

// Store persists and retrieves recorded events. The aggregate of a mirror
// event is its tournament ID; ledger events use the player ID.
type Store interface {
	// Append persists events atomically. A repeated (aggregate, version)
	// pair is an error.
	Append(ctx context.Context, events ...Event) error
	// Load returns an aggregate's events ordered by version.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns events of one type ordered by creation time.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}
