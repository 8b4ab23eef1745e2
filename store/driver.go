package store

import "context"

// Driver is an interface for store database drivers.
type Driver interface {
	GetDB() any
	Close() error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	// Item model related methods.
	UpsertItem(ctx context.Context, item *Item) (*Item, error)
	GetItem(ctx context.Context, collection Collection, id string) (*Item, error)
	ListItems(ctx context.Context, find *FindItem) ([]*Item, error)
	UpdateItemStatus(ctx context.Context, collection Collection, id, status string) error

	// MatchResult model related methods.
	CreateMatch(ctx context.Context, match *MatchResult) (*MatchResult, error)
	ListRecentMatches(ctx context.Context, limit int) ([]*MatchResult, error)
}
