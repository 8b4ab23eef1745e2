package store

import (
	"context"

	"github.com/pkg/errors"
)

// MatchResult is a persisted candidate match between an item and one from
// the opposite collection. Records are immutable once written; repeated runs
// may produce duplicates (at-least-once) and the engine does not deduplicate.
type MatchResult struct {
	ID               string
	SourceItemID     string
	SourceCollection Collection
	TargetItemID     string
	TargetCollection Collection
	Score            float64
	Components       map[Modality]float64
	MatchType        string
	MatchSource      string
	CreatedTs        int64
}

// Match sources recorded on persisted results.
const (
	MatchSourceInstant = "instant_match"
	MatchSourceSweep   = "background_sweep"
)

// CreateMatch persists a match result.
func (s *Store) CreateMatch(ctx context.Context, match *MatchResult) (*MatchResult, error) {
	if match.SourceItemID == "" || match.TargetItemID == "" {
		return nil, errors.New("match item ids required")
	}
	if match.SourceItemID == match.TargetItemID {
		return nil, errors.New("match cannot pair an item with itself")
	}
	return s.driver.CreateMatch(ctx, match)
}

// ListRecentMatches returns up to limit matches ordered by recency descending.
func (s *Store) ListRecentMatches(ctx context.Context, limit int) ([]*MatchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.driver.ListRecentMatches(ctx, limit)
}
