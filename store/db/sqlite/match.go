package sqlite

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/refind-ai/refind/store"
)

// CreateMatch persists a match result. Records are append-only.
func (d *DB) CreateMatch(ctx context.Context, match *store.MatchResult) (*store.MatchResult, error) {
	components, err := json.Marshal(match.Components)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode match components")
	}

	stmt := `
		INSERT INTO match_result (
			id, source_item_id, source_collection, target_item_id, target_collection,
			score, components, match_type, match_source, created_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		match.ID,
		match.SourceItemID,
		match.SourceCollection,
		match.TargetItemID,
		match.TargetCollection,
		match.Score,
		string(components),
		match.MatchType,
		match.MatchSource,
		match.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create match result")
	}
	return match, nil
}

// ListRecentMatches returns up to limit matches ordered by recency.
func (d *DB) ListRecentMatches(ctx context.Context, limit int) ([]*store.MatchResult, error) {
	query := `
		SELECT id, source_item_id, source_collection, target_item_id, target_collection,
			score, components, match_type, match_source, created_ts
		FROM match_result
		ORDER BY created_ts DESC, id ASC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recent matches")
	}
	defer rows.Close()

	list := []*store.MatchResult{}
	for rows.Next() {
		var match store.MatchResult
		var components string
		if err := rows.Scan(
			&match.ID,
			&match.SourceItemID,
			&match.SourceCollection,
			&match.TargetItemID,
			&match.TargetCollection,
			&match.Score,
			&components,
			&match.MatchType,
			&match.MatchSource,
			&match.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan match result")
		}
		if err := json.Unmarshal([]byte(components), &match.Components); err != nil {
			return nil, errors.Wrap(err, "failed to decode match components")
		}
		list = append(list, &match)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate match results")
	}
	return list, nil
}
