// Package postgres implements the store driver on PostgreSQL with pgvector
// columns for embeddings.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a connection to the PostgreSQL database specified by the
// profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database with dsn: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate applies the schema. The vector columns are dimensionless on
// purpose: the three modalities carry different dimensions.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS item (
			id TEXT NOT NULL,
			collection TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			embedding_image vector,
			embedding_text_clip vector,
			embedding_text_sentence vector,
			processed_ts BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_collection_status ON item (collection, status)`,
		`CREATE TABLE IF NOT EXISTS match_result (
			id TEXT PRIMARY KEY,
			source_item_id TEXT NOT NULL,
			source_collection TEXT NOT NULL,
			target_item_id TEXT NOT NULL,
			target_collection TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			components TEXT NOT NULL DEFAULT '{}',
			match_type TEXT NOT NULL DEFAULT '',
			match_source TEXT NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_result_created_ts ON match_result (created_ts DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply schema")
		}
	}
	return nil
}

// placeholder returns the positional parameter for index i (1-based).
func placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}
