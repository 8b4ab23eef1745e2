// Package sqlite implements the store driver on SQLite. Embedding vectors
// are stored as little-endian float32 BLOBs. Intended for development and
// single-node deployments; use the postgres driver for anything concurrent.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at the profile DSN with WAL journaling.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
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

// Migrate applies the schema.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS item (
			id TEXT NOT NULL,
			collection TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			embedding_image BLOB,
			embedding_text_clip BLOB,
			embedding_text_sentence BLOB,
			processed_ts INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_collection_status ON item (collection, status)`,
		`CREATE TABLE IF NOT EXISTS match_result (
			id TEXT PRIMARY KEY,
			source_item_id TEXT NOT NULL,
			source_collection TEXT NOT NULL,
			target_item_id TEXT NOT NULL,
			target_collection TEXT NOT NULL,
			score REAL NOT NULL,
			components TEXT NOT NULL DEFAULT '{}',
			match_type TEXT NOT NULL DEFAULT '',
			match_source TEXT NOT NULL DEFAULT '',
			created_ts INTEGER NOT NULL
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

// vectorToBlob encodes a float32 vector as a little-endian BLOB. Absent
// vectors map to NULL.
func vectorToBlob(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	blob := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(x))
	}
	return blob
}

// blobToVector decodes a little-endian float32 BLOB. nil and malformed
// blobs decode to nil.
func blobToVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}
