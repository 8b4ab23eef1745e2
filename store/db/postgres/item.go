package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/refind-ai/refind/store"
)

// UpsertItem inserts or merge-updates an item keyed by (collection, id).
// Embeddings already stored survive an upsert that omits them.
func (d *DB) UpsertItem(ctx context.Context, item *store.Item) (*store.Item, error) {
	stmt := `
		INSERT INTO item (
			id, collection, name, description, category, image_url, status,
			embedding_image, embedding_text_clip, embedding_text_sentence, processed_ts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (collection, id)
		DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			status = EXCLUDED.status,
			embedding_image = COALESCE(EXCLUDED.embedding_image, item.embedding_image),
			embedding_text_clip = COALESCE(EXCLUDED.embedding_text_clip, item.embedding_text_clip),
			embedding_text_sentence = COALESCE(EXCLUDED.embedding_text_sentence, item.embedding_text_sentence),
			processed_ts = EXCLUDED.processed_ts
	`

	_, err := d.db.ExecContext(ctx, stmt,
		item.ID,
		item.Collection,
		item.Name,
		item.Description,
		item.Category,
		item.ImageURL,
		item.Status,
		vectorParam(item.Embeddings.Image),
		vectorParam(item.Embeddings.TextClip),
		vectorParam(item.Embeddings.TextSentence),
		item.ProcessedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert item")
	}
	return item, nil
}

// GetItem returns the item keyed by (collection, id), or nil when absent.
func (d *DB) GetItem(ctx context.Context, collection store.Collection, id string) (*store.Item, error) {
	query := itemSelect + ` WHERE collection = $1 AND id = $2`

	row := d.db.QueryRowContext(ctx, query, collection, id)
	item, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get item")
	}
	return item, nil
}

// ListItems lists items matching the find condition, newest-processed first.
func (d *DB) ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error) {
	where, args := []string{"collection = " + placeholder(1)}, []any{find.Collection}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
	}

	query := itemSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY processed_ts DESC, id ASC`
	if find.Limit > 0 {
		args = append(args, find.Limit)
		query += " LIMIT " + placeholder(len(args))
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list items")
	}
	defer rows.Close()

	list := []*store.Item{}
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate items")
	}
	return list, nil
}

// UpdateItemStatus sets the lifecycle status of an item.
func (d *DB) UpdateItemStatus(ctx context.Context, collection store.Collection, id, status string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE item SET status = $1 WHERE collection = $2 AND id = $3`,
		status, collection, id)
	if err != nil {
		return errors.Wrap(err, "failed to update item status")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return errors.Errorf("item %s not found in %s", id, collection)
	}
	return nil
}

const itemSelect = `
	SELECT id, collection, name, description, category, image_url, status,
		embedding_image, embedding_text_clip, embedding_text_sentence, processed_ts
	FROM item
`

func scanItem(scan func(dest ...any) error) (*store.Item, error) {
	var item store.Item
	var image, textClip, textSentence sql.Null[pgvector.Vector]
	if err := scan(
		&item.ID,
		&item.Collection,
		&item.Name,
		&item.Description,
		&item.Category,
		&item.ImageURL,
		&item.Status,
		&image,
		&textClip,
		&textSentence,
		&item.ProcessedTs,
	); err != nil {
		return nil, err
	}
	if image.Valid {
		item.Embeddings.Image = image.V.Slice()
	}
	if textClip.Valid {
		item.Embeddings.TextClip = textClip.V.Slice()
	}
	if textSentence.Valid {
		item.Embeddings.TextSentence = textSentence.V.Slice()
	}
	return &item, nil
}

// vectorParam converts a vector to a pgvector parameter, mapping an absent
// modality to NULL.
func vectorParam(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}
