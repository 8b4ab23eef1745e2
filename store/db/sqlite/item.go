package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/refind-ai/refind/store"
)

// UpsertItem inserts or merge-updates an item keyed by (collection, id).
func (d *DB) UpsertItem(ctx context.Context, item *store.Item) (*store.Item, error) {
	stmt := `
		INSERT INTO item (
			id, collection, name, description, category, image_url, status,
			embedding_image, embedding_text_clip, embedding_text_sentence, processed_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			image_url = excluded.image_url,
			status = excluded.status,
			embedding_image = COALESCE(excluded.embedding_image, item.embedding_image),
			embedding_text_clip = COALESCE(excluded.embedding_text_clip, item.embedding_text_clip),
			embedding_text_sentence = COALESCE(excluded.embedding_text_sentence, item.embedding_text_sentence),
			processed_ts = excluded.processed_ts
	`

	_, err := d.db.ExecContext(ctx, stmt,
		item.ID,
		item.Collection,
		item.Name,
		item.Description,
		item.Category,
		item.ImageURL,
		item.Status,
		vectorToBlob(item.Embeddings.Image),
		vectorToBlob(item.Embeddings.TextClip),
		vectorToBlob(item.Embeddings.TextSentence),
		item.ProcessedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert item")
	}
	return item, nil
}

// GetItem returns the item keyed by (collection, id), or nil when absent.
func (d *DB) GetItem(ctx context.Context, collection store.Collection, id string) (*store.Item, error) {
	row := d.db.QueryRowContext(ctx, itemSelect+` WHERE collection = ? AND id = ?`, collection, id)
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
	where, args := []string{"collection = ?"}, []any{find.Collection}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, *find.Status)
	}

	query := itemSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY processed_ts DESC, id ASC`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
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
		`UPDATE item SET status = ? WHERE collection = ? AND id = ?`,
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
	var image, textClip, textSentence []byte
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
	item.Embeddings.Image = blobToVector(image)
	item.Embeddings.TextClip = blobToVector(textClip)
	item.Embeddings.TextSentence = blobToVector(textSentence)
	return &item, nil
}
