package store

import (
	"context"

	"github.com/pkg/errors"
)

// Collection identifies one of the two disjoint item pools. Items in a
// collection are only ever matched against the opposite collection.
type Collection string

const (
	CollectionLost  Collection = "lost_items"
	CollectionFound Collection = "found_items"
)

// Opposite returns the collection an item of collection c is matched against.
func (c Collection) Opposite() Collection {
	if c == CollectionLost {
		return CollectionFound
	}
	return CollectionLost
}

// Valid reports whether c is one of the two known collections.
func (c Collection) Valid() bool {
	return c == CollectionLost || c == CollectionFound
}

// Modality is one of the independent embedding channels. The set is closed:
// the two text channels come from different encoders and are never compared
// with each other.
type Modality string

const (
	ModalityImage        Modality = "image"
	ModalityTextClip     Modality = "text_clip"
	ModalityTextSentence Modality = "text_sentence"
)

// Modalities lists every known modality in canonical order.
var Modalities = []Modality{ModalityImage, ModalityTextClip, ModalityTextSentence}

// Embeddings holds one optional vector per modality. A nil field means the
// modality is absent for the item.
type Embeddings struct {
	Image        []float32
	TextClip     []float32
	TextSentence []float32
}

// ByModality returns the vector for the given modality, or nil if absent.
func (e *Embeddings) ByModality(m Modality) []float32 {
	switch m {
	case ModalityImage:
		return e.Image
	case ModalityTextClip:
		return e.TextClip
	case ModalityTextSentence:
		return e.TextSentence
	}
	return nil
}

// SetModality stores a vector under the given modality. Unknown modalities
// are ignored.
func (e *Embeddings) SetModality(m Modality, vector []float32) {
	switch m {
	case ModalityImage:
		e.Image = vector
	case ModalityTextClip:
		e.TextClip = vector
	case ModalityTextSentence:
		e.TextSentence = vector
	}
}

// Has reports whether the modality is present.
func (e *Embeddings) Has(m Modality) bool {
	return len(e.ByModality(m)) > 0
}

// Any reports whether at least one modality is present.
func (e *Embeddings) Any() bool {
	return len(e.Image) > 0 || len(e.TextClip) > 0 || len(e.TextSentence) > 0
}

// Present returns the modalities that carry a vector, in canonical order.
func (e *Embeddings) Present() []Modality {
	present := []Modality{}
	for _, m := range Modalities {
		if e.Has(m) {
			present = append(present, m)
		}
	}
	return present
}

// Item lifecycle statuses.
const (
	ItemStatusActive     = "active"
	ItemStatusHasMatches = "has_matches"
	ItemStatusResolved   = "resolved"
)

// Item is a lost or found report with its embeddings and metadata.
type Item struct {
	ID          string
	Collection  Collection
	Name        string
	Description string
	Category    string
	ImageURL    string
	Status      string
	Embeddings  Embeddings
	ProcessedTs int64
}

// FindItem is the find condition for items.
type FindItem struct {
	Collection Collection
	Status     *string
	Limit      int
}

// Validate validates the find condition.
func (f *FindItem) Validate() error {
	if !f.Collection.Valid() {
		return errors.Errorf("invalid collection: %s", f.Collection)
	}
	if f.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", f.Limit)
	}
	return nil
}

// UpsertItem inserts or merge-updates an item keyed by (collection, id).
// Last write wins; embeddings already stored are kept when the incoming
// item omits them.
func (s *Store) UpsertItem(ctx context.Context, item *Item) (*Item, error) {
	if item.ID == "" {
		return nil, errors.New("item id required")
	}
	if !item.Collection.Valid() {
		return nil, errors.Errorf("invalid collection: %s", item.Collection)
	}
	return s.driver.UpsertItem(ctx, item)
}

// GetItem returns the item keyed by (collection, id), or nil if absent.
func (s *Store) GetItem(ctx context.Context, collection Collection, id string) (*Item, error) {
	return s.driver.GetItem(ctx, collection, id)
}

// ListItems lists items matching the find condition.
func (s *Store) ListItems(ctx context.Context, find *FindItem) ([]*Item, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListItems(ctx, find)
}

// UpdateItemStatus sets the lifecycle status of an item.
func (s *Store) UpdateItemStatus(ctx context.Context, collection Collection, id, status string) error {
	return s.driver.UpdateItemStatus(ctx, collection, id, status)
}
