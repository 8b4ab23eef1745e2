package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aicache "github.com/refind-ai/refind/ai/cache"
	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

func newTestSweeper(driver *fakeDriver, generator *fakeGenerator) *Sweeper {
	return NewSweeper(newFakeStore(driver), generator, aicache.NewEmbeddingCache(10, time.Minute), &profile.Profile{
		SweepStaleAfter: 24 * time.Hour,
		SweepPacing:     time.Millisecond,
	})
}

func TestSweepRun(t *testing.T) {
	ctx := context.Background()

	t.Run("empty collections produce an empty summary", func(t *testing.T) {
		s := newTestSweeper(newFakeDriver(), &fakeGenerator{vectors: textVectors()})
		summary, err := s.Run(ctx, 10, nil)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)
		assert.Zero(t, summary.NewMatches)
		assert.InDelta(t, DefaultThreshold, summary.Threshold, 1e-9)
	})

	t.Run("processes unembedded items and persists matches", func(t *testing.T) {
		driver := newFakeDriver()
		// A lost item without embeddings yet and a found item that its
		// generated embeddings will match exactly.
		_, err := driver.UpsertItem(ctx, &store.Item{
			ID:         "lost-1",
			Collection: store.CollectionLost,
			Name:       "black wallet",
			Status:     store.ItemStatusActive,
		})
		require.NoError(t, err)
		seedFoundItem(t, driver, "found-1", store.Embeddings{
			TextClip:     []float32{1, 0, 0},
			TextSentence: []float32{1, 0, 0},
		})

		s := newTestSweeper(driver, &fakeGenerator{vectors: textVectors()})
		summary, err := s.Run(ctx, 10, nil)
		require.NoError(t, err)

		// lost-1 matches found-1, and found-1 (already embedded but never
		// processed) matches lost-1 back once its embeddings are stored.
		assert.Equal(t, 2, summary.Processed)
		assert.GreaterOrEqual(t, summary.NewMatches, 1)
		assert.Equal(t, 1, summary.LostItemCount)
		assert.Equal(t, 1, summary.FoundItemCount)

		// The generated embeddings were persisted on the item.
		stored, err := driver.GetItem(ctx, store.CollectionLost, "lost-1")
		require.NoError(t, err)
		assert.True(t, stored.Embeddings.Has(store.ModalityTextClip))
		assert.Positive(t, stored.ProcessedTs)

		// Items that gained matches leave the active status.
		assert.Equal(t, store.ItemStatusHasMatches, driver.itemStatus(store.CollectionLost, "lost-1"))
	})

	t.Run("skips recently processed items", func(t *testing.T) {
		driver := newFakeDriver()
		_, err := driver.UpsertItem(ctx, &store.Item{
			ID:          "lost-1",
			Collection:  store.CollectionLost,
			Name:        "black wallet",
			Status:      store.ItemStatusActive,
			Embeddings:  store.Embeddings{TextClip: []float32{1, 0, 0}},
			ProcessedTs: time.Now().Unix(),
		})
		require.NoError(t, err)

		s := newTestSweeper(driver, &fakeGenerator{vectors: textVectors()})
		summary, err := s.Run(ctx, 10, nil)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)
	})

	t.Run("reprocesses stale items without regenerating embeddings", func(t *testing.T) {
		driver := newFakeDriver()
		_, err := driver.UpsertItem(ctx, &store.Item{
			ID:          "lost-1",
			Collection:  store.CollectionLost,
			Name:        "black wallet",
			Status:      store.ItemStatusActive,
			Embeddings:  store.Embeddings{TextClip: []float32{1, 0, 0}},
			ProcessedTs: time.Now().Add(-48 * time.Hour).Unix(),
		})
		require.NoError(t, err)
		generator := &fakeGenerator{vectors: textVectors()}

		s := newTestSweeper(driver, generator)
		summary, err := s.Run(ctx, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Zero(t, generator.callCount())

		// The stale item leaves the eligible set even when it gains no
		// matches, so the next run does not pick it up again.
		stored, err := driver.GetItem(ctx, store.CollectionLost, "lost-1")
		require.NoError(t, err)
		cutoff := time.Now().Add(-24 * time.Hour).Unix()
		assert.Greater(t, stored.ProcessedTs, cutoff)

		summary, err = s.Run(ctx, 10, nil)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)
	})

	t.Run("a failing item does not abort the run", func(t *testing.T) {
		driver := newFakeDriver()
		// Nothing to embed: no text and no image. generateItemEmbeddings
		// fails for this item and the sweep moves on.
		_, err := driver.UpsertItem(ctx, &store.Item{
			ID:         "lost-broken",
			Collection: store.CollectionLost,
			Status:     store.ItemStatusActive,
		})
		require.NoError(t, err)
		_, err = driver.UpsertItem(ctx, &store.Item{
			ID:         "lost-ok",
			Collection: store.CollectionLost,
			Name:       "black wallet",
			Status:     store.ItemStatusActive,
		})
		require.NoError(t, err)

		s := newTestSweeper(driver, &fakeGenerator{vectors: textVectors()})
		summary, err := s.Run(ctx, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
	})

	t.Run("caps eligible items at half the limit per collection", func(t *testing.T) {
		driver := newFakeDriver()
		for _, id := range []string{"lost-1", "lost-2", "lost-3"} {
			_, err := driver.UpsertItem(ctx, &store.Item{
				ID:         id,
				Collection: store.CollectionLost,
				Name:       "umbrella",
				Status:     store.ItemStatusActive,
			})
			require.NoError(t, err)
		}

		s := newTestSweeper(driver, &fakeGenerator{vectors: textVectors()})
		summary, err := s.Run(ctx, 4, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Processed)
	})

	t.Run("unreachable store fails the run", func(t *testing.T) {
		driver := newFakeDriver()
		driver.failList = true
		s := newTestSweeper(driver, &fakeGenerator{vectors: textVectors()})
		_, err := s.Run(ctx, 10, nil)
		require.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("rejects an out-of-range threshold", func(t *testing.T) {
		s := newTestSweeper(newFakeDriver(), &fakeGenerator{vectors: textVectors()})
		bad := 1.5
		_, err := s.Run(ctx, 10, &bad)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("honors an explicit zero threshold", func(t *testing.T) {
		driver := newFakeDriver()
		_, err := driver.UpsertItem(ctx, &store.Item{
			ID:         "lost-1",
			Collection: store.CollectionLost,
			Name:       "black wallet",
			Status:     store.ItemStatusActive,
		})
		require.NoError(t, err)
		// A weak 0.6 similarity candidate that a stock threshold drops.
		seedFoundItem(t, driver, "found-weak", store.Embeddings{
			TextClip:     []float32{0.6, 0.8, 0},
			TextSentence: []float32{0.6, 0.8, 0},
		})

		s := newTestSweeper(driver, &fakeGenerator{vectors: textVectors()})
		zero := 0.0
		summary, err := s.Run(ctx, 10, &zero)
		require.NoError(t, err)
		assert.Zero(t, summary.Threshold)
		assert.GreaterOrEqual(t, summary.NewMatches, 1)
	})

	t.Run("applies the limit configured in the profile", func(t *testing.T) {
		driver := newFakeDriver()
		for _, id := range []string{"lost-1", "lost-2", "lost-3"} {
			_, err := driver.UpsertItem(ctx, &store.Item{
				ID:         id,
				Collection: store.CollectionLost,
				Name:       "umbrella",
				Status:     store.ItemStatusActive,
			})
			require.NoError(t, err)
		}

		s := NewSweeper(newFakeStore(driver), &fakeGenerator{vectors: textVectors()}, nil, &profile.Profile{
			SweepLimit:  4,
			SweepPacing: time.Millisecond,
		})
		summary, err := s.Run(ctx, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Processed)
	})
}
