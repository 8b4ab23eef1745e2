package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refind-ai/refind/store"
)

func indexFixture() []*store.Item {
	// Deliberately non-normalized vectors so the index normalization path
	// is exercised against Cosine's built-in normalization.
	return []*store.Item{
		{ID: "full", Collection: store.CollectionFound, Embeddings: store.Embeddings{
			Image:        []float32{3, 4},
			TextClip:     []float32{2, 0, 0},
			TextSentence: []float32{0, 5},
		}},
		{ID: "text-only", Collection: store.CollectionFound, Embeddings: store.Embeddings{
			TextClip:     []float32{1, 1, 0},
			TextSentence: []float32{1, 0},
		}},
		{ID: "image-only", Collection: store.CollectionFound, Embeddings: store.Embeddings{
			Image: []float32{4, 3},
		}},
		{ID: "bare", Collection: store.CollectionFound},
		{ID: "self", Collection: store.CollectionFound, Embeddings: store.Embeddings{
			TextSentence: []float32{0, 1},
		}},
	}
}

func TestBuildIndex(t *testing.T) {
	idx := BuildIndex(indexFixture(), "self")
	// "bare" has no embeddings and "self" is excluded.
	assert.Equal(t, 3, idx.Size())
}

func TestIndexQuery_EmptySnapshot(t *testing.T) {
	idx := BuildIndex(nil, "")
	matches := idx.Query(&store.Embeddings{TextClip: []float32{1, 0, 0}}, 0, 0)
	assert.Empty(t, matches)
}

func TestIndexQuery_MatchesPairwiseScoring(t *testing.T) {
	items := indexFixture()
	query := &store.Embeddings{
		Image:        []float32{1, 2},
		TextClip:     []float32{2, 1, 0},
		TextSentence: []float32{1, 3},
	}

	idx := BuildIndex(items, "self")
	got := idx.Query(query, 0, 0)

	want := map[string]HybridScore{}
	for _, item := range items {
		if item.ID == "self" || !item.Embeddings.Any() {
			continue
		}
		want[item.ID] = HybridSimilarity(query, &item.Embeddings, nil)
	}

	require.Len(t, got, len(want))
	for _, m := range got {
		expected, ok := want[m.ItemID]
		require.True(t, ok, "unexpected match %s", m.ItemID)
		assert.InDelta(t, expected.Total, m.Score, 1e-6, "item %s", m.ItemID)
		require.Len(t, m.Components, len(expected.Components), "item %s", m.ItemID)
		for modality, sim := range expected.Components {
			assert.InDelta(t, sim, m.Components[modality], 1e-6, "item %s modality %s", m.ItemID, modality)
		}
	}
}

func TestIndexQuery_ThresholdAndTopK(t *testing.T) {
	items := []*store.Item{
		{ID: "near", Embeddings: store.Embeddings{TextSentence: []float32{1, 0}}},
		{ID: "mid", Embeddings: store.Embeddings{TextSentence: []float32{1, 1}}},
		{ID: "far", Embeddings: store.Embeddings{TextSentence: []float32{0, 1}}},
	}
	query := &store.Embeddings{TextSentence: []float32{1, 0}}
	idx := BuildIndex(items, "")

	matches := idx.Query(query, 0.5, 0)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].ItemID)
	assert.Equal(t, "mid", matches[1].ItemID)

	matches = idx.Query(query, 0.5, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].ItemID)
}

func TestIndexQuery_DimensionMismatchIsSharedZero(t *testing.T) {
	items := []*store.Item{
		{ID: "wrong-dim", Embeddings: store.Embeddings{
			TextClip:     []float32{1, 0, 0, 0},
			TextSentence: []float32{1, 0},
		}},
	}
	query := &store.Embeddings{
		TextClip:     []float32{1, 0, 0},
		TextSentence: []float32{1, 0},
	}
	idx := BuildIndex(items, "")
	matches := idx.Query(query, 0, 0)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Components[store.ModalityTextClip])
	assert.InDelta(t, 0.5, matches[0].Score, 1e-6)
	assert.Equal(t, "hybrid", matches[0].MatchType)
}
