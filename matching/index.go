package matching

import (
	"math"
	"sort"

	"github.com/refind-ai/refind/store"
)

// Index is an ephemeral nearest-neighbor structure over a point-in-time
// snapshot of one collection. It holds unit-normalized vectors per modality
// in parallel arrays so a query runs as batched dot products instead of
// per-pair cosine calls. It is rebuilt from the store for every matching
// call and never persisted; a query therefore always reflects the latest
// committed snapshot it was built from.
//
// Query output is identical to calling HybridSimilarity candidate by
// candidate; the index is a batching optimization, not a different
// algorithm.
type Index struct {
	ids     []string
	vectors map[store.Modality][][]float32 // nil row where the item lacks the modality
}

// BuildIndex constructs an index from an item snapshot. Items with no
// embeddings at all are skipped, as is the item with id excludeID (an item
// never matches itself). Vectors are L2-normalized; normalization is
// idempotent for vectors already at unit norm.
func BuildIndex(items []*store.Item, excludeID string) *Index {
	idx := &Index{
		vectors: map[store.Modality][][]float32{},
	}
	for _, m := range store.Modalities {
		idx.vectors[m] = [][]float32{}
	}

	for _, item := range items {
		if item.ID == excludeID || !item.Embeddings.Any() {
			continue
		}
		idx.ids = append(idx.ids, item.ID)
		for _, m := range store.Modalities {
			v := item.Embeddings.ByModality(m)
			if len(v) == 0 {
				idx.vectors[m] = append(idx.vectors[m], nil)
				continue
			}
			idx.vectors[m] = append(idx.vectors[m], normalized(v))
		}
	}
	return idx
}

// Size returns the number of indexed candidates.
func (idx *Index) Size() int {
	return len(idx.ids)
}

// Query scores the query embeddings against every candidate and returns at
// most topK matches with total score >= threshold, ordered by score
// descending with id tie-break.
func (idx *Index) Query(query *store.Embeddings, threshold float64, topK int) []Match {
	n := len(idx.ids)
	if n == 0 {
		return []Match{}
	}

	// Batched per-modality dot products. shared[m][i] records whether the
	// pair shares the modality; a dimension mismatch stays shared with
	// score 0, matching Cosine's non-fatal contract.
	dots := map[store.Modality][]float64{}
	shared := map[store.Modality][]bool{}
	for _, m := range store.Modalities {
		qv := query.ByModality(m)
		if len(qv) == 0 {
			continue
		}
		qn := normalized(qv)
		dots[m] = make([]float64, n)
		shared[m] = make([]bool, n)
		for i, cv := range idx.vectors[m] {
			if cv == nil {
				continue
			}
			shared[m][i] = true
			if len(cv) != len(qn) {
				continue
			}
			var dot float64
			for j := range qn {
				dot += float64(qn[j]) * float64(cv[j])
			}
			dots[m][i] = dot
		}
	}

	queryHasImage := query.Has(store.ModalityImage)
	matches := []Match{}
	for i := 0; i < n; i++ {
		components := map[store.Modality]float64{}
		for _, m := range store.Modalities {
			if shared[m] != nil && shared[m][i] {
				components[m] = dots[m][i]
			}
		}
		if len(components) == 0 {
			continue
		}

		candidateHasImage := idx.vectors[store.ModalityImage][i] != nil
		textClipShared := shared[store.ModalityTextClip] != nil && shared[store.ModalityTextClip][i]
		textClipSim := 0.0
		if textClipShared {
			textClipSim = dots[store.ModalityTextClip][i]
		}
		weights := deriveWeights(
			queryHasImage && candidateHasImage,
			queryHasImage || candidateHasImage,
			textClipShared, textClipSim,
		)

		var usedWeight float64
		for m := range components {
			usedWeight += weights[m]
		}
		if usedWeight == 0 {
			continue
		}
		var total float64
		for m, sim := range components {
			total += sim * (weights[m] / usedWeight)
		}
		if total > 1 {
			total = 1
		}
		if total < 0 {
			total = 0
		}
		if total < threshold {
			continue
		}

		matches = append(matches, Match{
			ItemID:     idx.ids[i],
			Score:      total,
			Components: components,
			MatchType:  classifyMatch(components),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ItemID < matches[j].ItemID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// normalized returns a unit-norm copy of v. Zero vectors are copied as-is.
func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * norm)
	}
	return out
}
