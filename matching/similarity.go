// Package matching implements the multimodal similarity engine: hybrid
// scoring across embedding modalities, an ephemeral nearest-neighbor index,
// the per-item instant-match coordinator, and the background sweep.
package matching

import (
	"math"
	"sort"

	"github.com/refind-ai/refind/store"
)

// Base modality weights before availability adjustments.
const (
	baseImageWeight = 0.4
	baseTextWeight  = 0.3

	// Both text-A similarities above this shift weight from image to text.
	textAgreementThreshold = 0.8
)

// Cosine computes the cosine similarity between u and v. A zero-norm vector
// yields 0 with ok=true. Mismatched dimensions yield 0 with ok=false so the
// caller can log the condition; it is never fatal.
func Cosine(u, v []float32) (float64, bool) {
	if len(u) != len(v) {
		return 0, false
	}

	var dot, normU, normV float64
	for i := range u {
		dot += float64(u[i]) * float64(v[i])
		normU += float64(u[i]) * float64(u[i])
		normV += float64(v[i]) * float64(v[i])
	}
	if normU == 0 || normV == 0 {
		return 0, true
	}
	return dot / (math.Sqrt(normU) * math.Sqrt(normV)), true
}

// DynamicWeights derives modality weights from what the two items actually
// carry:
//   - base: image 0.4, each text channel 0.3
//   - both items have an image: image 0.5, each text 0.25
//   - neither has an image: image 0, text channels 0.5 each
//   - if both CLIP-text vectors agree strongly (> 0.8 cosine), up to 0.2 is
//     shifted from image to the text channels
//
// The returned weights cover all modalities; HybridSimilarity renormalizes
// over the modalities the pair actually shares.
func DynamicWeights(a, b *store.Embeddings) map[store.Modality]float64 {
	textClipShared := a.Has(store.ModalityTextClip) && b.Has(store.ModalityTextClip)
	textClipSim := 0.0
	if textClipShared {
		if sim, ok := Cosine(a.TextClip, b.TextClip); ok {
			textClipSim = sim
		}
	}
	return deriveWeights(
		a.Has(store.ModalityImage) && b.Has(store.ModalityImage),
		a.Has(store.ModalityImage) || b.Has(store.ModalityImage),
		textClipShared, textClipSim,
	)
}

// deriveWeights is the single weighting policy shared by HybridSimilarity
// and Index.Query; the index precomputes the text agreement score from its
// batched dot products instead of calling Cosine per pair.
func deriveWeights(imageBoth, imageEither, textClipShared bool, textClipSim float64) map[store.Modality]float64 {
	weights := map[store.Modality]float64{
		store.ModalityImage:        baseImageWeight,
		store.ModalityTextClip:     baseTextWeight,
		store.ModalityTextSentence: baseTextWeight,
	}

	switch {
	case imageBoth:
		weights[store.ModalityImage] = 0.5
		weights[store.ModalityTextClip] = 0.25
		weights[store.ModalityTextSentence] = 0.25
	case !imageEither:
		weights[store.ModalityImage] = 0
		weights[store.ModalityTextClip] = 0.5
		weights[store.ModalityTextSentence] = 0.5
	}

	if textClipShared && textClipSim > textAgreementThreshold {
		shift := math.Min(0.2, weights[store.ModalityImage])
		weights[store.ModalityImage] -= shift
		weights[store.ModalityTextClip] += shift / 2
		weights[store.ModalityTextSentence] += shift / 2
	}

	return weights
}

// HybridScore is the result of one hybrid similarity computation.
type HybridScore struct {
	Total      float64
	Components map[store.Modality]float64
	Weights    map[store.Modality]float64
}

// HybridSimilarity combines per-modality cosine similarities into one scalar
// using weights renormalized over the modalities both items carry. Pass nil
// weights to derive them with DynamicWeights. If the items share no modality
// the total is 0 and the component map is empty.
func HybridSimilarity(a, b *store.Embeddings, weights map[store.Modality]float64) HybridScore {
	if weights == nil {
		weights = DynamicWeights(a, b)
	}

	components := map[store.Modality]float64{}
	var usedWeight float64
	for _, m := range store.Modalities {
		if !a.Has(m) || !b.Has(m) {
			continue
		}
		sim, ok := Cosine(a.ByModality(m), b.ByModality(m))
		if !ok {
			// Dimension mismatch: scored 0, still counted as a shared
			// channel so the defect is visible in the total.
			sim = 0
		}
		components[m] = sim
		usedWeight += weights[m]
	}

	score := HybridScore{Components: components, Weights: map[store.Modality]float64{}}
	if len(components) == 0 || usedWeight == 0 {
		return score
	}

	for m, sim := range components {
		normalized := weights[m] / usedWeight
		score.Weights[m] = normalized
		score.Total += sim * normalized
	}
	// Clamp float drift so the total stays in [0,1] for unit vectors.
	if score.Total > 1 {
		score.Total = 1
	}
	if score.Total < 0 {
		score.Total = 0
	}
	return score
}

// Candidate is one entry of the pool RankCandidates scores a query against.
type Candidate struct {
	ID         string
	Embeddings *store.Embeddings
}

// Match is a ranked match produced by RankCandidates or Index.Query.
type Match struct {
	ItemID     string                     `json:"item_id"`
	Score      float64                    `json:"score"`
	Components map[store.Modality]float64 `json:"components"`
	MatchType  string                     `json:"match_type"`
}

// RankCandidates scores every candidate against the query, keeps those at or
// above threshold, and returns at most maxResults ordered by score descending
// with candidate id as the deterministic tie-break.
func RankCandidates(query *store.Embeddings, candidates []Candidate, threshold float64, maxResults int) []Match {
	matches := []Match{}
	for _, c := range candidates {
		score := HybridSimilarity(query, c.Embeddings, nil)
		if score.Total < threshold {
			continue
		}
		matches = append(matches, Match{
			ItemID:     c.ID,
			Score:      score.Total,
			Components: score.Components,
			MatchType:  classifyMatch(score.Components),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ItemID < matches[j].ItemID
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// classifyMatch labels a match "hybrid" when more than one modality
// contributed, otherwise with the single contributing modality.
func classifyMatch(components map[store.Modality]float64) string {
	if len(components) > 1 {
		return "hybrid"
	}
	for m := range components {
		return string(m)
	}
	return "none"
}

// Confidence buckets for the pairwise similarity endpoint.
const (
	ConfidenceVeryHigh = "very_high"
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
	ConfidenceLow      = "low"
)

// ConfidenceBucket maps a total similarity score to a discrete label.
func ConfidenceBucket(score float64) string {
	switch {
	case score >= 0.95:
		return ConfidenceVeryHigh
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
