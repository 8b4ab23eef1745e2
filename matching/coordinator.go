package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	aicache "github.com/refind-ai/refind/ai/cache"
	"github.com/refind-ai/refind/internal/metrics"
	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

// Matching defaults shared by the coordinator and the request surface.
const (
	DefaultThreshold  = 0.75
	DefaultMaxResults = 10
	DefaultResultTTL  = 30 * time.Minute

	// Matches at or above this score are persisted to the match store.
	persistScoreFloor = 0.8
	// Any match above this score flags the result as high similarity.
	highSimilarityFloor = 0.85
)

// EmbeddingGenerator is the slice of the external embedding generator the
// engine consumes: one unit-norm vector per (modality, payload) request,
// plus a readiness check for the health endpoint.
type EmbeddingGenerator interface {
	Generate(ctx context.Context, modality store.Modality, payload string) ([]float32, error)
	Ready(ctx context.Context) error
}

// ResultCache is the key-value store with TTL the coordinator caches match
// results in. Implementations must treat a missing key as (value, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Coordinator orchestrates a single item's end-to-end instant match:
// embeddings (cache or generator), persistence, index query, ranking,
// significant-match persistence, and result caching.
type Coordinator struct {
	store     *store.Store
	generator EmbeddingGenerator
	embCache  *aicache.EmbeddingCache
	results   ResultCache
	threshold float64
	resultTTL time.Duration
	logger    *slog.Logger
}

// NewCoordinator creates a matching coordinator. results may be nil, in
// which case result caching is disabled and every request recomputes.
// Tuning knobs come from the profile; a nil profile takes the defaults.
func NewCoordinator(st *store.Store, generator EmbeddingGenerator, embCache *aicache.EmbeddingCache, results ResultCache, p *profile.Profile) *Coordinator {
	threshold := DefaultThreshold
	resultTTL := DefaultResultTTL
	if p != nil {
		if p.MatchThreshold > 0 {
			threshold = p.MatchThreshold
		}
		if p.MatchResultTTL > 0 {
			resultTTL = p.MatchResultTTL
		}
	}
	return &Coordinator{
		store:     st,
		generator: generator,
		embCache:  embCache,
		results:   results,
		threshold: threshold,
		resultTTL: resultTTL,
		logger:    slog.Default().With("component", "matching"),
	}
}

// InstantMatchRequest describes one item to match against the opposite
// collection. A nil Threshold takes the coordinator's configured value;
// an explicit 0.0 is honored and keeps every candidate. MaxResults of
// zero takes the default.
type InstantMatchRequest struct {
	ItemID      string
	Name        string
	Description string
	Category    string
	ImageURL    string
	Collection  store.Collection
	Threshold   *float64
	MaxResults  int
}

// InstantMatchResult is the outcome of one instant-match request.
type InstantMatchResult struct {
	ItemID              string           `json:"item_id"`
	Matches             []Match          `json:"matches"`
	TotalMatches        int              `json:"total_matches"`
	HasHighSimilarity   bool             `json:"has_high_similarity"`
	EmbeddingsGenerated []store.Modality `json:"embeddings_generated"`
	SearchCollection    store.Collection `json:"search_collection"`
	ThresholdUsed       float64          `json:"threshold_used"`
	Cached              bool             `json:"cached,omitempty"`
}

// InstantMatch runs the full matching flow for one item. Single-modality
// embedding failures are tolerated; a cached unexpired result short-circuits
// everything including store writes.
func (c *Coordinator) InstantMatch(ctx context.Context, req *InstantMatchRequest) (*InstantMatchResult, error) {
	start := time.Now()
	defer func() {
		metrics.InstantMatchDuration.Observe(time.Since(start).Seconds())
	}()

	if req.ItemID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "item id required")
	}
	if !req.Collection.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown collection %q", req.Collection)
	}
	threshold := c.threshold
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold > 1 {
			return nil, errors.Wrapf(ErrInvalidArgument, "threshold must be in [0,1]: %f", *req.Threshold)
		}
		threshold = *req.Threshold
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}
	if c.generator == nil {
		return nil, errors.Wrap(ErrModelUnavailable, "no embedding generator configured")
	}

	cacheKey := resultCacheKey(req.Collection, req.ItemID)
	if cached := c.cachedResult(ctx, cacheKey); cached != nil {
		metrics.InstantMatchTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	embeddings, generated, err := generateItemEmbeddings(ctx, c.generator, c.embCache, c.logger,
		req.ItemID, req.Name, req.Description, req.ImageURL)
	if err != nil {
		metrics.InstantMatchTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	item := &store.Item{
		ID:          req.ItemID,
		Collection:  req.Collection,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Status:      store.ItemStatusActive,
		Embeddings:  *embeddings,
		ProcessedTs: time.Now().Unix(),
	}
	if _, err := c.store.UpsertItem(ctx, item); err != nil {
		metrics.InstantMatchTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(ErrStoreUnavailable, "persist item %s: %v", req.ItemID, err)
	}

	searchCollection := req.Collection.Opposite()
	snapshot, err := c.store.ListItems(ctx, &store.FindItem{Collection: searchCollection})
	if err != nil {
		metrics.InstantMatchTotal.WithLabelValues("error").Inc()
		return nil, errors.Wrapf(ErrStoreUnavailable, "snapshot %s: %v", searchCollection, err)
	}

	index := BuildIndex(snapshot, req.ItemID)
	matches := index.Query(embeddings, threshold, req.MaxResults)

	c.persistSignificantMatches(ctx, req, searchCollection, matches)

	result := &InstantMatchResult{
		ItemID:              req.ItemID,
		Matches:             matches,
		TotalMatches:        len(matches),
		HasHighSimilarity:   hasHighSimilarity(matches),
		EmbeddingsGenerated: generated,
		SearchCollection:    searchCollection,
		ThresholdUsed:       threshold,
	}
	c.cacheResult(ctx, cacheKey, result)

	metrics.InstantMatchTotal.WithLabelValues("ok").Inc()
	c.logger.Info("instant match completed",
		"item", req.ItemID, "collection", req.Collection,
		"matches", len(matches), "modalities", len(generated))
	return result, nil
}

// SimilarityResult is the outcome of a pairwise similarity computation.
type SimilarityResult struct {
	ItemAID     string                     `json:"item_a"`
	ItemBID     string                     `json:"item_b"`
	PerModality map[store.Modality]float64 `json:"per_modality"`
	Total       float64                    `json:"total"`
	Confidence  string                     `json:"confidence"`
}

// Similarity computes the hybrid similarity between two stored items.
func (c *Coordinator) Similarity(ctx context.Context, itemAID string, collA store.Collection, itemBID string, collB store.Collection) (*SimilarityResult, error) {
	if !collA.Valid() || !collB.Valid() {
		return nil, errors.Wrap(ErrInvalidArgument, "unknown collection")
	}

	itemA, err := c.store.GetItem(ctx, collA, itemAID)
	if err != nil {
		return nil, errors.Wrapf(ErrStoreUnavailable, "get item %s: %v", itemAID, err)
	}
	if itemA == nil {
		return nil, errors.Wrapf(ErrNotFound, "item %s in %s", itemAID, collA)
	}
	itemB, err := c.store.GetItem(ctx, collB, itemBID)
	if err != nil {
		return nil, errors.Wrapf(ErrStoreUnavailable, "get item %s: %v", itemBID, err)
	}
	if itemB == nil {
		return nil, errors.Wrapf(ErrNotFound, "item %s in %s", itemBID, collB)
	}

	score := HybridSimilarity(&itemA.Embeddings, &itemB.Embeddings, nil)
	return &SimilarityResult{
		ItemAID:     itemAID,
		ItemBID:     itemBID,
		PerModality: score.Components,
		Total:       score.Total,
		Confidence:  ConfidenceBucket(score.Total),
	}, nil
}

// Ready reports whether the engine's collaborators are reachable.
func (c *Coordinator) Ready(ctx context.Context) error {
	if c.generator == nil {
		return ErrModelUnavailable
	}
	if err := c.store.Ping(ctx); err != nil {
		return errors.Wrapf(ErrStoreUnavailable, "item store: %v", err)
	}
	if err := c.generator.Ready(ctx); err != nil {
		return errors.Wrapf(ErrModelUnavailable, "embedding generator: %v", err)
	}
	return nil
}

func (c *Coordinator) cachedResult(ctx context.Context, key string) *InstantMatchResult {
	if c.results == nil {
		return nil
	}
	payload, found, err := c.results.Get(ctx, key)
	if err != nil {
		// Cache store trouble degrades to a miss; matching still works.
		c.logger.Warn("result cache get failed", "key", key, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var result InstantMatchResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		c.logger.Warn("discarding malformed cached result", "key", key, "error", err)
		return nil
	}
	result.Cached = true
	return &result
}

func (c *Coordinator) cacheResult(ctx context.Context, key string, result *InstantMatchResult) {
	if c.results == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("marshal result for cache failed", "key", key, "error", err)
		return
	}
	if err := c.results.SetWithTTL(ctx, key, string(payload), c.resultTTL); err != nil {
		c.logger.Warn("result cache set failed", "key", key, "error", err)
	}
}

// persistSignificantMatches writes matches at or above the persistence floor
// to the match store. Fire-and-forget: failures are logged, never surfaced.
func (c *Coordinator) persistSignificantMatches(ctx context.Context, req *InstantMatchRequest, targetCollection store.Collection, matches []Match) {
	significant := []Match{}
	for _, m := range matches {
		if m.Score >= persistScoreFloor {
			significant = append(significant, m)
		}
	}
	if len(significant) == 0 {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		for _, m := range significant {
			record := &store.MatchResult{
				ID:               uuid.NewString(),
				SourceItemID:     req.ItemID,
				SourceCollection: req.Collection,
				TargetItemID:     m.ItemID,
				TargetCollection: targetCollection,
				Score:            m.Score,
				Components:       m.Components,
				MatchType:        m.MatchType,
				MatchSource:      store.MatchSourceInstant,
				CreatedTs:        time.Now().Unix(),
			}
			if _, err := c.store.CreateMatch(bgCtx, record); err != nil {
				c.logger.Warn("persist match failed",
					"source", req.ItemID, "target", m.ItemID, "error", err)
				continue
			}
			metrics.MatchesPersisted.WithLabelValues(store.MatchSourceInstant).Inc()
		}
	}()
}

// generateItemEmbeddings obtains one embedding per requested modality,
// consulting the embedding cache first. Text modalities are requested when
// the item has any name or description, the image modality when it has an
// image URL. A single failing modality is logged and skipped; if every
// requested modality fails the whole operation fails.
func generateItemEmbeddings(ctx context.Context, generator EmbeddingGenerator, embCache *aicache.EmbeddingCache, logger *slog.Logger, itemID, name, description, imageURL string) (*store.Embeddings, []store.Modality, error) {
	type request struct {
		modality store.Modality
		payload  string
	}
	requests := []request{}
	if text := strings.TrimSpace(name + " " + description); text != "" {
		requests = append(requests,
			request{store.ModalityTextClip, text},
			request{store.ModalityTextSentence, text})
	}
	if imageURL != "" {
		requests = append(requests, request{store.ModalityImage, imageURL})
	}
	if len(requests) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidArgument, "nothing to embed: no text and no image")
	}

	embeddings := &store.Embeddings{}
	generated := []store.Modality{}
	for _, r := range requests {
		if embCache != nil {
			if vector, ok := embCache.Get(itemID, r.modality); ok {
				embeddings.SetModality(r.modality, vector)
				generated = append(generated, r.modality)
				continue
			}
		}
		vector, err := generator.Generate(ctx, r.modality, r.payload)
		if err != nil {
			// Partial modality failure: continue with the reduced set.
			logger.Warn("embedding generation failed for modality",
				"item", itemID, "modality", r.modality, "error", err)
			continue
		}
		embeddings.SetModality(r.modality, vector)
		generated = append(generated, r.modality)
		if embCache != nil {
			embCache.Set(itemID, r.modality, vector)
		}
	}

	if !embeddings.Any() {
		return nil, nil, errors.Wrapf(ErrEmbeddingGenerationFailed, "item %s", itemID)
	}
	return embeddings, generated, nil
}

func hasHighSimilarity(matches []Match) bool {
	for _, m := range matches {
		if m.Score > highSimilarityFloor {
			return true
		}
	}
	return false
}

func resultCacheKey(collection store.Collection, itemID string) string {
	return fmt.Sprintf("match:%s:%s", collection, itemID)
}
