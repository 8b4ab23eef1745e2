package matching

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/refind-ai/refind/internal/metrics"
	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

// Sweep tuning.
const (
	DefaultSweepLimit = 100

	// Candidates are searched with a superset query, then capped before
	// persisting.
	sweepSearchTopK  = 10
	sweepPersistTopK = 5
)

// Sweeper runs the periodic batch-matching pass over both collections. It is
// safe to run concurrently with instant-match calls but callers must ensure
// two sweeps never overlap; the engine provides no mutual exclusion for that.
type Sweeper struct {
	store      *store.Store
	generator  EmbeddingGenerator
	embCache   embeddingMemo
	limit      int
	threshold  float64
	staleAfter time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// embeddingMemo is the slice of the embedding cache the sweep uses.
type embeddingMemo interface {
	Get(itemID string, modality store.Modality) ([]float32, bool)
	Set(itemID string, modality store.Modality, vector []float32)
}

// NewSweeper creates a background sweeper. Tuning knobs come from the
// profile; a nil profile takes the defaults. Pacing bounds the load on the
// generator and the stores by delaying between items; it is a throttle, not
// a correctness requirement.
func NewSweeper(st *store.Store, generator EmbeddingGenerator, embCache embeddingMemo, p *profile.Profile) *Sweeper {
	limit := DefaultSweepLimit
	threshold := DefaultThreshold
	staleAfter := 24 * time.Hour
	pacing := 100 * time.Millisecond
	if p != nil {
		if p.SweepLimit > 0 {
			limit = p.SweepLimit
		}
		if p.MatchThreshold > 0 {
			threshold = p.MatchThreshold
		}
		if p.SweepStaleAfter > 0 {
			staleAfter = p.SweepStaleAfter
		}
		if p.SweepPacing > 0 {
			pacing = p.SweepPacing
		}
	}
	return &Sweeper{
		store:      st,
		generator:  generator,
		embCache:   embCache,
		limit:      limit,
		threshold:  threshold,
		staleAfter: staleAfter,
		limiter:    rate.NewLimiter(rate.Every(pacing), 1),
		logger:     slog.Default().With("component", "sweep"),
	}
}

// SweepSummary reports what one sweep run did.
type SweepSummary struct {
	Processed      int     `json:"processed"`
	NewMatches     int     `json:"new_matches"`
	Threshold      float64 `json:"threshold_used"`
	LostItemCount  int     `json:"total_lost_items"`
	FoundItemCount int     `json:"total_found_items"`
}

// Run executes one sweep: in each collection it selects up to limit/2 active
// items that have no embeddings yet or were last processed longer than
// staleAfter ago, matches each against the opposite collection, persists the
// top results, and marks items that gained matches. A failure on one item is
// logged and the sweep moves on; the run itself only fails when a collection
// cannot be listed at all. A limit of zero and a nil threshold take the
// sweeper's configured values; an explicit 0.0 threshold is honored.
func (s *Sweeper) Run(ctx context.Context, limit int, threshold *float64) (*SweepSummary, error) {
	if limit <= 0 {
		limit = s.limit
	}
	effectiveThreshold := s.threshold
	if threshold != nil {
		if *threshold < 0 || *threshold > 1 {
			return nil, errors.Wrapf(ErrInvalidArgument, "threshold must be in [0,1]: %f", *threshold)
		}
		effectiveThreshold = *threshold
	}

	runID := shortuuid.New()
	logger := s.logger.With("run", runID)
	logger.Info("sweep started", "limit", limit, "threshold", effectiveThreshold)

	summary := &SweepSummary{Threshold: effectiveThreshold}
	perCollection := limit / 2
	if perCollection < 1 {
		perCollection = 1
	}

	for _, collection := range []store.Collection{store.CollectionLost, store.CollectionFound} {
		status := store.ItemStatusActive
		items, err := s.store.ListItems(ctx, &store.FindItem{Collection: collection, Status: &status})
		if err != nil {
			return nil, errors.Wrapf(ErrStoreUnavailable, "list %s: %v", collection, err)
		}

		opposite, err := s.store.ListItems(ctx, &store.FindItem{Collection: collection.Opposite()})
		if err != nil {
			return nil, errors.Wrapf(ErrStoreUnavailable, "snapshot %s: %v", collection.Opposite(), err)
		}
		if collection == store.CollectionLost {
			summary.LostItemCount = len(items)
			summary.FoundItemCount = len(opposite)
		}

		eligible := s.selectEligible(items, perCollection)
		for _, item := range eligible {
			if err := s.limiter.Wait(ctx); err != nil {
				return summary, errors.Wrap(err, "sweep interrupted")
			}
			newMatches, err := s.processItem(ctx, logger, item, opposite, effectiveThreshold)
			if err != nil {
				// A single bad item never aborts the sweep.
				logger.Warn("sweep item failed", "item", item.ID, "collection", collection, "error", err)
				continue
			}
			summary.Processed++
			summary.NewMatches += newMatches
			metrics.SweepItemsProcessed.WithLabelValues(string(collection)).Inc()
		}
	}

	logger.Info("sweep completed",
		"processed", summary.Processed, "new_matches", summary.NewMatches)
	return summary, nil
}

// selectEligible keeps items with no embeddings or a stale processed
// timestamp, up to max.
func (s *Sweeper) selectEligible(items []*store.Item, max int) []*store.Item {
	cutoff := time.Now().Add(-s.staleAfter).Unix()
	eligible := []*store.Item{}
	for _, item := range items {
		if len(eligible) >= max {
			break
		}
		if !item.Embeddings.Any() || item.ProcessedTs < cutoff {
			eligible = append(eligible, item)
		}
	}
	return eligible
}

func (s *Sweeper) processItem(ctx context.Context, logger *slog.Logger, item *store.Item, opposite []*store.Item, threshold float64) (int, error) {
	if !item.Embeddings.Any() {
		embeddings, _, err := generateItemEmbeddings(ctx, s.generator, nil, logger,
			item.ID, item.Name, item.Description, item.ImageURL)
		if err != nil {
			return 0, err
		}
		if s.embCache != nil {
			for _, m := range embeddings.Present() {
				s.embCache.Set(item.ID, m, embeddings.ByModality(m))
			}
		}
		item.Embeddings = *embeddings
		item.ProcessedTs = time.Now().Unix()
		if _, err := s.store.UpsertItem(ctx, item); err != nil {
			return 0, errors.Wrap(err, "persist generated embeddings")
		}
	} else {
		// Items reusing stored embeddings still count as processed, or a
		// stale item with no matches stays eligible on every run.
		item.ProcessedTs = time.Now().Unix()
		if _, err := s.store.UpsertItem(ctx, item); err != nil {
			return 0, errors.Wrap(err, "refresh processed timestamp")
		}
	}

	index := BuildIndex(opposite, item.ID)
	matches := index.Query(&item.Embeddings, threshold, sweepSearchTopK)
	if len(matches) > sweepPersistTopK {
		matches = matches[:sweepPersistTopK]
	}

	persisted := 0
	for _, m := range matches {
		record := &store.MatchResult{
			ID:               uuid.NewString(),
			SourceItemID:     item.ID,
			SourceCollection: item.Collection,
			TargetItemID:     m.ItemID,
			TargetCollection: item.Collection.Opposite(),
			Score:            m.Score,
			Components:       m.Components,
			MatchType:        m.MatchType,
			MatchSource:      store.MatchSourceSweep,
			CreatedTs:        time.Now().Unix(),
		}
		if _, err := s.store.CreateMatch(ctx, record); err != nil {
			logger.Warn("persist sweep match failed", "source", item.ID, "target", m.ItemID, "error", err)
			continue
		}
		persisted++
		metrics.MatchesPersisted.WithLabelValues(store.MatchSourceSweep).Inc()
	}

	if persisted > 0 {
		if err := s.store.UpdateItemStatus(ctx, item.Collection, item.ID, store.ItemStatusHasMatches); err != nil {
			logger.Warn("update item status failed", "item", item.ID, "error", err)
		}
	}
	return persisted, nil
}
