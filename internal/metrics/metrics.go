// Package metrics exposes prometheus collectors for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InstantMatchTotal counts instant-match requests by outcome
	// ("ok", "cached", "error").
	InstantMatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refind",
		Name:      "instant_match_total",
		Help:      "Instant match requests by outcome.",
	}, []string{"outcome"})

	// InstantMatchDuration observes end-to-end instant-match latency.
	InstantMatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "refind",
		Name:      "instant_match_duration_seconds",
		Help:      "Instant match latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// EmbeddingsGenerated counts generator calls by modality and outcome.
	EmbeddingsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refind",
		Name:      "embeddings_generated_total",
		Help:      "Embedding generator calls by modality and outcome.",
	}, []string{"modality", "outcome"})

	// EmbeddingCacheHits counts in-memory embedding cache hits and misses.
	EmbeddingCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refind",
		Name:      "embedding_cache_lookups_total",
		Help:      "Embedding cache lookups by result.",
	}, []string{"result"})

	// MatchesPersisted counts match records written to the match store.
	MatchesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refind",
		Name:      "matches_persisted_total",
		Help:      "Match results persisted by source.",
	}, []string{"source"})

	// SweepItemsProcessed counts items handled by the background sweep.
	SweepItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "refind",
		Name:      "sweep_items_processed_total",
		Help:      "Items processed by the background sweep, by collection.",
	}, []string{"collection"})
)
