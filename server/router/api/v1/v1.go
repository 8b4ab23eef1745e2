// Package v1 exposes the matching engine over a JSON HTTP API.
package v1

import (
	"context"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/refind-ai/refind/matching"
	"github.com/refind-ai/refind/store"
)

// MatchEngine is the slice of the matching coordinator the API consumes.
type MatchEngine interface {
	InstantMatch(ctx context.Context, req *matching.InstantMatchRequest) (*matching.InstantMatchResult, error)
	Similarity(ctx context.Context, itemAID string, collA store.Collection, itemBID string, collB store.Collection) (*matching.SimilarityResult, error)
}

// SweepRunner runs one background matching sweep. A nil threshold takes the
// sweeper's configured value.
type SweepRunner interface {
	Run(ctx context.Context, limit int, threshold *float64) (*matching.SweepSummary, error)
}

// APIV1Service wires the engine into HTTP routes.
type APIV1Service struct {
	engine  MatchEngine
	sweeper SweepRunner
	store   *store.Store

	// The engine tolerates a sweep running alongside instant matches but
	// not alongside another sweep; serialize at the transport edge.
	sweepMu sync.Mutex
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(engine MatchEngine, sweeper SweepRunner, st *store.Store) *APIV1Service {
	return &APIV1Service{
		engine:  engine,
		sweeper: sweeper,
		store:   st,
	}
}

// RegisterRoutes attaches all v1 routes to the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/match/instant", s.instantMatch)
	g.POST("/match/background", s.backgroundMatch)
	g.POST("/match/similarity", s.similarity)
	g.GET("/match/stats", s.matchStats)
}
