package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/refind-ai/refind/matching"
	"github.com/refind-ai/refind/store"
)

// Bounds for caller-supplied knobs.
const (
	maxResultsCap = 100
	sweepLimitCap = 500
)

type instantMatchRequest struct {
	ItemID      string   `json:"item_id"`
	ItemName    string   `json:"item_name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	ImageURL    string   `json:"image_url"`
	Collection  string   `json:"collection"`
	Threshold   *float64 `json:"threshold"`
	MaxResults  *int     `json:"max_results"`
}

func (s *APIV1Service) instantMatch(c echo.Context) error {
	var req instantMatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.ItemID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item_id is required")
	}
	if req.ItemName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item_name is required")
	}
	collection := store.Collection(req.Collection)
	if !collection.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "collection must be lost_items or found_items")
	}

	// A missing threshold stays nil so the engine applies its configured
	// default; an explicit 0.0 passes through unchanged.
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return echo.NewHTTPError(http.StatusBadRequest, "threshold must be in [0,1]")
	}
	maxResults := 0
	if req.MaxResults != nil {
		if *req.MaxResults < 1 || *req.MaxResults > maxResultsCap {
			return echo.NewHTTPError(http.StatusBadRequest, "max_results must be in [1,100]")
		}
		maxResults = *req.MaxResults
	}

	result, err := s.engine.InstantMatch(c.Request().Context(), &matching.InstantMatchRequest{
		ItemID:      req.ItemID,
		Name:        req.ItemName,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Collection:  collection,
		Threshold:   req.Threshold,
		MaxResults:  maxResults,
	})
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type backgroundMatchRequest struct {
	Limit     *int     `json:"limit"`
	Threshold *float64 `json:"threshold"`
}

func (s *APIV1Service) backgroundMatch(c echo.Context) error {
	var req backgroundMatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	// Zero limit and nil threshold defer to the sweeper's configured values.
	limit := 0
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > sweepLimitCap {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be in [1,500]")
		}
		limit = *req.Limit
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return echo.NewHTTPError(http.StatusBadRequest, "threshold must be in [0,1]")
	}

	if !s.sweepMu.TryLock() {
		return echo.NewHTTPError(http.StatusConflict, "a sweep is already running")
	}
	defer s.sweepMu.Unlock()

	summary, err := s.sweeper.Run(c.Request().Context(), limit, req.Threshold)
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type similarityRequest struct {
	Item1ID     string `json:"item1_id"`
	Item2ID     string `json:"item2_id"`
	Collection1 string `json:"collection1"`
	Collection2 string `json:"collection2"`
}

func (s *APIV1Service) similarity(c echo.Context) error {
	var req similarityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Item1ID == "" || req.Item2ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item1_id and item2_id are required")
	}
	coll1, coll2 := store.Collection(req.Collection1), store.Collection(req.Collection2)
	if !coll1.Valid() || !coll2.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "collection must be lost_items or found_items")
	}

	result, err := s.engine.Similarity(c.Request().Context(), req.Item1ID, coll1, req.Item2ID, coll2)
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type matchStatsResponse struct {
	TotalRecentMatches int            `json:"total_recent_matches"`
	MatchTypes         map[string]int `json:"match_types"`
	ScoreDistribution  map[string]int `json:"score_distribution"`
	AverageScore       float64        `json:"average_score"`
	BySource           map[string]int `json:"by_source"`
}

// matchStats aggregates over the most recent match records.
func (s *APIV1Service) matchStats(c echo.Context) error {
	matches, err := s.store.ListRecentMatches(c.Request().Context(), 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "match store unavailable")
	}

	resp := matchStatsResponse{
		TotalRecentMatches: len(matches),
		MatchTypes:         map[string]int{},
		ScoreDistribution:  map[string]int{"high": 0, "medium": 0, "low": 0},
		BySource:           map[string]int{},
	}
	var sum float64
	for _, m := range matches {
		resp.MatchTypes[m.MatchType]++
		resp.BySource[m.MatchSource]++
		sum += m.Score
		switch {
		case m.Score > 0.8:
			resp.ScoreDistribution["high"]++
		case m.Score >= 0.6:
			resp.ScoreDistribution["medium"]++
		default:
			resp.ScoreDistribution["low"]++
		}
	}
	if len(matches) > 0 {
		resp.AverageScore = sum / float64(len(matches))
	}
	return c.JSON(http.StatusOK, resp)
}

// mapEngineError translates the engine error taxonomy into HTTP status
// codes. Anything unrecognized is a 500 with a generic message; details stay
// in the logs.
func mapEngineError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, matching.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, matching.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, matching.ErrModelUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "embedding model unavailable")
	case errors.Is(err, matching.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "backing store unavailable")
	case errors.Is(err, matching.ErrEmbeddingGenerationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "embedding generation failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
