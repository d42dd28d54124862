package services

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"geoindex/internal/config"
	"geoindex/internal/domain/entities"
	"geoindex/internal/geo"
	"geoindex/internal/logging"
	"geoindex/internal/repository"
)

// SearchService answers radius searches: plan coverage ranges, fetch them
// concurrently, then rank by true distance.
type SearchService struct {
	planner  *geo.CoveragePlanner
	executor *RangeQueryExecutor
	ranker   *ResultRanker
	geo      config.GeoConfig
	search   config.SearchConfig
	logger   *slog.Logger
}

// NewSearchService wires the planner, executor and ranker from cfg.
func NewSearchService(store repository.DocumentStore, cfg *config.Config, logger *slog.Logger) (*SearchService, error) {
	logger = logging.OrDiscard(logger)

	planner, err := geo.NewCoveragePlanner(geo.PlannerOptions{
		Table:     cfg.Geo.PrecisionTable,
		MaxRanges: cfg.Geo.MaxRanges,
		Strategy:  cfg.Geo.Strategy,
	}, logger)
	if err != nil {
		return nil, err
	}

	executor := NewRangeQueryExecutor(store, cfg.Geo.IndexField, ExecutorOptions{
		Concurrency:      cfg.Search.Concurrency,
		QueriesPerSecond: cfg.Search.QueriesPerSecond,
		Burst:            cfg.Search.Burst,
	}, logger)

	return &SearchService{
		planner:  planner,
		executor: executor,
		ranker:   NewResultRanker(cfg.Geo.LocationField, logger),
		geo:      cfg.Geo,
		search:   cfg.Search,
		logger:   logger,
	}, nil
}

// SearchByRadius returns the documents of collection within radiusMeters of
// (lat, lng), nearest first. An empty collection means the configured
// default. Invalid input is rejected with a *geo.ValidationError before the
// store is touched; failed range queries only shrink the result.
func (s *SearchService) SearchByRadius(ctx context.Context, lat, lng, radiusMeters float64, collection string) (*entities.SearchResult, error) {
	if err := s.Validate(lat, lng, radiusMeters); err != nil {
		return nil, err
	}
	if collection == "" {
		collection = s.search.DefaultCollection
	}
	center := entities.NewLocation(lat, lng)

	plan, err := s.planner.Plan(center, radiusMeters, s.geo.PrecisionFor(collection))
	if err != nil {
		return nil, err
	}

	if s.search.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.search.Timeout)
		defer cancel()
	}

	start := time.Now()
	exec, err := s.executor.Execute(ctx, collection, plan.Ranges)
	if err != nil {
		return nil, err
	}
	ranked := s.ranker.Rank(center, radiusMeters, exec.Candidates)

	level := slog.LevelInfo
	if exec.Failed() > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "radius search",
		"collection", collection,
		"radius_m", radiusMeters,
		"precision", plan.Precision,
		"strategy", string(plan.Strategy),
		"ranges", len(plan.Ranges),
		"failed_ranges", exec.Failed(),
		"candidates", len(exec.Candidates),
		"results", len(ranked),
		"elapsed", time.Since(start))

	return &entities.SearchResult{
		Events:       ranked,
		TotalEvents:  len(ranked),
		RadiusMeters: radiusMeters,
		Center:       center,
	}, nil
}

// Validate checks a search request without running it.
func (s *SearchService) Validate(lat, lng, radiusMeters float64) error {
	if err := geo.ValidateCoordinate(lat, lng); err != nil {
		return err
	}
	if math.IsNaN(radiusMeters) || radiusMeters <= 0 {
		return &geo.ValidationError{
			Field:  "radius",
			Value:  radiusMeters,
			Reason: "radius must be greater than 0",
			Err:    geo.ErrInvalidRadius,
		}
	}
	if radiusMeters > s.search.MaxRadiusMeters {
		return &geo.ValidationError{
			Field:  "radius",
			Value:  radiusMeters,
			Reason: "radius cannot exceed " + formatMeters(s.search.MaxRadiusMeters),
			Err:    geo.ErrRadiusTooLarge,
		}
	}
	return nil
}

func formatMeters(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64) + " meters"
}
