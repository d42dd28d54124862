package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"geoindex/internal/domain/entities"
	"geoindex/internal/geo"
	"geoindex/internal/logging"
	"geoindex/internal/repository"
)

// DefaultConcurrency is the number of range queries kept in flight.
const DefaultConcurrency = 5

// RangeOutcome is the tagged result of one range query. Err is non-nil (and
// wraps ErrStoreUnavailable) when the query failed, in which case Documents is
// empty. Skipped counts documents dropped for a malformed index key.
type RangeOutcome struct {
	Range     geo.CoverageRange
	Documents []*entities.Document
	Skipped   int
	Err       error
}

// ExecutionResult is the join of every range query of a search.
type ExecutionResult struct {
	Candidates []*entities.Document
	Outcomes   []RangeOutcome
}

// Failed returns the number of ranges whose query failed.
func (r *ExecutionResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// ExecutorOptions tunes the fan-out. QueriesPerSecond 0 disables rate
// limiting; Burst defaults to Concurrency.
type ExecutorOptions struct {
	Concurrency      int
	QueriesPerSecond float64
	Burst            int
}

// RangeQueryExecutor runs one store range query per coverage range.
//
// Go Learning Note — errgroup:
// golang.org/x/sync/errgroup is structured concurrency for Go: every g.Go
// task is joined by g.Wait, and SetLimit turns the group into a bounded
// worker pool. Store failures are not returned from the tasks (that would
// cancel the siblings); they are recorded in the task's own RangeOutcome
// slot. Only cancellation of the caller's context ends the group early.
type RangeQueryExecutor struct {
	store       repository.DocumentStore
	indexField  string
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewRangeQueryExecutor creates an executor querying indexField of store.
func NewRangeQueryExecutor(store repository.DocumentStore, indexField string, opts ExecutorOptions, logger *slog.Logger) *RangeQueryExecutor {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var limiter *rate.Limiter
	if opts.QueriesPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = concurrency
		}
		limiter = rate.NewLimiter(rate.Limit(opts.QueriesPerSecond), burst)
	}

	return &RangeQueryExecutor{
		store:       store,
		indexField:  indexField,
		concurrency: concurrency,
		limiter:     limiter,
		logger:      logging.OrDiscard(logger),
	}
}

// Execute queries every range and returns the union of the candidates. It
// blocks until every query has finished. If ctx is canceled the partial
// results are discarded and ctx's error is returned.
func (e *RangeQueryExecutor) Execute(ctx context.Context, collection string, ranges []geo.CoverageRange) (*ExecutionResult, error) {
	outcomes := make([]RangeOutcome, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, r := range ranges {
		i, r := i, r // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			outcomes[i] = e.fetch(gctx, collection, r)
			// Only cancellation aborts the group.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &ExecutionResult{Outcomes: outcomes}
	for _, o := range outcomes {
		res.Candidates = append(res.Candidates, o.Documents...)
	}
	return res, nil
}

func (e *RangeQueryExecutor) fetch(ctx context.Context, collection string, r geo.CoverageRange) RangeOutcome {
	out := RangeOutcome{Range: r}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			out.Err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			return out
		}
	}

	docs, err := e.store.RangeQuery(ctx, collection, e.indexField, r.StartKey, r.EndKey)
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn("range query failed",
				"collection", collection, "range", r.String(), "err", err)
		}
		return out
	}

	out.Documents = make([]*entities.Document, 0, len(docs))
	for _, doc := range docs {
		key, ok := doc.StringField(e.indexField)
		if !ok {
			out.Skipped++
			e.logger.Warn("skipping document without index key",
				"collection", collection, "doc_id", doc.ID, "err", ErrEncoding)
			continue
		}
		if err := geo.Validate(key); err != nil {
			out.Skipped++
			e.logger.Warn("skipping document with malformed index key",
				"collection", collection, "doc_id", doc.ID, "key", key,
				"err", fmt.Errorf("%w: %w", ErrEncoding, err))
			continue
		}
		out.Documents = append(out.Documents, doc)
	}
	return out
}
