package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"geoindex/internal/config"
	"geoindex/internal/domain/entities"
	"geoindex/internal/geo"
	"geoindex/internal/logging"
	"geoindex/internal/repository"
	"geoindex/internal/repository/memory"
)

// Outcome is what Reindex did with one document.
type Outcome string

const (
	// OutcomeNoLocation means the document has no location; nothing written.
	OutcomeNoLocation Outcome = "no_location"
	// OutcomeUpdated means the index key was missing or stale and was written.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUnchanged means the stored key already matches the location.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSkipped means the location was malformed; nothing written.
	OutcomeSkipped Outcome = "skipped"
)

// ReindexResult reports one Reindex call. Reason is set for OutcomeSkipped and
// wraps ErrMaintenanceSkipped.
type ReindexResult struct {
	DocumentID string  `json:"id"`
	Outcome    Outcome `json:"outcome"`
	IndexKey   string  `json:"index_key,omitempty"`
	Reason     error   `json:"-"`
}

// ReindexSummary counts the outcomes of a collection backfill.
type ReindexSummary struct {
	Collection string `json:"collection"`
	Total      int    `json:"total"`
	Updated    int    `json:"updated"`
	Unchanged  int    `json:"unchanged"`
	NoLocation int    `json:"no_location"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// IndexMaintainer keeps each document's index key in step with its location
// field. It is the only writer of that field.
type IndexMaintainer struct {
	store  repository.DocumentStore
	geo    config.GeoConfig
	locks  *memory.LockManager
	logger *slog.Logger
}

// NewIndexMaintainer creates a maintainer using cfg.Geo for field names and
// per-collection index precision.
func NewIndexMaintainer(store repository.DocumentStore, cfg *config.Config, logger *slog.Logger) *IndexMaintainer {
	return &IndexMaintainer{
		store:  store,
		geo:    cfg.Geo,
		locks:  memory.NewLockManager(),
		logger: logging.OrDiscard(logger),
	}
}

// Guard runs fn while holding the lock of one document. Callers wrap a write
// and the Reindex that follows it in Guard so that another writer of the same
// document cannot land in between and leave a stale key behind.
func (m *IndexMaintainer) Guard(ctx context.Context, collection, id string, fn func() error) error {
	release, err := m.locks.Acquire(ctx, collection+"/"+id)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// IndexField is the name of the field holding the index key.
func (m *IndexMaintainer) IndexField() string {
	return m.geo.IndexField
}

// Reindex brings doc's index key up to date. When a write happens doc is
// updated in place, so calling Reindex again with the same document is a
// no-op. A malformed location is logged and reported as OutcomeSkipped with a
// nil error; only a failed store write is returned as an error.
func (m *IndexMaintainer) Reindex(ctx context.Context, collection string, doc *entities.Document) (ReindexResult, error) {
	res := ReindexResult{DocumentID: doc.ID}

	loc, err := geo.NormalizeLocation(doc.Fields[m.geo.LocationField])
	if errors.Is(err, geo.ErrNoLocation) {
		res.Outcome = OutcomeNoLocation
		return res, nil
	}
	if err == nil {
		res.IndexKey, err = geo.EncodeLocation(loc, m.geo.PrecisionFor(collection))
	}
	if err != nil {
		res.Outcome = OutcomeSkipped
		res.Reason = fmt.Errorf("%w: %w", ErrMaintenanceSkipped, err)
		m.logger.Warn("index maintenance skipped",
			"collection", collection, "doc_id", doc.ID, "err", res.Reason)
		return res, nil
	}

	if current, ok := doc.StringField(m.geo.IndexField); ok && current == res.IndexKey {
		res.Outcome = OutcomeUnchanged
		return res, nil
	}

	if err := m.store.Update(ctx, collection, doc.ID, map[string]any{m.geo.IndexField: res.IndexKey}); err != nil {
		return res, fmt.Errorf("write index key for %s/%s: %w", collection, doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = make(map[string]any)
	}
	doc.Fields[m.geo.IndexField] = res.IndexKey
	res.Outcome = OutcomeUpdated

	m.logger.Debug("index key written",
		"collection", collection, "doc_id", doc.ID, "key", res.IndexKey)
	return res, nil
}

// ReindexByID loads a document and reindexes it.
func (m *IndexMaintainer) ReindexByID(ctx context.Context, collection, id string) (ReindexResult, error) {
	doc, err := m.store.Get(ctx, collection, id)
	if err != nil {
		return ReindexResult{DocumentID: id}, err
	}
	return m.Reindex(ctx, collection, doc)
}

// ReindexCollection runs Reindex over every document of a collection, for
// example after changing the index precision. Each document is re-read under
// its lock so a concurrent write is never overwritten with a key computed
// from the listed copy. Documents deleted since the listing are not counted.
// Write failures are counted and the backfill continues; the returned error
// reports how many failed.
func (m *IndexMaintainer) ReindexCollection(ctx context.Context, collection string) (ReindexSummary, error) {
	summary := ReindexSummary{Collection: collection}

	docs, err := m.store.List(ctx, collection)
	if err != nil {
		return summary, fmt.Errorf("list %s: %w", collection, err)
	}

	var firstErr error
	for _, listed := range docs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var res ReindexResult
		err := m.Guard(ctx, collection, listed.ID, func() error {
			var err error
			res, err = m.ReindexByID(ctx, collection, listed.ID)
			return err
		})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		summary.Total++
		if err != nil {
			summary.Failed++
			if firstErr == nil {
				firstErr = err
			}
			m.logger.Error("reindex failed", "collection", collection, "doc_id", listed.ID, "err", err)
			continue
		}
		switch res.Outcome {
		case OutcomeUpdated:
			summary.Updated++
		case OutcomeUnchanged:
			summary.Unchanged++
		case OutcomeNoLocation:
			summary.NoLocation++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}

	m.logger.Info("collection reindexed",
		"collection", collection, "total", summary.Total, "updated", summary.Updated,
		"unchanged", summary.Unchanged, "skipped", summary.Skipped, "failed", summary.Failed)

	if firstErr != nil {
		return summary, fmt.Errorf("%d of %d documents failed to reindex: %w", summary.Failed, summary.Total, firstErr)
	}
	return summary, nil
}
