package services

import (
	"log/slog"
	"sort"

	"geoindex/internal/domain/entities"
	"geoindex/internal/geo"
	"geoindex/internal/logging"
)

// ResultRanker turns range-query candidates into search hits. Geohash cells
// only approximate the circle, so every candidate is checked against its true
// great-circle distance here.
type ResultRanker struct {
	locationField string
	logger        *slog.Logger
}

// NewResultRanker creates a ranker reading locations from locationField.
func NewResultRanker(locationField string, logger *slog.Logger) *ResultRanker {
	return &ResultRanker{
		locationField: locationField,
		logger:        logging.OrDiscard(logger),
	}
}

// Rank drops candidates without a usable location or farther than
// radiusMeters from center, then sorts the rest nearest first. Equal
// distances are ordered by document id so results are deterministic.
//
// Go Learning Note — sort.Slice:
// sort.Slice sorts a slice in-place using a provided less function. It is not
// stable, which is why the less function breaks distance ties itself instead
// of relying on input order (the order ranges finished in is random).
func (r *ResultRanker) Rank(center entities.Location, radiusMeters float64, candidates []*entities.Document) []entities.RankedResult {
	results := make([]entities.RankedResult, 0, len(candidates))

	for _, doc := range candidates {
		loc, err := geo.NormalizeLocation(doc.Fields[r.locationField])
		if err != nil {
			r.logger.Debug("dropping candidate without usable location",
				"doc_id", doc.ID, "err", err)
			continue
		}

		d := geo.Distance(center, loc)
		if d > radiusMeters {
			continue
		}
		results = append(results, entities.RankedResult{Document: doc, DistanceMeters: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	return results
}
