package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"geoindex/internal/config"
	"geoindex/internal/domain/entities"
	"geoindex/internal/repository"
	"geoindex/internal/repository/memory"
)

// Landmarks used across the service tests, with their distance from the
// Colosseum: forum 626 m, trevi 1399 m, pantheon 1574 m, vatican 3439 m,
// ostia 22.3 km, duomo (Milan) 478 km.
var landmarks = map[string]entities.Location{
	"colosseum": {Latitude: 41.8902, Longitude: 12.4922},
	"forum":     {Latitude: 41.8925, Longitude: 12.4853},
	"trevi":     {Latitude: 41.9009, Longitude: 12.4833},
	"pantheon":  {Latitude: 41.8986, Longitude: 12.4769},
	"vatican":   {Latitude: 41.9022, Longitude: 12.4539},
	"ostia":     {Latitude: 41.7557, Longitude: 12.2923},
	"duomo":     {Latitude: 45.4642, Longitude: 9.1900},
}

var colosseum = landmarks["colosseum"]

// countingStore wraps a DocumentStore, counting calls and optionally failing
// range queries.
type countingStore struct {
	repository.DocumentStore

	gets, updates, rangeQueries atomic.Int64

	mu        sync.Mutex
	failRange func(start, end string) bool
	block     bool
}

var errBoom = errors.New("boom")

func (s *countingStore) Get(ctx context.Context, coll, id string) (*entities.Document, error) {
	s.gets.Add(1)
	return s.DocumentStore.Get(ctx, coll, id)
}

func (s *countingStore) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	s.updates.Add(1)
	return s.DocumentStore.Update(ctx, coll, id, fields)
}

func (s *countingStore) RangeQuery(ctx context.Context, coll, field, start, end string) ([]*entities.Document, error) {
	s.rangeQueries.Add(1)
	s.mu.Lock()
	fail, block := s.failRange, s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail != nil && fail(start, end) {
		return nil, errBoom
	}
	return s.DocumentStore.RangeQuery(ctx, coll, field, start, end)
}

func (s *countingStore) failWhen(fn func(start, end string) bool) {
	s.mu.Lock()
	s.failRange = fn
	s.mu.Unlock()
}

// blockUntilDone makes range queries hang until their context ends.
func (s *countingStore) blockUntilDone() {
	s.mu.Lock()
	s.block = true
	s.mu.Unlock()
}

func (s *countingStore) touched() int64 {
	return s.gets.Load() + s.updates.Load() + s.rangeQueries.Load()
}

type fixture struct {
	cfg        *config.Config
	store      *countingStore
	search     *SearchService
	maintainer *IndexMaintainer
}

func newFixture(t testing.TB, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}

	store := &countingStore{DocumentStore: memory.NewDocumentStore(cfg.Geo.IndexField)}
	search, err := NewSearchService(store, cfg, nil)
	if err != nil {
		t.Fatalf("NewSearchService: %v", err)
	}
	return &fixture{
		cfg:        cfg,
		store:      store,
		search:     search,
		maintainer: NewIndexMaintainer(store, cfg, nil),
	}
}

// addEvent stores a document at loc and indexes it.
func (f *fixture) addEvent(t testing.TB, collection, id string, loc entities.Location) {
	t.Helper()
	ctx := context.Background()
	doc := entities.NewDocument(id, map[string]any{
		"name": strings.ToUpper(id[:1]) + id[1:],
		f.cfg.Geo.LocationField: map[string]any{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
		},
	})
	if err := f.store.Set(ctx, collection, doc); err != nil {
		t.Fatalf("Set(%s): %v", id, err)
	}
	res, err := f.maintainer.Reindex(ctx, collection, doc)
	if err != nil {
		t.Fatalf("Reindex(%s): %v", id, err)
	}
	if res.Outcome != OutcomeUpdated {
		t.Fatalf("Reindex(%s) outcome = %s, want %s", id, res.Outcome, OutcomeUpdated)
	}
}

func (f *fixture) addLandmarks(t testing.TB, collection string) {
	t.Helper()
	for id, loc := range landmarks {
		f.addEvent(t, collection, id, loc)
	}
}

func resultIDs(results []entities.RankedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Document.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
