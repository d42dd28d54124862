package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"geoindex/internal/domain/entities"
	"geoindex/internal/repository"
)

// collection holds one collection's documents with a secondary index on the
// configured index field. It maintains two data structures:
//   - docs: id → Document (primary lookup)
//   - byKey: index key → id set (range lookup)
//
// Both must be kept in sync on every write.
type collection struct {
	docs  map[string]*entities.Document
	byKey map[string]map[string]struct{}
}

func newCollection() *collection {
	return &collection{
		docs:  make(map[string]*entities.Document),
		byKey: make(map[string]map[string]struct{}),
	}
}

// DocumentStore is an in-process repository.DocumentStore. Documents are
// copied on the way in and out, so callers never share state with the store.
//
// Go Learning Note — sync.RWMutex:
// Searches fan out several RangeQuery calls at once, and all of them only
// read. RLock lets them run in parallel; writes take the exclusive Lock.
type DocumentStore struct {
	mu          sync.RWMutex
	indexField  string
	collections map[string]*collection
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates an empty store that keeps a secondary index on
// indexField.
func NewDocumentStore(indexField string) *DocumentStore {
	return &DocumentStore{
		indexField:  indexField,
		collections: make(map[string]*collection),
	}
}

func (s *DocumentStore) Get(ctx context.Context, coll, id string) (*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[coll]
	if !ok {
		return nil, repository.ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *DocumentStore) Set(ctx context.Context, coll string, doc *entities.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: missing id", repository.ErrInvalidDocument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[coll]
	if !ok {
		c = newCollection()
		s.collections[coll] = c
	}
	s.put(c, doc.Clone())
	return nil
}

func (s *DocumentStore) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[coll]
	if !ok {
		return repository.ErrNotFound
	}
	existing, ok := c.docs[id]
	if !ok {
		return repository.ErrNotFound
	}

	merged := existing.Clone()
	patch := entities.NewDocument(id, fields).Clone()
	for k, v := range patch.Fields {
		merged.Fields[k] = v
	}
	s.put(c, merged)
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, coll, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[coll]
	if !ok {
		return nil
	}
	if doc, ok := c.docs[id]; ok {
		s.unindex(c, doc)
		delete(c.docs, id)
	}
	return nil
}

// RangeQuery answers from the secondary index when field is the index field
// and falls back to a scan otherwise. Results are ordered by field value, then
// id, which matches what an ordered index in a real database returns.
func (s *DocumentStore) RangeQuery(ctx context.Context, coll, field, start, end string) ([]*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[coll]
	if !ok {
		return nil, nil
	}

	var matches []*entities.Document
	if field == s.indexField {
		for key, ids := range c.byKey {
			if key < start || key >= end {
				continue
			}
			for id := range ids {
				matches = append(matches, c.docs[id].Clone())
			}
		}
	} else {
		for _, doc := range c.docs {
			if v, ok := doc.StringField(field); ok && v >= start && v < end {
				matches = append(matches, doc.Clone())
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		vi, _ := matches[i].StringField(field)
		vj, _ := matches[j].StringField(field)
		if vi != vj {
			return vi < vj
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

func (s *DocumentStore) List(ctx context.Context, coll string) ([]*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[coll]
	if !ok {
		return nil, nil
	}

	// Go Learning Note — make() with Length 0 and Capacity:
	// The final size is known, so the slice is allocated once and append never
	// has to grow it.
	docs := make([]*entities.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Close is a no-op for the in-memory store.
func (s *DocumentStore) Close() error {
	return nil
}

// Len returns the number of documents in a collection.
func (s *DocumentStore) Len(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[coll]; ok {
		return len(c.docs)
	}
	return 0
}

// put stores doc, moving it between index cells when its key changed. Callers
// hold the write lock.
func (s *DocumentStore) put(c *collection, doc *entities.Document) {
	if old, ok := c.docs[doc.ID]; ok {
		s.unindex(c, old)
	}
	c.docs[doc.ID] = doc

	key, ok := doc.StringField(s.indexField)
	if !ok {
		return
	}
	ids, ok := c.byKey[key]
	if !ok {
		ids = make(map[string]struct{})
		c.byKey[key] = ids
	}
	ids[doc.ID] = struct{}{}
}

func (s *DocumentStore) unindex(c *collection, doc *entities.Document) {
	key, ok := doc.StringField(s.indexField)
	if !ok {
		return
	}
	if ids, ok := c.byKey[key]; ok {
		delete(ids, doc.ID)
		if len(ids) == 0 {
			delete(c.byKey, key) // Clean up empty cells.
		}
	}
}
