// Package storetest is the behavioral test suite every repository.DocumentStore
// backend runs from its own package tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoindex/internal/domain/entities"
	"geoindex/internal/repository"
)

// IndexField is the field name the suite expects the store under test to
// index.
const IndexField = "geohash"

// Run exercises newStore against the DocumentStore contract. newStore must
// return an empty store indexing IndexField.
func Run(t *testing.T, newStore func(t *testing.T) repository.DocumentStore) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "events", "nope")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		doc := entities.NewDocument("e1", map[string]any{
			"name":     "Colosseum tour",
			"position": map[string]any{"latitude": 41.8902, "longitude": 12.4922},
			"tags":     []any{"history", "rome"},
		})
		require.NoError(t, s.Set(ctx, "events", doc))

		got, err := s.Get(ctx, "events", "e1")
		require.NoError(t, err)
		assert.Equal(t, "e1", got.ID)
		assert.Equal(t, "Colosseum tour", got.Fields["name"])
		pos, ok := got.Fields["position"].(map[string]any)
		require.True(t, ok, "position should decode as an object, got %T", got.Fields["position"])
		assert.InDelta(t, 41.8902, pos["latitude"], 1e-9)
		assert.Len(t, got.Fields["tags"], 2)
	})

	t.Run("SetRequiresID", func(t *testing.T) {
		s := newStore(t)
		err := s.Set(context.Background(), "events", entities.NewDocument("", nil))
		assert.ErrorIs(t, err, repository.ErrInvalidDocument)
	})

	t.Run("SetReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "events", entities.NewDocument("e1", map[string]any{"a": "1", "b": "2"})))
		require.NoError(t, s.Set(ctx, "events", entities.NewDocument("e1", map[string]any{"a": "3"})))

		got, err := s.Get(ctx, "events", "e1")
		require.NoError(t, err)
		assert.Equal(t, "3", got.Fields["a"])
		_, hasB := got.Fields["b"]
		assert.False(t, hasB)
	})

	t.Run("UpdateMerges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "events", entities.NewDocument("e1", map[string]any{"name": "a", "city": "Rome"})))
		require.NoError(t, s.Update(ctx, "events", "e1", map[string]any{IndexField: "sr2ykk5te0"}))

		got, err := s.Get(ctx, "events", "e1")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Fields["name"])
		assert.Equal(t, "Rome", got.Fields["city"])
		assert.Equal(t, "sr2ykk5te0", got.Fields[IndexField])
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "events", "nope", map[string]any{"x": "y"})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "events", entities.NewDocument("e1", map[string]any{IndexField: "sr2ykk"})))
		require.NoError(t, s.Delete(ctx, "events", "e1"))
		_, err := s.Get(ctx, "events", "e1")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		docs, err := s.RangeQuery(ctx, "events", IndexField, "sr2", "sr2~")
		require.NoError(t, err)
		assert.Empty(t, docs)

		assert.NoError(t, s.Delete(ctx, "events", "e1"), "deleting twice is not an error")
	})

	t.Run("RangeQuery", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		seed := map[string]string{
			"colosseum": "sr2ysch5wg",
			"pantheon":  "sr2yk3yhd8",
			"trevi":     "sr2ykbvw2u",
			"duomo":     "u0nd9hd0k1",
			"nokey":     "",
		}
		for id, key := range seed {
			fields := map[string]any{"name": id}
			if key != "" {
				fields[IndexField] = key
			}
			require.NoError(t, s.Set(ctx, "events", entities.NewDocument(id, fields)))
		}
		require.NoError(t, s.Set(ctx, "other", entities.NewDocument("elsewhere", map[string]any{IndexField: "sr2yk00000"})))

		docs, err := s.RangeQuery(ctx, "events", IndexField, "sr2yk", "sr2yk~")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "pantheon", docs[0].ID)
		assert.Equal(t, "trevi", docs[1].ID)

		docs, err = s.RangeQuery(ctx, "events", IndexField, "sr2y", "sr2y~")
		require.NoError(t, err)
		assert.Len(t, docs, 3)

		// The end key is exclusive.
		docs, err = s.RangeQuery(ctx, "events", IndexField, "sr2yk3yhd8", "sr2ykbvw2u")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "pantheon", docs[0].ID)

		docs, err = s.RangeQuery(ctx, "missing", IndexField, "0", "~")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("RangeQueryFollowsUpdates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "events", entities.NewDocument("e1", map[string]any{IndexField: "sr2ykk"})))
		require.NoError(t, s.Update(ctx, "events", "e1", map[string]any{IndexField: "u0nd9h"}))

		docs, err := s.RangeQuery(ctx, "events", IndexField, "sr2", "sr2~")
		require.NoError(t, err)
		assert.Empty(t, docs)

		docs, err = s.RangeQuery(ctx, "events", IndexField, "u0n", "u0n~")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "e1", docs[0].ID)
	})

	t.Run("ListOrderedByID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Set(ctx, "events", entities.NewDocument(id, nil)))
		}
		docs, err := s.List(ctx, "events")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

		empty, err := s.List(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.RangeQuery(ctx, "events", IndexField, "0", "~")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
