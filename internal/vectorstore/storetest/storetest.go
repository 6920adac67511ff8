// Package storetest holds a behavioural suite every vectorstore.Storage must pass.
package storetest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// SampleIndex builds a small valid index whose vectors exercise values that
// lose precision under naive float formatting.
func SampleIndex(docID string, n int) *domain.Index {
	idx := &domain.Index{
		DocumentID: docID,
		Embedder:   "fake",
		Dimension:  3,
		BuiltAt:    time.Date(2026, 10, 17, 9, 30, 15, 123456789, time.UTC),
	}
	for i := 0; i < n; i++ {
		c := domain.Chunk{
			ID:         domain.ChunkID(docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Text:       "chunk text ünïcode " + string(rune('a'+i)),
			Start:      i * 6,
			End:        i*6 + 10,
		}
		idx.Chunks = append(idx.Chunks, c)
		idx.Vectors = append(idx.Vectors, domain.EmbeddingVector{
			ChunkID: c.ID,
			Values:  []float64{1.0 / 3.0 * float64(i+1), -math.Pi / float64(i+1), 1e-300},
		})
	}
	return idx
}

// AssertSameIndex compares two indexes field by field.
func AssertSameIndex(t *testing.T, want, got *domain.Index) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, want.BuiltAt.Equal(got.BuiltAt), "built_at %v != %v", want.BuiltAt, got.BuiltAt)
	assert.Equal(t, want.DocumentID, got.DocumentID)
	assert.Equal(t, want.Embedder, got.Embedder)
	assert.Equal(t, want.Dimension, got.Dimension)
	assert.Equal(t, want.Chunks, got.Chunks)
	assert.Equal(t, want.Vectors, got.Vectors)
}

// Run exercises Save, Load and Delete against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) vectorstore.Storage) {
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})

	t.Run("round trip is exact", func(t *testing.T) {
		s := newStore(t)
		want := SampleIndex("report", 4)
		require.NoError(t, s.Save(ctx, "report", want))

		got, err := s.Load(ctx, "report")
		require.NoError(t, err)
		AssertSameIndex(t, want, got)
	})

	t.Run("last build wins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "report", SampleIndex("report", 5)))
		second := SampleIndex("report", 2)
		second.Embedder = "other"
		require.NoError(t, s.Save(ctx, "report", second))

		got, err := s.Load(ctx, "report")
		require.NoError(t, err)
		AssertSameIndex(t, second, got)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "a", SampleIndex("a", 1)))
		require.NoError(t, s.Save(ctx, "b", SampleIndex("b", 3)))

		a, err := s.Load(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, a.Len())
		b, err := s.Load(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 3, b.Len())
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "gone", SampleIndex("gone", 2)))
		require.NoError(t, s.Delete(ctx, "gone"))
		_, err := s.Load(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})

	t.Run("rejects invalid index", func(t *testing.T) {
		s := newStore(t)
		bad := SampleIndex("bad", 2)
		bad.Vectors = bad.Vectors[:1]
		assert.Error(t, s.Save(ctx, "bad", bad))
		_, err := s.Load(ctx, "bad")
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})

	t.Run("loaded index is a copy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, "copy", SampleIndex("copy", 2)))
		first, err := s.Load(ctx, "copy")
		require.NoError(t, err)
		first.Vectors[0].Values[0] = 99
		first.Chunks[0].Text = "mutated"

		second, err := s.Load(ctx, "copy")
		require.NoError(t, err)
		assert.NotEqual(t, 99.0, second.Vectors[0].Values[0])
		assert.NotEqual(t, "mutated", second.Chunks[0].Text)
	})

	t.Run("failed save keeps previous index", func(t *testing.T) {
		s := newStore(t)
		want := SampleIndex("report", 3)
		require.NoError(t, s.Save(ctx, "report", want))

		bad := SampleIndex("report", 5)
		bad.Vectors = bad.Vectors[:4]
		assert.Error(t, s.Save(ctx, "report", bad))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, s.Save(cancelled, "report", SampleIndex("report", 5)))

		got, err := s.Load(ctx, "report")
		require.NoError(t, err)
		AssertSameIndex(t, want, got)
	})

	t.Run("rejects unsafe keys", func(t *testing.T) {
		s := newStore(t)
		for _, key := range []string{"", "..", "../x", "a/b"} {
			assert.Error(t, s.Save(ctx, key, SampleIndex("x", 1)), "save %q", key)
			_, err := s.Load(ctx, key)
			assert.Error(t, err, "load %q", key)
			assert.Error(t, s.Delete(ctx, key), "delete %q", key)
		}
	})
}
