package index

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/fakes"
	"docqa/internal/vectorstore/file"
	"docqa/internal/vectorstore/memory"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func reportChunks(t *testing.T) []domain.Chunk {
	t.Helper()
	text := "Revenue rose sharply. Costs were flat. X is the new product line. " +
		"Revenue from X doubled. Staff numbers grew. The outlook for X is strong."
	chunks, err := chunker.Split(text, 40, 10)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)
	return chunks
}

func newService(emb domain.Embedder) (*Service, *memory.Storage) {
	store := memory.NewStorage()
	return NewService(emb, store, WithClock(func() time.Time { return fixedNow })), store
}

func TestBuild_PersistsAlignedIndex(t *testing.T) {
	emb := fakes.NewEmbedder("revenue", "x", "staff")
	svc, store := newService(emb)
	chunks := reportChunks(t)

	idx, err := svc.Build(context.Background(), "report", chunks)
	require.NoError(t, err)

	assert.Equal(t, "report", idx.DocumentID)
	assert.Equal(t, "fake", idx.Embedder)
	assert.Equal(t, 3, idx.Dimension)
	assert.Equal(t, fixedNow, idx.BuiltAt)
	require.Len(t, idx.Chunks, len(chunks))
	require.Len(t, idx.Vectors, len(chunks))
	require.NoError(t, idx.Validate())

	calls := emb.Calls()
	require.Len(t, calls, len(chunks))
	for i, c := range chunks {
		assert.Equal(t, c.Text, calls[i], "embed order must follow chunk order")
		assert.Equal(t, domain.ChunkID("report", i), idx.Chunks[i].ID)
	}

	stored, err := store.Load(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, idx.Chunks, stored.Chunks)
}

func TestBuild_EmbeddingFailureIsAllOrNothing(t *testing.T) {
	emb := fakes.NewEmbedder("revenue")
	svc, store := newService(emb)
	chunks := reportChunks(t)
	emb.FailOn = chunks[2].Text

	_, err := svc.Build(context.Background(), "report", chunks)
	require.ErrorIs(t, err, domain.ErrEmbeddingService)

	_, err = store.Load(context.Background(), "report")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestBuild_FailureKeepsPreviousIndex(t *testing.T) {
	emb := fakes.NewEmbedder("revenue")
	svc, _ := newService(emb)
	chunks := reportChunks(t)

	first, err := svc.Build(context.Background(), "report", chunks)
	require.NoError(t, err)

	emb.FailOn = "Staff"
	_, err = svc.Build(context.Background(), "report", chunks[:1])
	require.NoError(t, err, "first chunk does not mention staff")

	_, err = svc.Build(context.Background(), "report", chunks)
	require.ErrorIs(t, err, domain.ErrEmbeddingService)

	loaded, err := svc.Load(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len(), "last successful build wins")
	assert.NotEqual(t, first.Len(), loaded.Len())
}

func TestBuild_EmptyChunks(t *testing.T) {
	svc, store := newService(fakes.NewEmbedder("a"))

	_, err := svc.Build(context.Background(), "empty", nil)
	require.ErrorIs(t, err, domain.ErrEmptyInput)

	_, err = store.Load(context.Background(), "empty")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

type ragged struct{ n int }

func (r *ragged) Name() string { return "ragged" }
func (r *ragged) Embed(ctx context.Context, text string) ([]float64, error) {
	r.n++
	return make([]float64, r.n), nil
}

func TestBuild_InconsistentDimension(t *testing.T) {
	svc, _ := newService(&ragged{})
	_, err := svc.Build(context.Background(), "doc", reportChunks(t))
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

// fixedEmbedder returns vectors by text, falling back to def.
type fixedEmbedder struct {
	vectors map[string][]float64
	def     []float64
}

func (f fixedEmbedder) Name() string { return "fixed" }
func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.def, nil
}

func TestBuild_RejectsNonFiniteVectors(t *testing.T) {
	for name, bad := range map[string]float64{"nan": math.NaN(), "inf": math.Inf(1), "-inf": math.Inf(-1)} {
		t.Run(name, func(t *testing.T) {
			emb := fixedEmbedder{
				vectors: map[string][]float64{"b": {bad, 1}},
				def:     []float64{1, 0},
			}
			svc, store := newService(emb)
			chunks := []domain.Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}}

			_, err := svc.Build(context.Background(), "doc", chunks)
			require.ErrorIs(t, err, domain.ErrEmbeddingService)
			_, err = store.Load(context.Background(), "doc")
			assert.ErrorIs(t, err, domain.ErrIndexNotFound)
		})
	}
}

func TestQuery_RejectsNonFiniteQuery(t *testing.T) {
	emb := fixedEmbedder{
		vectors: map[string][]float64{"broken": {math.NaN(), 0}},
		def:     []float64{1, 0},
	}
	svc, _ := newService(emb)
	idx, err := svc.Build(context.Background(), "doc", []domain.Chunk{{Text: "a"}})
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), idx, "broken", 1)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestRank_NaNScoresSortLast(t *testing.T) {
	idx := &domain.Index{DocumentID: "doc", Dimension: 2}
	for i, v := range [][]float64{{1, 0}, {math.NaN(), 1}, {1, 1}, {0, 1}} {
		c := domain.Chunk{ID: domain.ChunkID("doc", i), DocumentID: "doc", Ordinal: i}
		idx.Chunks = append(idx.Chunks, c)
		idx.Vectors = append(idx.Vectors, domain.EmbeddingVector{ChunkID: c.ID, Values: v})
	}

	got := Rank(idx, []float64{1, 0}, 4)
	ordinals := make([]int, len(got))
	for i, r := range got {
		ordinals[i] = r.Chunk.Ordinal
	}
	assert.Equal(t, []int{0, 2, 3, 1}, ordinals)
}

func TestLoad_NotFound(t *testing.T) {
	svc, _ := newService(fakes.NewEmbedder("a"))
	_, err := svc.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestQuery_ReportScenarioIsDeterministic(t *testing.T) {
	svc, _ := newService(fakes.NewEmbedder("revenue", "x", "staff", "outlook"))
	ctx := context.Background()

	idx, err := svc.Build(ctx, "report", reportChunks(t))
	require.NoError(t, err)

	first, err := svc.Query(ctx, idx, "what is X", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.GreaterOrEqual(t, first[0].Score, first[1].Score)

	second, err := svc.Query(ctx, idx, "what is X", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQuery_KExceedsChunksReturnsAllSorted(t *testing.T) {
	svc, _ := newService(fakes.NewEmbedder("alpha", "beta"))
	ctx := context.Background()
	chunks := []domain.Chunk{
		{Text: "beta"},
		{Text: "alpha"},
		{Text: "gamma"},
		{Text: "alpha"},
		{Text: "alpha beta"},
	}
	idx, err := svc.Build(ctx, "doc", chunks)
	require.NoError(t, err)

	results, err := svc.Query(ctx, idx, "alpha", 50)
	require.NoError(t, err)
	require.Len(t, results, len(chunks))

	var ordinals []int
	for _, r := range results {
		ordinals = append(ordinals, r.Chunk.Ordinal)
	}
	// alpha chunks tie at 1.0 and keep ordinal order, then the mixed chunk,
	// then beta and gamma tie at 0.
	assert.Equal(t, []int{1, 3, 4, 0, 2}, ordinals)
	assert.InDelta(t, 1.0, results[0].Score, 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, results[2].Score, 1e-12)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQuery_InvalidK(t *testing.T) {
	svc, _ := newService(fakes.NewEmbedder("a"))
	idx, err := svc.Build(context.Background(), "doc", []domain.Chunk{{Text: "a"}})
	require.NoError(t, err)

	for _, k := range []int{0, -1} {
		_, err := svc.Query(context.Background(), idx, "a", k)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	}
}

func TestQuery_EmbeddingFailure(t *testing.T) {
	emb := fakes.NewEmbedder("a")
	svc, _ := newService(emb)
	idx, err := svc.Build(context.Background(), "doc", []domain.Chunk{{Text: "a"}})
	require.NoError(t, err)

	emb.FailOn = "boom"
	_, err = svc.Query(context.Background(), idx, "boom", 1)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	built, _ := newService(fakes.NewEmbedder("a", "b"))
	idx, err := built.Build(context.Background(), "doc", []domain.Chunk{{Text: "a"}})
	require.NoError(t, err)

	other, _ := newService(fakes.NewEmbedder("a"))
	_, err = other.Query(context.Background(), idx, "a", 1)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestQuery_SameResultsAfterPersistRoundTrip(t *testing.T) {
	store, err := file.NewStorage(t.TempDir())
	require.NoError(t, err)
	emb := fakes.NewEmbedder("revenue", "x", "staff", "outlook", "costs")
	svc := NewService(emb, store)
	ctx := context.Background()

	built, err := svc.Build(ctx, "report", reportChunks(t))
	require.NoError(t, err)
	loaded, err := svc.Load(ctx, "report")
	require.NoError(t, err)

	for _, q := range []string{"what is X", "revenue and costs", "staff outlook", "nothing matches"} {
		for _, k := range []int{1, 2, 3, 100} {
			want, err := svc.Query(ctx, built, q, k)
			require.NoError(t, err)
			got, err := svc.Query(ctx, loaded, q, k)
			require.NoError(t, err)
			assert.Equal(t, domain.Chunks(want), domain.Chunks(got), "q=%q k=%d", q, k)
		}
	}
}

func TestQuery_ConcurrentReaders(t *testing.T) {
	svc, _ := newService(fakes.NewEmbedder("revenue", "x"))
	ctx := context.Background()
	idx, err := svc.Build(ctx, "report", reportChunks(t))
	require.NoError(t, err)

	want, err := svc.Query(ctx, idx, "revenue X", 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Query(ctx, idx, "revenue X", 3)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestCosineSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 1}))
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 1}, []float64{-1, -1}), 1e-12)
}
