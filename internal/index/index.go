// Package index builds, persists and queries per-document embedding indexes.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/vectorstore"
)

// Service owns the embedder used for both building and querying, so query
// vectors always live in the same space as the stored ones.
type Service struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	log      *logger.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for Index.BuiltAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(embedder domain.Embedder, store vectorstore.Storage, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		store:    store,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build embeds every chunk in order, one call per chunk, and persists the
// index under docID. Nothing is persisted unless every call succeeds.
func (s *Service) Build(ctx context.Context, docID string, chunks []domain.Chunk) (*domain.Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s has no chunks", domain.ErrEmptyInput, docID)
	}
	idx := &domain.Index{
		DocumentID: docID,
		Embedder:   s.embedder.Name(),
		Chunks:     make([]domain.Chunk, len(chunks)),
		Vectors:    make([]domain.EmbeddingVector, len(chunks)),
	}
	for i, c := range chunks {
		c.DocumentID = docID
		c.Ordinal = i
		c.ID = domain.ChunkID(docID, i)

		vec, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			s.log.Warn("embedding failed, index not built", "document", docID, "ordinal", i, "error", err)
			return nil, fmt.Errorf("%w: chunk %d of %s: %v", domain.ErrEmbeddingService, i, docID, err)
		}
		if err := checkDimension(&idx.Dimension, vec); err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %s: %v", domain.ErrEmbeddingService, i, docID, err)
		}
		idx.Chunks[i] = c
		idx.Vectors[i] = domain.EmbeddingVector{ChunkID: c.ID, Values: vec}
		s.log.Debug("embedded chunk", "document", docID, "ordinal", i)
	}
	idx.BuiltAt = s.now().UTC()

	if err := s.store.Save(ctx, docID, idx); err != nil {
		return nil, fmt.Errorf("persisting index %s: %w", docID, err)
	}
	s.log.Info("index built", "document", docID, "chunks", idx.Len(), "dimension", idx.Dimension, "embedder", idx.Embedder)
	return idx, nil
}

// Load returns the persisted index for docID.
func (s *Service) Load(ctx context.Context, docID string) (*domain.Index, error) {
	idx, err := s.store.Load(ctx, docID)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading index %s: %w", docID, err)
	}
	if idx.Embedder != s.embedder.Name() {
		s.log.Warn("index was built with a different embedder", "document", docID, "index_embedder", idx.Embedder, "embedder", s.embedder.Name())
	}
	return idx, nil
}

// Query returns up to k chunks ranked by cosine similarity to question,
// highest first, ties broken by lower ordinal. Query does not mutate idx and
// is safe to call concurrently on the same index.
func (s *Service) Query(ctx context.Context, idx *domain.Index, question string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrConfiguration, k)
	}
	q, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrEmbeddingService, err)
	}
	if len(q) != idx.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index %s has %d",
			domain.ErrEmbeddingService, len(q), idx.DocumentID, idx.Dimension)
	}
	if err := checkFinite(q); err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrEmbeddingService, err)
	}
	return Rank(idx, q, k), nil
}

// Rank scores every stored vector against q and returns the top k.
// Non-finite scores rank below every finite one.
func Rank(idx *domain.Index, q []float64, k int) []domain.SearchResult {
	results := make([]domain.SearchResult, len(idx.Chunks))
	for i := range idx.Chunks {
		results[i] = domain.SearchResult{
			Chunk: idx.Chunks[i],
			Score: CosineSimilarity(q, idx.Vectors[i].Values),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		if math.IsNaN(si) != math.IsNaN(sj) {
			return !math.IsNaN(si)
		}
		if si != sj && !math.IsNaN(si) {
			return si > sj
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// CosineSimilarity returns 0 when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func checkDimension(dim *int, vec []float64) error {
	if len(vec) == 0 {
		return errors.New("empty vector")
	}
	if err := checkFinite(vec); err != nil {
		return err
	}
	if *dim == 0 {
		*dim = len(vec)
		return nil
	}
	if len(vec) != *dim {
		return fmt.Errorf("vector dimension %d, want %d", len(vec), *dim)
	}
	return nil
}

func checkFinite(vec []float64) error {
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value %v at position %d", v, i)
		}
	}
	return nil
}
