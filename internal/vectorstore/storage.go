package vectorstore

import (
	"context"

	"docqa/internal/domain"
)

// Storage persists one index per document id.
// Save replaces whatever was stored under the key (last build wins).
// Load returns an error wrapping domain.ErrIndexNotFound for unknown keys.
type Storage interface {
	Save(ctx context.Context, key string, index *domain.Index) error
	Load(ctx context.Context, key string) (*domain.Index, error)
	Delete(ctx context.Context, key string) error
}

// Clone deep-copies an index so stores never share slices with callers.
func Clone(idx *domain.Index) *domain.Index {
	out := *idx
	out.Chunks = append([]domain.Chunk(nil), idx.Chunks...)
	out.Vectors = make([]domain.EmbeddingVector, len(idx.Vectors))
	for i, v := range idx.Vectors {
		out.Vectors[i] = domain.EmbeddingVector{
			ChunkID: v.ChunkID,
			Values:  append([]float64(nil), v.Values...),
		}
	}
	return &out
}
