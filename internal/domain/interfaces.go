package domain

import (
	"context"
	"fmt"
	"time"
)

// Document represents a single uploaded file after text extraction.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a contiguous span of a document's text used as the unit of retrieval.
// Start and End are character (rune) offsets into the parent text, End exclusive.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// ChunkID returns the identifier of the chunk at ordinal within docID.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", docID, ordinal)
}

// EmbeddingVector is the vector computed for one chunk.
type EmbeddingVector struct {
	ChunkID string    `json:"chunk_id"`
	Values  []float64 `json:"values"`
}

// Index holds every chunk of one document paired with its vector.
// Chunks and Vectors are index-aligned.
type Index struct {
	DocumentID string            `json:"document_id"`
	Embedder   string            `json:"embedder"`
	Dimension  int               `json:"dimension"`
	Chunks     []Chunk           `json:"chunks"`
	Vectors    []EmbeddingVector `json:"vectors"`
	BuiltAt    time.Time         `json:"built_at"`
}

// Len returns the number of chunks in the index.
func (idx *Index) Len() int { return len(idx.Chunks) }

// Validate checks the structural invariants of an index.
func (idx *Index) Validate() error {
	if idx.DocumentID == "" {
		return fmt.Errorf("index: empty document id")
	}
	if len(idx.Chunks) != len(idx.Vectors) {
		return fmt.Errorf("index %s: %d chunks but %d vectors", idx.DocumentID, len(idx.Chunks), len(idx.Vectors))
	}
	for i, c := range idx.Chunks {
		if c.Ordinal != i {
			return fmt.Errorf("index %s: chunk %d has ordinal %d", idx.DocumentID, i, c.Ordinal)
		}
		if c.DocumentID != idx.DocumentID {
			return fmt.Errorf("index %s: chunk %d belongs to %q", idx.DocumentID, i, c.DocumentID)
		}
		v := idx.Vectors[i]
		if v.ChunkID != c.ID {
			return fmt.Errorf("index %s: vector %d is for chunk %q, want %q", idx.DocumentID, i, v.ChunkID, c.ID)
		}
		if len(v.Values) != idx.Dimension {
			return fmt.Errorf("index %s: vector %d has dimension %d, want %d", idx.DocumentID, i, len(v.Values), idx.Dimension)
		}
	}
	return nil
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Chunks strips the scores from results, keeping their order.
func Chunks(results []SearchResult) []Chunk {
	out := make([]Chunk, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}

// Embedder converts free text into a numeric vector representation.
// Every vector produced by one Embedder has the same dimension.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator produces text from a prompt using a fixed, reproducible configuration.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
