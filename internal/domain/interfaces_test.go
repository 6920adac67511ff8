package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIndex() *Index {
	return &Index{
		DocumentID: "doc",
		Embedder:   "fake",
		Dimension:  2,
		Chunks: []Chunk{
			{ID: ChunkID("doc", 0), DocumentID: "doc", Ordinal: 0, Text: "a", Start: 0, End: 1},
			{ID: ChunkID("doc", 1), DocumentID: "doc", Ordinal: 1, Text: "b", Start: 1, End: 2},
		},
		Vectors: []EmbeddingVector{
			{ChunkID: "doc:0", Values: []float64{1, 0}},
			{ChunkID: "doc:1", Values: []float64{0, 1}},
		},
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "report:3", ChunkID("report", 3))
}

func TestIndex_Validate(t *testing.T) {
	require.NoError(t, validIndex().Validate())

	tests := []struct {
		name   string
		mutate func(*Index)
	}{
		{"empty document id", func(i *Index) { i.DocumentID = "" }},
		{"length mismatch", func(i *Index) { i.Vectors = i.Vectors[:1] }},
		{"ordinal gap", func(i *Index) { i.Chunks[1].Ordinal = 2 }},
		{"foreign chunk", func(i *Index) { i.Chunks[0].DocumentID = "other" }},
		{"misaligned vector", func(i *Index) { i.Vectors[0].ChunkID = "doc:1" }},
		{"wrong dimension", func(i *Index) { i.Vectors[1].Values = []float64{1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := validIndex()
			tt.mutate(idx)
			assert.Error(t, idx.Validate())
		})
	}
}

func TestChunks_PreservesOrder(t *testing.T) {
	results := []SearchResult{
		{Chunk: Chunk{ID: "d:2"}, Score: 0.9},
		{Chunk: Chunk{ID: "d:0"}, Score: 0.5},
	}
	chunks := Chunks(results)
	require.Len(t, chunks, 2)
	assert.Equal(t, "d:2", chunks[0].ID)
	assert.Equal(t, "d:0", chunks[1].ID)
}
