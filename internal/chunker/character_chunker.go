package chunker

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Split slides a window of chunkSize characters over text, advancing by
// chunkSize-overlap characters per step. The final chunk may be shorter.
// Empty or blank text yields no chunks and no error; callers treat that as
// an abort signal. Returned chunks carry ordinals and offsets but no
// document id.
func Split(text string, chunkSize, overlap int) ([]domain.Chunk, error) {
	if err := ValidateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)
	n := len(runes)
	step := chunkSize - overlap

	chunks := make([]domain.Chunk, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, domain.Chunk{
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// ValidateWindow reports whether chunkSize and overlap describe a window that advances.
func ValidateWindow(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrConfiguration, chunkSize, overlap)
	}
	return nil
}

// CharacterChunker splits documents into fixed-size overlapping character windows.
type CharacterChunker struct {
	chunkSize int
	overlap   int
}

// NewCharacterChunker validates the window up front so a bad configuration
// fails before any document is read.
func NewCharacterChunker(chunkSize, overlap int) (*CharacterChunker, error) {
	if err := ValidateWindow(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &CharacterChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	chunks, err := Split(document.Content, c.chunkSize, c.overlap)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].DocumentID = document.ID
		chunks[i].ID = domain.ChunkID(document.ID, chunks[i].Ordinal)
	}
	return chunks, nil
}
