package domain

import "errors"

// Error kinds surfaced by the pipeline. Callers match them with errors.Is.
var (
	// ErrConfiguration indicates invalid chunking or retrieval parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmptyInput indicates the document yielded no usable text.
	ErrEmptyInput = errors.New("no extractable text")

	// ErrEmbeddingService indicates the embedding capability failed or timed out.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrGenerationService indicates the text-generation capability failed.
	ErrGenerationService = errors.New("generation service error")

	// ErrIndexNotFound indicates no index has been built for a document id.
	ErrIndexNotFound = errors.New("index not found")

	// ErrLogPersist indicates the chat log could not be written.
	ErrLogPersist = errors.New("chat log not persisted")
)
