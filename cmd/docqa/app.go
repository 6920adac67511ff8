package main

import (
	"fmt"
	"os"

	"docqa/internal/chatlog"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	embollama "docqa/internal/embedding/ollama"
	embopenai "docqa/internal/embedding/openai"
	"docqa/internal/extract"
	genollama "docqa/internal/generation/ollama"
	genopenai "docqa/internal/generation/openai"
	"docqa/internal/index"
	"docqa/internal/logger"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/file"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/sqlite"
)

// app holds the components assembled from configuration for one command.
type app struct {
	pipeline *service.Pipeline
	store    vectorstore.Storage
	close    func() error
}

// newApp assembles the pipeline. The generator is only built when
// withGenerator is set so indexing works without generation credentials.
func newApp(cfg *config.AppConfig, log *logger.Logger, withGenerator bool) (*app, error) {
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	store, closeFn, err := newStore(cfg.IndexStore)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewCharacterChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	policy, err := chatlog.ParsePolicy(cfg.ChatLog.Policy)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	idxSvc := index.NewService(emb, store, index.WithLogger(log))
	p := &service.Pipeline{
		Extractor:        extract.New(nil, cfg.Extract.PDFToText),
		Chunker:          ch,
		Indexer:          idxSvc,
		Summarizer:       summarizer.NewFrequencySummarizer(),
		ChatLog:          chatlog.NewWriter(cfg.ChatLog.Dir, policy, nil),
		K:                cfg.Retrieval.K,
		SummarySentences: cfg.Summarizer.MaxSentences,
		Logger:           log,
	}
	if cfg.UploadDir != "" {
		dir := cfg.UploadDir
		p.Stage = func(path string) (string, error) { return extract.Stage(path, dir) }
	}
	if withGenerator {
		gen, err := newGenerator(cfg.Generator)
		if err != nil {
			_ = closeFn()
			return nil, err
		}
		p.Answerer = service.NewAnswerer(idxSvc, gen, log)
	}
	return &app{pipeline: p, store: store, close: closeFn}, nil
}

func newEmbedder(c config.EmbedderConfig) (domain.Embedder, error) {
	switch c.Type {
	case "hashing", "":
		return hashing.NewEmbedder(c.Dimension), nil
	case "openai":
		if c.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrConfiguration)
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   c.OpenAI.BaseURL,
			APIKeyEnv: c.OpenAI.APIKeyEnv,
			Model:     c.OpenAI.Model,
			Timeout:   config.Timeout(c.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "ollama":
		if c.Ollama == nil {
			return nil, fmt.Errorf("%w: ollama embedder config missing", domain.ErrConfiguration)
		}
		return embollama.NewEmbedder(c.Ollama.BaseURL, c.Ollama.Model, config.Timeout(c.Ollama.TimeoutSecs)), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrConfiguration, c.Type)
	}
}

func newGenerator(c config.GeneratorConfig) (domain.Generator, error) {
	switch c.Type {
	case "openai", "":
		if c.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai generator config missing", domain.ErrConfiguration)
		}
		gen, err := genopenai.NewGenerator(genopenai.Config{
			BaseURL:   c.OpenAI.BaseURL,
			APIKeyEnv: c.OpenAI.APIKeyEnv,
			Model:     c.OpenAI.Model,
			Timeout:   config.Timeout(c.OpenAI.TimeoutSecs),
			MaxTokens: c.OpenAI.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return gen, nil
	case "ollama":
		if c.Ollama == nil {
			return nil, fmt.Errorf("%w: ollama generator config missing", domain.ErrConfiguration)
		}
		return genollama.NewGenerator(c.Ollama.BaseURL, c.Ollama.Model, config.Timeout(c.Ollama.TimeoutSecs)), nil
	default:
		return nil, fmt.Errorf("%w: unknown generator: %s", domain.ErrConfiguration, c.Type)
	}
}

func newStore(c config.IndexStoreConfig) (vectorstore.Storage, func() error, error) {
	noop := func() error { return nil }
	switch c.Type {
	case "file", "":
		st, err := file.NewStorage(c.Dir)
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	case "sqlite":
		st, err := sqlite.NewStorage(c.Dir)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "memory":
		return memory.NewStorage(), noop, nil
	case "qdrant":
		if c.Qdrant == nil {
			return nil, noop, fmt.Errorf("%w: qdrant config missing", domain.ErrConfiguration)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:              c.Qdrant.URL,
			APIKey:           os.Getenv(c.Qdrant.APIKeyEnv),
			CollectionPrefix: c.Qdrant.CollectionPrefix,
			Timeout:          config.Timeout(c.Qdrant.TimeoutSecs),
		}), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown vector store: %s", domain.ErrConfiguration, c.Type)
	}
}
