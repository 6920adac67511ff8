package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"docqa/internal/chatlog"
	"docqa/internal/chunker"
	"docqa/internal/domain"
)

// OpenAIConfig holds connection details for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxTokens   int    `yaml:"max_tokens,omitempty"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	Dimension int           `yaml:"dimension,omitempty"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama    *OllamaConfig `yaml:"ollama,omitempty"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type   string        `yaml:"type"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
}

// ChunkerConfig configures the sliding window, in characters.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// RetrievalConfig configures how many chunks feed each answer.
type RetrievalConfig struct {
	K int `yaml:"k"`
}

// IndexStoreConfig selects where built indexes are persisted.
type IndexStoreConfig struct {
	Type   string        `yaml:"type"`
	Dir    string        `yaml:"dir"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// ChatLogConfig configures where chat sessions are mirrored.
type ChatLogConfig struct {
	Dir    string `yaml:"dir"`
	Policy string `yaml:"policy"`
}

// SummarizerConfig configures the summary shown after indexing.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// ExtractConfig configures text extraction. An empty PDFToText reads PDFs
// with the built-in reader; a path routes them through that binary.
type ExtractConfig struct {
	PDFToText string `yaml:"pdftotext,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Mode    string `yaml:"mode"`
	Verbose bool   `yaml:"verbose"`
	File    string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Generator  GeneratorConfig  `yaml:"generator"`
	IndexStore IndexStoreConfig `yaml:"index_store"`
	ChatLog    ChatLogConfig    `yaml:"chat_log"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Extract    ExtractConfig    `yaml:"extract"`
	UploadDir  string           `yaml:"upload_dir"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{
		Chunker:    ChunkerConfig{ChunkSize: chunker.DefaultChunkSize, Overlap: chunker.DefaultOverlap},
		Retrieval:  RetrievalConfig{K: 4},
		Embedder:   EmbedderConfig{Type: "hashing", Dimension: 512},
		Generator:  GeneratorConfig{Type: "openai"},
		IndexStore: IndexStoreConfig{Type: "file", Dir: "vector_db"},
		ChatLog:    ChatLogConfig{Dir: "chat_logs", Policy: string(chatlog.PerTurn)},
		Summarizer: SummarizerConfig{MaxSentences: 3},
		Extract:    ExtractConfig{},
		UploadDir:  "uploaded_docs",
		Logging:    LoggingConfig{Mode: "production", File: "docqa.log"},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 4
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Embedder.Ollama, "nomic-embed-text")
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	}
	if cfg.Generator.Type == "ollama" {
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Generator.Ollama, "llama3")
	}
	if cfg.IndexStore.Type == "qdrant" {
		if cfg.IndexStore.Qdrant == nil {
			cfg.IndexStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.IndexStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "docqa_"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 30
		}
	}
	if cfg.IndexStore.Dir == "" {
		cfg.IndexStore.Dir = "vector_db"
	}
	if cfg.ChatLog.Dir == "" {
		cfg.ChatLog.Dir = "chat_logs"
	}
}

func openAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 60
	}
}

func ollamaDefaults(c *OllamaConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 120
	}
}

// Validate rejects settings that would fail later in the pipeline. Every
// error wraps domain.ErrConfiguration.
func (c *AppConfig) Validate() error {
	if err := chunker.ValidateWindow(c.Chunker.ChunkSize, c.Chunker.Overlap); err != nil {
		return err
	}
	if c.Retrieval.K <= 0 {
		return fmt.Errorf("%w: retrieval.k must be positive, got %d", domain.ErrConfiguration, c.Retrieval.K)
	}
	switch c.Embedder.Type {
	case "hashing":
		if c.Embedder.Dimension <= 0 {
			return fmt.Errorf("%w: embedder.dimension must be positive", domain.ErrConfiguration)
		}
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedder type %q", domain.ErrConfiguration, c.Embedder.Type)
	}
	switch c.Generator.Type {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown generator type %q", domain.ErrConfiguration, c.Generator.Type)
	}
	switch c.IndexStore.Type {
	case "file", "sqlite", "memory", "qdrant":
	default:
		return fmt.Errorf("%w: unknown index store type %q", domain.ErrConfiguration, c.IndexStore.Type)
	}
	if _, err := chatlog.ParsePolicy(c.ChatLog.Policy); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

// Timeout converts a seconds setting into a duration.
func Timeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
