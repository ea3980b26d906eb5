// Package config resolves bookrag settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mike-a-ellis/bookrag/internal/document"
	"github.com/mike-a-ellis/bookrag/internal/embedding"
	"github.com/mike-a-ellis/bookrag/internal/storage"
)

const defaultGenerationModel = "gpt-4o"

// ErrInvalidConfig is returned by Validate and Load for unusable settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// OpenRouter serves generation when OPENROUTER_API_KEY is set and no
// generation base URL is configured.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OpenRouterModel   = "mistralai/mixtral-8x7b-instruct"
)

const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"

	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// EmbeddingConfig selects the embedding model. The hashing provider works
// offline; indexes built with it can only be queried with it.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"-"`
}

// GenerationConfig selects the chat model used for answers.
type GenerationConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

// RetryConfig bounds retries of embedding and generation calls.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// QdrantConfig locates the Qdrant server for the qdrant backend.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	UseTLS bool   `yaml:"use_tls"`
	APIKey string `yaml:"-"`
}

// ServerConfig controls the MCP server transport.
type ServerConfig struct {
	Mode string `yaml:"mode"` // "stdio" or "http"
	Port string `yaml:"port"`
}

// Config is the complete set of recognized options.
type Config struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	BatchSize        int     `yaml:"batch_size"`
	MaxWorkers       int     `yaml:"max_workers"`
	PersistDirectory string  `yaml:"persist_directory"`
	CollectionName   string  `yaml:"collection_name"`
	Backend          string  `yaml:"backend"`
	Metric           string  `yaml:"metric"`
	TopK             int     `yaml:"top_k"`
	MinRelevance     float64 `yaml:"min_relevance"`
	MaxContextChars  int     `yaml:"max_context_chars"`

	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Server     ServerConfig     `yaml:"server"`

	GitHubToken string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	retry := embedding.DefaultRetryPolicy()
	return &Config{
		ChunkSize:        500,
		ChunkOverlap:     50,
		BatchSize:        storage.DefaultBatchSize,
		MaxWorkers:       document.DefaultMaxWorkers(),
		PersistDirectory: "bookrag_db",
		CollectionName:   storage.DefaultCollection,
		Backend:          BackendSQLite,
		Metric:           string(storage.MetricCosine),
		TopK:             5,
		MaxContextChars:  16000 * 4,
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			Model:    embedding.DefaultModel,
		},
		Generation: GenerationConfig{
			Model: defaultGenerationModel,
		},
		Retry: RetryConfig{
			MaxAttempts:     retry.MaxAttempts,
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Server: ServerConfig{
			Mode: "stdio",
			Port: "8080",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from BOOKRAG_* variables and the usual
// provider credentials.
func (c *Config) applyEnv() error {
	var problems []error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	num("BOOKRAG_CHUNK_SIZE", &c.ChunkSize)
	num("BOOKRAG_CHUNK_OVERLAP", &c.ChunkOverlap)
	num("BOOKRAG_BATCH_SIZE", &c.BatchSize)
	num("BOOKRAG_MAX_WORKERS", &c.MaxWorkers)
	num("BOOKRAG_TOP_K", &c.TopK)
	num("BOOKRAG_MAX_CONTEXT_CHARS", &c.MaxContextChars)
	num("BOOKRAG_RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	num("BOOKRAG_EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)
	num("QDRANT_PORT", &c.Qdrant.Port)

	str("BOOKRAG_PERSIST_DIRECTORY", &c.PersistDirectory)
	str("BOOKRAG_COLLECTION", &c.CollectionName)
	str("BOOKRAG_BACKEND", &c.Backend)
	str("BOOKRAG_METRIC", &c.Metric)
	str("BOOKRAG_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("BOOKRAG_EMBEDDING_MODEL", &c.Embedding.Model)
	str("BOOKRAG_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	str("BOOKRAG_GENERATION_MODEL", &c.Generation.Model)
	str("BOOKRAG_GENERATION_BASE_URL", &c.Generation.BaseURL)
	str("QDRANT_HOST", &c.Qdrant.Host)
	str("QDRANT_API_KEY", &c.Qdrant.APIKey)
	str("PORT", &c.Server.Port)
	str("GITHUB_TOKEN", &c.GitHubToken)

	if v := os.Getenv("BOOKRAG_MIN_RELEVANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			problems = append(problems, fmt.Errorf("BOOKRAG_MIN_RELEVANCE: %q is not a number", v))
		} else {
			c.MinRelevance = f
		}
	}
	if os.Getenv("SERVER_MODE") == "true" {
		c.Server.Mode = "http"
	}

	// Generation uses the OpenAI key unless OPENROUTER_API_KEY or
	// BOOKRAG_GENERATION_API_KEY is set.
	str("OPENAI_API_KEY", &c.Embedding.APIKey)
	c.Generation.APIKey = c.Embedding.APIKey
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Generation.APIKey = key
		if c.Generation.BaseURL == "" {
			c.Generation.BaseURL = OpenRouterBaseURL
			if c.Generation.Model == defaultGenerationModel {
				c.Generation.Model = OpenRouterModel
			}
		}
	}
	str("BOOKRAG_GENERATION_API_KEY", &c.Generation.APIKey)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if c.ChunkSize <= 0 {
		add("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		add("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	if c.BatchSize <= 0 {
		add("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxWorkers <= 0 {
		add("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.CollectionName == "" {
		add("collection_name is required")
	}
	if c.TopK <= 0 {
		add("top_k must be positive, got %d", c.TopK)
	}
	if c.MinRelevance < 0 || c.MinRelevance > 1 {
		add("min_relevance must be in [0, 1], got %g", c.MinRelevance)
	}
	if c.MaxContextChars < 0 {
		add("max_context_chars must not be negative, got %d", c.MaxContextChars)
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if _, err := storage.ParseMetric(c.Metric); err != nil {
		add("metric: %v", err)
	}

	switch c.Backend {
	case BackendSQLite:
		if c.PersistDirectory == "" {
			add("persist_directory is required for the sqlite backend")
		}
	case BackendQdrant:
		if c.Qdrant.Host == "" || c.Qdrant.Port <= 0 {
			add("qdrant host and port are required for the qdrant backend")
		}
	default:
		add("backend must be %q or %q, got %q", BackendSQLite, BackendQdrant, c.Backend)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderHashing:
	default:
		add("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderHashing, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		add("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// RetryPolicy converts the retry settings for the embedding and answer clients.
func (c *Config) RetryPolicy() embedding.RetryPolicy {
	return embedding.RetryPolicy{
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		MaxAttempts:     c.Retry.MaxAttempts,
	}
}

// MetricValue returns the parsed distance metric. Call after Validate.
func (c *Config) MetricValue() storage.Metric {
	m, err := storage.ParseMetric(c.Metric)
	if err != nil {
		return storage.MetricCosine
	}
	return m
}

// YAML renders the effective configuration. Credentials are never included.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
