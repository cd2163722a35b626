package graphloom

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/graphloom/graphloom/resolve"
)

// Config holds all configuration for the GraphLoom engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.graphloom/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "graphloom".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// not explicitly set. Options: "home" (default) uses ~/.graphloom/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Chunking
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Pipeline batching
	EmbeddingBatchSize    int `json:"embedding_batch_size" yaml:"embedding_batch_size"`
	KGExtractionBatchSize int `json:"kg_extraction_batch_size" yaml:"kg_extraction_batch_size"`

	// Extraction
	EntityTypes       []string `json:"entity_types" yaml:"entity_types"`
	Language          string   `json:"language" yaml:"language"`
	MaxTokens         int      `json:"max_tokens" yaml:"max_tokens"`
	GleaningEnabled   bool     `json:"gleaning_enabled" yaml:"gleaning_enabled"`
	GleaningMaxPasses int      `json:"gleaning_max_passes" yaml:"gleaning_max_passes"`
	EnableCache       bool     `json:"enable_cache" yaml:"enable_cache"`

	// ExtractionWorkers bounds concurrent LLM extraction calls within a
	// batch.
	ExtractionWorkers int `json:"extraction_workers" yaml:"extraction_workers"`

	// Entity resolution
	Resolution resolve.Config `json:"resolution" yaml:"resolution"`

	// Bounds applied during dedup and provenance tracking.
	EntityNameMaxLen     int    `json:"entity_name_max_len" yaml:"entity_name_max_len"`
	DescriptionMaxLen    int    `json:"description_max_len" yaml:"description_max_len"`
	DescriptionSeparator string `json:"description_separator" yaml:"description_separator"`
	MaxSourceIDs         int    `json:"max_source_ids" yaml:"max_source_ids"`

	// Redis extraction cache. When Addr is empty the SQLite-backed
	// cache is used instead.
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, lmstudio, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// RedisConfig configures the optional Redis extraction cache.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// DefaultConfig returns a Config with sensible defaults for local
// inference. Database is stored in ~/.graphloom/graphloom.db.
func DefaultConfig() Config {
	return Config{
		DBName:     "graphloom",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		ChunkSize:             1200,
		ChunkOverlap:          100,
		EmbeddingBatchSize:    32,
		KGExtractionBatchSize: 20,
		Language:              "English",
		MaxTokens:             4000,
		GleaningEnabled:       true,
		GleaningMaxPasses:     1,
		EnableCache:           true,
		ExtractionWorkers:     4,
		Resolution:            resolve.DefaultConfig(),
		EntityNameMaxLen:      500,
		DescriptionMaxLen:     1000,
		DescriptionSeparator:  " | ",
		MaxSourceIDs:          50,
		EmbeddingDim:          768,
	}
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("%w: embedding_batch_size must be positive, got %d", ErrInvalidConfig, c.EmbeddingBatchSize)
	}
	if c.KGExtractionBatchSize <= 0 {
		return fmt.Errorf("%w: kg_extraction_batch_size must be positive, got %d", ErrInvalidConfig, c.KGExtractionBatchSize)
	}
	if c.GleaningMaxPasses < 0 || c.GleaningMaxPasses > 5 {
		return fmt.Errorf("%w: gleaning_max_passes must be in [0,5], got %d", ErrInvalidConfig, c.GleaningMaxPasses)
	}
	if c.ExtractionWorkers <= 0 {
		return fmt.Errorf("%w: extraction_workers must be positive, got %d", ErrInvalidConfig, c.ExtractionWorkers)
	}
	if c.EntityNameMaxLen <= 0 {
		return fmt.Errorf("%w: entity_name_max_len must be positive, got %d", ErrInvalidConfig, c.EntityNameMaxLen)
	}
	if c.DescriptionMaxLen <= 0 {
		return fmt.Errorf("%w: description_max_len must be positive, got %d", ErrInvalidConfig, c.DescriptionMaxLen)
	}
	if c.MaxSourceIDs <= 0 {
		return fmt.Errorf("%w: max_source_ids must be positive, got %d", ErrInvalidConfig, c.MaxSourceIDs)
	}
	if c.Resolution.Enabled {
		if err := c.Resolution.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "graphloom"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".graphloom", name+".db")
	}
}
