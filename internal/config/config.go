// Package config provides configuration loading for clipsearch.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates a configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for the clipsearch daemon and CLI.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Dataset     DatasetConfig     `koanf:"dataset"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Search      SearchConfig      `koanf:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
	// Caller enables caller annotation on log entries.
	Caller bool `koanf:"caller"`
}

// TelemetryConfig holds OTLP export settings.
// Telemetry is disabled by default; spans and metrics fall back to the
// global no-op providers.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
	ServiceName string `koanf:"service_name"`
}

// DatasetConfig locates the directory-backed image collection.
type DatasetConfig struct {
	Dir string `koanf:"dir"`
}

// EmbeddingsConfig holds settings for the CLIP inference service client.
type EmbeddingsConfig struct {
	// BaseURL is the base URL of the inference server.
	BaseURL string `koanf:"base_url"`
	// Model is the encoder model name. Determines vector dimension.
	Model string `koanf:"model"`
	// APIKey authenticates against hosted inference endpoints. Optional.
	APIKey Secret `koanf:"api_key"`
	// Timeout bounds a single embedding request.
	Timeout Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`
	// Collection is the collection name used for ingestion and search.
	Collection string        `koanf:"collection"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path string `koanf:"path"`
	// Compress enables gzip compression for persisted data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// BatchSize is the number of images embedded and upserted per batch.
	BatchSize int `koanf:"batch_size"`
	// VectorsFile optionally receives the full embedding matrix as a
	// NumPy .npy file after ingestion. Empty disables the artifact.
	VectorsFile string `koanf:"vectors_file"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	// Limit is the default number of results per query.
	Limit int `koanf:"limit"`
}

// Validate checks the configuration for fatal inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Dataset.Dir == "" {
		return fmt.Errorf("%w: dataset dir required", ErrInvalidConfig)
	}
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("%w: embeddings base_url required", ErrInvalidConfig)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("%w: vectorstore collection required", ErrInvalidConfig)
	}
	if c.VectorStore.Provider == "qdrant" {
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
		}
		if c.VectorStore.Qdrant.Port <= 0 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant port out of range: %d", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
		}
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("%w: ingest batch_size must be positive", ErrInvalidConfig)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("%w: search limit must be positive", ErrInvalidConfig)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("%w: telemetry endpoint required when telemetry is enabled", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "clipsearch"
	}

	if cfg.Dataset.Dir == "" {
		cfg.Dataset.Dir = "./dataset"
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8000"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "openai/clip-vit-base-patch32"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(60 * time.Second)
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "images"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 16
	}

	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = 2
	}
}
