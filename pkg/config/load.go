package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from a byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvironmentOverrides(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a validated configuration with in-memory storage and no
// external services, suitable for tests and embedded use.
func Default() *Config {
	config := &Config{
		Storage: StorageConfig{Type: "memory"},
		Vector:  VectorConfig{Backend: "engine"},
	}
	// Defaults from validateConfig cannot fail for this shape.
	_ = validateConfig(config)
	return config
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) {
	// Storage overrides
	if storageType := os.Getenv("AGENTDB_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if path := os.Getenv("AGENTDB_BOLTDB_PATH"); path != "" {
		config.Storage.BoltDB.Path = path
	}
	if dsn := os.Getenv("AGENTDB_SQL_DSN"); dsn != "" {
		config.Storage.SQL.DSN = dsn
	}

	// PgVector connection string override
	if connStr := os.Getenv("PGVECTOR_URL"); connStr != "" {
		config.Vector.PgVector.ConnectionString = connStr
	}

	// OpenAI API key override
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.OpenAI.APIKey = apiKey
	}

	// Logging level override
	if level := os.Getenv("AGENTDB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// validateConfig validates the configuration and applies defaults.
func validateConfig(config *Config) error {
	// Validate storage configuration
	switch strings.ToLower(config.Storage.Type) {
	case "", "memory":
		config.Storage.Type = "memory"
	case "boltdb":
		if config.Storage.BoltDB.Path == "" {
			return fmt.Errorf("boltdb path is required for boltdb storage type")
		}
	case "sqlite", "postgres":
		if config.Storage.SQL.DSN == "" {
			return fmt.Errorf("sql DSN is required for %s storage type", config.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}

	// Validate state configuration (apply defaults if needed)
	if config.State.CacheSize <= 0 {
		config.State.CacheSize = 128
	}

	// Validate memory configuration (apply defaults if needed)
	if config.Memory.DecayRate <= 0 {
		config.Memory.DecayRate = 0.01
	}
	if config.Memory.ImportanceThreshold <= 0 {
		config.Memory.ImportanceThreshold = 0.2
	}
	if config.Memory.RetentionDays <= 0 {
		config.Memory.RetentionDays = 30
	}

	// Validate vector configuration
	switch strings.ToLower(config.Vector.Backend) {
	case "", "engine":
		config.Vector.Backend = "engine"
	case "chromem":
		// In-memory unless a storage path is set; nothing required
	case "pgvector":
		if config.Vector.PgVector.ConnectionString == "" {
			return fmt.Errorf("connection string is required for pgvector backend")
		}
		if config.Vector.PgVector.TableName == "" {
			config.Vector.PgVector.TableName = "agentdb_vectors"
		}
	default:
		return fmt.Errorf("unsupported vector backend: %s", config.Vector.Backend)
	}

	if config.Vector.Dimension <= 0 {
		config.Vector.Dimension = 1536
	}
	switch strings.ToLower(config.Vector.Algorithm) {
	case "":
		config.Vector.Algorithm = "cosine"
	case "cosine", "euclidean", "dot", "manhattan":
	default:
		return fmt.Errorf("unsupported similarity algorithm: %s", config.Vector.Algorithm)
	}

	// Validate embedding configuration
	switch strings.ToLower(config.Embedding.Provider) {
	case "", "mock":
	case "openai":
		// API key can be provided via environment variable, so we don't
		// explicitly check for it here
		if config.Embedding.OpenAI.EmbeddingModel == "" {
			config.Embedding.OpenAI.EmbeddingModel = "text-embedding-3-small"
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}

	// Validate scripting configuration (apply defaults if needed)
	if config.Scripting.ScriptTimeoutMs <= 0 {
		config.Scripting.ScriptTimeoutMs = 1000
	}

	return nil
}
