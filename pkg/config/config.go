// Package config defines the YAML configuration for the agentdb library.
package config

// Config represents the top-level configuration for the agentdb library.
type Config struct {
	// Storage configures the durable key-value backend
	Storage StorageConfig `yaml:"storage"`

	// State configures the agent state manager
	State StateConfig `yaml:"state"`

	// Memory configures the memory record store
	Memory MemoryConfig `yaml:"memory"`

	// Vector configures the vector index
	Vector VectorConfig `yaml:"vector"`

	// Embedding configures the embedding provider
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Scripting configures the Lua scripting engine
	Scripting ScriptingConfig `yaml:"scripting"`

	// Logging configures the logging behavior
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the durable key-value backend.
type StorageConfig struct {
	// Type specifies the backend ("memory", "boltdb", "sqlite", "postgres")
	Type string `yaml:"type"`

	// BoltDB configures bbolt file storage
	BoltDB BoltDBConfig `yaml:"boltdb"`

	// SQL configures SQL-based storage
	SQL SQLConfig `yaml:"sql"`
}

// BoltDBConfig configures bbolt file storage.
type BoltDBConfig struct {
	// Path is the database file path
	Path string `yaml:"path"`
}

// SQLConfig configures SQL-based storage.
type SQLConfig struct {
	// DSN is the data source name (connection string)
	DSN string `yaml:"dsn"`
}

// StateConfig configures the agent state manager.
type StateConfig struct {
	// CacheSize is the LRU read-cache capacity in entries
	CacheSize int `yaml:"cache_size"`
}

// MemoryConfig configures the memory record store.
type MemoryConfig struct {
	// DecayRate is the per-day exponential decay constant for retrieval ranking
	DecayRate float64 `yaml:"decay_rate"`

	// ImportanceThreshold: records below it are consolidation candidates
	ImportanceThreshold float32 `yaml:"importance_threshold"`

	// RetentionDays: records accessed within this window survive consolidation
	RetentionDays int `yaml:"retention_days"`
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Backend selects the index ("engine", "chromem", "pgvector")
	Backend string `yaml:"backend"`

	// Dimension specifies the embedding dimensions
	Dimension int `yaml:"dimension"`

	// Algorithm is the similarity algorithm (cosine, euclidean, dot, manhattan)
	Algorithm string `yaml:"algorithm"`

	// Chromem configures the chromem-go backend
	Chromem ChromemConfig `yaml:"chromem"`

	// PgVector configures the PostgreSQL pgvector backend
	PgVector PgVectorConfig `yaml:"pgvector"`
}

// ChromemConfig configures the chromem-go backend.
type ChromemConfig struct {
	// StoragePath is the path for on-disk persistent storage (if empty, in-memory is used)
	StoragePath string `yaml:"storage_path"`

	// Compress enables gzip compression of persisted documents
	Compress bool `yaml:"compress"`
}

// PgVectorConfig configures the PostgreSQL pgvector backend.
type PgVectorConfig struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string `yaml:"connection_string"`

	// TableName is the name of the table to use
	TableName string `yaml:"table_name"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is the embedding provider ("openai", "mock", or empty to disable)
	Provider string `yaml:"provider"`

	// OpenAI configures OpenAI integration
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures OpenAI integration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// EmbeddingModel is the model to use for generating embeddings
	EmbeddingModel string `yaml:"embedding_model"`
}

// ScriptingConfig configures the Lua scripting engine.
type ScriptingConfig struct {
	// Enabled determines whether the Lua engine is created
	Enabled bool `yaml:"enabled"`

	// Paths is a list of directories containing Lua scripts
	Paths []string `yaml:"paths"`

	// EnableSandboxing restricts access to dangerous Lua modules
	EnableSandboxing bool `yaml:"enable_sandboxing"`

	// ScriptTimeoutMs sets a maximum execution time for scripts in milliseconds
	ScriptTimeoutMs int `yaml:"script_timeout_ms"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is the logging level ("debug", "info", "warn", "error")
	Level string `yaml:"level"`

	// Format is the output format ("json", "text")
	Format string `yaml:"format"`
}
