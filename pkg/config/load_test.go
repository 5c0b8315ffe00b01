package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(``))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 128, cfg.State.CacheSize)
	assert.Equal(t, 0.01, cfg.Memory.DecayRate)
	assert.Equal(t, float32(0.2), cfg.Memory.ImportanceThreshold)
	assert.Equal(t, 30, cfg.Memory.RetentionDays)
	assert.Equal(t, "engine", cfg.Vector.Backend)
	assert.Equal(t, 1536, cfg.Vector.Dimension)
	assert.Equal(t, "cosine", cfg.Vector.Algorithm)
	assert.Equal(t, 1000, cfg.Scripting.ScriptTimeoutMs)
}

func TestLoadFromBytes_FullConfig(t *testing.T) {
	yaml := `
storage:
  type: boltdb
  boltdb:
    path: /tmp/agentdb.db
state:
  cache_size: 64
memory:
  decay_rate: 0.05
  importance_threshold: 0.4
  retention_days: 7
vector:
  backend: chromem
  dimension: 8
  algorithm: euclidean
  chromem:
    storage_path: /tmp/vectors
    compress: true
embedding:
  provider: mock
scripting:
  enabled: true
  paths:
    - ./scripts
  enable_sandboxing: true
  script_timeout_ms: 500
logging:
  level: debug
  format: json
`
	cfg, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "boltdb", cfg.Storage.Type)
	assert.Equal(t, "/tmp/agentdb.db", cfg.Storage.BoltDB.Path)
	assert.Equal(t, 64, cfg.State.CacheSize)
	assert.Equal(t, 0.05, cfg.Memory.DecayRate)
	assert.Equal(t, float32(0.4), cfg.Memory.ImportanceThreshold)
	assert.Equal(t, 7, cfg.Memory.RetentionDays)
	assert.Equal(t, "chromem", cfg.Vector.Backend)
	assert.Equal(t, 8, cfg.Vector.Dimension)
	assert.Equal(t, "euclidean", cfg.Vector.Algorithm)
	assert.Equal(t, "/tmp/vectors", cfg.Vector.Chromem.StoragePath)
	assert.True(t, cfg.Vector.Chromem.Compress)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.True(t, cfg.Scripting.Enabled)
	assert.Equal(t, []string{"./scripts"}, cfg.Scripting.Paths)
	assert.Equal(t, 500, cfg.Scripting.ScriptTimeoutMs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", `storage: [`},
		{"unknown storage type", "storage:\n  type: cassandra"},
		{"boltdb without path", "storage:\n  type: boltdb"},
		{"sqlite without dsn", "storage:\n  type: sqlite"},
		{"unknown vector backend", "vector:\n  backend: faiss"},
		{"pgvector without connection", "vector:\n  backend: pgvector"},
		{"unknown algorithm", "vector:\n  algorithm: chebyshev"},
		{"unknown embedding provider", "embedding:\n  provider: cohere"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromBytes_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AGENTDB_STORAGE_TYPE", "sqlite")
	t.Setenv("AGENTDB_SQL_DSN", "file:env.sqlite")
	t.Setenv("AGENTDB_LOG_LEVEL", "warn")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromBytes([]byte("storage:\n  type: memory"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "file:env.sqlite", cfg.Storage.SQL.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "sk-test", cfg.Embedding.OpenAI.APIKey)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector:\n  dimension: 16"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Vector.Dimension)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "engine", cfg.Vector.Backend)
	assert.Equal(t, 1536, cfg.Vector.Dimension)
	assert.Equal(t, "cosine", cfg.Vector.Algorithm)
}
