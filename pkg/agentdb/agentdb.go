// Package agentdb is the facade for the agentdb library: an embedded store
// for durable agent state, scored memory records and vector similarity
// search, wired together from configuration.
package agentdb

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lexlapax/agentdb/pkg/config"
	"github.com/lexlapax/agentdb/pkg/embed"
	embedMock "github.com/lexlapax/agentdb/pkg/embed/mock"
	embedOpenAI "github.com/lexlapax/agentdb/pkg/embed/openai"
	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/memory"
	"github.com/lexlapax/agentdb/pkg/scripting"
	"github.com/lexlapax/agentdb/pkg/state"
	"github.com/lexlapax/agentdb/pkg/storage"
	"github.com/lexlapax/agentdb/pkg/storage/boltdb"
	memstore "github.com/lexlapax/agentdb/pkg/storage/memory"
	"github.com/lexlapax/agentdb/pkg/storage/sqlstore"
	"github.com/lexlapax/agentdb/pkg/vector"
	"github.com/lexlapax/agentdb/pkg/vector/chromem"
	"github.com/lexlapax/agentdb/pkg/vector/pgvector"
)

// MetaMemoryID is the vector metadata key linking an indexed vector back to
// its memory record.
const MetaMemoryID = "memory_id"

// Client is the main entry point for the agentdb library.
type Client struct {
	store    storage.ScanningStore
	states   *state.Manager
	memories *memory.Store
	index    vector.Index
	embedder embed.Embedder
	scripts  scripting.Engine

	closers []func() error
}

// NewFromConfig builds a fully wired client from configuration.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if cfg.Logging.Level != "" || cfg.Logging.Format != "" {
		log.Setup(log.Config{
			Level:  log.Level(cfg.Logging.Level),
			Format: log.Format(cfg.Logging.Format),
		})
	}

	client := &Client{}

	store, err := client.initStorage(cfg)
	if err != nil {
		return nil, err
	}
	client.store = store

	scriptEngine, err := client.initScripting(cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	client.scripts = scriptEngine

	states, err := state.NewManager(store, state.Config{CacheSize: cfg.State.CacheSize})
	if err != nil {
		client.Close()
		return nil, err
	}
	client.states = states

	client.memories = memory.NewStore(store, nil, scriptEngine, memory.Config{
		Dimension: cfg.Vector.Dimension,
		DecayRate: cfg.Memory.DecayRate,
		Organize: memory.OrganizeConfig{
			ImportanceThreshold: cfg.Memory.ImportanceThreshold,
			Retention:           time.Duration(cfg.Memory.RetentionDays) * 24 * time.Hour,
		},
	})

	index, err := client.initVectorIndex(ctx, cfg, store)
	if err != nil {
		client.Close()
		return nil, err
	}
	client.index = index

	embedder, err := initEmbedder(cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	client.embedder = embedder

	log.Info("agentdb client initialized",
		"storage", cfg.Storage.Type,
		"vector_backend", cfg.Vector.Backend,
		"embedding_provider", cfg.Embedding.Provider,
		"scripting", cfg.Scripting.Enabled,
	)
	return client, nil
}

// initStorage opens the configured key-value backend.
func (c *Client) initStorage(cfg *config.Config) (storage.ScanningStore, error) {
	switch strings.ToLower(cfg.Storage.Type) {
	case "", "memory":
		return memstore.NewMemoryStore(), nil

	case "boltdb":
		path := cfg.Storage.BoltDB.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrIO, "failed to create directory for bolt database: %v", err)
		}
		store, err := boltdb.Open(path)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		if err := store.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return store, nil

	case "sqlite":
		dbPath := cfg.Storage.SQL.DSN
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrIO, "failed to create directory for sqlite database: %v", err)
		}
		store, err := sqlstore.Open("sqlite3", dbPath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil

	case "postgres":
		store, err := sqlstore.Open("postgres", cfg.Storage.SQL.DSN)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil

	default:
		return nil, errors.Wrap(errors.ErrInvalidArgument, "unsupported storage type %q", cfg.Storage.Type)
	}
}

// initScripting creates the Lua engine and loads configured script
// directories. Returns nil when scripting is disabled.
func (c *Client) initScripting(cfg *config.Config) (scripting.Engine, error) {
	if !cfg.Scripting.Enabled {
		return nil, nil
	}

	engine, err := scripting.NewLuaEngine(scripting.Config{
		EnableSandboxing: cfg.Scripting.EnableSandboxing,
		ScriptTimeoutMs:  cfg.Scripting.ScriptTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, engine.Close)

	for _, dir := range cfg.Scripting.Paths {
		if err := engine.LoadScriptDir(dir); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// initVectorIndex creates the configured vector index backend.
func (c *Client) initVectorIndex(ctx context.Context, cfg *config.Config, store storage.ScanningStore) (vector.Index, error) {
	algorithm, _ := vector.ParseAlgorithm(strings.ToLower(cfg.Vector.Algorithm))

	switch strings.ToLower(cfg.Vector.Backend) {
	case "", "engine":
		engine, err := vector.NewEngine(cfg.Vector.Dimension, algorithm, store)
		if err != nil {
			return nil, err
		}
		if err := engine.Load(ctx); err != nil {
			return nil, err
		}
		return engine, nil

	case "chromem":
		if path := cfg.Vector.Chromem.StoragePath; path != "" {
			idx, err := chromem.NewPersistentChromemIndex(path, cfg.Vector.Dimension, cfg.Vector.Chromem.Compress)
			if err != nil {
				return nil, err
			}
			c.closers = append(c.closers, idx.Close)
			return idx, nil
		}
		return chromem.NewChromemIndex(cfg.Vector.Dimension)

	case "pgvector":
		idx, err := pgvector.NewPgvectorIndex(ctx, pgvector.Config{
			ConnectionString: cfg.Vector.PgVector.ConnectionString,
			TableName:        cfg.Vector.PgVector.TableName,
			Dimension:        cfg.Vector.Dimension,
			Algorithm:        algorithm,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, idx.Close)
		return idx, nil

	default:
		return nil, errors.Wrap(errors.ErrInvalidArgument, "unsupported vector backend %q", cfg.Vector.Backend)
	}
}

// initEmbedder creates the configured embedding provider, nil when disabled.
func initEmbedder(cfg *config.Config) (embed.Embedder, error) {
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "":
		return nil, nil
	case "mock":
		return embedMock.NewMockEmbedder(cfg.Vector.Dimension), nil
	case "openai":
		return embedOpenAI.NewOpenAIEmbedder(embedOpenAI.Config{
			APIKey:    cfg.Embedding.OpenAI.APIKey,
			Model:     cfg.Embedding.OpenAI.EmbeddingModel,
			Dimension: cfg.Vector.Dimension,
		})
	default:
		return nil, errors.Wrap(errors.ErrInvalidArgument, "unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

// States exposes the agent state manager.
func (c *Client) States() *state.Manager {
	return c.states
}

// Memories exposes the memory record store.
func (c *Client) Memories() *memory.Store {
	return c.memories
}

// Vectors exposes the vector index.
func (c *Client) Vectors() vector.Index {
	return c.index
}

// Close releases every resource the client owns, in reverse order of
// creation.
func (c *Client) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

// vectorID derives the stable vector index id for a memory record id. The
// FNV-1a hash keeps the mapping stateless: no lookup table has to survive a
// restart.
func vectorID(memoryID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(memoryID))
	return h.Sum64()
}

