package state

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/storage"
)

// Key prefixes used in the backing store.
const (
	stateKeyPrefix    = "state/"
	snapshotKeyPrefix = "snapshot/"
)

// Config contains configuration options for the state manager.
type Config struct {
	// CacheSize is the number of recently loaded states kept in memory.
	CacheSize int
}

// DefaultConfig returns the default configuration for the state manager.
func DefaultConfig() Config {
	return Config{
		CacheSize: 128,
	}
}

// Manager owns the single live AgentState per agent id. All mutations of a
// given agent's state are serialized on a per-agent mutex, so the
// load-mutate-save sequence is atomic from the caller's point of view.
type Manager struct {
	store storage.Store
	cache *lru.Cache[uint64, *AgentState]

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewManager creates a new Manager on top of the given storage adapter.
func NewManager(store storage.Store, cfg Config) (*Manager, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}

	cache, err := lru.New[uint64, *AgentState](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to create state cache: %v", err)
	}

	log.Debug("Initialized state manager", "cache_size", cfg.CacheSize)

	return &Manager{
		store: store,
		cache: cache,
		locks: make(map[uint64]*sync.Mutex),
	}, nil
}

// agentLock returns the mutex serializing mutations for agentID.
func (m *Manager) agentLock(agentID uint64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[agentID] = l
	}
	return l
}

func stateKey(agentID uint64) []byte {
	return []byte(stateKeyPrefix + strconv.FormatUint(agentID, 10))
}

func snapshotKey(agentID uint64, name string) []byte {
	return []byte(snapshotKeyPrefix + strconv.FormatUint(agentID, 10) + "/" + name)
}

// Save creates or overwrites the single live state for an agent. The new
// record starts at version 1 with a freshly computed checksum.
func (m *Manager) Save(ctx context.Context, agentID, sessionID uint64, stateType StateType, data []byte) (*AgentState, error) {
	l := m.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	st := NewAgentState(agentID, sessionID, stateType, data)
	if err := m.persist(ctx, st); err != nil {
		return nil, err
	}

	log.DebugContext(ctx, "Saved agent state",
		"agent_id", agentID,
		"state_type", stateType,
		"bytes", len(data),
	)
	return st.Clone(), nil
}

// Load returns the live state for an agent, or (nil, nil) when the agent has
// no state. A stored record whose checksum no longer matches its data is
// surfaced as an internal error, never repaired.
func (m *Manager) Load(ctx context.Context, agentID uint64) (*AgentState, error) {
	if st, ok := m.cache.Get(agentID); ok {
		return st.Clone(), nil
	}

	// The cache fill holds the agent lock: a concurrent Delete or Save must
	// not have its outcome overwritten by a stale re-insert.
	l := m.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	if st, ok := m.cache.Get(agentID); ok {
		return st.Clone(), nil
	}

	st, err := m.fetch(ctx, agentID)
	if err != nil || st == nil {
		return nil, err
	}

	m.cache.Add(agentID, st)
	return st.Clone(), nil
}

// fetch reads and validates a state record from the backing store, bypassing
// the cache.
func (m *Manager) fetch(ctx context.Context, agentID uint64) (*AgentState, error) {
	raw, err := m.store.Get(ctx, stateKey(agentID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var st AgentState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to unmarshal state for agent %d: %v", agentID, err)
	}

	if !st.ValidateChecksum() {
		log.ErrorContext(ctx, "State checksum mismatch after load",
			"agent_id", agentID,
			"stored", st.Checksum,
			"computed", CalculateChecksum(st.Data),
		)
		return nil, errors.Wrap(errors.ErrChecksumMismatch, "agent %d", agentID)
	}

	return &st, nil
}

func (m *Manager) persist(ctx context.Context, st *AgentState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal state for agent %d: %v", st.AgentID, err)
	}
	if err := m.store.Put(ctx, stateKey(st.AgentID), raw); err != nil {
		return err
	}
	m.cache.Add(st.AgentID, st.Clone())
	return nil
}

// UpdateData replaces the data of an existing state, recomputing the
// checksum and bumping the version. Agents without state get ErrNotFound.
func (m *Manager) UpdateData(ctx context.Context, agentID uint64, newData []byte) (*AgentState, error) {
	l := m.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	st, err := m.fetch(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "agent %d", agentID)
	}

	st.UpdateData(newData)
	if err := m.persist(ctx, st); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// CompareAndSave stores st only if the currently stored version for the same
// agent equals expectedVersion (0 when no state exists yet). On success the
// stored record carries expectedVersion+1. A stale expectation is rejected
// with ErrConflict, closing the load-mutate-save race for callers that keep
// their own copies.
func (m *Manager) CompareAndSave(ctx context.Context, st *AgentState, expectedVersion uint32) error {
	l := m.agentLock(st.AgentID)
	l.Lock()
	defer l.Unlock()

	current, err := m.fetch(ctx, st.AgentID)
	if err != nil {
		return err
	}

	var currentVersion uint32
	if current != nil {
		currentVersion = current.Version
	}
	if currentVersion != expectedVersion {
		return errors.Wrap(errors.ErrConflict, "agent %d: expected version %d, have %d",
			st.AgentID, expectedVersion, currentVersion)
	}

	next := st.Clone()
	next.Version = expectedVersion + 1
	next.Checksum = CalculateChecksum(next.Data)
	next.UpdatedAt = time.Now().UTC()
	return m.persist(ctx, next)
}

// Compress RLE-encodes the agent's state data if that shrinks it. It
// reports whether the stored representation changed.
func (m *Manager) Compress(ctx context.Context, agentID uint64) (bool, error) {
	l := m.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	st, err := m.fetch(ctx, agentID)
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, errors.Wrap(errors.ErrNotFound, "agent %d", agentID)
	}

	if !st.Compress() {
		return false, nil
	}
	if err := m.persist(ctx, st); err != nil {
		return false, err
	}
	return true, nil
}

// Decompress restores the agent's state data from its RLE encoding. It is a
// no-op for states that are not compressed.
func (m *Manager) Decompress(ctx context.Context, agentID uint64) error {
	l := m.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	st, err := m.fetch(ctx, agentID)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.Wrap(errors.ErrNotFound, "agent %d", agentID)
	}

	if !st.Compressed {
		return nil
	}
	if err := st.Decompress(); err != nil {
		return err
	}
	return m.persist(ctx, st)
}

// CreateSnapshot returns a named deep copy of the agent's current state. The
// snapshot is not persisted; the caller decides where it goes (see
// SaveSnapshot).
func (m *Manager) CreateSnapshot(ctx context.Context, agentID uint64, name string) (*AgentState, error) {
	st, err := m.Load(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "agent %d", agentID)
	}
	return st.Snapshot(name), nil
}

// SaveSnapshot persists a snapshot under its agent id and name.
func (m *Manager) SaveSnapshot(ctx context.Context, snap *AgentState) error {
	name, ok := snap.GetMetadata(MetaSnapshotName)
	if !ok {
		return errors.Wrap(errors.ErrInvalidArgument, "state is not a snapshot")
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal snapshot: %v", err)
	}
	return m.store.Put(ctx, snapshotKey(snap.AgentID, name), raw)
}

// LoadSnapshot returns a previously saved snapshot, or (nil, nil) when no
// snapshot with that name exists.
func (m *Manager) LoadSnapshot(ctx context.Context, agentID uint64, name string) (*AgentState, error) {
	raw, err := m.store.Get(ctx, snapshotKey(agentID, name))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var snap AgentState
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to unmarshal snapshot: %v", err)
	}
	if !snap.ValidateChecksum() {
		return nil, errors.Wrap(errors.ErrChecksumMismatch, "snapshot %s of agent %d", name, agentID)
	}
	return &snap, nil
}

// Delete removes the live state for an agent. Deleting an absent state is
// not an error.
func (m *Manager) Delete(ctx context.Context, agentID uint64) error {
	l := m.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	m.cache.Remove(agentID)
	return m.store.Delete(ctx, stateKey(agentID))
}

// scanner returns the storage adapter's prefix-scan capability, if any.
func (m *Manager) scanner() (storage.Scanner, error) {
	sc, ok := m.store.(storage.Scanner)
	if !ok {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "storage adapter does not support prefix scans")
	}
	return sc, nil
}

// Count returns the number of live state records.
func (m *Manager) Count(ctx context.Context) (int, error) {
	sc, err := m.scanner()
	if err != nil {
		return 0, err
	}

	count := 0
	err = sc.ScanPrefix(ctx, []byte(stateKeyPrefix), func(_, _ []byte) error {
		count++
		return nil
	})
	return count, err
}

// ListByType returns every live state of the given type.
func (m *Manager) ListByType(ctx context.Context, stateType StateType) ([]*AgentState, error) {
	return m.list(ctx, func(st *AgentState) bool { return st.StateType == stateType })
}

// ListBySession returns every live state tagged with the given session id.
// The session id is informational only and does not fork agent identity.
func (m *Manager) ListBySession(ctx context.Context, sessionID uint64) ([]*AgentState, error) {
	return m.list(ctx, func(st *AgentState) bool { return st.SessionID == sessionID })
}

func (m *Manager) list(ctx context.Context, keep func(*AgentState) bool) ([]*AgentState, error) {
	sc, err := m.scanner()
	if err != nil {
		return nil, err
	}

	var states []*AgentState
	err = sc.ScanPrefix(ctx, []byte(stateKeyPrefix), func(_, value []byte) error {
		var st AgentState
		if err := json.Unmarshal(value, &st); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to unmarshal state: %v", err)
		}
		if keep(&st) {
			states = append(states, &st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// CleanupOlderThan deletes live states whose last update is older than age
// and returns how many were removed.
func (m *Manager) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age)

	stale, err := m.list(ctx, func(st *AgentState) bool { return st.UpdatedAt.Before(cutoff) })
	if err != nil {
		return 0, err
	}

	for _, st := range stale {
		if err := m.Delete(ctx, st.AgentID); err != nil {
			return 0, err
		}
	}

	if len(stale) > 0 {
		log.DebugContext(ctx, "Cleaned up stale agent states", "removed", len(stale))
	}
	return len(stale), nil
}
