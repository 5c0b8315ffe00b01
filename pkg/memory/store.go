package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/scripting"
	"github.com/lexlapax/agentdb/pkg/storage"
)

// memKeyPrefix is the key namespace for memory records. Sequence numbers are
// zero-padded so lexical key order matches numeric order.
const memKeyPrefix = "mem/"

func memKey(agentID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%d/%020d", memKeyPrefix, agentID, seq))
}

func agentPrefix(agentID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d/", memKeyPrefix, agentID))
}

// OrganizeConfig controls the consolidation pass.
type OrganizeConfig struct {
	// ImportanceThreshold: records below it are candidates for removal.
	ImportanceThreshold float32 `yaml:"importance_threshold"`

	// Retention: records accessed within this window are kept regardless of
	// importance.
	Retention time.Duration `yaml:"retention"`
}

// Config contains configuration options for the memory store.
type Config struct {
	// Dimension is the required embedding length; 0 disables the check.
	Dimension int `yaml:"dimension"`

	// DecayRate is the per-day exponential decay constant used by
	// retrieval ranking.
	DecayRate float64 `yaml:"decay_rate"`

	// Organize configures the consolidation pass.
	Organize OrganizeConfig `yaml:"organize"`
}

// DefaultConfig returns the default configuration for the memory store.
func DefaultConfig() Config {
	return Config{
		DecayRate: 0.01,
		Organize: OrganizeConfig{
			ImportanceThreshold: 0.2,
			Retention:           30 * 24 * time.Hour,
		},
	}
}

// Stats summarizes an agent's memories.
type Stats struct {
	TotalCount     int
	TypeCounts     map[MemoryType]int
	AvgImportance  float64
	AvgAccessCount float64
	TotalSizeBytes int
}

// Store owns typed, importance-scored memory records. Mutations of a given
// agent's records are serialized on a per-agent mutex, which makes Access an
// atomic increment-and-timestamp.
type Store struct {
	store  storage.ScanningStore
	seq    SequenceGenerator
	hooks  scripting.Engine
	config Config

	mu     sync.Mutex
	locks  map[uint64]*sync.Mutex
	seeded map[uint64]bool
}

// NewStore creates a memory store on the given storage adapter. seq may be
// nil, in which case an in-process sequence generator is used. hooks may be
// nil to disable Lua consolidation hooks.
func NewStore(store storage.ScanningStore, seq SequenceGenerator, hooks scripting.Engine, config Config) *Store {
	if seq == nil {
		seq = NewLocalSequence()
	}
	if config.DecayRate <= 0 {
		config.DecayRate = DefaultConfig().DecayRate
	}
	if config.Organize.Retention <= 0 {
		config.Organize.Retention = DefaultConfig().Organize.Retention
	}

	log.Debug("Initialized memory store",
		"dimension", config.Dimension,
		"decay_rate", config.DecayRate,
		"lua_hooks", hooks != nil,
	)

	return &Store{
		store:  store,
		seq:    seq,
		hooks:  hooks,
		config: config,
		locks:  make(map[uint64]*sync.Mutex),
		seeded: make(map[uint64]bool),
	}
}

func (s *Store) agentLock(agentID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

// seedSequence tells the sequence generator about records already on disk,
// so restarted processes never reuse an id. Called once per agent, under the
// agent lock.
func (s *Store) seedSequence(ctx context.Context, agentID uint64) error {
	s.mu.Lock()
	done := s.seeded[agentID]
	s.mu.Unlock()
	if done {
		return nil
	}

	err := s.store.ScanPrefix(ctx, agentPrefix(agentID), func(key, _ []byte) error {
		id := strings.TrimPrefix(string(key), string(agentPrefix(agentID)))
		var seq uint64
		if _, err := fmt.Sscanf(id, "%d", &seq); err == nil {
			s.seq.Observe(agentID, seq)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seeded[agentID] = true
	s.mu.Unlock()
	return nil
}

// Store persists a new memory record and returns its id. Importance is
// clamped to [0, 1]; the access count starts at zero.
func (s *Store) Store(ctx context.Context, mem *Memory) (string, error) {
	if mem.AgentID == 0 {
		return "", errors.Wrap(errors.ErrInvalidArgument, "memory requires an agent id")
	}
	if _, ok := ParseMemoryType(string(mem.Type)); !ok {
		return "", errors.Wrap(errors.ErrInvalidArgument, "unknown memory type %q", mem.Type)
	}
	if s.config.Dimension > 0 && len(mem.Embedding) > 0 && len(mem.Embedding) != s.config.Dimension {
		return "", errors.Wrap(errors.ErrInvalidArgument,
			"embedding length %d does not match configured dimension %d",
			len(mem.Embedding), s.config.Dimension)
	}

	l := s.agentLock(mem.AgentID)
	l.Lock()
	defer l.Unlock()

	if err := s.seedSequence(ctx, mem.AgentID); err != nil {
		return "", err
	}

	seq := s.seq.Next(mem.AgentID)
	now := time.Now().UTC()

	mem.ID = memoryID(mem.AgentID, seq)
	mem.Importance = clampImportance(mem.Importance)
	mem.CreatedAt = now
	mem.LastAccessedAt = now
	mem.AccessCount = 0
	if mem.Metadata == nil {
		mem.Metadata = make(map[string]string)
	}

	if err := s.persist(ctx, mem, seq); err != nil {
		return "", err
	}

	log.DebugContext(ctx, "Stored memory",
		"memory_id", mem.ID,
		"agent_id", mem.AgentID,
		"type", mem.Type,
		"importance", mem.Importance,
	)
	return mem.ID, nil
}

func (s *Store) persist(ctx context.Context, mem *Memory, seq uint64) error {
	raw, err := json.Marshal(mem)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal memory %s: %v", mem.ID, err)
	}
	return s.store.Put(ctx, memKey(mem.AgentID, seq), raw)
}

// Get returns the record with the given id, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	agentID, seq, err := parseMemoryID(id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "%v", err)
	}

	raw, err := s.store.Get(ctx, memKey(agentID, seq))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var mem Memory
	if err := json.Unmarshal(raw, &mem); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to unmarshal memory %s: %v", id, err)
	}
	return &mem, nil
}

// Access atomically increments the access count and refreshes the
// last-access timestamp of a record. Unknown ids get ErrNotFound: unlike a
// query, a mutation names a record that must exist.
func (s *Store) Access(ctx context.Context, id string) (*Memory, error) {
	agentID, seq, err := parseMemoryID(id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "%v", err)
	}

	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	mem, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "memory %s", id)
	}

	mem.Access()
	if err := s.persist(ctx, mem, seq); err != nil {
		return nil, err
	}
	return mem, nil
}

// UpdateImportance overwrites a record's importance, clamped to [0, 1].
func (s *Store) UpdateImportance(ctx context.Context, id string, importance float32) error {
	agentID, seq, err := parseMemoryID(id)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidArgument, "%v", err)
	}

	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	mem, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if mem == nil {
		return errors.Wrap(errors.ErrNotFound, "memory %s", id)
	}

	mem.Importance = clampImportance(importance)
	return s.persist(ctx, mem, seq)
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	agentID, seq, err := parseMemoryID(id)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidArgument, "%v", err)
	}
	return s.store.Delete(ctx, memKey(agentID, seq))
}

// forEach decodes every record of an agent. Absence of records is a normal
// state; the callback simply never runs.
func (s *Store) forEach(ctx context.Context, agentID uint64, fn func(*Memory) error) error {
	return s.store.ScanPrefix(ctx, agentPrefix(agentID), func(_, value []byte) error {
		var mem Memory
		if err := json.Unmarshal(value, &mem); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to unmarshal memory record: %v", err)
		}
		return fn(&mem)
	})
}

// Retrieve returns up to limit records for an agent, ranked by importance
// combined with lazy recency decay. Expired records are skipped. Unknown
// agents get an empty result, not an error.
func (s *Store) Retrieve(ctx context.Context, agentID uint64, limit int) ([]*Memory, error) {
	now := time.Now().UTC()

	var memories []*Memory
	err := s.forEach(ctx, agentID, func(mem *Memory) error {
		if !mem.Expired(now) {
			memories = append(memories, mem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].RetrievalScore(now, s.config.DecayRate) >
			memories[j].RetrievalScore(now, s.config.DecayRate)
	})

	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// Search returns up to limit records whose content contains query,
// case-insensitively. Semantic ranking is deliberately not done here: it is
// a separate call into the vector engine whose results the caller merges.
func (s *Store) Search(ctx context.Context, agentID uint64, query string, limit int) ([]*Memory, error) {
	now := time.Now().UTC()
	needle := strings.ToLower(query)

	var memories []*Memory
	err := s.forEach(ctx, agentID, func(mem *Memory) error {
		if mem.Expired(now) {
			return nil
		}
		if needle == "" || strings.Contains(strings.ToLower(mem.Content), needle) {
			memories = append(memories, mem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// ByType returns up to limit records of one memory type for an agent.
func (s *Store) ByType(ctx context.Context, agentID uint64, memoryType MemoryType, limit int) ([]*Memory, error) {
	var memories []*Memory
	err := s.forEach(ctx, agentID, func(mem *Memory) error {
		if mem.Type == memoryType {
			memories = append(memories, mem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// Organize runs the consolidation pass for an agent: expired records are
// removed, and records are dropped when their importance is below the
// configured threshold AND their last access is older than the retention
// window, unless pinned. Returns how many records were removed.
func (s *Store) Organize(ctx context.Context, agentID uint64) (int, error) {
	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	policy := s.organizePolicy(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-policy.Retention)

	var doomed []*Memory
	err := s.forEach(ctx, agentID, func(mem *Memory) error {
		if mem.Pinned() {
			return nil
		}
		if mem.Expired(now) {
			doomed = append(doomed, mem)
			return nil
		}
		if mem.Importance < policy.ImportanceThreshold && mem.LastAccessedAt.Before(cutoff) {
			doomed = append(doomed, mem)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, mem := range doomed {
		if err := s.Delete(ctx, mem.ID); err != nil {
			return 0, err
		}
	}

	s.afterOrganizeHook(ctx, agentID, len(doomed))

	if len(doomed) > 0 {
		log.DebugContext(ctx, "Consolidated memories",
			"agent_id", agentID,
			"removed", len(doomed),
			"importance_threshold", policy.ImportanceThreshold,
		)
	}
	return len(doomed), nil
}

// CleanupExpired removes every expired record of an agent.
func (s *Store) CleanupExpired(ctx context.Context, agentID uint64) (int, error) {
	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	now := time.Now().UTC()
	var doomed []string
	err := s.forEach(ctx, agentID, func(mem *Memory) error {
		if mem.Expired(now) {
			doomed = append(doomed, mem.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range doomed {
		if err := s.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

// Stats summarizes an agent's records.
func (s *Store) Stats(ctx context.Context, agentID uint64) (*Stats, error) {
	stats := &Stats{TypeCounts: make(map[MemoryType]int)}

	var totalImportance float64
	var totalAccess uint64
	err := s.forEach(ctx, agentID, func(mem *Memory) error {
		stats.TotalCount++
		stats.TypeCounts[mem.Type]++
		stats.TotalSizeBytes += len(mem.Content)
		totalImportance += float64(mem.Importance)
		totalAccess += uint64(mem.AccessCount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stats.TotalCount > 0 {
		stats.AvgImportance = totalImportance / float64(stats.TotalCount)
		stats.AvgAccessCount = float64(totalAccess) / float64(stats.TotalCount)
	}
	return stats, nil
}

// MergeSimilar combines pairs of an agent's records whose weighted
// similarity (type, word overlap, closeness in time, embedding cosine)
// exceeds threshold. The merged record keeps the earlier creation time, sums
// access counts, and gets a slightly boosted averaged importance. Returns
// how many merges happened.
func (s *Store) MergeSimilar(ctx context.Context, agentID uint64, threshold float32) (int, error) {
	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	// Merged records get fresh ids, so the generator must know about every
	// sequence number already on disk before minting one.
	if err := s.seedSequence(ctx, agentID); err != nil {
		return 0, err
	}

	var memories []*Memory
	if err := s.forEach(ctx, agentID, func(mem *Memory) error {
		memories = append(memories, mem)
		return nil
	}); err != nil {
		return 0, err
	}

	merged := 0
	consumed := make(map[string]bool)

	for i := 0; i < len(memories); i++ {
		if consumed[memories[i].ID] {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			if consumed[memories[j].ID] {
				continue
			}
			if memorySimilarity(memories[i], memories[j]) <= threshold {
				continue
			}

			combined := mergeMemories(memories[i], memories[j])
			if err := s.Delete(ctx, memories[i].ID); err != nil {
				return merged, err
			}
			if err := s.Delete(ctx, memories[j].ID); err != nil {
				return merged, err
			}

			seq := s.seq.Next(agentID)
			combined.ID = memoryID(agentID, seq)
			if err := s.persist(ctx, combined, seq); err != nil {
				return merged, err
			}

			consumed[memories[i].ID] = true
			consumed[memories[j].ID] = true
			merged++
			break
		}
	}
	return merged, nil
}

// Network maps each of an agent's records to the ids of the other records
// whose weighted similarity exceeds threshold. The result is a read-only
// projection; nothing is mutated.
func (s *Store) Network(ctx context.Context, agentID uint64, threshold float32) (map[string][]string, error) {
	var memories []*Memory
	if err := s.forEach(ctx, agentID, func(mem *Memory) error {
		memories = append(memories, mem)
		return nil
	}); err != nil {
		return nil, err
	}

	network := make(map[string][]string, len(memories))
	for i := range memories {
		connections := []string{}
		for j := range memories {
			if i == j {
				continue
			}
			if memorySimilarity(memories[i], memories[j]) > threshold {
				connections = append(connections, memories[j].ID)
			}
		}
		network[memories[i].ID] = connections
	}
	return network, nil
}

// TrimToCount caps an agent's records at maxRecords, dropping the lowest
// scored first (importance plus a small access-count bonus). The cap is
// absolute: pinned records compete on score like any other. Returns how many
// records were removed.
func (s *Store) TrimToCount(ctx context.Context, agentID uint64, maxRecords int) (int, error) {
	if maxRecords < 0 {
		return 0, errors.Wrap(errors.ErrInvalidArgument, "max records must be non-negative, got %d", maxRecords)
	}

	l := s.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	var memories []*Memory
	if err := s.forEach(ctx, agentID, func(mem *Memory) error {
		memories = append(memories, mem)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(memories) <= maxRecords {
		return 0, nil
	}

	score := func(mem *Memory) float32 {
		return mem.Importance + float32(mem.AccessCount)*0.1
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return score(memories[i]) > score(memories[j])
	})

	removed := 0
	for _, mem := range memories[maxRecords:] {
		if err := s.Delete(ctx, mem.ID); err != nil {
			return removed, err
		}
		removed++
	}

	log.DebugContext(ctx, "Trimmed memories",
		"agent_id", agentID,
		"removed", removed,
		"remaining", maxRecords,
	)
	return removed, nil
}
