// Package memory implements the typed, importance-scored memory record
// store with access tracking, retrieval ranking and consolidation.
package memory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryType classifies a memory record.
type MemoryType string

// Memory types
const (
	Episodic   MemoryType = "episodic"
	Semantic   MemoryType = "semantic"
	Procedural MemoryType = "procedural"
	Working    MemoryType = "working"
)

// ParseMemoryType converts a string to a MemoryType, reporting whether the
// string names a known type.
func ParseMemoryType(s string) (MemoryType, bool) {
	switch MemoryType(s) {
	case Episodic, Semantic, Procedural, Working:
		return MemoryType(s), true
	}
	return "", false
}

// MetaPinned marks a record that the consolidation pass must never drop.
const MetaPinned = "pinned"

// Memory is one recollection belonging to an agent.
type Memory struct {
	// ID is derived from the agent id and a per-agent sequence number
	// ("<agent_id>-<seq>"), so it is unique and the storage key can be
	// recovered from it.
	ID             string            `json:"id"`
	AgentID        uint64            `json:"agent_id"`
	Type           MemoryType        `json:"memory_type"`
	Content        string            `json:"content"`
	Importance     float32           `json:"importance"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    uint32            `json:"access_count"`
	Embedding      []float32         `json:"embedding,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Access records a read of this memory: the access count goes up by one and
// the last-access timestamp is refreshed. This is the only place recency
// signals are updated.
func (m *Memory) Access() {
	m.AccessCount++
	m.LastAccessedAt = time.Now().UTC()
}

// Pinned reports whether the record is protected from consolidation.
func (m *Memory) Pinned() bool {
	return m.Metadata[MetaPinned] == "true"
}

// Expired reports whether the record's optional expiry has passed.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// RetrievalScore combines stored importance with an exponential decay over
// the time since last access. Decay is computed lazily at query time and is
// never materialized into stored state, so no background scheduler exists.
// decayRate is the per-day decay constant.
func (m *Memory) RetrievalScore(now time.Time, decayRate float64) float64 {
	ageDays := now.Sub(m.LastAccessedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return float64(m.Importance) * math.Exp(-decayRate*ageDays)
}

// clampImportance forces v into [0, 1].
func clampImportance(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// memoryID formats the derived record id.
func memoryID(agentID, seq uint64) string {
	return fmt.Sprintf("%d-%d", agentID, seq)
}

// parseMemoryID recovers the agent id and sequence number from a record id.
func parseMemoryID(id string) (agentID, seq uint64, err error) {
	agentStr, seqStr, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed memory id %q", id)
	}
	agentID, err = strconv.ParseUint(agentStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed memory id %q: %v", id, err)
	}
	seq, err = strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed memory id %q: %v", id, err)
	}
	return agentID, seq, nil
}

// SequenceGenerator hands out per-agent monotonic sequence numbers for
// memory ids. It is an explicit collaborator rather than a process-wide
// counter so embedding applications control id allocation.
type SequenceGenerator interface {
	// Next returns the next unused sequence number for an agent.
	Next(agentID uint64) uint64

	// Observe tells the generator that seq is already in use for an agent,
	// so Next never hands it out again.
	Observe(agentID, seq uint64)
}

// LocalSequence is the default in-process SequenceGenerator.
type LocalSequence struct {
	mu   sync.Mutex
	last map[uint64]uint64
}

// NewLocalSequence creates an empty LocalSequence.
func NewLocalSequence() *LocalSequence {
	return &LocalSequence{last: make(map[uint64]uint64)}
}

// Next implements the SequenceGenerator interface.
func (l *LocalSequence) Next(agentID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[agentID]++
	return l.last[agentID]
}

// Observe implements the SequenceGenerator interface.
func (l *LocalSequence) Observe(agentID, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.last[agentID] {
		l.last[agentID] = seq
	}
}
