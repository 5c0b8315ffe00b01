// Package state implements versioned, checksummed, optionally-compressed
// binary state per agent. Exactly one live AgentState exists per agent id;
// snapshots are independent deep copies.
package state

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// StateType classifies the payload of an agent state record.
type StateType string

// State types
const (
	WorkingMemory  StateType = "working_memory"
	LongTermMemory StateType = "long_term_memory"
	Context        StateType = "context"
	TaskState      StateType = "task_state"
	Relationship   StateType = "relationship"
	Embedding      StateType = "embedding"
)

// ParseStateType converts a string to a StateType, reporting whether the
// string names a known type.
func ParseStateType(s string) (StateType, bool) {
	switch StateType(s) {
	case WorkingMemory, LongTermMemory, Context, TaskState, Relationship, Embedding:
		return StateType(s), true
	}
	return "", false
}

// Metadata keys managed by this package.
const (
	// MetaCompressed is set to "true" while Data holds the RLE encoding.
	MetaCompressed = "compressed"

	// MetaSnapshotName carries the name given to a snapshot.
	MetaSnapshotName = "snapshot_name"

	// MetaIsSnapshot is set to "true" on snapshot copies.
	MetaIsSnapshot = "is_snapshot"
)

// AgentState is one agent's current durable state.
//
// The checksum always covers the current representation of Data, compressed
// or not. Version increases by exactly one per successful mutation and never
// decreases.
type AgentState struct {
	ID         string            `json:"id"`
	AgentID    uint64            `json:"agent_id"`
	SessionID  uint64            `json:"session_id"`
	StateType  StateType         `json:"state_type"`
	Data       []byte            `json:"data"`
	Version    uint32            `json:"version"`
	Checksum   uint32            `json:"checksum"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Metadata   map[string]string `json:"metadata"`
	Compressed bool              `json:"compressed"`
}

// NewAgentState creates a fresh state record at version 1 with the checksum
// computed over data.
func NewAgentState(agentID, sessionID uint64, stateType StateType, data []byte) *AgentState {
	now := time.Now().UTC()
	return &AgentState{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		SessionID: sessionID,
		StateType: stateType,
		Data:      data,
		Version:   1,
		Checksum:  CalculateChecksum(data),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]string),
	}
}

// CalculateChecksum returns the unsigned 32-bit wrapping sum of data. It is
// tamper evidence against accidental corruption only, not cryptographic.
func CalculateChecksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// ValidateChecksum recomputes the checksum over the current Data and
// compares it with the stored value.
func (s *AgentState) ValidateChecksum() bool {
	return CalculateChecksum(s.Data) == s.Checksum
}

// UpdateData replaces Data, recomputes the checksum, increments the version
// and refreshes the update timestamp.
func (s *AgentState) UpdateData(newData []byte) {
	s.Data = newData
	s.Checksum = CalculateChecksum(newData)
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// SetMetadata stores value under key, replacing any prior value.
func (s *AgentState) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}

// GetMetadata returns the value stored under key and whether it was present.
func (s *AgentState) GetMetadata(key string) (string, bool) {
	value, ok := s.Metadata[key]
	return value, ok
}

// Compress applies RLE encoding to Data if, and only if, the encoded result
// is strictly smaller. It reports whether the data was replaced. Compression
// is opportunistic: a failure to shrink leaves the state untouched.
func (s *AgentState) Compress() bool {
	if s.Compressed {
		return false
	}

	encoded := rleEncode(s.Data)
	if len(encoded) >= len(s.Data) {
		return false
	}

	s.Data = encoded
	s.Checksum = CalculateChecksum(encoded)
	s.Compressed = true
	s.SetMetadata(MetaCompressed, "true")
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	return true
}

// Decompress reverses the RLE encoding. It is a no-op unless the compressed
// flag is set.
func (s *AgentState) Decompress() error {
	if !s.Compressed {
		return nil
	}

	decoded, err := rleDecode(s.Data)
	if err != nil {
		return err
	}

	s.Data = decoded
	s.Checksum = CalculateChecksum(decoded)
	s.Compressed = false
	delete(s.Metadata, MetaCompressed)
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Snapshot returns an independently-owned deep copy tagged with name. The
// copy gets a new identity and a version one past the source; the source is
// not mutated and the copy is not persisted.
func (s *AgentState) Snapshot(name string) *AgentState {
	snap := s.Clone()
	snap.ID = uuid.New().String()
	snap.Version = s.Version + 1
	snap.SetMetadata(MetaSnapshotName, name)
	snap.SetMetadata(MetaIsSnapshot, "true")
	return snap
}

// Clone returns a deep copy of the state, sharing no storage with the
// original.
func (s *AgentState) Clone() *AgentState {
	data := make([]byte, len(s.Data))
	copy(data, s.Data)

	metadata := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		metadata[k] = v
	}

	clone := *s
	clone.Data = data
	clone.Metadata = metadata
	return &clone
}

// Equal reports structural equality on (agent_id, session_id, state_type,
// data, checksum). It is used for idempotency verification, not identity.
func (s *AgentState) Equal(other *AgentState) bool {
	if other == nil {
		return false
	}
	return s.AgentID == other.AgentID &&
		s.SessionID == other.SessionID &&
		s.StateType == other.StateType &&
		s.Checksum == other.Checksum &&
		bytes.Equal(s.Data, other.Data)
}
