package agentdb

import (
	"context"
	"strconv"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/memory"
	"github.com/lexlapax/agentdb/pkg/state"
)

// SaveState persists a fresh state record for an agent, replacing any
// previous live state.
func (c *Client) SaveState(ctx context.Context, agentID, sessionID uint64, stateType state.StateType, data []byte) (*state.AgentState, error) {
	return c.states.Save(ctx, agentID, sessionID, stateType, data)
}

// LoadState returns the live state of an agent.
func (c *Client) LoadState(ctx context.Context, agentID uint64) (*state.AgentState, error) {
	return c.states.Load(ctx, agentID)
}

// UpdateState replaces the data of an agent's live state, bumping its
// version.
func (c *Client) UpdateState(ctx context.Context, agentID uint64, data []byte) (*state.AgentState, error) {
	return c.states.UpdateData(ctx, agentID, data)
}

// CreateSnapshot persists a named point-in-time copy of an agent's state.
func (c *Client) CreateSnapshot(ctx context.Context, agentID uint64, name string) (*state.AgentState, error) {
	snap, err := c.states.CreateSnapshot(ctx, agentID, name)
	if err != nil {
		return nil, err
	}
	if err := c.states.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadSnapshot returns a previously created named snapshot.
func (c *Client) LoadSnapshot(ctx context.Context, agentID uint64, name string) (*state.AgentState, error) {
	return c.states.LoadSnapshot(ctx, agentID, name)
}

// RememberOptions carries the optional attributes of a new memory record.
type RememberOptions struct {
	// Importance in [0, 1]; zero means unimportant, not unset.
	Importance float32

	// Pinned protects the record from consolidation.
	Pinned bool

	// Metadata is attached to the record verbatim.
	Metadata map[string]string
}

// Remember stores a new memory record and, when an embedder is configured,
// indexes its content for semantic recall. Indexing failure does not lose
// the record: the memory is durable first, searchable second.
func (c *Client) Remember(ctx context.Context, agentID uint64, memoryType memory.MemoryType, content string, opts RememberOptions) (string, error) {
	mem := &memory.Memory{
		AgentID:    agentID,
		Type:       memoryType,
		Content:    content,
		Importance: opts.Importance,
		Metadata:   opts.Metadata,
	}
	if opts.Pinned {
		if mem.Metadata == nil {
			mem.Metadata = make(map[string]string)
		}
		mem.Metadata[memory.MetaPinned] = "true"
	}

	if c.embedder != nil {
		embeddings, err := c.embedder.Embed(ctx, []string{content})
		if err != nil {
			log.WarnContext(ctx, "Failed to embed memory content, storing without embedding",
				"agent_id", agentID, "error", err)
		} else if len(embeddings) == 1 {
			mem.Embedding = embeddings[0]
		}
	}

	id, err := c.memories.Store(ctx, mem)
	if err != nil {
		return "", err
	}

	if len(mem.Embedding) > 0 {
		indexErr := c.index.AddVector(ctx, vectorID(id), mem.Embedding, map[string]string{
			MetaMemoryID: id,
			"agent_id":   strconv.FormatUint(agentID, 10),
		})
		if indexErr != nil {
			log.WarnContext(ctx, "Failed to index memory embedding",
				"memory_id", id, "error", indexErr)
		}
	}
	return id, nil
}

// Recall returns an agent's most relevant memories, ranked by importance
// with recency decay.
func (c *Client) Recall(ctx context.Context, agentID uint64, limit int) ([]*memory.Memory, error) {
	return c.memories.Retrieve(ctx, agentID, limit)
}

// SearchKeyword returns an agent's memories whose content contains the
// query text.
func (c *Client) SearchKeyword(ctx context.Context, agentID uint64, query string, limit int) ([]*memory.Memory, error) {
	return c.memories.Search(ctx, agentID, query, limit)
}

// RecallSemantic embeds the query and returns the agent's memories closest
// to it in embedding space. Hits whose backing record is gone (for example
// removed by consolidation) are dropped from the result and lazily evicted
// from the index.
func (c *Client) RecallSemantic(ctx context.Context, agentID uint64, query string, limit int) ([]*memory.Memory, error) {
	if c.embedder == nil {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "semantic recall requires an embedding provider")
	}

	embeddings, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, errors.Wrap(errors.ErrInternal, "embedder returned %d embeddings for one query", len(embeddings))
	}

	// Over-fetch so hits belonging to other agents or deleted records can
	// be filtered out without starving the result.
	fetch := limit * 4
	if fetch <= 0 {
		fetch = 40
	}
	hits, err := c.index.Search(ctx, embeddings[0], fetch)
	if err != nil {
		return nil, err
	}

	agentStr := strconv.FormatUint(agentID, 10)
	var memories []*memory.Memory
	for _, hit := range hits {
		if hit.Metadata["agent_id"] != agentStr {
			continue
		}
		memID := hit.Metadata[MetaMemoryID]
		if memID == "" {
			continue
		}

		mem, err := c.memories.Get(ctx, memID)
		if err != nil {
			return nil, err
		}
		if mem == nil {
			if delErr := c.index.DeleteVector(ctx, hit.ID); delErr != nil {
				log.WarnContext(ctx, "Failed to evict dangling vector",
					"vector_id", hit.ID, "error", delErr)
			}
			continue
		}

		memories = append(memories, mem)
		if limit > 0 && len(memories) >= limit {
			break
		}
	}
	return memories, nil
}

// Forget removes a memory record together with its index entry.
func (c *Client) Forget(ctx context.Context, id string) error {
	if err := c.memories.Delete(ctx, id); err != nil {
		return err
	}
	return c.index.DeleteVector(ctx, vectorID(id))
}

// Organize runs the memory consolidation pass for an agent and returns how
// many records were removed.
func (c *Client) Organize(ctx context.Context, agentID uint64) (int, error) {
	return c.memories.Organize(ctx, agentID)
}

// MemoryStats summarizes an agent's memories.
func (c *Client) MemoryStats(ctx context.Context, agentID uint64) (*memory.Stats, error) {
	return c.memories.Stats(ctx, agentID)
}
