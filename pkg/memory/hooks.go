package memory

import (
	"context"
	"errors"
	"time"

	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/scripting"
)

const (
	// beforeOrganizeFuncName is the name of the Lua function to call before a consolidation pass
	beforeOrganizeFuncName = "before_organize"

	// afterOrganizeFuncName is the name of the Lua function to call after a consolidation pass
	afterOrganizeFuncName = "after_organize"
)

// organizePolicy resolves the effective consolidation policy. If a
// before_organize Lua hook is loaded it may override the importance threshold
// and retention window; hook failures fall back to the configured policy.
func (s *Store) organizePolicy(ctx context.Context) OrganizeConfig {
	policy := s.config.Organize
	if s.hooks == nil {
		return policy
	}

	policyMap := map[string]interface{}{
		"importance_threshold": float64(policy.ImportanceThreshold),
		"retention_days":       policy.Retention.Hours() / 24,
	}

	result, err := s.hooks.ExecuteFunction(ctx, beforeOrganizeFuncName, policyMap)
	if err != nil {
		// If the function doesn't exist, that's ok - just continue
		if errors.Is(err, scripting.ErrFunctionNotFound) {
			return policy
		}
		// Log the error but don't fail the operation
		log.WarnContext(ctx, "Error calling Lua hook",
			"hook", beforeOrganizeFuncName,
			"error", err)
		return policy
	}

	resultMap, ok := result.(map[string]interface{})
	if !ok {
		return policy
	}

	if threshold, ok := resultMap["importance_threshold"].(float64); ok {
		policy.ImportanceThreshold = clampImportance(float32(threshold))
	}
	if days, ok := resultMap["retention_days"].(float64); ok && days > 0 {
		policy.Retention = time.Duration(days * 24 * float64(time.Hour))
	}
	return policy
}

// afterOrganizeHook notifies the after_organize Lua hook, when loaded, of the
// outcome of a consolidation pass. The hook is informational only.
func (s *Store) afterOrganizeHook(ctx context.Context, agentID uint64, removed int) {
	if s.hooks == nil {
		return
	}

	_, err := s.hooks.ExecuteFunction(ctx, afterOrganizeFuncName, map[string]interface{}{
		"agent_id": float64(agentID),
		"removed":  float64(removed),
	})
	if err != nil && !errors.Is(err, scripting.ErrFunctionNotFound) {
		log.WarnContext(ctx, "Error calling Lua hook",
			"hook", afterOrganizeFuncName,
			"error", err)
	}
}
