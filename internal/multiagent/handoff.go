package multiagent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weave-logic-ai/weft/internal/bus"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// HandoffTTL bounds how long a handoff message may sit unread in a
// target agent's inbox before it expires (spec.md §4.2's TTL model).
const HandoffTTL = 5 * time.Minute

// Engine resolves and executes handoffs by sending InterAgentMessage
// values over an AgentBus. It owns no state of its own beyond the
// registry and bus references — the bus already tracks inboxes and
// expiry counts.
type Engine struct {
	registry *Registry
	bus      *bus.AgentBus
	now      func() time.Time
}

// NewEngine constructs a handoff engine over registry and agentBus.
func NewEngine(registry *Registry, agentBus *bus.AgentBus, nowFn func() time.Time) *Engine {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{registry: registry, bus: agentBus, now: nowFn}
}

// TryHandoff evaluates fromAgentID's handoff rules against content and,
// if one matches, builds and sends the corresponding InterAgentMessage.
// It returns (false, nil) when no rule matches — that is not an error,
// it means the sending agent keeps control.
func (e *Engine) TryHandoff(ctx context.Context, fromAgentID, content string, sharedContext map[string]any) (bool, error) {
	rule, ok := e.registry.ResolveHandoff(fromAgentID, content)
	if !ok {
		return false, nil
	}

	payload := buildPayload(rule.ContextMode, content, sharedContext)
	msg := models.InterAgentMessage{
		ID:        uuid.NewString(),
		From:      fromAgentID,
		To:        rule.TargetAgentID,
		Task:      rule.Message,
		Payload:   payload,
		CreatedAt: e.now(),
		TTL:       HandoffTTL,
	}
	if msg.Task == "" {
		msg.Task = content
	}

	if err := e.bus.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("multiagent: handoff %s->%s: %w", fromAgentID, rule.TargetAgentID, err)
	}
	return true, nil
}

// buildPayload shapes the handoff's carried context according to
// ContextSharingMode: full context is passed through verbatim, summary
// mode keeps only a "summary" key derived from content, none strips
// context entirely (spec.md §4.13).
func buildPayload(mode ContextSharingMode, content string, sharedContext map[string]any) map[string]any {
	switch mode {
	case ContextNone:
		return nil
	case ContextSummary:
		return map[string]any{"summary": summarize(content)}
	default: // ContextFull and unset default to full
		out := make(map[string]any, len(sharedContext)+1)
		for k, v := range sharedContext {
			out[k] = v
		}
		out["content"] = content
		return out
	}
}

// summarize truncates content to a short preview. A real summary would
// call the LLM; this package has no transport dependency, so callers
// wanting an LLM-generated summary should post-process the handoff
// before TryHandoff is invoked.
func summarize(content string) string {
	const maxLen = 280
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
