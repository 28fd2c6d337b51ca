// Package agent implements the per-message dispatch path: routing an
// inbound message to an agent ID, isolating each agent's workspace, and
// driving the per-agent concurrency state machine that turns a message
// into tool calls and a final reply. Grounded on the teacher's
// internal/agent package (loop.go's phase-driven Run) and
// internal/multiagent/router.go's ordered-rule-match style, simplified
// to the dispatch-time routing contract of spec.md §4.8 (channel
// routing to an agent, not in-conversation handoff — that vocabulary
// lives in internal/multiagent per spec.md §4.13).
package agent

import (
	"log/slog"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// ErrNoMatch is returned when no rule matches and no catch-all is
// configured.
var ErrNoMatch = errMsg("agent: no matching route")

type errMsg string

func (e errMsg) Error() string { return string(e) }

// MatchCriteria narrows a Rule to a subset of inbound messages on its
// channel. Empty fields are wildcards.
type MatchCriteria struct {
	SenderID string
	// ContentPrefix, when non-empty, requires InboundMessage.Content to
	// start with this prefix (case-sensitive, matching channel command
	// conventions like "/support").
	ContentPrefix string
}

func (m MatchCriteria) matches(msg models.InboundMessage) bool {
	if m.SenderID != "" && m.SenderID != msg.SenderID {
		return false
	}
	if m.ContentPrefix != "" && !hasPrefix(msg.Content, m.ContentPrefix) {
		return false
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Rule is one entry in the AgentRouter's ordered rule list.
type Rule struct {
	Channel models.Channel
	Match   MatchCriteria
	AgentID string
}

// AgentRouter holds an ordered list of rules and an optional catch-all
// agent ID. Route returns the agent ID of the first matching rule;
// anonymous messages (empty SenderID) route directly to the catch-all,
// skipping rule evaluation, matching spec.md §4.8.
type AgentRouter struct {
	rules    []Rule
	catchAll string
	logger   *slog.Logger
}

// NewAgentRouter constructs a router. catchAll may be empty, in which
// case an unmatched message returns ErrNoMatch.
func NewAgentRouter(catchAll string, logger *slog.Logger) *AgentRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentRouter{catchAll: catchAll, logger: logger}
}

// AddRule appends a rule; rules are evaluated in the order added.
func (r *AgentRouter) AddRule(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Route returns the agent ID that should handle msg.
func (r *AgentRouter) Route(msg models.InboundMessage) (string, error) {
	if msg.SenderID == "" {
		if r.catchAll != "" {
			return r.catchAll, nil
		}
		r.logger.Warn("agent: anonymous message with no catch-all configured", "channel", msg.Channel)
		return "", ErrNoMatch
	}

	for _, rule := range r.rules {
		if rule.Channel != "" && rule.Channel != msg.Channel {
			continue
		}
		if !rule.Match.matches(msg) {
			continue
		}
		return rule.AgentID, nil
	}

	if r.catchAll != "" {
		return r.catchAll, nil
	}

	r.logger.Warn("agent: no route matched and no catch-all configured", "channel", msg.Channel, "sender_id", msg.SenderID)
	return "", ErrNoMatch
}
