package multiagent

import (
	"regexp"
	"sort"
	"strings"
)

// Registry holds the set of configured agent definitions and resolves
// handoff targets from message content.
type Registry struct {
	agents map[string]AgentDefinition
}

// NewRegistry constructs a registry over the given agent definitions.
func NewRegistry(agents []AgentDefinition) *Registry {
	r := &Registry{agents: make(map[string]AgentDefinition, len(agents))}
	for _, a := range agents {
		r.agents[a.ID] = a
	}
	return r
}

// Get returns the definition for agentID.
func (r *Registry) Get(agentID string) (AgentDefinition, bool) {
	a, ok := r.agents[agentID]
	return a, ok
}

// ResolveHandoff evaluates fromAgentID's handoff rules against content
// in priority order (highest first) and returns the first matching
// rule's target. Matching itself never looks at the LLM — intent-
// based triggers are out of scope (spec.md §4.13 only asks for
// keyword/pattern/explicit/fallback/always routing, no classifier
// dependency inside this package).
func (r *Registry) ResolveHandoff(fromAgentID, content string) (HandoffRule, bool) {
	agent, ok := r.agents[fromAgentID]
	if !ok {
		return HandoffRule{}, false
	}
	rules := make([]HandoffRule, len(agent.HandoffRules))
	copy(rules, agent.HandoffRules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	var fallback *HandoffRule
	for i := range rules {
		rule := rules[i]
		target, ok := r.agents[rule.TargetAgentID]
		if !ok || !target.CanReceiveHandoffs {
			continue
		}
		for _, trig := range rule.Triggers {
			switch trig.Type {
			case TriggerAlways:
				return rule, true
			case TriggerFallback:
				if fallback == nil {
					fallback = &rule
				}
			case TriggerKeyword:
				if matchesKeyword(content, trig.Value, trig.Values) {
					return rule, true
				}
			case TriggerPattern:
				if matchesPattern(content, trig.Value) {
					return rule, true
				}
			case TriggerExplicit:
				if matchesExplicit(content, trig.Value) {
					return rule, true
				}
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return HandoffRule{}, false
}

func matchesKeyword(content, value string, values []string) bool {
	lower := strings.ToLower(content)
	if value != "" && strings.Contains(lower, strings.ToLower(value)) {
		return true
	}
	for _, v := range values {
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func matchesPattern(content, pattern string) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}

// matchesExplicit matches an explicit "@agent-id" style handoff
// request embedded in the message content.
func matchesExplicit(content, agentID string) bool {
	return strings.Contains(content, "@"+agentID)
}
