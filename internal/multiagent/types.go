// Package multiagent implements agent definitions, handoff rules, and
// swarm dependency graphs on top of internal/bus's per-agent inboxes.
// Grounded on the teacher's internal/multiagent/types.go vocabulary
// (AgentDefinition/HandoffRule/RoutingTrigger/SwarmRole), repointed at
// spec.md's InterAgentMessage/AgentBus model per SPEC_FULL.md §4.13:
// this package supplies the routing/handoff/dependency semantics, and
// delegates actual message transport to the already-built
// internal/bus.AgentBus rather than keeping its own queue.
package multiagent

// AgentDefinition describes one specialized agent's identity and
// handoff behavior.
type AgentDefinition struct {
	ID                 string
	Name               string
	Description        string
	Tools              []string
	HandoffRules       []HandoffRule
	CanReceiveHandoffs bool
	SwarmRole          SwarmRole
	DependsOn          []string
	CanTrigger         []string
}

// HandoffRule defines when this agent should hand off to another.
type HandoffRule struct {
	TargetAgentID string
	Triggers      []RoutingTrigger
	Priority      int
	ContextMode   ContextSharingMode
	Message       string
}

// RoutingTrigger is one condition that can activate a handoff rule.
type RoutingTrigger struct {
	Type      TriggerType
	Value     string
	Values    []string
	Threshold float64
}

// TriggerType enumerates the kinds of routing triggers.
type TriggerType string

const (
	TriggerKeyword  TriggerType = "keyword"
	TriggerPattern  TriggerType = "pattern"
	TriggerExplicit TriggerType = "explicit"
	TriggerFallback TriggerType = "fallback"
	TriggerAlways   TriggerType = "always"
)

// ContextSharingMode controls how much conversation history travels
// with a handoff.
type ContextSharingMode string

const (
	ContextFull    ContextSharingMode = "full"
	ContextSummary ContextSharingMode = "summary"
	ContextNone    ContextSharingMode = "none"
)

// SwarmRole configures how an agent participates in swarm execution
// (a DAG of agents run to completion rather than a single handoff
// chain).
type SwarmRole string

const (
	SwarmRoleNone        SwarmRole = ""
	SwarmRoleCoordinator SwarmRole = "coordinator"
	SwarmRoleWorker      SwarmRole = "worker"
)
