package multiagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weave-logic-ai/weft/internal/bus"
)

func testAgents() []AgentDefinition {
	return []AgentDefinition{
		{
			ID: "triage", Name: "Triage", CanReceiveHandoffs: true,
			HandoffRules: []HandoffRule{
				{TargetAgentID: "billing", Priority: 10, ContextMode: ContextFull,
					Triggers: []RoutingTrigger{{Type: TriggerKeyword, Value: "invoice"}}},
				{TargetAgentID: "fallback-agent", Priority: 0,
					Triggers: []RoutingTrigger{{Type: TriggerFallback}}},
			},
		},
		{ID: "billing", Name: "Billing", CanReceiveHandoffs: true},
		{ID: "fallback-agent", Name: "Fallback", CanReceiveHandoffs: true},
	}
}

func TestResolveHandoffKeyword(t *testing.T) {
	r := NewRegistry(testAgents())
	rule, ok := r.ResolveHandoff("triage", "I have a question about my invoice")
	require.True(t, ok)
	assert.Equal(t, "billing", rule.TargetAgentID)
}

func TestResolveHandoffFallback(t *testing.T) {
	r := NewRegistry(testAgents())
	rule, ok := r.ResolveHandoff("triage", "totally unrelated message")
	require.True(t, ok)
	assert.Equal(t, "fallback-agent", rule.TargetAgentID)
}

func TestResolveHandoffUnknownAgent(t *testing.T) {
	r := NewRegistry(testAgents())
	_, ok := r.ResolveHandoff("nonexistent", "hello")
	assert.False(t, ok)
}

func TestEngineTryHandoffSendsMessage(t *testing.T) {
	r := NewRegistry(testAgents())
	b := bus.NewAgentBus(nil)
	b.Register("billing", 4)
	e := NewEngine(r, b, nil)

	sent, err := e.TryHandoff(context.Background(), "triage", "about my invoice", map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.True(t, sent)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.Receive(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, "triage", msg.From)
	assert.Equal(t, "billing", msg.To)
	assert.Equal(t, "u1", msg.Payload["user_id"])
}

func TestEngineTryHandoffNoMatchKeepsControl(t *testing.T) {
	r := NewRegistry([]AgentDefinition{{ID: "solo", CanReceiveHandoffs: false}})
	b := bus.NewAgentBus(nil)
	e := NewEngine(r, b, nil)

	sent, err := e.TryHandoff(context.Background(), "solo", "anything", nil)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestPlanSwarmOrdersByDependency(t *testing.T) {
	r := NewRegistry([]AgentDefinition{
		{ID: "a", SwarmRole: SwarmRoleWorker},
		{ID: "b", SwarmRole: SwarmRoleWorker, DependsOn: []string{"a"}},
		{ID: "c", SwarmRole: SwarmRoleWorker, DependsOn: []string{"a"}},
		{ID: "d", SwarmRole: SwarmRoleWorker, DependsOn: []string{"b", "c"}},
		{ID: "irrelevant"},
	})
	plan, err := r.PlanSwarm()
	require.NoError(t, err)
	require.Len(t, plan.Waves, 3)
	assert.ElementsMatch(t, []string{"a"}, plan.Waves[0])
	assert.ElementsMatch(t, []string{"b", "c"}, plan.Waves[1])
	assert.ElementsMatch(t, []string{"d"}, plan.Waves[2])
}

func TestPlanSwarmDetectsCycle(t *testing.T) {
	r := NewRegistry([]AgentDefinition{
		{ID: "a", SwarmRole: SwarmRoleWorker, DependsOn: []string{"b"}},
		{ID: "b", SwarmRole: SwarmRoleWorker, DependsOn: []string{"a"}},
	})
	_, err := r.PlanSwarm()
	require.Error(t, err)
}
