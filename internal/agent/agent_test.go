package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weave-logic-ai/weft/internal/bus"
	"github.com/weave-logic-ai/weft/internal/pipeline"
	"github.com/weave-logic-ai/weft/internal/sessions"
	"github.com/weave-logic-ai/weft/internal/tools"
	"github.com/weave-logic-ai/weft/pkg/models"
)

func TestAgentRouterFirstMatchWins(t *testing.T) {
	r := NewAgentRouter("fallback", nil)
	r.AddRule(Rule{Channel: models.ChannelSlack, Match: MatchCriteria{SenderID: "alice"}, AgentID: "support"})
	r.AddRule(Rule{Channel: models.ChannelSlack, AgentID: "general"})

	agentID, err := r.Route(models.InboundMessage{Channel: models.ChannelSlack, SenderID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "support", agentID)

	agentID, err = r.Route(models.InboundMessage{Channel: models.ChannelSlack, SenderID: "bob"})
	require.NoError(t, err)
	require.Equal(t, "general", agentID)
}

func TestAgentRouterContentPrefix(t *testing.T) {
	r := NewAgentRouter("", nil)
	r.AddRule(Rule{Channel: models.ChannelTelegram, Match: MatchCriteria{ContentPrefix: "/support"}, AgentID: "support"})

	agentID, err := r.Route(models.InboundMessage{Channel: models.ChannelTelegram, SenderID: "x", Content: "/support help"})
	require.NoError(t, err)
	require.Equal(t, "support", agentID)

	_, err = r.Route(models.InboundMessage{Channel: models.ChannelTelegram, SenderID: "x", Content: "hello"})
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestAgentRouterAnonymousGoesToCatchAll(t *testing.T) {
	r := NewAgentRouter("default", nil)
	r.AddRule(Rule{Channel: models.ChannelHTTP, Match: MatchCriteria{SenderID: "x"}, AgentID: "other"})

	agentID, err := r.Route(models.InboundMessage{Channel: models.ChannelHTTP})
	require.NoError(t, err)
	require.Equal(t, "default", agentID)
}

func TestStateMachineTransitions(t *testing.T) {
	require.True(t, CanTransition(PhaseIdle, PhaseBuildingContext))
	require.True(t, CanTransition(PhaseAwaitingLLM, PhaseDispatchingTools))
	require.True(t, CanTransition(PhaseDispatchingTools, PhaseAwaitingLLM))
	require.True(t, CanTransition(PhaseAwaitingLLM, PhaseResponding))
	require.False(t, CanTransition(PhaseIdle, PhaseResponding))
	require.False(t, CanTransition(PhaseResponding, PhaseDispatchingTools))

	// Cancelled and Failed are reachable from anywhere.
	require.True(t, CanTransition(PhaseBuildingContext, PhaseCancelled))
	require.True(t, CanTransition(PhaseDispatchingTools, PhaseFailed))

	require.True(t, IsTerminal(PhaseResponding))
	require.False(t, IsTerminal(PhaseAwaitingLLM))
}

// scriptedTransport returns a tool-call turn first, then a final text
// turn, driving the loop through DispatchingTools and back.
type scriptedTransport struct {
	mu       sync.Mutex
	turn     int
	toolTurn models.ConversationMessage
}

func (s *scriptedTransport) Complete(ctx context.Context, req models.ChatRequest) (models.ConversationMessage, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn++
	if s.turn == 1 && len(s.toolTurn.ToolCalls) > 0 {
		return s.toolTurn, 1, 1, nil
	}
	return models.ConversationMessage{Role: models.RoleAssistant, Content: "done"}, 1, 1, nil
}

// sleepTool returns its args after a fixed delay, for the parallel
// dispatch timing check.
type sleepTool struct {
	delay time.Duration
}

func (s sleepTool) Name() string           { return "read_file" }
func (s sleepTool) Description() string    { return "reads a file" }
func (s sleepTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (s sleepTool) Execute(ctx context.Context, args string, perms *models.UserPermissions) (string, error) {
	time.Sleep(s.delay)
	return args, nil
}

func newLoopFixture(t *testing.T, tr pipeline.Transport) (*Loop, sessions.Store) {
	t.Helper()
	store, err := sessions.NewFileStore(t.TempDir())
	require.NoError(t, err)

	registry := tools.NewRegistry()
	registry.Register(sleepTool{delay: 100 * time.Millisecond})
	executor := tools.NewExecutor(registry, tools.ExecConfig{Concurrency: 8, PerToolTimeout: 5 * time.Second})

	pipe := &pipeline.Pipeline{
		Name:      "default",
		Router:    &staticTestRouter{},
		Assembler: pipeline.NewAssembler(),
		Transport: tr,
		Scorer:    pipeline.NoopScorer{},
		Learner:   pipeline.NoopLearner{},
	}
	reg := pipeline.NewRegistry(pipeline.NewHeuristicClassifier(), pipe)
	return NewLoop(reg, executor, store, LoopConfig{}, nil), store
}

type staticTestRouter struct{}

func (staticTestRouter) Route(ctx context.Context, class models.Classification, auth models.AuthContext) (models.RoutingDecision, error) {
	return models.RoutingDecision{Model: "test-model"}, nil
}

func TestLoopParallelToolsAppendInRequestOrder(t *testing.T) {
	calls := []models.ToolCall{
		{ID: "call_a", Name: "read_file", Arguments: `{"path":"a"}`},
		{ID: "call_b", Name: "read_file", Arguments: `{"path":"b"}`},
		{ID: "call_c", Name: "read_file", Arguments: `{"path":"c"}`},
	}
	tr := &scriptedTransport{toolTurn: models.ConversationMessage{
		Role:      models.RoleAssistant,
		ToolCalls: calls,
	}}
	loop, store := newLoopFixture(t, tr)

	msg := models.InboundMessage{Channel: models.ChannelCLI, ChatID: "c1", SenderID: "u", Content: "read three files", Timestamp: time.Now()}
	key := models.SessionKey("tester", models.ChannelCLI, "c1")
	auth := models.CLIDefaultAuthContext()

	start := time.Now()
	result := loop.Run(context.Background(), key, "tester", msg, auth, nil)
	elapsed := time.Since(start)

	require.NoError(t, result.Err)
	require.Equal(t, PhaseResponding, result.Phase)
	require.Equal(t, "done", result.Reply.Text)
	// Three 100ms tools run concurrently, not sequentially.
	require.Less(t, elapsed, 250*time.Millisecond)

	sess, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	var toolMsgs []models.ConversationMessage
	for _, m := range sess.Messages {
		if m.Role == models.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, len(calls))
	for i, tm := range toolMsgs {
		require.Equal(t, calls[i].ID, tm.ToolCallID)
	}
}

func TestLoopToolErrorSerializedNotFatal(t *testing.T) {
	calls := []models.ToolCall{{ID: "call_x", Name: "no_such_tool", Arguments: `{}`}}
	tr := &scriptedTransport{toolTurn: models.ConversationMessage{Role: models.RoleAssistant, ToolCalls: calls}}
	loop, store := newLoopFixture(t, tr)

	msg := models.InboundMessage{Channel: models.ChannelCLI, ChatID: "c2", SenderID: "u", Content: "call a missing tool", Timestamp: time.Now()}
	key := models.SessionKey("tester", models.ChannelCLI, "c2")

	result := loop.Run(context.Background(), key, "tester", msg, models.CLIDefaultAuthContext(), nil)
	require.NoError(t, result.Err)
	require.Equal(t, PhaseResponding, result.Phase)

	sess, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	var toolMsg *models.ConversationMessage
	for i := range sess.Messages {
		if sess.Messages[i].Role == models.RoleTool {
			toolMsg = &sess.Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &payload))
	require.Contains(t, payload, "error")
}

func TestLoopCancelledProducesNoReply(t *testing.T) {
	tr := &scriptedTransport{}
	loop, _ := newLoopFixture(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := models.InboundMessage{Channel: models.ChannelCLI, ChatID: "c3", SenderID: "u", Content: "hi", Timestamp: time.Now()}
	key := models.SessionKey("tester", models.ChannelCLI, "c3")
	result := loop.Run(ctx, key, "tester", msg, models.CLIDefaultAuthContext(), nil)
	require.Equal(t, PhaseCancelled, result.Phase)
	require.Empty(t, result.Reply.Text)
}

func TestDispatcherRoutesInboundToOutbound(t *testing.T) {
	tr := &scriptedTransport{}
	mb := bus.NewMessageBus(bus.Config{Capacity: 8})

	router := NewAgentRouter("default", nil)
	workspaces := NewWorkspaceManager(t.TempDir(), nil, nil)

	pipe := &pipeline.Pipeline{
		Name:      "default",
		Router:    &staticTestRouter{},
		Assembler: pipeline.NewAssembler(),
		Transport: tr,
		Scorer:    pipeline.NoopScorer{},
		Learner:   pipeline.NoopLearner{},
	}
	reg := pipeline.NewRegistry(pipeline.NewHeuristicClassifier(), pipe)
	executor := tools.NewExecutor(tools.NewRegistry(), tools.DefaultExecConfig())

	d := NewDispatcher(mb, router, workspaces, reg, executor, nil, LoopConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()

	require.NoError(t, mb.Inbound.Send(ctx, models.InboundMessage{
		Channel:   models.ChannelHTTP,
		SenderID:  "visitor",
		ChatID:    "room1",
		Content:   "hello",
		Timestamp: time.Now(),
	}))

	out, err := mb.Outbound.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, models.ChannelHTTP, out.Channel)
	require.Equal(t, "room1", out.ChatID)
	require.Equal(t, "done", out.Text)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancellation")
	}
}

func TestWorkspaceSystemPromptIncludesBootstrapAndAlwaysSkills(t *testing.T) {
	root := t.TempDir()
	w := NewWorkspaceManager(root, nil, nil)

	agentCtx, err := w.EnsureAgentWorkspace(context.Background(), "prompted")
	require.NoError(t, err)

	// Customize a bootstrap file and add an always-on skill, then force
	// a fresh context so discovery re-runs.
	require.NoError(t, os.WriteFile(filepath.Join(agentCtx.Workspace.Root, "SOUL.md"), []byte("Be terse."), 0o600))
	skillDir := filepath.Join(agentCtx.Workspace.Root, "skills", "greeter")
	require.NoError(t, os.MkdirAll(skillDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("---\nname: greeter\ndescription: greets users\nalways: true\n---\nAlways greet by name.\n"), 0o600))

	w2 := NewWorkspaceManager(root, nil, nil)
	agentCtx, err = w2.EnsureAgentWorkspace(context.Background(), "prompted")
	require.NoError(t, err)

	prompt := agentCtx.SystemPrompt()
	require.Contains(t, prompt, "Be terse.")
	require.Contains(t, prompt, "Always greet by name.")
}

func TestWorkspaceSkillGatedByMissingEnv(t *testing.T) {
	root := t.TempDir()
	w := NewWorkspaceManager(root, nil, nil).WithEnv(func(string) (string, bool) { return "", false })

	agentRoot := filepath.Join(root, "gated")
	skillDir := filepath.Join(agentRoot, "skills", "deploy")
	require.NoError(t, os.MkdirAll(skillDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("---\nname: deploy\ndescription: deploys things\nrequires_env: [DEPLOY_TOKEN]\n---\nDeploy instructions.\n"), 0o600))

	agentCtx, err := w.EnsureAgentWorkspace(context.Background(), "gated")
	require.NoError(t, err)
	require.Empty(t, agentCtx.Skills)
}
