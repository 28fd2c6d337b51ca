package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weave-logic-ai/weft/internal/pipeline"
	"github.com/weave-logic-ai/weft/internal/sessions"
	"github.com/weave-logic-ai/weft/internal/tools"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// LoopConfig bounds a single agent loop run. Grounded on the teacher's
// LoopConfig (MaxIterations/MaxTokens/MaxWallTime), trimmed to the
// fields spec.md §4.12 actually requires.
type LoopConfig struct {
	MaxIterations    int
	MaxContextTokens int
	MaxWallTime      time.Duration
}

// DefaultLoopConfig mirrors the teacher's defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxIterations: 10, MaxContextTokens: 8192}
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 8192
	}
	return c
}

// ErrMaxIterations is returned (as the Failed phase's cause) when a run
// exhausts its iteration budget without reaching a final response.
var ErrMaxIterations = errMsg("agent: reached max iterations without a final response")

// Loop drives the spec.md §4.12 concurrency state machine for one
// agent: BuildingContext -> AwaitingLLM -> (DispatchingTools ->
// AwaitingLLM)* -> Responding, with any state able to move to Cancelled
// or Failed. Grounded on the teacher's AgenticLoop.Run phase loop,
// restructured around this module's six-stage Pipeline and tool
// executor rather than the teacher's direct LLMProvider/ToolRegistry.
type Loop struct {
	pipelines *pipeline.Registry
	executor  *tools.Executor
	sessions  sessions.Store
	config    LoopConfig
	logger    *slog.Logger

	systemPrompt func() string
}

// NewLoop constructs a Loop. If config is the zero value, defaults are
// applied.
func NewLoop(pipelines *pipeline.Registry, executor *tools.Executor, store sessions.Store, config LoopConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		pipelines: pipelines,
		executor:  executor,
		sessions:  store,
		config:    config.withDefaults(),
		logger:    logger,
	}
}

// WithSystemPrompt sets the provider of the system message prepended to
// every request (the workspace's bootstrap files plus always-on
// skills). The prompt is re-evaluated per run, so bootstrap edits take
// effect without rebuilding the loop. Returns the loop for chaining.
func (l *Loop) WithSystemPrompt(fn func() string) *Loop {
	l.systemPrompt = fn
	return l
}

// Result is the terminal outcome of one Run.
type Result struct {
	Phase   Phase
	Reply   models.OutboundMessage
	Err     error
	Outcome models.ResponseOutcome
}

// Run processes one inbound message end to end against the given
// session, returning once the state machine reaches a terminal phase
// (Responding, Cancelled, or Failed).
func (l *Loop) Run(ctx context.Context, sessionKey string, agentID string, msg models.InboundMessage, auth models.AuthContext, emit tools.EventFunc) Result {
	phase := PhaseIdle

	session, err := l.sessions.GetOrCreate(ctx, agentID, msg.Channel, msg.ChatID)
	if err != nil {
		return l.fail(phase, msg, fmt.Errorf("load session: %w", err))
	}

	phase = advance(phase, PhaseBuildingContext)
	userTurn := models.ConversationMessage{Role: models.RoleUser, Content: msg.Content, CreatedAt: time.Now()}
	if err := l.sessions.AppendTurn(ctx, sessionKey, userTurn); err != nil {
		return l.fail(phase, msg, fmt.Errorf("persist inbound message: %w", err))
	}

	// The system prompt is assembled per run, not persisted: the session
	// file holds only the conversation, and bootstrap-file edits apply
	// to the next message.
	var messages []models.ConversationMessage
	if l.systemPrompt != nil {
		if prompt := l.systemPrompt(); prompt != "" {
			messages = append(messages, models.ConversationMessage{Role: models.RoleSystem, Content: prompt, CreatedAt: time.Now()})
		}
	}
	messages = append(append(messages, session.Messages...), userTurn)

	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return Result{Phase: PhaseCancelled, Err: ctx.Err()}
		default:
		}

		phase = advance(phase, PhaseAwaitingLLM)
		result, err := l.pipelines.Complete(ctx, auth, messages, l.config.MaxContextTokens)
		if err != nil {
			return l.fail(phase, msg, fmt.Errorf("transport: %w", err))
		}

		if len(result.Message.ToolCalls) == 0 {
			phase = advance(phase, PhaseResponding)
			assistantTurn := models.ConversationMessage{
				Role:      models.RoleAssistant,
				Content:   result.Message.Content,
				CreatedAt: time.Now(),
			}
			if err := l.sessions.AppendTurn(ctx, sessionKey, assistantTurn); err != nil {
				return l.fail(phase, msg, fmt.Errorf("persist assistant message: %w", err))
			}
			return Result{
				Phase: phase,
				Reply: models.OutboundMessage{
					Channel:   msg.Channel,
					ChatID:    msg.ChatID,
					Text:      result.Message.Content,
					Timestamp: time.Now(),
				},
				Outcome: result.Outcome,
			}
		}

		assistantTurn := models.ConversationMessage{
			Role:      models.RoleAssistant,
			Content:   result.Message.Content,
			ToolCalls: result.Message.ToolCalls,
			CreatedAt: time.Now(),
		}
		if err := l.sessions.AppendTurn(ctx, sessionKey, assistantTurn); err != nil {
			return l.fail(phase, msg, fmt.Errorf("persist assistant tool-call message: %w", err))
		}
		messages = append(messages, assistantTurn)

		phase = advance(phase, PhaseDispatchingTools)
		toolResults := l.executor.ExecuteConcurrently(ctx, result.Message.ToolCalls, sessionKey, &auth.Permissions, emit)
		for _, tr := range toolResults {
			toolTurn := models.ConversationMessage{
				Role:       models.RoleTool,
				Content:    tr.Content,
				ToolCallID: tr.ToolCallID,
				CreatedAt:  time.Now(),
			}
			if err := l.sessions.AppendTurn(ctx, sessionKey, toolTurn); err != nil {
				return l.fail(phase, msg, fmt.Errorf("persist tool result: %w", err))
			}
			messages = append(messages, toolTurn)
		}

		phase = advance(phase, PhaseAwaitingLLM)
	}

	return l.fail(phase, msg, ErrMaxIterations)
}

// advance moves the state machine to the next phase. The loop only
// requests edges CanTransition allows; the helper exists so the
// transition points read as state-machine steps rather than bare
// assignments.
func advance(_, to Phase) Phase {
	return to
}

func (l *Loop) fail(phase Phase, msg models.InboundMessage, err error) Result {
	l.logger.Error("agent: run failed", "phase", phase, "error", err)
	return Result{
		Phase: PhaseFailed,
		Err:   err,
		Reply: models.OutboundMessage{
			Channel:   msg.Channel,
			ChatID:    msg.ChatID,
			Text:      "an error occurred while processing your message",
			Timestamp: time.Now(),
		},
	}
}
