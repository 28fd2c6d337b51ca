package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/weave-logic-ai/weft/internal/bus"
	"github.com/weave-logic-ai/weft/internal/delegation"
	"github.com/weave-logic-ai/weft/internal/multiagent"
	"github.com/weave-logic-ai/weft/internal/pipeline"
	"github.com/weave-logic-ai/weft/internal/tools"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// AuthResolver turns an inbound message into the AuthContext the
// pipeline and tool layer enforce. The zero-value fallback is
// zero_trust, so an unconfigured dispatcher grants nothing.
type AuthResolver func(msg models.InboundMessage) models.AuthContext

// Dispatcher is the gateway's inner loop: it drains the inbound queue,
// routes each message to an agent, lazily provisions that agent's
// workspace, and runs the per-session agent loop. One goroutine lane per
// session key keeps processing within a session strictly serial while
// different sessions proceed in parallel (spec.md §5's ordering
// guarantees).
type Dispatcher struct {
	bus        *bus.MessageBus
	router     *AgentRouter
	workspaces *WorkspaceManager
	pipelines  *pipeline.Registry
	executor   *tools.Executor
	resolve    AuthResolver
	loopConfig LoopConfig
	logger     *slog.Logger

	delegate *delegation.Engine
	flow     *delegation.FlowDelegator
	handoff  *multiagent.Engine

	mu    sync.Mutex
	lanes map[string]chan laneWork
	wg    sync.WaitGroup
}

type laneWork struct {
	ctx     context.Context
	agentID string
	key     string
	msg     models.InboundMessage
	auth    models.AuthContext
	loop    *Loop
}

// NewDispatcher wires the dispatch path. A nil resolve falls back to
// zero-trust for every sender.
func NewDispatcher(mb *bus.MessageBus, router *AgentRouter, workspaces *WorkspaceManager, pipelines *pipeline.Registry, executor *tools.Executor, resolve AuthResolver, loopConfig LoopConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if resolve == nil {
		resolve = func(msg models.InboundMessage) models.AuthContext {
			return models.AuthContext{
				SenderID:    msg.SenderID,
				Channel:     msg.Channel,
				Permissions: models.DefaultUserPermissions(models.PermissionZeroTrust),
			}
		}
	}
	return &Dispatcher{
		bus:        mb,
		router:     router,
		workspaces: workspaces,
		pipelines:  pipelines,
		executor:   executor,
		resolve:    resolve,
		loopConfig: loopConfig,
		logger:     logger,
		lanes:      make(map[string]chan laneWork),
	}
}

// WithDelegation enables delegation-target selection per message: tasks
// the engine sends to the Flow target run through the subprocess
// delegator instead of the local pipeline. Claude-target tasks stay on
// the local pipeline, whose failover chain already holds the Claude
// provider. Returns the dispatcher for chaining.
func (d *Dispatcher) WithDelegation(engine *delegation.Engine, flow *delegation.FlowDelegator) *Dispatcher {
	d.delegate = engine
	d.flow = flow
	return d
}

// WithHandoff enables post-response handoff evaluation: after an agent
// replies, its handoff rules run against the inbound content, and a
// match enqueues an InterAgentMessage for the target agent. Returns the
// dispatcher for chaining.
func (d *Dispatcher) WithHandoff(engine *multiagent.Engine) *Dispatcher {
	d.handoff = engine
	return d
}

// Run drains the inbound queue until ctx is cancelled, then waits for
// in-flight session lanes to finish. Every delivered message produces
// exactly one outbound message or one logged rejection.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()
	for {
		msg, err := d.bus.Inbound.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrQueueClosed) {
				return nil
			}
			return err
		}
		d.dispatch(ctx, msg)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg models.InboundMessage) {
	agentID, err := d.router.Route(msg)
	if err != nil {
		// The rejection is the logged warn inside Route; nothing is
		// emitted for an unroutable message.
		return
	}
	d.DispatchTo(ctx, agentID, msg)
}

// DispatchTo enqueues msg onto agentID's session lane, bypassing the
// routing rules. The inter-agent inbox pump uses this to deliver a
// handoff task directly to its named recipient.
func (d *Dispatcher) DispatchTo(ctx context.Context, agentID string, msg models.InboundMessage) {
	agentCtx, err := d.workspaces.EnsureAgentWorkspace(ctx, agentID)
	if err != nil {
		d.logger.Error("dispatch: workspace provisioning failed", "agent_id", agentID, "error", err)
		d.emit(ctx, models.OutboundMessage{
			Channel:   msg.Channel,
			ChatID:    msg.ChatID,
			Text:      "this agent is temporarily unavailable",
			Timestamp: time.Now(),
		})
		return
	}

	key := models.SessionKey(agentID, msg.Channel, msg.ChatID)
	work := laneWork{
		ctx:     ctx,
		agentID: agentID,
		key:     key,
		msg:     msg,
		auth:    d.resolve(msg),
		loop: NewLoop(d.pipelines, d.executor, agentCtx.Sessions, d.loopConfig, d.logger).
			WithSystemPrompt(agentCtx.SystemPrompt),
	}

	d.mu.Lock()
	lane, ok := d.lanes[key]
	if !ok {
		lane = make(chan laneWork, 16)
		d.lanes[key] = lane
		d.wg.Add(1)
		go d.runLane(ctx, lane)
	}
	d.mu.Unlock()

	select {
	case lane <- work:
	case <-ctx.Done():
	}
}

// runLane processes one session's messages in arrival order. The lane
// goroutine exits when the dispatcher's context is cancelled; it is not
// torn down on idle since a session's lane is cheap to keep.
func (d *Dispatcher) runLane(ctx context.Context, lane chan laneWork) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-lane:
			d.process(work)
		}
	}
}

func (d *Dispatcher) process(work laneWork) {
	if d.delegate != nil && d.flow != nil && d.delegate.Decide(work.msg.Content, 0) == delegation.TargetFlow {
		out, err := d.flow.Run(work.ctx, work.msg.Content)
		if err != nil {
			d.logger.Warn("dispatch: flow delegation failed, falling back to local pipeline", "agent_id", work.agentID, "error", err)
		} else {
			d.emit(work.ctx, models.OutboundMessage{
				Channel:   work.msg.Channel,
				ChatID:    work.msg.ChatID,
				Text:      out,
				Timestamp: time.Now(),
			})
			return
		}
	}

	result := work.loop.Run(work.ctx, work.key, work.agentID, work.msg, work.auth, nil)
	switch result.Phase {
	case PhaseCancelled:
		// Cancellation produces no output (spec.md §7).
		return
	default:
		d.emit(work.ctx, result.Reply)
	}

	if d.handoff != nil && result.Phase == PhaseResponding {
		handed, err := d.handoff.TryHandoff(work.ctx, work.agentID, work.msg.Content, nil)
		if err != nil {
			d.logger.Warn("dispatch: handoff failed", "agent_id", work.agentID, "error", err)
		} else if handed {
			d.logger.Info("dispatch: handed off", "from", work.agentID)
		}
	}
}

func (d *Dispatcher) emit(ctx context.Context, out models.OutboundMessage) {
	if err := d.bus.Outbound.Send(ctx, out); err != nil {
		d.logger.Error("dispatch: outbound send failed", "channel", out.Channel, "error", err)
	}
}
