package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/agent"
	"github.com/weave-logic-ai/weft/internal/bus"
	"github.com/weave-logic-ai/weft/internal/config"
	"github.com/weave-logic-ai/weft/internal/cron"
	"github.com/weave-logic-ai/weft/internal/delegation"
	"github.com/weave-logic-ai/weft/internal/multiagent"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// buildAgentDefinitions maps the configured agent catalog into the
// multiagent registry's vocabulary.
func buildAgentDefinitions(cfg config.Config) []multiagent.AgentDefinition {
	defs := make([]multiagent.AgentDefinition, 0, len(cfg.Agents.Catalog))
	for id, ac := range cfg.Agents.Catalog {
		def := multiagent.AgentDefinition{
			ID:                 id,
			Name:               id,
			Description:        ac.Description,
			CanReceiveHandoffs: true,
		}
		for _, h := range ac.Handoffs {
			rule := multiagent.HandoffRule{
				TargetAgentID: h.To,
				Priority:      h.Priority,
				ContextMode:   multiagent.ContextSharingMode(h.Context),
			}
			if len(h.Keywords) > 0 {
				rule.Triggers = append(rule.Triggers, multiagent.RoutingTrigger{Type: multiagent.TriggerKeyword, Values: h.Keywords})
			}
			if h.Pattern != "" {
				rule.Triggers = append(rule.Triggers, multiagent.RoutingTrigger{Type: multiagent.TriggerPattern, Value: h.Pattern})
			}
			def.HandoffRules = append(def.HandoffRules, rule)
		}
		defs = append(defs, def)
	}
	return defs
}

// buildDelegation assembles the delegation engine from config.
// Claude-target availability follows from having any provider secret
// configured (the Claude path is a provider in the failover chain);
// Flow availability requires a configured binary.
func buildDelegation(cfg config.Config) (*delegation.Engine, *delegation.FlowDelegator) {
	claudeAvailable := false
	for _, p := range cfg.Providers {
		if _, ok := config.ResolveSecret(p); ok {
			claudeAvailable = true
			break
		}
	}
	flowAvailable := cfg.Delegation.FlowBinary != ""

	rules := make([]delegation.Rule, 0, len(cfg.Delegation.Rules))
	for _, r := range cfg.Delegation.Rules {
		rules = append(rules, delegation.Rule{Pattern: r.Pattern, Target: delegation.Target(r.Target)})
	}
	engine := delegation.NewEngine(rules, claudeAvailable, flowAvailable, cfg.Delegation.MaxDepth)

	var flow *delegation.FlowDelegator
	if flowAvailable {
		apiKeyEnv := ""
		for _, p := range cfg.Providers {
			if p.APIKeyEnv != "" {
				apiKeyEnv = p.APIKeyEnv
				break
			}
		}
		flow = delegation.NewFlowDelegator(cfg.Delegation.FlowBinary, apiKeyEnv, cfg.Delegation.Timeout)
	}
	return engine, flow
}

// buildGatewayCmd creates the "gateway" command: the long-lived server
// mode that runs the message bus, the dispatcher, the cron scheduler,
// and the heartbeat until interrupted. Channel transports are external
// collaborators; they attach by pushing into the inbound queue and
// draining the outbound queue.
func buildGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the long-lived gateway service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			rt := buildRuntime(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mb := bus.NewMessageBus(bus.Config{
				Capacity: cfg.Gateway.BusCapacity,
				Policy:   bus.OverflowPolicy(cfg.Gateway.OverflowPolicy),
				Logger:   rt.logger,
			})

			// Resolve permissions through the routing config so tool
			// gating in the agent loop matches what the router enforces.
			// Tool lists pass through the policy resolver so group and
			// MCP-wildcard references expand to concrete tool names.
			resolve := func(msg models.InboundMessage) models.AuthContext {
				perms := rt.resolver.Resolve(msg.Channel, msg.SenderID)
				perms.ToolAccess = rt.policy.Expand(perms.ToolAccess)
				perms.ToolDenylist = rt.policy.Expand(perms.ToolDenylist)
				return models.AuthContext{
					SenderID:    msg.SenderID,
					Channel:     msg.Channel,
					Permissions: perms,
				}
			}

			agentBus := bus.NewAgentBus(nil)
			handoff := multiagent.NewEngine(multiagent.NewRegistry(buildAgentDefinitions(cfg)), agentBus, nil)
			delegate, flow := buildDelegation(cfg)

			dispatcher := agent.NewDispatcher(
				mb,
				buildAgentRouter(cfg, rt.logger),
				rt.workspaces,
				rt.pipelines,
				rt.executor,
				resolve,
				agent.LoopConfig{},
				rt.logger,
			).WithHandoff(handoff).WithDelegation(delegate, flow)

			// Each catalog agent gets an inbox; a pump per agent turns
			// handoff tasks into dispatched messages for that agent.
			// Per-(sender,recipient) FIFO holds because each pump is the
			// sole consumer of its inbox.
			for id := range cfg.Agents.Catalog {
				agentBus.Register(id, cfg.Gateway.BusCapacity)
				go func(agentID string) {
					for {
						iam, err := agentBus.Receive(ctx, agentID)
						if err != nil {
							return
						}
						dispatcher.DispatchTo(ctx, agentID, models.InboundMessage{
							Channel:   models.ChannelInternal,
							SenderID:  iam.From,
							ChatID:    iam.ID,
							Content:   iam.Task,
							Metadata:  iam.Payload,
							Timestamp: time.Now(),
						})
					}
				}(id)
			}

			costPath := filepath.Join(cfg.Agents.Defaults.WorkspaceRoot, "costs.json")
			if err := rt.cost.Load(costPath); err != nil {
				rt.logger.Warn("gateway: cost snapshot load failed", "error", err)
			}
			rt.cost.StartFlusher(ctx, costPath, 30*time.Second, rt.logger)

			store := cron.NewStore()
			scheduler := cron.NewScheduler(store, cron.JobRunnerFunc(func(ctx context.Context, job cron.Job) error {
				rt.logger.Info("cron: job fired", "id", job.ID, "name", job.Name)
				return nil
			}), cron.WithLogger(rt.logger))
			for _, job := range cfg.Cron.Jobs {
				if err := scheduler.Add(cron.Job{
					ID:       job.ID,
					Name:     job.Name,
					Schedule: job.Schedule,
					Enabled:  job.Enabled,
					Payload:  job.Payload,
				}); err != nil {
					rt.logger.Warn("gateway: skipping invalid cron job", "id", job.ID, "error", err)
				}
			}
			scheduler.Start(ctx)
			defer scheduler.Stop()

			heartbeat := cron.NewHeartbeat(30*time.Second, nil)
			go heartbeat.Start(ctx, func(at time.Time) {
				rt.logger.Debug("gateway: heartbeat", "at", at)
			})

			// Drain the outbound queue. With no concrete channel adapters
			// attached, delivery is a structured log per message; an
			// adapter replaces this consumer in a full deployment.
			go func() {
				for {
					out, err := mb.Outbound.Receive(ctx)
					if err != nil {
						return
					}
					rt.logger.Info("gateway: outbound message",
						"channel", out.Channel, "chat_id", out.ChatID, "text", out.Text)
				}
			}()

			rt.logger.Info("gateway: started", "bus_capacity", cfg.Gateway.BusCapacity)
			return dispatcher.Run(ctx)
		},
	}
}
