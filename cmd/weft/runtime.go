package main

import (
	"log/slog"
	"os"
	"sort"

	"github.com/weave-logic-ai/weft/internal/agent"
	"github.com/weave-logic-ai/weft/internal/config"
	"github.com/weave-logic-ai/weft/internal/pipeline"
	"github.com/weave-logic-ai/weft/internal/platform"
	"github.com/weave-logic-ai/weft/internal/routing"
	"github.com/weave-logic-ai/weft/internal/tools"
	"github.com/weave-logic-ai/weft/internal/tools/policy"
	"github.com/weave-logic-ai/weft/internal/transport"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// runtime bundles the engine components both the "agent" and "gateway"
// commands assemble from a resolved config.
type runtime struct {
	platform   platform.Platform
	pipelines  *pipeline.Registry
	registry   *tools.Registry
	executor   *tools.Executor
	workspaces *agent.WorkspaceManager
	cost       *routing.CostTracker
	resolver   *routing.ConfigResolver
	policy     *policy.Resolver
	logger     *slog.Logger
}

// buildLogger constructs the slog handler the config selects: JSON for
// services, text for interactive CLI work.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	// Env wins over file (spec's CLI > env > file precedence).
	if v := os.Getenv("WEFT_LOG"); v != "" {
		cfg.Level = v
	}
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildTransports constructs one OpenAI-compatible transport per
// configured provider, ordered by priority then name so the failover
// chain is deterministic. All provider HTTP flows through the
// platform's HTTP capability.
func buildTransports(cfg config.Config, plat platform.Platform) []transport.Transport {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := cfg.Providers[names[i]].Priority, cfg.Providers[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	providers := make([]transport.Transport, 0, len(names))
	for _, name := range names {
		p := cfg.Providers[name]
		key, _ := config.ResolveSecret(p)
		providers = append(providers, transport.NewOpenAICompat(transport.OpenAICompatConfig{
			Name:       name,
			APIKey:     key,
			BaseURL:    p.BaseURL,
			HTTPClient: plat.HTTP(),
		}))
	}
	if len(providers) == 0 {
		// No providers configured: a chain over a single unconfigured
		// default surfaces NotConfiguredError at call time instead of
		// failing construction.
		providers = append(providers, transport.NewOpenAICompat(transport.OpenAICompatConfig{Name: "openai"}))
	}
	return providers
}

// buildRuntime assembles the six-stage pipeline registry, tool executor,
// and workspace manager from a resolved config. This is the composition
// root: every shared component is passed in explicitly, no singletons.
func buildRuntime(cfg config.Config) *runtime {
	logger := buildLogger(cfg.Logging)
	plat := platform.NewNative(nil)

	chain := transport.NewFailoverChain(buildTransports(cfg, plat), transport.DefaultRetryConfig(), logger)

	cost := routing.NewCostTracker()
	resolver := routing.NewConfigResolver(cfg.Routing.Permissions)

	var router pipeline.Router
	if cfg.Routing.Mode == models.RoutingModeTiered {
		router = routing.NewTieredRouter(cfg.Routing, resolver, cost, nil)
	} else {
		router = &routing.StaticRouter{DefaultModel: cfg.Agents.Defaults.Model}
	}

	pipe := &pipeline.Pipeline{
		Name:           "default",
		Router:         router,
		Assembler:      pipeline.NewAssembler(),
		Transport:      chain.AsPipelineTransport(),
		Scorer:         pipeline.NoopScorer{},
		Learner:        pipeline.NewEMALearner(0.2),
		ShouldFallback: transport.IsFailoverEligible,
	}
	registry := pipeline.NewRegistry(pipeline.NewHeuristicClassifier(), pipe)

	toolRegistry := tools.NewRegistry()
	executor := tools.NewExecutor(toolRegistry, tools.ExecConfig{
		Concurrency:    cfg.Tools.Concurrency,
		PerToolTimeout: cfg.Tools.PerToolTimeout,
	})

	workspaces := agent.NewWorkspaceManager(cfg.Agents.Defaults.WorkspaceRoot, nil, logger).
		WithEnv(plat.Env().Get)

	// Permission tool lists may reference groups ("group:fs") and MCP
	// wildcards ("mcp:server.*"); the policy resolver expands them into
	// concrete names before the registry's exact-match check runs.
	policyResolver := policy.NewResolver()
	for _, s := range cfg.MCPServers {
		policyResolver.RegisterMCPServer(s.ID, nil)
	}

	return &runtime{
		platform:   plat,
		pipelines:  registry,
		registry:   toolRegistry,
		executor:   executor,
		workspaces: workspaces,
		cost:       cost,
		resolver:   resolver,
		policy:     policyResolver,
		logger:     logger,
	}
}

// buildAgentRouter turns the configured route rules into an AgentRouter.
func buildAgentRouter(cfg config.Config, logger *slog.Logger) *agent.AgentRouter {
	catchAll := cfg.Agents.CatchAll
	if catchAll == "" && len(cfg.Agents.Routes) == 0 {
		catchAll = "default"
	}
	router := agent.NewAgentRouter(catchAll, logger)
	for _, route := range cfg.Agents.Routes {
		router.AddRule(agent.Rule{
			Channel: models.Channel(route.Channel),
			Match: agent.MatchCriteria{
				SenderID:      route.SenderID,
				ContentPrefix: route.ContentPrefix,
			},
			AgentID: route.AgentID,
		})
	}
	return router
}
