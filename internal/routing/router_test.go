package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weave-logic-ai/weft/pkg/models"
)

func testConfig() models.RoutingConfig {
	return models.RoutingConfig{
		Mode: models.RoutingModeTiered,
		Tiers: []models.ModelTierConfig{
			{Name: "small", Models: []string{"openai/gpt-small"}, ComplexityRange: models.ComplexityRange{Lo: 0, Hi: 0.4}, CostPer1kTokens: 0.1},
			{Name: "large", Models: []string{"openai/gpt-large"}, ComplexityRange: models.ComplexityRange{Lo: 0.3, Hi: 1.0}, CostPer1kTokens: 1.0},
		},
		SelectionStrategy: models.StrategyPreferenceOrder,
		Escalation:        models.EscalationConfig{Enabled: true, Threshold: 0.5, MaxEscalationTiers: 1},
		RateLimiting:      models.RateLimiting{WindowSeconds: 60, MaxTracked: 100},
	}
}

func TestTieredRouterSelectsOverlappingRangeFirstMatch(t *testing.T) {
	r := NewTieredRouter(testConfig(), nil, nil, nil)
	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.35}, models.AuthContext{SenderID: "u1", Permissions: models.DefaultUserPermissions(models.PermissionUser)})
	require.NoError(t, err)
	require.Equal(t, "small", decision.Tier)
}

func TestTieredRouterRateLimited(t *testing.T) {
	cfg := testConfig()
	r := NewTieredRouter(cfg, nil, nil, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)
	perms.RateLimitPerMinute = 1
	auth := models.AuthContext{SenderID: "u2", Permissions: perms}

	_, err := r.Route(context.Background(), models.Classification{Complexity: 0.1}, auth)
	require.NoError(t, err)

	_, err = r.Route(context.Background(), models.Classification{Complexity: 0.1}, auth)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestStaticRouterIgnoresComplexity(t *testing.T) {
	r := &StaticRouter{DefaultModel: "openai/gpt-static"}
	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.99}, models.AuthContext{})
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-static", decision.Model)
	require.False(t, decision.Escalated)
}

func scenarioConfig() models.RoutingConfig {
	return models.RoutingConfig{
		Mode: models.RoutingModeTiered,
		Tiers: []models.ModelTierConfig{
			{Name: "free", Models: []string{"openai/gpt-free"}, ComplexityRange: models.ComplexityRange{Lo: 0.0, Hi: 0.3}, CostPer1kTokens: 0.0001},
			{Name: "standard", Models: []string{"openai/gpt-standard"}, ComplexityRange: models.ComplexityRange{Lo: 0.2, Hi: 0.6}, CostPer1kTokens: 0.001},
			{Name: "premium", Models: []string{"openai/gpt-premium"}, ComplexityRange: models.ComplexityRange{Lo: 0.5, Hi: 1.0}, CostPer1kTokens: 0.01},
		},
		SelectionStrategy: models.StrategyPreferenceOrder,
		Escalation:        models.EscalationConfig{Enabled: true, Threshold: 0.6, MaxEscalationTiers: 1},
		RateLimiting:      models.RateLimiting{WindowSeconds: 60, MaxTracked: 100},
	}
}

func TestTieredRouterEscalatesPastMaxTier(t *testing.T) {
	r := NewTieredRouter(scenarioConfig(), nil, nil, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)
	perms.MaxTier = "standard"
	perms.EscalationAllowed = true

	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.75}, models.AuthContext{SenderID: "u3", Permissions: perms})
	require.NoError(t, err)
	require.Equal(t, "premium", decision.Tier)
	require.True(t, decision.Escalated)
}

func TestTieredRouterNoEscalationBelowThreshold(t *testing.T) {
	cfg := scenarioConfig()
	// Complexity 0.65 lies outside free and standard (narrowed here to
	// end at 0.5); premium covers it but sits above max_tier, and the
	// 0.9 threshold blocks escalation.
	cfg.Tiers[1].ComplexityRange.Hi = 0.5
	cfg.Escalation.Threshold = 0.9
	r := NewTieredRouter(cfg, nil, nil, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)
	perms.MaxTier = "standard"
	perms.EscalationAllowed = true

	_, err := r.Route(context.Background(), models.Classification{Complexity: 0.65}, models.AuthContext{SenderID: "u4", Permissions: perms})
	require.ErrorIs(t, err, ErrNoTierAvailable)
}

func TestConfigResolverChannelOverridesUser(t *testing.T) {
	resolver := NewConfigResolver(map[string]models.UserPermissions{
		"users.alice":    {Level: models.PermissionUser, MaxTier: "premium"},
		"channels.slack": {MaxTier: "free"},
	})
	r := NewTieredRouter(scenarioConfig(), resolver, nil, nil)

	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.25}, models.AuthContext{SenderID: "alice", Channel: models.ChannelSlack})
	require.NoError(t, err)
	require.Equal(t, "free", decision.Tier)

	// Off slack, alice's per-user premium ceiling applies.
	decision, err = r.Route(context.Background(), models.Classification{Complexity: 0.8}, models.AuthContext{SenderID: "alice", Channel: models.ChannelTelegram})
	require.NoError(t, err)
	require.Equal(t, "premium", decision.Tier)
}

func TestTieredRouterBudgetDowngradesToHighestAffordableTier(t *testing.T) {
	cfg := models.RoutingConfig{
		Mode: models.RoutingModeTiered,
		Tiers: []models.ModelTierConfig{
			{Name: "free", Models: []string{"openai/gpt-free"}, ComplexityRange: models.ComplexityRange{Lo: 0.0, Hi: 0.3}, CostPer1kTokens: 0.0001},
			{Name: "premium", Models: []string{"openai/gpt-premium"}, ComplexityRange: models.ComplexityRange{Lo: 0.3, Hi: 1.0}, CostPer1kTokens: 0.01},
		},
		SelectionStrategy: models.StrategyPreferenceOrder,
	}
	cost := NewCostTracker()
	cost.Record("bob", 0.008) // daily budget 0.01 leaves 0.002 remaining
	r := NewTieredRouter(cfg, nil, cost, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)
	perms.CostBudgetDailyUSD = 0.01

	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.9}, models.AuthContext{SenderID: "bob", Permissions: perms})
	require.NoError(t, err)
	require.Equal(t, "free", decision.Tier)
	require.True(t, decision.BudgetConstrained)

	// Spending is recorded after the response and visible immediately.
	cost.Record("bob", 0.0001)
	require.InDelta(t, 0.0081, cost.Spent("bob"), 1e-9)
}

func TestTieredRouterBudgetExhaustedUsesFallbackModel(t *testing.T) {
	cfg := scenarioConfig()
	cfg.FallbackModel = "openai/gpt-fallback"
	cost := NewCostTracker()
	cost.Record("carol", 1.0)
	r := NewTieredRouter(cfg, nil, cost, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)
	perms.CostBudgetDailyUSD = 0.00005 // below even the free tier estimate

	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.9}, models.AuthContext{SenderID: "carol", Permissions: perms})
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-fallback", decision.Model)
	require.True(t, decision.BudgetConstrained)
}

func TestTieredRouterCandidateChainIncludesTierModelsAndFallback(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Tiers[2].Models = []string{"openai/gpt-premium", "openai/gpt-premium-alt"}
	cfg.FallbackModel = "openai/gpt-free"
	r := NewTieredRouter(cfg, nil, nil, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)

	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.9}, models.AuthContext{SenderID: "dave", Permissions: perms})
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-premium", decision.Model)
	require.Equal(t, []string{"openai/gpt-premium-alt", "openai/gpt-free"}, decision.CandidateModels)
}

func TestTieredRouterLowestCostStrategy(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SelectionStrategy = models.StrategyLowestCost
	r := NewTieredRouter(cfg, nil, nil, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)

	// Complexity 0.55 is inside both standard and premium ranges.
	decision, err := r.Route(context.Background(), models.Classification{Complexity: 0.55}, models.AuthContext{SenderID: "erin", Permissions: perms})
	require.NoError(t, err)
	require.Equal(t, "standard", decision.Tier)
}

func TestTieredRouterRoundRobinRotates(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SelectionStrategy = models.StrategyRoundRobin
	r := NewTieredRouter(cfg, nil, nil, nil)
	perms := models.DefaultUserPermissions(models.PermissionUser)
	auth := models.AuthContext{SenderID: "frank", Permissions: perms}

	first, err := r.Route(context.Background(), models.Classification{Complexity: 0.55}, auth)
	require.NoError(t, err)
	second, err := r.Route(context.Background(), models.Classification{Complexity: 0.55}, auth)
	require.NoError(t, err)
	require.NotEqual(t, first.Tier, second.Tier)
}
