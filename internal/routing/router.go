package routing

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// ErrRateLimited is returned when a sender exceeds their configured
// rate limit; the caller should surface a structured outbound message
// without calling transport (spec.md §4.7 step 7).
var ErrRateLimited = errors.New("routing: rate limit exceeded")

// ErrNoTierAvailable is returned when no tier matches even after
// escalation, and no fallback_model is configured.
var ErrNoTierAvailable = errors.New("routing: no tier available")

// ErrBudgetExceeded is returned when every permitted tier exceeds the
// sender's remaining budget and no fallback_model is configured.
var ErrBudgetExceeded = errors.New("routing: budget exceeded")

// PermissionResolver looks up the resolved permissions for a sender on a
// channel, applying the §4.7 layered precedence.
type PermissionResolver interface {
	Resolve(channel models.Channel, senderID string) models.UserPermissions
}

// TieredRouter implements the full tier-selection algorithm of
// spec.md §4.7. Structurally grounded on the teacher's
// internal/agent/routing/router.go candidate-list construction; the
// complexity/budget/escalation logic has no teacher analog (see
// DESIGN.md).
type TieredRouter struct {
	config  models.RoutingConfig
	perms   PermissionResolver
	cost    *CostTracker
	limiter *RateLimiter
	now     func() time.Time

	rrCounter uint64
}

// NewTieredRouter constructs a router over the given config.
func NewTieredRouter(cfg models.RoutingConfig, perms PermissionResolver, cost *CostTracker, nowFn func() time.Time) *TieredRouter {
	if nowFn == nil {
		nowFn = time.Now
	}
	window := time.Duration(cfg.RateLimiting.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	maxTracked := cfg.RateLimiting.MaxTracked
	if maxTracked <= 0 {
		maxTracked = 10000
	}
	return &TieredRouter{
		config:  cfg,
		perms:   perms,
		cost:    cost,
		limiter: NewRateLimiter(window, maxTracked, nowFn),
		now:     nowFn,
	}
}

// Route runs the full §4.7 algorithm: rate limit, tier filter by
// max_tier and complexity_range, strategy selection, escalation, budget
// check, producing a RoutingDecision.
func (r *TieredRouter) Route(ctx context.Context, class models.Classification, auth models.AuthContext) (models.RoutingDecision, error) {
	perms := auth.Permissions
	if r.perms != nil {
		perms = r.perms.Resolve(auth.Channel, auth.SenderID)
	}

	if !r.limiter.Allow(auth.SenderID, perms.RateLimitPerMinute) {
		return models.RoutingDecision{Reason: "rate_limited"}, ErrRateLimited
	}

	effectiveMaxTier := perms.MaxTier
	candidates := r.filterTiers(effectiveMaxTier, class.Complexity)
	escalated := false
	if len(candidates) == 0 && perms.EscalationAllowed && r.config.Escalation.Enabled && class.Complexity >= r.config.Escalation.Threshold {
		widened := r.widenMaxTier(perms.MaxTier, r.config.Escalation.MaxEscalationTiers)
		candidates = r.filterTiers(widened, class.Complexity)
		if len(candidates) > 0 {
			escalated = true
			effectiveMaxTier = widened
		}
	}

	if len(candidates) == 0 {
		if r.config.FallbackModel != "" {
			return models.RoutingDecision{Model: r.config.FallbackModel, Reason: "no_tier_fallback_model", Escalated: escalated}, nil
		}
		return models.RoutingDecision{Reason: "no_tier_available"}, ErrNoTierAvailable
	}

	tier := r.selectByStrategy(candidates)
	reason := "tier_selected"
	constrained := false
	if !r.checkBudget(auth.SenderID, perms, tier) {
		downgraded, ok := r.highestTierWithinBudget(auth.SenderID, perms)
		if !ok {
			if r.config.FallbackModel != "" {
				return models.RoutingDecision{
					Provider:          providerOf(r.config.FallbackModel),
					Model:             r.config.FallbackModel,
					Reason:            "budget_fallback_model",
					Escalated:         escalated,
					BudgetConstrained: true,
				}, nil
			}
			return models.RoutingDecision{Reason: "budget_exceeded"}, ErrBudgetExceeded
		}
		tier = downgraded
		reason = "budget_constrained"
		constrained = true
	}

	model := tier.Models[0]
	return models.RoutingDecision{
		Provider:          providerOf(model),
		Model:             model,
		Tier:              tier.Name,
		Reason:            reason,
		CostEstimateUSD:   estimateCost(tier),
		Escalated:         escalated,
		BudgetConstrained: constrained,
		CandidateModels:   r.candidateChain(tier, effectiveMaxTier),
	}, nil
}

// estimateCost prices a typical one-thousand-token request against the
// tier's per-1k rate, the unit budgets are expressed in.
func estimateCost(tier models.ModelTierConfig) float64 {
	return tier.CostPer1kTokens
}

// highestTierWithinBudget walks the permitted tiers from most to least
// capable (config order, capped by max_tier) and returns the first one
// whose estimated cost still fits the sender's remaining budget. The
// complexity range is deliberately ignored here: a budget downgrade
// serves the request with a cheaper tier rather than rejecting it
// (spec.md §4.7 step 5).
func (r *TieredRouter) highestTierWithinBudget(senderID string, perms models.UserPermissions) (models.ModelTierConfig, bool) {
	maxIdx := r.tierIndex(perms.MaxTier)
	for i := maxIdx; i >= 0; i-- {
		if i >= len(r.config.Tiers) {
			continue
		}
		if r.checkBudget(senderID, perms, r.config.Tiers[i]) {
			return r.config.Tiers[i], true
		}
	}
	return models.ModelTierConfig{}, false
}

// candidateChain builds the ordered model fallback list for the
// transport stage: the rest of the tier's models, then the configured
// fallback_model when it belongs to a tier at or below the user's
// effective max_tier after any escalation (spec.md §4.7 step 6).
func (r *TieredRouter) candidateChain(tier models.ModelTierConfig, effectiveMaxTier string) []string {
	var chain []string
	if len(tier.Models) > 1 {
		chain = append(chain, tier.Models[1:]...)
	}
	if fb := r.config.FallbackModel; fb != "" && r.modelPermitted(fb, effectiveMaxTier) {
		chain = append(chain, fb)
	}
	return chain
}

// modelPermitted reports whether model belongs to a tier at or below
// maxTier. A fallback model configured outside every tier is treated as
// permitted, since no tier bound applies to it.
func (r *TieredRouter) modelPermitted(model, maxTier string) bool {
	maxIdx := r.tierIndex(maxTier)
	for i, t := range r.config.Tiers {
		for _, m := range t.Models {
			if m == model {
				return i <= maxIdx
			}
		}
	}
	return true
}

func (r *TieredRouter) filterTiers(maxTier string, complexity float64) []models.ModelTierConfig {
	var out []models.ModelTierConfig
	maxIdx := r.tierIndex(maxTier)
	for i, t := range r.config.Tiers {
		if maxTier != "" && i > maxIdx {
			continue
		}
		if !t.ComplexityRange.Contains(complexity) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *TieredRouter) tierIndex(name string) int {
	if name == "" {
		return len(r.config.Tiers) - 1
	}
	for i, t := range r.config.Tiers {
		if t.Name == name {
			return i
		}
	}
	return len(r.config.Tiers) - 1
}

func (r *TieredRouter) widenMaxTier(current string, steps int) string {
	idx := r.tierIndex(current) + steps
	if idx >= len(r.config.Tiers) {
		idx = len(r.config.Tiers) - 1
	}
	if idx < 0 || idx >= len(r.config.Tiers) {
		return current
	}
	return r.config.Tiers[idx].Name
}

func (r *TieredRouter) selectByStrategy(candidates []models.ModelTierConfig) models.ModelTierConfig {
	switch r.config.SelectionStrategy {
	case models.StrategyRoundRobin:
		idx := atomic.AddUint64(&r.rrCounter, 1) - 1
		return candidates[int(idx)%len(candidates)]
	case models.StrategyLowestCost:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.CostPer1kTokens < best.CostPer1kTokens {
				best = c
			}
		}
		return best
	case models.StrategyRandom:
		return candidates[rand.Intn(len(candidates))] // #nosec G404 -- selection, not security
	default: // preference_order
		return candidates[0]
	}
}

func (r *TieredRouter) checkBudget(senderID string, perms models.UserPermissions, tier models.ModelTierConfig) bool {
	if r.cost == nil {
		return true
	}
	estimate := estimateCost(tier)
	if perms.CostBudgetDailyUSD > 0 && estimate > r.cost.RemainingDaily(senderID, perms.CostBudgetDailyUSD) {
		return false
	}
	if perms.CostBudgetMonthlyUSD > 0 && estimate > r.cost.RemainingMonthly(senderID, perms.CostBudgetMonthlyUSD) {
		return false
	}
	return true
}

func providerOf(model string) string {
	for i, r := range model {
		if r == '/' {
			return model[:i]
		}
	}
	return "default"
}

// StaticRouter is the default, backward-compatible router: it ignores
// complexity and always returns the configured default model, with
// tier-related fields left at their zero values.
type StaticRouter struct {
	DefaultModel string
}

func (s *StaticRouter) Route(ctx context.Context, class models.Classification, auth models.AuthContext) (models.RoutingDecision, error) {
	return models.RoutingDecision{
		Provider: providerOf(s.DefaultModel),
		Model:    s.DefaultModel,
		Reason:   "static",
	}, nil
}
