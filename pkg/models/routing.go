package models

// TierSelectionStrategy decides which tier candidate within the filtered
// set is tried first.
type TierSelectionStrategy string

const (
	StrategyPreferenceOrder TierSelectionStrategy = "preference_order"
	StrategyRoundRobin      TierSelectionStrategy = "round_robin"
	StrategyLowestCost      TierSelectionStrategy = "lowest_cost"
	StrategyRandom          TierSelectionStrategy = "random"
)

// ComplexityRange is a closed interval over [0,1]; Lo must be <= Hi.
// Overlapping ranges across tiers are allowed and expected.
type ComplexityRange struct {
	Lo float64 `json:"lo" yaml:"lo"`
	Hi float64 `json:"hi" yaml:"hi"`
}

// Contains reports whether c falls within the range, inclusive.
func (r ComplexityRange) Contains(c float64) bool {
	return c >= r.Lo && c <= r.Hi
}

// ModelTierConfig describes one routable model tier.
type ModelTierConfig struct {
	Name             string          `json:"name" yaml:"name"`
	Models           []string        `json:"models" yaml:"models"`
	ComplexityRange  ComplexityRange `json:"complexity_range" yaml:"complexity_range"`
	CostPer1kTokens  float64         `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
	MaxContextTokens int             `json:"max_context_tokens" yaml:"max_context_tokens"`
}

// EscalationConfig controls how far the tier search widens when the
// initially-eligible tier set is empty.
type EscalationConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	Threshold          float64 `json:"threshold" yaml:"threshold"`
	MaxEscalationTiers int     `json:"max_escalation_tiers" yaml:"max_escalation_tiers"`
}

// RoutingMode selects between the backward-compatible static router and
// the full tiered router.
type RoutingMode string

const (
	RoutingModeStatic RoutingMode = "static"
	RoutingModeTiered RoutingMode = "tiered"
)

// CostBudgets and RateLimiting hold the process-wide accounting config
// referenced by RoutingConfig; per-sender state lives in internal/routing.
type CostBudgets struct {
	DailyUSD   float64 `json:"daily_usd" yaml:"daily_usd"`
	MonthlyUSD float64 `json:"monthly_usd" yaml:"monthly_usd"`
}

type RateLimiting struct {
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
	MaxTracked    int `json:"max_tracked" yaml:"max_tracked"`
}

// RoutingConfig is the top-level routing configuration. Mode defaults to
// static for backward compatibility, matching spec.md §3.
type RoutingConfig struct {
	Mode              RoutingMode           `json:"mode" yaml:"mode"`
	Tiers             []ModelTierConfig     `json:"tiers" yaml:"tiers"`
	SelectionStrategy TierSelectionStrategy `json:"selection_strategy" yaml:"selection_strategy"`
	FallbackModel     string                `json:"fallback_model,omitempty" yaml:"fallback_model,omitempty"`
	Permissions       map[string]UserPermissions `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Escalation        EscalationConfig      `json:"escalation" yaml:"escalation"`
	CostBudgets       CostBudgets           `json:"cost_budgets" yaml:"cost_budgets"`
	RateLimiting      RateLimiting          `json:"rate_limiting" yaml:"rate_limiting"`
}

// RoutingDecision records where a ChatRequest was routed, and why.
// CandidateModels is the ordered fallback chain the transport stage may
// walk when Model turns out to be unavailable: the rest of the selected
// tier's models list, then the configured fallback_model when it is
// permitted for this user. Empty for static routing.
type RoutingDecision struct {
	Provider          string   `json:"provider"`
	Model             string   `json:"model"`
	Reason            string   `json:"reason"`
	Tier              string   `json:"tier,omitempty"`
	CostEstimateUSD   float64  `json:"cost_estimate_usd,omitempty"`
	Escalated         bool     `json:"escalated"`
	BudgetConstrained bool     `json:"budget_constrained"`
	CandidateModels   []string `json:"candidate_models,omitempty"`
}

// ChatRequest is the unit of work handed to the pipeline after assembly.
type ChatRequest struct {
	Messages    []ConversationMessage `json:"messages"`
	Tools       []Tool                `json:"tools,omitempty"`
	Model       string                `json:"model,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float64               `json:"temperature,omitempty"`
	AuthContext *AuthContext          `json:"auth_context,omitempty"`
}

// ResponseOutcome is fed to the Learner stage. LatencyMS must be a real
// measurement, never estimated.
type ResponseOutcome struct {
	RequestFingerprint string  `json:"request_fingerprint"`
	Model              string  `json:"model"`
	TokensIn           int     `json:"tokens_in"`
	TokensOut          int     `json:"tokens_out"`
	LatencyMS          int64   `json:"latency_ms"`
	ErrorKind          string  `json:"error_kind,omitempty"`
	Score              float64 `json:"score"`
}

// TaskType is the Classifier stage's categorical judgment about a
// request, used to select a pipeline and bias tier selection.
type TaskType string

const (
	TaskCode     TaskType = "code"
	TaskReview   TaskType = "review"
	TaskResearch TaskType = "research"
	TaskCreative TaskType = "creative"
	TaskAnalysis TaskType = "analysis"
	TaskToolUse  TaskType = "tool_use"
	TaskGeneric  TaskType = "generic"
)

// Classification is the Classifier stage's output. Complexity is in
// [0,1], matching spec.md §4.6's baseline formula.
type Classification struct {
	Task       TaskType `json:"task"`
	Complexity float64  `json:"complexity"`
	Tags       []string `json:"tags,omitempty"`
}
