// Package delegation decides, for each incoming task, whether it
// should be handled locally, handed to a general-purpose assistant
// ("Claude"), or handed to a heavier external workflow engine
// ("Flow"), and executes the Flow handoff as a subprocess when chosen.
// Grounded on the teacher's internal/agent/routing/heuristic.go
// (regex-tag classification style) for the complexity estimator, and
// its internal/mcp/transport_stdio.go for subprocess spawn mechanics,
// per SPEC_FULL.md §4.9.
package delegation

import (
	"regexp"
	"strings"
)

// Target names the handler a task is delegated to.
type Target string

const (
	TargetLocal  Target = "local"
	TargetClaude Target = "claude"
	TargetFlow   Target = "flow"
)

// Rule matches a task's text against a regex; the first matching rule
// wins over the complexity-threshold fallback.
type Rule struct {
	Pattern string
	Target  Target

	compiled *regexp.Regexp
}

// Engine holds compiled rules and availability flags for the Claude
// and Flow handlers.
type Engine struct {
	rules           []Rule
	claudeAvailable bool
	flowAvailable   bool
	maxDepth        int
}

// NewEngine compiles rules (invalid patterns are skipped, not fatal —
// a single typo'd regex in config should not break delegation for
// every other rule) and constructs an Engine.
func NewEngine(rules []Rule, claudeAvailable, flowAvailable bool, maxDepth int) *Engine {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			continue
		}
		r.compiled = re
		compiled = append(compiled, r)
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &Engine{rules: compiled, claudeAvailable: claudeAvailable, flowAvailable: flowAvailable, maxDepth: maxDepth}
}

// MaxDepth returns the configured delegation depth cap.
func (e *Engine) MaxDepth() int { return e.maxDepth }

// Decide returns the target for task, applying rule matches first (in
// declaration order, first match wins) and falling back to a
// complexity-threshold decision when no rule matches. depth is the
// number of delegation hops already taken for this task chain; at
// maxDepth, Decide always returns TargetLocal to guarantee
// termination.
func (e *Engine) Decide(task string, depth int) Target {
	if depth >= e.maxDepth {
		return TargetLocal
	}
	for _, r := range e.rules {
		if r.compiled.MatchString(task) {
			return e.fallbackChain(r.Target)
		}
	}
	return e.fallbackChain(thresholdTarget(ComplexityEstimate(task)))
}

// fallbackChain downgrades a chosen-but-unavailable target: Flow falls
// back to Claude, Claude falls back to Local (spec.md §4.9's fallback
// chain Flow -> Claude -> Local).
func (e *Engine) fallbackChain(target Target) Target {
	switch target {
	case TargetFlow:
		if e.flowAvailable {
			return TargetFlow
		}
		fallthrough
	case TargetClaude:
		if e.claudeAvailable {
			return TargetClaude
		}
		return TargetLocal
	default:
		return TargetLocal
	}
}

func thresholdTarget(complexity float64) Target {
	switch {
	case complexity < 0.3:
		return TargetLocal
	case complexity < 0.7:
		return TargetClaude
	default:
		return TargetFlow
	}
}

var keywordWeights = map[string]float64{
	"architecture": 0.15, "refactor": 0.12, "migrate": 0.12, "design": 0.1,
	"security": 0.12, "performance": 0.1, "debug": 0.08, "optimize": 0.1,
	"multi-step": 0.15, "research": 0.1,
}

// ComplexityEstimate computes a weighted-sum complexity score in
// [0,1] from task's length, question-mark density, and keyword hits —
// grounded on heuristic.go's regex-tag approach, generalized into a
// continuous score since delegation needs a threshold, not a tag set.
func ComplexityEstimate(task string) float64 {
	trimmed := strings.TrimSpace(task)
	if trimmed == "" {
		return 0
	}

	lengthScore := float64(len(trimmed)) / 500.0
	if lengthScore > 1 {
		lengthScore = 1
	}

	questionMarks := strings.Count(trimmed, "?")
	questionScore := float64(questionMarks) / 5.0
	if questionScore > 1 {
		questionScore = 1
	}

	lower := strings.ToLower(trimmed)
	var keywordScore float64
	for kw, weight := range keywordWeights {
		if strings.Contains(lower, kw) {
			keywordScore += weight
		}
	}
	if keywordScore > 1 {
		keywordScore = 1
	}

	score := lengthScore*0.3 + questionScore*0.2 + keywordScore*0.5
	if score > 1 {
		score = 1
	}
	return score
}
