package delegation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideRuleMatchWins(t *testing.T) {
	e := NewEngine([]Rule{{Pattern: `(?i)^urgent:`, Target: TargetFlow}}, true, true, 3)
	assert.Equal(t, TargetFlow, e.Decide("urgent: fix the outage now", 0))
}

func TestDecideInvalidRuleSkipped(t *testing.T) {
	e := NewEngine([]Rule{{Pattern: `(unterminated`, Target: TargetFlow}}, true, true, 3)
	// falls through to the complexity-threshold path since the bad regex was skipped
	got := e.Decide("hi", 0)
	assert.Equal(t, TargetLocal, got)
}

func TestDecideThresholds(t *testing.T) {
	e := NewEngine(nil, true, true, 3)
	assert.Equal(t, TargetLocal, e.Decide("hi", 0))

	longTask := "Please design a new multi-step architecture migration plan addressing " +
		"security, performance, and refactor concerns across the whole distributed " +
		"system, with detailed research into debug and optimize strategies for every " +
		"subsystem we operate, covering rollout, rollback, and monitoring end to end " +
		"across every region we currently serve traffic from today and in the future. " +
		"Why does this matter? What tradeoffs apply? How should we sequence it? " +
		"Which team owns it? When should it ship?"
	assert.Equal(t, TargetFlow, e.Decide(longTask, 0))
}

func TestDecideFallbackChainWhenUnavailable(t *testing.T) {
	e := NewEngine([]Rule{{Pattern: `.*`, Target: TargetFlow}}, false, false, 3)
	assert.Equal(t, TargetLocal, e.Decide("anything", 0))

	e2 := NewEngine([]Rule{{Pattern: `.*`, Target: TargetFlow}}, true, false, 3)
	assert.Equal(t, TargetClaude, e2.Decide("anything", 0))
}

func TestDecideMaxDepthForcesLocal(t *testing.T) {
	e := NewEngine([]Rule{{Pattern: `.*`, Target: TargetFlow}}, true, true, 3)
	assert.Equal(t, TargetLocal, e.Decide("anything", 3))
}

func TestComplexityEstimateEmpty(t *testing.T) {
	assert.Equal(t, 0.0, ComplexityEstimate(""))
}

func TestComplexityEstimateBounded(t *testing.T) {
	long := ""
	for i := 0; i < 2000; i++ {
		long += "a"
	}
	score := ComplexityEstimate(long + "? ? ? ? ? architecture security performance")
	assert.LessOrEqual(t, score, 1.0)
}
