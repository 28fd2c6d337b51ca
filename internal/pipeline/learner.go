package pipeline

import (
	"sync"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Learner records a ResponseOutcome. Baseline NoopLearner does not
// persist anything; EMALearner maintains per-model exponential moving
// average statistics, mirroring the teacher's running-counter style in
// its ProviderState (internal/agent/failover.go).
type Learner interface {
	Record(outcome models.ResponseOutcome)
}

// NoopLearner is the spec.md §4.6 baseline.
type NoopLearner struct{}

func (NoopLearner) Record(models.ResponseOutcome) {}

// ModelStats is the EMA-tracked running statistics for one model.
type ModelStats struct {
	AvgLatencyMS float64
	AvgScore     float64
	Samples      int
}

// EMALearner maintains per-model EMA statistics with a fixed smoothing
// factor.
type EMALearner struct {
	alpha float64

	mu    sync.Mutex
	stats map[string]*ModelStats
}

// NewEMALearner constructs a learner with smoothing factor alpha
// (0 < alpha <= 1; higher weights recent samples more heavily).
func NewEMALearner(alpha float64) *EMALearner {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &EMALearner{alpha: alpha, stats: make(map[string]*ModelStats)}
}

func (l *EMALearner) Record(outcome models.ResponseOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stats[outcome.Model]
	if !ok {
		s = &ModelStats{AvgLatencyMS: float64(outcome.LatencyMS), AvgScore: outcome.Score, Samples: 1}
		l.stats[outcome.Model] = s
		return
	}
	s.AvgLatencyMS = l.alpha*float64(outcome.LatencyMS) + (1-l.alpha)*s.AvgLatencyMS
	s.AvgScore = l.alpha*outcome.Score + (1-l.alpha)*s.AvgScore
	s.Samples++
}

// Stats returns a copy of the current statistics for model, if any.
func (l *EMALearner) Stats(model string) (ModelStats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stats[model]
	if !ok {
		return ModelStats{}, false
	}
	return *s, true
}
