package pipeline

import "github.com/weave-logic-ai/weft/pkg/models"

// Scorer assigns a quality score in [0,1] to a completed response.
type Scorer interface {
	Score(req models.ChatRequest, resp string) float64
}

// NoopScorer is the spec.md §4.6 baseline: always 1.0.
type NoopScorer struct{}

func (NoopScorer) Score(req models.ChatRequest, resp string) float64 { return 1.0 }
