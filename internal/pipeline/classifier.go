// Package pipeline implements the six-stage request pipeline:
// Classifier -> Router -> Assembler -> Transport -> Scorer -> Learner,
// orchestrated by a PipelineRegistry. Grounded on the teacher's
// internal/agent/routing/heuristic.go classifier for the keyword-tagging
// approach, generalized to emit TaskType+complexity.
package pipeline

import (
	"strings"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Classifier assigns a TaskType and complexity to an inbound request.
type Classifier interface {
	Classify(text string) models.Classification
}

// keywordGroup pairs a TaskType with the substrings that identify it.
// Priority order matches spec.md §4.6: code > review > research >
// creative > analysis > tool_use.
type keywordGroup struct {
	task     models.TaskType
	keywords []string
}

var defaultGroups = []keywordGroup{
	{models.TaskCode, []string{"function", "class ", "def ", "bug", "compile", "stack trace", "refactor", "```"}},
	{models.TaskReview, []string{"review", "pull request", "pr #", "lgtm", "diff"}},
	{models.TaskResearch, []string{"research", "investigate", "compare", "survey", "citations"}},
	{models.TaskCreative, []string{"write a story", "poem", "brainstorm", "creative"}},
	{models.TaskAnalysis, []string{"analyze", "analysis", "statistics", "trend", "dataset"}},
	{models.TaskToolUse, []string{"run ", "execute", "call the", "fetch", "search the web"}},
}

// HeuristicClassifier is the spec's baseline Classifier: lower-cased
// substring match against a priority-ordered keyword-group list.
// complexity = (matched_keyword_count / word_count) clamped to
// [0.1, 0.9].
type HeuristicClassifier struct {
	groups []keywordGroup
}

// NewHeuristicClassifier constructs the default classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{groups: defaultGroups}
}

func (c *HeuristicClassifier) Classify(text string) models.Classification {
	lower := strings.ToLower(text)
	wordCount := len(strings.Fields(lower))
	if wordCount == 0 {
		wordCount = 1
	}

	task := models.TaskGeneric
	matched := 0
	var tags []string

	for _, g := range c.groups {
		groupMatched := 0
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				groupMatched++
			}
		}
		if groupMatched > 0 {
			tags = append(tags, string(g.task))
			matched += groupMatched
			if task == models.TaskGeneric {
				task = g.task
			}
		}
	}

	complexity := float64(matched) / float64(wordCount)
	if complexity < 0.1 {
		complexity = 0.1
	}
	if complexity > 0.9 {
		complexity = 0.9
	}

	return models.Classification{Task: task, Complexity: complexity, Tags: tags}
}
