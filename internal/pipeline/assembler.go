package pipeline

import (
	"github.com/weave-logic-ai/weft/pkg/models"
)

// estimateTokens is the spec.md §4.6 baseline token estimator:
// chars/4 + 4 overhead per message.
func estimateTokens(msg models.ConversationMessage) int {
	return len(msg.Content)/4 + 4
}

// Assembler shapes the prompt to fit within a context-token budget,
// preserving the first message (the system prompt) and trimming from the
// oldest non-system turn forward when over budget.
type Assembler struct{}

// NewAssembler constructs an Assembler. It has no teacher analog; no
// config needed since its single parameter (max tokens) is passed at
// call time from the resolved ModelTierConfig.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble trims messages to fit maxContextTokens, always keeping the
// first message.
func (a *Assembler) Assemble(messages []models.ConversationMessage, maxContextTokens int) []models.ConversationMessage {
	if maxContextTokens <= 0 || len(messages) == 0 {
		return messages
	}

	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	if total <= maxContextTokens {
		return messages
	}

	// Keep message 0 (system prompt) unconditionally; drop from index 1
	// forward (oldest first) until within budget.
	kept := append([]models.ConversationMessage(nil), messages...)
	systemTokens := 0
	if len(kept) > 0 {
		systemTokens = estimateTokens(kept[0])
	}

	for len(kept) > 1 {
		total = systemTokens
		for _, m := range kept[1:] {
			total += estimateTokens(m)
		}
		if total <= maxContextTokens {
			break
		}
		kept = append(kept[:1], kept[2:]...)
	}
	return kept
}
