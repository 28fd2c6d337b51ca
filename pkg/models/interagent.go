package models

import (
	"time"

	"github.com/google/uuid"
)

// InterAgentMessage is a message passed between agents over the
// multiagent bus, distinct from the channel-facing InboundMessage. Each
// recipient has its own bounded inbox; messages not read within TTL are
// expired and counted (spec.md §3, §4.2, §4.13).
type InterAgentMessage struct {
	ID      string         `json:"id"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Task    string         `json:"task"`
	Payload map[string]any `json:"payload,omitempty"`
	ReplyTo string         `json:"reply_to,omitempty"`

	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// NewInterAgentMessage stamps a fresh message with a generated ID and
// the current time.
func NewInterAgentMessage(from, to, task string, payload map[string]any, ttl time.Duration) InterAgentMessage {
	return InterAgentMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Task:      task,
		Payload:   payload,
		CreatedAt: time.Now(),
		TTL:       ttl,
	}
}

// Expired reports whether the message's TTL has elapsed as of now.
func (m InterAgentMessage) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.After(m.CreatedAt.Add(m.TTL))
}
