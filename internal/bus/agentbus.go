package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// ErrUnknownRecipient is returned when a message is sent to an agent ID
// with no registered inbox.
type ErrUnknownRecipient struct {
	AgentID string
}

func (e *ErrUnknownRecipient) Error() string {
	return fmt.Sprintf("bus: no inbox registered for agent %q", e.AgentID)
}

// inbox is one agent's private inter-agent message queue.
type inbox struct {
	ch chan models.InterAgentMessage
}

// AgentBus routes InterAgentMessage values between registered per-agent
// inboxes. There is no broadcast: a sender wanting multiple recipients
// enqueues once per recipient (spec.md §4.2). Expired messages are
// discarded without delivery and counted.
type AgentBus struct {
	mu      sync.RWMutex
	inboxes map[string]*inbox
	now     func() time.Time

	expiredMu    sync.Mutex
	expiredCount uint64
}

// NewAgentBus constructs an empty bus. Pass nowFn for deterministic
// tests; nil uses time.Now.
func NewAgentBus(nowFn func() time.Time) *AgentBus {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AgentBus{
		inboxes: make(map[string]*inbox),
		now:     nowFn,
	}
}

// Register creates a bounded inbox for agentID. Re-registering an agent
// replaces its inbox (the old one is abandoned, not drained).
func (b *AgentBus) Register(agentID string, capacity int) {
	if capacity <= 0 {
		capacity = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes[agentID] = &inbox{ch: make(chan models.InterAgentMessage, capacity)}
}

// Unregister removes an agent's inbox. Messages already queued for it are
// discarded.
func (b *AgentBus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inboxes, agentID)
}

// Send delivers msg to msg.To's inbox. Returns ErrUnknownRecipient if no
// inbox is registered for that agent. The send does not block past ctx
// cancellation.
func (b *AgentBus) Send(ctx context.Context, msg models.InterAgentMessage) error {
	b.mu.RLock()
	box, ok := b.inboxes[msg.To]
	b.mu.RUnlock()
	if !ok {
		return &ErrUnknownRecipient{AgentID: msg.To}
	}
	select {
	case box.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a non-expired message arrives for agentID, ctx is
// cancelled, or an unknown-recipient error occurs. Expired messages
// pulled off the inbox are discarded and counted, and Receive continues
// waiting for the next one. An agent may only receive from its own
// inbox.
func (b *AgentBus) Receive(ctx context.Context, agentID string) (models.InterAgentMessage, error) {
	b.mu.RLock()
	box, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return models.InterAgentMessage{}, &ErrUnknownRecipient{AgentID: agentID}
	}
	for {
		select {
		case msg := <-box.ch:
			if msg.Expired(b.now()) {
				b.expiredMu.Lock()
				b.expiredCount++
				b.expiredMu.Unlock()
				continue
			}
			return msg, nil
		case <-ctx.Done():
			return models.InterAgentMessage{}, ctx.Err()
		}
	}
}

// ExpiredCount returns the number of inter-agent messages discarded for
// having exceeded their TTL before being read.
func (b *AgentBus) ExpiredCount() uint64 {
	b.expiredMu.Lock()
	defer b.expiredMu.Unlock()
	return b.expiredCount
}
