package transport

import (
	"context"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Response is the provider's reply to a ChatRequest.
type Response struct {
	Message   models.ConversationMessage
	TokensIn  int
	TokensOut int
}

// StreamCallback receives incremental text chunks. It is a mutable
// function — implementations may close over state (an accumulator, a
// channel) — matching spec.md §4.5's "stateful callbacks must compile"
// requirement.
type StreamCallback func(chunk string) error

// Transport is implemented once per LLM provider. Concrete wire formats
// are an external collaborator (spec.md §1); this interface is the
// narrow contract the retry/failover layer drives.
type Transport interface {
	Name() string
	Complete(ctx context.Context, req models.ChatRequest) (Response, error)
	CompleteStream(ctx context.Context, req models.ChatRequest, cb StreamCallback) (Response, error)
}
