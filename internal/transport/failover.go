package transport

import (
	"context"
	"log/slog"

	"github.com/weave-logic-ai/weft/internal/pipeline"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// FailoverChain drives an ordered list of Transports through the retry
// wrapper, walking to the next provider on a failover-eligible error and
// aborting immediately on an ineligible one. Structurally grounded on the
// teacher's FailoverOrchestrator (ordered provider list, per-provider
// attempt loop), but error classification is by type, not by
// substring-matching (see errors.go).
type FailoverChain struct {
	providers []Transport
	retry     RetryConfig
	logger    *slog.Logger
}

// NewFailoverChain constructs a chain over providers in priority order.
func NewFailoverChain(providers []Transport, retry RetryConfig, logger *slog.Logger) *FailoverChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverChain{providers: providers, retry: retry, logger: logger}
}

// Complete tries each provider in order. Within a provider, errors
// classified retryable are retried via the backoff wrapper; once retries
// on that provider are exhausted (or the error is immediately
// failover-eligible, e.g. NotConfigured/ModelNotFound), the chain moves
// to the next provider. An ineligible error (AuthFailed, InvalidResponse)
// returns immediately without trying further providers.
func (c *FailoverChain) Complete(ctx context.Context, req models.ChatRequest) (Response, error) {
	perProvider := make(map[string]error, len(c.providers))

	for _, p := range c.providers {
		var resp Response
		err := WithRetry(ctx, c.retry, func(ctx context.Context) error {
			r, err := p.Complete(ctx, req)
			resp = r
			return err
		})
		if err == nil {
			return resp, nil
		}

		perProvider[p.Name()] = err

		if IsIneligible(err) {
			c.logger.Warn("transport: ineligible error, aborting failover chain", "provider", p.Name(), "error", err)
			return Response{}, err
		}
		if IsFailoverEligible(err) {
			c.logger.Info("transport: failing over to next provider", "provider", p.Name(), "error", err)
			continue
		}
		// Not retryable, not failover-eligible, not explicitly ineligible:
		// treat conservatively as a hard stop rather than silently
		// advancing past an unclassified error.
		return Response{}, err
	}

	return Response{}, &AllProvidersExhaustedError{PerProviderErrors: perProvider}
}

// CompleteStream is symmetric to Complete for the streaming path. Partial
// output already emitted by a failed provider via cb is not retracted —
// the next provider starts cleanly and its own chunks continue the
// stream from scratch. This is documented behavior, not a bug
// (spec.md §4.5).
func (c *FailoverChain) CompleteStream(ctx context.Context, req models.ChatRequest, cb StreamCallback) (Response, error) {
	perProvider := make(map[string]error, len(c.providers))

	for _, p := range c.providers {
		var resp Response
		err := WithRetry(ctx, c.retry, func(ctx context.Context) error {
			r, err := p.CompleteStream(ctx, req, cb)
			resp = r
			return err
		})
		if err == nil {
			return resp, nil
		}

		perProvider[p.Name()] = err

		if IsIneligible(err) {
			return Response{}, err
		}
		if IsFailoverEligible(err) {
			c.logger.Info("transport: stream failing over to next provider", "provider", p.Name(), "error", err)
			continue
		}
		return Response{}, err
	}

	return Response{}, &AllProvidersExhaustedError{PerProviderErrors: perProvider}
}

var _ Transport = (*chainAdapter)(nil)

// chainAdapter lets a FailoverChain itself satisfy Transport, so pipelines
// that expect a single Transport can be handed the whole chain.
type chainAdapter struct {
	chain *FailoverChain
	name  string
}

// AsTransport wraps the chain as a single named Transport.
func (c *FailoverChain) AsTransport(name string) Transport {
	return &chainAdapter{chain: c, name: name}
}

func (a *chainAdapter) Name() string { return a.name }

func (a *chainAdapter) Complete(ctx context.Context, req models.ChatRequest) (Response, error) {
	return a.chain.Complete(ctx, req)
}

func (a *chainAdapter) CompleteStream(ctx context.Context, req models.ChatRequest, cb StreamCallback) (Response, error) {
	return a.chain.CompleteStream(ctx, req, cb)
}

var _ pipeline.Transport = (*pipelineAdapter)(nil)

// pipelineAdapter lets a FailoverChain satisfy the pipeline package's
// narrower Transport view (message + token counts, no provider name).
type pipelineAdapter struct {
	chain *FailoverChain
}

// AsPipelineTransport wraps the chain for use as a Pipeline's Transport
// stage.
func (c *FailoverChain) AsPipelineTransport() pipeline.Transport {
	return &pipelineAdapter{chain: c}
}

func (a *pipelineAdapter) Complete(ctx context.Context, req models.ChatRequest) (models.ConversationMessage, int, int, error) {
	resp, err := a.chain.Complete(ctx, req)
	return resp.Message, resp.TokensIn, resp.TokensOut, err
}
