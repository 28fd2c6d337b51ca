package pipeline

import (
	"context"
	"time"

	"github.com/weave-logic-ai/weft/pkg/models"
)

// Router is the pipeline's narrow view of the tiered router: given a
// classification and auth context, decide where to send the request.
// internal/routing.Router satisfies this.
type Router interface {
	Route(ctx context.Context, class models.Classification, auth models.AuthContext) (models.RoutingDecision, error)
}

// Transport is the pipeline's narrow view of the transport layer: a
// completed message plus token counts. internal/transport.FailoverChain
// satisfies this via its AsPipelineTransport adapter (transport imports
// pipeline for this one adapter type; pipeline imports nothing from
// transport, so no cycle).
type Transport interface {
	Complete(ctx context.Context, req models.ChatRequest) (models.ConversationMessage, int, int, error)
}

// Pipeline is one named instance of the six stages. The Classifier lives
// outside the Pipeline (selection depends on it, per spec.md §4.6) and is
// owned by the PipelineRegistry.
//
// ShouldFallback, when set, classifies a transport error as eligible for
// walking the RoutingDecision's candidate-model chain (the rest of the
// tier's models, then the configured fallback model). Wiring it to
// transport.IsFailoverEligible keeps the classification typed; a nil
// hook disables the walk. The pipeline package takes a function rather
// than importing the transport package so the dependency between the two
// stays one-directional.
type Pipeline struct {
	Name           string
	Router         Router
	Assembler      *Assembler
	Transport      Transport
	Scorer         Scorer
	Learner        Learner
	ShouldFallback func(error) bool
}

// Result is the outcome of running Complete end to end.
type Result struct {
	Message  models.ConversationMessage
	Decision models.RoutingDecision
	Outcome  models.ResponseOutcome
}

// Complete runs a single request through Router -> Assembler -> Transport
// -> Scorer -> Learner. The Classifier has already run by this point;
// class is passed in from PipelineRegistry.Complete.
func (p *Pipeline) Complete(ctx context.Context, class models.Classification, auth models.AuthContext, messages []models.ConversationMessage, maxContextTokens int) (Result, error) {
	decision, err := p.Router.Route(ctx, class, auth)
	if err != nil {
		return Result{}, err
	}

	assembled := p.Assembler.Assemble(messages, maxContextTokens)

	chain := append([]string{decision.Model}, decision.CandidateModels...)
	var (
		message   models.ConversationMessage
		tokensIn  int
		tokensOut int
		model     string
	)
	start := time.Now()
	for i, candidate := range chain {
		model = candidate
		message, tokensIn, tokensOut, err = p.Transport.Complete(ctx, models.ChatRequest{
			Messages:    assembled,
			Model:       candidate,
			AuthContext: &auth,
		})
		if err == nil {
			break
		}
		if p.ShouldFallback == nil || !p.ShouldFallback(err) || i == len(chain)-1 {
			break
		}
	}
	latencyMS := time.Since(start).Milliseconds()
	if latencyMS <= 0 {
		// Measured wall time, rounded up to the millisecond floor so a
		// persisted outcome always records a positive latency.
		latencyMS = 1
	}

	outcome := models.ResponseOutcome{
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		LatencyMS: latencyMS,
	}
	if err != nil {
		outcome.ErrorKind = "transport_error"
		p.Learner.Record(outcome)
		return Result{Decision: decision, Outcome: outcome}, err
	}

	decision.Model = model
	outcome.Score = p.Scorer.Score(models.ChatRequest{Messages: assembled}, message.Content)
	p.Learner.Record(outcome)

	return Result{Message: message, Decision: decision, Outcome: outcome}, nil
}

// Registry holds a default Pipeline and zero or more specialized
// pipelines, selected by TaskType after classification.
type Registry struct {
	Classifier   Classifier
	Default      *Pipeline
	Specialized  map[models.TaskType]*Pipeline
}

// NewRegistry constructs a registry around a default pipeline.
func NewRegistry(classifier Classifier, def *Pipeline) *Registry {
	return &Registry{Classifier: classifier, Default: def, Specialized: map[models.TaskType]*Pipeline{}}
}

// Register adds a specialized pipeline for a given TaskType.
func (r *Registry) Register(task models.TaskType, p *Pipeline) {
	r.Specialized[task] = p
}

// Complete classifies the request first (selection depends on TaskType
// per spec.md §4.6), then dispatches to the matching specialized
// pipeline or the default.
func (r *Registry) Complete(ctx context.Context, auth models.AuthContext, messages []models.ConversationMessage, maxContextTokens int) (Result, error) {
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			lastUser = messages[i].Content
			break
		}
	}

	class := r.Classifier.Classify(lastUser)

	p := r.Default
	if sp, ok := r.Specialized[class.Task]; ok {
		p = sp
	}
	return p.Complete(ctx, class, auth, messages, maxContextTokens)
}
