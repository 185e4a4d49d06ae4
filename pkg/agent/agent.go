// Package agent orchestrates a single decision: run the configured
// evaluators in order, fold their evaluations through the scoring
// strategy, assemble explanations, and fingerprint the result in an
// audit record.
//
// An Agent holds no per-call mutable state and is safe to share across
// any number of concurrent callers. Evaluator failures are isolated: a
// panicking or erroring evaluator contributes a failure descriptor
// instead of aborting the run.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/observability"
	"github.com/Mindburn-Labs/arbiter/pkg/scoring"
)

// EnrichmentJournal exposes the fetch outcomes recorded while the
// evaluators ran, oldest first. The agent drains it into the audit
// record after every run.
type EnrichmentJournal interface {
	Journal() []contracts.EnrichmentOutcome
	ResetJournal()
}

// Agent runs decisions over an ordered evaluator list.
type Agent struct {
	evaluators  []evaluator.Evaluator
	strategy    scoring.Strategy
	sink        audit.Sink
	strict      bool
	validate    bool
	logger      *slog.Logger
	instruments *observability.Instruments
	journal     EnrichmentJournal
	sinkErrs    chan error
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithAuditSink delivers every audit record to sink synchronously.
func WithAuditSink(sink audit.Sink) Option {
	return func(a *Agent) { a.sink = sink }
}

// WithStrictMode makes Decide fail when no evaluator produces a verdict.
func WithStrictMode() Option {
	return func(a *Agent) { a.strict = true }
}

// WithValidation checks each returned evaluation for well-formedness,
// dropping failures with a descriptor entry. Off by default for hot
// paths.
func WithValidation() Option {
	return func(a *Agent) { a.validate = true }
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithInstruments overrides the decision-path telemetry instruments.
func WithInstruments(instruments *observability.Instruments) Option {
	return func(a *Agent) { a.instruments = instruments }
}

// WithEnrichmentJournal attaches the outcomes journaled during each run
// to its audit record, so replay can seed them back instead of
// re-fetching.
func WithEnrichmentJournal(journal EnrichmentJournal) Option {
	return func(a *Agent) { a.journal = journal }
}

// New builds an Agent over an ordered evaluator list and a scoring
// strategy.
func New(strategy scoring.Strategy, evaluators []evaluator.Evaluator, opts ...Option) *Agent {
	a := &Agent{
		evaluators:  append([]evaluator.Evaluator(nil), evaluators...),
		strategy:    strategy,
		sink:        audit.NullSink{},
		logger:      slog.Default(),
		instruments: observability.Default(),
		sinkErrs:    make(chan error, 16),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SinkErrors exposes audit sink failures. They never fail the decision
// path; callers that care drain this channel.
func (a *Agent) SinkErrors() <-chan error { return a.sinkErrs }

// Signatures returns the evaluator identities in invocation order.
func (a *Agent) Signatures() []contracts.EvaluatorSignature {
	sigs := make([]contracts.EvaluatorSignature, len(a.evaluators))
	for i, ev := range a.evaluators {
		sigs[i] = contracts.EvaluatorSignature{Name: ev.Name(), ContentHash: ev.ContentHash()}
	}
	return sigs
}

// Decide runs one decision. The context deadline is cooperative: it is
// checked between evaluators, and I/O-bound operators honor it
// internally.
func (a *Agent) Decide(ctx context.Context, dctx *contracts.Context) (_ *contracts.Decision, retErr error) {
	ctx, span := a.instruments.Tracer().Start(ctx, "arbiter.decide")
	defer span.End()

	start := time.Now()
	outcome := "none"
	defer func() {
		a.instruments.RecordDecision(ctx, outcome, a.strategy.Name(), time.Since(start), retErr)
	}()

	if a.journal != nil {
		a.journal.ResetJournal()
	}

	var (
		evaluations []contracts.Evaluation
		because     []string
		failed      []string
	)

	for _, ev := range a.evaluators {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("agent: canceled before evaluator %q: %w", ev.Name(), err)
		}
		eval, tr, err := a.safeEvaluate(ev, dctx)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s failed: %v", ev.Name(), err))
			continue
		}
		if tr != nil {
			because = append(because, tr.Because...)
			failed = append(failed, tr.Failed...)
		}
		if eval == nil {
			continue
		}
		if a.validate {
			if verr := evaluator.ValidateEvaluation(eval); verr != nil {
				failed = append(failed, fmt.Sprintf("%s produced invalid evaluation: %v", ev.Name(), verr))
				continue
			}
		}
		evaluations = append(evaluations, *eval)
	}

	if len(evaluations) == 0 && a.strict {
		return nil, contracts.ErrNoEvaluations
	}

	decision, confidence := a.strategy.Score(evaluations)

	explanations := make([]string, 0, len(evaluations))
	for _, e := range evaluations {
		explanations = append(explanations, fmt.Sprintf("[%s] %s", e.EvaluatorName, e.Reason))
	}

	record, err := audit.BuildRecord(decision, confidence, explanations, a.Signatures(), dctx)
	if err != nil {
		return nil, fmt.Errorf("agent: audit record: %w", err)
	}
	if a.journal != nil {
		record.Enrichment = a.journal.Journal()
	}
	if decision != nil {
		outcome = *decision
	}

	result := &contracts.Decision{
		Outcome:          decision,
		Confidence:       confidence,
		Explanations:     explanations,
		Evaluations:      evaluations,
		AuditPayload:     record,
		Because:          because,
		FailedConditions: failed,
	}

	span.SetAttributes(
		attribute.Float64("arbiter.confidence", confidence),
		attribute.Int("arbiter.evaluations", len(evaluations)),
	)

	if err := a.sink.Record(record); err != nil {
		a.logger.Warn("audit sink failed", slog.String("error", err.Error()))
		select {
		case a.sinkErrs <- err:
		default:
		}
	}

	return result, nil
}

// safeEvaluate isolates evaluator panics so a single misbehaving
// evaluator cannot crash a decision run.
func (a *Agent) safeEvaluate(ev evaluator.Evaluator, dctx *contracts.Context) (eval *contracts.Evaluation, tr *contracts.Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			eval, tr = nil, nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ev.Evaluate(dctx)
}
