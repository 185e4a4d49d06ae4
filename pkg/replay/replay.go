// Package replay reconstructs decisions from audit records and verifies
// bit-exact reproducibility. Strict mode compares the reconstructed
// record field by field and fails with a detailed diff; lenient mode
// reconstructs and reports divergences as warnings.
//
// Replay holds because scoring is deterministic, evaluator identities
// are stable content hashes, and hashing is canonical. External inputs
// captured during the original run (enrichment outcomes) are seeded
// back through the configured Seeder so repeat fetches are unnecessary.
package replay

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Mindburn-Labs/arbiter/pkg/agent"
	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/scoring"
)

// Seeder primes enrichment state from recorded outcomes so a replay run
// resolves every fetch without network access.
type Seeder interface {
	SeedOutcome(ctx context.Context, outcome contracts.EnrichmentOutcome) error
}

// Engine replays audit records against a declared evaluator set.
type Engine struct {
	agent  *agent.Agent
	seeder Seeder
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeeder installs the seeder consulted before each rerun for the
// record's captured enrichment outcomes.
func WithSeeder(seeder Seeder) Option {
	return func(e *Engine) { e.seeder = seeder }
}

// NewEngine wires the evaluator identities named in the audit records to
// be replayed. The evaluator order must match the original run. The
// internal agent carries no sink: replay must not re-emit audit records.
func NewEngine(strategy scoring.Strategy, evaluators []evaluator.Evaluator, opts ...Option) *Engine {
	e := &Engine{agent: agent.New(strategy, evaluators)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strict reruns the decision for dctx and compares the resulting audit
// record to expected field by field. Any divergence fails with a
// ReplayMismatchError carrying {expected, actual, differences}.
func (e *Engine) Strict(ctx context.Context, expected *contracts.AuditRecord, dctx *contracts.Context) (*contracts.Decision, error) {
	decision, err := e.rerun(ctx, expected, dctx)
	if err != nil {
		return nil, err
	}
	diffs, err := diff(expected, decision.AuditPayload)
	if err != nil {
		return nil, err
	}
	if len(diffs) > 0 {
		return nil, &contracts.ReplayMismatchError{
			Expected:    expected,
			Actual:      decision.AuditPayload,
			Differences: diffs,
		}
	}
	return decision, nil
}

// Lenient reruns the decision and returns it along with warnings for
// fields that diverge from the original record.
func (e *Engine) Lenient(ctx context.Context, expected *contracts.AuditRecord, dctx *contracts.Context) (*contracts.Decision, []string, error) {
	decision, err := e.rerun(ctx, expected, dctx)
	if err != nil {
		return nil, nil, err
	}
	diffs, err := diff(expected, decision.AuditPayload)
	if err != nil {
		return nil, nil, err
	}
	warnings := make([]string, len(diffs))
	for i, field := range diffs {
		warnings[i] = fmt.Sprintf("field %q diverged from the original record", field)
	}
	return decision, warnings, nil
}

func (e *Engine) rerun(ctx context.Context, expected *contracts.AuditRecord, dctx *contracts.Context) (*contracts.Decision, error) {
	if e.seeder != nil {
		for _, outcome := range expected.Enrichment {
			if err := e.seeder.SeedOutcome(ctx, outcome); err != nil {
				return nil, fmt.Errorf("replay: seed outcome for %q: %w", outcome.Endpoint, err)
			}
		}
	}
	return e.agent.Decide(ctx, dctx)
}

// diff returns the names of fields that differ between the stored record
// and the rerun. The stored record's embedded hash is re-verified
// against its own content, so in-place tampering surfaces even when the
// rerun reproduces the original hash.
func diff(expected, actual *contracts.AuditRecord) ([]string, error) {
	var fields []string
	if !equalPtr(expected.Decision, actual.Decision) {
		fields = append(fields, "decision")
	}
	if expected.Confidence != actual.Confidence {
		fields = append(fields, "confidence")
	}
	if !reflect.DeepEqual(expected.Explanations, actual.Explanations) {
		fields = append(fields, "explanations")
	}
	if !reflect.DeepEqual(expected.EvaluatorSignatures, actual.EvaluatorSignatures) {
		fields = append(fields, "evaluator_signatures")
	}
	if expected.ContextHash != actual.ContextHash {
		fields = append(fields, "context_hash")
	}
	if expected.RulesetHash != actual.RulesetHash {
		fields = append(fields, "ruleset_hash")
	}
	intact, err := audit.Verify(expected)
	if err != nil {
		return nil, fmt.Errorf("replay: verify stored record: %w", err)
	}
	if !intact || expected.DeterministicHash != actual.DeterministicHash {
		fields = append(fields, "deterministic_hash")
	}
	return fields, nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
