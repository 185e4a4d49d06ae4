// Package simulate runs what-if and batch experiments over an agent
// without touching the audit trail of live decisions.
package simulate

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/agent"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/replay"
	"github.com/Mindburn-Labs/arbiter/pkg/scoring"
)

// Harness wraps the evaluator set and strategy under test. Simulation
// agents carry no audit sink, so experiments never pollute the trail.
type Harness struct {
	strategy   scoring.Strategy
	evaluators []evaluator.Evaluator
}

// NewHarness builds a simulation harness.
func NewHarness(strategy scoring.Strategy, evaluators []evaluator.Evaluator) *Harness {
	return &Harness{strategy: strategy, evaluators: evaluators}
}

// WhatIf decides over the base context with overrides merged on top and
// returns both decisions for comparison.
func (h *Harness) WhatIf(ctx context.Context, base *contracts.Context, overrides map[string]any) (*Comparison, error) {
	a := agent.New(h.strategy, h.evaluators)
	baseline, err := a.Decide(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("simulate: baseline: %w", err)
	}
	altered, err := base.Merge(overrides)
	if err != nil {
		return nil, fmt.Errorf("simulate: merge overrides: %w", err)
	}
	variant, err := a.Decide(ctx, altered)
	if err != nil {
		return nil, fmt.Errorf("simulate: variant: %w", err)
	}
	return &Comparison{
		Baseline: baseline,
		Variant:  variant,
		Changed:  !sameOutcome(baseline, variant),
	}, nil
}

// Comparison pairs a baseline decision with its what-if variant.
type Comparison struct {
	Baseline *contracts.Decision
	Variant  *contracts.Decision
	Changed  bool
}

func sameOutcome(a, b *contracts.Decision) bool {
	switch {
	case a.Outcome == nil && b.Outcome == nil:
		return a.Confidence == b.Confidence
	case a.Outcome == nil || b.Outcome == nil:
		return false
	default:
		return *a.Outcome == *b.Outcome && a.Confidence == b.Confidence
	}
}

// BatchResult is the outcome of one batch entry. Err is set when the
// decision run failed; Decision is nil in that case.
type BatchResult struct {
	Index    int
	Decision *contracts.Decision
	Err      error
}

// Batch decides each context in order and aggregates per-outcome
// counts. Individual failures are recorded, not fatal.
func (h *Harness) Batch(ctx context.Context, contexts []*contracts.Context) (*BatchReport, error) {
	a := agent.New(h.strategy, h.evaluators)
	report := &BatchReport{Outcomes: map[string]int{}}
	for i, dctx := range contexts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decision, err := a.Decide(ctx, dctx)
		result := BatchResult{Index: i, Decision: decision, Err: err}
		report.Results = append(report.Results, result)
		switch {
		case err != nil:
			report.Failures++
		case decision.Outcome == nil:
			report.Outcomes["<none>"]++
		default:
			report.Outcomes[*decision.Outcome]++
		}
	}
	return report, nil
}

// BatchReport aggregates a batch run.
type BatchReport struct {
	Results  []BatchResult
	Outcomes map[string]int
	Failures int
}

// ReplayCase pairs a stored audit record with its context payload.
type ReplayCase struct {
	ID      string
	Record  *contracts.AuditRecord
	Context *contracts.Context
}

// ReplayAll strictly replays every case and reports the divergent ones.
func (h *Harness) ReplayAll(ctx context.Context, cases []ReplayCase) (*ReplayReport, error) {
	engine := replay.NewEngine(h.strategy, h.evaluators)
	report := &ReplayReport{Total: len(cases)}
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := engine.Strict(ctx, c.Record, c.Context); err != nil {
			report.Divergent = append(report.Divergent, Divergence{ID: c.ID, Err: err})
			continue
		}
		report.Matched++
	}
	return report, nil
}

// ReplayReport summarizes a bulk replay.
type ReplayReport struct {
	Total     int
	Matched   int
	Divergent []Divergence
}

// Divergence names one replay case that did not reproduce.
type Divergence struct {
	ID  string
	Err error
}
