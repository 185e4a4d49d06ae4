package rules

import (
	"github.com/Mindburn-Labs/arbiter/pkg/condition"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
)

// Evaluator scans a validated ruleset in document order and produces at
// most one Evaluation per context: the first rule whose condition holds.
// It is immutable after construction and safe for concurrent use.
type Evaluator struct {
	doc *Document
	reg *operator.Registry
}

// NewEvaluator wires a validated document to an operator registry.
func NewEvaluator(doc *Document, reg *operator.Registry) *Evaluator {
	return &Evaluator{doc: doc, reg: reg}
}

// Name is the ruleset namespace; it fills Evaluation.EvaluatorName.
func (e *Evaluator) Name() string { return e.doc.Ruleset.Name }

// ContentHash is the SHA-256 of the canonical document.
func (e *Evaluator) ContentHash() string { return e.doc.Hash }

// Ruleset exposes the validated ruleset.
func (e *Evaluator) Ruleset() *contracts.Ruleset { return e.doc.Ruleset }

// Evaluate walks rules in document order. The trace carries the matched
// rule's passing descriptors and the failing descriptors of every rule
// attempted before the match.
func (e *Evaluator) Evaluate(ctx *contracts.Context) (*contracts.Evaluation, *contracts.Trace, error) {
	trace := &contracts.Trace{}
	for _, rule := range e.doc.Ruleset.Rules {
		res := condition.Evaluate(rule.If, ctx, e.reg)
		for _, d := range res.Failed {
			trace.Failed = append(trace.Failed, condition.Annotate(rule.ID, d))
		}
		if !res.Passed {
			continue
		}
		for _, d := range res.Because {
			trace.Because = append(trace.Because, condition.Annotate(rule.ID, d))
		}
		eval := &contracts.Evaluation{
			Decision:      rule.Then.Decision,
			Weight:        rule.Then.Weight,
			Reason:        rule.Then.Reason,
			EvaluatorName: e.doc.Ruleset.Name,
			Metadata:      rule.Then.Metadata,
		}
		return eval, trace, nil
	}
	return nil, trace, nil
}
