// Package evaluator defines the pluggable evaluator abstraction and its
// built-in variants. An Evaluator produces zero-or-one Evaluation per
// context; the nil Evaluation means "no verdict". Implementations must be
// re-entrant and pure with respect to their inputs so replay holds.
package evaluator

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Evaluator is anything producing zero-or-one Evaluation from a Context.
// Name and ContentHash form the evaluator's stable identity inside audit
// records; for document-backed evaluators the hash covers the canonical
// source, for host-supplied ones a declared version string.
type Evaluator interface {
	Name() string
	ContentHash() string
	Evaluate(ctx *contracts.Context) (*contracts.Evaluation, *contracts.Trace, error)
}

// Static returns a fixed Evaluation regardless of context. Useful as a
// default policy or a test double.
type Static struct {
	name       string
	evaluation contracts.Evaluation
}

// NewStatic builds a static evaluator named name.
func NewStatic(name string, evaluation contracts.Evaluation) *Static {
	evaluation.EvaluatorName = name
	return &Static{name: name, evaluation: evaluation}
}

func (s *Static) Name() string { return s.name }

func (s *Static) ContentHash() string {
	return hashString("static:" + s.name + ":" + s.evaluation.Decision)
}

func (s *Static) Evaluate(_ *contracts.Context) (*contracts.Evaluation, *contracts.Trace, error) {
	eval := s.evaluation
	return &eval, nil, nil
}

// Func adapts a host-supplied function. Version participates in the
// content hash; hosts must bump it whenever behavior changes, or replay
// of older audit records will be rejected.
type Func struct {
	name    string
	version string
	fn      func(ctx *contracts.Context) (*contracts.Evaluation, error)
}

// NewFunc wraps fn as an evaluator with a declared version string.
func NewFunc(name, version string, fn func(ctx *contracts.Context) (*contracts.Evaluation, error)) *Func {
	return &Func{name: name, version: version, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) ContentHash() string {
	return hashString("func:" + f.name + ":" + f.version)
}

func (f *Func) Evaluate(ctx *contracts.Context) (*contracts.Evaluation, *contracts.Trace, error) {
	eval, err := f.fn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if eval != nil && eval.EvaluatorName == "" {
		eval.EvaluatorName = f.name
	}
	return eval, nil, nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
