package evaluator

import (
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// ValidateEvaluation checks a returned Evaluation for well-formedness:
// weight in [0,1], decision, reason, and evaluator name present. The
// agent drops failing evaluations with a descriptor entry when evaluation
// validation is enabled.
func ValidateEvaluation(e *contracts.Evaluation) error {
	switch {
	case e.Decision == "":
		return &contracts.ValidationError{Path: "decision", Reason: "must be non-empty"}
	case e.Weight < 0 || e.Weight > 1:
		return &contracts.ValidationError{Path: "weight", Reason: "must be in [0,1]"}
	case e.Reason == "":
		return &contracts.ValidationError{Path: "reason", Reason: "must be present"}
	case e.EvaluatorName == "":
		return &contracts.ValidationError{Path: "evaluator_name", Reason: "must be present"}
	}
	return nil
}
