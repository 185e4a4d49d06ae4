package contracts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEvaluations is returned by a strict agent when no evaluator
	// produced a verdict.
	ErrNoEvaluations = errors.New("no evaluations produced")

	// ErrVersionNotFound is returned by storage adapters for unknown ids.
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionConflict is returned when an activation race leaves the
	// active state inconsistent.
	ErrVersionConflict = errors.New("version activation conflict")
)

// ValidationError describes a single defect in a rule document or an
// evaluation, with the path to the offending element.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidationFailure aggregates every defect found in one document so a
// caller can report them all at once.
type ValidationFailure struct {
	Issues []*ValidationError
}

func (e *ValidationFailure) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ReplayMismatchError reports a strict replay divergence, field by field.
type ReplayMismatchError struct {
	Expected    *AuditRecord
	Actual      *AuditRecord
	Differences []string
}

func (e *ReplayMismatchError) Error() string {
	return "replay mismatch in fields: " + strings.Join(e.Differences, ", ")
}
