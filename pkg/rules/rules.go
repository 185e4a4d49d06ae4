// Package rules parses, validates, and evaluates JSON rule documents.
//
// A document validates against a JSON Schema for shape, then against the
// operator registry for operator names and value schemas. Valid documents
// are canonicalized (RFC 8785); the canonical byte form is what the audit
// layer hashes.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
)

// Document is a validated ruleset together with its canonical byte form
// and content hash.
type Document struct {
	Ruleset   *contracts.Ruleset
	Canonical []byte
	Hash      string
}

// Parse validates raw JSON against the document schema and the operator
// registry, and canonicalizes it. Validation failures carry structured
// paths like "rules[3].if.all[1].op".
func Parse(raw []byte, reg *operator.Registry) (*Document, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &contracts.ValidationFailure{Issues: []*contracts.ValidationError{
			{Path: "", Reason: fmt.Sprintf("malformed JSON: %v", err)},
		}}
	}

	if err := compiledSchema.Validate(generic); err != nil {
		return nil, &contracts.ValidationFailure{Issues: schemaIssues(err)}
	}

	var ruleset contracts.Ruleset
	if err := json.Unmarshal(raw, &ruleset); err != nil {
		return nil, &contracts.ValidationFailure{Issues: []*contracts.ValidationError{
			{Path: "", Reason: fmt.Sprintf("decode failed: %v", err)},
		}}
	}

	var issues []*contracts.ValidationError
	seen := make(map[string]int, len(ruleset.Rules))
	for i, rule := range ruleset.Rules {
		if prev, dup := seen[rule.ID]; dup {
			issues = append(issues, &contracts.ValidationError{
				Path:   fmt.Sprintf("rules[%d].id", i),
				Reason: fmt.Sprintf("duplicate rule id %q (first seen at rules[%d])", rule.ID, prev),
			})
		}
		seen[rule.ID] = i
		issues = append(issues, validateCondition(rule.If, fmt.Sprintf("rules[%d].if", i), reg)...)
	}
	if len(issues) > 0 {
		return nil, &contracts.ValidationFailure{Issues: issues}
	}

	canonical, err := canonicalize.JCSBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("rules: canonicalization failed: %w", err)
	}

	return &Document{
		Ruleset:   &ruleset,
		Canonical: canonical,
		Hash:      canonicalize.HashBytes(canonical),
	}, nil
}

func validateCondition(node contracts.ConditionNode, path string, reg *operator.Registry) []*contracts.ValidationError {
	var issues []*contracts.ValidationError
	// A present-but-empty group is a valid vacuous condition, so dispatch
	// mirrors the evaluator: any non-nil All or Any makes a group node.
	switch {
	case node.All != nil:
		for i, child := range node.All {
			issues = append(issues, validateCondition(child, fmt.Sprintf("%s.all[%d]", path, i), reg)...)
		}
	case node.Any != nil:
		for i, child := range node.Any {
			issues = append(issues, validateCondition(child, fmt.Sprintf("%s.any[%d]", path, i), reg)...)
		}
	default:
		op, ok := reg.Lookup(node.Op)
		if !ok {
			issues = append(issues, &contracts.ValidationError{
				Path:   path + ".op",
				Reason: fmt.Sprintf("unknown operator %q", node.Op),
			})
			return issues
		}
		if err := op.ValidateValue(node.Value); err != nil {
			issues = append(issues, &contracts.ValidationError{
				Path:   path + ".value",
				Reason: err.Error(),
			})
		}
	}
	return issues
}

func schemaIssues(err error) []*contracts.ValidationError {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []*contracts.ValidationError{{Path: "", Reason: err.Error()}}
	}
	leaves := ve.BasicOutput().Errors
	var issues []*contracts.ValidationError
	for _, leaf := range leaves {
		if leaf.Error == "" {
			continue
		}
		issues = append(issues, &contracts.ValidationError{
			Path:   leaf.InstanceLocation,
			Reason: leaf.Error,
		})
	}
	if len(issues) == 0 {
		issues = append(issues, &contracts.ValidationError{Path: ve.InstanceLocation, Reason: ve.Message})
	}
	return issues
}
