// Package condition evaluates condition trees against a context and
// produces pass/fail descriptors for explainability.
package condition

import (
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
)

// Result is the outcome of one condition tree evaluation: the boolean
// verdict plus human descriptors for every leaf that was reached.
// Short-circuited children are not evaluated and emit no descriptors.
type Result struct {
	Passed  bool
	Because []string
	Failed  []string
}

// Evaluate walks the condition tree. An empty `all` list is vacuously
// true; an empty `any` list is vacuously false. Leaves apply their
// operator through the registry's non-fatal dispatch.
func Evaluate(node contracts.ConditionNode, ctx *contracts.Context, reg *operator.Registry) Result {
	switch {
	case node.Field != "":
		return evaluateLeaf(node, ctx, reg)
	case node.Any != nil:
		res := Result{Passed: false}
		for _, child := range node.Any {
			cr := Evaluate(child, ctx, reg)
			res.Because = append(res.Because, cr.Because...)
			res.Failed = append(res.Failed, cr.Failed...)
			if cr.Passed {
				res.Passed = true
				return res
			}
		}
		return res
	default:
		res := Result{Passed: true}
		for _, child := range node.All {
			cr := Evaluate(child, ctx, reg)
			res.Because = append(res.Because, cr.Because...)
			res.Failed = append(res.Failed, cr.Failed...)
			if !cr.Passed {
				res.Passed = false
				return res
			}
		}
		return res
	}
}

func evaluateLeaf(node contracts.ConditionNode, ctx *contracts.Context, reg *operator.Registry) Result {
	descriptor := operator.Describe(node.Field, node.Op, node.Value)

	field, resolved := ctx.Resolve(node.Field)
	if !resolved && !isAbsenceOp(node.Op) {
		return Result{Failed: []string{descriptor + " (attribute absent)"}}
	}
	if !resolved {
		field = contracts.Absent
	}

	passed := reg.Apply(node.Op, field, node.Value, ctx)
	if passed {
		return Result{Passed: true, Because: []string{descriptor}}
	}
	return Result{Failed: []string{descriptor}}
}

func isAbsenceOp(op string) bool {
	return op == "present" || op == "absent"
}

// DescribeTree renders descriptors for every leaf without evaluating,
// used when reporting rules that were never reached.
func DescribeTree(node contracts.ConditionNode) []string {
	if node.IsLeaf() {
		return []string{operator.Describe(node.Field, node.Op, node.Value)}
	}
	var out []string
	for _, child := range node.All {
		out = append(out, DescribeTree(child)...)
	}
	for _, child := range node.Any {
		out = append(out, DescribeTree(child)...)
	}
	return out
}

// Annotate prefixes a descriptor with its rule id for multi-rule traces.
func Annotate(ruleID, descriptor string) string {
	return fmt.Sprintf("[%s] %s", ruleID, descriptor)
}
