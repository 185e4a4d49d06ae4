package dmn

import (
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/feel"
)

// EvaluateTable runs one decision table against an effective context.
// The result is nil when no rule matches (except COLLECT, which returns
// an empty aggregate, and UNIQUE, where zero matches is a hit-policy
// violation), a scalar for single-output tables, or a map keyed by
// output name for multi-output tables. matched lists the ids (or row
// numbers) of the rules that fired.
func EvaluateTable(decisionID string, table *DecisionTable, scope map[string]any) (any, []string, error) {
	inputValues := make([]any, len(table.Inputs))
	for i, in := range table.Inputs {
		v, err := feel.Eval(in.Expression, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("dmn: decision %q input %d: %w", decisionID, i, err)
		}
		inputValues[i] = v
	}

	type hit struct {
		row   int
		id    string
		value any
	}
	var hits []hit
	for row, rule := range table.Rules {
		match := true
		for i, entry := range rule.InputEntries {
			ok, err := feel.MatchEntry(inputValues[i], entry, scope)
			if err != nil {
				return nil, nil, fmt.Errorf("dmn: decision %q rule %d input %d: %w", decisionID, row, i, err)
			}
			if !ok {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		value, err := evalOutputs(table, rule, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("dmn: decision %q rule %d: %w", decisionID, row, err)
		}
		hits = append(hits, hit{row: row, id: ruleLabel(rule, row), value: value})
	}

	labels := func(hs []hit) []string {
		out := make([]string, len(hs))
		for i, h := range hs {
			out[i] = h.id
		}
		return out
	}

	switch table.HitPolicy {
	case HitUnique:
		if len(hits) != 1 {
			return nil, nil, &HitPolicyError{DecisionID: decisionID, Policy: HitUnique,
				Reason: fmt.Sprintf("%d rules matched, expected exactly one", len(hits))}
		}
		return hits[0].value, labels(hits), nil
	case HitFirst:
		if len(hits) == 0 {
			return nil, nil, nil
		}
		return hits[0].value, labels(hits[:1]), nil
	case HitAny:
		if len(hits) == 0 {
			return nil, nil, nil
		}
		first := hits[0].value
		for _, h := range hits[1:] {
			if !sameOutput(first, h.value) {
				return nil, nil, &HitPolicyError{DecisionID: decisionID, Policy: HitAny,
					Reason: "matching rules produce different outputs"}
			}
		}
		return first, labels(hits), nil
	case HitPriority:
		if len(hits) == 0 {
			return nil, nil, nil
		}
		best := hits[0]
		bestRank := priorityRank(table, best.value)
		for _, h := range hits[1:] {
			if rank := priorityRank(table, h.value); rank < bestRank {
				best, bestRank = h, rank
			}
		}
		return best.value, []string{best.id}, nil
	case HitCollect:
		values := make([]any, 0, len(hits))
		for _, h := range hits {
			values = append(values, h.value)
		}
		folded, err := aggregate(decisionID, table.Aggregation, values)
		if err != nil {
			return nil, nil, err
		}
		return folded, labels(hits), nil
	}
	return nil, nil, &HitPolicyError{DecisionID: decisionID, Policy: table.HitPolicy, Reason: "unknown hit policy"}
}

func evalOutputs(table *DecisionTable, rule TableRule, scope map[string]any) (any, error) {
	if len(table.Outputs) == 1 {
		return feel.Eval(rule.OutputEntries[0], scope)
	}
	out := make(map[string]any, len(table.Outputs))
	for i, col := range table.Outputs {
		v, err := feel.Eval(rule.OutputEntries[i], scope)
		if err != nil {
			return nil, err
		}
		out[outputName(col, i)] = v
	}
	return out, nil
}

func outputName(col TableOutput, i int) string {
	if col.Name != "" {
		return col.Name
	}
	if col.Label != "" {
		return col.Label
	}
	return fmt.Sprintf("output_%d", i)
}

func ruleLabel(rule TableRule, row int) string {
	if rule.ID != "" {
		return rule.ID
	}
	return fmt.Sprintf("rule[%d]", row)
}

func sameOutput(a, b any) bool {
	ab, errA := canonicalize.JCS(a)
	bb, errB := canonicalize.JCS(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

// priorityRank positions an output inside the declared value ordering of
// the first output column, lower rank winning. Values outside the
// declared ordering rank last.
func priorityRank(table *DecisionTable, value any) int {
	key := value
	if m, ok := value.(map[string]any); ok && len(table.Outputs) > 0 {
		key = m[outputName(table.Outputs[0], 0)]
	}
	s, ok := key.(string)
	if !ok {
		return len(table.Outputs[0].Values)
	}
	for i, v := range table.Outputs[0].Values {
		if v == s {
			return i
		}
	}
	return len(table.Outputs[0].Values)
}

func aggregate(decisionID string, agg Aggregation, values []any) (any, error) {
	if agg == AggNone {
		return values, nil
	}
	if agg == AggCount {
		return float64(len(values)), nil
	}
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := v.(float64)
		if !ok {
			return nil, &HitPolicyError{DecisionID: decisionID, Policy: HitCollect,
				Reason: fmt.Sprintf("%s aggregation over non-numeric output", agg)}
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		if agg == AggSum {
			return 0.0, nil
		}
		return nil, nil
	}
	acc := nums[0]
	for _, f := range nums[1:] {
		switch agg {
		case AggSum:
			acc += f
		case AggMin:
			if f < acc {
				acc = f
			}
		case AggMax:
			if f > acc {
				acc = f
			}
		}
	}
	return acc, nil
}

// EvaluateModel evaluates every decision in requirement order and
// returns results keyed by decision id. Upstream outputs are visible to
// downstream decisions under the upstream's decision id.
func EvaluateModel(defs *Definitions, scope map[string]any) (map[string]any, error) {
	order, err := defs.topoOrder()
	if err != nil {
		return nil, err
	}
	effective := make(map[string]any, len(scope)+len(order))
	for k, v := range scope {
		effective[k] = v
	}
	results := make(map[string]any, len(order))
	for _, dec := range order {
		var value any
		switch {
		case dec.Table != nil:
			value, _, err = EvaluateTable(dec.ID, dec.Table, effective)
		case dec.Literal != "":
			value, err = feel.Eval(dec.Literal, effective)
		}
		if err != nil {
			return nil, err
		}
		results[dec.ID] = value
		effective[dec.ID] = value
	}
	return results, nil
}

// Evaluator adapts a DMN model to the evaluator contract. The terminal
// decision's output becomes the verdict; string outputs map directly,
// anything else is canonically stringified.
type Evaluator struct {
	name   string
	defs   *Definitions
	target string
	weight float64
	hash   string
}

// NewEvaluator wraps a parsed model. source is the original XML, hashed
// for the audit trail. target selects the verdict decision; empty target
// picks the unique terminal decision (one no other decision requires).
func NewEvaluator(name string, source []byte, target string, weight float64) (*Evaluator, error) {
	defs, err := Parse(source)
	if err != nil {
		return nil, err
	}
	if target == "" {
		target, err = terminalDecision(defs)
		if err != nil {
			return nil, err
		}
	} else if _, ok := defs.decision(target); !ok {
		return nil, modelErrorf(target, "target decision not found")
	}
	return &Evaluator{
		name:   name,
		defs:   defs,
		target: target,
		weight: weight,
		hash:   "dmn:" + canonicalize.HashBytes(source),
	}, nil
}

func terminalDecision(defs *Definitions) (string, error) {
	required := map[string]bool{}
	for _, dec := range defs.Decisions {
		for _, req := range dec.Requirements {
			required[req] = true
		}
	}
	var terminals []string
	for _, dec := range defs.Decisions {
		if !required[dec.ID] {
			terminals = append(terminals, dec.ID)
		}
	}
	if len(terminals) != 1 {
		return "", modelErrorf("definitions", "expected one terminal decision, found %d", len(terminals))
	}
	return terminals[0], nil
}

// Name implements the evaluator contract.
func (e *Evaluator) Name() string { return e.name }

// ContentHash implements the evaluator contract.
func (e *Evaluator) ContentHash() string { return e.hash }

// Definitions exposes the underlying model.
func (e *Evaluator) Definitions() *Definitions { return e.defs }

// Evaluate runs the model against the context. A nil terminal output is
// no verdict; hit policy violations surface as errors.
func (e *Evaluator) Evaluate(ctx *contracts.Context) (*contracts.Evaluation, *contracts.Trace, error) {
	results, err := EvaluateModel(e.defs, ctx.Attrs())
	if err != nil {
		return nil, nil, err
	}
	value := results[e.target]
	if value == nil {
		return nil, &contracts.Trace{Failed: []string{
			fmt.Sprintf("[%s] no decision table rule matched", e.name),
		}}, nil
	}
	decision := stringifyOutput(value)
	eval := &contracts.Evaluation{
		Decision:      decision,
		Weight:        e.weight,
		Reason:        fmt.Sprintf("decision %q resolved to %q", e.target, decision),
		EvaluatorName: e.name,
	}
	trace := &contracts.Trace{Because: []string{
		fmt.Sprintf("[%s] decision %q resolved to %q", e.name, e.target, decision),
	}}
	return eval, trace, nil
}

func stringifyOutput(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := canonicalize.JCS(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
