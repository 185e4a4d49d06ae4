package dmn

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/feel"
)

// ToRuleset converts a FIRST-policy decision table into the internal
// rule form: each row becomes a rule whose condition is the conjunction
// of its input entries and whose verdict is the first output entry.
// Non-FIRST policies have scan semantics the linear rule walk cannot
// reproduce and are rejected.
func ToRuleset(name, version string, table *DecisionTable, weight float64) (*contracts.Ruleset, error) {
	if table.HitPolicy != HitFirst {
		return nil, modelErrorf(table.ID, "only FIRST tables convert to rulesets, got %s", table.HitPolicy)
	}
	if len(table.Outputs) != 1 {
		return nil, modelErrorf(table.ID, "ruleset conversion requires exactly one output column")
	}

	rs := &contracts.Ruleset{Name: name, Version: version}
	for row, rule := range table.Rules {
		var conds []contracts.ConditionNode
		for i, entry := range rule.InputEntries {
			node, err := entryToCondition(table.Inputs[i].Expression, entry)
			if err != nil {
				return nil, fmt.Errorf("dmn: table %q rule %d input %d: %w", table.ID, row, i, err)
			}
			if node != nil {
				conds = append(conds, *node)
			}
		}

		output, err := feel.Eval(rule.OutputEntries[0], nil)
		if err != nil {
			return nil, fmt.Errorf("dmn: table %q rule %d output: %w", table.ID, row, err)
		}
		decision, ok := output.(string)
		if !ok {
			return nil, modelErrorf(table.ID, "rule %d output is not a string literal", row)
		}

		r := contracts.Rule{
			ID: ruleLabel(rule, row),
			Then: contracts.ThenBlock{
				Decision: decision,
				Weight:   weight,
				Reason:   fmt.Sprintf("table row %d matched", row+1),
			},
		}
		switch len(conds) {
		case 0:
			// All don't-care entries; an empty conjunction is vacuously
			// true in the rule engine.
			r.If = contracts.ConditionNode{All: []contracts.ConditionNode{}}
		case 1:
			r.If = conds[0]
		default:
			r.If = contracts.ConditionNode{All: conds}
		}
		rs.Rules = append(rs.Rules, r)
	}
	return rs, nil
}

// entryToCondition maps one unary test entry to a condition node. The
// don't-care entry maps to no condition at all.
func entryToCondition(field, entry string) (*contracts.ConditionNode, error) {
	tests, err := feel.ParseUnaryTests(entry)
	if err != nil {
		return nil, err
	}
	if len(tests) == 1 && tests[0].Any {
		return nil, nil
	}
	if len(tests) == 1 {
		return testToCondition(field, tests[0])
	}
	// Comma disjunction becomes an any combinator.
	var alts []contracts.ConditionNode
	for _, test := range tests {
		node, err := testToCondition(field, test)
		if err != nil {
			return nil, err
		}
		alts = append(alts, *node)
	}
	return &contracts.ConditionNode{Any: alts}, nil
}

var opByPrefix = map[string]string{
	"<": "lt", "<=": "lte", ">": "gt", ">=": "gte",
}

func testToCondition(field string, test feel.UnaryTest) (*contracts.ConditionNode, error) {
	if test.Op != "" {
		operand, err := feel.EvalNode(test.Expr, nil)
		if err != nil {
			return nil, err
		}
		return &contracts.ConditionNode{Field: field, Op: opByPrefix[test.Op], Value: operand}, nil
	}
	value, err := feel.EvalNode(test.Expr, nil)
	if err != nil {
		return nil, err
	}
	if r, ok := value.(feel.Range); ok {
		if !r.StartIncl || !r.EndIncl {
			// The between operator is inclusive on both ends; half-open
			// ranges cannot round-trip through it.
			return nil, fmt.Errorf("half-open range %q is not expressible as a rule condition", field)
		}
		return &contracts.ConditionNode{Field: field, Op: "between", Value: []any{r.Start, r.End}}, nil
	}
	return &contracts.ConditionNode{Field: field, Op: "eq", Value: value}, nil
}

// FromRuleset converts an internal ruleset produced by ToRuleset back
// into a FIRST-policy table. Conversion is the inverse of ToRuleset for
// tables in its image.
func FromRuleset(rs *contracts.Ruleset) (*DecisionTable, error) {
	table := &DecisionTable{
		ID:        rs.Name,
		HitPolicy: HitFirst,
		Outputs:   []TableOutput{{ID: "output_1", Name: "decision"}},
	}

	// Column order is first-appearance order across all rules.
	var fields []string
	index := map[string]int{}
	addField := func(field string) {
		if _, ok := index[field]; !ok {
			index[field] = len(fields)
			fields = append(fields, field)
		}
	}
	for _, rule := range rs.Rules {
		if err := walkLeaves(rule.If, func(leaf contracts.ConditionNode) error {
			addField(leaf.Field)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	for i, field := range fields {
		table.Inputs = append(table.Inputs, TableInput{
			ID:         fmt.Sprintf("input_%d", i+1),
			Expression: field,
		})
	}

	for _, rule := range rs.Rules {
		entries := make([]string, len(fields))
		for i := range entries {
			entries[i] = "-"
		}
		if err := conditionToEntries(rule.If, index, entries); err != nil {
			return nil, fmt.Errorf("dmn: rule %q: %w", rule.ID, err)
		}
		table.Rules = append(table.Rules, TableRule{
			ID:            rule.ID,
			InputEntries:  entries,
			OutputEntries: []string{fmt.Sprintf("%q", rule.Then.Decision)},
		})
	}
	return table, nil
}

func walkLeaves(node contracts.ConditionNode, fn func(contracts.ConditionNode) error) error {
	if node.IsLeaf() {
		if node.Field == "" {
			return nil
		}
		return fn(node)
	}
	for _, child := range append(node.All, node.Any...) {
		if err := walkLeaves(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func conditionToEntries(node contracts.ConditionNode, index map[string]int, entries []string) error {
	if node.IsLeaf() {
		if node.Field == "" {
			return nil
		}
		entry, err := leafToEntry(node)
		if err != nil {
			return err
		}
		entries[index[node.Field]] = entry
		return nil
	}
	if len(node.Any) > 0 {
		// A top-level any over one field folds into a comma disjunction.
		field := node.Any[0].Field
		var parts []string
		for _, alt := range node.Any {
			if !alt.IsLeaf() || alt.Field != field {
				return fmt.Errorf("disjunction spans multiple fields, not expressible as one entry")
			}
			entry, err := leafToEntry(alt)
			if err != nil {
				return err
			}
			parts = append(parts, entry)
		}
		entries[index[field]] = strings.Join(parts, ",")
		return nil
	}
	for _, child := range node.All {
		if err := conditionToEntries(child, index, entries); err != nil {
			return err
		}
	}
	return nil
}

func leafToEntry(node contracts.ConditionNode) (string, error) {
	switch node.Op {
	case "eq":
		return literalEntry(node.Value)
	case "lt", "lte", "gt", "gte":
		lit, err := literalEntry(node.Value)
		if err != nil {
			return "", err
		}
		for prefix, op := range opByPrefix {
			if op == node.Op {
				return prefix + " " + lit, nil
			}
		}
		return "", fmt.Errorf("unmapped comparison %q", node.Op)
	case "between":
		bounds, ok := node.Value.([]any)
		if !ok || len(bounds) != 2 {
			return "", fmt.Errorf("between expects a two-element bound list")
		}
		lo, err := literalEntry(bounds[0])
		if err != nil {
			return "", err
		}
		hi, err := literalEntry(bounds[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%s..%s]", lo, hi), nil
	default:
		return "", fmt.Errorf("operator %q is not expressible as a unary test", node.Op)
	}
}

func literalEntry(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case float64:
		return fmt.Sprintf("%g", t), nil
	case int:
		return fmt.Sprintf("%d", t), nil
	case nil:
		return "null", nil
	default:
		return "", fmt.Errorf("value %v is not a FEEL literal", v)
	}
}
