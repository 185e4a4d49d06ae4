package dmn

var knownPolicies = map[HitPolicy]bool{
	HitUnique: true, HitFirst: true, HitPriority: true, HitAny: true, HitCollect: true,
}

var knownAggregations = map[Aggregation]bool{
	AggNone: true, AggSum: true, AggMin: true, AggMax: true, AggCount: true,
}

// Validate checks structural invariants: unique ids, known hit policies,
// resolvable requirement targets, acyclic requirement graph, and
// rule entry counts matching the table header.
func (d *Definitions) Validate() error {
	seen := map[string]bool{}
	for _, dec := range d.Decisions {
		if dec.ID == "" {
			return modelErrorf("decision", "missing id")
		}
		if seen[dec.ID] {
			return modelErrorf(dec.ID, "duplicate decision id")
		}
		seen[dec.ID] = true
	}

	for _, dec := range d.Decisions {
		for _, req := range dec.Requirements {
			if !seen[req] {
				return modelErrorf(dec.ID, "information requirement %q does not resolve to a decision", req)
			}
		}
		if dec.Table != nil && dec.Literal != "" {
			return modelErrorf(dec.ID, "decision carries both a table and a literal expression")
		}
		if dec.Table != nil {
			if err := validateTable(dec.ID, dec.Table); err != nil {
				return err
			}
		}
	}

	if _, err := d.topoOrder(); err != nil {
		return err
	}
	return nil
}

func validateTable(decisionID string, table *DecisionTable) error {
	if !knownPolicies[table.HitPolicy] {
		return modelErrorf(decisionID, "unknown hit policy %q", table.HitPolicy)
	}
	if !knownAggregations[table.Aggregation] {
		return modelErrorf(decisionID, "unknown aggregation %q", table.Aggregation)
	}
	if table.Aggregation != AggNone && table.HitPolicy != HitCollect {
		return modelErrorf(decisionID, "aggregation requires the COLLECT hit policy")
	}
	if len(table.Outputs) == 0 {
		return modelErrorf(decisionID, "decision table has no outputs")
	}

	ids := map[string]bool{}
	for _, in := range table.Inputs {
		if in.ID != "" && ids[in.ID] {
			return modelErrorf(decisionID, "duplicate column id %q", in.ID)
		}
		ids[in.ID] = true
	}
	for _, out := range table.Outputs {
		if out.ID != "" && ids[out.ID] {
			return modelErrorf(decisionID, "duplicate column id %q", out.ID)
		}
		ids[out.ID] = true
	}

	for i, rule := range table.Rules {
		if len(rule.InputEntries) != len(table.Inputs) {
			return modelErrorf(decisionID, "rule %d has %d input entries, table declares %d inputs",
				i, len(rule.InputEntries), len(table.Inputs))
		}
		if len(rule.OutputEntries) != len(table.Outputs) {
			return modelErrorf(decisionID, "rule %d has %d output entries, table declares %d outputs",
				i, len(rule.OutputEntries), len(table.Outputs))
		}
	}
	return nil
}

// topoOrder returns decisions in dependency order, upstream first.
// A cycle in the requirement graph is a model error.
func (d *Definitions) topoOrder() ([]*Decision, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	order := make([]*Decision, 0, len(d.Decisions))

	var visit func(dec *Decision) error
	visit = func(dec *Decision) error {
		switch state[dec.ID] {
		case done:
			return nil
		case visiting:
			return modelErrorf(dec.ID, "requirement cycle detected")
		}
		state[dec.ID] = visiting
		for _, req := range dec.Requirements {
			upstream, ok := d.decision(req)
			if !ok {
				return modelErrorf(dec.ID, "information requirement %q does not resolve to a decision", req)
			}
			if err := visit(upstream); err != nil {
				return err
			}
		}
		state[dec.ID] = done
		order = append(order, dec)
		return nil
	}

	for _, dec := range d.Decisions {
		if err := visit(dec); err != nil {
			return nil, err
		}
	}
	return order, nil
}
