// Package dmn parses, validates, evaluates, and exports DMN 1.3 decision
// models. Decision requirement graphs evaluate in topological order;
// decision tables evaluate per hit policy with FEEL unary tests in the
// input entries.
package dmn

import "fmt"

// HitPolicy selects among matching decision table rows.
type HitPolicy string

const (
	HitUnique   HitPolicy = "UNIQUE"
	HitFirst    HitPolicy = "FIRST"
	HitPriority HitPolicy = "PRIORITY"
	HitAny      HitPolicy = "ANY"
	HitCollect  HitPolicy = "COLLECT"
)

// Aggregation folds COLLECT results into a scalar.
type Aggregation string

const (
	AggNone  Aggregation = ""
	AggSum   Aggregation = "SUM"
	AggMin   Aggregation = "MIN"
	AggMax   Aggregation = "MAX"
	AggCount Aggregation = "COUNT"
)

// Definitions is a parsed DMN document: a directed acyclic graph of
// decisions keyed by id.
type Definitions struct {
	ID        string
	Name      string
	Namespace string
	Decisions []*Decision
}

// Decision is one node in the requirement graph. Exactly one of Table or
// Literal is set; Requirements lists upstream decision ids whose outputs
// are visible under their decision id during evaluation.
type Decision struct {
	ID           string
	Name         string
	Requirements []string
	Table        *DecisionTable
	Literal      string
}

// DecisionTable is the tabular body of a decision.
type DecisionTable struct {
	ID          string
	HitPolicy   HitPolicy
	Aggregation Aggregation
	Inputs      []TableInput
	Outputs     []TableOutput
	Rules       []TableRule
}

// TableInput is one input column. Expression is a FEEL expression
// evaluated against the effective context to produce the column value.
type TableInput struct {
	ID         string
	Label      string
	Expression string
}

// TableOutput is one output column. Values, when present, declares the
// output value ordering used by the PRIORITY hit policy, highest priority
// first.
type TableOutput struct {
	ID     string
	Label  string
	Name   string
	Values []string
}

// TableRule is one row: an input entry (unary test) per input column and
// an output entry (FEEL literal) per output column.
type TableRule struct {
	ID            string
	InputEntries  []string
	OutputEntries []string
}

// decision returns the node with the given id.
func (d *Definitions) decision(id string) (*Decision, bool) {
	for _, dec := range d.Decisions {
		if dec.ID == id {
			return dec, true
		}
	}
	return nil, false
}

// HitPolicyError reports a hit policy violation at evaluation time, such
// as two matching rows under UNIQUE.
type HitPolicyError struct {
	DecisionID string
	Policy     HitPolicy
	Reason     string
}

func (e *HitPolicyError) Error() string {
	return fmt.Sprintf("dmn: decision %q: %s hit policy: %s", e.DecisionID, e.Policy, e.Reason)
}

// ModelError reports a structural defect found during parse or
// validation.
type ModelError struct {
	Element string
	Reason  string
}

func (e *ModelError) Error() string {
	if e.Element == "" {
		return "dmn: " + e.Reason
	}
	return fmt.Sprintf("dmn: %s: %s", e.Element, e.Reason)
}

func modelErrorf(element, format string, args ...any) error {
	return &ModelError{Element: element, Reason: fmt.Sprintf(format, args...)}
}
