package dmn

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Namespace is the DMN 1.3 model namespace.
const Namespace = "https://www.omg.org/spec/DMN/20191111/MODEL/"

type xmlDefinitions struct {
	XMLName   xml.Name      `xml:"definitions"`
	ID        string        `xml:"id,attr"`
	Name      string        `xml:"name,attr"`
	Namespace string        `xml:"namespace,attr"`
	Decisions []xmlDecision `xml:"decision"`
}

type xmlDecision struct {
	ID           string            `xml:"id,attr"`
	Name         string            `xml:"name,attr"`
	Requirements []xmlRequirement  `xml:"informationRequirement"`
	Table        *xmlDecisionTable `xml:"decisionTable"`
	Literal      *xmlLiteral       `xml:"literalExpression"`
}

type xmlRequirement struct {
	Required xmlElementRef `xml:"requiredDecision"`
}

type xmlElementRef struct {
	Href string `xml:"href,attr"`
}

type xmlDecisionTable struct {
	ID          string      `xml:"id,attr"`
	HitPolicy   string      `xml:"hitPolicy,attr"`
	Aggregation string      `xml:"aggregation,attr"`
	Inputs      []xmlInput  `xml:"input"`
	Outputs     []xmlOutput `xml:"output"`
	Rules       []xmlRule   `xml:"rule"`
}

type xmlInput struct {
	ID         string      `xml:"id,attr"`
	Label      string      `xml:"label,attr"`
	Expression *xmlLiteral `xml:"inputExpression"`
}

type xmlOutput struct {
	ID     string   `xml:"id,attr"`
	Label  string   `xml:"label,attr"`
	Name   string   `xml:"name,attr"`
	Values *xmlText `xml:"outputValues"`
}

type xmlText struct {
	Text string `xml:"text"`
}

type xmlLiteral struct {
	ID   string `xml:"id,attr"`
	Text string `xml:"text"`
}

type xmlRule struct {
	ID            string    `xml:"id,attr"`
	InputEntries  []xmlText `xml:"inputEntry"`
	OutputEntries []xmlText `xml:"outputEntry"`
}

// Parse reads a DMN 1.3 XML document, builds the model, and validates
// its structure.
func Parse(data []byte) (*Definitions, error) {
	var raw xmlDefinitions
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dmn: malformed xml: %w", err)
	}
	if raw.XMLName.Space != "" && raw.XMLName.Space != Namespace {
		return nil, modelErrorf("definitions", "unsupported namespace %q", raw.XMLName.Space)
	}

	defs := &Definitions{
		ID:        raw.ID,
		Name:      raw.Name,
		Namespace: Namespace,
	}
	for _, d := range raw.Decisions {
		dec := &Decision{ID: d.ID, Name: d.Name}
		for _, req := range d.Requirements {
			dec.Requirements = append(dec.Requirements, strings.TrimPrefix(req.Required.Href, "#"))
		}
		if d.Table != nil {
			table, err := buildTable(d.Table)
			if err != nil {
				return nil, err
			}
			dec.Table = table
		}
		if d.Literal != nil {
			dec.Literal = strings.TrimSpace(d.Literal.Text)
		}
		defs.Decisions = append(defs.Decisions, dec)
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return defs, nil
}

func buildTable(raw *xmlDecisionTable) (*DecisionTable, error) {
	policy := HitPolicy(raw.HitPolicy)
	if raw.HitPolicy == "" {
		policy = HitUnique
	}
	table := &DecisionTable{
		ID:          raw.ID,
		HitPolicy:   policy,
		Aggregation: Aggregation(raw.Aggregation),
	}
	for _, in := range raw.Inputs {
		input := TableInput{ID: in.ID, Label: in.Label}
		if in.Expression != nil {
			input.Expression = strings.TrimSpace(in.Expression.Text)
		}
		table.Inputs = append(table.Inputs, input)
	}
	for _, out := range raw.Outputs {
		output := TableOutput{ID: out.ID, Label: out.Label, Name: out.Name}
		if out.Values != nil {
			output.Values = splitOutputValues(out.Values.Text)
		}
		table.Outputs = append(table.Outputs, output)
	}
	for _, rule := range raw.Rules {
		row := TableRule{ID: rule.ID}
		for _, entry := range rule.InputEntries {
			row.InputEntries = append(row.InputEntries, strings.TrimSpace(entry.Text))
		}
		for _, entry := range rule.OutputEntries {
			row.OutputEntries = append(row.OutputEntries, strings.TrimSpace(entry.Text))
		}
		table.Rules = append(table.Rules, row)
	}
	return table, nil
}

// splitOutputValues parses an outputValues text like `"a","b","c"` into
// its ordered value list.
func splitOutputValues(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
