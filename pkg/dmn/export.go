package dmn

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Export serializes a model back to DMN 1.3 XML. The output is
// re-parseable by Parse; for FIRST tables produced by FromRuleset the
// parse-export cycle is a fixed point up to whitespace.
func Export(defs *Definitions) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := exportDefinitions{
		XMLName:   xml.Name{Local: "definitions"},
		Xmlns:     Namespace,
		ID:        defs.ID,
		Name:      defs.Name,
		Namespace: defs.Namespace,
	}
	for _, dec := range defs.Decisions {
		xd := exportDecision{ID: dec.ID, Name: dec.Name}
		for _, req := range dec.Requirements {
			xd.Requirements = append(xd.Requirements, exportRequirement{
				Required: exportRef{Href: "#" + req},
			})
		}
		if dec.Table != nil {
			xd.Table = exportTable(dec.Table)
		}
		if dec.Literal != "" {
			xd.Literal = &exportLiteral{Text: dec.Literal}
		}
		root.Decisions = append(root.Decisions, xd)
	}

	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("dmn: export: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("dmn: export: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func exportTable(table *DecisionTable) *exportDecisionTable {
	xt := &exportDecisionTable{
		ID:        table.ID,
		HitPolicy: string(table.HitPolicy),
	}
	if table.Aggregation != AggNone {
		xt.Aggregation = string(table.Aggregation)
	}
	for _, in := range table.Inputs {
		xt.Inputs = append(xt.Inputs, exportInput{
			ID:         in.ID,
			Label:      in.Label,
			Expression: &exportLiteral{Text: in.Expression},
		})
	}
	for _, out := range table.Outputs {
		xo := exportOutput{ID: out.ID, Label: out.Label, Name: out.Name}
		if len(out.Values) > 0 {
			quoted := make([]string, len(out.Values))
			for i, v := range out.Values {
				quoted[i] = fmt.Sprintf("%q", v)
			}
			xo.Values = &exportText{Text: strings.Join(quoted, ",")}
		}
		xt.Outputs = append(xt.Outputs, xo)
	}
	for _, rule := range table.Rules {
		xr := exportRule{ID: rule.ID}
		for _, entry := range rule.InputEntries {
			xr.InputEntries = append(xr.InputEntries, exportText{Text: entry})
		}
		for _, entry := range rule.OutputEntries {
			xr.OutputEntries = append(xr.OutputEntries, exportText{Text: entry})
		}
		xt.Rules = append(xt.Rules, xr)
	}
	return xt
}

type exportDefinitions struct {
	XMLName   xml.Name
	Xmlns     string           `xml:"xmlns,attr"`
	ID        string           `xml:"id,attr,omitempty"`
	Name      string           `xml:"name,attr,omitempty"`
	Namespace string           `xml:"namespace,attr,omitempty"`
	Decisions []exportDecision `xml:"decision"`
}

type exportDecision struct {
	ID           string               `xml:"id,attr"`
	Name         string               `xml:"name,attr,omitempty"`
	Requirements []exportRequirement  `xml:"informationRequirement"`
	Table        *exportDecisionTable `xml:"decisionTable"`
	Literal      *exportLiteral       `xml:"literalExpression"`
}

type exportRequirement struct {
	Required exportRef `xml:"requiredDecision"`
}

type exportRef struct {
	Href string `xml:"href,attr"`
}

type exportDecisionTable struct {
	ID          string         `xml:"id,attr,omitempty"`
	HitPolicy   string         `xml:"hitPolicy,attr"`
	Aggregation string         `xml:"aggregation,attr,omitempty"`
	Inputs      []exportInput  `xml:"input"`
	Outputs     []exportOutput `xml:"output"`
	Rules       []exportRule   `xml:"rule"`
}

type exportInput struct {
	ID         string         `xml:"id,attr,omitempty"`
	Label      string         `xml:"label,attr,omitempty"`
	Expression *exportLiteral `xml:"inputExpression"`
}

type exportOutput struct {
	ID     string      `xml:"id,attr,omitempty"`
	Label  string      `xml:"label,attr,omitempty"`
	Name   string      `xml:"name,attr,omitempty"`
	Values *exportText `xml:"outputValues"`
}

type exportLiteral struct {
	ID   string `xml:"id,attr,omitempty"`
	Text string `xml:"text"`
}

type exportText struct {
	Text string `xml:"text"`
}

type exportRule struct {
	ID            string       `xml:"id,attr,omitempty"`
	InputEntries  []exportText `xml:"inputEntry"`
	OutputEntries []exportText `xml:"outputEntry"`
}
