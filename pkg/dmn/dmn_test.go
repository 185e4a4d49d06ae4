package dmn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

const loanTableXML = `<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/" id="defs_loan" name="loan">
  <decision id="loan_decision" name="Loan Decision">
    <decisionTable id="table_loan" hitPolicy="FIRST">
      <input id="input_1" label="Credit Score">
        <inputExpression id="ie_1"><text>credit_score</text></inputExpression>
      </input>
      <input id="input_2" label="Income">
        <inputExpression id="ie_2"><text>income</text></inputExpression>
      </input>
      <output id="output_1" name="decision"/>
      <rule id="prime">
        <inputEntry><text>&gt;= 700</text></inputEntry>
        <inputEntry><text>&gt;= 50000</text></inputEntry>
        <outputEntry><text>"approved"</text></outputEntry>
      </rule>
      <rule id="mid_band">
        <inputEntry><text>[600..699]</text></inputEntry>
        <inputEntry><text>-</text></inputEntry>
        <outputEntry><text>"conditional"</text></outputEntry>
      </rule>
      <rule id="floor">
        <inputEntry><text>&lt; 600</text></inputEntry>
        <inputEntry><text>-</text></inputEntry>
        <outputEntry><text>"denied"</text></outputEntry>
      </rule>
    </decisionTable>
  </decision>
</definitions>`

func parseLoan(t *testing.T) *Definitions {
	t.Helper()
	defs, err := Parse([]byte(loanTableXML))
	require.NoError(t, err)
	return defs
}

func TestParseModel(t *testing.T) {
	defs := parseLoan(t)
	assert.Equal(t, "defs_loan", defs.ID)
	require.Len(t, defs.Decisions, 1)
	table := defs.Decisions[0].Table
	require.NotNil(t, table)
	assert.Equal(t, HitFirst, table.HitPolicy)
	assert.Len(t, table.Inputs, 2)
	assert.Len(t, table.Rules, 3)
	assert.Equal(t, ">= 700", table.Rules[0].InputEntries[0])
}

func TestParseRejectsForeignNamespace(t *testing.T) {
	bad := `<definitions xmlns="http://example.com/not-dmn" id="d" name="n"></definitions>`
	_, err := Parse([]byte(bad))
	var modelErr *ModelError
	assert.ErrorAs(t, err, &modelErr)
}

func TestValidateDetectsCycle(t *testing.T) {
	defs := &Definitions{
		Decisions: []*Decision{
			{ID: "a", Requirements: []string{"b"}, Literal: "1"},
			{ID: "b", Requirements: []string{"a"}, Literal: "2"},
		},
	}
	err := defs.Validate()
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Contains(t, modelErr.Reason, "cycle")
}

func TestValidateDetectsDefects(t *testing.T) {
	cases := []struct {
		name string
		defs *Definitions
	}{
		{"duplicate id", &Definitions{Decisions: []*Decision{
			{ID: "a", Literal: "1"}, {ID: "a", Literal: "2"},
		}}},
		{"unresolvable requirement", &Definitions{Decisions: []*Decision{
			{ID: "a", Requirements: []string{"ghost"}, Literal: "1"},
		}}},
		{"unknown hit policy", &Definitions{Decisions: []*Decision{
			{ID: "a", Table: &DecisionTable{
				HitPolicy: "LAST",
				Outputs:   []TableOutput{{ID: "o"}},
			}},
		}}},
		{"entry count mismatch", &Definitions{Decisions: []*Decision{
			{ID: "a", Table: &DecisionTable{
				HitPolicy: HitFirst,
				Inputs:    []TableInput{{ID: "i1", Expression: "x"}},
				Outputs:   []TableOutput{{ID: "o1"}},
				Rules:     []TableRule{{ID: "r", InputEntries: []string{"-", "-"}, OutputEntries: []string{"1"}}},
			}},
		}}},
		{"aggregation without collect", &Definitions{Decisions: []*Decision{
			{ID: "a", Table: &DecisionTable{
				HitPolicy:   HitFirst,
				Aggregation: AggSum,
				Outputs:     []TableOutput{{ID: "o"}},
			}},
		}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var modelErr *ModelError
			assert.ErrorAs(t, c.defs.Validate(), &modelErr)
		})
	}
}

func TestEvaluateTableFirst(t *testing.T) {
	table := parseLoan(t).Decisions[0].Table

	value, matched, err := EvaluateTable("loan_decision", table, map[string]any{
		"credit_score": 620.0, "income": 35000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "conditional", value)
	assert.Equal(t, []string{"mid_band"}, matched)

	value, _, err = EvaluateTable("loan_decision", table, map[string]any{
		"credit_score": 720.0, "income": 80000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", value)

	// 700 with low income matches no band at all.
	value, matched, err = EvaluateTable("loan_decision", table, map[string]any{
		"credit_score": 700.0, "income": 10000.0,
	})
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Empty(t, matched)
}

func TestEvaluateTableUniqueRejectsOverlap(t *testing.T) {
	table := parseLoan(t).Decisions[0].Table
	table.HitPolicy = HitUnique
	// Overlap the bands so 650 matches two rows.
	table.Rules[2].InputEntries[0] = "< 700"

	_, _, err := EvaluateTable("loan_decision", table, map[string]any{
		"credit_score": 650.0, "income": 10000.0,
	})
	var hitErr *HitPolicyError
	require.ErrorAs(t, err, &hitErr)
	assert.Equal(t, HitUnique, hitErr.Policy)
}

func TestEvaluateTableUniqueRejectsZeroMatches(t *testing.T) {
	table := parseLoan(t).Decisions[0].Table
	table.HitPolicy = HitUnique

	// 700 with low income falls through every band.
	_, _, err := EvaluateTable("loan_decision", table, map[string]any{
		"credit_score": 700.0, "income": 10000.0,
	})
	var hitErr *HitPolicyError
	require.ErrorAs(t, err, &hitErr)
	assert.Equal(t, HitUnique, hitErr.Policy)
	assert.Contains(t, hitErr.Reason, "0 rules matched")
}

func TestEvaluateTableAny(t *testing.T) {
	table := &DecisionTable{
		HitPolicy: HitAny,
		Inputs:    []TableInput{{Expression: "x"}},
		Outputs:   []TableOutput{{Name: "out"}},
		Rules: []TableRule{
			{ID: "r1", InputEntries: []string{"> 0"}, OutputEntries: []string{`"pos"`}},
			{ID: "r2", InputEntries: []string{"> 10"}, OutputEntries: []string{`"pos"`}},
		},
	}
	value, matched, err := EvaluateTable("d", table, map[string]any{"x": 20.0})
	require.NoError(t, err)
	assert.Equal(t, "pos", value)
	assert.Len(t, matched, 2)

	table.Rules[1].OutputEntries[0] = `"other"`
	_, _, err = EvaluateTable("d", table, map[string]any{"x": 20.0})
	var hitErr *HitPolicyError
	assert.ErrorAs(t, err, &hitErr)
}

func TestEvaluateTablePriority(t *testing.T) {
	table := &DecisionTable{
		HitPolicy: HitPriority,
		Inputs:    []TableInput{{Expression: "x"}},
		Outputs:   []TableOutput{{Name: "out", Values: []string{"deny", "review", "approve"}}},
		Rules: []TableRule{
			{ID: "r1", InputEntries: []string{"> 0"}, OutputEntries: []string{`"approve"`}},
			{ID: "r2", InputEntries: []string{"> 10"}, OutputEntries: []string{`"deny"`}},
		},
	}
	value, matched, err := EvaluateTable("d", table, map[string]any{"x": 20.0})
	require.NoError(t, err)
	assert.Equal(t, "deny", value)
	assert.Equal(t, []string{"r2"}, matched)
}

func TestEvaluateTableCollect(t *testing.T) {
	table := &DecisionTable{
		HitPolicy:   HitCollect,
		Aggregation: AggSum,
		Inputs:      []TableInput{{Expression: "x"}},
		Outputs:     []TableOutput{{Name: "score"}},
		Rules: []TableRule{
			{ID: "r1", InputEntries: []string{"> 0"}, OutputEntries: []string{"10"}},
			{ID: "r2", InputEntries: []string{"> 10"}, OutputEntries: []string{"5"}},
			{ID: "r3", InputEntries: []string{"> 100"}, OutputEntries: []string{"1"}},
		},
	}
	value, matched, err := EvaluateTable("d", table, map[string]any{"x": 20.0})
	require.NoError(t, err)
	assert.Equal(t, 15.0, value)
	assert.Len(t, matched, 2)

	// Without an aggregator COLLECT returns the raw list.
	table.Aggregation = AggNone
	value, _, err = EvaluateTable("d", table, map[string]any{"x": 20.0})
	require.NoError(t, err)
	assert.Equal(t, []any{10.0, 5.0}, value)

	// No matches still yields a zero sum.
	table.Aggregation = AggSum
	value, _, err = EvaluateTable("d", table, map[string]any{"x": -1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestEvaluateModelInjectsUpstreamResults(t *testing.T) {
	defs := &Definitions{
		Decisions: []*Decision{
			{ID: "final", Requirements: []string{"risk"},
				Literal: `if risk = "high" then "deny" else "approve"`},
			{ID: "risk", Literal: `if amount > 1000 then "high" else "low"`},
		},
	}
	require.NoError(t, defs.Validate())

	results, err := EvaluateModel(defs, map[string]any{"amount": 5000.0})
	require.NoError(t, err)
	assert.Equal(t, "high", results["risk"])
	assert.Equal(t, "deny", results["final"])
}

func TestEvaluatorAdaptsModel(t *testing.T) {
	ev, err := NewEvaluator("loan_dmn", []byte(loanTableXML), "", 0.8)
	require.NoError(t, err)
	assert.Equal(t, "loan_dmn", ev.Name())
	assert.Contains(t, ev.ContentHash(), "dmn:")

	ctx := contracts.MustNewContext(map[string]any{"credit_score": 620, "income": 35000})
	eval, trace, err := ev.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, "conditional", eval.Decision)
	assert.Equal(t, 0.8, eval.Weight)
	require.NotNil(t, trace)
	assert.NotEmpty(t, trace.Because)

	// No band matched: no verdict, failure trace instead.
	eval, trace, err = ev.Evaluate(contracts.MustNewContext(map[string]any{
		"credit_score": 700, "income": 10000,
	}))
	require.NoError(t, err)
	assert.Nil(t, eval)
	require.NotNil(t, trace)
	assert.NotEmpty(t, trace.Failed)
}

func TestToRulesetRoundTrip(t *testing.T) {
	table := parseLoan(t).Decisions[0].Table

	rs, err := ToRuleset("loan", "1.0.0", table, 0.7)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)
	assert.Equal(t, "prime", rs.Rules[0].ID)
	assert.Equal(t, "approved", rs.Rules[0].Then.Decision)
	require.Len(t, rs.Rules[0].If.All, 2)
	assert.Equal(t, "gte", rs.Rules[0].If.All[0].Op)
	assert.Equal(t, "between", rs.Rules[1].If.Op)

	back, err := FromRuleset(rs)
	require.NoError(t, err)
	require.Len(t, back.Rules, 3)
	assert.Equal(t, HitFirst, back.HitPolicy)
	assert.Equal(t, []string{">= 700", ">= 50000"}, back.Rules[0].InputEntries)
	assert.Equal(t, []string{"[600..699]", "-"}, back.Rules[1].InputEntries)
	assert.Equal(t, `"conditional"`, back.Rules[1].OutputEntries[0])

	// The image of ToRuleset is a fixed point of the pair.
	again, err := ToRuleset("loan", "1.0.0", back, 0.7)
	require.NoError(t, err)
	assert.Equal(t, rs.Rules, again.Rules)
}

func TestToRulesetRejectsNonFirst(t *testing.T) {
	table := parseLoan(t).Decisions[0].Table
	table.HitPolicy = HitUnique
	_, err := ToRuleset("loan", "1", table, 0.5)
	var modelErr *ModelError
	assert.ErrorAs(t, err, &modelErr)
}

func TestToRulesetRejectsHalfOpenRange(t *testing.T) {
	table := parseLoan(t).Decisions[0].Table
	table.Rules[1].InputEntries[0] = "]600..699]"
	_, err := ToRuleset("loan", "1", table, 0.5)
	assert.Error(t, err)
}

func TestExportReparses(t *testing.T) {
	defs := parseLoan(t)
	data, err := Export(defs)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, defs.ID, again.ID)
	require.Len(t, again.Decisions, 1)
	assert.Equal(t, defs.Decisions[0].Table.Rules, again.Decisions[0].Table.Rules)
}
