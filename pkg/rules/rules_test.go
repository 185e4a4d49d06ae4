package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
)

const sampleDoc = `{
	"version": "1.0.0",
	"ruleset": "loan_policy",
	"rules": [
		{
			"id": "approve_prime",
			"if": {"all": [
				{"field": "credit_score", "op": "gte", "value": 700},
				{"field": "income", "op": "gte", "value": 50000}
			]},
			"then": {"decision": "approved", "weight": 0.9, "reason": "prime applicant"}
		},
		{
			"id": "review_mid",
			"if": {"field": "credit_score", "op": "between", "value": [600, 699]},
			"then": {"decision": "review", "weight": 0.6, "reason": "mid band"}
		},
		{
			"id": "deny_low",
			"if": {"field": "credit_score", "op": "lt", "value": 600},
			"then": {"decision": "denied", "weight": 0.95, "reason": "below floor"}
		}
	]
}`

func TestParseValidDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc), operator.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "loan_policy", doc.Ruleset.Name)
	assert.Equal(t, "1.0.0", doc.Ruleset.Version)
	assert.Len(t, doc.Ruleset.Rules, 3)
	assert.Len(t, doc.Hash, 64)
}

func TestParseCanonicalFixedPoint(t *testing.T) {
	reg := operator.NewRegistry()
	doc, err := Parse([]byte(sampleDoc), reg)
	require.NoError(t, err)

	again, err := Parse(doc.Canonical, reg)
	require.NoError(t, err)
	assert.Equal(t, doc.Canonical, again.Canonical)
	assert.Equal(t, doc.Hash, again.Hash)
}

func TestParseMissingRequiredKeys(t *testing.T) {
	_, err := Parse([]byte(`{"ruleset": "x", "rules": []}`), operator.NewRegistry())
	require.Error(t, err)
	var failure *contracts.ValidationFailure
	require.ErrorAs(t, err, &failure)
	assert.NotEmpty(t, failure.Issues)
}

func TestParseDuplicateRuleIDs(t *testing.T) {
	doc := `{
		"version": "1", "ruleset": "dup", "rules": [
			{"id": "r1", "if": {"field": "a", "op": "eq", "value": 1},
			 "then": {"decision": "x", "weight": 0.5, "reason": "r"}},
			{"id": "r1", "if": {"field": "a", "op": "eq", "value": 2},
			 "then": {"decision": "y", "weight": 0.5, "reason": "r"}}
		]
	}`
	_, err := Parse([]byte(doc), operator.NewRegistry())
	var failure *contracts.ValidationFailure
	require.ErrorAs(t, err, &failure)
	found := false
	for _, issue := range failure.Issues {
		if issue.Path == "rules[1].id" && strings.Contains(issue.Reason, "duplicate") {
			found = true
		}
	}
	assert.True(t, found, "expected duplicate id issue, got %v", failure.Issues)
}

func TestParseUnknownOperatorPath(t *testing.T) {
	doc := `{
		"version": "1", "ruleset": "ops", "rules": [
			{"id": "r1",
			 "if": {"all": [
				{"field": "a", "op": "eq", "value": 1},
				{"field": "b", "op": "frobnicate", "value": 2}
			 ]},
			 "then": {"decision": "x", "weight": 0.5, "reason": "r"}}
		]
	}`
	_, err := Parse([]byte(doc), operator.NewRegistry())
	var failure *contracts.ValidationFailure
	require.ErrorAs(t, err, &failure)
	require.Len(t, failure.Issues, 1)
	assert.Equal(t, "rules[0].if.all[1].op", failure.Issues[0].Path)
	assert.Contains(t, failure.Issues[0].Reason, "frobnicate")
}

func TestParseEmptyGroupConditions(t *testing.T) {
	doc := `{
		"version": "1", "ruleset": "vacuous", "rules": [
			{"id": "always", "if": {"all": []},
			 "then": {"decision": "approved", "weight": 0.5, "reason": "unconditional"}},
			{"id": "never", "if": {"any": []},
			 "then": {"decision": "denied", "weight": 0.5, "reason": "unreachable"}}
		]
	}`
	reg := operator.NewRegistry()
	parsed, err := Parse([]byte(doc), reg)
	require.NoError(t, err)

	// Empty all is vacuously true, so the first rule always fires.
	ev := NewEvaluator(parsed, reg)
	eval, _, err := ev.Evaluate(contracts.MustNewContext(nil))
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, "approved", eval.Decision)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"version":`), operator.NewRegistry())
	var failure *contracts.ValidationFailure
	require.ErrorAs(t, err, &failure)
}

func TestEvaluatorFirstMatchWins(t *testing.T) {
	reg := operator.NewRegistry()
	doc, err := Parse([]byte(sampleDoc), reg)
	require.NoError(t, err)
	ev := NewEvaluator(doc, reg)

	ctx := contracts.MustNewContext(map[string]any{
		"credit_score": 720,
		"income":       80000,
	})
	eval, trace, err := ev.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, "approved", eval.Decision)
	assert.Equal(t, 0.9, eval.Weight)
	assert.Equal(t, "loan_policy", eval.EvaluatorName)
	require.NotNil(t, trace)
	assert.Contains(t, trace.Because, "[approve_prime] credit_score gte 700")
}

func TestEvaluatorCollectsFailedDescriptors(t *testing.T) {
	reg := operator.NewRegistry()
	doc, err := Parse([]byte(sampleDoc), reg)
	require.NoError(t, err)
	ev := NewEvaluator(doc, reg)

	ctx := contracts.MustNewContext(map[string]any{
		"credit_score": 620,
		"income":       35000,
	})
	eval, trace, err := ev.Evaluate(ctx)
	require.NoError(t, err)
	require.NotNil(t, eval)
	assert.Equal(t, "review", eval.Decision)
	require.NotNil(t, trace)
	assert.Contains(t, trace.Failed, "[approve_prime] credit_score gte 700")
}

func TestEvaluatorNoMatch(t *testing.T) {
	reg := operator.NewRegistry()
	doc, err := Parse([]byte(sampleDoc), reg)
	require.NoError(t, err)
	ev := NewEvaluator(doc, reg)

	// 700 falls in no band: gte 700 fails only on income.
	ctx := contracts.MustNewContext(map[string]any{
		"credit_score": 700,
		"income":       10000,
	})
	eval, trace, err := ev.Evaluate(ctx)
	require.NoError(t, err)
	assert.Nil(t, eval)
	require.NotNil(t, trace)
	assert.NotEmpty(t, trace.Failed)
}

func TestContentHashTracksContent(t *testing.T) {
	reg := operator.NewRegistry()
	a, err := Parse([]byte(sampleDoc), reg)
	require.NoError(t, err)

	changed := strings.Replace(sampleDoc, "50000", "60000", 1)
	b, err := Parse([]byte(changed), reg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)

	// Whitespace and key order do not affect the hash.
	reordered := strings.Replace(sampleDoc, "\t", "    ", -1)
	c, err := Parse([]byte(reordered), reg)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, c.Hash)
}
