package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesDoc = `{
	"version": "1.0.0",
	"ruleset": "loan_policy",
	"rules": [
		{
			"id": "approve_prime",
			"if": {"field": "credit_score", "op": "gte", "value": 700},
			"then": {"decision": "approved", "weight": 0.9, "reason": "prime"}
		},
		{
			"id": "deny_low",
			"if": {"field": "credit_score", "op": "lt", "value": 700},
			"then": {"decision": "denied", "weight": 0.8, "reason": "below floor"}
		}
	]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunUsage(t *testing.T) {
	var stderr bytes.Buffer
	code := Run([]string{"arbiter"}, io.Discard, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "usage:")

	stderr.Reset()
	code = Run([]string{"arbiter", "frobnicate"}, io.Discard, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	code := Run([]string{"arbiter", "version"}, &stdout, io.Discard)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "arbiter")
}

func TestRunValidate(t *testing.T) {
	rules := writeFile(t, "rules.json", rulesDoc)
	var stdout, stderr bytes.Buffer
	code := Run([]string{"arbiter", "validate", "-rules", rules}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "loan_policy")
}

func TestRunValidateReportsIssues(t *testing.T) {
	rules := writeFile(t, "rules.json", `{"version": "1", "ruleset": "x", "rules": [
		{"id": "r", "if": {"field": "a", "op": "frobnicate", "value": 1},
		 "then": {"decision": "d", "weight": 0.5, "reason": "r"}}
	]}`)
	var stdout, stderr bytes.Buffer
	code := Run([]string{"arbiter", "validate", "-rules", rules}, &stdout, &stderr)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr.String(), "frobnicate")
}

func TestRunDecide(t *testing.T) {
	rules := writeFile(t, "rules.json", rulesDoc)
	ctx := writeFile(t, "context.json", `{"credit_score": 720}`)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"arbiter", "decide", "-rules", rules, "-context", ctx}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, "approved", decoded["decision"])
}
