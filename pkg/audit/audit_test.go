package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func sampleRecord(t *testing.T) *contracts.AuditRecord {
	t.Helper()
	decision := "approve"
	ctx := contracts.MustNewContext(map[string]any{"amount": 250, "tier": "gold"})
	record, err := BuildRecord(&decision, 0.82, []string{"[rules] amount in range"},
		[]contracts.EvaluatorSignature{{Name: "rules", ContentHash: "abc123"}}, ctx)
	require.NoError(t, err)
	return record
}

func TestBuildRecordDeterministic(t *testing.T) {
	a := sampleRecord(t)
	b := sampleRecord(t)
	assert.Equal(t, a.DeterministicHash, b.DeterministicHash)
	assert.Equal(t, a.ContextHash, b.ContextHash)
	assert.NotEmpty(t, a.RulesetHash)
	assert.Empty(t, a.Timestamp, "deterministic path carries no wall clock")
}

func TestBuildRecordContextHashCoversEnrichment(t *testing.T) {
	decision := "x"
	ctx := contracts.MustNewContext(map[string]any{"a": 1})
	before, err := BuildRecord(&decision, 1, nil, nil, ctx)
	require.NoError(t, err)

	require.NoError(t, ctx.Enrich(map[string]any{"derived": true}))
	after, err := BuildRecord(&decision, 1, nil, nil, ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before.ContextHash, after.ContextHash)
}

func TestVerifyDetectsTampering(t *testing.T) {
	record := sampleRecord(t)

	ok, err := Verify(record)
	require.NoError(t, err)
	assert.True(t, ok)

	record.Confidence = 0.99
	ok, err = Verify(record)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNullSink(t *testing.T) {
	assert.NoError(t, NullSink{}.Record(sampleRecord(t)))
}

func TestFileSinkAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	first := sampleRecord(t)
	require.NoError(t, sink.Record(first))
	require.NoError(t, sink.Record(sampleRecord(t)))
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	var lines int
	for scanner.Scan() {
		var decoded contracts.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		assert.Equal(t, first.DeterministicHash, decoded.DeterministicHash)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewSlogSink(logger)

	record := sampleRecord(t)
	require.NoError(t, sink.Record(record))
	out := buf.String()
	assert.Contains(t, out, "approve")
	assert.Contains(t, out, record.DeterministicHash)
}

func TestFileSinkWriter(t *testing.T) {
	var buf bytes.Buffer
	sink := NewFileSinkWriter(&buf)
	require.NoError(t, sink.Record(sampleRecord(t)))
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}
