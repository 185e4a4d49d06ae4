package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/observability"
	"github.com/Mindburn-Labs/arbiter/pkg/scoring"
)

type collectSink struct {
	mu      sync.Mutex
	records []*contracts.AuditRecord
}

func (s *collectSink) Record(r *contracts.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func staticEval(name, decision string, weight float64) evaluator.Evaluator {
	return evaluator.NewStatic(name, contracts.Evaluation{
		Decision: decision, Weight: weight, Reason: "static " + decision, EvaluatorName: name,
	})
}

func TestDecideHappyPath(t *testing.T) {
	sink := &collectSink{}
	a := New(scoring.WeightedAverage{}, []evaluator.Evaluator{
		staticEval("policy_a", "approve", 0.9),
		staticEval("policy_b", "approve", 0.4),
		staticEval("policy_c", "deny", 0.5),
	}, WithAuditSink(sink))

	dctx := contracts.MustNewContext(map[string]any{"amount": 100})
	decision, err := a.Decide(context.Background(), dctx)
	require.NoError(t, err)
	require.NotNil(t, decision.Outcome)
	assert.Equal(t, "approve", *decision.Outcome)
	assert.Equal(t, 0.7222, decision.Confidence)
	assert.Len(t, decision.Evaluations, 3)
	assert.Equal(t, []string{
		"[policy_a] static approve",
		"[policy_b] static approve",
		"[policy_c] static deny",
	}, decision.Explanations)

	require.Len(t, sink.records, 1)
	assert.Equal(t, decision.AuditPayload, sink.records[0])
	assert.NotEmpty(t, sink.records[0].DeterministicHash)
}

func TestDecidePanickingEvaluatorIsolated(t *testing.T) {
	boom := evaluator.NewFunc("boom", "v1", func(_ *contracts.Context) (*contracts.Evaluation, error) {
		panic("exploded")
	})
	a := New(scoring.MaxWeight{}, []evaluator.Evaluator{
		boom,
		staticEval("steady", "approve", 0.8),
	})

	decision, err := a.Decide(context.Background(), contracts.MustNewContext(nil))
	require.NoError(t, err)
	require.NotNil(t, decision.Outcome)
	assert.Equal(t, "approve", *decision.Outcome)
	require.Len(t, decision.FailedConditions, 1)
	assert.Contains(t, decision.FailedConditions[0], "boom failed:")
	assert.Contains(t, decision.FailedConditions[0], "exploded")
}

func TestDecideStrictWithNoEvaluations(t *testing.T) {
	silent := evaluator.NewFunc("silent", "v1", func(_ *contracts.Context) (*contracts.Evaluation, error) {
		return nil, nil
	})
	a := New(scoring.WeightedAverage{}, []evaluator.Evaluator{silent}, WithStrictMode())

	_, err := a.Decide(context.Background(), contracts.MustNewContext(nil))
	assert.ErrorIs(t, err, contracts.ErrNoEvaluations)
}

func TestDecideNonStrictNullOutcome(t *testing.T) {
	silent := evaluator.NewFunc("silent", "v1", func(_ *contracts.Context) (*contracts.Evaluation, error) {
		return nil, nil
	})
	a := New(scoring.WeightedAverage{}, []evaluator.Evaluator{silent})

	decision, err := a.Decide(context.Background(), contracts.MustNewContext(nil))
	require.NoError(t, err)
	assert.Nil(t, decision.Outcome)
	assert.Zero(t, decision.Confidence)
	assert.Nil(t, decision.AuditPayload.Decision)
}

func TestDecideValidationDropsMalformedEvaluations(t *testing.T) {
	bad := evaluator.NewFunc("bad", "v1", func(_ *contracts.Context) (*contracts.Evaluation, error) {
		return &contracts.Evaluation{Decision: "approve", Weight: 7, Reason: "r", EvaluatorName: "bad"}, nil
	})
	a := New(scoring.MaxWeight{}, []evaluator.Evaluator{
		bad,
		staticEval("good", "deny", 0.6),
	}, WithValidation())

	decision, err := a.Decide(context.Background(), contracts.MustNewContext(nil))
	require.NoError(t, err)
	require.NotNil(t, decision.Outcome)
	assert.Equal(t, "deny", *decision.Outcome)
	require.Len(t, decision.FailedConditions, 1)
	assert.Contains(t, decision.FailedConditions[0], "bad produced invalid evaluation")
}

type fakeJournal struct {
	outcomes []contracts.EnrichmentOutcome
	resets   int
}

func (j *fakeJournal) Journal() []contracts.EnrichmentOutcome { return j.outcomes }
func (j *fakeJournal) ResetJournal()                          { j.resets++ }

func TestDecideAttachesEnrichmentJournal(t *testing.T) {
	journal := &fakeJournal{outcomes: []contracts.EnrichmentOutcome{
		{Endpoint: "scores", CacheKey: "k1", Body: map[string]any{"score": 712.0}, OK: true},
	}}
	a := New(scoring.WeightedAverage{}, []evaluator.Evaluator{
		staticEval("a", "approve", 0.8),
	}, WithEnrichmentJournal(journal))

	decision, err := a.Decide(context.Background(), contracts.MustNewContext(map[string]any{"k": 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, journal.resets, "journal resets once per run")
	require.Len(t, decision.AuditPayload.Enrichment, 1)
	assert.Equal(t, "scores", decision.AuditPayload.Enrichment[0].Endpoint)

	// Outcomes ride outside the deterministic hash: the same decision
	// without a journal fingerprints identically.
	bare := New(scoring.WeightedAverage{}, []evaluator.Evaluator{staticEval("a", "approve", 0.8)})
	plain, err := bare.Decide(context.Background(), contracts.MustNewContext(map[string]any{"k": 1}))
	require.NoError(t, err)
	assert.Equal(t, plain.AuditPayload.DeterministicHash, decision.AuditPayload.DeterministicHash)
}

func TestDecideWithExplicitInstruments(t *testing.T) {
	a := New(scoring.MaxWeight{}, []evaluator.Evaluator{
		staticEval("a", "approve", 0.8),
	}, WithInstruments(observability.Default()))

	decision, err := a.Decide(context.Background(), contracts.MustNewContext(nil))
	require.NoError(t, err)
	require.NotNil(t, decision.Outcome)
	assert.Equal(t, "approve", *decision.Outcome)
}

func TestDecideCanceledContext(t *testing.T) {
	a := New(scoring.MaxWeight{}, []evaluator.Evaluator{staticEval("e", "x", 0.5)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Decide(ctx, contracts.MustNewContext(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecideDeterministicAcrossRuns(t *testing.T) {
	a := New(scoring.Consensus{MinAgreement: 0.5}, []evaluator.Evaluator{
		staticEval("a", "approve", 0.5),
		staticEval("b", "approve", 0.7),
		staticEval("c", "deny", 0.9),
	})
	dctx := contracts.MustNewContext(map[string]any{"k": "v", "n": 1})

	first, err := a.Decide(context.Background(), dctx)
	require.NoError(t, err)
	second, err := a.Decide(context.Background(), dctx)
	require.NoError(t, err)

	assert.Equal(t, first.AuditPayload.DeterministicHash, second.AuditPayload.DeterministicHash)
	assert.Equal(t, first.AuditPayload.ContextHash, second.AuditPayload.ContextHash)
	assert.Equal(t, first.AuditPayload.RulesetHash, second.AuditPayload.RulesetHash)
}

func TestDecideConcurrentCallersShareAgent(t *testing.T) {
	a := New(scoring.WeightedAverage{}, []evaluator.Evaluator{
		staticEval("a", "approve", 0.8),
	}, WithAuditSink(audit.NullSink{}))
	dctx := contracts.MustNewContext(map[string]any{"k": 1})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := a.Decide(context.Background(), dctx)
			if err == nil && decision.Outcome != nil {
				results[i] = decision.AuditPayload.DeterministicHash
			}
		}(i)
	}
	wg.Wait()
	for i := 1; i < 8; i++ {
		assert.Equal(t, results[0], results[i])
	}
}
