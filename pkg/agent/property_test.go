//go:build property

package agent

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/scoring"
)

type verdict struct {
	Decision string
	Weight   float64
}

func genVerdicts() gopter.Gen {
	one := gopter.CombineGens(
		gen.OneConstOf("approve", "deny", "review"),
		gen.Float64Range(0, 1),
	).Map(func(vals []any) verdict {
		return verdict{Decision: vals[0].(string), Weight: vals[1].(float64)}
	})
	return gen.SliceOfN(4, one)
}

func agentFor(vs []verdict, strategy scoring.Strategy) *Agent {
	evaluators := make([]evaluator.Evaluator, len(vs))
	for i, v := range vs {
		name := string(rune('a' + i))
		evaluators[i] = evaluator.NewStatic(name, contracts.Evaluation{
			Decision: v.Decision, Weight: v.Weight, Reason: "r", EvaluatorName: name,
		})
	}
	return New(strategy, evaluators)
}

func TestDecideProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	strategies := []scoring.Strategy{
		scoring.WeightedAverage{},
		scoring.MaxWeight{},
		scoring.Consensus{MinAgreement: 0.5},
		scoring.Threshold{Tau: 0.5, Fallback: "review"},
	}

	properties.Property("identical inputs always hash identically", prop.ForAll(
		func(vs []verdict, amount float64) bool {
			dctx := contracts.MustNewContext(map[string]any{"amount": amount})
			for _, strategy := range strategies {
				a := agentFor(vs, strategy)
				first, err := a.Decide(context.Background(), dctx)
				if err != nil {
					return false
				}
				second, err := a.Decide(context.Background(), dctx)
				if err != nil {
					return false
				}
				if first.AuditPayload.DeterministicHash != second.AuditPayload.DeterministicHash {
					return false
				}
			}
			return true
		},
		genVerdicts(), gen.Float64Range(0, 1e6),
	))

	properties.Property("confidence stays within the unit interval", prop.ForAll(
		func(vs []verdict) bool {
			dctx := contracts.MustNewContext(nil)
			for _, strategy := range strategies {
				decision, err := agentFor(vs, strategy).Decide(context.Background(), dctx)
				if err != nil {
					return false
				}
				if decision.Confidence < 0 || decision.Confidence > 1 {
					return false
				}
			}
			return true
		},
		genVerdicts(),
	))

	properties.TestingRun(t)
}
