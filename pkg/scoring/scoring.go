// Package scoring combines partial evaluations into a final decision and
// confidence. Every strategy is a pure function of the evaluation list:
// no wall-clock, no randomness, ties resolved by first-seen order.
package scoring

import (
	"math"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Strategy folds evaluations into (decision, confidence). A nil decision
// means no verdict; confidence is always clamped to [0,1].
type Strategy interface {
	Name() string
	Score(evals []contracts.Evaluation) (decision *string, confidence float64)
}

// group aggregates evaluations sharing a decision, preserving first-seen
// order for stable tie-breaking.
type group struct {
	decision  string
	weightSum float64
	count     int
}

func groupByDecision(evals []contracts.Evaluation) []*group {
	index := make(map[string]*group, len(evals))
	var ordered []*group
	for _, e := range evals {
		g, ok := index[e.Decision]
		if !ok {
			g = &group{decision: e.Decision}
			index[e.Decision] = g
			ordered = append(ordered, g)
		}
		g.weightSum += e.Weight
		g.count++
	}
	return ordered
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

// WeightedAverage picks the decision with the largest summed weight;
// confidence is winning weight over total weight, rounded to 4 decimals.
type WeightedAverage struct{}

func (WeightedAverage) Name() string { return "weighted_average" }

func (WeightedAverage) Score(evals []contracts.Evaluation) (*string, float64) {
	if len(evals) == 0 {
		return nil, 0
	}
	groups := groupByDecision(evals)
	total := 0.0
	winner := groups[0]
	for _, g := range groups {
		total += g.weightSum
		if g.weightSum > winner.weightSum {
			winner = g
		}
	}
	if total == 0 {
		d := winner.decision
		return &d, 0
	}
	d := winner.decision
	return &d, round4(clamp(winner.weightSum / total))
}

// MaxWeight picks the single evaluation with the greatest weight;
// confidence is that weight.
type MaxWeight struct{}

func (MaxWeight) Name() string { return "max_weight" }

func (MaxWeight) Score(evals []contracts.Evaluation) (*string, float64) {
	if len(evals) == 0 {
		return nil, 0
	}
	best := evals[0]
	for _, e := range evals[1:] {
		if e.Weight > best.Weight {
			best = e
		}
	}
	d := best.Decision
	return &d, clamp(best.Weight)
}

// Consensus picks the decision with the highest agreement (vote share),
// breaking ties by higher average weight. Confidence is agreement times
// average weight, halved when agreement falls below MinAgreement.
type Consensus struct {
	MinAgreement float64
}

func (Consensus) Name() string { return "consensus" }

func (c Consensus) Score(evals []contracts.Evaluation) (*string, float64) {
	if len(evals) == 0 {
		return nil, 0
	}
	groups := groupByDecision(evals)
	total := float64(len(evals))
	winner := groups[0]
	for _, g := range groups[1:] {
		switch {
		case g.count > winner.count:
			winner = g
		case g.count == winner.count && avg(g) > avg(winner):
			winner = g
		}
	}
	agreement := float64(winner.count) / total
	confidence := agreement * avg(winner)
	if agreement < c.MinAgreement {
		confidence /= 2
	}
	d := winner.decision
	return &d, round4(clamp(confidence))
}

func avg(g *group) float64 {
	if g.count == 0 {
		return 0
	}
	return g.weightSum / float64(g.count)
}

// Threshold picks the decision with the highest average weight and
// accepts it only at or above Tau; otherwise it falls back with half
// that weight. An empty evaluation list yields the fallback at zero.
type Threshold struct {
	Tau      float64
	Fallback string
}

func (Threshold) Name() string { return "threshold" }

func (t Threshold) Score(evals []contracts.Evaluation) (*string, float64) {
	if len(evals) == 0 {
		d := t.Fallback
		return &d, 0
	}
	groups := groupByDecision(evals)
	winner := groups[0]
	for _, g := range groups[1:] {
		if avg(g) > avg(winner) {
			winner = g
		}
	}
	weight := avg(winner)
	if weight >= t.Tau {
		d := winner.decision
		return &d, round4(clamp(weight))
	}
	d := t.Fallback
	return &d, round4(clamp(weight / 2))
}
