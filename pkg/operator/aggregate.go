package operator

import (
	"math"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Aggregation operators reduce a list-valued field to a number and check
// it against a scalar (equality) or a threshold map. They are insensitive
// to list order by construction, except join.
func registerAggregations(r *Registry) {
	registerReduce(r, "min", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x < m {
				m = x
			}
		}
		return m
	})
	registerReduce(r, "max", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x > m {
				m = x
			}
		}
		return m
	})
	registerReduce(r, "sum", sum)
	registerReduce(r, "average", mean)
	registerReduce(r, "mean", mean)
	registerReduce(r, "median", median)
	registerReduce(r, "stddev", func(xs []float64) float64 { return math.Sqrt(variance(xs)) })
	registerReduce(r, "variance", variance)

	register(r, "percentile", applyPercentile, func(value any) error {
		return requireMapKeys(value, "percentile")
	})

	register(r, "count", applyLength, nil)
	register(r, "length", applyLength, nil)
	register(r, "join", applyJoin, func(value any) error {
		return requireMapKeys(value, "separator")
	})
}

func registerReduce(r *Registry, name string, reduce func([]float64) float64) {
	register(r, name, func(field, value any, _ *contracts.Context) bool {
		xs, ok := toFloatList(field)
		if !ok || len(xs) == 0 {
			return false
		}
		return compareWithSpec(reduce(xs), value, defaultTolerance)
	}, nil)
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 { return sum(xs) / float64(len(xs)) }

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// variance is the population variance.
func variance(xs []float64) float64 {
	m := mean(xs)
	v := 0.0
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return v / float64(len(xs))
}

// percentileOf uses linear interpolation between closest ranks.
func percentileOf(xs []float64, p float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func applyPercentile(field, value any, _ *contracts.Context) bool {
	xs, ok := toFloatList(field)
	if !ok || len(xs) == 0 {
		return false
	}
	m, ok := toMap(value)
	if !ok {
		return false
	}
	p, ok := toFloat(m["percentile"])
	if !ok {
		return false
	}
	result := percentileOf(xs, p)
	if threshold, ok := toFloat(m["threshold"]); ok {
		return math.Abs(result-threshold) <= toleranceFrom(value)
	}
	thresholds := make(map[string]any)
	for k, v := range m {
		if isComparisonKey(k) {
			thresholds[k] = v
		}
	}
	if len(thresholds) == 0 {
		return false
	}
	return compareWithSpec(result, thresholds, toleranceFrom(value))
}

func applyLength(field, value any, _ *contracts.Context) bool {
	list, ok := toList(field)
	if !ok {
		return false
	}
	return compareWithSpec(float64(len(list)), value, 0)
}

// applyJoin joins a string list and checks {separator, contains} or
// {separator, eq}.
func applyJoin(field, value any, _ *contracts.Context) bool {
	list, ok := toList(field)
	if !ok {
		return false
	}
	parts := make([]string, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok {
			return false
		}
		parts[i] = s
	}
	m, ok := toMap(value)
	if !ok {
		return false
	}
	sep, _ := m["separator"].(string)
	joined := strings.Join(parts, sep)
	if sub, ok := m["contains"].(string); ok {
		return strings.Contains(joined, sub)
	}
	if want, ok := m["eq"].(string); ok {
		return joined == want
	}
	return false
}
