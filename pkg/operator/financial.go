package operator

import (
	"math"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Financial operators treat the field value as the principal (or the
// future amount for present_value) and compare the computed figure to
// value.result within tolerance.
func registerFinancial(r *Registry) {
	register(r, "compound_interest", financialOp(func(principal, rate, periods float64) float64 {
		return principal * math.Pow(1+rate, periods)
	}), validateFinancial)

	register(r, "future_value", financialOp(func(principal, rate, periods float64) float64 {
		return principal * math.Pow(1+rate, periods)
	}), validateFinancial)

	register(r, "present_value", financialOp(func(future, rate, periods float64) float64 {
		return future / math.Pow(1+rate, periods)
	}), validateFinancial)
}

func financialOp(fn func(amount, rate, periods float64) float64) func(field, value any, ctx *contracts.Context) bool {
	return func(field, value any, _ *contracts.Context) bool {
		amount, ok := toFloat(field)
		if !ok {
			return false
		}
		m, ok := toMap(value)
		if !ok {
			return false
		}
		rate, rok := toFloat(m["rate"])
		periods, pok := toFloat(m["periods"])
		expected, eok := toFloat(m["result"])
		if !rok || !pok || !eok {
			return false
		}
		result := fn(amount, rate, periods)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return false
		}
		return math.Abs(result-expected) <= toleranceFrom(value)
	}
}

func validateFinancial(value any) error {
	return requireMapKeys(value, "rate", "periods", "result")
}
