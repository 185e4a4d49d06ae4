package operator

import (
	"fmt"
	"math"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Math operators apply a function to the field value and compare the
// result against the expected value with a small-epsilon tolerance
// (default 1e-9, overridable via value.tolerance).
func registerMath(r *Registry) {
	unary := map[string]func(float64) float64{
		"sin":      math.Sin,
		"cos":      math.Cos,
		"tan":      math.Tan,
		"asin":     math.Asin,
		"acos":     math.Acos,
		"atan":     math.Atan,
		"sinh":     math.Sinh,
		"cosh":     math.Cosh,
		"tanh":     math.Tanh,
		"sqrt":     math.Sqrt,
		"cbrt":     math.Cbrt,
		"exp":      math.Exp,
		"log":      math.Log,
		"log10":    math.Log10,
		"log2":     math.Log2,
		"round":    math.Round,
		"floor":    math.Floor,
		"ceil":     math.Ceil,
		"truncate": math.Trunc,
		"abs":      math.Abs,
	}
	for name, fn := range unary {
		fn := fn
		register(r, name, func(field, value any, _ *contracts.Context) bool {
			f, ok := toFloat(field)
			if !ok {
				return false
			}
			result := fn(f)
			if math.IsNaN(result) || math.IsInf(result, 0) {
				return false
			}
			return matchExpected(result, value)
		}, nil)
	}

	register(r, "power", pairedOp("exponent", func(f, operand float64) float64 {
		return math.Pow(f, operand)
	}), validatePaired("exponent"))

	register(r, "atan2", pairedOp("x", func(f, operand float64) float64 {
		return math.Atan2(f, operand)
	}), validatePaired("x"))

	register(r, "factorial", func(field, value any, _ *contracts.Context) bool {
		n, ok := toInt(field)
		if !ok || n < 0 || n > 170 {
			return false
		}
		result := 1.0
		for i := int64(2); i <= n; i++ {
			result *= float64(i)
		}
		return matchExpected(result, value)
	}, nil)

	register(r, "gcd", pairedIntOp(func(a, b int64) int64 { return gcd(a, b) }), validatePaired("operand"))
	register(r, "lcm", pairedIntOp(func(a, b int64) int64 {
		if a == 0 || b == 0 {
			return 0
		}
		return a / gcd(a, b) * b
	}), validatePaired("operand"))
}

// matchExpected accepts a scalar expected value or {result, tolerance}.
func matchExpected(result float64, value any) bool {
	tolerance := toleranceFrom(value)
	if m, ok := toMap(value); ok {
		expected, ok := toFloat(m["result"])
		if !ok {
			return false
		}
		return math.Abs(result-expected) <= tolerance
	}
	expected, ok := toFloat(value)
	if !ok {
		return false
	}
	return math.Abs(result-expected) <= tolerance
}

// pairedArgs accepts {<operandKey>, result} or a positional [operand,
// result] pair.
func pairedArgs(value any, operandKey string) (operand, expected, tolerance float64, ok bool) {
	tolerance = toleranceFrom(value)
	if m, mok := toMap(value); mok {
		operand, ok = toFloat(m[operandKey])
		if !ok {
			// Generic key fallback for positional-style maps.
			operand, ok = toFloat(m["operand"])
		}
		if !ok {
			return 0, 0, 0, false
		}
		expected, ok = toFloat(m["result"])
		return operand, expected, tolerance, ok
	}
	if pair, pok := toFloatList(value); pok && len(pair) == 2 {
		return pair[0], pair[1], tolerance, true
	}
	return 0, 0, 0, false
}

func pairedOp(operandKey string, fn func(field, operand float64) float64) func(field, value any, ctx *contracts.Context) bool {
	return func(field, value any, _ *contracts.Context) bool {
		f, ok := toFloat(field)
		if !ok {
			return false
		}
		operand, expected, tolerance, ok := pairedArgs(value, operandKey)
		if !ok {
			return false
		}
		result := fn(f, operand)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return false
		}
		return math.Abs(result-expected) <= tolerance
	}
}

func pairedIntOp(fn func(a, b int64) int64) func(field, value any, ctx *contracts.Context) bool {
	return func(field, value any, _ *contracts.Context) bool {
		a, ok := toInt(field)
		if !ok {
			return false
		}
		operand, expected, _, ok := pairedArgs(value, "operand")
		if !ok {
			return false
		}
		b, bok := toInt(operand)
		want, wok := toInt(expected)
		if !bok || !wok {
			return false
		}
		return fn(abs64(a), abs64(b)) == want
	}
}

func validatePaired(operandKey string) func(value any) error {
	return func(value any) error {
		if _, _, _, ok := pairedArgs(value, operandKey); !ok {
			return fmt.Errorf("value must be {%s, result} or a positional pair", operandKey)
		}
		return nil
	}
}

func gcd(a, b int64) int64 {
	a, b = abs64(a), abs64(b)
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
