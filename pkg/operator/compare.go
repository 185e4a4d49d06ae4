package operator

import (
	"fmt"
	"math"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func registerComparison(r *Registry) {
	register(r, "eq", func(field, value any, _ *contracts.Context) bool {
		return !contracts.IsAbsent(field) && strictEqual(field, value)
	}, nil)

	register(r, "ne", func(field, value any, _ *contracts.Context) bool {
		return !contracts.IsAbsent(field) && !strictEqual(field, value)
	}, nil)

	register(r, "lt", orderOp(func(c int) bool { return c < 0 }), nil)
	register(r, "lte", orderOp(func(c int) bool { return c <= 0 }), nil)
	register(r, "gt", orderOp(func(c int) bool { return c > 0 }), nil)
	register(r, "gte", orderOp(func(c int) bool { return c >= 0 }), nil)

	register(r, "present", func(field, _ any, _ *contracts.Context) bool {
		return !contracts.IsAbsent(field)
	}, nil)

	register(r, "absent", func(field, _ any, _ *contracts.Context) bool {
		return contracts.IsAbsent(field)
	}, nil)

	register(r, "between", applyBetween, validateBetween)
	register(r, "modulo", applyModulo, validateModulo)
}

func orderOp(accept func(int) bool) func(field, value any, ctx *contracts.Context) bool {
	return func(field, value any, _ *contracts.Context) bool {
		if contracts.IsAbsent(field) {
			return false
		}
		c, ok := order(field, value)
		return ok && accept(c)
	}
}

// boundsOf accepts [lo,hi] or {min,max}.
func boundsOf(value any) (float64, float64, bool) {
	if pair, ok := toFloatList(value); ok && len(pair) == 2 {
		return pair[0], pair[1], true
	}
	if m, ok := toMap(value); ok {
		lo, lok := toFloat(m["min"])
		hi, hok := toFloat(m["max"])
		if lok && hok {
			return lo, hi, true
		}
	}
	return 0, 0, false
}

// applyBetween is inclusive on both ends in every value form.
func applyBetween(field, value any, _ *contracts.Context) bool {
	f, ok := toFloat(field)
	if !ok {
		return false
	}
	lo, hi, ok := boundsOf(value)
	return ok && f >= lo && f <= hi
}

func validateBetween(value any) error {
	if _, _, ok := boundsOf(value); !ok {
		return fmt.Errorf("value must be [lo,hi] or {min,max}")
	}
	return nil
}

// moduloArgs accepts [divisor,remainder] or {divisor,remainder}.
func moduloArgs(value any) (float64, float64, bool) {
	if pair, ok := toFloatList(value); ok && len(pair) == 2 {
		return pair[0], pair[1], true
	}
	if m, ok := toMap(value); ok {
		d, dok := toFloat(m["divisor"])
		rem, rok := toFloat(m["remainder"])
		if dok && rok {
			return d, rem, true
		}
	}
	return 0, 0, false
}

func applyModulo(field, value any, _ *contracts.Context) bool {
	f, ok := toFloat(field)
	if !ok {
		return false
	}
	d, rem, ok := moduloArgs(value)
	if !ok || d == 0 {
		return false
	}
	return math.Abs(math.Mod(f, d)-rem) <= defaultTolerance
}

func validateModulo(value any) error {
	if _, _, ok := moduloArgs(value); !ok {
		return fmt.Errorf("value must be [divisor,remainder] or {divisor,remainder}")
	}
	return nil
}
