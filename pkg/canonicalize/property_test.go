//go:build property

package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genValue() gopter.Gen {
	scalar := gen.OneGenOf(
		gen.Float64Range(-1e6, 1e6).Map(func(f float64) any { return f }),
		gen.AlphaString().Map(func(s string) any { return s }),
		gen.Bool().Map(func(b bool) any { return b }),
		gen.Const(any(nil)),
	)
	return gen.MapOf(gen.Identifier(), scalar).Map(func(m map[string]any) any { return m })
}

func TestCanonicalizationProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("canonical form is a fixed point", prop.ForAll(
		func(v any) bool {
			first, err := JCS(v)
			if err != nil {
				return false
			}
			second, err := JCSBytes(first)
			if err != nil {
				return false
			}
			return string(first) == string(second)
		},
		genValue(),
	))

	properties.Property("hash is stable across calls", prop.ForAll(
		func(v any) bool {
			a, errA := CanonicalHash(v)
			b, errB := CanonicalHash(v)
			return errA == nil && errB == nil && a == b && len(a) == 64
		},
		genValue(),
	))

	properties.TestingRun(t)
}
