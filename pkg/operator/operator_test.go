package operator

import (
	"testing"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// applyCase drives Registry.Apply with a resolved field value.
type applyCase struct {
	name  string
	op    string
	field any
	value any
	want  bool
}

func runApplyCases(t *testing.T, cases []applyCase) {
	t.Helper()
	reg := NewRegistry()
	ctx := contracts.MustNewContext(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := reg.Apply(tc.op, tc.field, tc.value, ctx); got != tc.want {
				t.Errorf("%s(%v, %v) = %v, want %v", tc.op, tc.field, tc.value, got, tc.want)
			}
		})
	}
}

func TestComparisonOperators(t *testing.T) {
	runApplyCases(t, []applyCase{
		{"eq numbers cross-type", "eq", 5, 5.0, true},
		{"eq numbers tolerance", "eq", 0.1 + 0.2, 0.3, true},
		{"eq string", "eq", "gold", "gold", true},
		{"eq type strict", "eq", "5", 5, false},
		{"ne", "ne", 4, 5, true},
		{"lt", "lt", 3, 5, true},
		{"lt equal", "lt", 5, 5, false},
		{"lte equal", "lte", 5, 5, true},
		{"gt string", "gt", "beta", "alpha", true},
		{"gte", "gte", 10.0, 10, true},
		{"between inclusive low", "between", 0, []any{0, 10}, true},
		{"between inclusive high", "between", 10, []any{0, 10}, true},
		{"between outside", "between", 11, []any{0, 10}, false},
		{"between object bounds", "between", 5, map[string]any{"min": 1, "max": 9}, true},
		{"modulo pair", "modulo", 10, []any{3, 1}, true},
		{"modulo object", "modulo", 10, map[string]any{"divisor": 5, "remainder": 0}, true},
		{"modulo mismatch", "modulo", 10, []any{3, 2}, false},
		{"present", "present", "anything", nil, true},
		{"present absent", "present", contracts.Absent, nil, false},
		{"absent", "absent", contracts.Absent, nil, true},
		{"absent with value", "absent", 1, nil, false},
		{"eq absent degrades", "eq", contracts.Absent, 5, false},
		{"malformed value degrades", "between", 5, "not-a-range", false},
	})
}

func TestStringOperators(t *testing.T) {
	runApplyCases(t, []applyCase{
		{"contains", "contains", "hello world", "lo w", true},
		{"contains miss", "contains", "hello", "xyz", false},
		{"starts_with", "starts_with", "prefix-value", "prefix", true},
		{"ends_with", "ends_with", "report.pdf", ".pdf", true},
		{"matches", "matches", "user-42", `^user-\d+$`, true},
		{"matches invalid pattern degrades", "matches", "x", "([", false},
		{"contains non-string degrades", "contains", 42, "4", false},
	})
}

func TestCollectionOperators(t *testing.T) {
	runApplyCases(t, []applyCase{
		{"contains_all", "contains_all", []any{"a", "b", "c"}, []any{"a", "c"}, true},
		{"contains_all missing", "contains_all", []any{"a"}, []any{"a", "b"}, false},
		{"contains_any", "contains_any", []any{"a", "b"}, []any{"x", "b"}, true},
		{"intersects empty", "intersects", []any{"a"}, []any{"x"}, false},
		{"subset_of", "subset_of", []any{"a", "a"}, []any{"a", "b"}, true},
		{"duplicates ignored", "contains_all", []any{"a", "a", "b"}, []any{"b", "b"}, true},
		{"numeric set cross-type", "contains_any", []any{1, 2}, []any{2.0}, true},
	})
}

func TestMathOperators(t *testing.T) {
	runApplyCases(t, []applyCase{
		{"sqrt", "sqrt", 9, 3, true},
		{"sqrt with tolerance spec", "sqrt", 2, map[string]any{"result": 1.41421356, "tolerance": 1e-6}, true},
		{"abs", "abs", -4, 4, true},
		{"power", "power", 2, map[string]any{"exponent": 10, "result": 1024}, true},
		{"factorial", "factorial", 5, 120, true},
		{"factorial overflow degrades", "factorial", 200, 1, false},
		{"gcd", "gcd", 12, []any{18, 6}, true},
		{"lcm", "lcm", 4, []any{6, 12}, true},
	})
}

func TestAggregationOperators(t *testing.T) {
	list := []any{1, 2, 3, 4, 5}
	runApplyCases(t, []applyCase{
		{"sum", "sum", list, 15, true},
		{"average", "average", list, 3, true},
		{"median odd", "median", list, 3, true},
		{"median even", "median", []any{1, 2, 3, 4}, 2.5, true},
		{"min threshold", "min", list, map[string]any{"lte": 1}, true},
		{"max", "max", list, 5, true},
		{"stddev population", "stddev", []any{2, 4, 4, 4, 5, 5, 7, 9}, 2, true},
		{"percentile interpolated", "percentile", list, map[string]any{"percentile": 50, "eq": 3}, true},
		{"count", "count", list, 5, true},
		{"length", "length", []any{"a", "b", "c"}, 3, true},
		{"join", "join", []any{"a", "b"}, map[string]any{"separator": "-", "eq": "a-b"}, true},
		{"sum non-list degrades", "sum", 42, 42, false},
	})
}

func TestUnknownOperatorDegrades(t *testing.T) {
	reg := NewRegistry()
	ctx := contracts.MustNewContext(nil)
	if reg.Apply("no_such_operator", 1, 1, ctx) {
		t.Error("unknown operator must evaluate to false")
	}
}

func TestApplyRecoversPanickingOperator(t *testing.T) {
	reg := NewEmptyRegistry()
	register(reg, "explode", func(_, _ any, _ *contracts.Context) bool {
		panic("boom")
	}, nil)
	ctx := contracts.MustNewContext(nil)
	if reg.Apply("explode", 1, 1, ctx) {
		t.Error("panicking operator must evaluate to false")
	}
}

func TestDescribeRendersCanonicalValue(t *testing.T) {
	got := Describe("user.age", "gte", 18)
	if got != "user.age gte 18" {
		t.Errorf("Describe = %q", got)
	}
	got = Describe("user.tags", "contains_all", []any{"b", "a"})
	if got != `user.tags contains_all ["b","a"]` {
		t.Errorf("Describe = %q", got)
	}
}
