package feel

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// EvalError reports a runtime failure while evaluating an expression.
type EvalError struct {
	Reason string
}

func (e *EvalError) Error() string { return "feel: " + e.Reason }

func evalErrorf(format string, args ...any) error {
	return &EvalError{Reason: fmt.Sprintf(format, args...)}
}

// Range is the evaluated form of a range literal. Bounds are numbers or
// strings; membership tests run against In.
type Range struct {
	Start, End         any
	StartIncl, EndIncl bool
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v any) bool {
	lo, okLo := compareValues(v, r.Start)
	hi, okHi := compareValues(v, r.End)
	if !okLo || !okHi {
		return false
	}
	if r.StartIncl {
		if lo < 0 {
			return false
		}
	} else if lo <= 0 {
		return false
	}
	if r.EndIncl {
		return hi <= 0
	}
	return hi < 0
}

// Eval parses and evaluates input against scope in one call.
func Eval(input string, scope map[string]any) (any, error) {
	node, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return evalNode(node, scope)
}

// EvalNode evaluates a previously parsed expression.
func EvalNode(node Node, scope map[string]any) (any, error) {
	return evalNode(node, scope)
}

func evalNode(node Node, scope map[string]any) (any, error) {
	switch n := node.(type) {
	case numberNode:
		return n.value, nil
	case stringNode:
		return n.value, nil
	case boolNode:
		return n.value, nil
	case nullNode:
		return nil, nil
	case identNode:
		if v, ok := scope[n.name]; ok {
			return v, nil
		}
		return nil, nil
	case listNode:
		out := make([]any, 0, len(n.elems))
		for _, e := range n.elems {
			v, err := evalNode(e, scope)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case contextNode:
		out := make(map[string]any, len(n.keys))
		for i, k := range n.keys {
			v, err := evalNode(n.values[i], scope)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case rangeNode:
		start, err := evalNode(n.start, scope)
		if err != nil {
			return nil, err
		}
		end, err := evalNode(n.end, scope)
		if err != nil {
			return nil, err
		}
		return Range{Start: start, End: end, StartIncl: n.startIncl, EndIncl: n.endIncl}, nil
	case unaryNode:
		return evalUnary(n, scope)
	case binaryNode:
		return evalBinary(n, scope)
	case pathNode:
		base, err := evalNode(n.base, scope)
		if err != nil {
			return nil, err
		}
		if m, ok := base.(map[string]any); ok {
			return m[n.key], nil
		}
		return nil, nil
	case callNode:
		return evalCall(n, scope)
	case ifNode:
		cond, err := evalNode(n.cond, scope)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return evalNode(n.then, scope)
		}
		return evalNode(n.els, scope)
	case forNode:
		items, err := evalIterable(n.iterable, scope)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			child := childScope(scope, n.binding, item)
			v, err := evalNode(n.body, child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case quantNode:
		items, err := evalIterable(n.iterable, scope)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			child := childScope(scope, n.binding, item)
			v, err := evalNode(n.condition, child)
			if err != nil {
				return nil, err
			}
			if n.every && !truthy(v) {
				return false, nil
			}
			if !n.every && truthy(v) {
				return true, nil
			}
		}
		return n.every, nil
	case betweenNode:
		v, err := evalNode(n.value, scope)
		if err != nil {
			return nil, err
		}
		lo, err := evalNode(n.lo, scope)
		if err != nil {
			return nil, err
		}
		hi, err := evalNode(n.hi, scope)
		if err != nil {
			return nil, err
		}
		cLo, okLo := compareValues(v, lo)
		cHi, okHi := compareValues(v, hi)
		return okLo && okHi && cLo >= 0 && cHi <= 0, nil
	case inNode:
		v, err := evalNode(n.value, scope)
		if err != nil {
			return nil, err
		}
		target, err := evalNode(n.target, scope)
		if err != nil {
			return nil, err
		}
		return valueIn(v, target), nil
	case instanceOfNode:
		v, err := evalNode(n.value, scope)
		if err != nil {
			return nil, err
		}
		return typeName(v) == n.typeName, nil
	default:
		return nil, evalErrorf("unsupported node %T", node)
	}
}

func childScope(parent map[string]any, name string, value any) map[string]any {
	child := make(map[string]any, len(parent)+1)
	for k, v := range parent {
		child[k] = v
	}
	child[name] = value
	return child
}

func evalIterable(node Node, scope map[string]any) ([]any, error) {
	v, err := evalNode(node, scope)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	return nil, evalErrorf("expected list, got %s", typeName(v))
}

func evalUnary(n unaryNode, scope map[string]any) (any, error) {
	v, err := evalNode(n.operand, scope)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "-":
		f, ok := asNumber(v)
		if !ok {
			return nil, evalErrorf("cannot negate %s", typeName(v))
		}
		return -f, nil
	case "not":
		if b, ok := v.(bool); ok {
			return !b, nil
		}
		return nil, nil
	}
	return nil, evalErrorf("unknown unary operator %q", n.op)
}

func evalBinary(n binaryNode, scope map[string]any) (any, error) {
	// and/or are short-circuiting with null tolerance per the ternary
	// logic tables.
	if n.op == "and" || n.op == "or" {
		left, err := evalNode(n.left, scope)
		if err != nil {
			return nil, err
		}
		if b, ok := left.(bool); ok {
			if n.op == "and" && !b {
				return false, nil
			}
			if n.op == "or" && b {
				return true, nil
			}
		}
		right, err := evalNode(n.right, scope)
		if err != nil {
			return nil, err
		}
		rb, rok := right.(bool)
		lb, lok := left.(bool)
		if lok && rok {
			if n.op == "and" {
				return lb && rb, nil
			}
			return lb || rb, nil
		}
		if rok {
			if n.op == "and" && !rb {
				return false, nil
			}
			if n.op == "or" && rb {
				return true, nil
			}
		}
		return nil, nil
	}

	left, err := evalNode(n.left, scope)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(n.right, scope)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "=":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		c, ok := compareValues(left, right)
		if !ok {
			return nil, nil
		}
		switch n.op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "+":
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		return arith(left, right, n.op)
	case "-", "*", "/", "%", "**":
		return arith(left, right, n.op)
	}
	return nil, evalErrorf("unknown operator %q", n.op)
}

func arith(left, right any, op string) (any, error) {
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if !lok || !rok {
		return nil, evalErrorf("cannot apply %q to %s and %s", op, typeName(left), typeName(right))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, nil
		}
		return math.Mod(lf, rf), nil
	case "**":
		return math.Pow(lf, rf), nil
	}
	return nil, evalErrorf("unknown operator %q", op)
}

// builtins is the supported function library. Each takes evaluated
// arguments and returns a value; nil results model FEEL null.
var builtins = map[string]func(args []any) (any, error){
	"abs":     numeric1(math.Abs),
	"floor":   numeric1(math.Floor),
	"ceiling": numeric1(math.Ceil),
	"sqrt":    numeric1(math.Sqrt),
	"log":     numeric1(math.Log),
	"exp":     numeric1(math.Exp),
	"odd": func(args []any) (any, error) {
		f, ok := single(args)
		if !ok {
			return nil, nil
		}
		return int64(f)%2 != 0, nil
	},
	"even": func(args []any) (any, error) {
		f, ok := single(args)
		if !ok {
			return nil, nil
		}
		return int64(f)%2 == 0, nil
	},
	"modulo": func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, evalErrorf("modulo expects 2 arguments")
		}
		a, aok := asNumber(args[0])
		b, bok := asNumber(args[1])
		if !aok || !bok || b == 0 {
			return nil, nil
		}
		// FEEL modulo tracks the sign of the divisor.
		return a - b*math.Floor(a/b), nil
	},
	"count": func(args []any) (any, error) {
		list, ok := singleList(args)
		if !ok {
			return nil, nil
		}
		return float64(len(list)), nil
	},
	"sum": reduce(func(acc, f float64) float64 { return acc + f }, 0),
	"min": pick(func(best, f float64) bool { return f < best }),
	"max": pick(func(best, f float64) bool { return f > best }),
	"mean": func(args []any) (any, error) {
		nums, ok := numberList(args)
		if !ok || len(nums) == 0 {
			return nil, nil
		}
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return sum / float64(len(nums)), nil
	},
	"median": func(args []any) (any, error) {
		nums, ok := numberList(args)
		if !ok || len(nums) == 0 {
			return nil, nil
		}
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], nil
		}
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	},
	"contains": func(args []any) (any, error) {
		s, sub, ok := twoStrings(args)
		if !ok {
			return nil, nil
		}
		return strings.Contains(s, sub), nil
	},
	"string": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, evalErrorf("string expects 1 argument")
		}
		return stringify(args[0]), nil
	},
	"number": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, evalErrorf("number expects 1 argument")
		}
		f, ok := asNumber(args[0])
		if !ok {
			return nil, nil
		}
		return f, nil
	},
}

// Standard FEEL names several builtins with spaces; the call grammar
// only produces single identifiers, so those register under underscore
// names.
func init() {
	builtins["string_length"] = func(args []any) (any, error) {
		s, ok := oneString(args)
		if !ok {
			return nil, nil
		}
		return float64(len([]rune(s))), nil
	}
	builtins["starts_with"] = func(args []any) (any, error) {
		s, prefix, ok := twoStrings(args)
		if !ok {
			return nil, nil
		}
		return strings.HasPrefix(s, prefix), nil
	}
	builtins["ends_with"] = func(args []any) (any, error) {
		s, suffix, ok := twoStrings(args)
		if !ok {
			return nil, nil
		}
		return strings.HasSuffix(s, suffix), nil
	}
	builtins["upper_case"] = func(args []any) (any, error) {
		s, ok := oneString(args)
		if !ok {
			return nil, nil
		}
		return strings.ToUpper(s), nil
	}
	builtins["lower_case"] = func(args []any) (any, error) {
		s, ok := oneString(args)
		if !ok {
			return nil, nil
		}
		return strings.ToLower(s), nil
	}
	builtins["list_contains"] = func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, evalErrorf("list_contains expects 2 arguments")
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, nil
		}
		for _, item := range list {
			if looseEqual(item, args[1]) {
				return true, nil
			}
		}
		return false, nil
	}
}

func evalCall(n callNode, scope map[string]any) (any, error) {
	fn, ok := builtins[n.name]
	if !ok {
		return nil, evalErrorf("unknown function %q", n.name)
	}
	args := make([]any, 0, len(n.args))
	for _, a := range n.args {
		v, err := evalNode(a, scope)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return fn(args)
}

func numeric1(f func(float64) float64) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		v, ok := single(args)
		if !ok {
			return nil, nil
		}
		return f(v), nil
	}
}

func reduce(step func(acc, f float64) float64, init float64) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		nums, ok := numberList(args)
		if !ok {
			return nil, nil
		}
		acc := init
		for _, f := range nums {
			acc = step(acc, f)
		}
		return acc, nil
	}
}

func pick(better func(best, f float64) bool) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		nums, ok := numberList(args)
		if !ok || len(nums) == 0 {
			return nil, nil
		}
		best := nums[0]
		for _, f := range nums[1:] {
			if better(best, f) {
				best = f
			}
		}
		return best, nil
	}
}

func single(args []any) (float64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	return asNumber(args[0])
}

func singleList(args []any) ([]any, bool) {
	if len(args) != 1 {
		return nil, false
	}
	list, ok := args[0].([]any)
	return list, ok
}

// numberList accepts either one list argument or variadic numbers.
func numberList(args []any) ([]float64, bool) {
	items := args
	if list, ok := singleList(args); ok {
		items = list
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := asNumber(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func oneString(args []any) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok
}

func twoStrings(args []any) (string, string, bool) {
	if len(args) != 2 {
		return "", "", false
	}
	a, aok := args[0].(string)
	b, bok := args[1].(string)
	return a, b, aok && bok
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// looseEqual compares across numeric kinds; everything else is
// type-strict.
func looseEqual(a, b any) bool {
	if af, ok := asNumber(a); ok {
		bf, ok := asNumber(b)
		return ok && af == bf
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		return ok && ta == tb
	case bool:
		tb, ok := b.(bool)
		return ok && ta == tb
	case nil:
		return b == nil
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !looseEqual(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !looseEqual(va, vb) {
				return false
			}
		}
		return true
	}
	return false
}

// compareValues orders numbers against numbers and strings against
// strings. ok is false for incomparable kinds.
func compareValues(a, b any) (int, bool) {
	if af, ok := asNumber(a); ok {
		bf, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func valueIn(v, target any) bool {
	switch t := target.(type) {
	case Range:
		return t.Contains(v)
	case []any:
		for _, item := range t {
			if looseEqual(v, item) {
				return true
			}
		}
		return false
	default:
		return looseEqual(v, target)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "context"
	case Range:
		return "range"
	}
	if _, ok := asNumber(v); ok {
		return "number"
	}
	return "unknown"
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
