package evaluator

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// CEL is a custom evaluator backed by a Common Expression Language
// program. The expression sees the context attributes as the variable
// `ctx` and must return either a map {decision, weight, reason} or a
// value that converts to false/null for "no verdict".
//
// CEL programs are pure over their input, which keeps replay sound.
type CEL struct {
	name    string
	source  string
	program cel.Program
}

// NewCEL compiles source once at construction. Compilation errors are
// structural and surface immediately.
func NewCEL(name, source string) (*CEL, error) {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel: environment: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel: compile %q: %w", name, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel: program %q: %w", name, err)
	}
	return &CEL{name: name, source: source, program: program}, nil
}

func (c *CEL) Name() string { return c.name }

func (c *CEL) ContentHash() string { return hashString("cel:" + c.source) }

func (c *CEL) Evaluate(ctx *contracts.Context) (*contracts.Evaluation, *contracts.Trace, error) {
	out, _, err := c.program.Eval(map[string]any{"ctx": ctx.Attrs()})
	if err != nil {
		// Per-context data errors (missing keys, type mismatches) mean
		// "no verdict", not failure.
		return nil, nil, nil
	}

	native, err := out.ConvertToNative(reflect.TypeOf(map[string]any{}))
	if err != nil {
		return nil, nil, nil
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, nil, nil
	}

	decision, _ := m["decision"].(string)
	if decision == "" {
		return nil, nil, nil
	}
	weight := 1.0
	switch w := m["weight"].(type) {
	case float64:
		weight = w
	case int64:
		weight = float64(w)
	}
	reason, _ := m["reason"].(string)

	return &contracts.Evaluation{
		Decision:      decision,
		Weight:        weight,
		Reason:        reason,
		EvaluatorName: c.name,
	}, nil, nil
}
