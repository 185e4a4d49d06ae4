// Package operator implements the condition operator library behind a
// single name-keyed dispatch table. Every operator declares its value
// schema so rule validation and documentation stay mechanical.
//
// Operators never raise on bad data: type mismatches, malformed values,
// and absent attributes all evaluate to false. Only programmer errors
// (nil operator, unregistered name at validation time) surface as errors.
package operator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Operator evaluates one leaf condition. Apply receives the resolved
// field value (possibly the Absent sentinel), the rule-side value, and
// the full context for operators that dereference dotted-path targets.
type Operator interface {
	Name() string
	Apply(field any, value any, ctx *contracts.Context) bool
	// ValidateValue checks the rule-side value shape at document load.
	ValidateValue(value any) error
}

// Registry is a name-keyed operator table. The zero value is unusable;
// construct with NewRegistry (built-ins included) or NewEmptyRegistry.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operator
}

// NewRegistry returns a registry with the full built-in operator set.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	registerComparison(r)
	registerStrings(r)
	registerCollections(r)
	registerTemporal(r)
	registerGeo(r)
	registerMath(r)
	registerAggregations(r)
	registerWindows(r)
	registerFinancial(r)
	return r
}

// NewEmptyRegistry returns a registry with no operators registered.
func NewEmptyRegistry() *Registry {
	return &Registry{ops: make(map[string]Operator)}
}

var defaultRegistry = NewRegistry()

// Default returns the shared process-wide registry. Extensions such as
// the enrichment operator register here during init, before the first
// decision.
func Default() *Registry { return defaultRegistry }

// Register adds or replaces an operator.
func (r *Registry) Register(op Operator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.Name()] = op
}

// Lookup returns the operator for name.
func (r *Registry) Lookup(name string) (Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns all registered operator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply dispatches by name with panic isolation. Unknown operators and
// operator panics evaluate to false, honoring the non-fatality contract.
func (r *Registry) Apply(name string, field, value any, ctx *contracts.Context) (result bool) {
	op, ok := r.Lookup(name)
	if !ok {
		return false
	}
	defer func() {
		if recover() != nil {
			result = false
		}
	}()
	return op.Apply(field, value, ctx)
}

// Describe renders the human descriptor for a leaf condition,
// "<field> <op> <value>" with the value in canonical form.
func Describe(field, name string, value any) string {
	rendered, err := canonicalize.JCSString(value)
	if err != nil {
		rendered = fmt.Sprintf("%v", value)
	}
	return fmt.Sprintf("%s %s %s", field, name, rendered)
}

// simpleOp adapts plain functions to the Operator interface.
type simpleOp struct {
	name     string
	apply    func(field, value any, ctx *contracts.Context) bool
	validate func(value any) error
}

func (o *simpleOp) Name() string { return o.name }

func (o *simpleOp) Apply(field, value any, ctx *contracts.Context) bool {
	return o.apply(field, value, ctx)
}

func (o *simpleOp) ValidateValue(value any) error {
	if o.validate == nil {
		return nil
	}
	return o.validate(value)
}

func register(r *Registry, name string, apply func(field, value any, ctx *contracts.Context) bool, validate func(value any) error) {
	r.Register(&simpleOp{name: name, apply: apply, validate: validate})
}
