package enrich

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
)

// OperatorName is the rule-facing name of the enrichment operator.
const OperatorName = "fetch_from_api"

// fetchOperator evaluates fetch_from_api leaves. The rule-side value is
// {endpoint, params?, mapping?}; the field is ignored. Any failure in
// the pipeline yields false, never an error.
type fetchOperator struct {
	provider *Provider
}

// NewOperator wraps a Provider as a condition operator.
func NewOperator(p *Provider) operator.Operator {
	return &fetchOperator{provider: p}
}

// Register installs the enrichment operator into a registry.
func Register(reg *operator.Registry, p *Provider) {
	reg.Register(NewOperator(p))
}

func (o *fetchOperator) Name() string { return OperatorName }

func (o *fetchOperator) Apply(_ any, value any, ctx *contracts.Context) bool {
	spec, ok := value.(map[string]any)
	if !ok {
		return false
	}
	endpoint, ok := spec["endpoint"].(string)
	if !ok || endpoint == "" {
		return false
	}
	params, _ := spec["params"].(map[string]any)
	mapping := toMapping(spec["mapping"])
	return o.provider.Fetch(context.Background(), endpoint, params, mapping, ctx)
}

func (o *fetchOperator) ValidateValue(value any) error {
	spec, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%s expects an object value", OperatorName)
	}
	endpoint, ok := spec["endpoint"].(string)
	if !ok || endpoint == "" {
		return fmt.Errorf("%s requires an endpoint name", OperatorName)
	}
	if raw, present := spec["params"]; present {
		if _, ok := raw.(map[string]any); !ok {
			return fmt.Errorf("%s params must be an object", OperatorName)
		}
	}
	if raw, present := spec["mapping"]; present {
		m, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%s mapping must be an object", OperatorName)
		}
		for k, v := range m {
			if _, ok := v.(string); !ok {
				return fmt.Errorf("%s mapping %q must target a string context key", OperatorName, k)
			}
		}
	}
	return nil
}

func toMapping(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
