package operator

import (
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Collection operators use set semantics on ordered lists; duplicates are
// ignored. Elements compare by canonical JSON form so 2 and 2.0 coincide.
func registerCollections(r *Registry) {
	register(r, "contains_all", setOp(func(field, value map[string]struct{}) bool {
		for k := range value {
			if _, ok := field[k]; !ok {
				return false
			}
		}
		return true
	}), requireListValue)

	register(r, "contains_any", setOp(func(field, value map[string]struct{}) bool {
		for k := range value {
			if _, ok := field[k]; ok {
				return true
			}
		}
		return false
	}), requireListValue)

	register(r, "intersects", setOp(func(field, value map[string]struct{}) bool {
		for k := range field {
			if _, ok := value[k]; ok {
				return true
			}
		}
		return false
	}), requireListValue)

	register(r, "subset_of", setOp(func(field, value map[string]struct{}) bool {
		for k := range field {
			if _, ok := value[k]; !ok {
				return false
			}
		}
		return true
	}), requireListValue)
}

func setOp(fn func(field, value map[string]struct{}) bool) func(field, value any, ctx *contracts.Context) bool {
	return func(field, value any, _ *contracts.Context) bool {
		fieldSet, ok := asSet(field)
		if !ok {
			return false
		}
		valueSet, ok := asSet(value)
		if !ok {
			return false
		}
		return fn(fieldSet, valueSet)
	}
}

func asSet(v any) (map[string]struct{}, bool) {
	list, ok := toList(v)
	if !ok {
		return nil, false
	}
	set := make(map[string]struct{}, len(list))
	for _, e := range list {
		set[canonicalKey(e)] = struct{}{}
	}
	return set, true
}

func requireListValue(value any) error {
	if _, ok := toList(value); !ok {
		return fmt.Errorf("value must be a list")
	}
	return nil
}
