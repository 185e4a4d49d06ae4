package contracts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// absent is the sentinel returned by Resolve for missing paths. It is
// distinct from an explicit null value stored in the context.
type absent struct{}

// Absent is the missing-attribute sentinel. Operators that are not
// absence-checking must treat it as a failed condition.
var Absent = absent{}

// IsAbsent reports whether v is the missing-attribute sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

// Context is an immutable attribute map with dotted-path resolution.
//
// Values are restricted to JSON-representable kinds: nil, bool, string,
// numbers, lists, and nested string-keyed maps. Construction deep-copies
// the input so later caller mutations cannot leak in. Enrichment operators
// may attach derived attributes through Enrich; those overlay the base
// attributes and participate in the context hash.
type Context struct {
	attrs map[string]any

	mu       sync.RWMutex
	enriched map[string]any
}

// NewContext validates and deep-copies attrs into an immutable Context.
// Unsupported value kinds (functions, channels, opaque handles) are
// rejected up front rather than failing lazily during evaluation.
func NewContext(attrs map[string]any) (*Context, error) {
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cv, err := copyValue(v, k)
		if err != nil {
			return nil, err
		}
		copied[k] = cv
	}
	return &Context{attrs: copied, enriched: make(map[string]any)}, nil
}

// MustNewContext is NewContext for inputs known to be well-formed.
func MustNewContext(attrs map[string]any) *Context {
	c, err := NewContext(attrs)
	if err != nil {
		panic(err)
	}
	return c
}

func copyValue(v any, path string) (any, error) {
	switch t := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return t, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ce, err := copyValue(e, fmt.Sprintf("%s.%d", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = ce
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ce, err := copyValue(e, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = ce
		}
		return out, nil
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, nil
	case []float64:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, nil
	default:
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("unsupported value kind %T", v)}
	}
}

// Resolve looks up a dotted path. Numeric segments index into lists
// (zero-based), other segments key into maps. The second return value is
// false when any segment is missing; callers receive Absent as the value.
func (c *Context) Resolve(path string) (any, bool) {
	c.mu.RLock()
	if v, ok := resolveIn(c.enriched, path); ok {
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()
	return resolveIn(c.attrs, path)
}

func resolveIn(root map[string]any, path string) (any, bool) {
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return Absent, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return Absent, false
			}
			cur = node[idx]
		default:
			return Absent, false
		}
	}
	return cur, true
}

// Enrich overlays derived attributes produced by an enrichment operator.
// Overlay keys take precedence during resolution and are included in the
// canonical attribute view (and therefore in the context hash).
func (c *Context) Enrich(fields map[string]any) error {
	prepared := make(map[string]any, len(fields))
	for k, v := range fields {
		cv, err := copyValue(v, k)
		if err != nil {
			return err
		}
		prepared[k] = cv
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range prepared {
		c.enriched[k] = v
	}
	return nil
}

// Attrs returns a deep copy of the effective attribute map, base attributes
// merged with any enriched overlay. The copy is safe to hash or mutate.
func (c *Context) Attrs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.attrs)+len(c.enriched))
	for k, v := range c.attrs {
		out[k], _ = copyValue(v, k)
	}
	for k, v := range c.enriched {
		out[k], _ = copyValue(v, k)
	}
	return out
}

// Keys returns the sorted top-level attribute names.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(c.attrs)+len(c.enriched))
	for k := range c.attrs {
		seen[k] = struct{}{}
	}
	for k := range c.enriched {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new Context with overrides applied over the effective
// attributes. The receiver is not modified.
func (c *Context) Merge(overrides map[string]any) (*Context, error) {
	merged := c.Attrs()
	for k, v := range overrides {
		merged[k] = v
	}
	return NewContext(merged)
}
