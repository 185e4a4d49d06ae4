package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Diff is a structural comparison of two versions: rule ids added,
// removed, and changed, with deep key paths for each change.
type Diff struct {
	A       string              `json:"a"`
	B       string              `json:"b"`
	Added   []string            `json:"added"`
	Removed []string            `json:"removed"`
	Changed map[string][]string `json:"changed"`
}

// Compare diffs version a against version b by rule id.
func (m *Manager) Compare(ctx context.Context, aID, bID string) (*Diff, error) {
	ra, err := m.store.Load(ctx, aID)
	if err != nil {
		return nil, err
	}
	rb, err := m.store.Load(ctx, bID)
	if err != nil {
		return nil, err
	}

	rulesA, err := rulesByID(ra.Content)
	if err != nil {
		return nil, fmt.Errorf("versioning: decode %s: %w", aID, err)
	}
	rulesB, err := rulesByID(rb.Content)
	if err != nil {
		return nil, fmt.Errorf("versioning: decode %s: %w", bID, err)
	}

	diff := &Diff{A: aID, B: bID, Changed: make(map[string][]string)}
	for id, ruleA := range rulesA {
		ruleB, ok := rulesB[id]
		if !ok {
			diff.Removed = append(diff.Removed, id)
			continue
		}
		if paths := deepDiff(ruleA, ruleB, ""); len(paths) > 0 {
			sort.Strings(paths)
			diff.Changed[id] = paths
		}
	}
	for id := range rulesB {
		if _, ok := rulesA[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff, nil
}

func rulesByID(content []byte) (map[string]any, error) {
	var doc struct {
		Rules []map[string]any `json:"rules"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(doc.Rules))
	for _, rule := range doc.Rules {
		id, _ := rule["id"].(string)
		out[id] = map[string]any(rule)
	}
	return out, nil
}

// deepDiff reports the key paths where two JSON values diverge.
func deepDiff(a, b any, path string) []string {
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok {
			return []string{path}
		}
		var paths []string
		for k, va := range ta {
			vb, ok := tb[k]
			child := joinPath(path, k)
			if !ok {
				paths = append(paths, child)
				continue
			}
			paths = append(paths, deepDiff(va, vb, child)...)
		}
		for k := range tb {
			if _, ok := ta[k]; !ok {
				paths = append(paths, joinPath(path, k))
			}
		}
		return paths
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return []string{path}
		}
		var paths []string
		for i := range ta {
			paths = append(paths, deepDiff(ta[i], tb[i], fmt.Sprintf("%s[%d]", path, i))...)
		}
		return paths
	default:
		if !jsonEqual(a, b) {
			return []string{path}
		}
		return nil
	}
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
