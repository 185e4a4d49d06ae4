package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDottedPaths(t *testing.T) {
	ctx := MustNewContext(map[string]any{
		"user": map[string]any{
			"name": "ada",
			"tags": []any{"admin", "beta"},
		},
		"amount": 42.5,
	})

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"amount", 42.5, true},
		{"user.name", "ada", true},
		{"user.tags.0", "admin", true},
		{"user.tags.1", "beta", true},
		{"user.tags.2", Absent, false},
		{"user.missing", Absent, false},
		{"user.name.deeper", Absent, false},
	}
	for _, tt := range tests {
		got, ok := ctx.Resolve(tt.path)
		assert.Equal(t, tt.found, ok, "path %s", tt.path)
		assert.Equal(t, tt.want, got, "path %s", tt.path)
	}
}

func TestNewContextRejectsUnsupportedKinds(t *testing.T) {
	_, err := NewContext(map[string]any{
		"payload": map[string]any{"fn": func() {}},
	})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload.fn", verr.Path)
}

func TestContextIsolatedFromCallerMutation(t *testing.T) {
	attrs := map[string]any{"nested": map[string]any{"v": 1}}
	ctx := MustNewContext(attrs)
	attrs["nested"].(map[string]any)["v"] = 99

	got, _ := ctx.Resolve("nested.v")
	assert.Equal(t, 1, got)
}

func TestEnrichOverlaysAndWinsResolution(t *testing.T) {
	ctx := MustNewContext(map[string]any{"score": 10})
	require.NoError(t, ctx.Enrich(map[string]any{"score": 20, "derived": true}))

	got, ok := ctx.Resolve("score")
	assert.True(t, ok)
	assert.Equal(t, 20, got)

	attrs := ctx.Attrs()
	assert.Equal(t, 20, attrs["score"])
	assert.Equal(t, true, attrs["derived"])
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	base := MustNewContext(map[string]any{"a": 1, "b": 2})
	merged, err := base.Merge(map[string]any{"b": 3, "c": 4})
	require.NoError(t, err)

	got, _ := base.Resolve("b")
	assert.Equal(t, 2, got)
	got, _ = merged.Resolve("b")
	assert.Equal(t, 3, got)
	got, _ = merged.Resolve("c")
	assert.Equal(t, 4, got)
}

func TestKeysMergedAndSorted(t *testing.T) {
	ctx := MustNewContext(map[string]any{"z": 1, "a": 2})
	require.NoError(t, ctx.Enrich(map[string]any{"m": 3}))
	assert.Equal(t, []string{"a", "m", "z"}, ctx.Keys())
}
