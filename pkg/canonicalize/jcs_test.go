package canonicalize

import (
	"testing"
)

func TestJCSKeyOrdering(t *testing.T) {
	got, err := JCS(map[string]any{"b": 2, "a": 1, "c": []any{true, nil}})
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	want := `{"a":1,"b":2,"c":[true,null]}`
	if string(got) != want {
		t.Errorf("canonical form = %s, want %s", got, want)
	}
}

func TestJCSFixedPoint(t *testing.T) {
	raw := []byte(`{"z": 1, "a": {"y": 2, "x": 3},  "list": [1, 2]}`)
	once, err := JCSBytes(raw)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := JCSBytes(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if string(once) != string(twice) {
		t.Errorf("canonicalization is not a fixed point: %s vs %s", once, twice)
	}
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	got, err := JCSString(map[string]any{"url": "https://example.com/a?b=1&c=<2>"})
	if err != nil {
		t.Fatalf("JCSString: %v", err)
	}
	want := `{"url":"https://example.com/a?b=1&c=<2>"}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalHashStableAcrossKeyOrder(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"a": 1, "b": "x"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(map[string]any{"b": "x", "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash differs across insertion order: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected hex sha-256, got %q", h1)
	}
}

func TestCombineHashesOrderSensitive(t *testing.T) {
	ab := CombineHashes("aaa", "bbb")
	ba := CombineHashes("bbb", "aaa")
	if ab == ba {
		t.Error("combined hash must depend on order")
	}
	if CombineHashes("aaa", "bbb") != ab {
		t.Error("combined hash must be stable")
	}
}
