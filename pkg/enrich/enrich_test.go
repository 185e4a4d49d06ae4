package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
endpoints:
  credit_bureau:
    url: https://bureau.example.com/score
    method: POST
    timeout_ms: 2500
    retry:
      max_attempts: 3
      backoff: exponential
      initial_ms: 50
    cache:
      ttl_s: 300
      adapter: redis
    circuit_breaker:
      failure_threshold: 4
      reset_timeout_s: 20
    rate_limit:
      per_second: 10
      burst: 5
`))
	require.NoError(t, err)
	ep, ok := cfg.Endpoints["credit_bureau"]
	require.True(t, ok)
	assert.Equal(t, "POST", ep.Method)
	assert.Equal(t, 3, ep.Retry.MaxAttempts)
	assert.Equal(t, "redis", ep.Cache.Adapter)
	assert.Equal(t, 4, ep.CircuitBreaker.FailureThreshold)
	require.NotNil(t, ep.RateLimit)
	assert.Equal(t, 10.0, ep.RateLimit.PerSecond)
}

func TestParseConfigRejectsDefects(t *testing.T) {
	cases := []string{
		"endpoints:\n  a:\n    method: GET\n",                                       // missing url
		"endpoints:\n  a:\n    url: https://x\n    method: PATCH\n",                 // unsupported method
		"endpoints:\n  a:\n    url: https://x\n    retry:\n      backoff: jitter\n", // unknown backoff
	}
	for _, c := range cases {
		_, err := ParseConfig([]byte(c))
		assert.Error(t, err, c)
	}
}

func TestRetryDelaySchedules(t *testing.T) {
	constant := RetryConfig{Backoff: "constant", InitialMS: 100}
	assert.Equal(t, 100*time.Millisecond, constant.delay(1))
	assert.Equal(t, 100*time.Millisecond, constant.delay(3))

	linear := RetryConfig{Backoff: "linear", InitialMS: 100}
	assert.Equal(t, 300*time.Millisecond, linear.delay(3))

	expo := RetryConfig{Backoff: "exponential", InitialMS: 100}
	assert.Equal(t, 100*time.Millisecond, expo.delay(1))
	assert.Equal(t, 400*time.Millisecond, expo.delay(3))
}

func TestMemoryCacheTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]any{"a": 1.0}, time.Minute))
	v, hit, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, map[string]any{"a": 1.0}, v)

	now = now.Add(2 * time.Minute)
	_, hit, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCircuitBreakerStateMachine(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("ep", 3, 10*time.Second).WithClock(func() time.Time { return now })

	assert.Equal(t, StateClosed, cb.State())
	cb.Failure()
	cb.Failure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	// After the reset timeout one probe is allowed.
	now = now.Add(11 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	// A failed probe reopens immediately.
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(11 * time.Second)
	assert.True(t, cb.Allow())
	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestExpandParams(t *testing.T) {
	dctx := contracts.MustNewContext(map[string]any{
		"user": map[string]any{"id": "u-42"},
		"n":    7,
	})

	out, err := expandParams(map[string]any{
		"user_id": "{{ user.id }}",
		"count":   "{{n}}",
		"static":  "plain",
		"num":     3,
	}, dctx)
	require.NoError(t, err)
	assert.Equal(t, "u-42", out["user_id"])
	assert.Equal(t, 7, out["count"])
	assert.Equal(t, "plain", out["static"])
	assert.Equal(t, 3, out["num"])

	_, err = expandParams(map[string]any{"x": "{{ missing.path }}"}, dctx)
	assert.Error(t, err)
}

func serverConfig(url string) *Config {
	return &Config{Endpoints: map[string]EndpointConfig{
		"scores": {
			URL:            url,
			Method:         "GET",
			Cache:          CacheConfig{TTLSeconds: 60},
			CircuitBreaker: BreakerConfig{FailureThreshold: 2, ResetTimeoutS: 30},
		},
	}}
}

func TestFetchMapsResponseIntoContext(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "u-42", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"score":  712.0,
			"detail": map[string]any{"band": "prime"},
		})
	}))
	defer srv.Close()

	p := NewProvider(serverConfig(srv.URL))
	dctx := contracts.MustNewContext(map[string]any{"user": map[string]any{"id": "u-42"}})

	ok := p.Fetch(context.Background(), "scores",
		map[string]any{"user_id": "{{user.id}}"},
		map[string]string{"score": "credit_score", "detail.band": "band"},
		dctx)
	require.True(t, ok)

	v, found := dctx.Resolve("credit_score")
	require.True(t, found)
	assert.Equal(t, 712.0, v)
	v, found = dctx.Resolve("band")
	require.True(t, found)
	assert.Equal(t, "prime", v)

	// The second fetch with identical params is a cache hit.
	ok = p.Fetch(context.Background(), "scores",
		map[string]any{"user_id": "{{user.id}}"},
		map[string]string{"score": "credit_score"},
		dctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), calls.Load())

	// Only the network fetch journals an outcome.
	journal := p.Journal()
	require.Len(t, journal, 1)
	assert.True(t, journal[0].OK)
	assert.Equal(t, "scores", journal[0].Endpoint)
	assert.Equal(t, 712.0, journal[0].Body["score"])
}

func TestFetchFailureOpensBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(serverConfig(srv.URL))
	dctx := contracts.MustNewContext(nil)

	assert.False(t, p.Fetch(context.Background(), "scores", map[string]any{"u": "1"}, nil, dctx))
	assert.False(t, p.Fetch(context.Background(), "scores", map[string]any{"u": "2"}, nil, dctx))

	// Threshold 2 reached: the breaker short-circuits the third call.
	assert.False(t, p.Fetch(context.Background(), "scores", map[string]any{"u": "3"}, nil, dctx))

	journal := p.Journal()
	require.Len(t, journal, 3)
	for _, outcome := range journal {
		assert.False(t, outcome.OK)
	}
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"score": 1.0})
	}))
	defer srv.Close()

	cfg := serverConfig(srv.URL)
	ep := cfg.Endpoints["scores"]
	ep.Retry = RetryConfig{MaxAttempts: 3, Backoff: "constant", InitialMS: 1}
	cfg.Endpoints["scores"] = ep

	p := NewProvider(cfg)
	dctx := contracts.MustNewContext(nil)
	ok := p.Fetch(context.Background(), "scores", nil, map[string]string{"score": "score"}, dctx)
	assert.True(t, ok)
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetchUnknownEndpoint(t *testing.T) {
	p := NewProvider(&Config{Endpoints: map[string]EndpointConfig{}})
	assert.False(t, p.Fetch(context.Background(), "ghost", nil, nil, contracts.MustNewContext(nil)))
}

func TestSeedOutcomeReplaysWithoutNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"score": 640.0})
	}))
	defer srv.Close()

	cfg := serverConfig(srv.URL)
	first := NewProvider(cfg)
	dctx := contracts.MustNewContext(map[string]any{"id": "u-9"})
	params := map[string]any{"user_id": "{{id}}"}
	mapping := map[string]string{"score": "credit_score"}
	require.True(t, first.Fetch(context.Background(), "scores", params, mapping, dctx))
	journal := first.Journal()
	require.Len(t, journal, 1)

	// A fresh provider seeded from the journal resolves from cache.
	second := NewProvider(cfg)
	require.NoError(t, second.SeedOutcome(context.Background(), journal[0]))
	replayCtx := contracts.MustNewContext(map[string]any{"id": "u-9"})
	require.True(t, second.Fetch(context.Background(), "scores", params, mapping, replayCtx))

	v, found := replayCtx.Resolve("credit_score")
	require.True(t, found)
	assert.Equal(t, 640.0, v)
	assert.Equal(t, int64(1), calls.Load())
	// Cache hits do not journal.
	assert.Empty(t, second.Journal())
}

func TestOperatorApplyAndValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tier": "gold"})
	}))
	defer srv.Close()

	op := NewOperator(NewProvider(serverConfig(srv.URL)))
	assert.Equal(t, OperatorName, op.Name())

	dctx := contracts.MustNewContext(nil)
	ok := op.Apply("", map[string]any{
		"endpoint": "scores",
		"mapping":  map[string]any{"tier": "user_tier"},
	}, dctx)
	require.True(t, ok)
	v, found := dctx.Resolve("user_tier")
	require.True(t, found)
	assert.Equal(t, "gold", v)

	assert.False(t, op.Apply("", "not an object", dctx))
	assert.False(t, op.Apply("", map[string]any{"params": map[string]any{}}, dctx))

	assert.NoError(t, op.ValidateValue(map[string]any{"endpoint": "scores"}))
	assert.Error(t, op.ValidateValue("nope"))
	assert.Error(t, op.ValidateValue(map[string]any{}))
	assert.Error(t, op.ValidateValue(map[string]any{"endpoint": "scores", "params": 1}))
	assert.Error(t, op.ValidateValue(map[string]any{
		"endpoint": "scores",
		"mapping":  map[string]any{"a": 1},
	}))
}
