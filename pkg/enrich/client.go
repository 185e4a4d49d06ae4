package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Outcome is the recorded effect of one fetch invocation. Body is the
// decoded response as cached, so seeding a fresh Provider from an
// Outcome reproduces the fetch without network access. The agent lifts
// the journal into the audit record for replay.
type Outcome = contracts.EnrichmentOutcome

// Provider executes enrichment fetches against the configured endpoint
// table. Safe for concurrent use; identical in-flight fetches collapse
// through singleflight.
type Provider struct {
	cfg    *Config
	client *http.Client
	logger *slog.Logger

	flight singleflight.Group

	mu       sync.Mutex
	caches   map[string]Cache
	breakers map[string]*CircuitBreaker
	limiters map[string]*rate.Limiter
	journal  []Outcome

	redisCache Cache
}

// NewProvider builds a Provider over an endpoint table.
func NewProvider(cfg *Config, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:      cfg,
		client:   &http.Client{},
		logger:   slog.Default(),
		caches:   make(map[string]Cache),
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) { p.client = client }
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// WithRedisCache supplies the cache used by endpoints declaring
// adapter: redis.
func WithRedisCache(cache Cache) ProviderOption {
	return func(p *Provider) { p.redisCache = cache }
}

func (p *Provider) cacheFor(name string, ep EndpointConfig) Cache {
	if ep.Cache.Adapter == "redis" && p.redisCache != nil {
		return p.redisCache
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cache, ok := p.caches[name]
	if !ok {
		cache = NewMemoryCache()
		p.caches[name] = cache
	}
	return cache
}

func (p *Provider) breakerFor(name string, ep EndpointConfig) *CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name,
			ep.CircuitBreaker.FailureThreshold,
			time.Duration(ep.CircuitBreaker.ResetTimeoutS)*time.Second)
		p.breakers[name] = cb
	}
	return cb
}

func (p *Provider) limiterFor(name string, ep EndpointConfig) *rate.Limiter {
	if ep.RateLimit == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[name]
	if !ok {
		burst := ep.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(ep.RateLimit.PerSecond), burst)
		p.limiters[name] = lim
	}
	return lim
}

// Fetch resolves params templates against dctx, consults cache and
// breaker, performs the HTTP call if needed, and enriches dctx with the
// mapped response fields. The boolean result is the operator outcome:
// true only when every mapped field was populated.
func (p *Provider) Fetch(ctx context.Context, endpoint string, params map[string]any, mapping map[string]string, dctx *contracts.Context) bool {
	ep, ok := p.cfg.Endpoints[endpoint]
	if !ok {
		p.logger.Warn("enrichment endpoint not configured", slog.String("endpoint", endpoint))
		return false
	}

	expanded, err := expandParams(params, dctx)
	if err != nil {
		p.logger.Warn("enrichment template expansion failed",
			slog.String("endpoint", endpoint), slog.String("error", err.Error()))
		return false
	}

	key, err := cacheKey(endpoint, expanded)
	if err != nil {
		return false
	}
	cache := p.cacheFor(endpoint, ep)

	if cached, hit, err := cache.Get(ctx, key); err == nil && hit {
		return p.apply(endpoint, key, cached, mapping, dctx, true)
	}

	body, shared, err := p.fetchOnce(ctx, endpoint, ep, key, expanded)
	if err != nil {
		p.logger.Warn("enrichment fetch failed",
			slog.String("endpoint", endpoint),
			slog.Bool("shared", shared),
			slog.String("error", err.Error()))
		p.record(Outcome{Endpoint: endpoint, CacheKey: key, OK: false})
		return false
	}
	if err := cache.Set(ctx, key, body, ep.Cache.ttl()); err != nil {
		p.logger.Warn("enrichment cache write failed",
			slog.String("endpoint", endpoint), slog.String("error", err.Error()))
	}
	return p.apply(endpoint, key, body, mapping, dctx, false)
}

// fetchOnce runs the guarded network path; concurrent identical keys
// share one flight.
func (p *Provider) fetchOnce(ctx context.Context, endpoint string, ep EndpointConfig, key string, params map[string]any) (map[string]any, bool, error) {
	v, err, shared := p.flight.Do(key, func() (any, error) {
		breaker := p.breakerFor(endpoint, ep)
		if !breaker.Allow() {
			return nil, fmt.Errorf("circuit breaker open for %s", endpoint)
		}
		if lim := p.limiterFor(endpoint, ep); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := p.do(ctx, ep, params)
		if err != nil {
			breaker.Failure()
			return nil, err
		}
		breaker.Success()
		return body, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(map[string]any), shared, nil
}

func (p *Provider) do(ctx context.Context, ep EndpointConfig, params map[string]any) (map[string]any, error) {
	attempts := ep.Retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ep.Retry.delay(attempt - 1)):
			}
		}
		body, err := p.doOnce(ctx, ep, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *Provider) doOnce(ctx context.Context, ep EndpointConfig, params map[string]any) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, ep.timeout())
	defer cancel()

	var req *http.Request
	var err error
	if ep.method() == http.MethodGet {
		req, err = http.NewRequestWithContext(callCtx, http.MethodGet, ep.URL, nil)
		if err == nil && len(params) > 0 {
			q := req.URL.Query()
			for k, v := range params {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			req.URL.RawQuery = q.Encode()
		}
	} else {
		payload, merr := json.Marshal(params)
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(callCtx, ep.method(), ep.URL, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, err
	}
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	applyAuth(req, ep.Auth)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body, nil
}

func applyAuth(req *http.Request, auth *AuthConfig) {
	if auth == nil {
		return
	}
	switch {
	case auth.APIKey != nil:
		header := auth.APIKey.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, auth.APIKey.Value)
	case auth.Basic != nil:
		req.SetBasicAuth(auth.Basic.Username, auth.Basic.Password)
	case auth.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+auth.Bearer)
	}
}

// apply maps response keys into the context's enrichment overlay and
// records the outcome.
func (p *Provider) apply(endpoint, key string, body map[string]any, mapping map[string]string, dctx *contracts.Context, fromCache bool) bool {
	fields := make(map[string]any, len(mapping))
	complete := true
	for responseKey, contextKey := range mapping {
		v, ok := resolveResponse(body, responseKey)
		if !ok {
			complete = false
			continue
		}
		fields[contextKey] = v
	}
	if len(fields) > 0 && dctx != nil {
		if err := dctx.Enrich(fields); err != nil {
			p.logger.Warn("enrichment context write failed",
				slog.String("endpoint", endpoint), slog.String("error", err.Error()))
			complete = false
		}
	}
	if !fromCache {
		p.record(Outcome{Endpoint: endpoint, CacheKey: key, Body: body, OK: complete})
	}
	return complete
}

// resolveResponse walks dotted paths inside the decoded body.
func resolveResponse(body map[string]any, path string) (any, bool) {
	current := any(body)
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

var templatePattern = regexp.MustCompile(`^\{\{\s*([^}]+?)\s*\}\}$`)

// expandParams substitutes {{dotted.path}} templates from the context.
// A template that resolves to an absent attribute is an error so the
// fetch degrades to false instead of calling with a hole.
func expandParams(params map[string]any, dctx *contracts.Context) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		m := templatePattern.FindStringSubmatch(s)
		if m == nil {
			out[k] = v
			continue
		}
		if dctx == nil {
			return nil, fmt.Errorf("template %q without context", s)
		}
		resolved, ok := dctx.Resolve(m[1])
		if !ok || contracts.IsAbsent(resolved) {
			return nil, fmt.Errorf("template path %q is absent", m[1])
		}
		out[k] = resolved
	}
	return out, nil
}

// cacheKey is the canonical hash of the endpoint identity plus the
// expanded parameters.
func cacheKey(endpoint string, params map[string]any) (string, error) {
	return canonicalize.CanonicalHash(map[string]any{
		"endpoint": endpoint,
		"params":   params,
	})
}

func (p *Provider) record(outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = append(p.journal, outcome)
}

// Journal returns the recorded outcomes since the last Reset, oldest
// first. The agent attaches these to audit metadata.
func (p *Provider) Journal() []Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Outcome, len(p.journal))
	copy(out, p.journal)
	return out
}

// ResetJournal clears the outcome journal.
func (p *Provider) ResetJournal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = nil
}

// SeedOutcome primes the endpoint cache from a recorded outcome so a
// replay run resolves the fetch without network access.
func (p *Provider) SeedOutcome(ctx context.Context, outcome Outcome) error {
	ep, ok := p.cfg.Endpoints[outcome.Endpoint]
	if !ok {
		return fmt.Errorf("enrich: endpoint %q not configured", outcome.Endpoint)
	}
	cache := p.cacheFor(outcome.Endpoint, ep)
	return cache.Set(ctx, outcome.CacheKey, outcome.Body, ep.Cache.ttl())
}
