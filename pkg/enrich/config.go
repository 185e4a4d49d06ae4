// Package enrich implements the fetch_from_api operator: context
// enrichment from external HTTP endpoints with caching, retries, rate
// limiting, and circuit breaking. Fetch outcomes are recorded so replay
// never repeats a network call.
package enrich

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide endpoint table. Keys are the endpoint
// names rules reference in their fetch_from_api values.
type Config struct {
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig describes one named endpoint.
type EndpointConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`

	Auth           *AuthConfig    `yaml:"auth"`
	TimeoutMS      int            `yaml:"timeout_ms"`
	Retry          RetryConfig    `yaml:"retry"`
	Cache          CacheConfig    `yaml:"cache"`
	CircuitBreaker BreakerConfig  `yaml:"circuit_breaker"`
	RateLimit      *RateLimitConf `yaml:"rate_limit"`
}

// AuthConfig holds at most one credential form.
type AuthConfig struct {
	APIKey *struct {
		Header string `yaml:"header"`
		Value  string `yaml:"value"`
	} `yaml:"api_key"`
	Basic *struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"basic"`
	Bearer string `yaml:"bearer"`
}

// RetryConfig controls the retry loop. Backoff is one of constant,
// linear, exponential.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"`
	InitialMS   int    `yaml:"initial_ms"`
}

// CacheConfig selects the cache adapter and TTL for an endpoint.
type CacheConfig struct {
	TTLSeconds int    `yaml:"ttl_s"`
	Adapter    string `yaml:"adapter"`
}

// BreakerConfig parameterizes the per-endpoint circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	ResetTimeoutS    int `yaml:"reset_timeout_s"`
}

// RateLimitConf bounds request rate per endpoint.
type RateLimitConf struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LoadConfig reads and validates an endpoint table from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("enrich: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("enrich: parse config: %w", err)
	}
	for name, ep := range cfg.Endpoints {
		if err := validateEndpoint(ep); err != nil {
			return nil, fmt.Errorf("enrich: endpoint %q: %w", name, err)
		}
	}
	return &cfg, nil
}

var validMethods = map[string]bool{"GET": true, "POST": true, "PUT": true, "DELETE": true}
var validBackoffs = map[string]bool{"": true, "constant": true, "linear": true, "exponential": true}

func validateEndpoint(ep EndpointConfig) error {
	if ep.URL == "" {
		return fmt.Errorf("missing url")
	}
	if ep.Method != "" && !validMethods[ep.Method] {
		return fmt.Errorf("unsupported method %q", ep.Method)
	}
	if !validBackoffs[ep.Retry.Backoff] {
		return fmt.Errorf("unsupported backoff %q", ep.Retry.Backoff)
	}
	return nil
}

// method defaults to GET.
func (ep EndpointConfig) method() string {
	if ep.Method == "" {
		return "GET"
	}
	return ep.Method
}

// timeout defaults to 5s.
func (ep EndpointConfig) timeout() time.Duration {
	if ep.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(ep.TimeoutMS) * time.Millisecond
}

// attempts defaults to 1 (no retries).
func (rc RetryConfig) attempts() int {
	if rc.MaxAttempts <= 0 {
		return 1
	}
	return rc.MaxAttempts
}

// delay computes the wait before the given retry attempt (1-based).
func (rc RetryConfig) delay(attempt int) time.Duration {
	initial := time.Duration(rc.InitialMS) * time.Millisecond
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	switch rc.Backoff {
	case "linear":
		return initial * time.Duration(attempt)
	case "exponential":
		return initial << (attempt - 1)
	default:
		return initial
	}
}

// ttl defaults to 60s.
func (cc CacheConfig) ttl() time.Duration {
	if cc.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(cc.TTLSeconds) * time.Second
}
