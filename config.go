// Package client provides an HTTP client for a document platform's export API.
// It drives a paginated export run to completion and transparently resolves
// long-text values that the server omitted from a block because they exceeded
// the configured inline size.
//
// The client is designed for scripted and batch use with features like:
//   - Explicit, immutable configuration validated up front
//   - A single-use ExportSession with a strict state machine
//   - Typed errors for initialization, fetch and streaming failures
//   - Retry with exponential backoff for idempotent calls only
//   - Request throttling, circuit breaking and Prometheus metrics
//   - Context-based cancellation checked before every remote call
//
// Example:
//
//	config := DefaultConfig()
//	config.Endpoint = "https://relativity.mycompany.com"
//	config.Credentials = BasicCredentials{Username: "me@mycompany.com", Password: pw}
//	config.WorkspaceID = 1234567
//
//	c, err := New(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	session, err := c.NewSession(SessionOptions{
//	    Query: Query{
//	        ObjectType: ObjectTypeRef{ArtifactTypeID: ArtifactTypeDocument},
//	        Fields:     []FieldRef{{Name: "Control Number"}, {Name: "Extracted Text"}},
//	        MaxCharactersForLongTextValues: 1024,
//	    },
//	    BlockSize: 10,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := session.Run(ctx, transcript.NewTextWriter(os.Stdout))
package client

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Config contains all configuration options for the export API client.
// A Config is copied when a client is created, so later changes to the
// caller's value have no effect on a running client.
type Config struct {
	// Endpoint is the base URL of the platform instance, for example
	// "https://relativity.mycompany.com". This is required.
	Endpoint string

	// Credentials authenticate every request. This is required.
	Credentials Credentials

	// WorkspaceID selects the workspace the export runs against.
	// Must be positive.
	WorkspaceID int

	// Timeout is the HTTP request timeout duration.
	// Defaults to 30 seconds if not specified.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for idempotent requests.
	// Initialize and next-block calls are never retried.
	// Defaults to 3 if not specified.
	MaxRetries int

	// DisableRetries turns off retries for every request.
	DisableRetries bool

	// BaseBackoff is the initial backoff duration for retries.
	// Defaults to 1 second if not specified.
	BaseBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	// Defaults to 30 seconds if not specified.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Defaults to 2.0 if not specified.
	BackoffMultiplier float64

	// RateLimit is the maximum sustained number of requests per second.
	// Set to 0 to disable throttling (default).
	RateLimit float64

	// RateBurst is the burst size allowed by the rate limiter.
	// Defaults to 1 when RateLimit is set.
	RateBurst int

	// MaxConnsPerHost caps the number of connections to the platform.
	// Defaults to 128 if not specified.
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum time an idle connection can remain open.
	// Defaults to 90 seconds if not specified.
	IdleConnTimeout time.Duration

	// UserAgent is the User-Agent header to send with requests.
	// Defaults to "exportclient-go/1.0" if not specified.
	UserAgent string

	// CustomHeaders are additional headers to send with all requests.
	CustomHeaders map[string]string

	// CircuitBreakerThreshold is the error rate threshold for circuit breaking.
	// When error rate exceeds this (0.0-1.0), the circuit breaker opens.
	// Defaults to 0.5 (50% error rate) if not specified.
	CircuitBreakerThreshold float64

	// CircuitBreakerTimeout is how long to keep the circuit breaker open.
	// Defaults to 60 seconds if not specified.
	CircuitBreakerTimeout time.Duration

	// EnableMetrics enables collection of request and export metrics.
	EnableMetrics bool

	// Logger receives diagnostic output. Defaults to a logger that discards
	// all output.
	Logger *logrus.Logger

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a configuration with sensible defaults.
// Applications must set Endpoint, Credentials and WorkspaceID.
//
// Returns:
//   - *Config: A configuration with default values.
//
// Example:
//
//	config := DefaultConfig()
//	config.Endpoint = "https://relativity.mycompany.com"
//	config.Credentials = BearerCredentials{Token: token}
//	config.WorkspaceID = 1234567
func DefaultConfig() *Config {
	return &Config{
		Timeout:                 30 * time.Second,
		MaxRetries:              3,
		BaseBackoff:             1 * time.Second,
		MaxBackoff:              30 * time.Second,
		BackoffMultiplier:       2.0,
		MaxConnsPerHost:         128,
		IdleConnTimeout:         90 * time.Second,
		UserAgent:               "exportclient-go/1.0",
		CustomHeaders:           make(map[string]string),
		CircuitBreakerThreshold: 0.5,
		CircuitBreakerTimeout:   60 * time.Second,
	}
}

// Validate ensures the configuration has valid values and sets defaults where needed.
//
// Returns:
//   - error: A *ConfigError if required fields are missing or invalid, nil if valid.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return &ConfigError{Field: "Endpoint", Message: "endpoint is required"}
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "Endpoint", Message: "endpoint must be an absolute URL"}
	}

	if c.Credentials == nil {
		return &ConfigError{Field: "Credentials", Message: "credentials are required"}
	}

	if c.WorkspaceID <= 0 {
		return &ConfigError{Field: "WorkspaceID", Message: "workspace id must be positive"}
	}

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxRetries < 0 {
		return &ConfigError{Field: "MaxRetries", Message: "max retries cannot be negative"}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}

	if c.BaseBackoff == 0 {
		c.BaseBackoff = 1 * time.Second
	}

	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}

	if c.BackoffMultiplier <= 1.0 {
		c.BackoffMultiplier = 2.0
	}

	if c.RateLimit < 0 {
		return &ConfigError{Field: "RateLimit", Message: "rate limit cannot be negative"}
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}

	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 128
	}

	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}

	if c.UserAgent == "" {
		c.UserAgent = "exportclient-go/1.0"
	}

	if c.CustomHeaders == nil {
		c.CustomHeaders = make(map[string]string)
	}

	if c.CircuitBreakerThreshold <= 0 || c.CircuitBreakerThreshold > 1.0 {
		c.CircuitBreakerThreshold = 0.5
	}

	if c.CircuitBreakerTimeout == 0 {
		c.CircuitBreakerTimeout = 60 * time.Second
	}

	if c.Logger == nil {
		c.Logger = newDiscardLogger()
	}

	return nil
}

// clone returns a copy of the configuration that shares no mutable state
// with the original.
func (c *Config) clone() *Config {
	cp := *c
	cp.CustomHeaders = make(map[string]string, len(c.CustomHeaders))
	for k, v := range c.CustomHeaders {
		cp.CustomHeaders[k] = v
	}
	return &cp
}

// CreateHTTPClient creates an HTTP client based on the configuration.
// The platform requires TLS 1.2 or newer.
//
// Returns:
//   - *http.Client: Configured HTTP client.
func (c *Config) CreateHTTPClient() *http.Client {
	if c.Transport != nil {
		return &http.Client{Transport: c.Transport, Timeout: c.Timeout}
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.MaxConnsPerHost,
		MaxIdleConnsPerHost: c.MaxConnsPerHost,
		MaxConnsPerHost:     c.MaxConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error returns the error message for ConfigError.
func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// RetryConfig contains configuration for retry behavior.
type RetryConfig struct {
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// GetRetryConfig extracts retry configuration from the main config.
func (c *Config) GetRetryConfig() RetryConfig {
	maxRetries := c.MaxRetries
	if c.DisableRetries {
		maxRetries = 0
	}
	return RetryConfig{
		MaxRetries:        maxRetries,
		BaseBackoff:       c.BaseBackoff,
		MaxBackoff:        c.MaxBackoff,
		BackoffMultiplier: c.BackoffMultiplier,
	}
}

func newDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}
