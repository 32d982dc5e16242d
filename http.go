package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPClient provides an HTTP client for the export API with built-in retry
// logic for idempotent calls, throttling, circuit breaking, logging and metrics.
type HTTPClient struct {
	config      *Config
	httpClient  *http.Client
	retryPolicy RetryPolicy
	breaker     *CircuitBreaker
	classifier  *ErrorClassifier
	limiter     *rate.Limiter
	metrics     *MetricsCollector
	log         *logrus.Logger
	baseURL     string
	baseHeaders map[string]string
	mu          sync.RWMutex
}

// NewHTTPClient creates a new HTTP client with the specified configuration.
//
// Arguments:
//   - config: A validated client configuration.
//
// Returns:
//   - *HTTPClient: A new HTTP client instance ready for API calls.
//   - error: Configuration error if the config is invalid.
//
// Example:
//
//	config := DefaultConfig()
//	config.Endpoint = "https://relativity.mycompany.com"
//	config.Credentials = BasicCredentials{Username: user, Password: pw}
//	config.WorkspaceID = 1234567
//	httpClient, err := NewHTTPClient(config)
//	if err != nil {
//	    log.Fatalf("Failed to create client: %v", err)
//	}
//	defer httpClient.Close()
func NewHTTPClient(config *Config) (*HTTPClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var metrics *MetricsCollector
	if config.EnableMetrics {
		metrics = NewMetricsCollector()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}

	// The platform rejects REST calls without the CSRF header.
	baseHeaders := map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"User-Agent":    config.UserAgent,
		"X-CSRF-Header": "-",
	}
	for key, value := range config.CustomHeaders {
		baseHeaders[key] = value
	}

	return &HTTPClient{
		config:      config,
		httpClient:  config.CreateHTTPClient(),
		retryPolicy: NewDefaultRetryPolicy(config.GetRetryConfig()),
		breaker:     NewCircuitBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerTimeout),
		classifier:  NewErrorClassifier(),
		limiter:     limiter,
		metrics:     metrics,
		log:         config.Logger,
		baseURL:     strings.TrimRight(config.Endpoint, "/"),
		baseHeaders: baseHeaders,
	}, nil
}

// Request represents an HTTP request to be made to the export API.
type Request struct {
	// Operation is a short name used in logs and metrics.
	Operation string
	Method    string
	Path      string
	Body      interface{}
	Headers   map[string]string

	// Idempotent marks requests that are safe to retry. Requests that move
	// a server-side cursor must leave this false.
	Idempotent bool
}

// PostJSON performs a request and unmarshals the JSON response into result.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - req: The request to send.
//   - result: Pointer to the value to unmarshal the response into. May be nil.
//
// Returns:
//   - *ResultMetadata: Timing and attempt information.
//   - error: Any error that occurred during the request or unmarshaling.
func (c *HTTPClient) PostJSON(ctx context.Context, req *Request, result interface{}) (*ResultMetadata, error) {
	resp, meta, err := c.executeRequest(ctx, req)
	if err != nil {
		return meta, err
	}
	defer resp.Body.Close()

	return meta, c.unmarshalResponse(resp, result)
}

// PostStream performs a request and returns the response body unread.
// The caller must close the returned reader.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - req: The request to send.
//
// Returns:
//   - io.ReadCloser: The response body.
//   - *ResultMetadata: Timing and attempt information.
//   - error: Any error that occurred before the body became available.
func (c *HTTPClient) PostStream(ctx context.Context, req *Request) (io.ReadCloser, *ResultMetadata, error) {
	resp, meta, err := c.executeRequest(ctx, req)
	if err != nil {
		return nil, meta, err
	}
	return resp.Body, meta, nil
}

// executeRequest executes an HTTP request with retry logic and error handling.
func (c *HTTPClient) executeRequest(ctx context.Context, req *Request) (*http.Response, *ResultMetadata, error) {
	meta := &ResultMetadata{Operation: req.Operation}
	entry := c.log.WithFields(logrus.Fields{
		"operation": req.Operation,
		"path":      req.Path,
	})

	if err := c.breaker.CanExecute(); err != nil {
		if c.metrics != nil {
			c.metrics.RecordRequest(req.Operation, 0, 0, err)
		}
		entry.WithError(err).Debug("request rejected by circuit breaker")
		return nil, meta, err
	}

	policy := c.retryPolicy
	if !req.Idempotent {
		policy = noRetryPolicy{}
	}

	startTime := time.Now()
	resp, attempts, err := ExecuteWithRetry(ctx, func(ctx context.Context, attempt int) (*http.Response, error) {
		return c.doRequest(ctx, req, attempt)
	}, policy, func(attempt int, wait time.Duration, err error) {
		entry.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": wait,
		}).Warn("retrying request")
	})

	meta.Attempt = attempts
	meta.Duration = time.Since(startTime)

	if c.metrics != nil {
		c.metrics.RecordRequest(req.Operation, meta.Duration, attempts, err)
	}

	if err != nil {
		c.breaker.RecordFailure()
		entry.WithError(err).WithField("duration", meta.Duration).Debug("request failed")
		return nil, meta, err
	}

	c.breaker.RecordSuccess()
	entry.WithFields(logrus.Fields{
		"duration": meta.Duration,
		"attempts": attempts,
	}).Debug("request completed")

	return resp, meta, nil
}

// doRequest performs a single HTTP request without retry logic.
func (c *HTTPClient) doRequest(ctx context.Context, req *Request, attempt int) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	url := c.baseURL + req.Path

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, c.classifier.WrapSerializationError("marshal", fmt.Sprintf("%T", req.Body), err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.mu.RLock()
	for key, value := range c.baseHeaders {
		httpReq.Header.Set(key, value)
	}
	c.mu.RUnlock()

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	httpReq.Header.Set("X-Retry-Attempt", strconv.Itoa(attempt))
	c.config.Credentials.Apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classifier.WrapNetworkError(req.Method, url, err)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, c.classifier.ClassifyHTTPError(resp, body)
	}

	return resp, nil
}

// unmarshalResponse unmarshals an HTTP response body into the specified result.
func (c *HTTPClient) unmarshalResponse(resp *http.Response, result interface{}) error {
	if result == nil {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.classifier.WrapNetworkError("read_response", "", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	// Row values are untyped; numbers stay json.Number so large IDs and
	// amounts keep every digit.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return c.classifier.WrapSerializationError("unmarshal", fmt.Sprintf("%T", result), err)
	}

	return nil
}

// SetHeader sets a header that will be included in all requests.
// This is safe to call concurrently.
func (c *HTTPClient) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseHeaders[key] = value
}

// GetMetrics returns the current metrics if metrics collection is enabled.
//
// Returns:
//   - *Metrics: Current metrics data, or nil if metrics are disabled.
func (c *HTTPClient) GetMetrics() *Metrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.GetMetrics()
}

// Close closes the HTTP client and releases idle connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
