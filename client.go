package client

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Client is the main entry point for the export API client.
// It owns the HTTP transport and hands out single-use export sessions.
type Client struct {
	config     *Config
	httpClient *HTTPClient

	// Objects is the remote export API used by sessions from this client.
	Objects ExportAPI
}

// New creates a new export API client with the specified configuration.
// The configuration is copied; later changes to config have no effect.
//
// Arguments:
//   - config: Configuration for the client behavior and performance characteristics.
//
// Returns:
//   - *Client: A new client instance ready for API operations.
//   - error: Configuration or initialization error.
func New(config *Config) (*Client, error) {
	if config == nil {
		return nil, &ConfigError{Field: "Config", Message: "config is required"}
	}
	cfg := config.clone()

	httpClient, err := NewHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		Objects:    NewObjectManager(httpClient),
	}, nil
}

// NewSession creates an export session in the client's workspace.
// The session shares the client's logger and metrics unless opts sets its own.
//
// Arguments:
//   - opts: The query and paging options. BlockSize is required.
//
// Returns:
//   - *ExportSession: A new single-use session.
//   - error: A *ValidationError if the options are invalid.
//
// Example:
//
//	session, err := c.NewSession(SessionOptions{
//	    Query:     Query{ObjectType: ObjectTypeRef{ArtifactTypeID: ArtifactTypeDocument}, Fields: fields},
//	    BlockSize: 1000,
//	})
func (c *Client) NewSession(opts SessionOptions) (*ExportSession, error) {
	if opts.Logger == nil {
		opts.Logger = c.config.Logger
	}
	if opts.Metrics == nil {
		opts.Metrics = c.httpClient.metrics
	}
	return NewExportSession(c.Objects, c.config.WorkspaceID, opts)
}

// GetMetrics returns current client metrics if metrics collection is enabled.
//
// Returns:
//   - *Metrics: Current metrics data, or nil if metrics are disabled.
//
// Example:
//
//	metrics := client.GetMetrics()
//	if metrics != nil {
//	    fmt.Printf("Success rate: %.2f%%\n", metrics.SuccessRate*100)
//	}
func (c *Client) GetMetrics() *Metrics {
	return c.httpClient.GetMetrics()
}

// MetricsRegistry returns the Prometheus registry of the client's metrics,
// or nil if metrics are disabled.
func (c *Client) MetricsRegistry() *prometheus.Registry {
	if c.httpClient.metrics == nil {
		return nil
	}
	return c.httpClient.metrics.Registry()
}

// Close gracefully closes the client and releases resources.
// This should be called when the client is no longer needed.
//
// Example:
//
//	client, err := New(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func (c *Client) Close() error {
	return c.httpClient.Close()
}
