package client

import (
	"crypto/tls"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateDefaults(t *testing.T) {
	config := &Config{
		Endpoint:    "https://relativity.example.com",
		Credentials: BearerCredentials{Token: "t"},
		WorkspaceID: 1,
	}
	require.NoError(t, config.Validate())

	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.BaseBackoff)
	assert.Equal(t, 30*time.Second, config.MaxBackoff)
	assert.Equal(t, 2.0, config.BackoffMultiplier)
	assert.Equal(t, 128, config.MaxConnsPerHost)
	assert.Equal(t, "exportclient-go/1.0", config.UserAgent)
	assert.Equal(t, 0.5, config.CircuitBreakerThreshold)
	assert.NotNil(t, config.CustomHeaders)
	require.NotNil(t, config.Logger)
	assert.Equal(t, io.Discard, config.Logger.Out)
	assert.Zero(t, config.RateBurst, "burst stays unset without a rate limit")
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "Endpoint"},
		{"relative endpoint", func(c *Config) { c.Endpoint = "relativity.example.com" }, "Endpoint"},
		{"missing credentials", func(c *Config) { c.Credentials = nil }, "Credentials"},
		{"zero workspace", func(c *Config) { c.WorkspaceID = 0 }, "WorkspaceID"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "MaxRetries"},
		{"negative rate limit", func(c *Config) { c.RateLimit = -2 }, "RateLimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig("https://relativity.example.com")
			tt.mutate(config)

			err := config.Validate()
			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestConfig_RateBurstDefault(t *testing.T) {
	config := testConfig("https://relativity.example.com")
	config.RateLimit = 5
	require.NoError(t, config.Validate())
	assert.Equal(t, 1, config.RateBurst)
}

func TestConfig_GetRetryConfig(t *testing.T) {
	config := testConfig("https://relativity.example.com")
	require.NoError(t, config.Validate())

	rc := config.GetRetryConfig()
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, time.Millisecond, rc.BaseBackoff)

	config.DisableRetries = true
	assert.Zero(t, config.GetRetryConfig().MaxRetries)
}

func TestConfig_CreateHTTPClient(t *testing.T) {
	config := testConfig("https://relativity.example.com")
	require.NoError(t, config.Validate())

	httpClient := config.CreateHTTPClient()
	transport, ok := httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
	assert.Equal(t, config.Timeout, httpClient.Timeout)

	custom := http.DefaultTransport
	config.Transport = custom
	assert.Equal(t, custom, config.CreateHTTPClient().Transport)
}

func TestConfig_Clone(t *testing.T) {
	config := testConfig("https://relativity.example.com")
	config.CustomHeaders["X-A"] = "1"

	cp := config.clone()
	cp.CustomHeaders["X-B"] = "2"
	cp.Endpoint = "https://other.example.com"

	assert.NotContains(t, config.CustomHeaders, "X-B")
	assert.Equal(t, "https://relativity.example.com", config.Endpoint)
	assert.Equal(t, "1", cp.CustomHeaders["X-A"])
}
