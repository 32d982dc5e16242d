package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) *Config {
	config := DefaultConfig()
	config.Endpoint = endpoint
	config.Credentials = BasicCredentials{Username: "user@example.com", Password: "secret"}
	config.WorkspaceID = 1234567
	config.BaseBackoff = time.Millisecond
	config.MaxBackoff = 5 * time.Millisecond
	config.EnableMetrics = true
	return config
}

func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient, err := NewHTTPClient(testConfig(server.URL))
	require.NoError(t, err)
	t.Cleanup(func() { httpClient.Close() })
	return httpClient, server
}

func TestNewHTTPClient_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	_, err := NewHTTPClient(config)

	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "Endpoint", configErr.Field)
}

func TestHTTPClient_PostJSON(t *testing.T) {
	httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/echo", r.URL.Path)
		assert.Equal(t, "-", r.Header.Get("X-CSRF-Header"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "exportclient-go/1.0", r.Header.Get("User-Agent"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user@example.com", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"echo": body["value"]})
	})

	var out struct {
		Echo string `json:"echo"`
	}
	meta, err := httpClient.PostJSON(context.Background(), &Request{
		Operation: "echo",
		Method:    http.MethodPost,
		Path:      "/echo",
		Body:      map[string]string{"value": "hello"},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hello", out.Echo)
	assert.Equal(t, 1, meta.Attempt)
	assert.Equal(t, "echo", meta.Operation)

	metrics := httpClient.GetMetrics()
	require.NotNil(t, metrics)
	assert.EqualValues(t, 1, metrics.TotalRequests)
	assert.EqualValues(t, 0, metrics.TotalErrors)
}

func TestHTTPClient_IdempotentRequestIsRetried(t *testing.T) {
	var hits int32
	httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	})

	meta, err := httpClient.PostJSON(context.Background(), &Request{
		Operation:  "stream",
		Method:     http.MethodPost,
		Path:       "/stream",
		Idempotent: true,
	}, &map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, 3, meta.Attempt)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	assert.EqualValues(t, 2, httpClient.GetMetrics().TotalRetries)
}

func TestHTTPClient_CursorRequestIsNotRetried(t *testing.T) {
	var hits int32
	httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := httpClient.PostJSON(context.Background(), &Request{
		Operation: "next",
		Method:    http.MethodPost,
		Path:      "/next",
	}, nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var target *AuthenticationError
				assert.ErrorAs(t, err, &target)
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"Message":"no access to workspace"}`,
			check: func(t *testing.T, err error) {
				var target *AuthorizationError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "no access to workspace", target.Message)
				assert.Equal(t, "/op", target.Resource)
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "7"},
			check: func(t *testing.T, err error) {
				var target *RateLimitError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 7*time.Second, target.RetryAfter)
			},
		},
		{
			name:   "platform error body",
			status: http.StatusBadRequest,
			body:   `{"Message":"Field 'Nope' does not exist","ErrorType":"ValidationException"}`,
			check: func(t *testing.T, err error) {
				var target *HTTPError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "Field 'Nope' does not exist", target.Message)
				assert.Equal(t, "ValidationException", target.ErrorType)
				assert.True(t, NewErrorClassifier().IsPermanent(err))
			},
		},
		{
			name:   "plain text body",
			status: http.StatusInternalServerError,
			body:   "internal failure",
			check: func(t *testing.T, err error) {
				var target *HTTPError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "internal failure", target.Message)
				assert.True(t, NewErrorClassifier().IsTemporary(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := httpClient.PostJSON(context.Background(), &Request{
				Operation: "op",
				Method:    http.MethodPost,
				Path:      "/op",
			}, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestHTTPClient_SerializationError(t *testing.T) {
	httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	})

	var out []Row
	_, err := httpClient.PostJSON(context.Background(), &Request{
		Operation: "op",
		Method:    http.MethodPost,
		Path:      "/op",
	}, &out)

	var serErr *SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, "unmarshal", serErr.Operation)
}

func TestHTTPClient_PostStream(t *testing.T) {
	httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Write([]byte{0x68, 0x00, 0x69, 0x00})
	})

	body, meta, err := httpClient.PostStream(context.Background(), &Request{
		Operation: "stream",
		Method:    http.MethodPost,
		Path:      "/stream",
		Headers:   map[string]string{"Accept": "application/octet-stream"},
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x68, 0x00, 0x69, 0x00}, data)
	assert.Equal(t, 1, meta.Attempt)
}

func TestHTTPClient_RateLimiterHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RateLimit = 0.01
	config.RateBurst = 1
	httpClient, err := NewHTTPClient(config)
	require.NoError(t, err)
	defer httpClient.Close()

	req := &Request{Operation: "op", Method: http.MethodPost, Path: "/op"}
	_, err = httpClient.PostJSON(context.Background(), req, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = httpClient.PostJSON(ctx, req, nil)
	assert.Error(t, err)
}

func TestHTTPClient_BearerCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.Credentials = BearerCredentials{Token: "token-123"}
	config.CustomHeaders["X-Custom"] = "yes"
	httpClient, err := NewHTTPClient(config)
	require.NoError(t, err)
	defer httpClient.Close()

	_, err = httpClient.PostJSON(context.Background(), &Request{Operation: "op", Method: http.MethodPost, Path: "/op"}, nil)
	require.NoError(t, err)
}

func TestHTTPClient_RowNumbersKeepPrecision(t *testing.T) {
	httpClient, _ := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"ArtifactID":1038052,"Values":["DOC1",1234567,9007199254740993,{"ArtifactID":1038052},2500000.5]}]`)
	})

	var rows []Row
	_, err := httpClient.PostJSON(context.Background(), &Request{
		Operation: OpRetrieveNextBlock,
		Method:    http.MethodPost,
		Path:      "/next",
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 1038052, rows[0].ArtifactID)
	assert.Equal(t, json.Number("1234567"), rows[0].Values[1])
	assert.Equal(t, json.Number("9007199254740993"), rows[0].Values[2])
	assert.Equal(t, map[string]any{"ArtifactID": json.Number("1038052")}, rows[0].Values[3])
	assert.Equal(t, json.Number("2500000.5"), rows[0].Values[4])
}
