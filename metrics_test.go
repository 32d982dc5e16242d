package client

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordRequest(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRequest(OpInitializeExport, 10*time.Millisecond, 1, nil)
	mc.RecordRequest(OpStreamLongText, 20*time.Millisecond, 3, nil)
	mc.RecordRequest(OpRetrieveNextBlock, 5*time.Millisecond, 1, &HTTPError{StatusCode: 503})
	mc.RecordRequest(OpStreamLongText, time.Millisecond, 1, &CircuitBreakerError{State: "open"})

	m := mc.GetMetrics()
	assert.EqualValues(t, 4, m.TotalRequests)
	assert.EqualValues(t, 2, m.TotalErrors)
	assert.EqualValues(t, 2, m.TotalRetries)
	assert.EqualValues(t, 1, m.CircuitBreakerHits)
	assert.InDelta(t, 0.5, m.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.Equal(t, map[string]int64{"http_503": 1, "circuit_breaker": 1}, m.ErrorBreakdown)

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.requests.WithLabelValues(OpStreamLongText, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.retries.WithLabelValues(OpStreamLongText)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.requestErrors.WithLabelValues(OpRetrieveNextBlock, "http_503")))
}

func TestMetricsCollector_ExportCounters(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordBlock(10)
	mc.RecordBlock(5)
	mc.RecordStreamedValue(2048)

	m := mc.GetMetrics()
	assert.EqualValues(t, 2, m.BlocksFetched)
	assert.EqualValues(t, 15, m.RowsEmitted)
	assert.EqualValues(t, 1, m.ValuesStreamed)
	assert.Zero(t, m.ErrorRate)

	expected := `
# HELP exportclient_rows_emitted_total Total number of rows emitted
# TYPE exportclient_rows_emitted_total counter
exportclient_rows_emitted_total 15
`
	require.NoError(t, testutil.GatherAndCompare(mc.Registry(), strings.NewReader(expected), "exportclient_rows_emitted_total"))
	assert.Equal(t, 2048.0, testutil.ToFloat64(mc.streamedChars))
}

func TestMetricsCollectorsAreIndependent(t *testing.T) {
	a := NewMetricsCollector()
	b := NewMetricsCollector()

	a.RecordBlock(3)
	assert.EqualValues(t, 0, b.GetMetrics().BlocksFetched)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.blocksFetched))
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&RateLimitError{}, "rate_limit"},
		{&AuthenticationError{}, "authentication"},
		{&AuthorizationError{}, "authorization"},
		{&HTTPError{StatusCode: 404}, "http_404"},
		{&NetworkError{Underlying: errors.New("eof")}, "network"},
		{&SerializationError{}, "serialization"},
		{&CircuitBreakerError{}, "circuit_breaker"},
		{&StreamingError{Underlying: &HTTPError{StatusCode: 500}}, "http_500"},
		{errors.New("plain"), "errors.errorString"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getErrorType(tt.err))
	}
}
