package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus string
	}{
		{
			name:       "implicit 200",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			wantStatus: "2xx",
		},
		{
			name:       "not found",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantStatus: "4xx",
		},
		{
			name: "first status wins",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.WriteHeader(http.StatusOK)
			},
			wantStatus: "5xx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMetrics(t)
			h := HTTPMetricsMiddleware(m, "/api/v1/wallets")(tt.handler)

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/wallets", nil))

			got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/wallets", http.MethodGet, tt.wantStatus))
			assert.Equal(t, float64(1), got)
		})
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	h := HTTPMetricsMiddleware(nil, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHTTPMetricsMiddleware_Flush(t *testing.T) {
	h := HTTPMetricsMiddleware(nil, "/stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, http.NewResponseController(w).Flush())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, rec.Flushed)
}

func TestRecordHelpers(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSSEConnectionChange("savings", 1)
	m.RecordSSEConnectionChange("savings", 1)
	m.RecordSSEConnectionChange("savings", -1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sseActiveConnections.WithLabelValues("savings")))

	m.RecordSSEEventSent("savings", "rows")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sseEventsSent.WithLabelValues("savings", "rows")))

	m.RecordTransactionsWritten("savings", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.transactionsWrittenTotal.WithLabelValues("savings")))

	m.RecordDBQuery("list", "transactions", 0.01, nil)
	m.RecordDBQuery("list", "transactions", 0.01, errors.New("boom"))
	assert.Equal(t, 2, testutil.CollectAndCount(m.dbOperationsTotal))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{302, "3xx"},
		{400, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeToString(tt.code))
	}
}
