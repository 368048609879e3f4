package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Feed Metrics
	transactionsFetchedTotal *prometheus.CounterVec
	transactionsParsedTotal  *prometheus.CounterVec
	transactionsWrittenTotal *prometheus.CounterVec
	transactionsSkippedTotal *prometheus.CounterVec

	// Ledger Pipeline Metrics
	ledgerExpansionsTotal     *prometheus.CounterVec
	ledgerExpansionDuration   *prometheus.HistogramVec
	ledgerFilterPassesTotal   *prometheus.CounterVec
	ledgerFilterDuration      *prometheus.HistogramVec
	ledgerFilterRejectedTotal *prometheus.CounterVec
	ledgerRows                *prometheus.GaugeVec
	ledgerLiveRows            *prometheus.GaugeVec
	annotationDispatchTotal   *prometheus.CounterVec
	annotationLoadsTotal      *prometheus.CounterVec
	confirmationSettledTotal  *prometheus.CounterVec

	// Workflow Metrics
	syncWorkflowDuration        *prometheus.HistogramVec
	syncWorkflowExecutionsTotal *prometheus.CounterVec
	syncActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Feed Metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched from Solana",
			},
			[]string{"wallet_id", "source"},
		),
		transactionsParsedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_parsed_total",
				Help: "Total number of transactions converted to ledger entries",
			},
			[]string{"address", "status"},
		),
		transactionsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_written_total",
				Help: "Total number of transactions written to database",
			},
			[]string{"wallet_id"},
		),
		transactionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of transactions skipped",
			},
			[]string{"address", "reason"},
		),

		// Ledger Pipeline Metrics
		ledgerExpansionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_expansions_total",
				Help: "Total number of transaction list expansions into rows",
			},
			[]string{"wallet_id"},
		),
		ledgerExpansionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_expansion_duration_seconds",
				Help:    "Duration of transaction list expansion in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"wallet_id"},
		),
		ledgerFilterPassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_filter_passes_total",
				Help: "Total number of filter and summarize passes",
			},
			[]string{"wallet_id"},
		),
		ledgerFilterDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_filter_duration_seconds",
				Help:    "Duration of filter and summarize passes in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"wallet_id"},
		),
		ledgerFilterRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_filter_rejected_total",
				Help: "Total number of filter changes rejected as invalid",
			},
			[]string{"wallet_id"},
		),
		ledgerRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledger_rows",
				Help: "Number of rows in the ledger view",
			},
			[]string{"wallet_id", "stage"},
		),
		ledgerLiveRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledger_live_rows",
				Help: "Number of active rows registered for annotation routing",
			},
			[]string{"wallet_id"},
		),
		annotationDispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotation_dispatch_total",
				Help: "Total number of saved-annotation events routed to rows",
			},
			[]string{"wallet_id", "result"},
		),
		annotationLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotation_loads_total",
				Help: "Total number of annotation loads by status",
			},
			[]string{"status"},
		),
		confirmationSettledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_settled_total",
				Help: "Total number of rows that settled into the confirmed regime",
			},
			[]string{"wallet_id"},
		),

		// Workflow Metrics
		syncWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_workflow_duration_seconds",
				Help:    "Duration of wallet sync workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"wallet_id", "status"},
		),
		syncWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_workflow_executions_total",
				Help: "Total number of wallet sync workflow executions",
			},
			[]string{"wallet_id", "status"},
		),
		syncActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_activity_duration_seconds",
				Help:    "Duration of wallet sync activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "wallet_id"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"wallet_id"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"wallet_id", "event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Feed metric helpers

// RecordTransactionsFetched records transactions fetched from Solana.
func (m *Metrics) RecordTransactionsFetched(walletID, source string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(walletID, source).Add(float64(count))
}

// RecordTransactionParsed records a transaction conversion attempt.
func (m *Metrics) RecordTransactionParsed(address, status string) {
	m.transactionsParsedTotal.WithLabelValues(address, status).Inc()
}

// RecordTransactionsWritten records transactions written to database.
func (m *Metrics) RecordTransactionsWritten(walletID string, count int) {
	m.transactionsWrittenTotal.WithLabelValues(walletID).Add(float64(count))
}

// RecordTransactionsSkipped records transactions skipped.
func (m *Metrics) RecordTransactionsSkipped(address, reason string, count int) {
	m.transactionsSkippedTotal.WithLabelValues(address, reason).Add(float64(count))
}

// Ledger pipeline metric helpers

// RecordExpansion records one expansion of a transaction list into rows.
func (m *Metrics) RecordExpansion(walletID string, rows int, duration float64) {
	m.ledgerExpansionsTotal.WithLabelValues(walletID).Inc()
	m.ledgerExpansionDuration.WithLabelValues(walletID).Observe(duration)
	m.ledgerRows.WithLabelValues(walletID, "expanded").Set(float64(rows))
}

// RecordFilterPass records one filter and summarize pass.
func (m *Metrics) RecordFilterPass(walletID string, rows int, duration float64) {
	m.ledgerFilterPassesTotal.WithLabelValues(walletID).Inc()
	m.ledgerFilterDuration.WithLabelValues(walletID).Observe(duration)
	m.ledgerRows.WithLabelValues(walletID, "filtered").Set(float64(rows))
}

// RecordFilterRejected records a filter change rejected as invalid.
func (m *Metrics) RecordFilterRejected(walletID string) {
	m.ledgerFilterRejectedTotal.WithLabelValues(walletID).Inc()
}

// SetLiveRows records the number of active rows.
func (m *Metrics) SetLiveRows(walletID string, n int) {
	m.ledgerLiveRows.WithLabelValues(walletID).Set(float64(n))
}

// RecordAnnotationDispatch records whether a saved annotation found a live row.
func (m *Metrics) RecordAnnotationDispatch(walletID string, delivered bool) {
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	m.annotationDispatchTotal.WithLabelValues(walletID, result).Inc()
}

// RecordAnnotationLoad records an annotation load.
func (m *Metrics) RecordAnnotationLoad(status string) {
	m.annotationLoadsTotal.WithLabelValues(status).Inc()
}

// RecordConfirmationSettled records a row settling into the confirmed regime.
func (m *Metrics) RecordConfirmationSettled(walletID string) {
	m.confirmationSettledTotal.WithLabelValues(walletID).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(walletID, status string, duration float64) {
	m.syncWorkflowDuration.WithLabelValues(walletID, status).Observe(duration)
	m.syncWorkflowExecutionsTotal.WithLabelValues(walletID, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, walletID string, duration float64) {
	m.syncActivityDuration.WithLabelValues(activity, walletID).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(walletID string, delta float64) {
	m.sseActiveConnections.WithLabelValues(walletID).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(walletID, eventType string) {
	m.sseEventsSent.WithLabelValues(walletID, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
