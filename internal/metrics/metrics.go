package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application. A nil *Metrics
// is valid and records nothing, so components can take it as an optional dependency.
type Metrics struct {
	// Token metadata
	tokenLookupsTotal *prometheus.CounterVec
	cacheLookupsTotal *prometheus.CounterVec

	// Quotes
	quoteRequestsTotal *prometheus.CounterVec
	quoteDuration      *prometheus.HistogramVec

	// Swaps
	swapsTotal         *prometheus.CounterVec
	swapLogWritesTotal *prometheus.CounterVec

	// Solana RPC
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	liveConnections     prometheus.Gauge
}

// New creates the collectors on registry. If registry is nil, prometheus.DefaultRegisterer is used.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		tokenLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_token_lookups_total",
				Help: "Token metadata provider lookups by provider and result (hit, miss, error)",
			},
			[]string{"provider", "result"},
		),
		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_cache_lookups_total",
				Help: "In-memory cache lookups by cache and result (hit, miss)",
			},
			[]string{"cache", "result"},
		),
		quoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_quote_requests_total",
				Help: "Quote requests by outcome (ok or error kind)",
			},
			[]string{"outcome"},
		),
		quoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankiiswap_quote_duration_seconds",
				Help:    "Duration of uncached quote requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"outcome"},
		),
		swapsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_swaps_total",
				Help: "Swap attempts by final state and failure kind",
			},
			[]string{"state", "kind"},
		),
		swapLogWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_swap_log_writes_total",
				Help: "Swap log fan-out writes by sink and status",
			},
			[]string{"sink", "status"},
		),
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankiiswap_solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankiiswap_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankiiswap_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		liveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bankiiswap_live_connections",
				Help: "Open websocket connections on the live swap feed",
			},
		),
	}
}

func (m *Metrics) RecordTokenLookup(provider, result string) {
	if m == nil {
		return
	}
	m.tokenLookupsTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordQuote records an uncached quote request. outcome is "ok" or an error kind.
func (m *Metrics) RecordQuote(outcome string, duration float64) {
	if m == nil {
		return
	}
	m.quoteRequestsTotal.WithLabelValues(outcome).Inc()
	m.quoteDuration.WithLabelValues(outcome).Observe(duration)
}

func (m *Metrics) RecordSwap(state, kind string) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(state, kind).Inc()
}

func (m *Metrics) RecordSwapLogWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.swapLogWritesTotal.WithLabelValues(sink, status).Inc()
}

func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	if m == nil {
		return
	}
	m.rpcCallsTotal.WithLabelValues(method, status).Inc()
	m.rpcCallDuration.WithLabelValues(method).Observe(duration)
}

func (m *Metrics) RecordHTTPRequest(route, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(route, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(route, method, status).Inc()
}

func (m *Metrics) RecordLiveConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.liveConnections.Add(delta)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return strconv.Itoa(code)
	}
}
