package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	qaRequestsTotal   *prometheus.CounterVec
	qaRetrievedDocs   *prometheus.HistogramVec
	qaDuration        *prometheus.HistogramVec
	searchTotal       *prometheus.CounterVec
	webFallbackTotal  *prometheus.CounterVec
	bm25BuildDuration prometheus.Histogram

	chatSessions    prometheus.GaugeFunc
	policyContexts  prometheus.GaugeFunc
	cachedDocuments prometheus.GaugeFunc
}

// CacheSizes feeds the session-cache gauges; it is polled on scrape.
type CacheSizes struct {
	ChatSessions   func() int
	PolicyContexts func() int
	CachedDocs     func() int
}

func New(service string, sizes CacheSizes) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	qaRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "qa",
			Name:      "requests_total",
			Help:      "Total completed QA turns by answer mode.",
		},
		[]string{"service", "mode"},
	)
	qaRetrievedDocs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "qa",
			Name:      "evidence_docs",
			Help:      "Distribution of internal evidence documents per answered turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	qaDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "qa",
			Name:      "duration_seconds",
			Help:      "End-to-end QA turn duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total hybrid search requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	webFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "search",
			Name:      "web_fallback_total",
			Help:      "Web-search fallback invocations by result.",
		},
		[]string{"service", "result"},
	)
	bm25BuildDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "search",
			Name:      "bm25_build_duration_seconds",
			Help:      "BM25 index build duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace: "pa",
			Subsystem: "cache",
			Name:      name,
			Help:      help,
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		}
	}
	chatSessions := prometheus.NewGaugeFunc(
		gaugeOpts("chat_sessions", "Live chat sessions held in memory."),
		func() float64 { return float64(sizes.ChatSessions()) },
	)
	policyContexts := prometheus.NewGaugeFunc(
		gaugeOpts("policy_contexts", "Live policy contexts held in memory."),
		func() float64 { return float64(sizes.PolicyContexts()) },
	)
	cachedDocuments := prometheus.NewGaugeFunc(
		gaugeOpts("cached_documents", "Document chunks held across policy contexts."),
		func() float64 { return float64(sizes.CachedDocs()) },
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		qaRequestsTotal,
		qaRetrievedDocs,
		qaDuration,
		searchTotal,
		webFallbackTotal,
		bm25BuildDuration,
		chatSessions,
		policyContexts,
		cachedDocuments,
	)

	return &Metrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		qaRequestsTotal:   qaRequestsTotal,
		qaRetrievedDocs:   qaRetrievedDocs,
		qaDuration:        qaDuration,
		searchTotal:       searchTotal,
		webFallbackTotal:  webFallbackTotal,
		bm25BuildDuration: bm25BuildDuration,
		chatSessions:      chatSessions,
		policyContexts:    policyContexts,
		cachedDocuments:   cachedDocuments,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordQATurn(service, mode string, evidenceDocs int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.qaRequestsTotal.WithLabelValues(service, mode).Inc()
	m.qaRetrievedDocs.WithLabelValues(service).Observe(float64(evidenceDocs))
	m.qaDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *Metrics) RecordSearch(service string, resultCount int) {
	outcome := "hit"
	if resultCount == 0 {
		outcome = "empty"
	}
	m.searchTotal.WithLabelValues(service, outcome).Inc()
}

func (m *Metrics) RecordWebFallback(service string, succeeded bool) {
	result := "ok"
	if !succeeded {
		result = "error"
	}
	m.webFallbackTotal.WithLabelValues(service, result).Inc()
}

func (m *Metrics) RecordBM25Build(duration time.Duration) {
	m.bm25BuildDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
