package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "export"

// PrometheusMetrics owns the prometheus collectors of the export service
type PrometheusMetrics struct {
	// Chrome pool
	chromePoolSize  prometheus.Gauge
	chromeAvailable prometheus.Gauge

	// Exports
	exportsTotal    *prometheus.CounterVec
	exportDuration  prometheus.Histogram
	slidesTotal     prometheus.Counter
	elementsTotal   prometheus.Counter
	capturesTotal   *prometheus.CounterVec
	dumpFailures    prometheus.Counter
	notesMismatches prometheus.Counter

	// HTTP
	httpRequests *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetricsWithRegistry registers all collectors with registerer. When registerer is
// also a Gatherer it backs the exposition handler, otherwise the default gatherer does.
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{logger: logger}

	pm.chromePoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chrome_pool_size",
		Help:      "Total number of Chrome instances in the pool",
	})
	pm.chromeAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chrome_available",
		Help:      "Number of idle Chrome instances",
	})

	pm.exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "exports_total",
		Help:      "Total number of exports by outcome",
	}, []string{"status"}) // success or an error kind

	pm.exportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "export_duration_seconds",
		Help:      "Time spent exporting a presentation",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 11), // 0.25s to ~4m
	})

	pm.slidesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "slides_extracted_total",
		Help:      "Slides flattened by successful exports",
	})
	pm.elementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "elements_extracted_total",
		Help:      "Elements emitted by successful exports",
	})
	pm.capturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "captures_total",
		Help:      "Rasterized snapshots by strategy",
	}, []string{"strategy"})
	pm.dumpFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "debug_dump_failures_total",
		Help:      "Diagnostic dumps that could not be written",
	})
	pm.notesMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "speaker_note_mismatches_total",
		Help:      "Exports whose speaker note count differs from the slide count",
	})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Total errors by kind",
	}, []string{"type"})

	registerer.MustRegister(
		pm.chromePoolSize,
		pm.chromeAvailable,
		pm.exportsTotal,
		pm.exportDuration,
		pm.slidesTotal,
		pm.elementsTotal,
		pm.capturesTotal,
		pm.dumpFailures,
		pm.notesMismatches,
		pm.httpRequests,
		pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("Export service Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

// ServeHTTP serves the prometheus exposition format
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
