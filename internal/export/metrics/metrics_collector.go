package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// StatusSuccess labels successful exports
const StatusSuccess = "success"

// MetricsCollector is the single entry point for recording export service metrics.
// It observes the browser pool and the capture pass as well.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector registers with the default prometheus registry
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewMetricsCollectorWithRegistry registers with registerer, for tests
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// UpdateBrowserPool tracks pool capacity
func (mc *MetricsCollector) UpdateBrowserPool(total, available int) {
	mc.prometheus.chromePoolSize.Set(float64(total))
	mc.prometheus.chromeAvailable.Set(float64(available))
}

// RecordCapture counts one stored snapshot
func (mc *MetricsCollector) RecordCapture(strategy string) {
	mc.prometheus.capturesTotal.WithLabelValues(strategy).Inc()
}

// RecordExport records the outcome of one export. status is StatusSuccess or an error kind;
// slides and elements only count for successful exports.
func (mc *MetricsCollector) RecordExport(status string, duration time.Duration, slides, elements int) {
	mc.prometheus.exportsTotal.WithLabelValues(status).Inc()
	mc.prometheus.exportDuration.Observe(duration.Seconds())
	if status == StatusSuccess {
		mc.prometheus.slidesTotal.Add(float64(slides))
		mc.prometheus.elementsTotal.Add(float64(elements))
		return
	}
	mc.prometheus.errorsTotal.WithLabelValues(status).Inc()
}

// RecordDumpFailure counts a swallowed diagnostic dump error
func (mc *MetricsCollector) RecordDumpFailure() {
	mc.prometheus.dumpFailures.Inc()
}

// RecordNotesMismatch counts an export whose note and slide counts differ
func (mc *MetricsCollector) RecordNotesMismatch() {
	mc.prometheus.notesMismatches.Inc()
}

// RecordHTTPRequest counts a request by endpoint and status code
func (mc *MetricsCollector) RecordHTTPRequest(endpoint string, status int) {
	mc.prometheus.httpRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

// ServeHTTP exposes the metrics endpoint
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}

// ExportCounts reads back the exports_total counter per status, for the health endpoint
func (mc *MetricsCollector) ExportCounts() map[string]int64 {
	counts := make(map[string]int64)
	ch := make(chan prometheus.Metric, 16)
	go func() {
		mc.prometheus.exportsTotal.Collect(ch)
		close(ch)
	}()

	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			mc.logger.Warn("Failed to read export counter", zap.Error(err))
			continue
		}
		status := ""
		for _, label := range pb.GetLabel() {
			if label.GetName() == "status" {
				status = label.GetValue()
			}
		}
		counts[status] = int64(pb.GetCounter().GetValue())
	}
	return counts
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
