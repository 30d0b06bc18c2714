package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/common/configtypes"
	"github.com/edgecomet/deckexport/internal/export"
	"github.com/edgecomet/deckexport/internal/export/metrics"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/internal/service"
	"github.com/edgecomet/deckexport/pkg/types"
)

type stubExporter struct {
	mu       sync.Mutex
	requests []types.ExportRequest
	result   *types.ExportResult
	err      error
}

func (s *stubExporter) Export(_ context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.SessionID = req.SessionID
	res.PresentationID = req.PresentationID
	return &res, nil
}

func (s *stubExporter) Requests() []types.ExportRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ExportRequest(nil), s.requests...)
}

type stubPool struct {
	stats chrome.PoolStats
}

func (p stubPool) Stats() chrome.PoolStats { return p.stats }

type stubChecker struct{ err error }

func (c stubChecker) HealthCheck(context.Context) error { return c.err }

var _ = Describe("Export HTTP server", func() {
	var (
		exporter  *stubExporter
		collector *metrics.MetricsCollector
		server    *service.Server
		baseURL   string
		pool      stubPool
		dumps     service.HealthChecker
	)

	do := func(method, path, body string) (int, []byte) {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.Header.SetMethod(method)
		req.SetRequestURI(baseURL + path)
		if body != "" {
			req.Header.SetContentType("application/json")
			req.SetBodyString(body)
		}
		Expect(fasthttp.DoTimeout(req, resp, 5*time.Second)).To(Succeed())
		return resp.StatusCode(), append([]byte(nil), resp.Body()...)
	}

	BeforeEach(func() {
		exporter = &stubExporter{result: &types.ExportResult{
			Slides: []types.SlideAttributesResult{
				{BackgroundColor: "ffffff", SpeakerNote: "intro", Elements: []*types.ElementAttributes{
					{TagName: "h1", InnerText: "Hello", DOMPath: "0"},
				}},
			},
			ExportTime: 1500 * time.Millisecond,
		}}
		pool = stubPool{stats: chrome.PoolStats{TotalInstances: 2, AvailableInstances: 1, ActiveInstances: 1}}
		dumps = nil
	})

	JustBeforeEach(func() {
		logger := zap.NewNop()
		collector = metrics.NewMetricsCollectorWithRegistry("svc_test", prometheus.NewRegistry(), logger)
		cfg := &config.ExportServiceConfig{
			Server: configtypes.ServerConfig{ID: "test"},
			Export: config.ExportYAMLConfig{MaxTimeout: types.Duration(time.Second)},
		}

		recording := &recordingExporter{inner: exporter, collector: collector}
		server = service.NewServer(cfg, service.CreateHTTPHandler(recording, pool, dumps, collector, logger), logger)
		Expect(server.Start("127.0.0.1:0")).To(Succeed())
		baseURL = "http://" + server.Addr()
	})

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(server.Shutdown(ctx)).To(Succeed())
	})

	Describe("POST /export", func() {
		It("returns the ordered slide model", func() {
			status, body := do("POST", "/export", `{"presentation_id":"deck-1","session_id":"s1"}`)
			Expect(status).To(Equal(fasthttp.StatusOK))

			var res types.ExportResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.SessionID).To(Equal("s1"))
			Expect(res.PresentationID).To(Equal("deck-1"))
			Expect(res.Slides).To(HaveLen(1))
			Expect(res.Slides[0].SpeakerNote).To(Equal("intro"))
			Expect(res.Slides[0].Elements[0].InnerText).To(Equal("Hello"))
			Expect(res.ExportTime).To(Equal(1500 * time.Millisecond))

			Expect(exporter.Requests()).To(ConsistOf(types.ExportRequest{PresentationID: "deck-1", SessionID: "s1"}))
		})

		It("rejects malformed bodies without calling the exporter", func() {
			status, body := do("POST", "/export", `{"presentation_id":`)
			Expect(status).To(Equal(fasthttp.StatusBadRequest))

			var res types.ExportErrorResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Success).To(BeFalse())
			Expect(res.ErrorKind).To(Equal(types.ErrorKindInput))
			Expect(exporter.Requests()).To(BeEmpty())
		})

		DescribeTable("maps export failures onto status codes",
			func(err error, wantStatus int, wantKind string) {
				exporter.err = err
				status, body := do("POST", "/export", `{"presentation_id":"deck-1","session_id":"s9"}`)
				Expect(status).To(Equal(wantStatus))

				var res types.ExportErrorResponse
				Expect(json.Unmarshal(body, &res)).To(Succeed())
				Expect(res.ErrorKind).To(Equal(wantKind))
				Expect(res.SessionID).To(Equal("s9"))
				Expect(res.Error).NotTo(BeEmpty())
				Expect(res.Timestamp).NotTo(BeZero())
			},
			Entry("missing id", export.ErrMissingPresentationID, fasthttp.StatusBadRequest, types.ErrorKindInput),
			Entry("root missing", fmt.Errorf("%w: #presentation", export.ErrRootNotFound), fasthttp.StatusNotFound, types.ErrorKindNotFound),
			Entry("readiness timeout", chrome.ErrReadinessTimeout, fasthttp.StatusGatewayTimeout, types.ErrorKindTimeout),
			Entry("pool shut down", chrome.ErrPoolShutdown, fasthttp.StatusServiceUnavailable, types.ErrorKindPool),
			Entry("anything else", fmt.Errorf("boom"), fasthttp.StatusInternalServerError, types.ErrorKindInternal),
		)

		It("reports the generated session id on failure", func() {
			exporter.err = chrome.ErrReadinessTimeout
			status, body := do("POST", "/export", `{"presentation_id":"deck-1"}`)
			Expect(status).To(Equal(fasthttp.StatusGatewayTimeout))

			var res types.ExportErrorResponse
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.SessionID).To(HaveSuffix("-deck-1"))

			requests := exporter.Requests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].SessionID).To(Equal(res.SessionID))
		})
	})

	Describe("GET /health", func() {
		It("reports pool occupancy and export outcomes", func() {
			do("POST", "/export", `{"presentation_id":"deck-1"}`)

			status, body := do("GET", "/health", "")
			Expect(status).To(Equal(fasthttp.StatusOK))

			var health service.HealthResponse
			Expect(json.Unmarshal(body, &health)).To(Succeed())
			Expect(health.Status).To(Equal("ok"))
			Expect(health.PoolSize).To(Equal(2))
			Expect(health.AvailableInstances).To(Equal(1))
			Expect(health.Exports).To(HaveKeyWithValue(metrics.StatusSuccess, int64(1)))
			Expect(health.DumpStore).To(BeEmpty())
		})

		When("a dump store is configured", func() {
			BeforeEach(func() {
				dumps = stubChecker{}
			})

			It("reports it reachable", func() {
				status, body := do("GET", "/health", "")
				Expect(status).To(Equal(fasthttp.StatusOK))

				var health service.HealthResponse
				Expect(json.Unmarshal(body, &health)).To(Succeed())
				Expect(health.Status).To(Equal("ok"))
				Expect(health.DumpStore).To(Equal("ok"))
			})

			Context("and it is down", func() {
				BeforeEach(func() {
					dumps = stubChecker{err: fmt.Errorf("connection refused")}
				})

				It("degrades but still answers 200", func() {
					status, body := do("GET", "/health", "")
					Expect(status).To(Equal(fasthttp.StatusOK))

					var health service.HealthResponse
					Expect(json.Unmarshal(body, &health)).To(Succeed())
					Expect(health.Status).To(Equal("degraded"))
					Expect(health.DumpStore).To(Equal("unreachable"))
				})
			})
		})

		When("the pool has no instances", func() {
			BeforeEach(func() {
				pool = stubPool{}
			})

			It("reports unavailable", func() {
				status, body := do("GET", "/health", "")
				Expect(status).To(Equal(fasthttp.StatusServiceUnavailable))
				Expect(string(body)).To(ContainSubstring(`"status":"unavailable"`))
			})
		})
	})

	It("answers unknown routes with 404", func() {
		status, _ := do("GET", "/render", "")
		Expect(status).To(Equal(fasthttp.StatusNotFound))
		status, _ = do("GET", "/export", "")
		Expect(status).To(Equal(fasthttp.StatusNotFound))
	})
})

// recordingExporter feeds outcomes into the collector the way export.Exporter does
type recordingExporter struct {
	inner     service.Exporter
	collector *metrics.MetricsCollector
}

func (r *recordingExporter) Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	res, err := r.inner.Export(ctx, req)
	if err != nil {
		r.collector.RecordExport(export.Classify(err), 0, 0, 0)
		return nil, err
	}
	r.collector.RecordExport(metrics.StatusSuccess, res.ExportTime, len(res.Slides), res.ElementCount())
	return res, nil
}
