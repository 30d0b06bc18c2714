package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/requestid"
	"github.com/edgecomet/deckexport/internal/export"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/pkg/types"
)

const (
	pathExport = "/export"
	pathHealth = "/health"
)

// Exporter runs one export; implemented by export.Exporter
type Exporter interface {
	Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error)
}

// PoolStats reports browser pool occupancy; implemented by chrome.Pool
type PoolStats interface {
	Stats() chrome.PoolStats
}

// Metrics records HTTP traffic; implemented by metrics.MetricsCollector
type Metrics interface {
	RecordHTTPRequest(endpoint string, status int)
	ExportCounts() map[string]int64
}

// HealthChecker probes an optional dependency; implemented by redis.Client
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string           `json:"status"`
	PoolSize           int              `json:"pool_size"`
	AvailableInstances int              `json:"available_instances"`
	ActiveInstances    int              `json:"active_instances"`
	TotalRestarts      int64            `json:"total_restarts"`
	DumpStore          string           `json:"dump_store,omitempty"`
	Exports            map[string]int64 `json:"exports,omitempty"`
}

// StatusForKind maps an error kind onto the HTTP status returned to the caller
func StatusForKind(kind string) int {
	switch kind {
	case types.ErrorKindInput:
		return fasthttp.StatusBadRequest
	case types.ErrorKindNotFound:
		return fasthttp.StatusNotFound
	case types.ErrorKindTimeout:
		return fasthttp.StatusGatewayTimeout
	case types.ErrorKindPool:
		return fasthttp.StatusServiceUnavailable
	default:
		return fasthttp.StatusInternalServerError
	}
}

// CreateHTTPHandler creates the main HTTP request handler with routing.
// dumps may be nil when no diagnostic dump store is configured.
func CreateHTTPHandler(exporter Exporter, pool PoolStats, dumps HealthChecker, metrics Metrics, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())

		switch {
		case ctx.IsPost() && path == pathExport:
			HandleExport(ctx, exporter, metrics, logger)
		case ctx.IsGet() && path == pathHealth:
			HandleHealth(ctx, pool, dumps, metrics, logger)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
			metrics.RecordHTTPRequest(path, fasthttp.StatusNotFound)
		}
	}
}

// writeJSONResponse writes a JSON response with proper error handling
func writeJSONResponse(ctx *fasthttp.RequestCtx, statusCode int, response any, path string, metrics Metrics, logger *zap.Logger) {
	body, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":"Failed to marshal response","error_kind":"internal"}`)
		ctx.SetContentType("application/json")
		metrics.RecordHTTPRequest(path, fasthttp.StatusInternalServerError)
		logger.Error("Failed to marshal JSON response",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetBody(body)
	ctx.SetContentType("application/json")
	metrics.RecordHTTPRequest(path, statusCode)
}

// writeErrorResponse writes an error response with consistent formatting
func writeErrorResponse(ctx *fasthttp.RequestCtx, kind, errorMsg, sessionID, path string, metrics Metrics, logger *zap.Logger) {
	resp := types.ExportErrorResponse{
		SessionID: sessionID,
		Success:   false,
		Error:     errorMsg,
		ErrorKind: kind,
		Timestamp: time.Now().UTC(),
	}
	writeJSONResponse(ctx, StatusForKind(kind), resp, path, metrics, logger)
}

// HandleExport processes POST /export requests
func HandleExport(ctx *fasthttp.RequestCtx, exporter Exporter, metrics Metrics, logger *zap.Logger) {
	var req types.ExportRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeErrorResponse(ctx, types.ErrorKindInput, "Invalid JSON body", "", pathExport, metrics, logger)
		logger.Warn("Invalid request body",
			zap.String("remote", ctx.RemoteAddr().String()),
			zap.Error(err))
		return
	}

	// Assigned here so error responses carry the id used in logs and the snapshot directory
	if req.SessionID == "" {
		req.SessionID = requestid.NewSessionID(req.PresentationID)
	}

	// The exporter bounds itself with max_timeout; the request context only ends on server shutdown
	result, err := exporter.Export(context.Background(), req)
	if err != nil {
		kind := export.Classify(err)
		writeErrorResponse(ctx, kind, err.Error(), req.SessionID, pathExport, metrics, logger)
		return
	}

	writeJSONResponse(ctx, fasthttp.StatusOK, result, pathExport, metrics, logger)
}

// HandleHealth returns the current health status and pool statistics.
// An unreachable dump store degrades the status but keeps 200; dumps never block exports.
func HandleHealth(ctx *fasthttp.RequestCtx, pool PoolStats, dumps HealthChecker, metrics Metrics, logger *zap.Logger) {
	stats := pool.Stats()

	resp := HealthResponse{
		Status:             "ok",
		PoolSize:           stats.TotalInstances,
		AvailableInstances: stats.AvailableInstances,
		ActiveInstances:    stats.ActiveInstances,
		TotalRestarts:      stats.TotalRestarts,
		Exports:            metrics.ExportCounts(),
	}
	if dumps != nil {
		checkCtx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		err := dumps.HealthCheck(checkCtx)
		cancel()
		resp.DumpStore = "ok"
		if err != nil {
			resp.Status = "degraded"
			resp.DumpStore = "unreachable"
			logger.Warn("Dump store health check failed", zap.Error(err))
		}
	}

	status := fasthttp.StatusOK
	if stats.TotalInstances == 0 {
		resp.Status = "unavailable"
		status = fasthttp.StatusServiceUnavailable
	}

	writeJSONResponse(ctx, status, resp, pathHealth, metrics, logger)
}
