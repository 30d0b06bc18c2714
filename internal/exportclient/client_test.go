package exportclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/export"
	"github.com/edgecomet/deckexport/internal/export/metrics"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/internal/service"
	"github.com/edgecomet/deckexport/pkg/types"
)

type exporterFunc func(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error)

func (f exporterFunc) Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	return f(ctx, req)
}

type idlePool struct{}

func (idlePool) Stats() chrome.PoolStats { return chrome.PoolStats{TotalInstances: 1, AvailableInstances: 1} }

// startService runs the real HTTP service around fn
func startService(t *testing.T, fn exporterFunc) string {
	t.Helper()
	logger := zap.NewNop()
	collector := metrics.NewMetricsCollectorWithRegistry("client_test", prometheus.NewRegistry(), logger)
	cfg := &config.ExportServiceConfig{}
	cfg.Export.MaxTimeout = types.Duration(5 * time.Second)

	srv := service.NewServer(cfg, service.CreateHTTPHandler(fn, idlePool{}, nil, collector, logger), logger)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + srv.Addr()
}

func TestExport_Success(t *testing.T) {
	url := startService(t, func(_ context.Context, req types.ExportRequest) (*types.ExportResult, error) {
		return &types.ExportResult{
			SessionID:      req.SessionID,
			PresentationID: req.PresentationID,
			Slides: []types.SlideAttributesResult{
				{SpeakerNote: "hi", Elements: []*types.ElementAttributes{{TagName: "canvas", ImageSrc: "/s/slide-0_0.png"}}},
			},
			Captures: 1,
		}, nil
	})

	c := New(url+"/", 10*time.Second, zaptest.NewLogger(t))
	res, err := c.Export(context.Background(), types.ExportRequest{PresentationID: "deck", SessionID: "s-1", OutputDir: "/s"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, 1, res.Captures)
	require.Len(t, res.Slides, 1)
	assert.Equal(t, "/s/slide-0_0.png", res.Slides[0].Elements[0].ImageSrc)
}

func TestExport_RemoteError(t *testing.T) {
	url := startService(t, func(context.Context, types.ExportRequest) (*types.ExportResult, error) {
		return nil, fmt.Errorf("%w: #presentation", export.ErrRootNotFound)
	})

	c := New(url, 10*time.Second, zap.NewNop())
	_, err := c.Export(context.Background(), types.ExportRequest{PresentationID: "deck", SessionID: "s-2"})

	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, 404, remote.StatusCode)
	assert.Equal(t, types.ErrorKindNotFound, remote.Kind)
	assert.Equal(t, "s-2", remote.SessionID)
	assert.Contains(t, remote.Message, "root container not found")
}

func TestExport_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, zap.NewNop())
	_, err := c.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	require.Error(t, err)
	var remote *RemoteError
	assert.False(t, errors.As(err, &remote))

	_, err = New("", time.Second, zap.NewNop()).Export(context.Background(), types.ExportRequest{})
	assert.ErrorContains(t, err, "service URL is empty")
}
