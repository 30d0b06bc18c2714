package service

import (
	"context"
	"fmt"
	"net"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/common/configtypes"
)

// Server is the export HTTP server
type Server struct {
	srv      *fasthttp.Server
	listener net.Listener
	errCh    chan error
	logger   *zap.Logger
}

// NewServer configures the server. Read and write timeouts are max_timeout plus a safety margin
// so a running export is never cut off by the transport.
func NewServer(cfg *config.ExportServiceConfig, handler fasthttp.RequestHandler, logger *zap.Logger) *Server {
	serverTimeout := cfg.Export.CalculateServerTimeout()
	if t := cfg.Server.Timeout.ToDuration(); t > serverTimeout {
		serverTimeout = t
	}

	return &Server{
		srv: &fasthttp.Server{
			Handler:      handler,
			ReadTimeout:  serverTimeout,
			WriteTimeout: serverTimeout,
			IdleTimeout:  serverTimeout,
			Name:         "DeckExport/" + cfg.Server.ID,
		},
		errCh:  make(chan error, 1),
		logger: logger,
	}
}

// Start binds listen and serves in the background. Binding errors are returned synchronously.
func (s *Server) Start(listen string) error {
	addr, err := configtypes.NormalizeListen(listen)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Info("Starting HTTP server", zap.String("listen", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil {
			s.errCh <- err
		}
	}()
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Errors delivers a serve failure
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown completes in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}
