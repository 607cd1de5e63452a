package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/fioncat/csync/internal/logger"
)

// Server provides the HTTP server for the REST API.
//
// The listener is bound explicitly inside Start so callers can wait on
// ListenerReady before signaling readiness to the process supervisor.
// The server supports graceful shutdown with the configured timeout.
type Server struct {
	config APIConfig
	server *http.Server

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once the listener accepts connections.
	ListenerReady chan struct{}

	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin
// serving requests. Defaults are applied here so the server works
// correctly even when constructed directly in tests.
func NewServer(config APIConfig, services Services) *Server {
	config.applyDefaults()

	server := &http.Server{
		Handler:     NewRouter(config, services),
		IdleTimeout: config.KeepAlive,
	}

	return &Server{
		config:        config,
		server:        server,
		ListenerReady: make(chan struct{}),
	}
}

// Start binds the listener and serves until ctx is cancelled or the
// server fails. The initial bind is the only fatal path; everything
// after is handled per-request.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("API server listening",
		"addr", listener.Addr().String(),
		"tls", s.config.TLS.Enabled,
	)
	if !s.config.TLS.Enabled {
		logger.Warn("TLS is disabled, API traffic is not encrypted")
	}

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS.Enabled {
			err = s.server.ServeTLS(listener, s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			err = s.server.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// A fresh context bounds the drain; the cancelled one would
		// abort it immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently
// with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the bound address. It blocks until the listener is
// ready; tests bind port 0 and read the assigned port from here.
func (s *Server) Addr() net.Addr {
	<-s.ListenerReady
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	return s.listener.Addr()
}
