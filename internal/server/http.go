package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dtroode/membership-server/internal/model"
)

var _ model.Server = (*HTTPServer)(nil)

// Timeouts bound the phases of a request. Zero values disable a timeout.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

// HTTPServer wraps http.Server with the Start/Stop lifecycle.
type HTTPServer struct {
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewHTTPServer(handler http.Handler, addr string, timeouts Timeouts) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
			ReadTimeout:       timeouts.Read,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
		},
	}
}

// Start listens through securityLayer and serves until Stop. It returns nil
// after a graceful stop.
func (s *HTTPServer) Start(securityLayer model.SecurityLayer) error {
	ln, err := securityLayer.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop waits for active requests until ctx is done, then closes the remaining connections.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Address returns the bound address once started, else the configured one.
func (s *HTTPServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// RegisterOnShutdown runs f when Stop begins, e.g. to end open event streams.
func (s *HTTPServer) RegisterOnShutdown(f func()) {
	s.server.RegisterOnShutdown(f)
}
