package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
)

// Server is an HTTP listener with graceful shutdown.
type Server struct {
	name   string
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func newServer(name, addr string, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		name: name,
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		log: log.With("server", name),
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for Start to return.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
