// README: HTTP server lifecycle with graceful shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"lastmile/internal/infra/logger"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(addr string, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Infof("http server stopped")
	return nil
}
