package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"skyfeed/internal/logging"
)

// HTTPService serves handler on addr as a supervised service. Each Serve
// builds a fresh http.Server since a shut down server cannot be reused.
type HTTPService struct {
	Addr            string
	Handler         http.Handler
	ShutdownTimeout time.Duration
	// listen is overridable in tests.
	listen func(network, addr string) (net.Listener, error)
}

func NewHTTPService(addr string, h http.Handler, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{Addr: addr, Handler: h, ShutdownTimeout: shutdownTimeout, listen: net.Listen}
}

func (s *HTTPService) String() string { return "http-server" }

func (s *HTTPService) Serve(ctx context.Context) error {
	ln, err := s.listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logging.Info("http_listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}
