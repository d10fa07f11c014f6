package ops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/salesops/basket-engine/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Serve runs handler on addr until ctx is canceled, then shuts down
// gracefully. An empty addr returns immediately.
func Serve(ctx context.Context, addr string, handler http.Handler, logg *logger.Logger) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, handler, logg)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, logg *logger.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	if logg != nil {
		logg.Info(logg.WithField(ctx, "addr", ln.Addr().String()), "ops server listening")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
