package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = time.Second * 15
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
)

func newMetricsHandler(gatherer prometheus.Gatherer) *http.ServeMux {
	router := http.NewServeMux()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK\n"))
	})
	return router
}

// ServeMetrics serves the metrics of gatherer on l until ctx is done.
func ServeMetrics(ctx context.Context, l net.Listener, gatherer prometheus.Gatherer, log *zerolog.Logger) error {
	server := &http.Server{
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Handler:      newMetricsHandler(gatherer),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(l)
	}()
	log.Info().Str("addr", l.Addr().String()).Msg("Starting metrics server")

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = server.Shutdown(shutdownCtx)
		cancel()
		err = <-serveErr
	}

	if err == nil || errors.Is(err, http.ErrServerClosed) {
		log.Info().Msg("Metrics server stopped")
		return nil
	}
	log.Err(err).Msg("Metrics server failed")
	return err
}
