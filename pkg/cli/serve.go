// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-core-stack/library-client/pkg/client"
	"github.com/go-core-stack/library-client/pkg/proxy"
	"github.com/go-core-stack/library-client/pkg/transport"
)

const metricsPath = "/metrics"

func serveCmd(a *app) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local gateway that signs and authorizes forwarded calls",
		Long: `Listens on LIBRARY_LISTEN_ADDR and forwards every request to the library API
with fresh security headers and the stored bearer token. Inbound
Authorization and signature headers are discarded. When LIBRARY_METRICS is
true, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listenAddr != "" {
				a.cfg.ListenAddr = listenAddr
			}

			handler, err := a.gatewayHandler()
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:         a.cfg.ListenAddr,
				Handler:      handler,
				ReadTimeout:  a.cfg.ServerReadTimeout,
				WriteTimeout: a.cfg.ServerWriteTimeout,
				IdleTimeout:  a.cfg.ServerIdleTimeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				log.Info().
					Str("listen_addr", a.cfg.ListenAddr).
					Str("upstream", a.cfg.APIURL.String()).
					Bool("metrics", a.cfg.Metrics).
					Msg("starting library gateway")
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			return waitForShutdown(cmd.Context(), server, a.cfg.GracefulShutdownTimeout, serveErr)
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides LIBRARY_LISTEN_ADDR)")
	return cmd
}

// gatewayHandler builds the proxy and, when metrics are enabled, mounts it
// next to the metrics endpoint.
func (a *app) gatewayHandler() (http.Handler, error) {
	var opts []client.Option
	var reg *prometheus.Registry
	if a.cfg.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, client.WithMetrics(transport.NewMetrics(reg)))
	}

	c, err := a.newClient(opts...)
	if err != nil {
		return nil, err
	}
	gateway, err := proxy.New(c)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return gateway, nil
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", gateway)
	return mux, nil
}

// waitForShutdown blocks until ctx is done or the server fails, then drains
// in-flight requests for at most timeout.
func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration, serveErr <-chan error) error {
	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			log.Error().Err(err).Msg("gateway exited unexpectedly")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down library gateway")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("gateway stopped")
	return nil
}
