package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kepuz/livesocket/config"
	"github.com/kepuz/livesocket/debug"
	"github.com/kepuz/livesocket/socket"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootFlags struct {
	url         string
	metricsAddr string
}

func main() {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "livesocket",
		Short: "Persistent event-multiplexed WebSocket client",
		Long: `livesocket keeps a WebSocket connection to a server alive, queues
outbound events while it is down and routes inbound events by name.

Settings come from LIVESOCKET_* environment variables; --url overrides
LIVESOCKET_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "server URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")

	rootCmd.AddCommand(
		listenCmd(&flags),
		sendCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// session is one configured client plus its optional metrics endpoint.
type session struct {
	client   *socket.Client
	logger   *slog.Logger
	registry *prometheus.Registry
	server   *http.Server
}

func newSession(flags *rootFlags) (*session, error) {
	vars := env.ToMap(os.Environ())
	if flags.url != "" {
		vars["LIVESOCKET_URL"] = flags.url
	}
	cfg, err := config.LoadFrom(vars)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		debug.Enable()
	}
	logger := debug.Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := socket.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := append(cfg.ClientOptions(), socket.WithLogger(logger), socket.WithMetrics(metrics))
	s := &session{
		client:   socket.NewClient(cfg.TransportFactory(logger), opts...),
		logger:   logger,
		registry: reg,
	}

	if flags.metricsAddr != "" {
		s.server = &http.Server{
			Addr:              flags.metricsAddr,
			Handler:           newRouter(reg, s.client),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", flags.metricsAddr, "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", flags.metricsAddr)
	}
	return s, nil
}

func (s *session) close() {
	s.client.Disconnect()
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown", "error", err)
	}
}

func newRouter(reg *prometheus.Registry, c *socket.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := c.State()
		if state != socket.StateOpen {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = fmt.Fprintln(w, state)
	})
	return r
}
