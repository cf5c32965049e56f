package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omochice/rtm-client/internal/api"
	"github.com/omochice/rtm-client/internal/config"
	"github.com/omochice/rtm-client/internal/rtm"
	"github.com/omochice/rtm-client/internal/transport"
	"github.com/omochice/rtm-client/internal/transport/dialers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	directURL := flag.String("url", "", "Websocket URL to connect to, skipping the rtm.connect bootstrap")
	apiURL := flag.String("api", "", "Base URL of the web API (overrides config)")
	token := flag.String("token", "", "API token (overrides config)")
	backend := flag.String("transport", "", fmt.Sprintf("Transport backend, one of %v (overrides config)", dialers.Names()))
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}
	if *apiURL != "" {
		cfg.API.URL = *apiURL
	}
	if *token != "" {
		cfg.API.Token = *token
	}
	if *backend != "" {
		cfg.Transport.Backend = *backend
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *directURL, logger); err != nil {
		logger.Error("client exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, directURL string, logger *slog.Logger) error {
	session, err := resolveSession(ctx, cfg, directURL, logger)
	if err != nil {
		return err
	}

	dialer, err := dialers.New(cfg.Transport.Backend, transport.Options{ReadLimit: cfg.Transport.ReadLimit})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := rtm.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client := rtm.New(session,
		rtm.WithDialer(dialer),
		rtm.WithLogger(logger),
		rtm.WithMetrics(metrics),
		rtm.WithHandshakeTimeout(cfg.Client.HandshakeTimeout),
		rtm.WithDiagnosticRate(cfg.Client.DiagnosticInterval, cfg.Client.DiagnosticBurst),
	)
	watch(client, logger)

	logger.Info("starting client", "transport", cfg.Transport.Backend, "host", session.Host())
	if err := client.Start(ctx); err != nil {
		return err
	}

	<-client.Done()
	return client.Err()
}

func resolveSession(ctx context.Context, cfg *config.Config, directURL string, logger *slog.Logger) (rtm.Session, error) {
	if directURL != "" {
		return rtm.NewSession(directURL)
	}
	if cfg.API.Token == "" {
		return rtm.Session{}, errors.New("a token is required to call rtm.connect (set -token or RTM_TOKEN), or pass -url")
	}
	apiClient := api.New(cfg.API.URL, cfg.API.Token,
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithLogger(logger),
	)
	return apiClient.ConnectRTM(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
