package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/omochice/rtm-client/internal/config"
	"github.com/omochice/rtm-client/internal/server"
	"github.com/omochice/rtm-client/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "Address to listen on (overrides config)")
	token := flag.String("token", "", "Token required by rtm.connect (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *token != "" {
		cfg.Server.Token = *token
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	srv := server.New(cfg.Server.Addr, server.WithToken(cfg.Server.Token), server.WithLogger(logger))
	if err := srv.Start(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("bootstrap endpoint ready", "url", srv.URL()+server.ConnectPath)
	logger.Info("type one JSON event per line; '!raw <text>' sends text verbatim, '!close' closes every peer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Error("error reading input", "error", err)
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("received signal, shutting down")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			feed(srv, strings.TrimSpace(line), logger)
		}
	}

	srv.Stop()
	logger.Info("server stopped")
}

func feed(srv *server.Server, line string, logger *slog.Logger) {
	switch {
	case line == "":
		return
	case line == "!close":
		logger.Info("closing peers", "peers", srv.CloseAll())
	case strings.HasPrefix(line, "!raw "):
		logger.Info("published raw frame", "peers", srv.Publish([]byte(strings.TrimPrefix(line, "!raw "))))
	default:
		ev, err := protocol.Decode([]byte(line))
		if err != nil {
			logger.Warn("invalid event, use !raw to send it anyway", "error", err)
			return
		}
		n, err := srv.Broadcast(ev)
		if err != nil {
			logger.Warn("failed to broadcast", "error", err)
			return
		}
		logger.Info("broadcast event", "kind", ev.Kind.String(), "peers", n)
	}
}
