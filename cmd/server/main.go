// Command server runs the webhook batch aggregator behind plain
// net/http, for deployments that don't run Caddy.
//
// Usage:
//
//	server -config /etc/alligator/config.yaml -port 8080
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alligator-proxy/alligator/internal/batch"
	"github.com/alligator-proxy/alligator/internal/config"
)

func main() {
	var (
		configPath      = flag.String("config", "", "optional YAML config file")
		port            = flag.Int("port", 0, "HTTP listen port (overrides config/env)")
		deliverMS       = flag.Int("deliver-ms", 0, "sliding-window flush duration in milliseconds")
		embedLimit      = flag.Int("embed-limit", 0, "max embeds per outbound batch")
		webhookEndpoint = flag.String("webhook-endpoint", "", "upstream webhook base URL")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logger.Error("failed to load config file", zap.Error(err))
		os.Exit(1)
	}
	cfg = config.ApplyEnv(cfg)

	if *port != 0 {
		cfg.Port = *port
	}
	if *deliverMS != 0 {
		cfg.DeliverMS = *deliverMS
	}
	if *embedLimit != 0 {
		cfg.EmbedLimit = *embedLimit
	}
	if *webhookEndpoint != "" {
		cfg.WebhookEndpoint = *webhookEndpoint
	}

	deliverer := batch.NewHTTPDeliverer(cfg.WebhookEndpoint)
	engine := batch.NewEngine(time.Duration(cfg.DeliverMS)*time.Millisecond, cfg.EmbedLimit, deliverer, logger)

	mux := http.NewServeMux()
	// request_id_header is a Caddyfile-only directive (see module.go); the
	// standalone binary has no equivalent config surface yet, so it's
	// disabled here.
	mux.Handle("/", batch.NewIngestHandler(engine, logger, ""))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.Int("port", cfg.Port),
			zap.Int("deliver_ms", cfg.DeliverMS),
			zap.Int("embed_limit", cfg.EmbedLimit),
			zap.String("webhook_endpoint", cfg.WebhookEndpoint))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	// Drain outstanding batches after the listener stops accepting new
	// connections, per the Shutdown Coordinator contract.
	engine.Shutdown()

	logger.Info("shutdown complete")
}
