// Command spotd serves live spot detection over HTTP and websocket streams
// and publishes every result to MQTT when a broker is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/spot-tools-mcp/internal/config"
	"github.com/ironsheep/spot-tools-mcp/internal/emitter"
	"github.com/ironsheep/spot-tools-mcp/internal/stream"
)

// Build information, set via ldflags
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting spotd",
		"version", Version,
		"build_time", BuildTime,
		"commit", GitCommit,
		"config", *configPath,
		"debug", *debug,
	)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var publisher stream.Publisher = emitter.Nop{}
	var mqtt *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mqtt = emitter.NewMQTTEmitter(cfg.MQTT)
		// A broker that is down at startup is not fatal; the client keeps
		// retrying and results are counted as publish errors meanwhile.
		if err := mqtt.Connect(ctx); err != nil {
			slog.Warn("mqtt broker unavailable, continuing", "error", err)
		}
		publisher = mqtt
	} else {
		slog.Info("no mqtt broker configured, results are not published")
	}

	svc := stream.NewService(cfg, publisher)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting http server", "listen", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		slog.Error("http server failed", "error", err)
		exitCode = 1
	}
	cancel()

	// Graceful shutdown
	shutdownTimeout := cfg.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	svc.CloseSessions()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		exitCode = 1
	}
	if mqtt != nil {
		mqtt.Disconnect()
	}

	stats := svc.Stats()
	slog.Info("spotd stopped",
		"frames", stats.Frames,
		"spots", stats.Spots,
		"rejected", stats.Rejected,
		"publish_errors", stats.PublishErrors,
	)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
