// oauth1-server runs the OAuth 1.0a out-of-band authorization server.
// Configuration is read from OAUTH1_ environment variables and an optional
// .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	oauth1 "github.com/giantswarm/oauth1-oob"
	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/internal/logging"
	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/server"
	"github.com/giantswarm/oauth1-oob/storage/memory"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := oauth1.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("oauth1-server starting",
		slog.String("version", Version),
		slog.String("listen_addr", cfg.ListenAddr),
		slog.Bool("tls", cfg.TLSEnabled),
		slog.Bool("force_https", cfg.ForceHTTPS))

	srv, shutdown, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	tlsFiles, useTLS, err := cfg.ResolveTLSFiles()
	if err != nil {
		return err
	}
	if useTLS {
		logger.Info("Loaded certificates", slog.String("cert", tlsFiles.CertFile), slog.String("key", tlsFiles.KeyFile))
	} else {
		logger.Warn("TLS disabled; PLAINTEXT signatures and token secrets travel unencrypted unless a proxy terminates TLS")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           oauth1.NewHandler(srv, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if useTLS {
			err = httpServer.ListenAndServeTLS(tlsFiles.CertFile, tlsFiles.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	// Shutdown when context is cancelled.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildServer wires storage, security and instrumentation into a server.
// The returned func releases background resources.
func buildServer(cfg *oauth1.Config, logger *slog.Logger) (*server.Server, func(), error) {
	serverCfg := cfg.ServerConfig()

	engine, err := cfg.SignatureEngine()
	if err != nil {
		return nil, nil, err
	}

	// server.New applies the configured window and retention
	guard := memory.NewReplayGuard()
	guard.SetLogger(logger)

	store := memory.New()
	store.SetLogger(logger)

	srv, err := server.New(store, guard, engine, serverCfg, logger)
	if err != nil {
		store.Stop()
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}

	cleanups := []func(){store.Stop}
	shutdown := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	enc, err := cfg.Encryptor()
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	srv.SetEncryptor(enc)

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceVersion:  Version,
		Enabled:         cfg.MetricsEnabled,
		MetricsExporter: metricsExporter(cfg.MetricsEnabled),
	})
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("initializing instrumentation: %w", err)
	}
	cleanups = append(cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	})
	srv.SetInstrumentation(inst)

	auditor := security.NewAuditor(logger, cfg.AuditLogging)
	auditor.SetInstrumentation(inst)
	srv.SetAuditor(auditor)

	if cfg.RateLimit > 0 {
		rl := security.NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst, logger)
		cleanups = append(cleanups, rl.Stop)
		srv.SetRateLimiter(rl)
	}

	return srv, shutdown, nil
}

func metricsExporter(enabled bool) string {
	if enabled {
		return instrumentation.MetricsExporterPrometheus
	}
	return instrumentation.MetricsExporterNone
}
