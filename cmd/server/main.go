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

	"creditengine/internal/app"
	"creditengine/internal/application/handler"
	"creditengine/internal/fairness"
	httpapi "creditengine/internal/http"
	jwttoken "creditengine/internal/jwt_token"
	"creditengine/internal/platform/config"
	"creditengine/internal/platform/httpserver"
	"creditengine/internal/platform/logger"
	"creditengine/internal/platform/metrics"
)

const (
	shutdownTimeout = 15 * time.Second
	auditPartitions = 3
	auditReplicas   = 1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to release resources", "error", err)
		}
	}()

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	router := httpapi.NewRouter(httpapi.Config{
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Logger:    log,
		Metrics:   metrics.New(),
		Checks:    healthChecks(engine),
	}, handler.New(engine.Service, log), fairness.NewHandler(engine.Recorder, log))

	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting credit engine", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if relay := engine.Relay(); relay != nil {
		if err := engine.Producer.EnsureTopic(ctx, auditPartitions, auditReplicas); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		g.Go(func() error {
			log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit relay: %w", err)
			}
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, audit events stay in the outbox")
	}

	return g.Wait()
}

func healthChecks(engine *app.App) map[string]httpapi.Check {
	checks := map[string]httpapi.Check{
		"ml": func(ctx context.Context) error {
			if !engine.Model.IsAvailable(ctx) {
				return errors.New("ml service unavailable")
			}
			return nil
		},
	}
	if engine.DB != nil {
		checks["postgres"] = engine.DB.PingContext
	}
	if engine.Redis != nil {
		checks["redis"] = engine.Redis.Health
	}
	if engine.Producer != nil {
		checks["kafka"] = engine.Producer.Ping
	}
	return checks
}
