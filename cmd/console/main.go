package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/ouldcheikh/labconsole/internal/batch"
	"github.com/ouldcheikh/labconsole/internal/config"
	"github.com/ouldcheikh/labconsole/internal/handler"
	infraredis "github.com/ouldcheikh/labconsole/internal/infra/redis"
	"github.com/ouldcheikh/labconsole/internal/observability"
	"github.com/ouldcheikh/labconsole/internal/session"
	"github.com/ouldcheikh/labconsole/internal/store"
	"github.com/ouldcheikh/labconsole/internal/transport"
	"github.com/ouldcheikh/labconsole/internal/upstream"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	sessions, err := session.NewStore(rdb, logger)
	if err != nil {
		logger.Fatal("session store initialization failed", zap.Error(err))
	}

	client, err := upstream.NewClient(cfg.UpstreamBaseURL, cfg.RequestTimeout(), sessions, logger)
	if err != nil {
		logger.Fatal("upstream client initialization failed", zap.Error(err))
	}
	client.SetSessionInvalidHandler(func(reason string) {
		sessions.Invalidate(context.Background(), reason)
	})

	metrics := observability.NewMetrics()
	client.SetMetrics(metrics)

	records, err := store.NewAnalysisStore(client, cfg.DefaultPageLimit, logger)
	if err != nil {
		logger.Fatal("analysis store initialization failed", zap.Error(err))
	}
	selection := store.NewSelectionSet()

	dialogs, err := batch.NewRegistry(client, records, selection, logger)
	if err != nil {
		logger.Fatal("dialog registry initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    int(cfg.MaxUploadBytes()) * 2,
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	promHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		promHandler(c.Context())
		return nil
	})

	handler.RegisterHealthRoutes(app, rdb, client)
	if err := handler.RegisterAnalysisRoutes(app, records, client, metrics, cfg.MaxUploadBytes()); err != nil {
		logger.Fatal("analysis routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterBatchRoutes(app, dialogs, selection, records); err != nil {
		logger.Fatal("batch routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterPatientRoutes(app, client, metrics, cfg.MaxUploadBytes()); err != nil {
		logger.Fatal("patient routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterAuthRoutes(app, client, sessions); err != nil {
		logger.Fatal("auth routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("labconsole started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				dialogs.Purge(cfg.DialogIdle())
			}
		}
	})

	group.Go(func() error {
		invalidated := sessions.Subscribe()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case reason := <-invalidated:
				logger.Warn("operator session torn down", zap.String("reason", reason))
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		logger.Fatal("labconsole terminated", zap.Error(err))
	}
}
