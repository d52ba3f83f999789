package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"profitshare/internal/cache"
	"profitshare/internal/cli"
	applog "profitshare/internal/log"
	"profitshare/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting profitshare-worker", applog.FieldBackend, cfg.DataBackend)

	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the worker")
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	app, err := cli.OpenApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			logger.LogError(shutdownCtx, "Shutdown incomplete", err, applog.ErrorTypeInternal, applog.OpShutdown, nil)
		}
		logger.Info("Worker shutdown complete")
	}()
	if app.AMQP == nil {
		return errors.New("AMQP broker unavailable")
	}

	w := worker.NewDistributionWorker(app.Service)
	caches := cache.NewManager()
	if app.Backend.Cache != nil {
		w.WithReportCache(app.Backend.Cache)
		caches.Register(app.Backend.Cache.Cleaner())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.AMQP.ConsumeDistributionRequests(gctx, w.HandleRequest)
	})
	g.Go(func() error {
		caches.StartCleanup(gctx, cleanupInterval(cfg.ReportCacheTTL))
		<-gctx.Done()
		caches.Stop()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutdown signal received")
		return nil
	}
	return err
}

func cleanupInterval(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0 || ttl > 10*time.Minute:
		return 5 * time.Minute
	case ttl < 2*time.Second:
		return time.Second
	default:
		return ttl / 2
	}
}
