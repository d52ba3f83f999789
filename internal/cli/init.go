// Package cli holds the bootstrap shared by cmd/profitshare and
// cmd/profitshare-worker: env loading, logging, configuration and wiring the
// backend, AMQP client and report service together.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"profitshare/internal/amqp"
	"profitshare/internal/backend"
	"profitshare/internal/config"
	applog "profitshare/internal/log"
	"profitshare/internal/services"
)

// LoadEnvFile loads .env for local development. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the component logger at the configured level and makes
// it the slog default. An unknown level falls back to info.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	c := applog.DefaultConfig()
	c.Component = component
	if cfg != nil {
		if level, err := config.ParseLevel(cfg.LogLevel); err == nil {
			c.Level = level
		}
	}
	logger := applog.New(c)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig reads the environment into a validated Config.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// App is a loaded report service with the resources behind it.
type App struct {
	Config  *config.Config
	Backend *backend.BackendResult
	Service *services.ReportService
	// AMQP is nil when no broker is configured.
	AMQP *amqp.Client
}

// OpenApp creates the backend, connects to AMQP when AMQP_URL is set and
// loads the report service. A broker that cannot be reached is logged and
// skipped; the service then runs without publishing.
func OpenApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	app := &App{Config: cfg, Backend: result}
	opts := services.Options{SettingsDebounce: cfg.SettingsDebounce}
	if cfg.AMQPURL != "" {
		amqpLogger := logger.WithComponent(applog.ComponentAMQP)
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRequestQueue, cfg.AMQPAppliedQueue)
		if err != nil {
			amqpLogger.LogError(ctx, "Failed to initialize AMQP client, continuing without messaging",
				err, applog.ErrorTypeNetwork, applog.OpStartup, nil)
		} else {
			app.AMQP = client
			opts.Publisher = client
			amqpLogger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"request_queue", cfg.AMQPRequestQueue,
				"applied_queue", cfg.AMQPAppliedQueue)
		}
	}

	app.Service = services.NewReportService(result.Reports, result.Settings, opts)
	if err := app.Service.Load(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

// Close flushes pending settings, closes the AMQP client and then the backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Service != nil {
		// the service closes the publisher it was given
		if err := a.Service.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	return errors.Join(errs...)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
