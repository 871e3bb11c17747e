package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/backend"
	"ledgerlens/internal/cache"
	"ledgerlens/internal/cli"
	apphttp "ledgerlens/internal/http"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/remote"
	"ledgerlens/internal/services"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		ledgerlog.New(ledgerlog.DefaultConfig()).Warn("Ignoring .env file", "error", err)
	}

	logger := cli.SetupLogger(ledgerlog.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(ledgerlog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, ledgerlog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	// Refresh requests are only queued when a worker can pick them up.
	var publisher services.RefreshPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, refresh requests stay local", "error", err)
		} else {
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	analyticsCfg := services.DefaultAnalyticsConfig()
	analyticsCfg.CacheSize = cfg.CacheSize
	analyticsCfg.CacheTTL = cfg.CacheTTL
	analyticsCfg.Backend = cfg.DataBackend
	analyticsCfg.Logger = logger.WithComponent(ledgerlog.ComponentAnalytics)
	svc := services.NewAnalyticsService(res.Source, publisher, analyticsCfg)

	// Expense writes go to the upstream API that owns the records.
	var expenses apphttp.Expenses
	if cfg.APIBaseURL != "" {
		api, err := remote.New(remote.Config{
			BaseURL:    cfg.APIBaseURL,
			Token:      cfg.APIToken,
			Email:      cfg.APIEmail,
			Password:   cfg.APIPassword,
			MaxRetries: 2,
		})
		if err != nil {
			logger.Warn("Remote API client unavailable, write routes disabled", "error", err)
		} else {
			expenses = services.NewExpenseService(api, svc, logger.WithComponent(ledgerlog.ComponentRemote))
		}
	}

	cacheManager := cache.NewManager(logger.WithComponent(ledgerlog.ComponentCache).Logger)
	cacheManager.Register(svc.Cache())
	cacheManager.StartCleanup(cfg.CacheTTL)

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:         logger.WithComponent(ledgerlog.ComponentHTTP),
		Expenses:       expenses,
		TrustedProxies: cfg.TrustedProxies,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := res.Close(); err != nil {
			logger.Warn("Backend close error", "error", err)
		}
	})

	// Warm the snapshot so the first request does not pay for the load.
	warmCtx, cancelWarm := context.WithTimeout(ctx, 30*time.Second)
	if err := svc.Ready(warmCtx); err != nil {
		logger.Warn("Initial snapshot load failed", "error", err, ledgerlog.FieldBackend, cfg.DataBackend)
	}
	cancelWarm()

	logger.Info("Starting ledgerlens server", "port", cfg.Port, ledgerlog.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
