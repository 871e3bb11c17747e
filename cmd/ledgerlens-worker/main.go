package main

import (
	"context"
	"os"
	"time"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/backend"
	"ledgerlens/internal/cli"
	"ledgerlens/internal/config"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/services"
	gsheet "ledgerlens/internal/sheets/google"
	"ledgerlens/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		ledgerlog.New(ledgerlog.DefaultConfig()).Warn("Ignoring .env file", "error", err)
	}

	logger := cli.SetupLogger(ledgerlog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting ledgerlens-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	upstreamCfg, err := backend.UpstreamFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid upstream configuration", "error", err)
		os.Exit(1)
	}
	upstream, err := backend.NewFactory(logger.WithComponent(ledgerlog.ComponentBackend).Logger).
		CreateBackend(context.Background(), upstreamCfg)
	if err != nil {
		logger.Error("Failed to initialize upstream", "error", err, ledgerlog.FieldBackend, cfg.UpstreamBackend)
		os.Exit(1)
	}
	defer upstream.Close()

	exporter, err := newExporter(cfg, upstream)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", "error", err)
		os.Exit(1)
	}

	var (
		amqpClient *amqp.Client
		publisher  services.SnapshotPublisher
		consumer   worker.RequestConsumer
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher, consumer = amqpClient, amqpClient
	} else {
		logger.Info("AMQP disabled, running periodic sync only")
	}

	processor := services.NewSyncProcessor(upstream.Source, store, publisher, exporter, services.SyncProcessorConfig{
		PollInterval: cfg.RefreshInterval,
	})
	w := worker.NewRefreshWorker(processor, consumer)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

// newExporter returns the sheet monthly totals are written to, if any. A
// sheets upstream exports to its own spreadsheet.
func newExporter(cfg *config.Config, upstream *backend.BackendResult) (services.MonthlyExporter, error) {
	if cfg.GoogleReportSheetName == "" {
		return nil, nil
	}
	if c, ok := upstream.Source.(*gsheet.Client); ok {
		return c, nil
	}
	if cfg.GoogleSpreadsheetID == "" {
		return nil, nil
	}
	return gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		ExpensesSheet: cfg.GoogleSheetName,
		ReportSheet:   cfg.GoogleReportSheetName,
	})
}
