package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/export"
	"fintrack/internal/ledger"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting fintrack-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appender, err := export.NewSheetAppender(ctx,
		cfg.GoogleSpreadsheetID, cfg.GoogleSheetName,
		cfg.GoogleCredentialsFile, cfg.GoogleCredentialsJSON)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets appender", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets appender initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	handler := func(event *ledger.Event) error {
		appendCtx, cancel := context.WithTimeout(ctx, cfg.ConsumeTimeout)
		defer cancel()
		return appender.AppendEvent(appendCtx, event)
	}

	err = amqpClient.ConsumeLedgerEvents(ctx, handler)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	// Give in-flight deliveries a moment to settle before closing.
	time.Sleep(500 * time.Millisecond)
	logger.Info("Worker shutdown complete")
}
