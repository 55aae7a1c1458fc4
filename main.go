package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tournevent/dhlparcel/internal/server"
	"github.com/tournevent/dhlparcel/internal/telemetry"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "dhlparcel",
	Short:         "DHL Parcel UK client - shipments, labels and a small HTTP bridge",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP bridge",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.WithoutCancel(ctx))
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	app, err := initDHL(ctx, cfg, logger, tracer, metrics)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("Starting DHL Parcel bridge",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Bool("sandbox", cfg.DHLSandbox),
		zap.String("token_store", cfg.TokenStore),
	)

	srv := server.New(server.Config{
		Port:          cfg.Port,
		LabelDir:      cfg.LabelDir,
		PickupAccount: cfg.DHLPickupAccount,
	}, app.Client, app.Auth, logger, prometheus.DefaultGatherer)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
