package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tournevent/dhlparcel/internal/config"
	"github.com/tournevent/dhlparcel/internal/telemetry"
	"github.com/tournevent/dhlparcel/pkg/dhl"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
}

// dhlApp bundles the wired DHL services and whatever must be closed with them.
type dhlApp struct {
	Auth    *dhl.AuthenticationService
	Client  *dhl.Client
	Labels  *dhl.LabelPersister
	closers []func() error
}

// Close releases the token store connection.
func (a *dhlApp) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func initDHL(ctx context.Context, cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer, metrics dhl.MetricsRecorder) (*dhlApp, error) {
	opts := dhl.Options{Logger: logger, Tracer: tracer, Metrics: metrics}
	app := &dhlApp{}

	store, closeStore, err := initTokenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	auth, err := dhl.NewAuthenticationService(dhl.AuthConfig{
		ClientID:     cfg.DHLClientID,
		ClientSecret: cfg.DHLClientSecret,
		Sandbox:      cfg.DHLSandbox,
		BaseURL:      cfg.DHLBaseURL,
	}, &http.Client{Timeout: cfg.DHLAuthTimeout}, dhl.NewTokenCache(store, dhl.TokenTTL, opts), opts)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Auth = auth
	app.Labels = dhl.NewLabelPersister(cfg.LabelDir, opts)
	app.Client = dhl.New(dhl.Config{
		Sandbox: cfg.DHLSandbox,
		BaseURL: cfg.DHLBaseURL,
		Timeout: cfg.DHLRequestTimeout,
	}, &http.Client{}, auth, app.Labels, opts)

	return app, nil
}

func initTokenStore(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (dhl.TokenStore, func() error, error) {
	if cfg.TokenStore != config.TokenStoreRedis {
		return dhl.NewMemoryTokenStore(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Using Redis token store", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return dhl.NewRedisTokenStore(client), client.Close, nil
}
