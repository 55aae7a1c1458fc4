package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Token store backends.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DHL Parcel UK
	DHLClientID       string        `envconfig:"DHL_CLIENT_ID"`
	DHLClientSecret   string        `envconfig:"DHL_CLIENT_SECRET"`
	DHLSandbox        bool          `envconfig:"DHL_SANDBOX" default:"true"`
	DHLBaseURL        string        `envconfig:"DHL_BASE_URL"`
	DHLPickupAccount  string        `envconfig:"DHL_PICKUP_ACCOUNT"`
	DHLRequestTimeout time.Duration `envconfig:"DHL_REQUEST_TIMEOUT" default:"60s"`
	DHLAuthTimeout    time.Duration `envconfig:"DHL_AUTH_TIMEOUT" default:"30s"`
	LabelDir          string        `envconfig:"LABEL_DIR"`

	// Token cache
	TokenStore    string `envconfig:"TOKEN_STORE" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"dhlparcel"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot. Credentials are not checked here;
// the authentication service reports them when it is built.
func (c *Config) Validate() error {
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreRedis:
	default:
		return fmt.Errorf("invalid TOKEN_STORE %q: want %q or %q", c.TokenStore, TokenStoreMemory, TokenStoreRedis)
	}
	if c.DHLRequestTimeout <= 0 {
		return fmt.Errorf("invalid DHL_REQUEST_TIMEOUT %s: must be positive", c.DHLRequestTimeout)
	}
	if c.DHLAuthTimeout <= 0 {
		return fmt.Errorf("invalid DHL_AUTH_TIMEOUT %s: must be positive", c.DHLAuthTimeout)
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("dhl.sandbox", c.DHLSandbox),
		attribute.String("dhl.token_store", c.TokenStore),
	}
}
