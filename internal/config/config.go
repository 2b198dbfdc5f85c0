package config

import (
	"fmt"

	pkgconfig "github.com/codewithrichardb/ecommerce-backend/pkg/config"
)

// Config holds all configuration for the recovery service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"RECOVERY_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"RECOVERY_DB_NAME" envDefault:"recovery_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis (rehydrated live carts)
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Auth
	JWTSecret      string   `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Storefront identity used in reminder emails and recovery links.
	StoreName string `env:"STORE_NAME" envDefault:"Our Store"`
	BaseURL   string `env:"STORE_BASE_URL" envDefault:"http://localhost:3000"`

	// Mail provider. When MAIL_USE_MOCK is set the service logs reminders
	// instead of dispatching them, which is the default for development.
	MailAPIBaseURL string `env:"MAIL_API_BASE_URL" envDefault:"https://api.mail.example.com"`
	MailAPIKey     string `env:"MAIL_API_KEY" envDefault:""`
	MailFrom       string `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@example.com"`
	MailUseMock    bool   `env:"MAIL_USE_MOCK" envDefault:"true"`

	// Reminder sweep
	SweepInterval int `env:"REMINDER_SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	SweepBatch    int `env:"REMINDER_SWEEP_BATCH_SIZE" envDefault:"100"`

	// Pprof debug endpoints are only reachable from these networks.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load recovery config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SweepInterval < 1 {
		return fmt.Errorf("invalid sweep interval: %d", c.SweepInterval)
	}
	if c.SweepBatch < 1 {
		return fmt.Errorf("invalid sweep batch size: %d", c.SweepBatch)
	}
	if !c.MailUseMock && c.MailAPIKey == "" {
		return fmt.Errorf("MAIL_API_KEY is required when MAIL_USE_MOCK is false")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
