package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Gateway       GatewayConfig
	Billing       BillingConfig
	Notify        NotifyConfig
	Filing        FilingConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	AutoMigrate bool
}

// RedisConfig holds Redis connection configuration. Redis is optional;
// an empty URL disables webhook event dedup.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// GatewayConfig holds payment gateway credentials
type GatewayConfig struct {
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
}

// BillingConfig holds pricing and document defaults
type BillingConfig struct {
	Currency             string
	TaxRatePercent       decimal.Decimal
	ProformaValidityDays int
	InvoiceDueDays       int
}

// NotifyConfig holds the outbound notification sink settings. An empty
// SinkURL routes notifications to the log sink.
type NotifyConfig struct {
	SinkURL    string
	SinkSecret string
}

// FilingConfig holds the filing system integration settings. An empty URL
// disables the integration; proforma generation then requires explicit unit
// counts and reminders carry no contact details.
type FilingConfig struct {
	BaseURL string
	APIKey  string
}

// SchedulerConfig holds cron expressions for the sweeper jobs
type SchedulerConfig struct {
	OverdueSweepSchedule   string
	ProformaExpirySchedule string
	ReminderSchedule       string
	SnapshotSchedule       string
	ReminderGraceDays      int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	ServiceName    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Gateway:       loadGatewayConfig(),
		Notify:        loadNotifyConfig(),
		Filing:        loadFilingConfig(),
		Scheduler:     loadSchedulerConfig(),
		Observability: loadObservabilityConfig(),
	}

	billing, err := loadBillingConfig()
	if err != nil {
		return nil, err
	}
	cfg.Billing = billing

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BILLING_HOST", "0.0.0.0"),
		Port:            getEnv("BILLING_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BILLING_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BILLING_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BILLING_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BILLING_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BILLING_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("BILLING_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("BILLING_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("BILLING_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("BILLING_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("BILLING_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("BILLING_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("BILLING_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		AutoMigrate: getEnvBool("BILLING_POSTGRES_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("BILLING_REDIS_URL", ""),
		Password:   getEnv("BILLING_REDIS_PASSWORD", ""),
		DB:         getEnvInt("BILLING_REDIS_DB", 0),
		MaxRetries: getEnvInt("BILLING_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("BILLING_REDIS_POOL_SIZE", 10),
	}
}

func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RazorpayKeyID:         getEnv("BILLING_RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     getEnv("BILLING_RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: getEnv("BILLING_RAZORPAY_WEBHOOK_SECRET", ""),
	}
}

func loadBillingConfig() (BillingConfig, error) {
	rateStr := getEnv("BILLING_TAX_RATE_PERCENT", "18")
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return BillingConfig{}, fmt.Errorf("invalid BILLING_TAX_RATE_PERCENT %q: %w", rateStr, err)
	}

	return BillingConfig{
		Currency:             getEnv("BILLING_CURRENCY", "INR"),
		TaxRatePercent:       rate,
		ProformaValidityDays: getEnvInt("BILLING_PROFORMA_VALIDITY_DAYS", 15),
		InvoiceDueDays:       getEnvInt("BILLING_INVOICE_DUE_DAYS", 30),
	}, nil
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		SinkURL:    getEnv("BILLING_NOTIFY_SINK_URL", ""),
		SinkSecret: getEnv("BILLING_NOTIFY_SINK_SECRET", ""),
	}
}

func loadFilingConfig() FilingConfig {
	return FilingConfig{
		BaseURL: getEnv("BILLING_FILING_BASE_URL", ""),
		APIKey:  getEnv("BILLING_FILING_API_KEY", ""),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		OverdueSweepSchedule:   getEnv("BILLING_OVERDUE_SWEEP_SCHEDULE", "15 1 * * *"),
		ProformaExpirySchedule: getEnv("BILLING_PROFORMA_EXPIRY_SCHEDULE", "30 1 * * *"),
		ReminderSchedule:       getEnv("BILLING_REMINDER_SCHEDULE", "0 9 * * *"),
		SnapshotSchedule:       getEnv("BILLING_SNAPSHOT_SCHEDULE", "0 2 1 * *"),
		ReminderGraceDays:      getEnvInt("BILLING_REMINDER_GRACE_DAYS", 3),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("BILLING_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("BILLING_METRICS_ENABLED", true),
		ServiceName:    getEnv("BILLING_SERVICE_NAME", "billing-server"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Gateway.RazorpayKeyID == "" || c.Gateway.RazorpayKeySecret == "" {
		return fmt.Errorf("razorpay key id and secret are required")
	}

	if c.Billing.TaxRatePercent.IsNegative() {
		return fmt.Errorf("tax rate must not be negative")
	}
	if c.Billing.ProformaValidityDays <= 0 {
		return fmt.Errorf("proforma validity days must be positive")
	}
	if c.Billing.InvoiceDueDays <= 0 {
		return fmt.Errorf("invoice due days must be positive")
	}

	if c.Notify.SinkURL != "" && c.Notify.SinkSecret == "" {
		return fmt.Errorf("notify sink secret is required when sink URL is set")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
