package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Log          LogConfig          `mapstructure:"log"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`
	WriteTimeout   int    `mapstructure:"write_timeout"`
	MaxHeaderBytes int    `mapstructure:"max_header_bytes"`
}

// DatabaseConfig holds database configuration. Driver "memory" runs the
// whole service against the in-process store, which is only meant for demos.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxOpen  int    `mapstructure:"max_open_conns"`
	MaxIdle  int    `mapstructure:"max_idle_conns"`
}

// CacheConfig holds Redis configuration, used for the payment session cache,
// webhook event dedup and the redis queue.
type CacheConfig struct {
	Type       string        `mapstructure:"type"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	DedupTTL   time.Duration `mapstructure:"dedup_ttl"`
}

type QueueConfig struct {
	Type        string `mapstructure:"type"`
	BufferSize  int    `mapstructure:"buffer_size"`
	Workers     int    `mapstructure:"workers"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// PaymentConfig describes the hosted-checkout gateway.
type PaymentConfig struct {
	Provider       string        `mapstructure:"provider"`
	SecretKey      string        `mapstructure:"secret_key"`
	PublishableKey string        `mapstructure:"publishable_key"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	APIURL         string        `mapstructure:"api_url"`
	SuccessURL     string        `mapstructure:"success_url"`
	CancelURL      string        `mapstructure:"cancel_url"`
	Currency       string        `mapstructure:"currency"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type RegistrationConfig struct {
	PendingTTL         time.Duration `mapstructure:"pending_ttl"`
	MaxConflictRetries int           `mapstructure:"max_conflict_retries"`
}

type SweeperConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

var config *Config

// Init initializes the configuration
func Init() {
	config = &Config{}

	setDefaults()

	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
}

// Get returns the global configuration
func Get() *Config {
	if config == nil {
		Init()
	}
	return config
}

func setDefaults() {
	viper.SetDefault("app.name", "course-checkout")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15)
	viper.SetDefault("server.write_timeout", 15)
	viper.SetDefault("server.max_header_bytes", 1048576)

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "course_checkout")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)

	viper.SetDefault("cache.type", "redis")
	viper.SetDefault("cache.host", "localhost")
	viper.SetDefault("cache.port", 6379)
	viper.SetDefault("cache.password", "")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.pool_size", 20)
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.session_ttl", "24h")
	viper.SetDefault("cache.dedup_ttl", "72h")

	viper.SetDefault("queue.type", "memory")
	viper.SetDefault("queue.buffer_size", 1000)
	viper.SetDefault("queue.workers", 3)
	viper.SetDefault("queue.max_attempts", 5)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("payment.provider", "fake")
	viper.SetDefault("payment.success_url", "http://localhost:8080/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	viper.SetDefault("payment.cancel_url", "http://localhost:8080/checkout/cancel")
	viper.SetDefault("payment.currency", "usd")
	// Stripe refuses checkout sessions that expire sooner than 30 minutes.
	viper.SetDefault("payment.session_ttl", "30m")
	viper.SetDefault("payment.request_timeout", "10s")
	viper.SetDefault("payment.retry.max_retries", 3)
	viper.SetDefault("payment.retry.initial_interval", "200ms")
	viper.SetDefault("payment.retry.max_interval", "2s")

	viper.SetDefault("registration.pending_ttl", "15m")
	viper.SetDefault("registration.max_conflict_retries", 5)

	viper.SetDefault("sweeper.enabled", true)
	viper.SetDefault("sweeper.interval", "1m")
	viper.SetDefault("sweeper.batch_size", 100)
	viper.SetDefault("sweeper.poll_timeout", "5s")
}
