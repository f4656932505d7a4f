package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host         string `mapstructure:"host" envconfig:"DB_HOST"`
	Port         int    `mapstructure:"port" envconfig:"DB_PORT"`
	User         string `mapstructure:"user" envconfig:"DB_USER"`
	Password     string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name         string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode      string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
	MaxOpenConns int    `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" envconfig:"SERVER_PORT"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MetricsPort is the worker's standalone metrics/health listener.
	MetricsPort int `mapstructure:"metrics_port" envconfig:"METRICS_PORT"`
}

type QueueConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"QUEUE_BATCH_SIZE"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"QUEUE_POLL_INTERVAL"`
	RetentionDays int           `mapstructure:"retention_days" envconfig:"QUEUE_RETENTION_DAYS"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
	Enabled  bool   `mapstructure:"enabled" envconfig:"SMTP_ENABLED"`
}

type CarrierConfig struct {
	LegacyBaseURL string        `mapstructure:"legacy_base_url" envconfig:"CARRIER_LEGACY_BASE_URL"`
	V2BaseURL     string        `mapstructure:"v2_base_url" envconfig:"CARRIER_V2_BASE_URL"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type InventoryConfig struct {
	LowStockThreshold      int `mapstructure:"low_stock_threshold"`
	CriticalStockThreshold int `mapstructure:"critical_stock_threshold"`
}

type RateLimitConfig struct {
	RequestsPerSecond        float64 `mapstructure:"requests_per_second"`
	Burst                    int     `mapstructure:"burst"`
	WebhookRequestsPerSecond float64 `mapstructure:"webhook_requests_per_second"`
	WebhookBurst             int     `mapstructure:"webhook_burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Carrier   CarrierConfig   `mapstructure:"carrier"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	JWT       struct {
		Secret string `mapstructure:"secret" envconfig:"JWT_SECRET"`
	} `mapstructure:"jwt"`
	// EncryptionKey is the hex-encoded 32-byte AES key sealing
	// integration credentials at rest.
	EncryptionKey string `mapstructure:"encryption_key" envconfig:"ENCRYPTION_KEY"`
	LogLevel      string `mapstructure:"log_level" envconfig:"LOG_LEVEL"`
	LogConsole    bool   `mapstructure:"log_console" envconfig:"LOG_CONSOLE"`
}

// LoadConfig reads config.yml from the usual locations, then lets
// environment variables override individual values. Missing file is
// fine when the environment carries everything.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	config := defaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Server.MetricsPort = 9090
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxOpenConns = 25
	cfg.Database.MaxIdleConns = 5
	cfg.Queue.BatchSize = 10
	cfg.Queue.PollInterval = 5 * time.Second
	cfg.Queue.RetentionDays = 30
	cfg.Carrier.Timeout = 30 * time.Second
	cfg.RateLimit.RequestsPerSecond = 50
	cfg.RateLimit.Burst = 100
	cfg.RateLimit.WebhookRequestsPerSecond = 25
	cfg.RateLimit.WebhookBurst = 50
	cfg.LogLevel = "info"
	return cfg
}
