// Package config loads the service configuration from YAML with environment
// expansion.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvDevelopment relaxes the payment credential requirement.
const EnvDevelopment = "development"

type Config struct {
	App        AppConfig        `yaml:"app"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Email      EmailConfig      `yaml:"email"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Security   SecurityConfig   `yaml:"security"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Workers    WorkersConfig    `yaml:"workers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	SlowRequestMs     int           `yaml:"slow_request_ms"`
}

type DatabaseConfig struct {
	Path        string `yaml:"path"`
	SlowQueryMs int    `yaml:"slow_query_ms"`
}

// RedisConfig selects the login session backend; sessions stay in memory
// when Enabled is false.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type StripeConfig struct {
	LiveSecretKey     string        `yaml:"live_secret_key"`
	TestSecretKey     string        `yaml:"test_secret_key"`
	LiveWebhookSecret string        `yaml:"live_webhook_secret"`
	TestWebhookSecret string        `yaml:"test_webhook_secret"`
	SuccessURL        string        `yaml:"success_url"`
	CancelURL         string        `yaml:"cancel_url"`
	Currency          string        `yaml:"currency"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// EmailConfig configures confirmation email; an empty API key selects the
// no-op sender.
type EmailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	From         string `yaml:"from"`
	ReplyTo      string `yaml:"reply_to"`
}

// AMQPConfig configures purchase event publishing; disabled when URL is empty.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type SecurityConfig struct {
	// CSRFKey is hex encoded and must decode to 32 bytes.
	CSRFKey           string   `yaml:"csrf_key"`
	OverlaySigningKey string   `yaml:"overlay_signing_key"`
	SecureCookies     bool     `yaml:"secure_cookies"`
	TrustedOrigins    []string `yaml:"trusted_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type WorkersConfig struct {
	OutboxInterval          time.Duration `yaml:"outbox_interval"`
	SimulationSweepInterval time.Duration `yaml:"simulation_sweep_interval"`
	NotificationTimeout     time.Duration `yaml:"notification_timeout"`
}

// Load reads .env (when present) and the YAML file at configPath, expands
// ${VARS}, applies defaults and validates.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if len(c.Security.OverlaySigningKey) < 32 {
		return errors.New("security.overlay_signing_key must be at least 32 bytes")
	}
	if _, err := c.CSRFKey(); err != nil {
		return err
	}
	if c.Stripe.LiveSecretKey == "" && c.App.Environment != EnvDevelopment {
		return errors.New("stripe.live_secret_key is required outside development")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}
	return nil
}

// CSRFKey decodes the CSRF secret.
func (c *Config) CSRFKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Security.CSRFKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("security.csrf_key must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "studio"
	}
	if c.App.Environment == "" {
		c.App.Environment = "production"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadHeaderTimeout == 0 {
		c.HTTP.ReadHeaderTimeout = 5 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 2 * time.Minute
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if c.HTTP.SlowRequestMs == 0 {
		c.HTTP.SlowRequestMs = 200
	}
	if c.Database.SlowQueryMs == 0 {
		c.Database.SlowQueryMs = 100
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "nzd"
	}
	if c.Stripe.RequestTimeout == 0 {
		c.Stripe.RequestTimeout = 10 * time.Second
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "studio.events"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Workers.OutboxInterval == 0 {
		c.Workers.OutboxInterval = 30 * time.Second
	}
	if c.Workers.SimulationSweepInterval == 0 {
		c.Workers.SimulationSweepInterval = 5 * time.Minute
	}
	if c.Workers.NotificationTimeout == 0 {
		c.Workers.NotificationTimeout = 30 * time.Second
	}
}
