package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	pkgconfig "pondflow/pkg/config"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// PaymentConfig holds the gateway settings.
type PaymentConfig struct {
	BaseURL      string `yaml:"base_url"`
	MerchantCode string `yaml:"merchant_code"`
	SecretKey    string `yaml:"secret_key"`
	ReturnURL    string `yaml:"return_url"`
	TimeoutMs    int    `yaml:"timeout_ms"`
}

func (c PaymentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// WorkflowConfig tunes project creation. Empty task templates fall back to
// the workflow defaults.
type WorkflowConfig struct {
	DepositPercent int      `yaml:"deposit_percent"`
	TaskTemplates  []string `yaml:"task_templates"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// OutboxConfig tunes the event dispatcher.
type OutboxConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

func (c OutboxConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ConsumerConfig tunes the payment.result consumer.
type ConsumerConfig struct {
	Enabled    bool  `yaml:"enabled"`
	MaxRetries int64 `yaml:"max_retries"`
	DedupTTLMs int   `yaml:"dedup_ttl_ms"`
}

func (c ConsumerConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMs) * time.Millisecond
}

type Config struct {
	Env      string                 `yaml:"-"`
	Server   pkgconfig.ServerConfig `yaml:"server"`
	DB       pkgconfig.DBConfig     `yaml:"db"`
	MQ       pkgconfig.MQConfig     `yaml:"mq"`
	Redis    pkgconfig.RedisConfig  `yaml:"redis"`
	JWT      pkgconfig.JWTConfig    `yaml:"jwt"`
	Payment  PaymentConfig          `yaml:"payment"`
	Workflow WorkflowConfig         `yaml:"workflow"`
	Storage  StorageConfig          `yaml:"storage"`
	Outbox   OutboxConfig           `yaml:"outbox"`
	Consumer ConsumerConfig         `yaml:"consumer"`
}

// Load reads config/base.yaml merged with config/<env>.yaml, then applies
// environment overrides. env defaults to CONFIG_ENV, then "local".
func Load(env, dir string) (*Config, error) {
	if env == "" {
		env = pkgconfig.GetConfigEnv()
	}

	var cfg Config
	if err := pkgconfig.LoadInto(env, dir, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	overridePaymentFromEnv(&cfg.Payment)
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overridePaymentFromEnv(cfg *PaymentConfig) {
	if v := os.Getenv("PAYMENT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PAYMENT_SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("PAYMENT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutMs = ms
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	if c.JWT.TTLHours <= 0 {
		c.JWT.TTLHours = 24
	}
	if c.Payment.TimeoutMs <= 0 {
		c.Payment.TimeoutMs = 5000
	}
	if c.Workflow.DepositPercent <= 0 {
		c.Workflow.DepositPercent = 30
	}
	if c.Outbox.IntervalMs <= 0 {
		c.Outbox.IntervalMs = 1000
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.Consumer.MaxRetries <= 0 {
		c.Consumer.MaxRetries = 5
	}
	if c.Consumer.DedupTTLMs <= 0 {
		c.Consumer.DedupTTLMs = int((24 * time.Hour).Milliseconds())
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Payment.SecretKey == "" {
		return fmt.Errorf("payment.secret_key is required")
	}
	if c.Workflow.DepositPercent > 100 {
		return fmt.Errorf("workflow.deposit_percent must be at most 100, got %d", c.Workflow.DepositPercent)
	}
	return nil
}

// JWTTTL is the token lifetime.
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWT.TTLHours) * time.Hour
}
