package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of config.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port                   int   `mapstructure:"port"`
	WorkerID               int64 `mapstructure:"worker_id"` // snowflake worker, unique per instance
	ShutdownTimeoutSeconds int   `mapstructure:"shutdown_timeout_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTIssuer          string `mapstructure:"jwt_issuer"`
	AccessTokenMinutes int    `mapstructure:"access_token_minutes"`
	APIKey             string `mapstructure:"api_key"`
}

// AccessTokenTTL returns the bearer token lifetime, defaulting to one hour.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

type BusinessConfig struct {
	MaxRetryCount         int `mapstructure:"max_retry_count"`
	SettlementLockSeconds int `mapstructure:"settlement_lock_seconds"`
}

// SettlementLockTTL returns how long a settlement lock may be held before it expires.
func (b BusinessConfig) SettlementLockTTL() time.Duration {
	if b.SettlementLockSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.SettlementLockSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown window for the HTTP server.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// Load reads the YAML file at configPath. Any key may be overridden through
// CARBON_-prefixed environment variables, e.g. CARBON_MYSQL_HOST.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CARBON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set")
	}
	if c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set")
	}
	if c.Business.MaxRetryCount <= 0 {
		c.Business.MaxRetryCount = 3
	}
	return nil
}
