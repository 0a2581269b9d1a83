// Package config loads the proxy configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/auth"
	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
	"github.com/Sternrassler/marvel-client/pkg/quota"
	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/redis/go-redis/v9"
)

const (
	// EnvPrefix prefixes every variable; "__" separates nested keys.
	EnvPrefix = "MARVEL_"

	// EnvConfigFile names an optional YAML file loaded before the environment.
	EnvConfigFile = "MARVEL_CONFIG_FILE"

	legacyPublicKey  = "marvel_pubkey"
	legacyPrivateKey = "marvel_privkey"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Batch    BatchConfig    `koanf:"batch"`
	Redis    RedisConfig    `koanf:"redis"`
	Quota    QuotaConfig    `koanf:"quota"`
	Logger   LoggerConfig   `koanf:"logger"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"required"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required"`
}

type UpstreamConfig struct {
	BaseURL    string        `koanf:"base_url" validate:"required,url"`
	PublicKey  string        `koanf:"public_key" validate:"required"`
	PrivateKey string        `koanf:"private_key" validate:"required"`
	UserAgent  string        `koanf:"user_agent"`
	Timeout    time.Duration `koanf:"timeout" validate:"required"`
	RateLimit  float64       `koanf:"rate_limit" validate:"min=0"`
}

type BatchConfig struct {
	Size         int `koanf:"size" validate:"min=1,max=100"`
	DefaultLimit int `koanf:"default_limit" validate:"min=1"`
}

// RedisConfig configures the quota store. An empty Addr disables quota
// tracking.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
}

type QuotaConfig struct {
	DailyLimit       int           `koanf:"daily_limit" validate:"min=1"`
	WarningThreshold int           `koanf:"warning_threshold" validate:"min=0"`
	ThrottleDelay    time.Duration `koanf:"throttle_delay" validate:"min=0"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.addr":             ":8000",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "120s",
		"server.idle_timeout":     "60s",
		"server.request_timeout":  "90s",
		"server.shutdown_timeout": "15s",

		"upstream.base_url":   client.DefaultBaseURL,
		"upstream.user_agent": "marvel-proxy/0.1.0",
		"upstream.timeout":    "10s",
		"upstream.rate_limit": 0,

		"batch.size":          100,
		"batch.default_limit": 100,

		"redis.addr":     "",
		"redis.password": "",
		"redis.db":       0,

		"quota.daily_limit":       quota.DefaultDailyLimit,
		"quota.warning_threshold": quota.DefaultWarningThreshold,
		"quota.throttle_delay":    quota.DefaultThrottleDelay.String(),

		"logger.level":  "info",
		"logger.pretty": false,
	}
}

// LoadConfig builds the configuration. Layers, lowest precedence first:
// defaults, the YAML file named by MARVEL_CONFIG_FILE, the legacy
// marvel_pubkey/marvel_privkey variables, MARVEL_* variables.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider("marvel_", ".", func(s string) string {
		switch s {
		case legacyPublicKey:
			return "upstream.public_key"
		case legacyPrivateKey:
			return "upstream.private_key"
		}
		return ""
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load legacy environment: %w", err)
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvConfigFile {
			return ""
		}
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks credentials first so their absence is reported as
// auth.ErrMissingCredentials, then the struct tags.
func (c *Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Credentials returns the upstream key pair.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		PublicKey:  c.Upstream.PublicKey,
		PrivateKey: c.Upstream.PrivateKey,
	}
}

// QuotaEnabled reports whether a Redis address is configured.
func (c *Config) QuotaEnabled() bool {
	return c.Redis.Addr != ""
}

// RedisOptions returns connection options for the quota store.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// ClientConfig returns the upstream client configuration. tracker may be nil.
func (c *Config) ClientConfig(tracker *quota.Tracker) client.Config {
	cfg := client.DefaultConfig(c.Credentials())
	cfg.BaseURL = c.Upstream.BaseURL
	cfg.Timeout = c.Upstream.Timeout
	cfg.RateLimit = c.Upstream.RateLimit
	cfg.Quota = tracker
	if c.Upstream.UserAgent != "" {
		cfg.UserAgent = c.Upstream.UserAgent
	}
	return cfg
}

func (c *Config) QuotaConfig() quota.Config {
	return quota.Config{
		DailyLimit:       c.Quota.DailyLimit,
		WarningThreshold: c.Quota.WarningThreshold,
		ThrottleDelay:    c.Quota.ThrottleDelay,
	}
}

func (c *Config) AggregatorConfig() pagination.Config {
	return pagination.Config{
		BatchSize: c.Batch.Size,
		Timeout:   c.Upstream.Timeout,
	}
}

func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logger.Level
	cfg.Pretty = c.Logger.Pretty
	return cfg
}
