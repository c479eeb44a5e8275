package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FORMWIZARD_BACKEND_URL.
const EnvPrefix = "FORMWIZARD"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds every runtime setting of the formwizard CLI.
type Config struct {
	Env         string            `mapstructure:"env"`
	Log         LogConfig         `mapstructure:"log"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Submission  SubmissionConfig  `mapstructure:"submission"`
	OTP         OTPConfig         `mapstructure:"otp"`
	Store       StoreConfig       `mapstructure:"store"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SubmissionConfig struct {
	MaxTries       uint          `mapstructure:"max_tries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type OTPConfig struct {
	Window         time.Duration `mapstructure:"window"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	MaxResends     int           `mapstructure:"max_resends"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// DefinitionsConfig points at extra definition files and per-product
// threshold overrides keyed by definition id.
type DefinitionsConfig struct {
	Dir        string                        `mapstructure:"dir"`
	Thresholds map[string]map[string]float64 `mapstructure:"thresholds"`
}

// IsProduction reports whether the production environment is selected.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("backend.url", "http://localhost:8080/api")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("submission.max_tries", 3)
	v.SetDefault("submission.initial_backoff", 250*time.Millisecond)
	v.SetDefault("submission.max_backoff", 2*time.Second)
	v.SetDefault("otp.window", 5*time.Minute)
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.max_resends", 3)
	v.SetDefault("otp.resend_cooldown", 30*time.Second)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.ttl", 72*time.Hour)
	v.SetDefault("definitions.dir", "")
}

// Load reads configuration from path (when set) or from formwizard.yaml in
// the working directory, then applies FORMWIZARD_* environment overrides.
// A missing default config file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("formwizard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Submission.MaxTries == 0 {
		return errors.New("config: submission.max_tries must be at least 1")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("config: backend.timeout must be positive")
	}
	return nil
}
