// Package config loads server configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so a
// deployment can run from env alone.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root server configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Clinical ClinicalConfig `yaml:"clinical"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	// Port the HTTP server listens on. Default: 8080.
	Port string `yaml:"port"`

	// Env is "development" or "production". Default: development.
	Env string `yaml:"env"`

	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig holds the billing database settings.
type DatabaseConfig struct {
	// URL is the pgx connection string. Required.
	URL string `yaml:"url"`

	MaxConns int32 `yaml:"maxConns"`
	MinConns int32 `yaml:"minConns"`
}

// ClinicalConfig holds the external clinical database settings.
type ClinicalConfig struct {
	// URL is the pgx connection string for the clinical source. Required.
	URL string `yaml:"url"`

	MaxConns int32 `yaml:"maxConns"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	// JWTSecret signs access tokens. Required in production.
	JWTSecret string `yaml:"jwtSecret"`

	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`
}

// Load reads the config file at path (if path is non-empty and the file
// exists), applies environment overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Env-only deployment.
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.App.Port, "APP_PORT")
	setString(&c.App.Env, "APP_ENV")
	setString(&c.Database.URL, "DATABASE_URL")
	setInt32(&c.Database.MaxConns, "DATABASE_MAX_CONNS")
	setInt32(&c.Database.MinConns, "DATABASE_MIN_CONNS")
	setString(&c.Clinical.URL, "CLINICAL_DATABASE_URL")
	setInt32(&c.Clinical.MaxConns, "CLINICAL_MAX_CONNS")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setDuration(&c.Auth.AccessTokenTTL, "ACCESS_TOKEN_TTL")
	setDuration(&c.Auth.RefreshTokenTTL, "REFRESH_TOKEN_TTL")
	setString(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.App.ReadTimeout == 0 {
		c.App.ReadTimeout = 15 * time.Second
	}
	if c.App.WriteTimeout == 0 {
		c.App.WriteTimeout = 30 * time.Second
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 25
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 5
	}
	if c.Clinical.MaxConns == 0 {
		c.Clinical.MaxConns = 10
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%w: database.url (DATABASE_URL) is required", ErrInvalidConfig)
	}
	if c.Clinical.URL == "" {
		return fmt.Errorf("%w: clinical.url (CLINICAL_DATABASE_URL) is required", ErrInvalidConfig)
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwtSecret (JWT_SECRET) is required in production", ErrInvalidConfig)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
