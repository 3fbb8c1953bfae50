// Package config loads application configuration from the environment
// (optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/iliyamo/task-manager/internal/utils"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; nested structs group the settings of one
// component.
type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"development"` // development | production | test
	Port            string        `env:"APP_PORT" envDefault:"5000"`
	APIPrefix       string        `env:"API_PREFIX" envDefault:"/api"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigin      string        `env:"CORS_ORIGIN" envDefault:"http://localhost:3000"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	DB        DBConfig
	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Events    EventsConfig
}

// DBConfig selects the SQL backend.
type DBConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"mysql"` // mysql | sqlite
	User       string `env:"DB_USER" envDefault:"root"`
	Pass       string `env:"DB_PASS"` // empty allowed
	Host       string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port       string `env:"DB_PORT" envDefault:"3306"`
	Name       string `env:"DB_NAME" envDefault:"task_manager"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/task_manager.db"`
}

// AuthConfig configures token issuance and password hashing. The expiry
// fields accept specs such as "15m" or "7d" and are parsed by Load into
// AccessTTL and RefreshTTL.
type AuthConfig struct {
	AccessSecret    string        `env:"JWT_ACCESS_SECRET,notEmpty"`
	RefreshSecret   string        `env:"JWT_REFRESH_SECRET,notEmpty"`
	AccessExpiry    string        `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry   string        `env:"JWT_REFRESH_EXPIRY" envDefault:"7d"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`
	CleanupInterval time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"1h"` // 0 disables the sweeper

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// EventsConfig controls activity events over RabbitMQ. An empty URL
// disables publishing.
type EventsConfig struct {
	RabbitURL       string `env:"RABBITMQ_URL"`
	ConsumerEnabled bool   `env:"EVENTS_CONSUMER_ENABLED" envDefault:"false"`
	ActivityLogPath string `env:"ACTIVITY_LOG_PATH" envDefault:"logs/activity.log"`
}

// Load reads .env (when present) and the environment, applies defaults and
// validates the result. Malformed expiry specs are reported here so the
// process fails before serving.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	var errs []error

	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.DB.Driver))
	}

	c.APIPrefix = "/" + strings.Trim(strings.TrimSpace(c.APIPrefix), "/")
	if c.APIPrefix == "/" {
		c.APIPrefix = ""
	}

	var err error
	if c.Auth.AccessTTL, err = utils.ParseDurationSpec(c.Auth.AccessExpiry); err != nil {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_EXPIRY: %w", err))
	}
	if c.Auth.RefreshTTL, err = utils.ParseDurationSpec(c.Auth.RefreshExpiry); err != nil {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_EXPIRY: %w", err))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.Auth.CleanupInterval < 0 {
		errs = append(errs, errors.New("TOKEN_CLEANUP_INTERVAL must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}

	c.RateLimit.normalize()
	c.Cache.normalize()

	return errors.Join(errs...)
}

// IsDevelopment reports whether the app runs in a local/dev environment.
func (c *Config) IsDevelopment() bool {
	switch c.Env {
	case "development", "dev", "local":
		return true
	}
	return false
}
