// Package config loads portald settings from an optional file, a .env file and
// PORTAL_-prefixed environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key: redis.addr reads PORTAL_REDIS_ADDR.
const EnvPrefix = "PORTAL"

// Config holds the portald process settings.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// Dev runs against an embedded Redis and generates a throwaway signing key.
	Dev bool `mapstructure:"dev"`

	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
	Web      WebConfig      `mapstructure:"web"`
	Database DatabaseConfig `mapstructure:"database"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SessionConfig holds session lifetime and token settings.
type SessionConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	Sliding     bool          `mapstructure:"sliding"`
	TokenSecret string        `mapstructure:"token_secret"`
	Issuer      string        `mapstructure:"issuer"`
}

// LogConfig selects the process log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WebConfig tunes the HTTP surface.
type WebConfig struct {
	CookieName   string `mapstructure:"cookie_name"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
	// MaxDevices bounds the number of live per-device stores.
	MaxDevices int `mapstructure:"max_devices"`
	// LoadingWait is how long a page request waits for a restoring session before
	// serving the loading page.
	LoadingWait time.Duration `mapstructure:"loading_wait"`
}

// DatabaseConfig enables Postgres profile rows when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("dev", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "pp")
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.sliding", false)
	v.SetDefault("session.token_secret", "")
	v.SetDefault("session.issuer", "portald")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("web.cookie_name", "portal_device")
	v.SetDefault("web.cookie_secure", false)
	v.SetDefault("web.max_devices", 1024)
	v.SetDefault("web.loading_wait", 500*time.Millisecond)
	v.SetDefault("database.url", "")
}

// Load reads configuration. path may be empty; dotenv names a .env file to load
// into the environment first and is skipped when it does not exist.
func Load(path, dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", dotenv, err)
		}
	}

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

// Validate describes the validate operation and its observable behavior.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("config: listen_addr must not be empty")
	}
	if !c.Dev && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis.addr must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session.ttl must be > 0")
	}
	if !c.Dev && len(c.Session.TokenSecret) < 32 {
		return errors.New("config: session.token_secret must be at least 32 bytes (or run with dev=true)")
	}
	if c.Web.MaxDevices <= 0 {
		return errors.New("config: web.max_devices must be > 0")
	}
	if strings.TrimSpace(c.Web.CookieName) == "" {
		return errors.New("config: web.cookie_name must not be empty")
	}
	if c.Web.LoadingWait < 0 {
		return errors.New("config: web.loading_wait must be >= 0")
	}
	return nil
}
