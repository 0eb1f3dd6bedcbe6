// Package config loads process configuration from a YAML file and/or the
// environment. Command-line flags override individual values afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root process configuration.
// Source priority:
//  1. explicit path passed to Load;
//  2. CONFIG_PATH;
//  3. environment variables only.
type Config struct {
	Env          string          `yaml:"env"           env:"ENV"           env-default:"local"`
	SettingsPath string          `yaml:"settings_path" env:"SETTINGS_PATH" env-default:"settings.yaml"`
	HTTP         HTTPConfig      `yaml:"http"`
	Redis        RedisConfig     `yaml:"redis"`
	Storage      StorageConfig   `yaml:"storage"`
	Upstream     UpstreamConfig  `yaml:"upstream"`
	Scheduler    SchedulerConfig `yaml:"scheduler"`
}

type HTTPConfig struct {
	Addr       string `yaml:"addr"        env:"HTTP_ADDR"   env-default:":3000"`
	SiteURL    string `yaml:"site_url"    env:"SITE_URL"    env-default:"http://localhost:3000"`
	Title      string `yaml:"title"       env:"SITE_TITLE"  env-default:"News"`
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"     env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
}

type StorageConfig struct {
	// Driver is "badger" or "sqlite".
	Driver     string        `yaml:"driver"      env:"STORAGE_DRIVER" env-default:"badger"`
	Path       string        `yaml:"path"        env:"STORAGE_PATH"   env-default:"./badger-data"`
	GCInterval time.Duration `yaml:"gc_interval" env:"BADGER_GC"      env-default:"5m"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url" env:"UPSTREAM_URL"     env-default:"https://newsapi.org"`
	Timeout time.Duration `yaml:"timeout"  env:"UPSTREAM_TIMEOUT" env-default:"30s"`
}

type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval" env:"FETCH_INTERVAL" env-default:"24h"`
	Disabled bool          `yaml:"disabled" env:"FETCH_DISABLED"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "badger", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be badger or sqlite, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for sqlite")
	}
	if c.Scheduler.Interval < time.Minute {
		return fmt.Errorf("scheduler.interval must be at least 1m")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be > 0")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
