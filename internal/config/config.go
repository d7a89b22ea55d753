package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration: yaml file defaults overlaid with
// environment variables. Env wins so a unit file or compose override never
// needs to touch the yaml.
type Config struct {
	Port     string `yaml:"port"`
	APIKey   string `yaml:"api_key"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`

	// Optional backends. Empty means the built-in alternative is used
	// (file store, in-memory search cache, no event publishing).
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	NATSURL     string `yaml:"nats_url"`

	OpenAIKey  string `yaml:"openai_api_key"`
	WebhookURL string `yaml:"webhook_url"`

	// Device defaults.
	DefaultDeviceID string `yaml:"default_device_id"`
	Timezone        string `yaml:"timezone"` // night-sleep window is computed here

	Firmware struct {
		Dir     string `yaml:"dir"`
		Version string `yaml:"version"`
		Build   string `yaml:"build_date"`
	} `yaml:"firmware"`

	Pipeline struct {
		Workers int `yaml:"workers"`
	} `yaml:"pipeline"`

	Search struct {
		CacheSize        int `yaml:"cache_size"`
		CacheTTLMS       int `yaml:"cache_ttl_ms"`
		AdapterTimeoutMS int `yaml:"adapter_timeout_ms"`
		OverallTimeoutMS int `yaml:"overall_timeout_ms"`
	} `yaml:"search"`
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLMS) * time.Millisecond
}

func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Search.AdapterTimeoutMS) * time.Millisecond
}

func (c *Config) OverallTimeout() time.Duration {
	return time.Duration(c.Search.OverallTimeoutMS) * time.Millisecond
}

// Load reads the yaml file (missing file is fine, defaults apply), then
// overlays environment variables. A .env in the working directory is honored the
// way Stationmaster-style deployments expect.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	overlayEnv(cfg)
	fillZero(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{
		Port:     "8080",
		LogLevel: "INFO",
		DataDir:  "data",
		Timezone: "Local",
	}
	cfg.Firmware.Dir = "firmware"
	cfg.Pipeline.Workers = 2
	cfg.Search.CacheSize = 500
	cfg.Search.CacheTTLMS = int(time.Hour / time.Millisecond)
	cfg.Search.AdapterTimeoutMS = 5000
	cfg.Search.OverallTimeoutMS = 7000
	return cfg
}

func overlayEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Port, "PORT")
	set(&cfg.APIKey, "API_KEY")
	set(&cfg.LogLevel, "LOG_LEVEL")
	set(&cfg.DataDir, "DATA_DIR")
	set(&cfg.DatabaseURL, "DATABASE_URL")
	set(&cfg.RedisAddr, "REDIS_ADDR")
	set(&cfg.NATSURL, "NATS_URL")
	set(&cfg.OpenAIKey, "OPENAI_API_KEY")
	set(&cfg.WebhookURL, "WEBHOOK_URL")
	set(&cfg.DefaultDeviceID, "DEVICE_ID")
	set(&cfg.Timezone, "TZ_NAME")
	set(&cfg.Firmware.Dir, "FIRMWARE_DIR")
	set(&cfg.Firmware.Version, "FIRMWARE_VERSION")
	set(&cfg.Firmware.Build, "BUILD_DATE")
}

// fillZero restores defaults the yaml may have blanked out.
func fillZero(cfg *Config) {
	d := defaults()
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = d.Pipeline.Workers
	}
	if cfg.Search.CacheSize <= 0 {
		cfg.Search.CacheSize = d.Search.CacheSize
	}
	if cfg.Search.CacheTTLMS <= 0 {
		cfg.Search.CacheTTLMS = d.Search.CacheTTLMS
	}
	if cfg.Search.AdapterTimeoutMS <= 0 {
		cfg.Search.AdapterTimeoutMS = d.Search.AdapterTimeoutMS
	}
	if cfg.Search.OverallTimeoutMS <= 0 {
		cfg.Search.OverallTimeoutMS = d.Search.OverallTimeoutMS
	}
	if cfg.Port == "" {
		cfg.Port = d.Port
	}
	if cfg.DataDir == "" {
		cfg.DataDir = d.DataDir
	}
	if cfg.Timezone == "" {
		cfg.Timezone = d.Timezone
	}
	if cfg.Firmware.Dir == "" {
		cfg.Firmware.Dir = d.Firmware.Dir
	}
}
