package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Facebook struct {
		BaseURL  string `yaml:"base_url"`
		Headless bool   `yaml:"headless"`
	} `yaml:"facebook"`
	Generator struct {
		BaseURL   string `yaml:"base_url"`
		TimeoutMs int    `yaml:"timeout_ms"`
	} `yaml:"generator"`
	Debounce struct {
		CheckIntervalMs int `yaml:"check_interval_ms"`
		SilenceWindowMs int `yaml:"silence_window_ms"`
		MaxWaitMs       int `yaml:"max_wait_ms"`
	} `yaml:"debounce"`
	Pacing struct {
		MinDelayMs int `yaml:"min_delay_ms"`
		MaxDelayMs int `yaml:"max_delay_ms"`
	} `yaml:"pacing"`
	Cycle struct {
		PollIntervalMs int `yaml:"poll_interval_ms"`
		LeaseTTLMs     int `yaml:"lease_ttl_ms"`
	} `yaml:"cycle"`
	Redis struct {
		Addr     string `yaml:"addr"` // empty = in-memory lease registry
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional
	cfg := defaultConfig()
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	var cfg Config
	cfg.Facebook.BaseURL = "https://www.facebook.com/"
	cfg.Facebook.Headless = false
	cfg.Generator.BaseURL = "http://127.0.0.1:8091"
	cfg.Generator.TimeoutMs = 60000
	cfg.Debounce.CheckIntervalMs = 3000
	cfg.Debounce.SilenceWindowMs = 10000
	cfg.Debounce.MaxWaitMs = 120000
	cfg.Pacing.MinDelayMs = 1500
	cfg.Pacing.MaxDelayMs = 4500
	cfg.Cycle.PollIntervalMs = 30000
	cfg.Cycle.LeaseTTLMs = 600000
	cfg.API.Addr = ":8090"
	cfg.Database.Path = "leadbot.db"
	cfg.Logging.Level = "info"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEADBOT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LEADBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEADBOT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LEADBOT_GENERATOR_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := os.Getenv("LEADBOT_HEADLESS"); v == "1" || v == "true" {
		cfg.Facebook.Headless = true
	}
}

func validate(cfg *Config) error {
	if cfg.Facebook.BaseURL == "" {
		return errors.New("facebook.base_url is required")
	}
	if cfg.Generator.BaseURL == "" {
		return errors.New("generator.base_url is required")
	}
	if cfg.Debounce.CheckIntervalMs <= 0 {
		return errors.New("debounce.check_interval_ms must be > 0")
	}
	if cfg.Debounce.SilenceWindowMs <= 0 {
		return errors.New("debounce.silence_window_ms must be > 0")
	}
	if cfg.Debounce.MaxWaitMs < cfg.Debounce.SilenceWindowMs {
		return errors.New("debounce.max_wait_ms must be >= silence_window_ms")
	}
	if cfg.Pacing.MinDelayMs <= 0 || cfg.Pacing.MaxDelayMs < cfg.Pacing.MinDelayMs {
		return errors.New("pacing delays must satisfy 0 < min <= max")
	}
	if cfg.Cycle.PollIntervalMs <= 0 {
		return errors.New("cycle.poll_interval_ms must be > 0")
	}
	return nil
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Debounce.CheckIntervalMs) * time.Millisecond
}

func (c *Config) SilenceWindow() time.Duration {
	return time.Duration(c.Debounce.SilenceWindowMs) * time.Millisecond
}

func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Debounce.MaxWaitMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Cycle.PollIntervalMs) * time.Millisecond
}

func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Cycle.LeaseTTLMs) * time.Millisecond
}
