package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type ScrapeConfig struct {
	Delay         time.Duration `yaml:"delay"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	DefaultSource string        `yaml:"default_source"`
	Timezone      string        `yaml:"timezone"`
}

type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Time    string `yaml:"time"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	FeedAddr string `yaml:"feed_addr"`
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	JWTIssuer         string        `yaml:"issuer"`
	TTLHours          int           `yaml:"ttl_hours"`
	JWTDuration       time.Duration `yaml:"-"`
	AdminUser         string        `yaml:"admin_user"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
}

type WebhookConfig struct {
	URL    string `yaml:"url"`
	AppURL string `yaml:"app_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"` // stdout or stderr
	File   string `yaml:"file"`
}

type Config struct {
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Log      LogConfig      `yaml:"log"`
}

const (
	ConfigFile      = "config.yaml"
	LocalConfigFile = "config.local.yaml"
)

func DefaultConfig() Config {
	return Config{
		Scrape: ScrapeConfig{
			Delay:         time.Second,
			Timeout:       15 * time.Second,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			DefaultSource: "fanqie",
			Timezone:      "Asia/Shanghai",
		},
		Schedule: ScheduleConfig{Enabled: false, Time: "08:00"},
		Server:   ServerConfig{Addr: ":8080", FeedAddr: ":7070"},
		Auth: AuthConfig{
			// dev default (change for demo / production)
			JWTSecret: "dev-secret-change-me",
			JWTIssuer: "novelrank",
			TTLHours:  24,
			AdminUser: "admin",
		},
		Log: LogConfig{Level: "info", Output: "stderr"},
	}
}

// LoadConfig reads dir/config.yaml, deep-merges dir/config.local.yaml on top
// and applies environment overrides. Missing files are not an error.
func LoadConfig(dir string) (Config, error) {
	merged := map[string]any{}
	for _, name := range []string{ConfigFile, LocalConfigFile} {
		m, err := readYAMLMap(filepath.Join(dir, name))
		if err != nil {
			return Config{}, err
		}
		merged = DeepMerge(merged, m)
	}

	cfg := DefaultConfig()
	if len(merged) > 0 {
		raw, err := yaml.Marshal(merged)
		if err != nil {
			return Config{}, fmt.Errorf("re-encode config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.Auth.JWTDuration = time.Duration(cfg.Auth.TTLHours) * time.Hour
	if cfg.Auth.JWTDuration <= 0 {
		cfg.Auth.JWTDuration = 24 * time.Hour
	}
	return cfg, nil
}

func readYAMLMap(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// DeepMerge merges override into base recursively; nested maps merge, every
// other value in override replaces the one in base.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if ov, ok := v.(map[string]any); ok {
			if bv, ok := out[k].(map[string]any); ok {
				out[k] = DeepMerge(bv, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NOVELRANK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NOVELRANK_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("NOVELRANK_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("NOVELRANK_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("NOVELRANK_LOG_OUTPUT"); v != "" {
		cfg.Log.Output = v
	}
	if v := os.Getenv("NOVELRANK_JWT_TTL_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			cfg.Auth.TTLHours = h
		}
	}
}

// Location resolves the scrape timezone, falling back to a fixed UTC+8 zone
// when the tz database is unavailable.
func (c ScrapeConfig) Location() *time.Location {
	name := c.Timezone
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}
