// Package config loads the service configuration from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"`
	// ShutdownTimeout is a Go duration string.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// SchedulerConfig durations are Go duration strings (e.g. "30s", "5m").
// A timeout of "0s" or empty disables the per-run limit.
type SchedulerConfig struct {
	Timezone     string `yaml:"timezone"`
	Timeout      string `yaml:"timeout"`
	HistoryLimit int    `yaml:"history_limit"`
}

type NotifyConfig struct {
	Driver     string            `yaml:"driver"` // log or sendgrid
	RatePerSec int               `yaml:"rate_per_sec"`
	SendGrid   SendGridConfig    `yaml:"sendgrid"`
	Aliases    map[string]string `yaml:"aliases"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8080", ShutdownTimeout: "10s"},
		Database:  DatabaseConfig{Path: "assetflow.db"},
		Log:       LogConfig{Level: "info", Format: "console"},
		Scheduler: SchedulerConfig{Timezone: "Local", HistoryLimit: 50},
		Notify:    NotifyConfig{Driver: "log", RatePerSec: 5},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Notify.SendGrid.APIKey == "" {
		cfg.Notify.SendGrid.APIKey = os.Getenv("SENDGRID_API_KEY")
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ExecutionTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.HistoryLimit < 0 {
		errs = append(errs, errors.New("scheduler.history_limit must be >= 0"))
	}
	if c.Notify.RatePerSec < 0 {
		errs = append(errs, errors.New("notify.rate_per_sec must be >= 0"))
	}
	switch c.Notify.Driver {
	case "", "log":
	case "sendgrid":
		if c.Notify.SendGrid.APIKey == "" {
			errs = append(errs, errors.New("notify.sendgrid.api_key is required for the sendgrid driver"))
		}
		if c.Notify.SendGrid.FromEmail == "" {
			errs = append(errs, errors.New("notify.sendgrid.from_email is required for the sendgrid driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.driver: unknown driver %q", c.Notify.Driver))
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone. Empty and "Local" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func (c Config) ExecutionTimeout() (time.Duration, error) {
	return parseDuration("scheduler.timeout", c.Scheduler.Timeout)
}

func (c Config) ShutdownTimeout() (time.Duration, error) {
	d, err := parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)
	if err != nil || d > 0 {
		return d, err
	}
	return 10 * time.Second, nil
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
