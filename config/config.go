package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/viant/covertree/index/cover"
	"gopkg.in/yaml.v3"
)

// Config defines the covertree CLI settings.
type Config struct {
	Source      string    `yaml:"source"`
	DB          string    `yaml:"db"`
	Table       string    `yaml:"table"`
	Level       int32     `yaml:"level"`
	Workers     int       `yaml:"workers"`
	Descent     string    `yaml:"descent"`
	Bound       string    `yaml:"bound"`
	Search      string    `yaml:"search"`
	Validate    bool      `yaml:"validate"`
	MetricsAddr string    `yaml:"metricsAddr"`
	Log         LogConfig `yaml:"log"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Table:   "docs",
		Descent: "first",
		Bound:   "level",
		Search:  "depth-first",
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	path, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if _, err := c.DescentPolicy(); err != nil {
		return err
	}
	if _, err := c.BoundStrategy(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Search {
	case "", "depth-first", "best-first":
	default:
		return fmt.Errorf("config: unknown search %q", c.Search)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	return nil
}

// DescentPolicy maps the descent name to the index option value.
func (c *Config) DescentPolicy() (cover.Descent, error) {
	switch strings.ToLower(c.Descent) {
	case "", "first":
		return cover.DescentFirst, nil
	case "nearest":
		return cover.DescentNearest, nil
	}
	return cover.DescentFirst, fmt.Errorf("config: unknown descent %q", c.Descent)
}

// BoundStrategy maps the bound name to the index option value.
func (c *Config) BoundStrategy() (cover.BoundStrategy, error) {
	switch strings.ToLower(c.Bound) {
	case "", "level":
		return cover.BoundLevel, nil
	case "node", "per-node":
		return cover.BoundPerNode, nil
	}
	return cover.BoundLevel, fmt.Errorf("config: unknown bound %q", c.Bound)
}

// LogLevel parses the configured zerolog level.
func (c *Config) LogLevel() (zerolog.Level, error) {
	if c.Log.Level == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("config: %w", err)
	}
	return level, nil
}

// IndexOptions converts the settings into index options.
func (c *Config) IndexOptions() ([]cover.Option, error) {
	descent, err := c.DescentPolicy()
	if err != nil {
		return nil, err
	}
	bound, err := c.BoundStrategy()
	if err != nil {
		return nil, err
	}
	opts := []cover.Option{
		cover.WithLevel(c.Level),
		cover.WithDescent(descent),
		cover.WithBoundStrategy(bound),
		cover.WithBestFirst(c.Search == "best-first"),
	}
	if c.Workers > 0 {
		opts = append(opts, cover.WithBuildParallelism(c.Workers))
	}
	return opts, nil
}

func expandUserPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
