package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/editor"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// Config is the optional YAML configuration file.
type Config struct {
	// Scale fixes the editor scale; zero fits pages to ViewportWidth.
	Scale         float64 `yaml:"scale"`
	ViewportWidth float64 `yaml:"viewport_width"`
	MaxScale      float64 `yaml:"max_scale"`
	MaxSizeMB     int     `yaml:"max_size_mb"`
	Timeout       string  `yaml:"timeout"`
	HistoryLimit  int     `yaml:"history_limit"`
	Granularity   string  `yaml:"granularity"`
	Background    string  `yaml:"background"`
	LogLevel      string  `yaml:"log_level"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Options maps the file onto engine options. Unset fields keep the engine
// defaults.
func (c Config) Options(logger observability.Logger) ([]editor.Option, error) {
	opts := []editor.Option{editor.WithLogger(logger)}

	switch {
	case c.Scale > 0:
		opts = append(opts, editor.WithScale(c.Scale))
	case c.ViewportWidth > 0 || c.MaxScale > 0:
		policy := coords.DefaultScalePolicy
		if c.ViewportWidth > 0 {
			policy.ViewportWidth = c.ViewportWidth
		}
		if c.MaxScale > 0 {
			policy.MaxScale = c.MaxScale
		}
		opts = append(opts, editor.WithScalePolicy(policy))
	}
	if c.MaxSizeMB > 0 {
		opts = append(opts, editor.WithMaxSize(c.MaxSizeMB<<20))
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
		opts = append(opts, editor.WithTimeout(d))
	}
	if c.HistoryLimit > 0 {
		opts = append(opts, editor.WithHistoryLimit(c.HistoryLimit))
	}
	if c.Granularity != "" {
		opts = append(opts, editor.WithGranularity(extract.ParseGranularity(c.Granularity)))
	}
	if c.Background != "" {
		bg, err := pdf.ParseHexColor(c.Background)
		if err != nil {
			return nil, err
		}
		opts = append(opts, editor.WithBackground(bg))
	}
	return opts, nil
}
