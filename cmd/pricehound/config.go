package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pricehound/pricehound/source"
)

// config is the one YAML document the binary reads. Every field has a
// workable default; an empty file is a valid configuration.
type config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	SQLitePath string `yaml:"sqlite_path"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Scraper struct {
		Headless          *bool    `yaml:"headless"`
		RemoteURL         string   `yaml:"remote_url"`
		BlockResources    []string `yaml:"block_resources"`
		SyntheticFallback bool     `yaml:"synthetic_fallback"`
	} `yaml:"scraper"`

	Health struct {
		SuccessRate    float64 `yaml:"success_rate"`
		ResponseTimeMs int64   `yaml:"response_time_ms"`
		ErrorCount     int64   `yaml:"error_count"`
	} `yaml:"health"`

	// Sources seeds the profile store at startup (upsert, so edits in the
	// file win over stale rows).
	Sources []source.Profile `yaml:"sources"`
}

func (c *config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/pricehound.db"
	}
	if c.Scraper.BlockResources == nil {
		c.Scraper.BlockResources = []string{"images", "fonts", "media", "stylesheets"}
	}
}

// loadConfig reads the YAML file at path. A missing file yields the
// defaults; a malformed one is an error.
func loadConfig(path string) (*config, error) {
	var c config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.defaults()
			return &c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.defaults()
	return &c, nil
}
