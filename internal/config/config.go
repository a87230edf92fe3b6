// Package config loads the tinylm configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"tinylm/pkg/corpus"
	"tinylm/pkg/model"
)

// Log selects the CLI logger.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the on-disk configuration. Fields missing from the file keep
// their defaults.
type Config struct {
	Model    model.Config   `yaml:"model" json:"model"`
	Pipeline corpus.Options `yaml:"pipeline" json:"pipeline"`
	Log      Log            `yaml:"log" json:"log"`

	// StatusAddr, when set, serves pipeline progress over HTTP.
	StatusAddr string `yaml:"status_addr" json:"status_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:    model.DefaultConfig(),
		Pipeline: corpus.DefaultOptions(),
		Log:      Log{Level: "info", Format: "pretty"},
	}
}

// Load reads a YAML (.yaml, .yml) or JSON (.json) file over the defaults and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the model and pipeline sections.
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}
