package cli

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/roach88/marcbridge/internal/refs"
)

// Config is the startup configuration. It is read once; nothing reloads
// it while a command runs.
type Config struct {
	// BaseURL is the host references and $schema URLs are built on.
	BaseURL string `yaml:"base_url"`

	// Workers bounds concurrent conversions in batch runs.
	Workers int `yaml:"workers"`

	// Rules is a directory of CUE rule sets replacing the built-in ones.
	// A relative path is resolved against the config file's directory.
	Rules string `yaml:"rules"`
}

// DefaultConfig returns the configuration used when no file or flag says
// otherwise.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: refs.DefaultBaseURL,
		Workers: runtime.GOMAXPROCS(0),
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
// Unknown keys are rejected so typos don't pass silently.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Rules != "" && !filepath.IsAbs(cfg.Rules) {
		cfg.Rules = filepath.Join(filepath.Dir(path), cfg.Rules)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

// config resolves the configuration: defaults, then the --config file,
// then flags.
func (o *RootOptions) config() (*Config, error) {
	cfg := DefaultConfig()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = LoadConfig(o.ConfigPath); err != nil {
			return nil, err
		}
	}

	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.RulesDir != "" {
		cfg.Rules = o.RulesDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
