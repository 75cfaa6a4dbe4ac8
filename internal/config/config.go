// Package config loads the runtime configuration from a YAML file, layered
// over built-in defaults. A missing file is not an error; the defaults
// stand on their own.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"merit/pkg/harness"
	"merit/pkg/logging"
)

// DefaultConfigPath is consulted when no explicit path is given.
const DefaultConfigPath = "merit.yaml"

// Config is the on-disk configuration surface.
type Config struct {
	// Run holds the scheduling parameters.
	Run harness.RunConfiguration `yaml:"run"`
	// Tags restricts collection to items carrying all listed tags.
	Tags []string `yaml:"tags,omitempty"`
	// StorePath is the results database location. Empty disables storage.
	StorePath string `yaml:"store_path,omitempty"`
	// Verbosity selects console reporter detail: 0 summary only, 1 per-item
	// lines, 2 per-assertion detail.
	Verbosity int `yaml:"verbosity"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Run:       harness.DefaultRunConfiguration(),
		StorePath: "merit.db",
		Verbosity: 1,
	}
}

// Load reads path over the defaults. An empty path means DefaultConfigPath;
// a missing file at either yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			logging.Debug("Config", "no configuration file at %s, using defaults", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	logging.Debug("Config", "loaded configuration from %s", path)
	return cfg, nil
}

// Validate rejects configurations the runner cannot honor.
func Validate(cfg Config) error {
	if err := harness.ValidateConfiguration(cfg.Run); err != nil {
		return err
	}
	if cfg.Verbosity < 0 || cfg.Verbosity > 2 {
		return fmt.Errorf("verbosity must be between 0 and 2, got %d", cfg.Verbosity)
	}
	return nil
}
