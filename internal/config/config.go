// Package config loads the optional TOML run configuration. Flags always
// win over file values; the file only supplies defaults an operator wants
// pinned per deployment.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// RunConfig holds deployment-level defaults for a run.
type RunConfig struct {
	// Jobs is the subject-level worker count. 0 means unset.
	Jobs int `toml:"jobs"`

	// FSOptions are extra recon-all arguments, passed through verbatim.
	FSOptions []string `toml:"fs_options"`

	// License is the FreeSurfer license file path.
	License string `toml:"license"`

	// SkipNIDM disables provenance generation for the whole run.
	SkipNIDM bool `toml:"skip_nidm"`

	// MetricsListen is the address the Prometheus /metrics endpoint binds
	// to. Empty disables the endpoint.
	MetricsListen string `toml:"metrics_listen"`
}

// Load reads and validates a RunConfig from path.
func Load(path string) (RunConfig, error) {
	var cfg RunConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate rejects values no run could use.
func Validate(cfg RunConfig) error {
	if cfg.Jobs < 0 {
		return fmt.Errorf("config jobs must be >= 0, got %d", cfg.Jobs)
	}
	for i, opt := range cfg.FSOptions {
		if opt == "" {
			return fmt.Errorf("config fs_options[%d] is empty", i)
		}
	}
	return nil
}
