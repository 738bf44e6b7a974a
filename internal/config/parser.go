package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Default returns the configuration used when nothing is set.
func Default() Config {
	cacheDir := filepath.Join(os.TempDir(), "bulkhead", "bundles")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "bulkhead", "bundles")
	}

	return Config{
		AppPath:  ".",
		CacheDir: cacheDir,
		Store:    StoreConfig{DSN: ":memory:"},
		Log:      LogConfig{Level: "info"},
		Watch:    WatchConfig{Debounce: "200ms"},
	}
}

// Load reads path when it is not empty, applies BULKHEAD_ environment
// overrides, fills unset fields with defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, bulkheaderrors.NewParseError(path, 0, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, bulkheaderrors.NewParseError(path, extractLine(err), err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, bulkheaderrors.NewValidationError("env", fmt.Sprintf("parse env: %v", err), err)
	}

	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finalize(cfg *Config) error {
	defaults := Default()
	if err := mergo.Merge(cfg, defaults); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	return ValidateConfig(cfg)
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
