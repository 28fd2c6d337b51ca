package main

import (
	"fmt"
	"os"

	"github.com/weave-logic-ai/weft/internal/config"
)

// loadConfig resolves the configured path into a config.Config,
// falling back to config.Default() when the file does not exist so
// every subcommand works against a fresh checkout with no config file
// present yet.
func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("weft: load config %s: %w", path, err)
	}
	return cfg, nil
}
