package runner

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds Runner construction parameters an owning orchestrator
// may load from a small YAML file (spec §3), grounded on the
// teacher's registry.Config/peer-mgmt-service's config.New loading
// idiom.
type Config struct {
	// Concurrency is the inbox buffer / worker count for the owning
	// orchestrator (how many Runner instances it starts), not used for
	// intra-Runner concurrency, which stays single-threaded per §5
	// regardless of this value.
	Concurrency int `yaml:"concurrency"`

	// Timeout is advisory only: the Runner itself performs no
	// cancellation on its own account (§5's Non-goals).
	Timeout time.Duration `yaml:"timeout"`

	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig mirrors the CLI's flag defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 1, Timeout: 30 * time.Second, LogLevel: "info"}
}

// LoadConfig reads and parses a YAML config file at path, layering it
// over DefaultConfig so an omitted field keeps its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}
