// Package config loads and validates the sweep configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Environments lists environment root directories, one catalog each.
	Environments []string `yaml:"env_folder_paths"`
	// Mode selects the world partition: test (default) or val.
	Mode string `yaml:"mode"`
	// MaxWorlds caps each environment's catalog. Zero means the
	// environment's own default, or all worlds.
	MaxWorlds int `yaml:"max_worlds"`
	// WorldConcurrency bounds concurrent world runs.
	WorldConcurrency int `yaml:"world_concurrency"`

	// Agent selects a custom agent. Mutually exclusive with LLMs.
	Agent Agent `yaml:"agent"`
	// LLMs lists model names to sweep with the built-in solver, one sweep
	// pass per model.
	LLMs     []string `yaml:"llms"`
	Provider string   `yaml:"provider"`

	Pricing      Pricing      `yaml:"pricing"`
	Secrets      Secrets      `yaml:"secrets"`
	Results      Results      `yaml:"results"`
	Trajectories Trajectories `yaml:"trajectories"`
}

type Agent struct {
	// Locator is an agent locator: a registered name, cmd:/path, or
	// docker:image.
	Locator string         `yaml:"locator"`
	Kwargs  map[string]any `yaml:"kwargs"`
}

type Pricing struct {
	File string `yaml:"file"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Trajectories struct {
	// DB is the SQLite file path. Empty disables trajectory persistence.
	DB string `yaml:"db"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Environments) == 0 {
		return fmt.Errorf("no environments defined")
	}
	for i, root := range cfg.Environments {
		if root == "" {
			return fmt.Errorf("environment %d: path is required", i)
		}
	}
	if cfg.Mode == "" {
		cfg.Mode = "test"
	}
	if cfg.Mode != "test" && cfg.Mode != "val" {
		return fmt.Errorf("mode must be test or val, got %q", cfg.Mode)
	}
	if cfg.MaxWorlds < 0 {
		return fmt.Errorf("max_worlds must not be negative")
	}
	if cfg.WorldConcurrency < 1 {
		cfg.WorldConcurrency = 4
	}
	if cfg.Agent.Locator != "" && len(cfg.LLMs) > 0 {
		return fmt.Errorf("agent and llms are mutually exclusive")
	}
	if cfg.Agent.Locator == "" && len(cfg.LLMs) == 0 {
		return fmt.Errorf("either an agent locator or an llms list is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "google"
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	return nil
}
