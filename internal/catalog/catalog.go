// Package catalog resolves environment directories into ordered world
// catalogs. Each environment root holds agent_instruction.txt,
// action_space.txt, an optional config.yaml, and one level file per world
// under levels/ (test partition) or val_levels/ (validation partition).
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Partition selects which world set of an environment to load.
type Partition string

const (
	PartitionTest Partition = "test"
	PartitionVal  Partition = "val"
)

// ParsePartition normalizes a mode string, defaulting to the test partition.
func ParsePartition(s string) (Partition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "test":
		return PartitionTest, nil
	case "val", "validation":
		return PartitionVal, nil
	default:
		return "", fmt.Errorf("unknown partition %q (want test or val)", s)
	}
}

func (p Partition) dir() string {
	if p == PartitionVal {
		return "val_levels"
	}
	return "levels"
}

// EnvironmentSpec identifies one environment. Immutable once loaded.
type EnvironmentSpec struct {
	Name             string
	Root             string
	Engine           string
	AgentInstruction string
	ActionSpace      string
	MaxStep          int
	DefaultWorlds    int
}

// WorldSpec is one concrete level belonging to an environment.
type WorldSpec struct {
	WorldID   string
	Partition Partition
	Path      string
	// Index is the position in catalog order; the aggregator sorts by it.
	Index int
}

// Error reports an unusable world source. Fatal for that environment only.
type Error struct {
	Env       string
	Partition Partition
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog %s (%s): %v", e.Env, e.Partition, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type envConfig struct {
	Engine      string `yaml:"engine"`
	MaxWorlds   int    `yaml:"max_worlds"`
	Termination struct {
		MaxSteps int `yaml:"max_steps"`
	} `yaml:"termination"`
}

// LoadEnvironment reads an environment root into an EnvironmentSpec.
func LoadEnvironment(root string) (*EnvironmentSpec, error) {
	name := filepath.Base(strings.TrimRight(root, "/"))
	spec := &EnvironmentSpec{Name: name, Root: root, Engine: name}

	instruction, err := os.ReadFile(filepath.Join(root, "agent_instruction.txt"))
	if err != nil {
		return nil, &Error{Env: name, Err: fmt.Errorf("reading agent instruction: %w", err)}
	}
	spec.AgentInstruction = string(instruction)

	actions, err := os.ReadFile(filepath.Join(root, "action_space.txt"))
	if err != nil {
		return nil, &Error{Env: name, Err: fmt.Errorf("reading action space: %w", err)}
	}
	spec.ActionSpace = string(actions)

	if data, err := os.ReadFile(filepath.Join(root, "config.yaml")); err == nil {
		var cfg envConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &Error{Env: name, Err: fmt.Errorf("parsing config.yaml: %w", err)}
		}
		if cfg.Engine != "" {
			spec.Engine = cfg.Engine
		}
		spec.MaxStep = cfg.Termination.MaxSteps
		spec.DefaultWorlds = cfg.MaxWorlds
	}
	return spec, nil
}

// Load lists the worlds of an environment in catalog order.
//
// maxWorlds > 0 truncates the catalog, preserving order so repeated runs with
// the same cap are reproducible. Returns a *Error when the partition
// directory is missing or yields zero parsable worlds.
func Load(root string, partition Partition, maxWorlds int) ([]WorldSpec, error) {
	name := filepath.Base(strings.TrimRight(root, "/"))
	levelsDir := filepath.Join(root, partition.dir())

	entries, err := os.ReadDir(levelsDir)
	if err != nil {
		return nil, &Error{Env: name, Partition: partition, Err: fmt.Errorf("reading level dir: %w", err)}
	}

	var worlds []WorldSpec
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(levelsDir, entry.Name())
		if !parsableLevel(path) {
			continue
		}
		worlds = append(worlds, WorldSpec{
			WorldID:   strings.TrimSuffix(entry.Name(), ".yaml"),
			Partition: partition,
			Path:      path,
		})
	}
	if len(worlds) == 0 {
		return nil, &Error{Env: name, Partition: partition, Err: fmt.Errorf("no parsable worlds in %s", levelsDir)}
	}

	sort.Slice(worlds, func(i, j int) bool { return worlds[i].WorldID < worlds[j].WorldID })
	if maxWorlds > 0 && len(worlds) > maxWorlds {
		worlds = worlds[:maxWorlds]
	}
	for i := range worlds {
		worlds[i].Index = i
	}
	return worlds, nil
}

func parsableLevel(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var doc any
	return yaml.Unmarshal(data, &doc) == nil
}

type maxRewardsFile struct {
	Levels map[string]struct {
		MaxReward float64 `json:"max_reward"`
	} `json:"levels"`
}

// MaxRewards loads the per-world maximum rewards for an environment from
// level_max_rewards.json. A missing file is not an error; the aggregator
// simply reports no success ratio.
func MaxRewards(root string) (map[string]float64, error) {
	data, err := os.ReadFile(filepath.Join(root, "level_max_rewards.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("reading max rewards: %w", err)
	}
	var parsed maxRewardsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing max rewards: %w", err)
	}
	rewards := make(map[string]float64, len(parsed.Levels))
	for level, info := range parsed.Levels {
		rewards[strings.TrimSuffix(level, ".yaml")] = info.MaxReward
	}
	return rewards, nil
}
