// Package world defines the environment contract the harness drives. The
// rules of each environment are opaque to the rest of the system: anything
// exposing Reset and Step can be benchmarked.
package world

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
)

// Observation is what the agent sees after reset or a step.
type Observation struct {
	Text   string
	Events []string
}

// StepResult is the environment's response to one action.
type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
}

// Environment is one interactive world instance. Instances are built fresh
// per run and owned exclusively by that run.
type Environment interface {
	Reset(ctx context.Context) (Observation, error)
	Step(ctx context.Context, action string) (StepResult, error)
}

// Builder constructs a fresh Environment for one world.
type Builder func(spec *catalog.EnvironmentSpec, ws catalog.WorldSpec) (Environment, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{}
)

// Register installs a builder under an engine name. Later registrations
// replace earlier ones.
func Register(engine string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[engine] = b
}

// Build constructs an environment instance for the given world using the
// builder registered for the spec's engine.
func Build(spec *catalog.EnvironmentSpec, ws catalog.WorldSpec) (Environment, error) {
	registryMu.RLock()
	b, ok := registry[spec.Engine]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no environment engine registered for %q", spec.Engine)
	}
	return b(spec, ws)
}

// Engines lists registered engine names, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
