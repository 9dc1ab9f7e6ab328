// Package agent normalizes heterogeneous agent implementations behind a
// single handle the run coordinator can invoke without branching on calling
// convention or construction shape.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

// EnvInfo is the value object handed to the agent at the start of a run.
// Constructed fresh per run and never mutated by the agent.
type EnvInfo struct {
	WorldID          string `json:"world_id"`
	AgentInstruction string `json:"agent_instruction"`
	ActionSpace      string `json:"action_space"`
	MaxStep          int    `json:"max_step"`
}

// RunResult is what an agent reports for one world run. Score is required;
// a nil result is treated as malformed by the coordinator.
type RunResult struct {
	Score  float64        `json:"score"`
	Steps  int            `json:"steps,omitempty"`
	Events map[string]int `json:"events,omitempty"`
}

// Agent is the context-aware calling convention.
type Agent interface {
	Run(ctx context.Context, env world.Environment, info EnvInfo) (*RunResult, error)
}

// SimpleAgent is the context-free calling convention. The adapter wraps it so
// cancellation is still observed at the next environment interaction.
type SimpleAgent interface {
	Run(env world.Environment, info EnvInfo) (*RunResult, error)
}

// Stateful marks agents holding mutable cross-call state (for example a
// conversation buffer). Runs against such an agent are serialized.
type Stateful interface {
	Stateful() bool
}

// Named lets an agent override the handle's display name. The solver uses
// this to surface its model name instead of the generic factory name.
type Named interface {
	AgentName() string
}

// Handle is the normalized, callable representation of a resolved agent.
// It lives for the whole sweep and is shared across concurrent world runs.
type Handle struct {
	name      string
	agent     Agent
	serialize bool
	mu        sync.Mutex
}

// Name returns the resolved agent's display name.
func (h *Handle) Name() string { return h.name }

// Serialized reports whether runs against this handle execute one at a time.
func (h *Handle) Serialized() bool { return h.serialize }

// Run invokes the agent for one world. When the agent is stateful, runs
// against this handle are mutually exclusive; independent handles still run
// in parallel.
func (h *Handle) Run(ctx context.Context, env world.Environment, info EnvInfo) (*RunResult, error) {
	if h.serialize {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.agent.Run(ctx, env, info)
}

type simpleAdapter struct {
	agent SimpleAgent
}

func (a simpleAdapter) Run(ctx context.Context, env world.Environment, info EnvInfo) (*RunResult, error) {
	return a.agent.Run(env, info)
}

// adapt normalizes any supported agent value to the Agent interface.
func adapt(v any) (Agent, error) {
	switch t := v.(type) {
	case Agent:
		return t, nil
	case SimpleAgent:
		return simpleAdapter{agent: t}, nil
	case nil:
		return nil, fmt.Errorf("agent is nil")
	default:
		return nil, fmt.Errorf("%T does not expose a run(env, env_info) entry point", v)
	}
}

func isStateful(v any) bool {
	s, ok := v.(Stateful)
	return ok && s.Stateful()
}
