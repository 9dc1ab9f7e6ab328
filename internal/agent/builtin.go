package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

func init() {
	RegisterFactory("null", func(kwargs map[string]any) (any, error) {
		return nullAgent{}, nil
	})
	RegisterFactory("scripted", newScriptedAgent)
	RegisterFactory("solver", newSolverAgent)
}

// decodeKwargs maps loosely-typed constructor kwargs onto a config struct.
func decodeKwargs(kwargs map[string]any, out any) error {
	if len(kwargs) == 0 {
		return nil
	}
	data, err := json.Marshal(kwargs)
	if err != nil {
		return fmt.Errorf("encoding kwargs: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding kwargs: %w", err)
	}
	return nil
}

// nullAgent resets the environment and reports score zero without taking a
// step. It uses the context-free convention on purpose, exercising the
// adapter's wrapping path.
type nullAgent struct{}

func (nullAgent) Run(env world.Environment, info EnvInfo) (*RunResult, error) {
	if _, err := env.Reset(context.Background()); err != nil {
		return nil, err
	}
	return &RunResult{Score: 0}, nil
}

func (nullAgent) Stateful() bool { return false }

type scriptedConfig struct {
	Actions []string `json:"actions"`
	Cycle   bool     `json:"cycle"`
}

// scriptedAgent replays a fixed action sequence. Used by tests and as a
// template for wiring custom policies.
type scriptedAgent struct {
	cfg scriptedConfig
}

func newScriptedAgent(kwargs map[string]any) (any, error) {
	var cfg scriptedConfig
	if err := decodeKwargs(kwargs, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Actions) == 0 {
		return nil, fmt.Errorf("scripted agent needs a non-empty actions list")
	}
	return &scriptedAgent{cfg: cfg}, nil
}

func (s *scriptedAgent) Run(ctx context.Context, env world.Environment, info EnvInfo) (*RunResult, error) {
	if _, err := env.Reset(ctx); err != nil {
		return nil, err
	}
	var (
		total float64
		steps int
	)
	for i := 0; ; i++ {
		idx := i
		if s.cfg.Cycle {
			idx = i % len(s.cfg.Actions)
		} else if i >= len(s.cfg.Actions) {
			break
		}
		res, err := env.Step(ctx, s.cfg.Actions[idx])
		if err != nil {
			return nil, err
		}
		steps++
		total += res.Reward
		if res.Done {
			break
		}
	}
	return &RunResult{Score: total, Steps: steps}, nil
}

func (s *scriptedAgent) Stateful() bool { return false }
