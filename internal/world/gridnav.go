package world

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
)

// gridNav is the reference environment: a small grid navigation world loaded
// from a level file. It exists so the harness runs end to end without any
// external environment; it is not a generator and carries no rule synthesis.
//
// Level format:
//
//	grid:
//	  - "S.#"
//	  - ".TG"
//	goal_reward: 3.0
//	trap_penalty: -1.0
//
// S start, G goal, # wall, T trap, . open floor.
type gridNav struct {
	grid       []string
	startR     int
	startC     int
	goalReward float64
	trapCost   float64

	r, c int
	done bool
}

type gridLevel struct {
	Grid       []string `yaml:"grid"`
	GoalReward *float64 `yaml:"goal_reward"`
	TrapCost   *float64 `yaml:"trap_penalty"`
}

func init() {
	Register("gridnav", NewGridNav)
}

// NewGridNav builds a grid navigation environment from a world's level file.
func NewGridNav(spec *catalog.EnvironmentSpec, ws catalog.WorldSpec) (Environment, error) {
	data, err := os.ReadFile(ws.Path)
	if err != nil {
		return nil, fmt.Errorf("reading level %s: %w", ws.WorldID, err)
	}
	var level gridLevel
	if err := yaml.Unmarshal(data, &level); err != nil {
		return nil, fmt.Errorf("parsing level %s: %w", ws.WorldID, err)
	}
	if len(level.Grid) == 0 {
		return nil, fmt.Errorf("level %s: empty grid", ws.WorldID)
	}

	g := &gridNav{grid: level.Grid, startR: -1, goalReward: 1.0, trapCost: -1.0}
	if level.GoalReward != nil {
		g.goalReward = *level.GoalReward
	}
	if level.TrapCost != nil {
		g.trapCost = *level.TrapCost
	}
	for r, row := range level.Grid {
		if c := strings.IndexByte(row, 'S'); c >= 0 {
			g.startR, g.startC = r, c
		}
	}
	if g.startR < 0 {
		return nil, fmt.Errorf("level %s: no start cell", ws.WorldID)
	}
	return g, nil
}

func (g *gridNav) Reset(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	g.r, g.c = g.startR, g.startC
	g.done = false
	return Observation{Text: g.render()}, nil
}

func (g *gridNav) Step(ctx context.Context, action string) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if g.done {
		return StepResult{Observation: Observation{Text: g.render()}, Done: true}, nil
	}

	dr, dc := 0, 0
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "up":
		dr = -1
	case "down":
		dr = 1
	case "left":
		dc = -1
	case "right":
		dc = 1
	default:
		return StepResult{
			Observation: Observation{Text: g.render(), Events: []string{"invalid_action"}},
		}, nil
	}

	nr, nc := g.r+dr, g.c+dc
	if nr < 0 || nr >= len(g.grid) || nc < 0 || nc >= len(g.grid[nr]) || g.grid[nr][nc] == '#' {
		return StepResult{
			Observation: Observation{Text: g.render(), Events: []string{"blocked"}},
		}, nil
	}

	g.r, g.c = nr, nc
	switch g.grid[nr][nc] {
	case 'G':
		g.done = true
		return StepResult{
			Observation: Observation{Text: g.render(), Events: []string{"goal"}},
			Reward:      g.goalReward,
			Done:        true,
		}, nil
	case 'T':
		return StepResult{
			Observation: Observation{Text: g.render(), Events: []string{"trap"}},
			Reward:      g.trapCost,
		}, nil
	default:
		return StepResult{Observation: Observation{Text: g.render()}}, nil
	}
}

func (g *gridNav) render() string {
	var b strings.Builder
	for r, row := range g.grid {
		if r > 0 {
			b.WriteByte('\n')
		}
		for c := 0; c < len(row); c++ {
			if r == g.r && c == g.c {
				b.WriteByte('A')
			} else {
				b.WriteByte(row[c])
			}
		}
	}
	return b.String()
}
