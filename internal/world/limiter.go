package world

import (
	"context"
	"sync"
)

// TrajectoryStep is one observation/action/reward record.
type TrajectoryStep struct {
	Step        int     `json:"step"`
	Observation string  `json:"observation"`
	Action      string  `json:"action"`
	Reward      float64 `json:"reward"`
	Done        bool    `json:"done"`
}

// Limiter wraps an Environment with a hard step ceiling and trajectory
// recording. The agent interacts with the Limiter, so the environment side
// of the boundary is the source of truth for step counting: an agent cannot
// run past the ceiling no matter what its own loop does.
type Limiter struct {
	env     Environment
	maxStep int

	mu        sync.Mutex
	steps     int
	truncated bool
	done      bool
	reward    float64
	events    map[string]int
	lastObs   string
	traj      []TrajectoryStep
}

// Limit wraps env with a step ceiling. maxStep <= 0 means no ceiling.
func Limit(env Environment, maxStep int) *Limiter {
	return &Limiter{env: env, maxStep: maxStep, events: map[string]int{}}
}

func (l *Limiter) Reset(ctx context.Context) (Observation, error) {
	obs, err := l.env.Reset(ctx)
	if err != nil {
		return Observation{}, err
	}
	l.mu.Lock()
	l.steps = 0
	l.truncated = false
	l.done = false
	l.reward = 0
	l.events = map[string]int{}
	l.lastObs = obs.Text
	l.traj = nil
	l.mu.Unlock()
	return obs, nil
}

func (l *Limiter) Step(ctx context.Context, action string) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	l.mu.Lock()
	if l.done {
		done := StepResult{Observation: Observation{Text: l.lastObs}, Done: true}
		l.mu.Unlock()
		return done, nil
	}
	l.mu.Unlock()

	res, err := l.env.Step(ctx, action)
	if err != nil {
		return StepResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps++
	l.reward += res.Reward
	l.lastObs = res.Observation.Text
	for _, ev := range res.Observation.Events {
		l.events[ev]++
	}
	if !res.Done && l.maxStep > 0 && l.steps >= l.maxStep {
		res.Done = true
		l.truncated = true
	}
	l.done = res.Done
	l.traj = append(l.traj, TrajectoryStep{
		Step:        l.steps,
		Observation: res.Observation.Text,
		Action:      action,
		Reward:      res.Reward,
		Done:        res.Done,
	})
	return res, nil
}

// Steps returns the number of environment steps consumed so far.
func (l *Limiter) Steps() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps
}

// Truncated reports whether the ceiling ended the run before natural
// termination.
func (l *Limiter) Truncated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.truncated
}

// TotalReward returns the reward accumulated across all steps.
func (l *Limiter) TotalReward() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reward
}

// Events returns counts of named events observed during the run.
func (l *Limiter) Events() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.events))
	for k, v := range l.events {
		out[k] = v
	}
	return out
}

// Trajectory returns a copy of the recorded steps.
func (l *Limiter) Trajectory() []TrajectoryStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TrajectoryStep, len(l.traj))
	copy(out, l.traj)
	return out
}
