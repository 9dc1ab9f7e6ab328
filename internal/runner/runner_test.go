package runner_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SNHuan/AutoEnv-Huan/internal/agent"
	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/result"
	"github.com/SNHuan/AutoEnv-Huan/internal/runner"
	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

// writeEnv lays out a gridnav environment root with n identical solvable
// levels. The goal is one step to the right of the start.
func writeEnv(t *testing.T, dir, name string, n, maxSteps int) string {
	t.Helper()
	root := filepath.Join(dir, name)
	levels := filepath.Join(root, "levels")
	require.NoError(t, os.MkdirAll(levels, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "agent_instruction.txt"), []byte("reach the goal"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "action_space.txt"), []byte("up down left right"), 0o644))
	cfg := fmt.Sprintf("engine: gridnav\ntermination:\n  max_steps: %d\n", maxSteps)
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte(cfg), 0o644))
	for i := 0; i < n; i++ {
		level := "grid:\n  - \"SG\"\ngoal_reward: 1.0\n"
		path := filepath.Join(levels, fmt.Sprintf("world_%02d.yaml", i))
		require.NoError(t, os.WriteFile(path, []byte(level), 0o644))
	}
	return root
}

func resolveScripted(t *testing.T, actions []string, cycle bool) *agent.Handle {
	t.Helper()
	h, err := agent.Resolve("scripted", map[string]any{"actions": actions, "cycle": cycle})
	require.NoError(t, err)
	return h
}

func loadOne(t *testing.T, root string) (*catalog.EnvironmentSpec, []catalog.WorldSpec) {
	t.Helper()
	spec, err := catalog.LoadEnvironment(root)
	require.NoError(t, err)
	worlds, err := catalog.Load(root, catalog.PartitionTest, 0)
	require.NoError(t, err)
	return spec, worlds
}

func TestRunWorldCompleted(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 1, 10)
	spec, worlds := loadOne(t, root)
	h := resolveScripted(t, []string{"right"}, false)

	o := runner.RunWorld(context.Background(), spec, worlds[0], h, nil, "")
	assert.Equal(t, result.StatusCompleted, o.Status)
	assert.Equal(t, 1.0, o.Score)
	assert.Equal(t, 1, o.Steps)
	assert.False(t, o.Cancelled)
	assert.Nil(t, o.Cost, "custom agent run must not carry a cost record")
	require.Len(t, o.Trajectory, 1)
	assert.Equal(t, "right", o.Trajectory[0].Action)
	assert.Equal(t, map[string]int{"goal": 1}, o.Events)
}

func TestRunWorldTruncatedAtCeiling(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 1, 4)
	spec, worlds := loadOne(t, root)
	// Walking into the top wall forever never terminates naturally.
	h := resolveScripted(t, []string{"up"}, true)

	o := runner.RunWorld(context.Background(), spec, worlds[0], h, nil, "")
	assert.Equal(t, result.StatusTruncated, o.Status)
	assert.Equal(t, 4, o.Steps, "truncation consumes exactly the budget")
	assert.Len(t, o.Trajectory, 4)
	assert.True(t, o.Trajectory[3].Done)
}

func TestRunWorldNaturalFinishAtCeilingIsCompleted(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 1, 1)
	spec, worlds := loadOne(t, root)
	h := resolveScripted(t, []string{"right"}, false)

	o := runner.RunWorld(context.Background(), spec, worlds[0], h, nil, "")
	assert.Equal(t, result.StatusCompleted, o.Status)
	assert.Equal(t, 1, o.Steps)
}

func TestRunWorldCancelled(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 1, 100)
	spec, worlds := loadOne(t, root)
	h := resolveScripted(t, []string{"up"}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := runner.RunWorld(ctx, spec, worlds[0], h, nil, "")
	assert.Equal(t, result.StatusErrored, o.Status)
	assert.True(t, o.Cancelled)
	assert.Empty(t, o.Trajectory, "cancelled runs discard partial trajectories")
	assert.Nil(t, o.Cost)
	assert.NotEmpty(t, o.Err)
}

// explodingAgent panics mid-run, like a buggy user policy would.
type explodingAgent struct{}

func (explodingAgent) Run(ctx context.Context, env world.Environment, info agent.EnvInfo) (*agent.RunResult, error) {
	if _, err := env.Reset(ctx); err != nil {
		return nil, err
	}
	panic("index out of range in user policy")
}

func (explodingAgent) Stateful() bool { return false }

func TestRunWorldAgentPanicBecomesErroredOutcome(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 2, 10)
	spec, worlds := loadOne(t, root)

	agent.RegisterInstance("exploding-for-runner-test", explodingAgent{})
	h, err := agent.Resolve("exploding-for-runner-test", nil)
	require.NoError(t, err)

	o := runner.RunWorld(context.Background(), spec, worlds[0], h, nil, "")
	require.NotNil(t, o)
	assert.Equal(t, result.StatusErrored, o.Status)
	assert.Contains(t, o.Err, "panicked")
	assert.False(t, o.Cancelled)

	// A sweep sharing the process with the panicking agent keeps its other
	// runs: every scheduled world still resolves to an outcome.
	c := runner.NewCoordinator(h, runner.Options{Partition: catalog.PartitionTest, Parallel: 2})
	sweep, errs := c.Sweep(context.Background(), "sweep-panic", []string{root}, nil)
	assert.Empty(t, errs)
	require.Len(t, sweep.Envs, 1)
	env := sweep.Envs[0]
	require.Len(t, env.Outcomes, 2)
	assert.Equal(t, 2, env.Errored)
}

func TestRunWorldBuildFailureErrored(t *testing.T) {
	dir := t.TempDir()
	root := writeEnv(t, dir, "gridnav", 1, 10)
	spec, worlds := loadOne(t, root)
	spec.Engine = "no-such-engine"
	h := resolveScripted(t, []string{"right"}, false)

	o := runner.RunWorld(context.Background(), spec, worlds[0], h, nil, "")
	assert.Equal(t, result.StatusErrored, o.Status)
	assert.Zero(t, o.Steps)
	assert.Contains(t, o.Err, "no-such-engine")
}

// meteredAgent fakes a model-backed policy: it reports usage through the run
// context the way the solver does, then plays a fixed action.
type meteredAgent struct{}

func (meteredAgent) Run(ctx context.Context, env world.Environment, info agent.EnvInfo) (*agent.RunResult, error) {
	if _, err := env.Reset(ctx); err != nil {
		return nil, err
	}
	cost.Observe(ctx, "test-model", 100, 20)
	res, err := env.Step(ctx, "right")
	if err != nil {
		return nil, err
	}
	return &agent.RunResult{Score: res.Reward, Steps: 1}, nil
}

func (meteredAgent) Stateful() bool { return false }

func TestRunWorldCostOnlyForMeteredRuns(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 2, 10)
	spec, worlds := loadOne(t, root)
	table := &cost.Table{Providers: map[string]map[string]cost.ModelPricing{
		"test": {"test-model": {Input: 0.01, Output: 0.02}},
	}}

	agent.RegisterInstance("metered-for-runner-test", meteredAgent{})
	metered, err := agent.Resolve("metered-for-runner-test", nil)
	require.NoError(t, err)
	custom := resolveScripted(t, []string{"right"}, false)

	withCost := runner.RunWorld(context.Background(), spec, worlds[0], metered, table, "test")
	require.NotNil(t, withCost.Cost)
	assert.Equal(t, 1, withCost.Cost.Calls)
	assert.Equal(t, 100, withCost.Cost.InputTokens)
	assert.InDelta(t, 0.001+0.0004, withCost.Cost.TotalUSD, 1e-9)

	// A custom agent run in the same process stays cost-free.
	noCost := runner.RunWorld(context.Background(), spec, worlds[1], custom, table, "test")
	assert.Nil(t, noCost.Cost)
	assert.Equal(t, result.StatusCompleted, noCost.Status)
}

func TestSweepCapsCatalogAndKeepsOrder(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 10, 10)
	h, err := agent.Resolve("null", nil)
	require.NoError(t, err)

	c := runner.NewCoordinator(h, runner.Options{
		Partition: catalog.PartitionTest,
		MaxWorlds: 5,
		Parallel:  3,
	})
	sweep, errs := c.Sweep(context.Background(), "sweep-1", []string{root}, nil)
	assert.Empty(t, errs)

	require.Len(t, sweep.Envs, 1)
	env := sweep.Envs[0]
	require.Len(t, env.Outcomes, 5)
	assert.Equal(t, 5, env.Completed)
	assert.Zero(t, env.Truncated)
	assert.Zero(t, env.Errored)
	for i, o := range env.Outcomes {
		assert.Equal(t, fmt.Sprintf("world_%02d", i), o.WorldID)
		assert.Equal(t, result.StatusCompleted, o.Status)
		assert.Nil(t, o.Cost)
	}
}

func TestSweepEnvFailureIsolated(t *testing.T) {
	dir := t.TempDir()
	good := writeEnv(t, dir, "gridnav", 2, 10)
	bad := filepath.Join(dir, "broken")
	require.NoError(t, os.MkdirAll(bad, 0o755))

	h := resolveScripted(t, []string{"right"}, false)
	c := runner.NewCoordinator(h, runner.Options{Partition: catalog.PartitionTest, Parallel: 2})
	sweep, errs := c.Sweep(context.Background(), "sweep-2", []string{good, bad}, nil)
	assert.Empty(t, errs)

	require.Len(t, sweep.Envs, 2)
	byName := map[string]bool{}
	for _, env := range sweep.Envs {
		byName[env.Env] = env.LoadError != ""
	}
	assert.False(t, byName["gridnav"], "healthy environment must still produce results")
	assert.True(t, byName["broken"], "unusable environment reported as load failure")
}

func TestSweepOneOutcomePerWorld(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 6, 10)
	h := resolveScripted(t, []string{"right"}, false)

	var (
		mu   sync.Mutex
		seen []string
	)
	c := runner.NewCoordinator(h, runner.Options{Partition: catalog.PartitionTest, Parallel: 4})
	sweep, errs := c.Sweep(context.Background(), "sweep-3", []string{root}, func(o *result.Outcome) error {
		mu.Lock()
		seen = append(seen, o.WorldID)
		mu.Unlock()
		return nil
	})
	assert.Empty(t, errs)

	require.Len(t, sweep.Envs, 1)
	env := sweep.Envs[0]
	assert.Len(t, seen, 6, "sink sees every outcome exactly once")
	assert.Equal(t, len(env.Outcomes), env.Completed+env.Truncated+env.Errored)
}

func TestSweepCancelledStillYieldsOneOutcomePerWorld(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 8, 100)
	h := resolveScripted(t, []string{"right"}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Parallel is far below the world count, so most jobs are still waiting
	// on the throttle when cancellation hits.
	c := runner.NewCoordinator(h, runner.Options{Partition: catalog.PartitionTest, Parallel: 2})
	sweep, errs := c.Sweep(ctx, "sweep-cancel", []string{root}, nil)
	assert.Empty(t, errs)

	require.Len(t, sweep.Envs, 1)
	env := sweep.Envs[0]
	require.Len(t, env.Outcomes, 8)
	assert.Equal(t, 8, env.Errored)
	for _, o := range env.Outcomes {
		assert.Equal(t, result.StatusErrored, o.Status)
		assert.True(t, o.Cancelled)
		assert.Empty(t, o.Trajectory)
		assert.Nil(t, o.Cost)
	}
}

func TestSweepCollectsSinkErrors(t *testing.T) {
	root := writeEnv(t, t.TempDir(), "gridnav", 3, 10)
	h, err := agent.Resolve("null", nil)
	require.NoError(t, err)

	c := runner.NewCoordinator(h, runner.Options{Partition: catalog.PartitionTest, Parallel: 1})
	_, errs := c.Sweep(context.Background(), "sweep-4", []string{root}, func(o *result.Outcome) error {
		if o.WorldID == "world_01" {
			return fmt.Errorf("disk full")
		}
		return nil
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "disk full")
}
