package world_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

// endless never terminates on its own; used to exercise the ceiling.
type endless struct{ steps int }

func (e *endless) Reset(ctx context.Context) (world.Observation, error) {
	e.steps = 0
	return world.Observation{Text: "start"}, nil
}

func (e *endless) Step(ctx context.Context, action string) (world.StepResult, error) {
	e.steps++
	return world.StepResult{
		Observation: world.Observation{Text: "running", Events: []string{"tick"}},
		Reward:      1,
	}, nil
}

func TestLimiterCeiling(t *testing.T) {
	ctx := context.Background()
	lim := world.Limit(&endless{}, 5)
	_, err := lim.Reset(ctx)
	require.NoError(t, err)

	var last world.StepResult
	for i := 0; i < 100; i++ {
		last, err = lim.Step(ctx, "go")
		require.NoError(t, err)
		if last.Done {
			break
		}
	}
	assert.True(t, last.Done)
	assert.True(t, lim.Truncated())
	assert.Equal(t, 5, lim.Steps(), "step count must equal the ceiling exactly")
	assert.Equal(t, 5.0, lim.TotalReward())
	assert.Equal(t, 5, lim.Events()["tick"])
	assert.Len(t, lim.Trajectory(), 5)
}

func TestLimiterStepsAfterDoneAreNoops(t *testing.T) {
	ctx := context.Background()
	inner := &endless{}
	lim := world.Limit(inner, 2)
	_, err := lim.Reset(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		if _, err := lim.Step(ctx, "go"); err != nil {
			t.Fatal(err)
		}
	}
	assert.Equal(t, 2, lim.Steps())
	assert.Equal(t, 2, inner.steps, "inner environment must not be stepped past the ceiling")
}

func TestLimiterNaturalTerminationIsNotTruncated(t *testing.T) {
	ctx := context.Background()
	lim := world.Limit(doneAfter(3), 10)
	_, err := lim.Reset(ctx)
	require.NoError(t, err)

	for {
		res, err := lim.Step(ctx, "go")
		require.NoError(t, err)
		if res.Done {
			break
		}
	}
	assert.False(t, lim.Truncated())
	assert.Equal(t, 3, lim.Steps())
}

func TestLimiterObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lim := world.Limit(&endless{}, 0)
	_, err := lim.Reset(ctx)
	require.NoError(t, err)

	cancel()
	_, err = lim.Step(ctx, "go")
	assert.ErrorIs(t, err, context.Canceled)
}

type doneEnv struct{ remaining int }

func doneAfter(n int) *doneEnv { return &doneEnv{remaining: n} }

func (d *doneEnv) Reset(ctx context.Context) (world.Observation, error) {
	return world.Observation{Text: "start"}, nil
}

func (d *doneEnv) Step(ctx context.Context, action string) (world.StepResult, error) {
	d.remaining--
	return world.StepResult{Observation: world.Observation{Text: "ok"}, Done: d.remaining <= 0}, nil
}
