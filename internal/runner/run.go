// Package runner schedules world runs against a resolved agent and drives
// each run through its lifecycle: environment construction, reset, stepping,
// and a terminal outcome. Every scheduled world yields exactly one outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SNHuan/AutoEnv-Huan/internal/agent"
	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/result"
	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

// RunWorld executes one world against the agent handle and always returns an
// outcome, never nil. Agent and environment failures become errored outcomes.
//
// When table is non-nil the run is metered: model calls made by the agent are
// observed through the context and priced against the table. Custom agents
// simply never touch the meter, so their outcomes carry no cost record.
func RunWorld(ctx context.Context, spec *catalog.EnvironmentSpec, ws catalog.WorldSpec, handle *agent.Handle, table *cost.Table, provider string) *result.Outcome {
	started := time.Now()
	out := &result.Outcome{
		Env:          spec.Name,
		WorldID:      ws.WorldID,
		CatalogIndex: ws.Index,
	}
	finish := func() *result.Outcome {
		out.DurationS = time.Since(started).Seconds()
		out.FinishedAt = time.Now().UTC()
		return out
	}
	fail := func(err error) *result.Outcome {
		out.Status = result.StatusErrored
		out.Err = err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			out.Cancelled = true
			// A cancelled run's partial trajectory and usage are not
			// meaningful; drop them rather than report half a run.
			out.Trajectory = nil
			out.Events = nil
			out.Cost = nil
		}
		log.Debug().Str("env", spec.Name).Str("world", ws.WorldID).Err(err).Msg("run errored")
		return finish()
	}

	env, err := world.Build(spec, ws)
	if err != nil {
		// Construction failed before any budget was consumed.
		return fail(err)
	}

	lim := world.Limit(env, spec.MaxStep)
	if _, err := lim.Reset(ctx); err != nil {
		return fail(err)
	}

	meter := cost.NewMeter(table, provider)
	runCtx := cost.WithMeter(ctx, meter)

	info := agent.EnvInfo{
		WorldID:          ws.WorldID,
		AgentInstruction: spec.AgentInstruction,
		ActionSpace:      spec.ActionSpace,
		MaxStep:          spec.MaxStep,
	}

	res, err := runAgent(runCtx, handle, lim, info)

	out.Steps = lim.Steps()
	out.Events = lim.Events()
	out.Trajectory = lim.Trajectory()
	out.Cost = meter.Snapshot()

	if err != nil {
		return fail(err)
	}
	if res == nil {
		return fail(errors.New("agent returned no result"))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	out.Score = res.Score
	if lim.Truncated() {
		out.Status = result.StatusTruncated
	} else {
		out.Status = result.StatusCompleted
	}
	log.Debug().
		Str("env", spec.Name).
		Str("world", ws.WorldID).
		Str("status", string(out.Status)).
		Float64("score", out.Score).
		Int("steps", out.Steps).
		Msg("run finished")
	return finish()
}

// runAgent invokes the agent and contains its failures: a panicking agent
// errors its own run instead of taking down every in-flight run in the
// process.
func runAgent(ctx context.Context, handle *agent.Handle, env world.Environment, info agent.EnvInfo) (res *agent.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()
	return handle.Run(ctx, env, info)
}
