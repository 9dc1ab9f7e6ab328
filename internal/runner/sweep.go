package runner

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/SNHuan/AutoEnv-Huan/internal/agent"
	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/report"
	"github.com/SNHuan/AutoEnv-Huan/internal/result"
)

// Options configures one sweep.
type Options struct {
	Partition catalog.Partition
	// MaxWorlds caps each environment's catalog. Zero defers to the
	// environment's own configured default; zero there too means all worlds.
	MaxWorlds int
	// Parallel bounds concurrent world runs across all environments.
	Parallel int
	// Pricing is consulted for metered runs. Nil disables pricing but not
	// token counting.
	Pricing  *cost.Table
	Provider string
}

// Coordinator fans one agent out over environment catalogs and aggregates the
// outcomes. The handle is shared across all runs; serialization for stateful
// agents happens inside it.
type Coordinator struct {
	handle *agent.Handle
	opts   Options
}

func NewCoordinator(handle *agent.Handle, opts Options) *Coordinator {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Coordinator{handle: handle, opts: opts}
}

// Sweep runs the agent against every world of every environment root and
// returns the aggregated summary. Environments whose catalog cannot be loaded
// are reported as load failures and skipped; they never abort the sweep.
//
// onOutcome, when non-nil, is invoked for each outcome as it resolves, from
// the worker goroutine that produced it. Persistence errors it returns are
// collected and handed back after the sweep finishes.
func (c *Coordinator) Sweep(ctx context.Context, sweepID string, envRoots []string, onOutcome func(*result.Outcome) error) (*report.Sweep, []error) {
	agg := report.NewAggregator(sweepID, c.handle.Name(), string(c.opts.Partition), c.opts.MaxWorlds)

	var jobs []Job
	for _, root := range envRoots {
		spec, err := catalog.LoadEnvironment(root)
		if err != nil {
			name := root
			var cerr *catalog.Error
			if errors.As(err, &cerr) {
				name = cerr.Env
			}
			log.Error().Str("env", name).Err(err).Msg("environment unusable")
			agg.EnvFailed(name, err)
			continue
		}

		maxWorlds := c.opts.MaxWorlds
		if maxWorlds == 0 {
			maxWorlds = spec.DefaultWorlds
		}
		worlds, err := catalog.Load(root, c.opts.Partition, maxWorlds)
		if err != nil {
			log.Error().Str("env", spec.Name).Err(err).Msg("catalog unusable")
			agg.EnvFailed(spec.Name, err)
			continue
		}

		rewards, err := catalog.MaxRewards(root)
		if err != nil {
			log.Warn().Str("env", spec.Name).Err(err).Msg("max rewards unreadable, skipping success ratio")
		} else {
			agg.SetMaxRewards(spec.Name, rewards)
		}

		log.Info().
			Str("env", spec.Name).
			Str("partition", string(c.opts.Partition)).
			Int("worlds", len(worlds)).
			Msg("environment scheduled")

		for _, ws := range worlds {
			spec, ws := spec, ws
			jobs = append(jobs, func() error {
				o := RunWorld(ctx, spec, ws, c.handle, c.opts.Pricing, c.opts.Provider)
				agg.Add(o)
				if onOutcome != nil {
					return onOutcome(o)
				}
				return nil
			})
		}
	}

	errs := RunPool(ctx, c.opts.Parallel, jobs)
	return agg.Finalize(), errs
}
