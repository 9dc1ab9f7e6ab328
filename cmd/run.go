package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SNHuan/AutoEnv-Huan/internal/agent"
	"github.com/SNHuan/AutoEnv-Huan/internal/catalog"
	"github.com/SNHuan/AutoEnv-Huan/internal/config"
	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/report"
	"github.com/SNHuan/AutoEnv-Huan/internal/result"
	"github.com/SNHuan/AutoEnv-Huan/internal/runner"
)

var (
	flagMode        string
	flagMaxWorlds   int
	flagAgent       string
	flagAgentKwargs string
	flagParallel    int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run agents against the configured environments",
		RunE:  runSweep,
	}
	cmd.Flags().StringVar(&flagMode, "mode", "", "world partition (test or val)")
	cmd.Flags().IntVar(&flagMaxWorlds, "max-worlds", 0, "cap on worlds per environment")
	cmd.Flags().StringVar(&flagAgent, "agent", "", "agent locator, overrides config")
	cmd.Flags().StringVar(&flagAgentKwargs, "agent-kwargs", "", "agent constructor kwargs as a JSON object")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent world runs")
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagMode != "" {
		cfg.Mode = flagMode
	}
	if flagMaxWorlds > 0 {
		cfg.MaxWorlds = flagMaxWorlds
	}
	if flagParallel > 0 {
		cfg.WorldConcurrency = flagParallel
	}
	if flagAgent != "" {
		cfg.Agent.Locator = flagAgent
		cfg.LLMs = nil
	}
	if flagAgentKwargs != "" {
		kwargs := map[string]any{}
		if err := json.Unmarshal([]byte(flagAgentKwargs), &kwargs); err != nil {
			return fmt.Errorf("parsing --agent-kwargs: %w", err)
		}
		cfg.Agent.Kwargs = kwargs
	}

	partition, err := catalog.ParsePartition(cfg.Mode)
	if err != nil {
		return err
	}

	if cfg.Secrets.EnvFile != "" {
		if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil {
			log.Warn().Str("file", cfg.Secrets.EnvFile).Err(err).Msg("could not load secrets")
		}
	}

	var pricing *cost.Table
	if cfg.Pricing.File != "" {
		pricing, err = cost.LoadTable(cfg.Pricing.File)
		if err != nil {
			return err
		}
	}

	// Resolve every agent up front. A bad locator aborts before any world is
	// scheduled or any artifact is written.
	handles, err := resolveHandles(cfg)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	ctx := context.Background()

	var store *result.TrajectoryStore
	if cfg.Trajectories.DB != "" {
		store = result.NewTrajectoryStore(cfg.Trajectories.DB)
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("opening trajectory store: %w", err)
		}
		defer store.Close()
	}

	for _, h := range handles {
		passDir := runDir
		if len(handles) > 1 {
			passDir = filepath.Join(runDir, h.Name())
			if err := os.MkdirAll(passDir, 0o755); err != nil {
				return fmt.Errorf("creating pass dir: %w", err)
			}
		}
		if err := runPass(ctx, cfg, partition, pricing, h, passDir, store); err != nil {
			return err
		}
	}
	return nil
}

func resolveHandles(cfg *config.Config) ([]*agent.Handle, error) {
	if cfg.Agent.Locator != "" {
		h, err := agent.Resolve(cfg.Agent.Locator, cfg.Agent.Kwargs)
		if err != nil {
			return nil, err
		}
		return []*agent.Handle{h}, nil
	}
	var handles []*agent.Handle
	for _, model := range cfg.LLMs {
		h, err := agent.Resolve("solver", map[string]any{"model": model, "provider": cfg.Provider})
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func runPass(ctx context.Context, cfg *config.Config, partition catalog.Partition, pricing *cost.Table, h *agent.Handle, passDir string, store *result.TrajectoryStore) error {
	sweepID := uuid.NewString()
	fmt.Printf("Sweeping %s (%s partition, sweep %s)...\n", h.Name(), partition, sweepID)

	c := runner.NewCoordinator(h, runner.Options{
		Partition: partition,
		MaxWorlds: cfg.MaxWorlds,
		Parallel:  cfg.WorldConcurrency,
		Pricing:   pricing,
		Provider:  cfg.Provider,
	})
	sweep, errs := c.Sweep(ctx, sweepID, cfg.Environments, func(o *result.Outcome) error {
		if err := result.WriteOutcome(passDir, o); err != nil {
			return err
		}
		if store != nil && !o.Cancelled {
			return store.SaveRun(ctx, sweepID, o)
		}
		return nil
	})
	for _, err := range errs {
		fmt.Printf("  ERROR: %v\n", err)
	}

	var outcomes []*result.Outcome
	for _, env := range sweep.Envs {
		outcomes = append(outcomes, env.Outcomes...)
	}
	if err := result.WriteCSV(passDir, h.Name(), outcomes); err != nil {
		return err
	}
	if err := writeSweepJSON(passDir, sweep); err != nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	return report.Render(sweep, "table", os.Stdout)
}

func writeSweepJSON(passDir string, sweep *report.Sweep) error {
	f, err := os.Create(filepath.Join(passDir, "sweep.json"))
	if err != nil {
		return fmt.Errorf("creating sweep.json: %w", err)
	}
	defer f.Close()
	return report.Render(sweep, "json", f)
}
