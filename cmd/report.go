package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SNHuan/AutoEnv-Huan/internal/config"
	"github.com/SNHuan/AutoEnv-Huan/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Re-render a stored sweep report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			sweeps, err := findSweeps(resolved)
			if err != nil {
				return err
			}
			if len(sweeps) == 0 {
				return fmt.Errorf("no sweep.json found under %s", resolved)
			}
			for i, path := range sweeps {
				if i > 0 {
					fmt.Println()
				}
				s, err := readSweep(path)
				if err != nil {
					return err
				}
				if err := report.Render(s, flagFormat, os.Stdout); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}

// findSweeps locates sweep.json at the run dir root or, for multi-agent runs,
// one level down in the per-agent pass directories.
func findSweeps(runDir string) ([]string, error) {
	direct := filepath.Join(runDir, "sweep.json")
	if _, err := os.Stat(direct); err == nil {
		return []string{direct}, nil
	}
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	var sweeps []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		nested := filepath.Join(runDir, entry.Name(), "sweep.json")
		if _, err := os.Stat(nested); err == nil {
			sweeps = append(sweeps, nested)
		}
	}
	return sweeps, nil
}

func readSweep(path string) (*report.Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep: %w", err)
	}
	var s report.Sweep
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing sweep %s: %w", path, err)
	}
	return &s, nil
}
