// Package result holds run outcomes and their on-disk artifacts: a
// timestamped run directory, one outcome JSON per world, a results CSV per
// sweep, and the SQLite trajectory store.
package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// CreateRunDir makes a fresh timestamped directory under <baseDir>/runs and
// repoints the <baseDir>/latest symlink at it.
func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// OutcomePath is where one world's outcome JSON lives inside a run dir.
func OutcomePath(runDir, env, worldID string) string {
	return filepath.Join(runDir, "outcomes", env, worldID+".json")
}

// WriteOutcome persists one outcome as indented JSON.
func WriteOutcome(runDir string, o *Outcome) error {
	path := OutcomePath(runDir, o.Env, o.WorldID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating outcome dir: %w", err)
	}
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadOutcome loads one outcome JSON.
func ReadOutcome(path string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading outcome: %w", err)
	}
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing outcome: %w", err)
	}
	return &o, nil
}

// CollectOutcomes walks a run directory and loads every stored outcome.
func CollectOutcomes(runDir string) ([]*Outcome, error) {
	var outcomes []*Outcome
	root := filepath.Join(runDir, "outcomes")
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		o, err := ReadOutcome(path)
		if err != nil {
			return nil
		}
		outcomes = append(outcomes, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// WriteCSV emits the sweep's results table: one row per world, sorted by
// environment then catalog order. Cost is left empty, not zero, for runs
// without a cost record. Write-once per sweep.
func WriteCSV(runDir, agentName string, outcomes []*Outcome) error {
	sorted := make([]*Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Env != sorted[j].Env {
			return sorted[i].Env < sorted[j].Env
		}
		return sorted[i].CatalogIndex < sorted[j].CatalogIndex
	})

	path := filepath.Join(runDir, "results.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"env", "world_id", "agent", "score", "status", "steps", "cost_usd", "error"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, o := range sorted {
		costField := ""
		if o.Cost != nil {
			costField = strconv.FormatFloat(o.Cost.TotalUSD, 'f', 6, 64)
		}
		row := []string{
			o.Env,
			o.WorldID,
			agentName,
			strconv.FormatFloat(o.Score, 'f', 4, 64),
			string(o.Status),
			strconv.Itoa(o.Steps),
			costField,
			o.Err,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
