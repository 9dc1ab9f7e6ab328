// Package report aggregates run outcomes into a sweep report and renders it.
// Outcomes arrive in any order; the report presents each environment's worlds
// in catalog order and never lets one environment's failure hide another's
// results.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/result"
)

// EnvSummary is one environment's aggregated results.
type EnvSummary struct {
	Env string `json:"env"`
	// LoadError is set when the environment's catalog could not be loaded.
	// Distinct from agent failures: such an environment has no outcomes.
	LoadError string `json:"load_error,omitempty"`

	Outcomes []*result.Outcome `json:"outcomes,omitempty"`

	Completed int `json:"completed"`
	Truncated int `json:"truncated"`
	Errored   int `json:"errored"`

	TotalScore float64 `json:"total_score"`
	MeanScore  float64 `json:"mean_score"`
	// SuccessRatio is total score over total max reward, when max rewards
	// are known for this environment.
	SuccessRatio *float64 `json:"success_ratio,omitempty"`
	// Cost is the summed usage of metered runs; nil when no run in this
	// environment carried a cost record.
	Cost *cost.Record `json:"cost,omitempty"`
}

// Sweep is the aggregation root for one full evaluation pass.
type Sweep struct {
	ID         string       `json:"id"`
	Agent      string       `json:"agent"`
	Partition  string       `json:"partition"`
	MaxWorlds  int          `json:"max_worlds,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Envs       []EnvSummary `json:"envs"`
}

// Aggregator collects outcomes as runs resolve. Finalize snapshots the
// report; rendering a snapshot is pure, so exporting twice without new
// outcomes yields identical content.
type Aggregator struct {
	id        string
	agent     string
	partition string
	maxWorlds int
	startedAt time.Time

	mu         sync.Mutex
	outcomes   map[string][]*result.Outcome
	loadErrors map[string]string
	maxRewards map[string]map[string]float64
}

func NewAggregator(id, agent, partition string, maxWorlds int) *Aggregator {
	return &Aggregator{
		id:         id,
		agent:      agent,
		partition:  partition,
		maxWorlds:  maxWorlds,
		startedAt:  time.Now().UTC(),
		outcomes:   map[string][]*result.Outcome{},
		loadErrors: map[string]string{},
		maxRewards: map[string]map[string]float64{},
	}
}

// Add records one resolved outcome. Arrival order is not significant.
func (a *Aggregator) Add(o *result.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes[o.Env] = append(a.outcomes[o.Env], o)
}

// EnvFailed records a catalog-level failure for one environment. The sweep
// continues with the others.
func (a *Aggregator) EnvFailed(env string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loadErrors[env] = err.Error()
}

// SetMaxRewards supplies per-world maximum rewards for success ratios.
func (a *Aggregator) SetMaxRewards(env string, rewards map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxRewards[env] = rewards
}

// Finalize builds an immutable sweep snapshot from everything collected so
// far.
func (a *Aggregator) Finalize() *Sweep {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.outcomes)+len(a.loadErrors))
	for env := range a.outcomes {
		names = append(names, env)
	}
	for env := range a.loadErrors {
		if _, dup := a.outcomes[env]; !dup {
			names = append(names, env)
		}
	}
	sort.Strings(names)

	sweep := &Sweep{
		ID:         a.id,
		Agent:      a.agent,
		Partition:  a.partition,
		MaxWorlds:  a.maxWorlds,
		StartedAt:  a.startedAt,
		FinishedAt: time.Now().UTC(),
	}
	for _, env := range names {
		sweep.Envs = append(sweep.Envs, a.summarize(env))
	}
	return sweep
}

func (a *Aggregator) summarize(env string) EnvSummary {
	s := EnvSummary{Env: env, LoadError: a.loadErrors[env]}

	outcomes := make([]*result.Outcome, len(a.outcomes[env]))
	copy(outcomes, a.outcomes[env])
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].CatalogIndex < outcomes[j].CatalogIndex
	})
	s.Outcomes = outcomes

	var costSum cost.Record
	var maxTotal float64
	for _, o := range outcomes {
		switch o.Status {
		case result.StatusCompleted:
			s.Completed++
		case result.StatusTruncated:
			s.Truncated++
		case result.StatusErrored:
			s.Errored++
		}
		s.TotalScore += o.Score
		if o.Cost != nil {
			costSum.Calls += o.Cost.Calls
			costSum.InputTokens += o.Cost.InputTokens
			costSum.OutputTokens += o.Cost.OutputTokens
			costSum.TotalUSD += o.Cost.TotalUSD
		}
		if rewards, ok := a.maxRewards[env]; ok {
			maxTotal += rewards[o.WorldID]
		}
	}
	if len(outcomes) > 0 {
		s.MeanScore = s.TotalScore / float64(len(outcomes))
	}
	if costSum.Calls > 0 {
		s.Cost = &costSum
	}
	if maxTotal > 0 {
		ratio := s.TotalScore / maxTotal
		s.SuccessRatio = &ratio
	}
	return s
}

// Render writes the sweep in the requested format: table, markdown, or json.
func Render(s *Sweep, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return writeMarkdown(s, w)
	case "json":
		return writeJSON(s, w)
	case "", "table":
		return writeTable(s, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func costCell(c *cost.Record) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("$%.4f", c.TotalUSD)
}

func ratioCell(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *r*100)
}

func writeTable(s *Sweep, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENV\tWORLDS\tCOMPLETED\tTRUNCATED\tERRORED\tTOTAL SCORE\tMEAN SCORE\tSUCCESS\tCOST")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, e := range s.Envs {
		if e.LoadError != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t-\t-\tload failed: %s\n", e.Env, e.LoadError)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.3f\t%.3f\t%s\t%s\n",
			e.Env, len(e.Outcomes), e.Completed, e.Truncated, e.Errored,
			e.TotalScore, e.MeanScore, ratioCell(e.SuccessRatio), costCell(e.Cost))
	}
	return tw.Flush()
}

func writeMarkdown(s *Sweep, w io.Writer) error {
	fmt.Fprintln(w, "| Env | Worlds | Completed | Truncated | Errored | Total Score | Mean Score | Success | Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, e := range s.Envs {
		if e.LoadError != "" {
			fmt.Fprintf(w, "| %s | load failed: %s | | | | | | | |\n", e.Env, e.LoadError)
			continue
		}
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %.3f | %.3f | %s | %s |\n",
			e.Env, len(e.Outcomes), e.Completed, e.Truncated, e.Errored,
			e.TotalScore, e.MeanScore, ratioCell(e.SuccessRatio), costCell(e.Cost))
	}
	return nil
}

func writeJSON(s *Sweep, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
