package report_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/report"
	"github.com/SNHuan/AutoEnv-Huan/internal/result"
)

func TestAggregatorBuffersAndSorts(t *testing.T) {
	agg := report.NewAggregator("sweep-1", "null", "test", 0)

	// Arrival order deliberately scrambled relative to catalog order.
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w2", CatalogIndex: 2, Status: result.StatusCompleted, Score: 1})
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w0", CatalogIndex: 0, Status: result.StatusTruncated, Score: 0.5})
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w1", CatalogIndex: 1, Status: result.StatusErrored})

	sweep := agg.Finalize()
	require.Len(t, sweep.Envs, 1)
	env := sweep.Envs[0]
	assert.Equal(t, 1, env.Completed)
	assert.Equal(t, 1, env.Truncated)
	assert.Equal(t, 1, env.Errored)
	assert.Equal(t, 1.5, env.TotalScore)
	assert.InDelta(t, 0.5, env.MeanScore, 1e-9)

	ids := []string{env.Outcomes[0].WorldID, env.Outcomes[1].WorldID, env.Outcomes[2].WorldID}
	assert.Equal(t, []string{"w0", "w1", "w2"}, ids)
}

func TestAggregatorCostOnlyWhenMetered(t *testing.T) {
	agg := report.NewAggregator("sweep-1", "mixed", "test", 0)
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w0", Status: result.StatusCompleted})
	agg.Add(&result.Outcome{Env: "EnvB", WorldID: "w0", Status: result.StatusCompleted,
		Cost: &cost.Record{Calls: 3, InputTokens: 10, OutputTokens: 5, TotalUSD: 0.2}})

	sweep := agg.Finalize()
	require.Len(t, sweep.Envs, 2)
	assert.Nil(t, sweep.Envs[0].Cost, "environment without metered runs must not report cost")
	require.NotNil(t, sweep.Envs[1].Cost)
	assert.Equal(t, 0.2, sweep.Envs[1].Cost.TotalUSD)
}

func TestAggregatorLoadFailureIsolated(t *testing.T) {
	agg := report.NewAggregator("sweep-1", "null", "test", 0)
	agg.EnvFailed("Broken", fmt.Errorf("no parsable worlds"))
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w0", Status: result.StatusCompleted, Score: 2})

	sweep := agg.Finalize()
	require.Len(t, sweep.Envs, 2)
	assert.Equal(t, "no parsable worlds", sweep.Envs[0].LoadError)
	assert.Empty(t, sweep.Envs[0].Outcomes)
	assert.Equal(t, 2.0, sweep.Envs[1].TotalScore)
}

func TestAggregatorSuccessRatio(t *testing.T) {
	agg := report.NewAggregator("sweep-1", "null", "test", 0)
	agg.SetMaxRewards("EnvA", map[string]float64{"w0": 2, "w1": 2})
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w0", CatalogIndex: 0, Status: result.StatusCompleted, Score: 2})
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w1", CatalogIndex: 1, Status: result.StatusCompleted, Score: 1})

	sweep := agg.Finalize()
	require.NotNil(t, sweep.Envs[0].SuccessRatio)
	assert.InDelta(t, 0.75, *sweep.Envs[0].SuccessRatio, 1e-9)
}

func TestRenderIdempotent(t *testing.T) {
	agg := report.NewAggregator("sweep-1", "null", "test", 5)
	agg.Add(&result.Outcome{Env: "EnvA", WorldID: "w0", Status: result.StatusCompleted, Score: 1})
	sweep := agg.Finalize()

	for _, format := range []string{"table", "markdown", "json"} {
		var first, second bytes.Buffer
		require.NoError(t, report.Render(sweep, format, &first))
		require.NoError(t, report.Render(sweep, format, &second))
		assert.Equal(t, first.String(), second.String(), "format %s", format)
		assert.NotEmpty(t, first.String())
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := report.Render(&report.Sweep{}, "xml", &buf)
	assert.Error(t, err)
}

func TestRenderTableShowsLoadFailure(t *testing.T) {
	agg := report.NewAggregator("sweep-1", "null", "test", 0)
	agg.EnvFailed("Broken", fmt.Errorf("missing levels dir"))
	var buf bytes.Buffer
	require.NoError(t, report.Render(agg.Finalize(), "table", &buf))
	assert.Contains(t, buf.String(), "load failed")
	assert.Contains(t, buf.String(), "missing levels dir")
}
