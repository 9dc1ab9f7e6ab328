package cost

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Record is the per-run usage summary attached to an outcome. It exists only
// when at least one model call occurred during the run; custom agents never
// produce one. Absence is the signal, not a zero record.
type Record struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalUSD     float64 `json:"total_usd"`
}

// Meter accumulates usage for exactly one run. Safe for concurrent calls
// within that run, never shared between runs.
type Meter struct {
	table    *Table
	provider string

	mu  sync.Mutex
	rec Record
}

// NewMeter creates a meter pricing against the given table. A nil table still
// counts tokens and calls, at zero cost.
func NewMeter(table *Table, provider string) *Meter {
	return &Meter{table: table, provider: provider}
}

// Record adds one model call's usage. Unparsable samples (negative token
// counts) are logged and dropped; the run still completes with that sample's
// cost omitted.
func (m *Meter) Record(model string, inputTokens, outputTokens int) {
	if inputTokens < 0 || outputTokens < 0 {
		log.Warn().
			Str("model", model).
			Int("input_tokens", inputTokens).
			Int("output_tokens", outputTokens).
			Msg("dropping unparsable usage sample")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec.Calls++
	m.rec.InputTokens += inputTokens
	m.rec.OutputTokens += outputTokens
	m.rec.TotalUSD += m.table.Cost(m.provider, model, inputTokens, outputTokens)
}

// Snapshot returns the accumulated record, or nil when no model call was
// recorded.
func (m *Meter) Snapshot() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec.Calls == 0 {
		return nil
	}
	rec := m.rec
	return &rec
}

type ctxKey struct{}

// WithMeter arms ctx with a run-scoped meter.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

// MeterFrom returns the armed meter, or nil when the run is not metered.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(ctxKey{}).(*Meter)
	return m
}

// Observe records usage against the meter armed in ctx, if any. Agents that
// never call a model simply never hit this path.
func Observe(ctx context.Context, model string, inputTokens, outputTokens int) {
	if m := MeterFrom(ctx); m != nil {
		m.Record(model, inputTokens, outputTokens)
	}
}
