package pipeline

import (
	"math"
	"sync"
	"time"

	"appideas.app/engine/common/llm"
	"appideas.app/engine/internal/model"
)

// Rates are per-token prices in nano-dollars. Output rate also applies to
// system tokens the provider bills beyond prompt and completion.
type Rates struct {
	InputNanosPerToken  float64
	OutputNanosPerToken float64
}

// RatesPerMillion converts USD per million tokens into per-token nano-dollars.
func RatesPerMillion(inputUSD, outputUSD float64) Rates {
	perToken := float64(model.NanosPerUSD) / 1_000_000
	return Rates{
		InputNanosPerToken:  inputUSD * perToken,
		OutputNanosPerToken: outputUSD * perToken,
	}
}

// Cost rounds once per call, so totals built from these values reconcile exactly.
func (r Rates) Cost(input, output, system int) model.Cost {
	input, output, system = max(input, 0), max(output, 0), max(system, 0)
	nanos := float64(input)*r.InputNanosPerToken + float64(output+system)*r.OutputNanosPerToken
	return model.Cost(math.Round(nanos))
}

// CostAccumulator tracks spend for one run. The total only grows and always
// equals the sum of the recorded per-call costs.
type CostAccumulator struct {
	mu      sync.Mutex
	rates   Rates
	total   model.Cost
	records []model.TokenUsageRecord
	now     func() time.Time
}

func NewCostAccumulator(rates Rates) *CostAccumulator {
	return &CostAccumulator{rates: rates, now: time.Now}
}

// Record prices a completed call and appends its usage record.
func (a *CostAccumulator) Record(stage string, c *llm.Completion) model.TokenUsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	system := c.SystemTokens()
	rec := model.TokenUsageRecord{
		CallNumber:   len(a.records) + 1,
		Stage:        stage,
		InputTokens:  c.PromptTokens,
		OutputTokens: c.CompletionTokens,
		SystemTokens: system,
		Cost:         a.rates.Cost(c.PromptTokens, c.CompletionTokens, system),
		Timestamp:    a.now().UTC(),
	}
	a.total += rec.Cost
	a.records = append(a.records, rec)
	return rec
}

func (a *CostAccumulator) Total() model.Cost {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func (a *CostAccumulator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *CostAccumulator) Records() []model.TokenUsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.TokenUsageRecord, len(a.records))
	copy(out, a.records)
	return out
}
