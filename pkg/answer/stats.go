package answer

import (
	"context"
	"math"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"mediquery-be/pkg/llm"
)

// Stats aggregates run counters for the read-only stats surface. All fields
// are atomics; one Stats instance is shared by every concurrent run.
type Stats struct {
	searches        atomic.Int64
	totalDurationMs atomic.Int64
	apiCalls        atomic.Int64
	totalTokens     atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordRun(duration time.Duration) {
	s.searches.Add(1)
	s.totalDurationMs.Add(duration.Milliseconds())
}

func (s *Stats) RecordCall(promptText, responseText string) {
	s.apiCalls.Add(1)
	s.totalTokens.Add(int64(EstimateTokens(promptText) + EstimateTokens(responseText)))
}

// StatsSnapshot is a point-in-time copy for dashboards.
type StatsSnapshot struct {
	SearchesPerformed     int64   `json:"searches_performed"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	APICalls              int64   `json:"api_calls"`
	TotalTokens           int64   `json:"total_tokens"`
	EstimatedCostUSD      float64 `json:"estimated_cost_usd"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	searches := s.searches.Load()
	avg := 0.0
	if searches > 0 {
		avg = float64(s.totalDurationMs.Load()) / float64(searches)
	}
	tokens := s.totalTokens.Load()
	return StatsSnapshot{
		SearchesPerformed:     searches,
		AverageResponseTimeMs: avg,
		APICalls:              s.apiCalls.Load(),
		TotalTokens:           tokens,
		EstimatedCostUSD:      EstimateCostUSD(tokens),
	}
}

// EstimateTokens approximates token usage as one token per four characters.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4.0))
}

// EstimateCostUSD prices estimated tokens at the blended per-million rate.
func EstimateCostUSD(tokens int64) float64 {
	return float64(tokens) * 0.13 / 1e6
}

// instrumentedProvider wraps an LLM provider so every model call lands in
// the stats counters without the pipeline components knowing about it.
type instrumentedProvider struct {
	inner llm.LLMProvider
	stats *Stats
}

// InstrumentProvider decorates a provider with call and token accounting.
func InstrumentProvider(inner llm.LLMProvider, stats *Stats) llm.LLMProvider {
	return &instrumentedProvider{inner: inner, stats: stats}
}

func (p *instrumentedProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	response, err := p.inner.Chat(ctx, history, options...)
	if err == nil {
		var promptText string
		for _, m := range history {
			promptText += m.Content
		}
		p.stats.RecordCall(promptText, response)
	}
	return response, err
}

func (p *instrumentedProvider) Generate(ctx context.Context, promptText string, options ...llm.Option) (string, error) {
	response, err := p.inner.Generate(ctx, promptText, options...)
	if err == nil {
		p.stats.RecordCall(promptText, response)
	}
	return response, err
}
