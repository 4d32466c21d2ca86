package http

import (
	"sync"
	"time"
)

// Metrics aggregates provider API call statistics for a process.
type Metrics interface {
	RecordRequest(provider, model string)
	RecordDuration(provider, model string, duration time.Duration)
	RecordTokens(provider, model string, tokensIn, tokensOut int)
	RecordCost(provider, model string, cost float64)
	RecordError(provider, model string, errType ErrorType)
	GetStats() Stats
}

// Stats is a point-in-time snapshot of call statistics.
type Stats struct {
	TotalRequests  int
	TotalTokensIn  int
	TotalTokensOut int
	TotalCost      float64
	TotalDuration  time.Duration
	ErrorCount     int
	ByProvider     map[string]ProviderStats
}

type ProviderStats struct {
	Requests  int
	TokensIn  int
	TokensOut int
	Cost      float64
	Duration  time.Duration
	Errors    int
}

// DefaultMetrics is an in-memory, goroutine-safe Metrics implementation.
type DefaultMetrics struct {
	mu    sync.RWMutex
	stats Stats
}

func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{stats: Stats{ByProvider: make(map[string]ProviderStats)}}
}

func (m *DefaultMetrics) RecordRequest(provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalRequests++
	ps := m.stats.ByProvider[provider]
	ps.Requests++
	m.stats.ByProvider[provider] = ps
}

func (m *DefaultMetrics) RecordDuration(provider, model string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalDuration += duration
	ps := m.stats.ByProvider[provider]
	ps.Duration += duration
	m.stats.ByProvider[provider] = ps
}

func (m *DefaultMetrics) RecordTokens(provider, model string, tokensIn, tokensOut int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalTokensIn += tokensIn
	m.stats.TotalTokensOut += tokensOut
	ps := m.stats.ByProvider[provider]
	ps.TokensIn += tokensIn
	ps.TokensOut += tokensOut
	m.stats.ByProvider[provider] = ps
}

func (m *DefaultMetrics) RecordCost(provider, model string, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalCost += cost
	ps := m.stats.ByProvider[provider]
	ps.Cost += cost
	m.stats.ByProvider[provider] = ps
}

func (m *DefaultMetrics) RecordError(provider, model string, errType ErrorType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ErrorCount++
	ps := m.stats.ByProvider[provider]
	ps.Errors++
	m.stats.ByProvider[provider] = ps
}

// GetStats copies the snapshot so callers cannot race with recorders.
func (m *DefaultMetrics) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.stats
	out.ByProvider = make(map[string]ProviderStats, len(m.stats.ByProvider))
	for k, v := range m.stats.ByProvider {
		out.ByProvider[k] = v
	}
	return out
}
