// Package usage enforces the monthly analysis quota.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelci/pr-sentinel/internal/store"
)

// Quotas reads and updates monthly usage counters.
type Quotas interface {
	GetUsage(ctx context.Context, userID, month string) (store.Usage, error)
	IncrementUsage(ctx context.Context, userID, month string, lines, findings int) error
}

// Service checks and records per-user analysis consumption.
type Service struct {
	quotas Quotas

	// monthlyLimit is the number of analyses allowed per calendar month.
	// -1 means unlimited.
	monthlyLimit int

	now func() time.Time
}

// NewService creates a usage service with the given monthly limit.
func NewService(quotas Quotas, monthlyLimit int) *Service {
	return &Service{
		quotas:       quotas,
		monthlyLimit: monthlyLimit,
		now:          time.Now,
	}
}

// CanAnalyze reports whether the user may start another analysis this month.
// The reason is empty when allowed.
func (s *Service) CanAnalyze(ctx context.Context, userID string) (bool, string, error) {
	if s.monthlyLimit == -1 {
		return true, "", nil
	}

	usage, err := s.quotas.GetUsage(ctx, userID, store.MonthKey(s.now()))
	if err != nil {
		return false, "", fmt.Errorf("check usage: %w", err)
	}

	if usage.AnalysesUsed >= s.monthlyLimit {
		reason := fmt.Sprintf("Monthly analysis limit reached (%d). Please upgrade your plan.", s.monthlyLimit)
		return false, reason, nil
	}

	return true, "", nil
}

// RecordAnalysis counts one completed analysis against the current month.
func (s *Service) RecordAnalysis(ctx context.Context, userID string, linesAnalyzed, findingsGenerated int) error {
	if err := s.quotas.IncrementUsage(ctx, userID, store.MonthKey(s.now()), linesAnalyzed, findingsGenerated); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Stats summarizes a user's consumption for the current month.
type Stats struct {
	Month             string `json:"month"`
	AnalysesUsed      int    `json:"analyses_used"`
	AnalysesLimit     int    `json:"analyses_limit"`
	AnalysesRemaining int    `json:"analyses_remaining"`
	PercentageUsed    int    `json:"percentage_used"`
	LinesAnalyzed     int    `json:"total_lines_analyzed"`
	FindingsGenerated int    `json:"total_findings_generated"`
	IsUnlimited       bool   `json:"is_unlimited"`
}

// GetStats returns the current month's usage for a user.
func (s *Service) GetStats(ctx context.Context, userID string) (Stats, error) {
	month := store.MonthKey(s.now())
	usage, err := s.quotas.GetUsage(ctx, userID, month)
	if err != nil {
		return Stats{}, fmt.Errorf("get usage: %w", err)
	}

	stats := Stats{
		Month:             month,
		AnalysesUsed:      usage.AnalysesUsed,
		AnalysesLimit:     s.monthlyLimit,
		LinesAnalyzed:     usage.LinesAnalyzed,
		FindingsGenerated: usage.FindingsGenerated,
	}

	if s.monthlyLimit == -1 {
		stats.AnalysesRemaining = -1
		stats.IsUnlimited = true
	} else if s.monthlyLimit > 0 {
		stats.AnalysesRemaining = s.monthlyLimit - usage.AnalysesUsed
		stats.PercentageUsed = usage.AnalysesUsed * 100 / s.monthlyLimit
	}

	return stats, nil
}
