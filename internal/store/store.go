// Package store defines the persistence port for analysis history.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// Store persists runs, findings, and usage counters.
type Store interface {
	// Run management
	CreateRun(ctx context.Context, run domain.Run) error
	UpdateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, runID string) (domain.Run, error)
	ListRuns(ctx context.Context, repository string, limit int) ([]domain.Run, error)

	// Finding persistence
	SaveFindings(ctx context.Context, runID string, findings []domain.Finding) error
	GetFindingsByRun(ctx context.Context, runID string) ([]domain.Finding, error)
	DeleteFindingsByRun(ctx context.Context, runID string) error

	// ListFindingsByRepository returns the most recent findings across all of
	// a repository's runs, newest runs first. Used for pattern analysis.
	ListFindingsByRepository(ctx context.Context, repository string, limit int) ([]domain.Finding, error)

	// Usage counters
	GetUsage(ctx context.Context, userID, month string) (Usage, error)
	IncrementUsage(ctx context.Context, userID, month string, lines, findings int) error

	// Utility
	Close() error
}

// Usage tracks one user's consumption for one calendar month.
type Usage struct {
	UserID            string
	Month             string // "2006-01"
	AnalysesUsed      int
	LinesAnalyzed     int
	FindingsGenerated int
}

// NewRunID returns a unique identifier for an analysis run.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// MonthKey returns the usage bucket for a point in time.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
