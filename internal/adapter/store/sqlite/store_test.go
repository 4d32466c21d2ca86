package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelci/pr-sentinel/internal/adapter/store/sqlite"
	"github.com/sentinelci/pr-sentinel/internal/domain"
)

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err, "failed to create test store")

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func testRun(id string) domain.Run {
	return domain.Run{
		ID:         id,
		Repository: "acme/api",
		PRNumber:   42,
		BaseSHA:    "aaa111",
		HeadSHA:    "bbb222",
		Status:     domain.RunStatusPending,
		StartedAt:  time.Now().Truncate(time.Second),
	}
}

func TestStore_CreateRun_GetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("run-123")
	require.NoError(t, s.CreateRun(ctx, run))

	retrieved, err := s.GetRun(ctx, "run-123")
	require.NoError(t, err)

	assert.Equal(t, run.ID, retrieved.ID)
	assert.Equal(t, run.Repository, retrieved.Repository)
	assert.Equal(t, run.PRNumber, retrieved.PRNumber)
	assert.Equal(t, run.BaseSHA, retrieved.BaseSHA)
	assert.Equal(t, run.HeadSHA, retrieved.HeadSHA)
	assert.Equal(t, domain.RunStatusPending, retrieved.Status)
	assert.True(t, run.StartedAt.Equal(retrieved.StartedAt))
	assert.True(t, retrieved.CompletedAt.IsZero())
}

func TestStore_GetRun_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestStore_UpdateRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("run-update")
	require.NoError(t, s.CreateRun(ctx, run))

	run.Status = domain.RunStatusCompleted
	run.CompletedAt = run.StartedAt.Add(90 * time.Second)
	run.RiskScore = 72
	run.RiskBreakdown = domain.RiskBreakdown{
		SizeImpact:     20,
		SeverityImpact: 30,
		BlastRadius:    10,
		Complexity:     5,
		AIAdjustment:   7,
	}
	run.Summary = "Two critical findings in the auth layer."
	run.Metadata = map[string]int{"files_analyzed": 3, "total_findings": 5}
	require.NoError(t, s.UpdateRun(ctx, run))

	retrieved, err := s.GetRun(ctx, "run-update")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, retrieved.Status)
	assert.True(t, run.CompletedAt.Equal(retrieved.CompletedAt))
	assert.Equal(t, 72, retrieved.RiskScore)
	assert.Equal(t, run.RiskBreakdown, retrieved.RiskBreakdown)
	assert.Equal(t, run.Summary, retrieved.Summary)
	assert.Equal(t, run.Metadata, retrieved.Metadata)
}

func TestStore_UpdateRun_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpdateRun(context.Background(), testRun("missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	old := testRun("run-old")
	old.StartedAt = time.Now().Add(-time.Hour).Truncate(time.Second)
	recent := testRun("run-recent")
	other := testRun("run-other-repo")
	other.Repository = "acme/web"

	require.NoError(t, s.CreateRun(ctx, old))
	require.NoError(t, s.CreateRun(ctx, recent))
	require.NoError(t, s.CreateRun(ctx, other))

	runs, err := s.ListRuns(ctx, "acme/api", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-recent", runs[0].ID)
	assert.Equal(t, "run-old", runs[1].ID)

	all, err := s.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_SaveAndGetFindings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-f")))

	findings := []domain.Finding{
		domain.NewFinding(domain.FindingInput{
			FilePath:    "app/db.py",
			LineNumber:  30,
			Severity:    domain.SeverityHigh,
			Category:    domain.CategorySecurity,
			RuleID:      "sql_injection",
			Title:       "Possible SQL injection",
			Description: "String concatenation in query",
			Suggestion:  "Use parameterized queries",
			Metadata:    map[string]string{"source": "rules"},
		}),
		domain.NewFinding(domain.FindingInput{
			FilePath:      "app/api.py",
			LineNumber:    12,
			Severity:      domain.SeverityMedium,
			Category:      domain.CategoryBug,
			Title:         "Missing error handling",
			Description:   "Return value ignored",
			IsAIGenerated: true,
		}),
	}
	findings[1].Embedding = []float32{0.25, -0.5, 1}

	require.NoError(t, s.SaveFindings(ctx, "run-f", findings))

	retrieved, err := s.GetFindingsByRun(ctx, "run-f")
	require.NoError(t, err)
	require.Len(t, retrieved, 2)

	// Ordered by (file_path, line_number)
	assert.Equal(t, "app/api.py", retrieved[0].FilePath)
	assert.Equal(t, "app/db.py", retrieved[1].FilePath)

	assert.True(t, retrieved[0].IsAIGenerated)
	assert.Equal(t, []float32{0.25, -0.5, 1}, retrieved[0].Embedding)
	assert.Nil(t, retrieved[1].Embedding)
	assert.Equal(t, map[string]string{"source": "rules"}, retrieved[1].Metadata)
	assert.Equal(t, "sql_injection", retrieved[1].RuleID)
}

func TestStore_DeleteFindingsByRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-d")))
	findings := []domain.Finding{
		domain.NewFinding(domain.FindingInput{
			FilePath: "a.go", LineNumber: 1,
			Severity: domain.SeverityLow, Category: domain.CategoryStyle,
			Title: "x", Description: "y",
		}),
	}
	require.NoError(t, s.SaveFindings(ctx, "run-d", findings))
	require.NoError(t, s.DeleteFindingsByRun(ctx, "run-d"))

	remaining, err := s.GetFindingsByRun(ctx, "run-d")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestStore_ListFindingsByRepository(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := testRun("run-1")
	first.StartedAt = time.Now().Add(-time.Hour).Truncate(time.Second)
	second := testRun("run-2")
	require.NoError(t, s.CreateRun(ctx, first))
	require.NoError(t, s.CreateRun(ctx, second))

	mk := func(file string, line int) domain.Finding {
		return domain.NewFinding(domain.FindingInput{
			FilePath: file, LineNumber: line,
			Severity: domain.SeverityLow, Category: domain.CategoryBug,
			Title: "t", Description: "d",
		})
	}
	require.NoError(t, s.SaveFindings(ctx, "run-1", []domain.Finding{mk("old.go", 1)}))
	require.NoError(t, s.SaveFindings(ctx, "run-2", []domain.Finding{mk("new.go", 1)}))

	findings, err := s.ListFindingsByRepository(ctx, "acme/api", 10)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "new.go", findings[0].FilePath)

	limited, err := s.ListFindingsByRepository(ctx, "acme/api", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Usage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Missing row returns zero counters
	usage, err := s.GetUsage(ctx, "user-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.AnalysesUsed)

	require.NoError(t, s.IncrementUsage(ctx, "user-1", "2026-08", 120, 4))
	require.NoError(t, s.IncrementUsage(ctx, "user-1", "2026-08", 80, 1))
	require.NoError(t, s.IncrementUsage(ctx, "user-1", "2026-09", 10, 0))

	usage, err = s.GetUsage(ctx, "user-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 2, usage.AnalysesUsed)
	assert.Equal(t, 200, usage.LinesAnalyzed)
	assert.Equal(t, 5, usage.FindingsGenerated)

	next, err := s.GetUsage(ctx, "user-1", "2026-09")
	require.NoError(t, err)
	assert.Equal(t, 1, next.AnalysesUsed)
}
