package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelci/pr-sentinel/internal/adapter/cli"
	"github.com/sentinelci/pr-sentinel/internal/domain"
	"github.com/sentinelci/pr-sentinel/internal/store"
	"github.com/sentinelci/pr-sentinel/internal/usecase/pipeline"
	"github.com/sentinelci/pr-sentinel/internal/usecase/usage"
)

type fakeRunner struct {
	lastRequest cli.AnalyzeRequest
	result      pipeline.Result
	err         error
	rerunID     string
}

func (f *fakeRunner) Analyze(ctx context.Context, req cli.AnalyzeRequest) (pipeline.Result, error) {
	f.lastRequest = req
	return f.result, f.err
}

func (f *fakeRunner) Rerun(ctx context.Context, runID, userID string) (pipeline.Result, error) {
	f.rerunID = runID
	return f.result, f.err
}

type fakeStore struct {
	store.Store
	runs     []domain.Run
	findings []domain.Finding
}

func (f *fakeStore) ListRuns(ctx context.Context, repository string, limit int) ([]domain.Run, error) {
	return f.runs, nil
}

func (f *fakeStore) ListFindingsByRepository(ctx context.Context, repository string, limit int) ([]domain.Finding, error) {
	return f.findings, nil
}

type fakeStats struct {
	stats usage.Stats
}

func (f *fakeStats) GetStats(ctx context.Context, userID string) (usage.Stats, error) {
	return f.stats, nil
}

func run(t *testing.T, deps cli.Dependencies, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	deps.Args = cli.Arguments{OutWriter: &out, ErrWriter: &out}
	root := cli.NewRootCommand(deps)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func sampleResult() pipeline.Result {
	return pipeline.Result{
		Run: domain.Run{
			ID:         "run-1",
			Repository: "acme/api",
			PRNumber:   7,
			Status:     domain.RunStatusCompleted,
			StartedAt:  time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			RiskScore:  45,
			Summary:    "Refactors the auth flow.",
		},
		Findings: []domain.Finding{
			{Severity: domain.SeverityCritical, Title: "Hardcoded secret", FilePath: "auth.py"},
			{Severity: domain.SeverityLow, Title: "Long function", FilePath: "auth.py"},
		},
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := run(t, cli.Dependencies{Runner: &fakeRunner{}, Version: "v1.2.3"}, "--version")
	require.ErrorIs(t, err, cli.ErrVersionRequested)
	assert.Contains(t, out, "v1.2.3")
}

func TestAnalyzePrintsSummary(t *testing.T) {
	runner := &fakeRunner{result: sampleResult()}
	dir := t.TempDir()

	out, err := run(t, cli.Dependencies{Runner: runner, DefaultUser: "u1"},
		"analyze", "--repo", "acme/api", "--pr", "7", "--output", dir, "--format", "json")
	require.NoError(t, err)

	assert.Contains(t, out, "Run run-1: completed")
	assert.Contains(t, out, "Risk score: 45/100 (medium)")
	assert.Contains(t, out, "Findings: 2")
	assert.Contains(t, out, "critical: 1")
	assert.Contains(t, out, "Refactors the auth flow.")
	assert.Contains(t, out, "wrote "+filepath.Join(dir, "acme-api_pr7_20260830T100000.json"))

	assert.Equal(t, "acme/api", runner.lastRequest.Repository)
	assert.Equal(t, 7, runner.lastRequest.PRNumber)
	assert.Equal(t, "u1", runner.lastRequest.UserID)
}

func TestAnalyzeRequiresRepo(t *testing.T) {
	_, err := run(t, cli.Dependencies{Runner: &fakeRunner{}}, "analyze", "--pr", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--repo is required")
}

func TestAnalyzeLocalWithoutRepo(t *testing.T) {
	runner := &fakeRunner{result: sampleResult()}
	_, err := run(t, cli.Dependencies{Runner: runner},
		"analyze", "--local", "--repo-dir", "/tmp/acme-api", "--head", "feature",
		"--output", t.TempDir(), "--format", "json")
	require.NoError(t, err)

	// The host derives the repository name from the directory.
	assert.Empty(t, runner.lastRequest.Repository)
	assert.True(t, runner.lastRequest.Local)
	assert.Equal(t, "/tmp/acme-api", runner.lastRequest.RepoDir)
}

func TestAnalyzeRequiresPRUnlessLocal(t *testing.T) {
	_, err := run(t, cli.Dependencies{Runner: &fakeRunner{}}, "analyze", "--repo", "acme/api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--pr must be a positive integer")

	runner := &fakeRunner{result: sampleResult()}
	_, err = run(t, cli.Dependencies{Runner: runner},
		"analyze", "--repo", "acme/api", "--local", "--base", "main", "--head", "feature",
		"--output", t.TempDir(), "--format", "json")
	require.NoError(t, err)
	assert.True(t, runner.lastRequest.Local)
	assert.Equal(t, "feature", runner.lastRequest.HeadRef)
}

func TestAnalyzeQuotaError(t *testing.T) {
	runner := &fakeRunner{err: &pipeline.QuotaError{Reason: "Monthly analysis limit reached (50). Please upgrade your plan."}}
	_, err := run(t, cli.Dependencies{Runner: runner}, "analyze", "--repo", "acme/api", "--pr", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded: Monthly analysis limit reached")
}

func TestAnalyzeUnknownFormat(t *testing.T) {
	runner := &fakeRunner{result: sampleResult()}
	_, err := run(t, cli.Dependencies{Runner: runner},
		"analyze", "--repo", "acme/api", "--pr", "7", "--output", t.TempDir(), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestRerunCommand(t *testing.T) {
	runner := &fakeRunner{result: sampleResult()}
	out, err := run(t, cli.Dependencies{Runner: runner},
		"rerun", "run-1", "--output", t.TempDir(), "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runner.rerunID)
	assert.Contains(t, out, "Run run-1: completed")
}

func TestRunsCommand(t *testing.T) {
	st := &fakeStore{runs: []domain.Run{
		{ID: "run-1", Repository: "acme/api", PRNumber: 7, Status: domain.RunStatusCompleted, RiskScore: 45, StartedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)},
	}}
	out, err := run(t, cli.Dependencies{Runner: &fakeRunner{}, Store: st}, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1  acme/api#7  completed  risk=45")
}

func TestRunsRequiresStore(t *testing.T) {
	_, err := run(t, cli.Dependencies{Runner: &fakeRunner{}}, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the store")
}

func TestPatternsCommand(t *testing.T) {
	var findings []domain.Finding
	for i := 0; i < 6; i++ {
		findings = append(findings, domain.Finding{
			Title:       "SQL injection",
			Description: fmt.Sprintf("case %d", i),
			FilePath:    "api/users.py",
			Embedding:   []float32{1, 0},
		})
	}
	st := &fakeStore{findings: findings}

	out, err := run(t, cli.Dependencies{Runner: &fakeRunner{}, Store: st, MinSimilarity: 0.75},
		"patterns", "--repo", "acme/api")
	require.NoError(t, err)
	assert.Contains(t, out, "recurring_issues")
	assert.Contains(t, out, "SQL injection")
}

func TestUsageCommand(t *testing.T) {
	stats := &fakeStats{stats: usage.Stats{AnalysesUsed: 3, AnalysesLimit: 50, AnalysesRemaining: 47}}
	out, err := run(t, cli.Dependencies{Runner: &fakeRunner{}, Stats: stats, DefaultUser: "u1"}, "usage")
	require.NoError(t, err)
	assert.Contains(t, out, `"analyses_used": 3`)
}

func TestRootShowsHelp(t *testing.T) {
	out, err := run(t, cli.Dependencies{Runner: &fakeRunner{}})
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "analyze") && strings.Contains(out, "patterns"))
}
