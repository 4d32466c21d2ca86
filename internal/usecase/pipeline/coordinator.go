// Package pipeline coordinates one pull request analysis end to end:
// quota check, diff fetch, rule analysis, model analysis, deduplication,
// enrichment, persistence, and notification. The rule-based path is
// mandatory; everything model- or network-dependent degrades to a
// skipped stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sentinelci/pr-sentinel/internal/domain"
	"github.com/sentinelci/pr-sentinel/internal/redaction"
	"github.com/sentinelci/pr-sentinel/internal/store"
	"github.com/sentinelci/pr-sentinel/internal/usecase/analysis"
)

const (
	// Inline fixes are expensive; only the worst findings get one.
	maxAutoFixFindings = 5

	// Commit status states reported back to the pull request.
	statusPending = "pending"
	statusSuccess = "success"
	statusFailure = "failure"
)

// DiffSource provides the change set under analysis.
type DiffSource interface {
	GetDiff(ctx context.Context, repo string, prNumber int) ([]domain.FileChange, error)
	GetPullRequestSHAs(ctx context.Context, repo string, prNumber int) (string, string, error)
}

// RuleAnalyzer runs the deterministic rule catalog over a change set.
type RuleAnalyzer interface {
	Analyze(fileChanges []domain.FileChange) []domain.Finding
}

// Deduplicator collapses findings reported on the same location.
type Deduplicator interface {
	Deduplicate(findings []domain.Finding) []domain.Finding
}

// ModelAnalyzer covers every model-backed operation in a run.
type ModelAnalyzer interface {
	AnalyzeDiff(ctx context.Context, fileChanges []domain.FileChange, ruleFindings []domain.Finding) []domain.Finding
	GenerateAutoFix(ctx context.Context, finding domain.Finding, filePatch string) (string, error)
	GeneratePRSummary(ctx context.Context, fileChanges []domain.FileChange, findings []domain.Finding, meta analysis.RunStats) (string, error)
}

// RiskScorer produces the merge-risk verdict for a run.
type RiskScorer interface {
	Score(ctx context.Context, fileChanges []domain.FileChange, findings []domain.Finding) domain.RiskAssessment
}

// FindingEmbedder attaches vectors to findings for later similarity
// queries. Implementations must tolerate unavailable backends.
type FindingEmbedder interface {
	Available(ctx context.Context) bool
	EmbedFindings(ctx context.Context, findings []domain.Finding)
}

// QuotaService gates runs on the owner's monthly allowance.
type QuotaService interface {
	CanAnalyze(ctx context.Context, userID string) (bool, string, error)
	RecordAnalysis(ctx context.Context, userID string, linesAnalyzed, findingsGenerated int) error
}

// Notifier reports results back to the pull request.
type Notifier interface {
	PostComment(ctx context.Context, repo string, prNumber int, body string) error
	SetStatusCheck(ctx context.Context, repo, sha, state, description string) error
}

// CommentRenderer formats the review summary comment.
type CommentRenderer interface {
	RenderComment(run domain.Run, findings []domain.Finding) string
}

// Deps wires the coordinator. Source, Rules, and Dedup are required;
// every other collaborator is optional and its stage skips when absent.
type Deps struct {
	Source    DiffSource
	Rules     RuleAnalyzer
	Dedup     Deduplicator
	Analyzer  ModelAnalyzer
	Risk      RiskScorer
	Embedder  FindingEmbedder
	Store     store.Store
	Usage     QuotaService
	Notifier  Notifier
	Renderer  CommentRenderer
	Sanitizer *redaction.Sanitizer
	Logger    hclog.Logger

	// MaxFiles caps how many changed files one run analyzes. Zero means
	// no cap.
	MaxFiles int
	// AutoFix enables fix generation for critical and high findings.
	AutoFix bool
	// Now is replaceable for tests.
	Now func() time.Time
}

// Request identifies the pull request to analyze.
type Request struct {
	Repository string
	PRNumber   int
	UserID     string
}

// Result is the outcome of one completed run.
type Result struct {
	Run      domain.Run
	Findings []domain.Finding
	Risk     domain.RiskAssessment
	Stages   Stages
}

// QuotaError is returned when the monthly allowance is exhausted.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string {
	return e.Reason
}

// Coordinator drives the analysis state machine.
type Coordinator struct {
	deps Deps
}

func New(deps Deps) (*Coordinator, error) {
	if deps.Source == nil {
		return nil, errors.New("diff source is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("rule analyzer is required")
	}
	if deps.Dedup == nil {
		return nil, errors.New("deduplicator is required")
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = redaction.NewSanitizer()
	}
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{deps: deps}, nil
}

// Analyze runs the full pipeline for a pull request. The returned error
// is non-nil only when the mandatory path failed; in that case the run
// record, if persisted, carries status failed and a sanitized message.
func (c *Coordinator) Analyze(ctx context.Context, req Request) (Result, error) {
	if req.Repository == "" {
		return Result{}, errors.New("repository is required")
	}

	if c.deps.Usage != nil {
		allowed, reason, err := c.deps.Usage.CanAnalyze(ctx, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("quota check: %w", err)
		}
		if !allowed {
			return Result{}, &QuotaError{Reason: reason}
		}
	}

	run := domain.Run{
		ID:         store.NewRunID(),
		Repository: req.Repository,
		PRNumber:   req.PRNumber,
		Status:     domain.RunStatusPending,
		StartedAt:  c.deps.Now(),
		Metadata:   map[string]int{},
	}
	if c.deps.Store != nil {
		if err := c.deps.Store.CreateRun(ctx, run); err != nil {
			return Result{}, fmt.Errorf("create run: %w", err)
		}
	}

	return c.execute(ctx, run, req)
}

// Rerun resets a terminal run to pending, clears its findings, and
// executes the pipeline again under the same run ID.
func (c *Coordinator) Rerun(ctx context.Context, runID, userID string) (Result, error) {
	if c.deps.Store == nil {
		return Result{}, errors.New("rerun requires a store")
	}

	run, err := c.deps.Store.GetRun(ctx, runID)
	if err != nil {
		return Result{}, fmt.Errorf("load run: %w", err)
	}
	if run.Status != domain.RunStatusCompleted && run.Status != domain.RunStatusFailed {
		return Result{}, fmt.Errorf("run %s is %s; only completed or failed runs can be rerun", runID, run.Status)
	}

	run.Status = domain.RunStatusPending
	run.StartedAt = c.deps.Now()
	run.CompletedAt = time.Time{}
	run.ErrorMessage = ""
	run.RiskScore = 0
	run.RiskBreakdown = domain.RiskBreakdown{}
	run.Summary = ""
	run.Metadata = map[string]int{}

	if err := c.deps.Store.DeleteFindingsByRun(ctx, runID); err != nil {
		return Result{}, fmt.Errorf("clear findings: %w", err)
	}
	if err := c.deps.Store.UpdateRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("reset run: %w", err)
	}

	return c.execute(ctx, run, Request{Repository: run.Repository, PRNumber: run.PRNumber, UserID: userID})
}

func (c *Coordinator) execute(ctx context.Context, run domain.Run, req Request) (Result, error) {
	logger := c.deps.Logger.With("run_id", run.ID, "repository", run.Repository, "pr", run.PRNumber)

	run.Status = domain.RunStatusRunning
	c.persistRun(ctx, logger, run)

	if base, head, err := c.deps.Source.GetPullRequestSHAs(ctx, req.Repository, req.PRNumber); err != nil {
		logger.Warn("could not resolve commit SHAs", "error", err)
	} else {
		run.BaseSHA, run.HeadSHA = base, head
	}

	c.setStatus(ctx, logger, run, statusPending, "AI code review in progress...")

	logger.Info("fetching change set")
	fileChanges, err := c.deps.Source.GetDiff(ctx, req.Repository, req.PRNumber)
	if err != nil {
		return Result{}, c.failRun(ctx, logger, run, fmt.Errorf("fetch diff: %w", err))
	}
	if c.deps.MaxFiles > 0 && len(fileChanges) > c.deps.MaxFiles {
		logger.Warn("change set truncated", "files", len(fileChanges), "max", c.deps.MaxFiles)
		fileChanges = fileChanges[:c.deps.MaxFiles]
	}

	logger.Info("running rule analysis", "files", len(fileChanges))
	ruleFindings := c.deps.Rules.Analyze(fileChanges)

	var stages Stages
	var aiFindings []domain.Finding
	if c.deps.Analyzer == nil {
		stages.ModelAnalysis = stageSkipped[int]("no model provider configured")
	} else {
		logger.Info("running model analysis")
		aiFindings = c.deps.Analyzer.AnalyzeDiff(ctx, fileChanges, ruleFindings)
		stages.ModelAnalysis = stageValue(len(aiFindings))
	}

	findings := c.deps.Dedup.Deduplicate(append(ruleFindings, aiFindings...))
	logger.Info("deduplication complete", "before", len(ruleFindings)+len(aiFindings), "after", len(findings))

	stages.AutoFix = c.generateAutoFixes(ctx, logger, findings, fileChanges)
	stages.Embeddings = c.embedFindings(ctx, findings)

	var assessment domain.RiskAssessment
	if c.deps.Risk == nil {
		stages.Risk = stageSkipped[domain.RiskAssessment]("no risk scorer configured")
	} else {
		assessment = c.deps.Risk.Score(ctx, fileChanges, findings)
		stages.Risk = stageValue(assessment)
		run.RiskScore = assessment.Score
		run.RiskBreakdown = assessment.Breakdown
	}

	stages.Summary = c.generateSummary(ctx, logger, fileChanges, findings, len(aiFindings))
	run.Summary = stages.Summary.Value

	run.Metadata["files_analyzed"] = len(fileChanges)
	run.Metadata["findings_count"] = len(findings)
	run.Metadata["rule_findings"] = len(ruleFindings)
	run.Metadata["ai_findings"] = len(aiFindings)

	if c.deps.Store != nil {
		if err := c.deps.Store.SaveFindings(ctx, run.ID, findings); err != nil {
			return Result{}, c.failRun(ctx, logger, run, fmt.Errorf("persist findings: %w", err))
		}
	}

	run.Status = domain.RunStatusCompleted
	run.CompletedAt = c.deps.Now()
	c.persistRun(ctx, logger, run)

	stages.Notification = c.notify(ctx, logger, run, findings)

	if c.deps.Usage != nil {
		lines := 0
		for _, fc := range fileChanges {
			lines += fc.Additions + fc.Deletions
		}
		if err := c.deps.Usage.RecordAnalysis(ctx, req.UserID, lines, len(findings)); err != nil {
			logger.Warn("usage recording failed", "error", err)
		}
	}

	logger.Info("analysis completed", "findings", len(findings), "risk_score", run.RiskScore)

	return Result{Run: run, Findings: findings, Risk: assessment, Stages: stages}, nil
}

func (c *Coordinator) generateAutoFixes(ctx context.Context, logger hclog.Logger, findings []domain.Finding, fileChanges []domain.FileChange) StageResult[int] {
	if !c.deps.AutoFix {
		return stageSkipped[int]("auto-fix disabled")
	}
	if c.deps.Analyzer == nil {
		return stageSkipped[int]("no model provider configured")
	}

	patches := make(map[string]string, len(fileChanges))
	for _, fc := range fileChanges {
		patches[fc.Filename] = fc.Patch
	}

	fixed := 0
	for i := range findings {
		if fixed == maxAutoFixFindings {
			break
		}
		f := findings[i]
		if domain.SeverityRank(f.Severity) > domain.SeverityRank(domain.SeverityHigh) {
			continue
		}
		patch := patches[f.FilePath]
		if patch == "" {
			continue
		}
		fix, err := c.deps.Analyzer.GenerateAutoFix(ctx, f, patch)
		if err != nil {
			logger.Warn("auto-fix generation failed", "finding", f.Title, "error", err)
			continue
		}
		if fix != "" {
			findings[i].AutoFix = fix
			fixed++
		}
	}
	return stageValue(fixed)
}

func (c *Coordinator) embedFindings(ctx context.Context, findings []domain.Finding) StageResult[int] {
	if c.deps.Embedder == nil {
		return stageSkipped[int]("no embedding backend configured")
	}
	if !c.deps.Embedder.Available(ctx) {
		return stageSkipped[int]("embedding backend unavailable")
	}
	c.deps.Embedder.EmbedFindings(ctx, findings)

	embedded := 0
	for _, f := range findings {
		if f.Embedding != nil {
			embedded++
		}
	}
	return stageValue(embedded)
}

func (c *Coordinator) generateSummary(ctx context.Context, logger hclog.Logger, fileChanges []domain.FileChange, findings []domain.Finding, aiFindings int) StageResult[string] {
	if c.deps.Analyzer == nil {
		return stageSkipped[string]("no model provider configured")
	}

	summary, err := c.deps.Analyzer.GeneratePRSummary(ctx, fileChanges, findings, analysis.RunStats{
		FilesAnalyzed: len(fileChanges),
		TotalFindings: len(findings),
		AIFindings:    aiFindings,
	})
	if err != nil {
		logger.Warn("summary generation failed", "error", err)
		return stageSkipped[string]("summary generation failed")
	}
	return stageValue(summary)
}

func (c *Coordinator) notify(ctx context.Context, logger hclog.Logger, run domain.Run, findings []domain.Finding) StageResult[bool] {
	if c.deps.Notifier == nil {
		return stageSkipped[bool]("no notifier configured")
	}

	if c.deps.Renderer != nil {
		body := c.deps.Renderer.RenderComment(run, findings)
		if err := c.deps.Notifier.PostComment(ctx, run.Repository, run.PRNumber, body); err != nil {
			logger.Warn("posting summary comment failed", "error", err)
		}
	}

	state, description := statusForFindings(findings)
	c.setStatus(ctx, logger, run, state, description)

	return stageValue(true)
}

// statusForFindings maps a finding set to the final commit status.
// Critical findings block; anything else passes with a warning count.
func statusForFindings(findings []domain.Finding) (string, string) {
	critical, high := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityHigh:
			high++
		}
	}

	switch {
	case critical > 0:
		return statusFailure, fmt.Sprintf("Found %d critical issues", critical)
	case high > 0:
		return statusSuccess, fmt.Sprintf("Found %d high priority issues", high)
	default:
		return statusSuccess, "No critical issues found"
	}
}

func (c *Coordinator) setStatus(ctx context.Context, logger hclog.Logger, run domain.Run, state, description string) {
	if c.deps.Notifier == nil || run.HeadSHA == "" {
		return
	}
	if err := c.deps.Notifier.SetStatusCheck(ctx, run.Repository, run.HeadSHA, state, description); err != nil {
		logger.Warn("status check failed", "state", state, "error", err)
	}
}

func (c *Coordinator) persistRun(ctx context.Context, logger hclog.Logger, run domain.Run) {
	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.UpdateRun(ctx, run); err != nil {
		logger.Warn("persisting run failed", "status", run.Status, "error", err)
	}
}

// failRun marks the run failed with a sanitized message and reports the
// sanitized error to the caller.
func (c *Coordinator) failRun(ctx context.Context, logger hclog.Logger, run domain.Run, cause error) error {
	message := c.deps.Sanitizer.Sanitize(cause.Error())
	logger.Error("analysis failed", "error", message)

	run.Status = domain.RunStatusFailed
	run.ErrorMessage = message
	run.CompletedAt = c.deps.Now()

	if c.deps.Store != nil {
		if err := c.deps.Store.UpdateRun(ctx, run); err != nil {
			logger.Warn("persisting failed run failed", "error", err)
		}
	}

	return errors.New(message)
}
