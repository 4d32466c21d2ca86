// Package analysis drives model-based review of a change set: per-file
// deep analysis, cross-file impact, auto-fix generation, and the PR
// summary. Every operation degrades to empty output when no provider is
// configured or a call fails; model analysis never blocks a run.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

const (
	// Files with patches this small are left to the rule engine.
	minChangedLines = 5

	maxFilesPerRun     = 10
	maxSummarizedFiles = 5
	maxPatchChars      = 50000
	maxAutoFixPatch    = 3000
	maxPromptTokens    = 12000
)

// TextGenerator produces completions; Name tags findings with their
// originating provider.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StructuralAnalyzer supplies code structure digests for prompts.
type StructuralAnalyzer interface {
	Available(language string) bool
	AnalyzeCode(ctx context.Context, source, language string) domain.AstSummary
}

// Orchestrator coordinates model calls for one analysis run.
type Orchestrator struct {
	generator      TextGenerator
	ast            StructuralAnalyzer
	logger         hclog.Logger
	estimateTokens func(text string) int
}

func NewOrchestrator(generator TextGenerator, ast StructuralAnalyzer, logger hclog.Logger) *Orchestrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Orchestrator{generator: generator, ast: ast, logger: logger}
}

// SetTokenEstimator installs a token counter used to keep prompts under
// the provider context budget.
func (o *Orchestrator) SetTokenEstimator(estimate func(text string) int) {
	o.estimateTokens = estimate
}

// SelectFiles returns the files worth sending to a model: non-empty
// patch and more than minChangedLines changed lines, capped at
// maxFilesPerRun in diff order.
func SelectFiles(fileChanges []domain.FileChange) []domain.FileChange {
	var selected []domain.FileChange
	for _, fc := range fileChanges {
		if fc.Patch == "" || fc.Additions+fc.Deletions <= minChangedLines {
			continue
		}
		selected = append(selected, fc)
		if len(selected) == maxFilesPerRun {
			break
		}
	}
	return selected
}

// AnalyzeDiff runs per-file model analysis over the selected files and
// appends cross-file impact findings when more than one file qualifies.
func (o *Orchestrator) AnalyzeDiff(ctx context.Context, fileChanges []domain.FileChange, ruleFindings []domain.Finding) []domain.Finding {
	if o.generator == nil {
		return nil
	}

	selected := SelectFiles(fileChanges)
	var findings []domain.Finding

	for _, fc := range selected {
		fileFindings, err := o.analyzeFile(ctx, fc, ruleFindings)
		if err != nil {
			o.logger.Error("model analysis failed for file", "file", fc.Filename, "error", err)
			continue
		}
		findings = append(findings, fileFindings...)
	}

	if len(selected) > 1 {
		crossFindings, err := o.CrossFileImpact(ctx, selected)
		if err != nil {
			o.logger.Error("cross-file analysis failed", "error", err)
		} else {
			findings = append(findings, crossFindings...)
		}
	}

	return findings
}

func (o *Orchestrator) analyzeFile(ctx context.Context, fc domain.FileChange, ruleFindings []domain.Finding) ([]domain.Finding, error) {
	patch := fc.Patch
	if len(patch) > maxPatchChars {
		patch = patch[:maxPatchChars]
	}

	var summary domain.AstSummary
	if o.ast != nil && fc.FullContent != "" && o.ast.Available(fc.Language) {
		summary = o.ast.AnalyzeCode(ctx, fc.FullContent, fc.Language)
	}

	ruleHits := 0
	for _, f := range ruleFindings {
		if f.FilePath == fc.Filename {
			ruleHits++
		}
	}

	prompt := buildAnalysisPrompt(fc.Filename, patch, fc.FullContent, summary, ruleHits)
	if o.estimateTokens != nil && fc.FullContent != "" && o.estimateTokens(prompt) > maxPromptTokens {
		// The patch alone has to do; full file context would blow the
		// provider budget.
		o.logger.Debug("dropping full file context from prompt", "file", fc.Filename)
		prompt = buildAnalysisPrompt(fc.Filename, patch, "", summary, ruleHits)
	}
	response, err := o.generator.Generate(ctx, reviewSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	return ParseFindings(response, fc.Filename, o.generator.Name()), nil
}

// CrossFileImpact looks for issues spanning the changed files: breaking
// interface changes, inconsistent updates, dependency problems, missing
// test updates. Findings carry line number 0 since they are not tied to
// a single line.
func (o *Orchestrator) CrossFileImpact(ctx context.Context, fileChanges []domain.FileChange) ([]domain.Finding, error) {
	if o.generator == nil || len(fileChanges) < 2 {
		return nil, nil
	}

	var summaries []fileSummary
	for _, fc := range fileChanges {
		if len(summaries) == maxSummarizedFiles {
			break
		}
		if fc.FullContent == "" || o.ast == nil || !o.ast.Available(fc.Language) {
			continue
		}
		astSummary := o.ast.AnalyzeCode(ctx, fc.FullContent, fc.Language)
		summaries = append(summaries, fileSummary{
			File:    fc.Filename,
			Summary: astSummary,
			Changes: fmt.Sprintf("+%d -%d", fc.Additions, fc.Deletions),
		})
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	prompt := buildCrossFilePrompt(summaries)
	response, err := o.generator.Generate(ctx, reviewSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	return ParseFindings(response, crossFileAnalysisPath, o.generator.Name()), nil
}

// GenerateAutoFix asks the model for a unified diff fixing one finding.
// Fences around the result are stripped.
func (o *Orchestrator) GenerateAutoFix(ctx context.Context, finding domain.Finding, filePatch string) (string, error) {
	if o.generator == nil {
		return "", nil
	}

	if len(filePatch) > maxAutoFixPatch {
		filePatch = filePatch[:maxAutoFixPatch]
	}
	prompt := buildAutoFixPrompt(finding, filePatch)

	result, err := o.generator.Generate(ctx, autoFixSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	return stripFence(result), nil
}

// RunStats feeds run-level counters into the summary prompt.
type RunStats struct {
	FilesAnalyzed int
	TotalFindings int
	AIFindings    int
}

// GeneratePRSummary produces a 3-5 sentence plain-English summary for
// non-technical readers.
func (o *Orchestrator) GeneratePRSummary(ctx context.Context, fileChanges []domain.FileChange, findings []domain.Finding, meta RunStats) (string, error) {
	if o.generator == nil {
		return "", nil
	}

	prompt := buildSummaryPrompt(fileChanges, findings, meta)
	summary, err := o.generator.Generate(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

// stripFence removes a surrounding markdown code fence, keeping
// interior fences intact.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 1 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
