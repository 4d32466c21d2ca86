// Package markdown renders analysis results for humans: the summary
// comment posted back to the pull request and a standalone report file
// for CLI runs.
package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

const (
	maxHighlightedIssues = 3
	maxExcerptChars      = 100
)

// Renderer builds the pull request summary comment.
type Renderer struct{}

func NewRenderer() Renderer {
	return Renderer{}
}

// RenderComment formats the review summary posted as an issue comment.
func (Renderer) RenderComment(run domain.Run, findings []domain.Finding) string {
	bySeverity := groupBySeverity(findings)
	critical := bySeverity[domain.SeverityCritical]
	high := bySeverity[domain.SeverityHigh]
	medium := bySeverity[domain.SeverityMedium]

	var b strings.Builder
	b.WriteString("## 🤖 AI Code Review Summary\n\n")
	b.WriteString("**Analysis Results:**\n")
	fmt.Fprintf(&b, "- 🔴 Critical: %d\n", len(critical))
	fmt.Fprintf(&b, "- 🟠 High: %d\n", len(high))
	fmt.Fprintf(&b, "- 🟡 Medium: %d\n", len(medium))
	fmt.Fprintf(&b, "- Total Issues: %d\n\n", len(findings))

	fmt.Fprintf(&b, "**Risk Score:** %d/100 (%s)\n\n", run.RiskScore, domain.RiskLabel(run.RiskScore))

	if run.Summary != "" {
		b.WriteString(run.Summary)
		b.WriteString("\n\n")
	}

	b.WriteString("---\n\n")

	if len(critical) > 0 {
		b.WriteString("### 🔴 Critical Issues\n\n")
		writeHighlights(&b, critical)
	}
	if len(high) > 0 {
		b.WriteString("### 🟠 High Priority Issues\n\n")
		writeHighlights(&b, high)
	}

	return b.String()
}

func writeHighlights(b *strings.Builder, findings []domain.Finding) {
	for i, f := range findings {
		if i == maxHighlightedIssues {
			break
		}
		fmt.Fprintf(b, "- **%s** in `%s`\n", f.Title, f.FilePath)
		fmt.Fprintf(b, "  %s\n\n", excerpt(f.Description))
	}
}

func excerpt(text string) string {
	if len(text) <= maxExcerptChars {
		return text
	}
	return text[:maxExcerptChars] + "..."
}

func groupBySeverity(findings []domain.Finding) map[string][]domain.Finding {
	grouped := make(map[string][]domain.Finding)
	for _, f := range findings {
		grouped[f.Severity] = append(grouped[f.Severity], f)
	}
	return grouped
}

type clock func() string

// Writer renders a full analysis report into a Markdown file.
type Writer struct {
	now clock
}

func NewWriter(now clock) *Writer {
	return &Writer{now: now}
}

// Write persists the report and returns its path.
func (w *Writer) Write(ctx context.Context, run domain.Run, findings []domain.Finding, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_pr%d_%s.md", sanitise(run.Repository), run.PRNumber, w.now())
	path := filepath.Join(outputDir, filename)

	if err := os.WriteFile(path, []byte(buildReport(run, findings)), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	return path, nil
}

func buildReport(run domain.Run, findings []domain.Finding) string {
	var b strings.Builder
	b.WriteString("# Pull Request Analysis Report\n\n")
	fmt.Fprintf(&b, "- Repository: %s\n", run.Repository)
	fmt.Fprintf(&b, "- Pull Request: #%d\n", run.PRNumber)
	if run.HeadSHA != "" {
		fmt.Fprintf(&b, "- Commits: %s..%s\n", short(run.BaseSHA), short(run.HeadSHA))
	}
	fmt.Fprintf(&b, "- Risk Score: %d/100 (%s)\n\n", run.RiskScore, domain.RiskLabel(run.RiskScore))

	if run.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(run.Summary)
		b.WriteString("\n\n")
	}

	if len(findings) == 0 {
		b.WriteString("No findings reported.\n")
		return b.String()
	}

	b.WriteString("## Findings\n\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "### %s (%s)\n", f.Title, f.Severity)
		if f.LineNumber > 0 {
			fmt.Fprintf(&b, "- File: %s:%d\n", f.FilePath, f.LineNumber)
		} else {
			fmt.Fprintf(&b, "- File: %s\n", f.FilePath)
		}
		fmt.Fprintf(&b, "- Category: %s\n", f.Category)
		if f.RuleID != "" {
			fmt.Fprintf(&b, "- Rule: %s\n", f.RuleID)
		}
		fmt.Fprintf(&b, "\n%s\n\n", f.Description)
		if f.Suggestion != "" {
			fmt.Fprintf(&b, "**Suggestion:** %s\n\n", f.Suggestion)
		}
		if f.AutoFix != "" {
			fmt.Fprintf(&b, "**Proposed fix:**\n\n```diff\n%s\n```\n\n", f.AutoFix)
		}
	}

	return b.String()
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "/", "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
