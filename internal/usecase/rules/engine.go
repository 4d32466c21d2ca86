// Package rules implements pattern-based static analysis over the added
// lines of a diff. The checks are a declarative catalog evaluated by one
// generic driver; each check is a pure match over a single line of code.
package rules

import (
	"strings"

	"github.com/sentinelci/pr-sentinel/internal/diff"
	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// codeExtensions is the set of file suffixes treated as analyzable code.
var codeExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".cpp", ".c",
	".go", ".rb", ".php", ".swift", ".kt", ".rs", ".scala",
}

// Engine evaluates the rule catalog against file changes.
type Engine struct {
	enabled map[string]bool
}

// NewEngine creates an engine restricted to the given rule IDs.
// A nil or empty set enables the full catalog. Unknown IDs are
// harmless: the set is purely a filter over the catalog.
func NewEngine(enabledRuleIDs []string) *Engine {
	if len(enabledRuleIDs) == 0 {
		return &Engine{}
	}
	enabled := make(map[string]bool, len(enabledRuleIDs))
	for _, id := range enabledRuleIDs {
		enabled[id] = true
	}
	return &Engine{enabled: enabled}
}

// Analyze scans the added lines of every code file's patch and returns
// all candidate findings. Several rules may fire on the same line; the
// deduplicator reconciles those later.
func (e *Engine) Analyze(fileChanges []domain.FileChange) []domain.Finding {
	var findings []domain.Finding

	for _, change := range fileChanges {
		if change.Patch == "" || !IsCodeFile(change.Filename) {
			continue
		}

		parsed := diff.Parse(change.Patch)
		for _, hunk := range parsed.Hunks {
			for _, line := range hunk.Added {
				findings = append(findings, e.checkLine(change.Filename, line.LineNumber, line.Code)...)
			}
		}
	}

	return findings
}

// checkLine applies every enabled rule to one added line.
func (e *Engine) checkLine(filename string, lineNumber int, code string) []domain.Finding {
	var findings []domain.Finding

	for _, rule := range Catalog {
		if e.enabled != nil && !e.enabled[rule.ID] {
			continue
		}

		detail, ok := rule.Match(code)
		if !ok {
			continue
		}

		findings = append(findings, domain.NewFinding(domain.FindingInput{
			FilePath:    filename,
			LineNumber:  lineNumber,
			Severity:    rule.Severity,
			Category:    rule.Category,
			RuleID:      rule.ID,
			Title:       rule.title(detail),
			Description: rule.Description,
			Suggestion:  rule.Suggestion,
			CodeSnippet: strings.TrimSpace(code),
		}))
	}

	return findings
}

// IsCodeFile reports whether the filename has a recognized code extension.
func IsCodeFile(filename string) bool {
	for _, ext := range codeExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}
