package analysis

import (
	"fmt"
	"strings"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

const crossFileAnalysisPath = "cross-file-analysis"

const reviewSystemPrompt = "You are an expert code reviewer specializing in security, performance, and correctness. Respond only with valid JSON arrays."

const autoFixSystemPrompt = "You are an expert programmer. Generate precise, minimal code fixes as unified diff patches. Return ONLY the diff, no markdown wrapping, no explanation."

const summarySystemPrompt = "You are a technical writer who translates code reviews into plain English for non-technical stakeholders. Be clear, concise, and actionable."

// buildAnalysisPrompt assembles the per-file review prompt: structure
// digest, full-file context (head and tail when large), the diff, and
// the analysis objectives.
func buildAnalysisPrompt(filename, patch, fullContent string, summary domain.AstSummary, ruleHits int) string {
	var sections []string

	if !summary.Empty() {
		var lines []string
		if len(summary.Functions) > 0 {
			names := functionNames(summary.Functions, 10)
			lines = append(lines, "- Functions: "+strings.Join(names, ", "))
		}
		if len(summary.Classes) > 0 {
			names := classNames(summary.Classes, 5)
			lines = append(lines, "- Classes: "+strings.Join(names, ", "))
		}
		if len(summary.Imports) > 0 {
			head := summary.Imports
			if len(head) > 3 {
				head = head[:3]
			}
			lines = append(lines, fmt.Sprintf("- Imports: %d (%s...)", len(summary.Imports), strings.Join(head, ", ")))
		}
		if len(lines) > 0 {
			sections = append(sections, "**Code Structure:**\n"+strings.Join(lines, "\n"))
			sections = append(sections, fmt.Sprintf("- Cyclomatic Complexity: %d", summary.Complexity))
		}
	}

	if fullContent != "" {
		const maxContentChars = 3000
		if len(fullContent) > maxContentChars {
			lines := strings.Split(fullContent, "\n")
			head := lines
			if len(head) > 30 {
				head = head[:30]
			}
			tail := lines
			if len(tail) > 20 {
				tail = tail[len(tail)-20:]
			}
			preview := strings.Join(head, "\n") + "\n...[truncated]...\n" + strings.Join(tail, "\n")
			sections = append(sections, fmt.Sprintf("**Full File Context (truncated):**\n```\n%s\n```", preview))
		} else {
			sections = append(sections, fmt.Sprintf("**Full File Content:**\n```\n%s\n```", fullContent))
		}
	}

	contextBlock := strings.Join(sections, "\n\n")

	return fmt.Sprintf(`You are an expert code reviewer with deep knowledge of software engineering best practices, security vulnerabilities, and performance optimization.

File: %s

%s

**Code Changes (Diff):**
`+"```\n%s\n```"+`

**Analysis Objectives:**
1. **Logic & Correctness**: Identify bugs, incorrect logic, edge cases, off-by-one errors
2. **Security**: Find vulnerabilities beyond simple patterns (auth bypasses, race conditions, TOCTOU, injection flaws, etc.)
3. **Performance**: Detect inefficient algorithms, N+1 queries, memory leaks, unnecessary computations
4. **Concurrency**: Identify race conditions, deadlock risks, thread-safety issues
5. **Error Handling**: Gaps in error recovery, unhandled edge cases, resource leaks
6. **Maintainability**: Complex code, poor naming, missing documentation for complex logic
7. **Cross-file Impact**: Consider how changes might break other files that use this code

**Context:**
- Rule-based static analysis already detected %d issues
- You have access to the full file context and code structure
- Focus on issues that require deep reasoning and understanding of the broader codebase
- Ignore trivial style issues already caught by linters

**Output Format:**
Return a valid JSON array of findings. Each finding must have:
- line_number: Integer (use best estimate from diff context)
- severity: One of ["critical", "high", "medium", "low"]
- category: One of ["bug", "security", "performance", "best_practice"]
- title: String (concise, under 80 chars)
- description: String (detailed explanation with impact)
- suggestion: String (specific, actionable fix)

**Guidelines:**
- Only report significant issues (not cosmetic)
- Be specific with line numbers based on the diff
- Use the full file context to understand impact on other functions/classes
- Include WHY it's a problem, not just WHAT
- Provide actionable suggestions
- If no issues found, return: []
- Return ONLY the JSON array, no markdown formatting

Your JSON response:
`, filename, contextBlock, patch, ruleHits)
}

type fileSummary struct {
	File    string
	Summary domain.AstSummary
	Changes string
}

// buildCrossFilePrompt assembles the multi-file impact prompt from
// structural summaries of the changed files.
func buildCrossFilePrompt(summaries []fileSummary) string {
	var overview strings.Builder
	for _, fs := range summaries {
		overview.WriteString(fmt.Sprintf("**%s** (%s)\n", fs.File, fs.Changes))
		if len(fs.Summary.Functions) > 0 {
			overview.WriteString("  - Functions: " + strings.Join(functionNames(fs.Summary.Functions, 5), ", ") + "\n")
		}
		if len(fs.Summary.Classes) > 0 {
			overview.WriteString("  - Classes: " + strings.Join(classNames(fs.Summary.Classes, 3), ", ") + "\n")
		}
		if len(fs.Summary.Imports) > 0 {
			overview.WriteString("  - Imports: " + strings.Join(capped(fs.Summary.Imports, 5), ", ") + "\n")
		}
		if len(fs.Summary.Exports) > 0 {
			overview.WriteString("  - Exports: " + strings.Join(capped(fs.Summary.Exports, 5), ", ") + "\n")
		}
	}

	return fmt.Sprintf(`You are an expert code reviewer analyzing cross-file impact in a Pull Request.

**Files Changed (%d):**

%s

**Analysis Objectives:**

Identify issues that span multiple files:

1. **Breaking Changes**:
   - Function/method signature changes without updating callers
   - Renamed classes/functions not updated across imports
   - Removed exports still being imported elsewhere

2. **Inconsistent Updates**:
   - Related files that should be updated together but weren't
   - Similar patterns changed in one file but not others
   - Configuration files out of sync

3. **Dependency Issues**:
   - Circular dependencies introduced
   - Missing imports after refactoring
   - Import paths that might break after file moves

4. **Missing Tests**:
   - Code changes without corresponding test updates
   - New functions/classes without test coverage

**Output Format:**
Return a valid JSON array of cross-file findings. Use line_number: 0 for multi-file issues.

Return ONLY the JSON array, no markdown formatting. If no cross-file issues found, return: []

Your JSON response:
`, len(summaries), overview.String())
}

func buildAutoFixPrompt(finding domain.Finding, filePatch string) string {
	return fmt.Sprintf(`You are a senior software engineer. Generate a PRECISE code fix for this issue.

**Issue:**
- Title: %s
- Severity: %s
- File: %s
- Line: %d
- Description: %s
- Suggestion: %s

**Current Code (diff context):**
`+"```\n%s\n```"+`

Generate the fix as a unified diff patch. Return ONLY the diff, no explanation.
Format:
`+"```diff\n--- a/%s\n+++ b/%s\n@@ ... @@\n context line\n-old line\n+new line\n context line\n```",
		finding.Title, finding.Severity, finding.FilePath, finding.LineNumber,
		finding.Description, finding.Suggestion, filePatch,
		finding.FilePath, finding.FilePath)
}

func buildSummaryPrompt(fileChanges []domain.FileChange, findings []domain.Finding, meta RunStats) string {
	var fileList strings.Builder
	for i, fc := range fileChanges {
		if i >= 20 {
			break
		}
		fileList.WriteString(fmt.Sprintf("- %s (+%d -%d)\n", fc.Filename, fc.Additions, fc.Deletions))
	}

	var findingList strings.Builder
	for i, f := range findings {
		if i >= 15 {
			break
		}
		findingList.WriteString(fmt.Sprintf("- [%s] %s in %s\n", f.Severity, f.Title, f.FilePath))
	}
	findingBlock := findingList.String()
	if findingBlock == "" {
		findingBlock = "No issues found."
	}

	return fmt.Sprintf(`Summarize this Pull Request for a non-technical project manager or stakeholder.

**Changed Files (%d):**
%s

**Code Review Findings (%d):**
%s

**Metrics:**
- Files analyzed: %d
- Total findings: %d
- AI-detected issues: %d

Write a 3-5 sentence summary that covers:
1. What this PR changes (infer from file names)
2. Overall quality assessment
3. Key risks or concerns (if any)
4. Recommendation (safe to merge / needs attention / block merge)

Use plain English, no jargon. Be concise.`,
		len(fileChanges), fileList.String(),
		len(findings), findingBlock,
		meta.FilesAnalyzed, meta.TotalFindings, meta.AIFindings)
}

func functionNames(functions []domain.FunctionInfo, max int) []string {
	var names []string
	for i, f := range functions {
		if i >= max {
			break
		}
		names = append(names, f.Name)
	}
	return names
}

func classNames(classes []domain.ClassInfo, max int) []string {
	var names []string
	for i, c := range classes {
		if i >= max {
			break
		}
		names = append(names, c.Name)
	}
	return names
}

func capped(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}
