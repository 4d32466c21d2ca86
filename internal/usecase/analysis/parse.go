package analysis

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// Field caps keep hostile or rambling model output out of storage.
const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
	maxSuggestionLen  = 500
)

// ruleIDReasoning marks findings produced by model reasoning rather
// than the static rule catalog.
const ruleIDReasoning = "AI:reasoning"

var severityAllowed = map[string]bool{
	domain.SeverityCritical: true,
	domain.SeverityHigh:     true,
	domain.SeverityMedium:   true,
	domain.SeverityLow:      true,
}

var categoryAllowed = map[string]bool{
	domain.CategoryBug:          true,
	domain.CategorySecurity:     true,
	domain.CategoryPerformance:  true,
	domain.CategoryBestPractice: true,
}

type rawFinding struct {
	LineNumber  int    `json:"line_number"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// ParseFindings turns a model response into findings. The payload is
// recovered from fenced or chatty responses by slicing from the first
// '[' to the last ']'. Entries without a title or description are
// dropped; unknown severities become medium and unknown categories
// become bug. Unparseable responses yield no findings, never an error.
func ParseFindings(response, filePath, provider string) []domain.Finding {
	payload, ok := llmhttp.ExtractJSONArray(response)
	if !ok {
		return nil
	}

	var raw []rawFinding
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil
	}

	var findings []domain.Finding
	for _, item := range raw {
		if item.Title == "" || item.Description == "" {
			continue
		}

		severity := strings.ToLower(item.Severity)
		if !severityAllowed[severity] {
			severity = domain.SeverityMedium
		}
		category := strings.ToLower(item.Category)
		if !categoryAllowed[category] {
			category = domain.CategoryBug
		}

		findings = append(findings, domain.NewFinding(domain.FindingInput{
			FilePath:      filePath,
			LineNumber:    item.LineNumber,
			Severity:      severity,
			Category:      category,
			RuleID:        ruleIDReasoning,
			Title:         truncate(item.Title, maxTitleLen),
			Description:   truncate(item.Description, maxDescriptionLen),
			Suggestion:    truncate(item.Suggestion, maxSuggestionLen),
			IsAIGenerated: true,
			Metadata:      map[string]string{"source": "llm", "provider": provider},
		}))
	}
	return findings
}

// truncate cuts on a rune boundary so a multi-byte character is never
// split mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
