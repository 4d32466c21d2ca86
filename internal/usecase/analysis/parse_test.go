package analysis

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

func TestParseFindings_ValidArray(t *testing.T) {
	response := `[
		{"line_number": 15, "severity": "high", "category": "bug", "title": "Race condition", "description": "Unsynchronized access", "suggestion": "Use a mutex"}
	]`
	findings := ParseFindings(response, "worker.py", "anthropic")

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "worker.py", f.FilePath)
	assert.Equal(t, 15, f.LineNumber)
	assert.Equal(t, domain.SeverityHigh, f.Severity)
	assert.Equal(t, domain.CategoryBug, f.Category)
	assert.Equal(t, "AI:reasoning", f.RuleID)
	assert.True(t, f.IsAIGenerated)
	assert.Equal(t, "anthropic", f.Metadata["provider"])
	assert.NotEmpty(t, f.ID)
}

func TestParseFindings_FencedEmptyArray(t *testing.T) {
	assert.Empty(t, ParseFindings("```json\n[]\n```", "a.py", "p"))
}

func TestParseFindings_ChattyResponse(t *testing.T) {
	response := "Sure! Here is my analysis:\n[{\"line_number\": 3, \"severity\": \"low\", \"category\": \"performance\", \"title\": \"t\", \"description\": \"d\"}]\nLet me know if you need more."
	findings := ParseFindings(response, "a.py", "p")
	require.Len(t, findings, 1)
	assert.Equal(t, domain.SeverityLow, findings[0].Severity)
}

func TestParseFindings_NoArray(t *testing.T) {
	assert.Empty(t, ParseFindings("I could not find any issues.", "a.py", "p"))
}

func TestParseFindings_InvalidJSON(t *testing.T) {
	assert.Empty(t, ParseFindings("[{not valid json]", "a.py", "p"))
}

func TestParseFindings_DropsEntriesMissingTitleOrDescription(t *testing.T) {
	response := `[
		{"line_number": 1, "severity": "high", "category": "bug", "title": "", "description": "d"},
		{"line_number": 2, "severity": "high", "category": "bug", "title": "t", "description": ""},
		{"line_number": 3, "severity": "high", "category": "bug", "title": "keep", "description": "keep"}
	]`
	findings := ParseFindings(response, "a.py", "p")
	require.Len(t, findings, 1)
	assert.Equal(t, "keep", findings[0].Title)
}

func TestParseFindings_UnknownSeverityAndCategoryDefault(t *testing.T) {
	response := `[{"line_number": 1, "severity": "catastrophic", "category": "vibes", "title": "t", "description": "d"}]`
	findings := ParseFindings(response, "a.py", "p")
	require.Len(t, findings, 1)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
	assert.Equal(t, domain.CategoryBug, findings[0].Category)
}

func TestParseFindings_TruncatesLongFields(t *testing.T) {
	long := strings.Repeat("x", 2000)
	response := `[{"line_number": 1, "severity": "low", "category": "bug", "title": "` + long + `", "description": "` + long + `", "suggestion": "` + long + `"}]`
	findings := ParseFindings(response, "a.py", "p")
	require.Len(t, findings, 1)
	assert.Len(t, findings[0].Title, maxTitleLen)
	assert.Len(t, findings[0].Description, maxDescriptionLen)
	assert.Len(t, findings[0].Suggestion, maxSuggestionLen)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// A three-byte rune straddles the cap; the cut must not split it.
	s := strings.Repeat("x", maxTitleLen-1) + "世界"
	got := truncate(s, maxTitleLen)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxTitleLen-1)
}

func TestParseFindings_MissingLineNumberDefaultsToZero(t *testing.T) {
	response := `[{"severity": "medium", "category": "best_practice", "title": "t", "description": "d"}]`
	findings := ParseFindings(response, "cross-file-analysis", "p")
	require.Len(t, findings, 1)
	assert.Equal(t, 0, findings[0].LineNumber)
}
