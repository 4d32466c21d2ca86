package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

type stubGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.prompts = append(s.prompts, userPrompt)
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "[]", nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

type stubAST struct{}

func (stubAST) Available(language string) bool { return language == "python" }

func (stubAST) AnalyzeCode(ctx context.Context, source, language string) domain.AstSummary {
	return domain.AstSummary{
		Functions:  []domain.FunctionInfo{{Name: "process", Line: 1}},
		Imports:    []string{"import os"},
		Complexity: 3,
	}
}

func pyFile(name string, additions int) domain.FileChange {
	return domain.FileChange{
		Filename:    name,
		Status:      domain.FileStatusModified,
		Additions:   additions,
		Deletions:   2,
		Patch:       "@@ -1,2 +1,5 @@\n+code",
		FullContent: "def process():\n    pass\n",
		Language:    "python",
	}
}

func TestSelectFiles(t *testing.T) {
	changes := []domain.FileChange{
		pyFile("big.py", 20),
		{Filename: "tiny.py", Additions: 1, Deletions: 1, Patch: "@@ -1 +1 @@\n+x"},
		{Filename: "nopatch.py", Additions: 50, Deletions: 50},
	}
	selected := SelectFiles(changes)
	require.Len(t, selected, 1)
	assert.Equal(t, "big.py", selected[0].Filename)
}

func TestSelectFiles_CapsAtLimit(t *testing.T) {
	var changes []domain.FileChange
	for i := 0; i < 15; i++ {
		changes = append(changes, pyFile(fmt.Sprintf("f%d.py", i), 10))
	}
	assert.Len(t, SelectFiles(changes), maxFilesPerRun)
}

func TestAnalyzeDiff_SingleFileNoCrossFileCall(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`[{"line_number": 2, "severity": "high", "category": "bug", "title": "t", "description": "d"}]`,
	}}
	o := NewOrchestrator(gen, stubAST{}, nil)

	findings := o.AnalyzeDiff(context.Background(), []domain.FileChange{pyFile("only.py", 10)}, nil)

	require.Len(t, findings, 1)
	assert.Equal(t, "only.py", findings[0].FilePath)
	assert.Equal(t, 1, gen.calls)
}

func TestAnalyzeDiff_MultipleFilesAddsCrossFilePass(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"[]",
		"[]",
		`[{"line_number": 0, "severity": "high", "category": "bug", "title": "Signature changed", "description": "callers not updated"}]`,
	}}
	o := NewOrchestrator(gen, stubAST{}, nil)

	findings := o.AnalyzeDiff(context.Background(),
		[]domain.FileChange{pyFile("a.py", 10), pyFile("b.py", 10)}, nil)

	require.Len(t, findings, 1)
	assert.Equal(t, crossFileAnalysisPath, findings[0].FilePath)
	assert.Equal(t, 0, findings[0].LineNumber)
	assert.Equal(t, 3, gen.calls) // two per-file passes + one cross-file
}

func TestAnalyzeDiff_NoGenerator(t *testing.T) {
	o := NewOrchestrator(nil, stubAST{}, nil)
	assert.Nil(t, o.AnalyzeDiff(context.Background(), []domain.FileChange{pyFile("a.py", 10)}, nil))
}

func TestAnalyzeDiff_ProviderErrorSkipsFile(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	o := NewOrchestrator(gen, stubAST{}, nil)

	findings := o.AnalyzeDiff(context.Background(), []domain.FileChange{pyFile("a.py", 10)}, nil)
	assert.Empty(t, findings)
}

func TestAnalyzeDiff_PromptCarriesStructureAndRuleCount(t *testing.T) {
	gen := &stubGenerator{}
	o := NewOrchestrator(gen, stubAST{}, nil)

	ruleFindings := []domain.Finding{
		{FilePath: "a.py", Severity: domain.SeverityLow},
		{FilePath: "other.py", Severity: domain.SeverityLow},
	}
	o.AnalyzeDiff(context.Background(), []domain.FileChange{pyFile("a.py", 10)}, ruleFindings)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "File: a.py")
	assert.Contains(t, prompt, "Functions: process")
	assert.Contains(t, prompt, "Cyclomatic Complexity: 3")
	assert.Contains(t, prompt, "already detected 1 issues")
}

func TestAnalyzeDiff_OversizedPromptDropsFullContent(t *testing.T) {
	gen := &stubGenerator{}
	o := NewOrchestrator(gen, stubAST{}, nil)
	o.SetTokenEstimator(func(text string) int {
		if strings.Contains(text, "def process()") {
			return maxPromptTokens + 1
		}
		return 100
	})

	o.AnalyzeDiff(context.Background(), []domain.FileChange{pyFile("a.py", 10)}, nil)

	require.Len(t, gen.prompts, 1)
	assert.NotContains(t, gen.prompts[0], "def process()")
	assert.Contains(t, gen.prompts[0], "File: a.py")
}

func TestCrossFileImpact_RequiresTwoFiles(t *testing.T) {
	gen := &stubGenerator{}
	o := NewOrchestrator(gen, stubAST{}, nil)

	findings, err := o.CrossFileImpact(context.Background(), []domain.FileChange{pyFile("a.py", 10)})
	require.NoError(t, err)
	assert.Nil(t, findings)
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateAutoFix_StripsFence(t *testing.T) {
	gen := &stubGenerator{responses: []string{"```diff\n--- a/x.py\n+++ b/x.py\n@@ -1 +1 @@\n-bad\n+good\n```"}}
	o := NewOrchestrator(gen, stubAST{}, nil)

	fix, err := o.GenerateAutoFix(context.Background(), domain.Finding{FilePath: "x.py", Title: "t"}, "@@ -1 +1 @@\n-bad")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fix, "--- a/x.py"))
	assert.NotContains(t, fix, "```")
}

func TestGeneratePRSummary(t *testing.T) {
	gen := &stubGenerator{responses: []string{"  This PR updates the auth flow. Safe to merge.  "}}
	o := NewOrchestrator(gen, stubAST{}, nil)

	summary, err := o.GeneratePRSummary(context.Background(),
		[]domain.FileChange{pyFile("auth.py", 10)},
		nil,
		RunStats{FilesAnalyzed: 1})

	require.NoError(t, err)
	assert.Equal(t, "This PR updates the auth flow. Safe to merge.", summary)
}
