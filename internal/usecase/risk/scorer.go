// Package risk computes a 0-100 merge-risk score for a pull request from
// change-size heuristics, finding severities, and an optional model-based
// adjustment.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// sensitiveKeywords mark files whose changes widen the blast radius.
var sensitiveKeywords = []string{
	"auth", "security", "password", "token", "key", "secret",
	"payment", "billing", "database", "migration", "config",
	".env", "docker", "ci", "deploy", "infra",
}

// TextGenerator produces a completion for a system/user prompt pair.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Scorer computes risk assessments. The generator is optional; without
// one (or when it fails) the model adjustment is zero and the scoring is
// purely heuristic.
type Scorer struct {
	generator TextGenerator
	logger    hclog.Logger
}

func NewScorer(generator TextGenerator, logger hclog.Logger) *Scorer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Scorer{generator: generator, logger: logger}
}

// Score assesses the risk of merging the given change set.
//
// Component caps: size 30, finding severity 40, blast radius 15,
// complexity 15, with a model adjustment clamped to [-15, +15]. The
// final score is clamped to [0, 100].
func (s *Scorer) Score(ctx context.Context, fileChanges []domain.FileChange, findings []domain.Finding) domain.RiskAssessment {
	var additions, deletions int
	sensitiveFiles := 0
	for _, fc := range fileChanges {
		additions += fc.Additions
		deletions += fc.Deletions
		if isSensitivePath(fc.Filename) {
			sensitiveFiles++
		}
	}
	filesChanged := len(fileChanges)

	var criticalCount, highCount, mediumCount int
	for _, f := range findings {
		switch f.Severity {
		case domain.SeverityCritical:
			criticalCount++
		case domain.SeverityHigh:
			highCount++
		case domain.SeverityMedium:
			mediumCount++
		}
	}

	sizeScore := math.Min(30, float64(additions+deletions)/20)
	severityScore := math.Min(40, float64(criticalCount*15+highCount*8+mediumCount*3))
	blastRadius := math.Min(15, float64(filesChanged)*1.5+float64(sensitiveFiles)*5)
	complexityScore := 5.0
	if deletions > 0 {
		complexityScore = math.Min(15, float64(additions)/float64(deletions)*3)
	}

	heuristic := math.Round(math.Min(100, sizeScore+severityScore+blastRadius+complexityScore))

	adjustment, explanation := s.modelAdjustment(ctx, fileChanges, findings,
		additions, deletions, sensitiveFiles, criticalCount, highCount, mediumCount)

	final := int(math.Round(math.Max(0, math.Min(100, heuristic+float64(adjustment)))))

	return domain.RiskAssessment{
		Score:       final,
		Label:       domain.RiskLabel(final),
		Explanation: explanation,
		Breakdown: domain.RiskBreakdown{
			SizeImpact:     int(math.Round(sizeScore)),
			SeverityImpact: int(math.Round(severityScore)),
			BlastRadius:    int(math.Round(blastRadius)),
			Complexity:     int(math.Round(complexityScore)),
			AIAdjustment:   adjustment,
		},
	}
}

// modelAdjustment asks the generator for a context-aware correction.
// Any failure degrades to (0, "").
func (s *Scorer) modelAdjustment(ctx context.Context, fileChanges []domain.FileChange, findings []domain.Finding, additions, deletions, sensitiveFiles, criticalCount, highCount, mediumCount int) (int, string) {
	if s.generator == nil {
		return 0, ""
	}

	fileNames := make([]string, 0, len(fileChanges))
	for i, fc := range fileChanges {
		if i >= 15 {
			break
		}
		fileNames = append(fileNames, fc.Filename)
	}

	findingParts := make([]string, 0, len(findings))
	for i, f := range findings {
		if i >= 10 {
			break
		}
		findingParts = append(findingParts, fmt.Sprintf("%s (%s)", f.Title, f.Severity))
	}
	findingSummary := strings.Join(findingParts, "; ")
	if findingSummary == "" {
		findingSummary = "None"
	}

	prompt := fmt.Sprintf(`Given this PR analysis, provide a risk assessment as JSON:
- Files changed (%d): %s
- Lines: +%d -%d
- Findings: %d total (%d critical, %d high, %d medium)
- Key findings: %s
- Sensitive files touched: %d

Return ONLY valid JSON: {"ai_adjustment": <number -15 to +15>, "explanation": "<one paragraph why this PR is risky or safe>"}`,
		len(fileChanges), strings.Join(fileNames, ", "),
		additions, deletions,
		len(findings), criticalCount, highCount, mediumCount,
		findingSummary, sensitiveFiles)

	response, err := s.generator.Generate(ctx,
		"You are a senior engineering manager assessing PR merge risk. Return JSON only.",
		prompt)
	if err != nil {
		s.logger.Warn("risk adjustment unavailable", "error", err)
		return 0, ""
	}

	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		AIAdjustment float64 `json:"ai_adjustment"`
		Explanation  string  `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		s.logger.Warn("risk adjustment response unparseable", "error", err)
		return 0, ""
	}

	adjustment := int(math.Round(math.Max(-15, math.Min(15, parsed.AIAdjustment))))
	return adjustment, parsed.Explanation
}

func isSensitivePath(path string) bool {
	lower := strings.ToLower(path)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
