// Package sarif exports findings as SARIF 2.1.0 for code scanning
// integrations.
package sarif

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

const (
	schemaURI = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	toolName  = "pr-sentinel"
	toolURI   = "https://github.com/sentinelci/pr-sentinel"
)

// Writer persists findings as a SARIF file.
type Writer struct {
	now func() string
}

func NewWriter(now func() string) *Writer {
	return &Writer{now: now}
}

// Write stores the SARIF document under outputDir and returns its path.
func (w *Writer) Write(ctx context.Context, run domain.Run, findings []domain.Finding, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("%s_pr%d_%s.sarif", sanitise(run.Repository), run.PRNumber, w.now()))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create sarif file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Convert(run, findings)); err != nil {
		return "", fmt.Errorf("encode sarif: %w", err)
	}

	return path, nil
}

// Convert builds the SARIF document for one run.
func Convert(run domain.Run, findings []domain.Finding) map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(findings))

	for _, finding := range findings {
		message := finding.Description
		if message == "" {
			message = "No description provided"
		}

		ruleID := finding.RuleID
		if ruleID == "" {
			ruleID = finding.Category
		}
		if ruleID == "" {
			ruleID = "code-review"
		}

		result := map[string]interface{}{
			"ruleId":  ruleID,
			"level":   convertSeverity(finding.Severity),
			"message": map[string]interface{}{"text": message},
		}

		if finding.FilePath != "" {
			physicalLocation := map[string]interface{}{
				"artifactLocation": map[string]interface{}{"uri": finding.FilePath},
			}
			// Cross-file findings carry line 0; no region is fabricated
			// for them.
			if finding.LineNumber >= 1 {
				endLine := finding.EndLineNumber
				if endLine < finding.LineNumber {
					endLine = finding.LineNumber
				}
				physicalLocation["region"] = map[string]interface{}{
					"startLine": finding.LineNumber,
					"endLine":   endLine,
				}
			}
			result["locations"] = []map[string]interface{}{
				{"physicalLocation": physicalLocation},
			}
		}

		properties := map[string]interface{}{}
		if finding.Suggestion != "" {
			properties["suggestion"] = finding.Suggestion
		}
		if finding.IsAIGenerated {
			properties["aiGenerated"] = true
		}
		if len(properties) > 0 {
			result["properties"] = properties
		}

		results = append(results, result)
	}

	return map[string]interface{}{
		"version": "2.1.0",
		"$schema": schemaURI,
		"runs": []map[string]interface{}{
			{
				"tool": map[string]interface{}{
					"driver": map[string]interface{}{
						"name":           toolName,
						"informationUri": toolURI,
						"rules": []map[string]interface{}{
							{
								"id":               "code-review",
								"name":             "CodeReview",
								"shortDescription": map[string]interface{}{"text": "Automated pull request analysis findings"},
							},
						},
					},
				},
				"results": results,
				"properties": map[string]interface{}{
					"runId":     run.ID,
					"riskScore": run.RiskScore,
					"riskLabel": domain.RiskLabel(run.RiskScore),
					"summary":   run.Summary,
				},
			},
		},
	}
}

func convertSeverity(severity string) string {
	switch severity {
	case domain.SeverityCritical, domain.SeverityHigh:
		return "error"
	case domain.SeverityMedium:
		return "warning"
	case domain.SeverityLow, domain.SeverityInfo:
		return "note"
	default:
		return "warning"
	}
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
