// Package json serializes analysis results into machine-readable
// report files.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// Report is the on-disk shape of one analysis run.
type Report struct {
	RunID         string               `json:"runId"`
	Repository    string               `json:"repository"`
	PRNumber      int                  `json:"prNumber"`
	BaseSHA       string               `json:"baseSha,omitempty"`
	HeadSHA       string               `json:"headSha,omitempty"`
	Status        string               `json:"status"`
	StartedAt     time.Time            `json:"startedAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
	ErrorMessage  string               `json:"errorMessage,omitempty"`
	RiskScore     int                  `json:"riskScore"`
	RiskLabel     string               `json:"riskLabel"`
	RiskBreakdown domain.RiskBreakdown `json:"riskBreakdown"`
	Summary       string               `json:"summary,omitempty"`
	Metadata      map[string]int       `json:"metadata,omitempty"`
	Findings      []domain.Finding     `json:"findings"`
}

// NewReport flattens a run and its findings for serialization.
func NewReport(run domain.Run, findings []domain.Finding) Report {
	report := Report{
		RunID:         run.ID,
		Repository:    run.Repository,
		PRNumber:      run.PRNumber,
		BaseSHA:       run.BaseSHA,
		HeadSHA:       run.HeadSHA,
		Status:        run.Status,
		StartedAt:     run.StartedAt,
		ErrorMessage:  run.ErrorMessage,
		RiskScore:     run.RiskScore,
		RiskLabel:     domain.RiskLabel(run.RiskScore),
		RiskBreakdown: run.RiskBreakdown,
		Summary:       run.Summary,
		Metadata:      run.Metadata,
		Findings:      findings,
	}
	if report.Findings == nil {
		report.Findings = []domain.Finding{}
	}
	if !run.CompletedAt.IsZero() {
		completed := run.CompletedAt
		report.CompletedAt = &completed
	}
	return report
}

// Writer persists reports as indented JSON files.
type Writer struct {
	now func() string
}

func NewWriter(now func() string) *Writer {
	return &Writer{now: now}
}

// Write stores the report under outputDir and returns its path.
func (w *Writer) Write(ctx context.Context, run domain.Run, findings []domain.Finding, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("%s_pr%d_%s.json", sanitise(run.Repository), run.PRNumber, w.now()))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create json file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(NewReport(run, findings)); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	return path, nil
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
