package semantic

import (
	"fmt"
	"sort"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// minPatternFindings is the smallest history worth clustering. Below this
// there is not enough signal to call anything recurring.
const minPatternFindings = 5

// hotspotLimit caps the hotspot file list.
const hotspotLimit = 5

// maxExampleLen caps the example description carried on a recurring issue.
const maxExampleLen = 200

// RecurringIssue describes a cluster of similar findings that keeps showing
// up across reviews.
type RecurringIssue struct {
	IssueType     string   `json:"issue_type"`
	Occurrences   int      `json:"occurrences"`
	AffectedFiles []string `json:"affected_files"`
	Example       string   `json:"example"`
}

// Hotspot is a file with repeated similar issues.
type Hotspot struct {
	File       string `json:"file"`
	IssueCount int    `json:"issue_count"`
}

// PatternReport summarizes recurring issue patterns across a finding history.
type PatternReport struct {
	RecurringIssues       []RecurringIssue `json:"recurring_issues"`
	HotspotFiles          []Hotspot        `json:"hotspot_files"`
	LearningOpportunities []string         `json:"learning_opportunities"`
}

// AnalyzePatterns clusters embedded findings by cosine similarity and reports
// recurring issues, hotspot files, and suggested follow-ups. Findings without
// embeddings are ignored; fewer than minPatternFindings of them yields an
// empty report. minSimilarity <= 0 means DefaultMinSimilarity.
func AnalyzePatterns(findings []domain.Finding, minSimilarity float64) PatternReport {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}

	embedded := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Embedding != nil {
			embedded = append(embedded, f)
		}
	}
	if len(embedded) < minPatternFindings {
		return PatternReport{}
	}

	// Greedy single-pass clustering: each unprocessed finding seeds a
	// cluster and absorbs every later finding within the threshold.
	// Clusters with the same seed title accumulate under one issue type.
	clusters := map[string][]domain.Finding{}
	var titleOrder []string
	processed := make([]bool, len(embedded))

	for i, seed := range embedded {
		if processed[i] {
			continue
		}

		cluster := []domain.Finding{seed}
		for j := i + 1; j < len(embedded); j++ {
			if processed[j] {
				continue
			}
			if CosineSimilarity(seed.Embedding, embedded[j].Embedding) >= minSimilarity {
				cluster = append(cluster, embedded[j])
				processed[j] = true
			}
		}

		if len(cluster) > 1 {
			if _, seen := clusters[seed.Title]; !seen {
				titleOrder = append(titleOrder, seed.Title)
			}
			clusters[seed.Title] = append(clusters[seed.Title], cluster...)
		}
	}

	var report PatternReport
	fileCounts := map[string]int{}

	for _, title := range titleOrder {
		members := clusters[title]
		if len(members) < 2 {
			continue
		}

		seen := map[string]bool{}
		var files []string
		for _, f := range members {
			if !seen[f.FilePath] {
				seen[f.FilePath] = true
				files = append(files, f.FilePath)
			}
			fileCounts[f.FilePath]++
		}
		sort.Strings(files)

		example := members[0].Description
		if len(example) > maxExampleLen {
			example = example[:maxExampleLen]
		}

		report.RecurringIssues = append(report.RecurringIssues, RecurringIssue{
			IssueType:     title,
			Occurrences:   len(members),
			AffectedFiles: files,
			Example:       example,
		})
	}

	for file, count := range fileCounts {
		report.HotspotFiles = append(report.HotspotFiles, Hotspot{File: file, IssueCount: count})
	}
	sort.Slice(report.HotspotFiles, func(i, j int) bool {
		if report.HotspotFiles[i].IssueCount != report.HotspotFiles[j].IssueCount {
			return report.HotspotFiles[i].IssueCount > report.HotspotFiles[j].IssueCount
		}
		return report.HotspotFiles[i].File < report.HotspotFiles[j].File
	})
	if len(report.HotspotFiles) > hotspotLimit {
		report.HotspotFiles = report.HotspotFiles[:hotspotLimit]
	}

	if len(report.RecurringIssues) > 0 {
		report.LearningOpportunities = append(report.LearningOpportunities, fmt.Sprintf(
			"Consider adding custom linting rules for the %d recurring issue patterns detected.",
			len(report.RecurringIssues)))
	}
	if len(report.HotspotFiles) > 0 {
		top := report.HotspotFiles[0]
		report.LearningOpportunities = append(report.LearningOpportunities, fmt.Sprintf(
			"File '%s' has %d recurring issues - consider refactoring.",
			top.File, top.IssueCount))
	}

	return report
}
