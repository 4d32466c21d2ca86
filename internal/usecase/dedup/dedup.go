// Package dedup collapses findings that target the same location into a
// single representative finding.
package dedup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// Deduplicator merges findings reported at the same (file, line) by
// multiple analyzers. The highest-severity finding wins; ties keep the
// earliest reported. Categories of the merged losers are preserved as a
// trailing note on the winner's description.
type Deduplicator struct{}

func New() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate returns one finding per (file path, line number) location,
// ordered by file path then line number so repeated runs produce
// identical output.
func (d *Deduplicator) Deduplicate(findings []domain.Finding) []domain.Finding {
	type locationKey struct {
		filePath string
		line     int
	}

	groups := make(map[locationKey][]domain.Finding)
	var order []locationKey
	for _, f := range findings {
		key := locationKey{filePath: f.FilePath, line: f.LineNumber}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].filePath != order[j].filePath {
			return order[i].filePath < order[j].filePath
		}
		return order[i].line < order[j].line
	})

	result := make([]domain.Finding, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			result = append(result, group[0])
			continue
		}
		result = append(result, merge(group))
	}
	return result
}

func merge(group []domain.Finding) domain.Finding {
	// Stable: among equal severities the earliest reported finding wins.
	sort.SliceStable(group, func(i, j int) bool {
		return domain.SeverityRank(group[i].Severity) < domain.SeverityRank(group[j].Severity)
	})

	winner := group[0]

	seen := map[string]bool{winner.Category: true}
	var others []string
	for _, f := range group[1:] {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		others = append(others, f.Category)
	}
	if len(others) > 0 {
		sort.Strings(others)
		winner.Description = fmt.Sprintf("%s\n\nAdditional concerns: %s",
			winner.Description, strings.Join(others, ", "))
		winner = winner.RecomputeID()
	}
	return winner
}
