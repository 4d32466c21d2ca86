package dedup

import (
	"strings"
	"testing"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

func finding(path string, line int, severity, category, description string) domain.Finding {
	return domain.Finding{
		FilePath:    path,
		LineNumber:  line,
		Severity:    severity,
		Category:    category,
		Description: description,
	}
}

func TestDeduplicate_KeepsHighestSeverity(t *testing.T) {
	d := New()
	out := d.Deduplicate([]domain.Finding{
		finding("app.py", 10, domain.SeverityLow, domain.CategoryStyle, "console noise"),
		finding("app.py", 10, domain.SeverityCritical, domain.CategorySecurity, "eval on user input"),
	})

	if len(out) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(out))
	}
	if out[0].Severity != domain.SeverityCritical {
		t.Errorf("winner severity = %q, want critical", out[0].Severity)
	}
	if !strings.Contains(out[0].Description, "Additional concerns: style") {
		t.Errorf("description missing merged categories: %q", out[0].Description)
	}
}

func TestDeduplicate_DistinctLocationsUntouched(t *testing.T) {
	d := New()
	in := []domain.Finding{
		finding("app.py", 10, domain.SeverityHigh, domain.CategoryBug, "a"),
		finding("app.py", 11, domain.SeverityHigh, domain.CategoryBug, "b"),
		finding("lib.py", 10, domain.SeverityHigh, domain.CategoryBug, "c"),
	}
	out := d.Deduplicate(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(out))
	}
	for i := range in {
		if out[i].Description != in[i].Description {
			t.Errorf("order changed at %d: got %q", i, out[i].Description)
		}
	}
}

func TestDeduplicate_TieKeepsFirstReported(t *testing.T) {
	d := New()
	out := d.Deduplicate([]domain.Finding{
		finding("app.py", 5, domain.SeverityHigh, domain.CategorySecurity, "first"),
		finding("app.py", 5, domain.SeverityHigh, domain.CategoryBug, "second"),
	})

	if len(out) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(out))
	}
	if !strings.HasPrefix(out[0].Description, "first") {
		t.Errorf("tie should keep earliest finding, got %q", out[0].Description)
	}
	if !strings.Contains(out[0].Description, "Additional concerns: bug") {
		t.Errorf("missing merged category note: %q", out[0].Description)
	}
}

func TestDeduplicate_SameCategoryNoNote(t *testing.T) {
	d := New()
	out := d.Deduplicate([]domain.Finding{
		finding("app.py", 5, domain.SeverityHigh, domain.CategoryBug, "winner"),
		finding("app.py", 5, domain.SeverityLow, domain.CategoryBug, "loser"),
	})

	if out[0].Description != "winner" {
		t.Errorf("same-category merge should not annotate, got %q", out[0].Description)
	}
}

func TestDeduplicate_Idempotent(t *testing.T) {
	d := New()
	in := []domain.Finding{
		finding("app.py", 10, domain.SeverityLow, domain.CategoryStyle, "x"),
		finding("app.py", 10, domain.SeverityCritical, domain.CategorySecurity, "y"),
		finding("lib.py", 2, domain.SeverityMedium, domain.CategoryPerformance, "z"),
	}
	once := d.Deduplicate(in)
	twice := d.Deduplicate(once)

	if len(once) != len(twice) {
		t.Fatalf("second pass changed count: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Description != twice[i].Description {
			t.Errorf("second pass changed finding %d: %q vs %q", i, once[i].Description, twice[i].Description)
		}
	}
}

func TestDeduplicate_MergedFindingKeepsHashIdentity(t *testing.T) {
	d := New()
	winner := domain.NewFinding(domain.FindingInput{
		FilePath:    "app.py",
		LineNumber:  10,
		Severity:    domain.SeverityHigh,
		Category:    domain.CategorySecurity,
		RuleID:      "no_eval",
		Title:       "eval on user input",
		Description: "eval on user input",
	})
	loser := domain.NewFinding(domain.FindingInput{
		FilePath:    "app.py",
		LineNumber:  10,
		Severity:    domain.SeverityMedium,
		Category:    domain.CategoryStyle,
		Title:       "long line",
		Description: "long line",
	})

	out := d.Deduplicate([]domain.Finding{winner, loser})
	if len(out) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(out))
	}
	merged := out[0]
	if merged.ID == winner.ID {
		t.Error("merged ID should change with the rewritten description")
	}
	if want := merged.RecomputeID().ID; merged.ID != want {
		t.Errorf("merged ID = %q, want content hash %q", merged.ID, want)
	}
}

func TestDeduplicate_Empty(t *testing.T) {
	d := New()
	if out := d.Deduplicate(nil); len(out) != 0 {
		t.Errorf("expected empty result, got %d", len(out))
	}
}
