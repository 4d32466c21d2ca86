package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	FileStatusAdded    = "added"
	FileStatusModified = "modified"
	FileStatusRemoved  = "removed"
)

// Severity levels, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Finding categories.
const (
	CategoryBug           = "bug"
	CategorySecurity      = "security"
	CategoryPerformance   = "performance"
	CategoryStyle         = "style"
	CategoryBestPractice  = "best_practice"
	CategoryDocumentation = "documentation"
)

// severityRanks maps severities to their priority. Lower rank is more severe.
var severityRanks = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// SeverityRank returns the priority rank for a severity string.
// Unknown severities rank below info.
func SeverityRank(severity string) int {
	if rank, ok := severityRanks[severity]; ok {
		return rank
	}
	return len(severityRanks)
}

// FileChange describes one changed file in a pull request.
// Patch and FullContent may be empty when the diff source could not
// provide them; the pipeline must tolerate both.
type FileChange struct {
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	Additions   int    `json:"additions"`
	Deletions   int    `json:"deletions"`
	Patch       string `json:"patch,omitempty"`
	FullContent string `json:"fullContent,omitempty"`
	Language    string `json:"language"`
}

// Finding represents a single issue detected at a file/line.
// LineNumber 0 is a reserved sentinel meaning "not line-scoped"
// (used by cross-file findings), never the first line of a file.
type Finding struct {
	ID            string            `json:"id"`
	FilePath      string            `json:"filePath"`
	LineNumber    int               `json:"lineNumber"`
	EndLineNumber int               `json:"endLineNumber,omitempty"`
	Severity      string            `json:"severity"`
	Category      string            `json:"category"`
	RuleID        string            `json:"ruleId,omitempty"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Suggestion    string            `json:"suggestion,omitempty"`
	CodeSnippet   string            `json:"codeSnippet,omitempty"`
	IsAIGenerated bool              `json:"isAiGenerated"`
	AutoFix       string            `json:"autoFix,omitempty"`
	Embedding     []float32         `json:"embedding,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// FindingInput captures the information required to create a Finding.
type FindingInput struct {
	FilePath      string
	LineNumber    int
	EndLineNumber int
	Severity      string
	Category      string
	RuleID        string
	Title         string
	Description   string
	Suggestion    string
	CodeSnippet   string
	IsAIGenerated bool
	Metadata      map[string]string
}

// NewFinding constructs a Finding with a deterministic ID.
func NewFinding(input FindingInput) Finding {
	id := hashFinding(input)
	return Finding{
		ID:            id,
		FilePath:      input.FilePath,
		LineNumber:    input.LineNumber,
		EndLineNumber: input.EndLineNumber,
		Severity:      input.Severity,
		Category:      input.Category,
		RuleID:        input.RuleID,
		Title:         input.Title,
		Description:   input.Description,
		Suggestion:    input.Suggestion,
		CodeSnippet:   input.CodeSnippet,
		IsAIGenerated: input.IsAIGenerated,
		Metadata:      input.Metadata,
	}
}

// RecomputeID refreshes the content-derived ID after identity fields
// change, keeping ID == hash(fields).
func (f Finding) RecomputeID() Finding {
	f.ID = hashFinding(FindingInput{
		FilePath:      f.FilePath,
		LineNumber:    f.LineNumber,
		EndLineNumber: f.EndLineNumber,
		Severity:      f.Severity,
		Category:      f.Category,
		RuleID:        f.RuleID,
		Description:   f.Description,
		IsAIGenerated: f.IsAIGenerated,
	})
	return f
}

func hashFinding(input FindingInput) string {
	payload := fmt.Sprintf("%s|%d|%d|%s|%s|%s|%s|%t",
		input.FilePath,
		input.LineNumber,
		input.EndLineNumber,
		input.Severity,
		input.Category,
		input.RuleID,
		input.Description,
		input.IsAIGenerated,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// FunctionInfo describes one function found by structural analysis.
type FunctionInfo struct {
	Name   string   `json:"name"`
	Line   int      `json:"line"`
	Params []string `json:"params,omitempty"`
}

// ClassInfo describes one class found by structural analysis.
type ClassInfo struct {
	Name    string   `json:"name"`
	Line    int      `json:"line"`
	Methods []string `json:"methods,omitempty"`
}

// AstSummary is the structural digest of one source file.
// A zero-valued AstSummary means analysis was unavailable for the file.
type AstSummary struct {
	Functions  []FunctionInfo `json:"functions"`
	Classes    []ClassInfo    `json:"classes"`
	Imports    []string       `json:"imports"`
	Exports    []string       `json:"exports"`
	Complexity int            `json:"complexity"`
}

// Empty reports whether the summary carries no structural information.
func (s AstSummary) Empty() bool {
	return len(s.Functions) == 0 && len(s.Classes) == 0 &&
		len(s.Imports) == 0 && len(s.Exports) == 0 && s.Complexity == 0
}

// AstImpact describes structural differences between two revisions of a file.
type AstImpact struct {
	AddedFunctions    []string `json:"addedFunctions"`
	RemovedFunctions  []string `json:"removedFunctions"`
	ModifiedFunctions []string `json:"modifiedFunctions"`
	AddedClasses      []string `json:"addedClasses"`
	RemovedClasses    []string `json:"removedClasses"`
	OldImports        []string `json:"oldImports"`
	NewImports        []string `json:"newImports"`
	ComplexityDelta   int      `json:"complexityDelta"`
}

// RiskBreakdown itemizes the heuristic components of a risk score.
type RiskBreakdown struct {
	SizeImpact     int `json:"sizeImpact"`
	SeverityImpact int `json:"severityImpact"`
	BlastRadius    int `json:"blastRadius"`
	Complexity     int `json:"complexity"`
	AIAdjustment   int `json:"aiAdjustment"`
}

// RiskAssessment is the 0-100 merge-risk verdict for one analysis run.
type RiskAssessment struct {
	Score       int           `json:"score"`
	Label       string        `json:"label"`
	Breakdown   RiskBreakdown `json:"breakdown"`
	Explanation string        `json:"explanation,omitempty"`
}

// RiskLabel maps a score to its label band.
func RiskLabel(score int) string {
	switch {
	case score >= 80:
		return SeverityCritical
	case score >= 60:
		return SeverityHigh
	case score >= 35:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Run statuses. Terminal states are COMPLETED and FAILED; only an
// explicit rerun request moves a terminal run back to PENDING.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run captures one analysis run over a pull request.
type Run struct {
	ID            string
	Repository    string
	PRNumber      int
	BaseSHA       string
	HeadSHA       string
	Status        string
	StartedAt     time.Time
	CompletedAt   time.Time
	ErrorMessage  string
	RiskScore     int
	RiskBreakdown RiskBreakdown
	Summary       string
	Metadata      map[string]int
}
