package pipeline

import "github.com/sentinelci/pr-sentinel/internal/domain"

// StageResult carries the outcome of an optional pipeline stage. A
// skipped stage records why it did not run; skipping is an expected
// outcome, not an error.
type StageResult[T any] struct {
	Value   T
	Skipped bool
	Reason  string
}

func stageValue[T any](v T) StageResult[T] {
	return StageResult[T]{Value: v}
}

func stageSkipped[T any](reason string) StageResult[T] {
	return StageResult[T]{Skipped: true, Reason: reason}
}

// Stages reports what ran during one analysis. Mandatory stages (fetch,
// rules, dedup, persist) are absent: if one fails the run fails.
type Stages struct {
	ModelAnalysis StageResult[int] // AI finding count
	AutoFix       StageResult[int] // fixes generated
	Embeddings    StageResult[int] // findings embedded
	Risk          StageResult[domain.RiskAssessment]
	Summary       StageResult[string]
	Notification  StageResult[bool]
}
