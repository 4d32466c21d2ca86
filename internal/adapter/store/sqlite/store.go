// Package sqlite implements the store port on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sentinelci/pr-sentinel/internal/domain"
	"github.com/sentinelci/pr-sentinel/internal/store"
)

// Store implements the store.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- One row per analysis run over a pull request
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		pr_number INTEGER NOT NULL,
		base_sha TEXT NOT NULL,
		head_sha TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		error_message TEXT,
		risk_score INTEGER NOT NULL DEFAULT 0,
		risk_breakdown TEXT,
		summary TEXT,
		metadata TEXT
	);

	-- Findings produced by a run
	CREATE TABLE IF NOT EXISTS findings (
		finding_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		end_line_number INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		rule_id TEXT,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		suggestion TEXT,
		code_snippet TEXT,
		is_ai_generated INTEGER NOT NULL DEFAULT 0,
		auto_fix TEXT,
		embedding TEXT,
		metadata TEXT,
		PRIMARY KEY (run_id, finding_id),
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	-- Monthly usage counters per user
	CREATE TABLE IF NOT EXISTS usage (
		user_id TEXT NOT NULL,
		month TEXT NOT NULL,
		analyses_used INTEGER NOT NULL DEFAULT 0,
		lines_analyzed INTEGER NOT NULL DEFAULT 0,
		findings_generated INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, month)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_repository ON runs(repository, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	CREATE INDEX IF NOT EXISTS idx_findings_file ON findings(file_path);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun stores a new analysis run.
func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	query := `
		INSERT INTO runs (run_id, repository, pr_number, base_sha, head_sha, status, started_at, completed_at, error_message, risk_score, risk_breakdown, summary, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	breakdown, metadata, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Repository,
		run.PRNumber,
		run.BaseSHA,
		run.HeadSHA,
		run.Status,
		run.StartedAt.Unix(),
		nullableTime(run.CompletedAt),
		run.ErrorMessage,
		run.RiskScore,
		breakdown,
		run.Summary,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// UpdateRun rewrites the mutable fields of an existing run.
func (s *Store) UpdateRun(ctx context.Context, run domain.Run) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, error_message = ?, risk_score = ?, risk_breakdown = ?, summary = ?, metadata = ?
		WHERE run_id = ?
	`

	breakdown, metadata, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query,
		run.Status,
		nullableTime(run.CompletedAt),
		run.ErrorMessage,
		run.RiskScore,
		breakdown,
		run.Summary,
		metadata,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	query := `
		SELECT run_id, repository, pr_number, base_sha, head_sha, status, started_at, completed_at, error_message, risk_score, risk_breakdown, summary, metadata
		FROM runs
		WHERE run_id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Run{}, fmt.Errorf("run not found: %s", runID)
		}
		return domain.Run{}, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves the most recent runs for a repository, newest first.
// An empty repository lists runs across all repositories.
func (s *Store) ListRuns(ctx context.Context, repository string, limit int) ([]domain.Run, error) {
	query := `
		SELECT run_id, repository, pr_number, base_sha, head_sha, status, started_at, completed_at, error_message, risk_score, risk_breakdown, summary, metadata
		FROM runs
		WHERE (? = '' OR repository = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, repository, repository, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveFindings stores a run's findings in a single transaction.
func (s *Store) SaveFindings(ctx context.Context, runID string, findings []domain.Finding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (finding_id, run_id, file_path, line_number, end_line_number, severity, category, rule_id, title, description, suggestion, code_snippet, is_ai_generated, auto_fix, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, finding := range findings {
		embedding, metadata, err := marshalFindingJSON(finding)
		if err != nil {
			return err
		}

		aiGenerated := 0
		if finding.IsAIGenerated {
			aiGenerated = 1
		}

		if _, err := stmt.ExecContext(ctx,
			finding.ID,
			runID,
			finding.FilePath,
			finding.LineNumber,
			finding.EndLineNumber,
			finding.Severity,
			finding.Category,
			finding.RuleID,
			finding.Title,
			finding.Description,
			finding.Suggestion,
			finding.CodeSnippet,
			aiGenerated,
			finding.AutoFix,
			embedding,
			metadata,
		); err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetFindingsByRun retrieves all findings for a run, ordered by location.
func (s *Store) GetFindingsByRun(ctx context.Context, runID string) ([]domain.Finding, error) {
	query := findingColumns + `
		FROM findings
		WHERE run_id = ?
		ORDER BY file_path ASC, line_number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get findings by run: %w", err)
	}
	defer rows.Close()

	return collectFindings(rows)
}

// DeleteFindingsByRun removes all findings for a run. Used by rerun.
func (s *Store) DeleteFindingsByRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}
	return nil
}

// ListFindingsByRepository retrieves recent findings across a repository's
// runs, newest runs first.
func (s *Store) ListFindingsByRepository(ctx context.Context, repository string, limit int) ([]domain.Finding, error) {
	query := findingColumns + `
		FROM findings
		JOIN runs ON runs.run_id = findings.run_id
		WHERE runs.repository = ?
		ORDER BY runs.started_at DESC, findings.file_path ASC, findings.line_number ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, repository, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	return collectFindings(rows)
}

// GetUsage retrieves the usage counters for a user and month. A missing row
// returns zero counters, not an error.
func (s *Store) GetUsage(ctx context.Context, userID, month string) (store.Usage, error) {
	query := `
		SELECT analyses_used, lines_analyzed, findings_generated
		FROM usage
		WHERE user_id = ? AND month = ?
	`

	usage := store.Usage{UserID: userID, Month: month}
	err := s.db.QueryRowContext(ctx, query, userID, month).Scan(
		&usage.AnalysesUsed,
		&usage.LinesAnalyzed,
		&usage.FindingsGenerated,
	)
	if err != nil && err != sql.ErrNoRows {
		return store.Usage{}, fmt.Errorf("failed to get usage: %w", err)
	}

	return usage, nil
}

// IncrementUsage records one completed analysis against a user's month.
func (s *Store) IncrementUsage(ctx context.Context, userID, month string, lines, findings int) error {
	query := `
		INSERT INTO usage (user_id, month, analyses_used, lines_analyzed, findings_generated)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET
			analyses_used = analyses_used + 1,
			lines_analyzed = lines_analyzed + excluded.lines_analyzed,
			findings_generated = findings_generated + excluded.findings_generated
	`

	if _, err := s.db.ExecContext(ctx, query, userID, month, lines, findings); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const findingColumns = `
	SELECT findings.finding_id, findings.file_path, findings.line_number, findings.end_line_number, findings.severity, findings.category, findings.rule_id, findings.title, findings.description, findings.suggestion, findings.code_snippet, findings.is_ai_generated, findings.auto_fix, findings.embedding, findings.metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var startedAt int64
	var completedAt sql.NullInt64
	var breakdown, metadata sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Repository,
		&run.PRNumber,
		&run.BaseSHA,
		&run.HeadSHA,
		&run.Status,
		&startedAt,
		&completedAt,
		&run.ErrorMessage,
		&run.RiskScore,
		&breakdown,
		&run.Summary,
		&metadata,
	)
	if err != nil {
		return domain.Run{}, err
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	if completedAt.Valid {
		run.CompletedAt = time.Unix(completedAt.Int64, 0).UTC()
	}
	if breakdown.Valid && breakdown.String != "" {
		if err := json.Unmarshal([]byte(breakdown.String), &run.RiskBreakdown); err != nil {
			return domain.Run{}, fmt.Errorf("failed to decode risk breakdown: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &run.Metadata); err != nil {
			return domain.Run{}, fmt.Errorf("failed to decode run metadata: %w", err)
		}
	}

	return run, nil
}

func collectFindings(rows *sql.Rows) ([]domain.Finding, error) {
	var findings []domain.Finding
	for rows.Next() {
		var f domain.Finding
		var aiGenerated int
		var embedding, metadata sql.NullString

		if err := rows.Scan(
			&f.ID,
			&f.FilePath,
			&f.LineNumber,
			&f.EndLineNumber,
			&f.Severity,
			&f.Category,
			&f.RuleID,
			&f.Title,
			&f.Description,
			&f.Suggestion,
			&f.CodeSnippet,
			&aiGenerated,
			&f.AutoFix,
			&embedding,
			&metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}

		f.IsAIGenerated = aiGenerated == 1
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &f.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding: %w", err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &f.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode finding metadata: %w", err)
			}
		}

		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}

	return findings, nil
}

func marshalRunJSON(run domain.Run) (breakdown, metadata any, err error) {
	b, err := json.Marshal(run.RiskBreakdown)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode risk breakdown: %w", err)
	}
	breakdown = string(b)

	if run.Metadata != nil {
		m, err := json.Marshal(run.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode run metadata: %w", err)
		}
		metadata = string(m)
	}

	return breakdown, metadata, nil
}

func marshalFindingJSON(f domain.Finding) (embedding, metadata any, err error) {
	if f.Embedding != nil {
		e, err := json.Marshal(f.Embedding)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode embedding: %w", err)
		}
		embedding = string(e)
	}

	if f.Metadata != nil {
		m, err := json.Marshal(f.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode finding metadata: %w", err)
		}
		metadata = string(m)
	}

	return embedding, metadata, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
