// Package hypotheses provides storage for hypothesis records and their
// lifecycle transitions.
package hypotheses

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/domain"
)

// Repository handles hypothesis database operations
// Database: research.db (hypotheses table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new hypothesis repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "hypotheses").Logger(),
	}
}

// Create inserts a new hypothesis in Pending state.
// A missing ID is generated; CreatedAt defaults to now.
func (r *Repository) Create(h *domain.Hypothesis) error {
	if !h.TestType.Valid() {
		return fmt.Errorf("unknown test type: %s", h.TestType)
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	if h.LookbackDays <= 0 {
		h.LookbackDays = 365
	}
	h.Status = domain.StatusPending

	query := `
		INSERT INTO hypotheses (id, claim, event_type, market_asset, test_type, lookback_days, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		h.ID, h.Claim, h.EventType, h.MarketAsset, string(h.TestType),
		h.LookbackDays, h.Priority, string(h.Status), h.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert hypothesis: %w", err)
	}

	return nil
}

// GetByID returns a hypothesis by ID, or nil when not found
func (r *Repository) GetByID(id string) (*domain.Hypothesis, error) {
	query := `
		SELECT id, claim, event_type, market_asset, test_type, lookback_days, priority, status, error_message, created_at, tested_at
		FROM hypotheses WHERE id = ?
	`
	h, err := scanHypothesis(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query hypothesis %s: %w", id, err)
	}
	return h, nil
}

// ListPending returns pending hypotheses FIFO by creation time, with
// explicit priority taking precedence. limit <= 0 returns all.
func (r *Repository) ListPending(limit int) ([]*domain.Hypothesis, error) {
	query := `
		SELECT id, claim, event_type, market_asset, test_type, lookback_days, priority, status, error_message, created_at, tested_at
		FROM hypotheses
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC
	`
	args := []interface{}{string(domain.StatusPending)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending hypotheses: %w", err)
	}
	defer rows.Close()

	var result []*domain.Hypothesis
	for rows.Next() {
		h, err := scanHypothesis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hypothesis: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending hypotheses: %w", err)
	}

	return result, nil
}

// MarkRunning transitions Pending -> Running. The conditional UPDATE makes
// the transition exactly-once: of two concurrent attempts only one sees an
// affected row, which is how per-hypothesis mutual exclusion is enforced at
// the storage layer.
func (r *Repository) MarkRunning(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE hypotheses SET status = ?, error_message = NULL WHERE id = ? AND status = ?",
		string(domain.StatusRunning), id, string(domain.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark hypothesis %s running: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// MarkCompleted transitions Running -> Completed and stamps TestedAt
func (r *Repository) MarkCompleted(id string, testedAt time.Time) error {
	res, err := r.db.Exec(
		"UPDATE hypotheses SET status = ?, tested_at = ?, error_message = NULL WHERE id = ? AND status = ?",
		string(domain.StatusCompleted), testedAt.Unix(), id, string(domain.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark hypothesis %s completed: %w", id, err)
	}
	return expectOneRow(res, id, "completed")
}

// MarkFailed transitions Running -> Failed, recording the reason verbatim
func (r *Repository) MarkFailed(id string, reason string) error {
	res, err := r.db.Exec(
		"UPDATE hypotheses SET status = ?, error_message = ?, tested_at = ? WHERE id = ? AND status = ?",
		string(domain.StatusFailed), reason, time.Now().UTC().Unix(), id, string(domain.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark hypothesis %s failed: %w", id, err)
	}
	return expectOneRow(res, id, "failed")
}

// Requeue explicitly moves a terminal hypothesis back to Pending. This is
// the only path out of Completed/Failed; a re-run then produces a fresh
// verdict rather than mutating the old one.
func (r *Repository) Requeue(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE hypotheses SET status = ?, error_message = NULL WHERE id = ? AND status IN (?, ?)",
		string(domain.StatusPending), id, string(domain.StatusCompleted), string(domain.StatusFailed),
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue hypothesis %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// CountByStatus returns hypothesis counts keyed by status
func (r *Repository) CountByStatus() (map[domain.HypothesisStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM hypotheses GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count hypotheses: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.HypothesisStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[domain.HypothesisStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// scanner abstracts sql.Row / sql.Rows for scanHypothesis
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHypothesis(row scanner) (*domain.Hypothesis, error) {
	var h domain.Hypothesis
	var testType, status string
	var errorMessage sql.NullString
	var createdAtUnix int64
	var testedAtUnix sql.NullInt64

	if err := row.Scan(
		&h.ID, &h.Claim, &h.EventType, &h.MarketAsset, &testType,
		&h.LookbackDays, &h.Priority, &status, &errorMessage,
		&createdAtUnix, &testedAtUnix,
	); err != nil {
		return nil, err
	}

	h.TestType = domain.TestType(testType)
	h.Status = domain.HypothesisStatus(status)
	if errorMessage.Valid {
		h.ErrorMessage = errorMessage.String
	}
	h.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	if testedAtUnix.Valid {
		t := time.Unix(testedAtUnix.Int64, 0).UTC()
		h.TestedAt = &t
	}

	return &h, nil
}

func expectOneRow(res sql.Result, id, transition string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("hypothesis %s not in a state that allows transition to %s", id, transition)
	}
	return nil
}
