// Package relationships provides storage for durable, user-facing records
// of hypotheses that cleared significance after family-wise correction.
package relationships

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/domain"
)

// Repository handles relationship database operations
// Database: research.db (relationships table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new relationship repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "relationships").Logger(),
	}
}

// CreateTx inserts a relationship inside an open transaction, so its
// creation commits atomically with the verdict that earned it.
func (r *Repository) CreateTx(tx *sql.Tx, rel *domain.Relationship) error {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	rel.Status = domain.RelationshipActive

	query := `
		INSERT INTO relationships (id, hypothesis_id, verdict_id, event_type, market_asset, hit_rate, edge, p_value, adjusted_p_value, sample_size, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.Exec(query,
		rel.ID, rel.HypothesisID, rel.VerdictID, rel.EventType, rel.MarketAsset,
		rel.HitRate, rel.Edge, rel.PValue, rel.AdjustedPValue, rel.SampleSize,
		rel.Description, string(rel.Status), rel.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}

	return nil
}

// GetByID returns a relationship by ID, or nil when not found
func (r *Repository) GetByID(id string) (*domain.Relationship, error) {
	row := r.db.QueryRow(selectRelationship+" WHERE id = ?", id)
	rel, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query relationship %s: %w", id, err)
	}
	return rel, nil
}

// ListActive returns all active relationships, newest first
func (r *Repository) ListActive() ([]*domain.Relationship, error) {
	return r.list(selectRelationship+" WHERE status = ? ORDER BY created_at DESC", string(domain.RelationshipActive))
}

// ListAll returns every relationship including invalidated ones
func (r *Repository) ListAll() ([]*domain.Relationship, error) {
	return r.list(selectRelationship + " ORDER BY created_at DESC")
}

// FindLapsed returns active relationships whose stored raw p-value no
// longer clears the family-wise bar under the current population size.
// Lapsed relationships are surfaced for review, never auto-invalidated.
func (r *Repository) FindLapsed(populationSize int, alpha float64) ([]*domain.Relationship, error) {
	if populationSize < 1 {
		populationSize = 1
	}
	return r.list(
		selectRelationship+" WHERE status = ? AND p_value * ? >= ? ORDER BY created_at DESC",
		string(domain.RelationshipActive), float64(populationSize), alpha,
	)
}

// Invalidate flips an active relationship to invalidated with an audit
// timestamp. This is the explicit review action; rows are never deleted.
func (r *Repository) Invalidate(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE relationships SET status = ?, invalidated_at = ? WHERE id = ? AND status = ?",
		string(domain.RelationshipInvalidated), time.Now().UTC().Unix(), id, string(domain.RelationshipActive),
	)
	if err != nil {
		return false, fmt.Errorf("failed to invalidate relationship %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 1 {
		r.log.Info().Str("relationship_id", id).Msg("Relationship invalidated")
	}
	return affected == 1, nil
}

func (r *Repository) list(query string, args ...interface{}) ([]*domain.Relationship, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var result []*domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		result = append(result, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}

	return result, nil
}

const selectRelationship = `
	SELECT id, hypothesis_id, verdict_id, event_type, market_asset, hit_rate, edge, p_value, adjusted_p_value, sample_size, description, status, created_at, invalidated_at
	FROM relationships
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRelationship(row scanner) (*domain.Relationship, error) {
	var rel domain.Relationship
	var status string
	var createdAtUnix int64
	var invalidatedAtUnix sql.NullInt64

	if err := row.Scan(
		&rel.ID, &rel.HypothesisID, &rel.VerdictID, &rel.EventType, &rel.MarketAsset,
		&rel.HitRate, &rel.Edge, &rel.PValue, &rel.AdjustedPValue, &rel.SampleSize,
		&rel.Description, &status, &createdAtUnix, &invalidatedAtUnix,
	); err != nil {
		return nil, err
	}

	rel.Status = domain.RelationshipStatus(status)
	rel.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	if invalidatedAtUnix.Valid {
		t := time.Unix(invalidatedAtUnix.Int64, 0).UTC()
		rel.InvalidatedAt = &t
	}

	return &rel, nil
}
