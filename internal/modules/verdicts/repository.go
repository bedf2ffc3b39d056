// Package verdicts provides append-only storage for evaluation verdicts and
// the transactional hypothesis population counter.
package verdicts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/edgefinder/internal/domain"
)

// Repository handles verdict database operations
// Database: research.db (verdicts + population tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new verdict repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "verdicts").Logger(),
	}
}

// InsertTx writes a verdict inside an open transaction. Verdict rows are
// immutable: re-evaluation inserts a new row, it never updates an old one.
// Diagnostics are serialized as a msgpack blob.
func (r *Repository) InsertTx(tx *sql.Tx, v *domain.Verdict) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	var diagBlob []byte
	if len(v.Diagnostics) > 0 {
		var err error
		diagBlob, err = msgpack.Marshal(v.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to serialize verdict diagnostics: %w", err)
		}
	}

	query := `
		INSERT INTO verdicts (id, hypothesis_id, p_value, adjusted_p_value, effect_size, sample_size, population_size, significant, diagnostics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.Exec(query,
		v.ID, v.HypothesisID, v.PValue, v.AdjustedPValue, v.EffectSize,
		v.SampleSize, v.PopulationSize, boolToInt(v.Significant), diagBlob, v.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}

	return nil
}

// GetByID returns a verdict by ID, or nil when not found
func (r *Repository) GetByID(id string) (*domain.Verdict, error) {
	row := r.db.QueryRow(selectVerdict+" WHERE id = ?", id)
	v, err := scanVerdict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query verdict %s: %w", id, err)
	}
	return v, nil
}

// ListByHypothesis returns all verdicts for a hypothesis, newest first
func (r *Repository) ListByHypothesis(hypothesisID string) ([]*domain.Verdict, error) {
	rows, err := r.db.Query(selectVerdict+" WHERE hypothesis_id = ? ORDER BY created_at DESC", hypothesisID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts for hypothesis %s: %w", hypothesisID, err)
	}
	defer rows.Close()

	var result []*domain.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verdicts: %w", err)
	}

	return result, nil
}

// Population returns the current hypothesis population size (the count of
// completed evaluations the family-wise correction divides alpha across).
func (r *Repository) Population() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT n FROM population WHERE id = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read population counter: %w", err)
	}
	return n, nil
}

// PopulationTx reads the population counter inside an open transaction.
// This is the point-in-time snapshot the correction is computed against.
func (r *Repository) PopulationTx(tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRow("SELECT n FROM population WHERE id = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read population counter: %w", err)
	}
	return n, nil
}

// BumpPopulationTx increments the population counter, guarded by the
// snapshot the caller corrected against. Zero rows affected means another
// evaluation committed in between and the correction would be inconsistent;
// the caller retries with a fresh snapshot.
func (r *Repository) BumpPopulationTx(tx *sql.Tx, snapshot int) error {
	res, err := tx.Exec("UPDATE population SET n = n + 1 WHERE id = 1 AND n = ?", snapshot)
	if err != nil {
		return fmt.Errorf("failed to bump population counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected != 1 {
		return domain.ErrPopulationSnapshotStale
	}

	return nil
}

const selectVerdict = `
	SELECT id, hypothesis_id, p_value, adjusted_p_value, effect_size, sample_size, population_size, significant, diagnostics, created_at
	FROM verdicts
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVerdict(row scanner) (*domain.Verdict, error) {
	var v domain.Verdict
	var significant int
	var diagBlob []byte
	var createdAtUnix int64

	if err := row.Scan(
		&v.ID, &v.HypothesisID, &v.PValue, &v.AdjustedPValue, &v.EffectSize,
		&v.SampleSize, &v.PopulationSize, &significant, &diagBlob, &createdAtUnix,
	); err != nil {
		return nil, err
	}

	v.Significant = significant == 1
	v.CreatedAt = time.Unix(createdAtUnix, 0).UTC()

	if len(diagBlob) > 0 {
		if err := msgpack.Unmarshal(diagBlob, &v.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to deserialize verdict diagnostics: %w", err)
		}
	}

	return &v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
