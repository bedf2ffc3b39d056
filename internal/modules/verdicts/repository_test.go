package verdicts

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/edgefinder/internal/database"
	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	testingpkg "github.com/aristath/edgefinder/internal/testing"
)

func newTestRepo(t *testing.T) (*Repository, *database.DB, string, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "research")

	hypoRepo := hypotheses.NewRepository(db.Conn(), zerolog.Nop())
	h := &domain.Hypothesis{
		Claim:       "FOMC minutes predict SPX next-day returns",
		EventType:   "fomc_minutes",
		MarketAsset: "SPX",
		TestType:    domain.TestCorrelation,
	}
	require.NoError(t, hypoRepo.Create(h))

	return NewRepository(db.Conn(), zerolog.Nop()), db, h.ID, cleanup
}

func newVerdict(hypothesisID string) *domain.Verdict {
	return &domain.Verdict{
		HypothesisID:   hypothesisID,
		PValue:         0.0123456789,
		AdjustedPValue: 0.0617283945,
		EffectSize:     0.42,
		SampleSize:     180,
		PopulationSize: 5,
		Significant:    true,
		Diagnostics: map[string]interface{}{
			"method":      "pearson",
			"correlation": 0.42,
		},
	}
}

func insert(t *testing.T, db *database.DB, repo *Repository, v *domain.Verdict) {
	t.Helper()
	require.NoError(t, database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		return repo.InsertTx(tx, v)
	}))
}

func TestInsertAndGet_RoundTrip(t *testing.T) {
	repo, db, hypoID, cleanup := newTestRepo(t)
	defer cleanup()

	v := newVerdict(hypoID)
	insert(t, db, repo, v)
	assert.NotEmpty(t, v.ID)

	got, err := repo.GetByID(v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, hypoID, got.HypothesisID)
	assert.Equal(t, v.PValue, got.PValue)
	assert.Equal(t, v.AdjustedPValue, got.AdjustedPValue)
	assert.Equal(t, v.EffectSize, got.EffectSize)
	assert.Equal(t, 180, got.SampleSize)
	assert.Equal(t, 5, got.PopulationSize)
	assert.True(t, got.Significant)
	assert.Equal(t, "pearson", got.Diagnostics["method"])
	assert.Equal(t, 0.42, got.Diagnostics["correlation"])
	assert.WithinDuration(t, time.Now().UTC(), got.CreatedAt, 5*time.Second)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, _, _, cleanup := newTestRepo(t)
	defer cleanup()

	got, err := repo.GetByID("no-such-verdict")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsert_EmptyDiagnostics(t *testing.T) {
	repo, db, hypoID, cleanup := newTestRepo(t)
	defer cleanup()

	v := newVerdict(hypoID)
	v.Diagnostics = nil
	insert(t, db, repo, v)

	got, err := repo.GetByID(v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Diagnostics)
}

func TestListByHypothesis_NewestFirst(t *testing.T) {
	repo, db, hypoID, cleanup := newTestRepo(t)
	defer cleanup()

	old := newVerdict(hypoID)
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	insert(t, db, repo, old)

	recent := newVerdict(hypoID)
	recent.PValue = 0.2
	insert(t, db, repo, recent)

	list, err := repo.ListByHypothesis(hypoID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID)
	assert.Equal(t, old.ID, list[1].ID)

	other, err := repo.ListByHypothesis("no-such-hypothesis")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPopulation_StartsAtZero(t *testing.T) {
	repo, _, _, cleanup := newTestRepo(t)
	defer cleanup()

	n, err := repo.Population()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBumpPopulationTx(t *testing.T) {
	repo, db, _, cleanup := newTestRepo(t)
	defer cleanup()

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		snapshot, err := repo.PopulationTx(tx)
		if err != nil {
			return err
		}
		return repo.BumpPopulationTx(tx, snapshot)
	})
	require.NoError(t, err)

	n, err := repo.Population()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBumpPopulationTx_StaleSnapshot(t *testing.T) {
	repo, db, _, cleanup := newTestRepo(t)
	defer cleanup()

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		return repo.BumpPopulationTx(tx, 7)
	})
	require.ErrorIs(t, err, domain.ErrPopulationSnapshotStale)
	assert.True(t, domain.IsRetryable(err))

	// The failed bump must not have moved the counter.
	n, err := repo.Population()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
