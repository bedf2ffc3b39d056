package hypotheses

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/edgefinder/internal/domain"
	testingpkg "github.com/aristath/edgefinder/internal/testing"
)

func newTestRepo(t *testing.T) (*Repository, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "research")
	return NewRepository(db.Conn(), zerolog.Nop()), cleanup
}

func newHypothesis() *domain.Hypothesis {
	return &domain.Hypothesis{
		Claim:       "CPI releases predict gold next-day returns",
		EventType:   "cpi_release",
		MarketAsset: "XAUUSD",
		TestType:    domain.TestCorrelation,
	}
}

func TestCreateAndGet(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	require.NoError(t, repo.Create(h))
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, domain.StatusPending, h.Status)
	assert.Equal(t, 365, h.LookbackDays)

	got, err := repo.GetByID(h.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, h.Claim, got.Claim)
	assert.Equal(t, domain.TestCorrelation, got.TestType)
	assert.Nil(t, got.TestedAt)
}

func TestCreate_RejectsUnknownTestType(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	h.TestType = "chi_squared"
	assert.Error(t, repo.Create(h))
}

func TestGetByID_NotFound(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	got, err := repo.GetByID("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListPending_PriorityThenFIFO(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	base := time.Now().UTC().Add(-time.Hour)

	first := newHypothesis()
	first.CreatedAt = base
	require.NoError(t, repo.Create(first))

	second := newHypothesis()
	second.CreatedAt = base.Add(time.Minute)
	require.NoError(t, repo.Create(second))

	urgent := newHypothesis()
	urgent.Priority = 5
	urgent.CreatedAt = base.Add(2 * time.Minute)
	require.NoError(t, repo.Create(urgent))

	pending, err := repo.ListPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	assert.Equal(t, urgent.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)
	assert.Equal(t, second.ID, pending[2].ID)
}

func TestMarkRunning_ExactlyOnce(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	require.NoError(t, repo.Create(h))

	first, err := repo.MarkRunning(h.ID)
	require.NoError(t, err)
	assert.True(t, first)

	// A second claim on the same hypothesis loses
	second, err := repo.MarkRunning(h.ID)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestMarkCompleted(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	require.NoError(t, repo.Create(h))
	_, err := repo.MarkRunning(h.ID)
	require.NoError(t, err)

	testedAt := time.Now().UTC()
	require.NoError(t, repo.MarkCompleted(h.ID, testedAt))

	got, err := repo.GetByID(h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.TestedAt)
	assert.Equal(t, testedAt.Unix(), got.TestedAt.Unix())
}

func TestMarkCompleted_RequiresRunning(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	require.NoError(t, repo.Create(h))

	// Pending -> Completed is not a legal transition
	assert.Error(t, repo.MarkCompleted(h.ID, time.Now()))
}

func TestMarkFailed_RecordsReason(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	require.NoError(t, repo.Create(h))
	_, err := repo.MarkRunning(h.ID)
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(h.ID, "price store unavailable"))

	got, err := repo.GetByID(h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "price store unavailable", got.ErrorMessage)
}

func TestRequeue(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	h := newHypothesis()
	require.NoError(t, repo.Create(h))

	// Pending hypotheses cannot be requeued
	requeued, err := repo.Requeue(h.ID)
	require.NoError(t, err)
	assert.False(t, requeued)

	_, err = repo.MarkRunning(h.ID)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(h.ID, "transient"))

	requeued, err = repo.Requeue(h.ID)
	require.NoError(t, err)
	assert.True(t, requeued)

	got, err := repo.GetByID(h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestCountByStatus(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(newHypothesis()))
	}
	running := newHypothesis()
	require.NoError(t, repo.Create(running))
	_, err := repo.MarkRunning(running.ID)
	require.NoError(t, err)

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.StatusPending])
	assert.Equal(t, 1, counts[domain.StatusRunning])
}
