package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
	"github.com/aristath/edgefinder/internal/scheduler"
	testingpkg "github.com/aristath/edgefinder/internal/testing"
)

type serverEnv struct {
	server     *Server
	hypotheses *hypotheses.Repository
}

func newServerEnv(t *testing.T) (*serverEnv, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "research")

	log := zerolog.Nop()
	hypoRepo := hypotheses.NewRepository(db.Conn(), log)
	pool := scheduler.NewPool(scheduler.PoolConfig{Workers: 1}, nil, hypoRepo, log)

	srv := New(Config{
		Port:          0,
		DataDir:       t.TempDir(),
		Log:           log,
		ResearchDB:    db,
		Hypotheses:    hypoRepo,
		Verdicts:      verdicts.NewRepository(db.Conn(), log),
		Relationships: relationships.NewRepository(db.Conn(), log),
		Pool:          pool,
		Alpha:         0.05,
	})

	return &serverEnv{server: srv, hypotheses: hypoRepo}, cleanup
}

func (env *serverEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.server.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreate(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	rec := env.do(t, http.MethodPost, "/api/hypotheses", CreateHypothesisRequest{
		Claim:       "rate decisions predict gold",
		EventType:   "rate_decision",
		MarketAsset: "XAUUSD",
		TestType:    "correlation",
		Priority:    5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Hypothesis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, 5, created.Priority)
}

func TestHandleCreate_Validation(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	// Missing required fields
	rec := env.do(t, http.MethodPost, "/api/hypotheses", CreateHypothesisRequest{
		TestType: "correlation",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown test type
	rec = env.do(t, http.MethodPost, "/api/hypotheses", CreateHypothesisRequest{
		EventType:   "rate_decision",
		MarketAsset: "XAUUSD",
		TestType:    "chi_squared",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGet(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	h := &domain.Hypothesis{
		EventType:   "rate_decision",
		MarketAsset: "XAUUSD",
		TestType:    domain.TestCorrelation,
	}
	require.NoError(t, env.hypotheses.Create(h))

	rec := env.do(t, http.MethodGet, "/api/hypotheses/"+h.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HypothesisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Hypothesis)
	assert.Equal(t, h.ID, resp.Hypothesis.ID)
	assert.Empty(t, resp.Verdicts)

	rec = env.do(t, http.MethodGet, "/api/hypotheses/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEvaluate(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	h := &domain.Hypothesis{
		EventType:   "rate_decision",
		MarketAsset: "XAUUSD",
		TestType:    domain.TestCorrelation,
	}
	require.NoError(t, env.hypotheses.Create(h))

	// Pending: just a pool nudge
	rec := env.do(t, http.MethodPost, "/api/hypotheses/"+h.ID+"/evaluate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Running: conflict
	became, err := env.hypotheses.MarkRunning(h.ID)
	require.NoError(t, err)
	require.True(t, became)
	rec = env.do(t, http.MethodPost, "/api/hypotheses/"+h.ID+"/evaluate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Terminal: requeued back to pending
	require.NoError(t, env.hypotheses.MarkFailed(h.ID, "collaborator unavailable"))
	rec = env.do(t, http.MethodPost, "/api/hypotheses/"+h.ID+"/evaluate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := env.hypotheses.GetByID(h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestHandleListRelationships_Empty(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	rec := env.do(t, http.MethodGet, "/api/relationships", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestHandleInvalidateRelationship_NotFound(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	rec := env.do(t, http.MethodPost, "/api/relationships/no-such-id/invalidate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLapsedRelationships_Empty(t *testing.T) {
	env, cleanup := newServerEnv(t)
	defer cleanup()

	rec := env.do(t, http.MethodGet, "/api/relationships/lapsed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LapsedRelationshipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.05, resp.Alpha)
	assert.Empty(t, resp.Lapsed)
}
