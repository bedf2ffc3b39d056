package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
	"github.com/aristath/edgefinder/internal/scheduler"
)

// HypothesisHandlers handles hypothesis intake and result queries
type HypothesisHandlers struct {
	log           zerolog.Logger
	hypotheses    *hypotheses.Repository
	verdicts      *verdicts.Repository
	relationships *relationships.Repository
	pool          *scheduler.Pool
}

// NewHypothesisHandlers creates a new hypothesis handlers instance
func NewHypothesisHandlers(
	log zerolog.Logger,
	hypothesesRepo *hypotheses.Repository,
	verdictsRepo *verdicts.Repository,
	relationshipsRepo *relationships.Repository,
	pool *scheduler.Pool,
) *HypothesisHandlers {
	return &HypothesisHandlers{
		log:           log.With().Str("component", "hypothesis_handlers").Logger(),
		hypotheses:    hypothesesRepo,
		verdicts:      verdictsRepo,
		relationships: relationshipsRepo,
		pool:          pool,
	}
}

// CreateHypothesisRequest is the hypothesis intake payload
type CreateHypothesisRequest struct {
	Claim        string `json:"claim"`
	EventType    string `json:"event_type"`
	MarketAsset  string `json:"market_asset"`
	TestType     string `json:"test_type"`
	LookbackDays int    `json:"lookback_days"`
	Priority     int    `json:"priority"`
}

// HypothesisResponse is a hypothesis together with its verdicts
type HypothesisResponse struct {
	Hypothesis *domain.Hypothesis `json:"hypothesis"`
	Verdicts   []*domain.Verdict  `json:"verdicts,omitempty"`
}

// HandleCreate accepts a new hypothesis and queues it for evaluation
// POST /api/hypotheses
func (h *HypothesisHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateHypothesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.EventType == "" || req.MarketAsset == "" {
		http.Error(w, "event_type and market_asset are required", http.StatusBadRequest)
		return
	}

	hypothesis := &domain.Hypothesis{
		Claim:        req.Claim,
		EventType:    req.EventType,
		MarketAsset:  req.MarketAsset,
		TestType:     domain.TestType(req.TestType),
		LookbackDays: req.LookbackDays,
		Priority:     req.Priority,
	}
	if !hypothesis.TestType.Valid() {
		http.Error(w, "unknown test_type: "+req.TestType, http.StatusBadRequest)
		return
	}

	if err := h.hypotheses.Create(hypothesis); err != nil {
		h.log.Error().Err(err).Msg("Failed to create hypothesis")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.log.Info().
		Str("hypothesis_id", hypothesis.ID).
		Str("event_type", hypothesis.EventType).
		Str("market_asset", hypothesis.MarketAsset).
		Str("test_type", string(hypothesis.TestType)).
		Msg("Hypothesis queued")

	h.pool.Trigger()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(hypothesis)
}

// HandleGet returns a hypothesis with its verdict history
// GET /api/hypotheses/{id}
func (h *HypothesisHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hypothesis, err := h.hypotheses.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if hypothesis == nil {
		http.Error(w, "Hypothesis not found", http.StatusNotFound)
		return
	}

	verdictList, err := h.verdicts.ListByHypothesis(id)
	if err != nil {
		h.log.Error().Err(err).Str("hypothesis_id", id).Msg("Failed to list verdicts")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, HypothesisResponse{Hypothesis: hypothesis, Verdicts: verdictList})
}

// HandleEvaluate requeues a terminal hypothesis and wakes the pool.
// Pending hypotheses just get a pool nudge; running ones are left alone.
// POST /api/hypotheses/{id}/evaluate
func (h *HypothesisHandlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hypothesis, err := h.hypotheses.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if hypothesis == nil {
		http.Error(w, "Hypothesis not found", http.StatusNotFound)
		return
	}

	switch hypothesis.Status {
	case domain.StatusRunning:
		http.Error(w, "Hypothesis is already being evaluated", http.StatusConflict)
		return
	case domain.StatusCompleted, domain.StatusFailed:
		requeued, err := h.hypotheses.Requeue(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !requeued {
			http.Error(w, "Hypothesis changed state, try again", http.StatusConflict)
			return
		}
	}

	h.pool.Trigger()
	writeJSON(w, h.log, map[string]string{"status": "queued", "hypothesis_id": id})
}

// HandleListRelationships returns all active relationships
// GET /api/relationships
func (h *HypothesisHandlers) HandleListRelationships(w http.ResponseWriter, r *http.Request) {
	var (
		list []*domain.Relationship
		err  error
	)
	if r.URL.Query().Get("all") == "true" {
		list, err = h.relationships.ListAll()
	} else {
		list, err = h.relationships.ListActive()
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list relationships")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, map[string]interface{}{
		"relationships": list,
		"count":         len(list),
	})
}

// HandleInvalidateRelationship retires a relationship. Invalidation is the
// only path that changes a relationship's status; lapse review never does
// this automatically.
// POST /api/relationships/{id}/invalidate
func (h *HypothesisHandlers) HandleInvalidateRelationship(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	invalidated, err := h.relationships.Invalidate(id)
	if err != nil {
		h.log.Error().Err(err).Str("relationship_id", id).Msg("Failed to invalidate relationship")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !invalidated {
		http.Error(w, "Relationship not found or already invalidated", http.StatusNotFound)
		return
	}

	h.log.Info().Str("relationship_id", id).Msg("Relationship invalidated")
	writeJSON(w, h.log, map[string]string{"status": "invalidated", "relationship_id": id})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
