package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/edgefinder/internal/database"
	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
	"github.com/aristath/edgefinder/internal/scheduler"
)

// SystemHandlers handles monitoring and operations endpoints
type SystemHandlers struct {
	log           zerolog.Logger
	dataDir       string
	researchDB    *database.DB
	hypotheses    *hypotheses.Repository
	verdicts      *verdicts.Repository
	relationships *relationships.Repository
	pool          *scheduler.Pool
	alpha         float64
	startedAt     time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	researchDB *database.DB,
	hypothesesRepo *hypotheses.Repository,
	verdictsRepo *verdicts.Repository,
	relationshipsRepo *relationships.Repository,
	pool *scheduler.Pool,
	alpha float64,
) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("component", "system_handlers").Logger(),
		dataDir:       dataDir,
		researchDB:    researchDB,
		hypotheses:    hypothesesRepo,
		verdicts:      verdictsRepo,
		relationships: relationshipsRepo,
		pool:          pool,
		alpha:         alpha,
		startedAt:     time.Now(),
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	UptimeSeconds  int64          `json:"uptime_seconds"`
	CPUPercent     float64        `json:"cpu_percent"`
	RAMPercent     float64        `json:"ram_percent"`
	QueueByStatus  map[string]int `json:"queue_by_status"`
	InFlight       int            `json:"in_flight"`
	PopulationSize int            `json:"population_size"`
	ActiveCount    int            `json:"active_relationships"`
	Databases      []DBInfo       `json:"databases"`
}

// DBInfo represents information about a single database file
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// HandleHealth answers liveness probes; it also pings the research database
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.researchDB.HealthCheck(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.log, map[string]string{"status": "ok"})
}

// HandleSystemStatus returns queue depth, population size, and host stats
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	counts, err := h.hypotheses.CountByStatus()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count hypotheses")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	queueByStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		queueByStatus[string(status)] = n
	}

	population, err := h.verdicts.Population()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read population size")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	active, err := h.relationships.ListActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list active relationships")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, ramPercent := h.systemStats()

	response := SystemStatusResponse{
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:     cpuPercent,
		RAMPercent:     ramPercent,
		QueueByStatus:  queueByStatus,
		InFlight:       h.pool.InFlight(),
		PopulationSize: population,
		ActiveCount:    len(active),
		Databases:      h.databaseStats(),
	}

	writeJSON(w, h.log, response)
}

// LapsedRelationshipsResponse lists active relationships that would no
// longer clear the correction threshold at today's population size
type LapsedRelationshipsResponse struct {
	PopulationSize int                    `json:"population_size"`
	Alpha          float64                `json:"alpha"`
	Lapsed         []*domain.Relationship `json:"lapsed"`
}

// HandleLapsedRelationships returns relationships flagged by lapse review
// GET /api/relationships/lapsed
func (h *SystemHandlers) HandleLapsedRelationships(w http.ResponseWriter, r *http.Request) {
	population, err := h.verdicts.Population()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	lapsed, err := h.relationships.FindLapsed(population, h.alpha)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to find lapsed relationships")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, LapsedRelationshipsResponse{
		PopulationSize: population,
		Alpha:          h.alpha,
		Lapsed:         lapsed,
	})
}

// systemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms so status calls stay fast.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// databaseStats reports on-disk sizes of the data directory's databases
func (h *SystemHandlers) databaseStats() []DBInfo {
	databases := []DBInfo{}

	for _, name := range []string{"research.db", "marketdata.db"} {
		path := filepath.Join(h.dataDir, name)
		if info, err := os.Stat(path); err == nil {
			databases = append(databases, DBInfo{
				Name:   name,
				Path:   path,
				SizeMB: float64(info.Size()) / 1024 / 1024,
			})
		}
	}

	return databases
}
