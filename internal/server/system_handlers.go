package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/aristath/adaptivetrader/internal/reliability"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// PositionCounter reports what the outcome tracker is holding
type PositionCounter interface {
	OpenPositions() int
	PendingWaits() int
}

// ModelVersioner names the active model
type ModelVersioner interface {
	ModelVersion() string
}

// PolicyReader exposes the current policy table
type PolicyReader interface {
	Current() *policy.Table
}

// JobRunner lists and triggers scheduled jobs
type JobRunner interface {
	Jobs() []string
	RunNow(name string) error
}

// BackupLister lists offsite backups
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Mode            string  `json:"mode"`
	Symbol          string  `json:"symbol"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	OpenPositions   int     `json:"open_positions"`
	PendingWaits    int     `json:"pending_waits"`
	ModelVersion    string  `json:"model_version"`
	PolicyVersion   int64   `json:"policy_version"`
	PolicyRecords   int     `json:"policy_records"`
	RegistrySizeMB  float64 `json:"registry_size_mb"`
	RegistryWALMB   float64 `json:"registry_wal_mb"`
	RegistryFreePct float64 `json:"registry_free_pct"`
	LastChecked     string  `json:"last_checked"`
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	mode        string
	symbol      string
	startupTime time.Time
	registryDB  *database.DB
	positions   PositionCounter
	models      ModelVersioner
	policy      PolicyReader
	jobs        JobRunner
	backups     BackupLister // nil when backups are disabled
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	mode, symbol string,
	registryDB *database.DB,
	positions PositionCounter,
	models ModelVersioner,
	policy PolicyReader,
	jobs JobRunner,
	backups BackupLister,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		mode:        mode,
		symbol:      symbol,
		startupTime: time.Now(),
		registryDB:  registryDB,
		positions:   positions,
		models:      models,
		policy:      policy,
		jobs:        jobs,
		backups:     backups,
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/jobs", h.HandleListJobs)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
		r.Get("/backups", h.HandleListBackups)
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Mode:          h.mode,
		Symbol:        h.symbol,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		LastChecked:   time.Now().Format(time.RFC3339),
	}
	if h.positions != nil {
		resp.OpenPositions = h.positions.OpenPositions()
		resp.PendingWaits = h.positions.PendingWaits()
	}
	if h.models != nil {
		resp.ModelVersion = h.models.ModelVersion()
	}
	if h.policy != nil {
		if t := h.policy.Current(); t != nil {
			resp.PolicyVersion = t.Version
			resp.PolicyRecords = t.RecordCount
		}
	}
	if h.registryDB != nil {
		stats, err := h.registryDB.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get registry stats")
		} else {
			resp.RegistrySizeMB = float64(stats.SizeBytes) / 1024 / 1024
			resp.RegistryWALMB = float64(stats.WALSizeBytes) / 1024 / 1024
			if stats.PageCount > 0 {
				resp.RegistryFreePct = float64(stats.FreelistCount) / float64(stats.PageCount) * 100
			}
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.jobs.Jobs(),
	})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	known := false
	for _, j := range h.jobs.Jobs() {
		if j == name {
			known = true
			break
		}
	}
	if !known {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	if err := h.jobs.RunNow(name); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  "error",
			"job":     name,
			"message": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"job":    name,
	})
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		http.Error(w, "Backups are disabled", http.StatusNotFound)
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusBadGateway)
		return
	}
	if backups == nil {
		backups = []reliability.BackupInfo{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// The CPU sample window is kept short so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
