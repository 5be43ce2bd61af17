package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Awannaphasch2016/dr-daily-report/internal/controller"
	"github.com/Awannaphasch2016/dr-daily-report/internal/database"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	dataDir    string
	db         *database.DB
	controller *controller.Controller
	clock      *marketclock.Clock
	startedAt  time.Time
	log        zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	dataDir string,
	db *database.DB,
	ctrl *controller.Controller,
	clock *marketclock.Clock,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		dataDir:    dataDir,
		db:         db,
		controller: ctrl,
		clock:      clock,
		startedAt:  time.Now(),
		log:        log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleHealth is the liveness probe; it pings the database.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lastRunStatus is the run summary slice of the system status response.
type lastRunStatus struct {
	RunID         string   `json:"run_id"`
	BusinessDate  string   `json:"business_date"`
	Status        string   `json:"status"`
	SymbolsTotal  int      `json:"symbols_total"`
	RawCompleted  int      `json:"raw_completed"`
	RawFailed     int      `json:"raw_failed"`
	DerivedOK     int      `json:"derived_ok"`
	DerivedFailed int      `json:"derived_failed"`
	FailedSymbols []string `json:"failed_symbols,omitempty"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at"`
}

// HandleSystemStatus returns process, database, queue, and run status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"business_date":  h.clock.TodayBusinessDate(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"run_active":     h.controller.Running(),
		"queue_pending":  h.controller.Queue().Pending(),
	}

	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		status["cpu_percent"] = cpuPercents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["ram_percent"] = vm.UsedPercent
	}

	if stats, err := h.db.GetStats(); err == nil {
		status["database"] = map[string]interface{}{
			"name":        h.db.Name(),
			"size_mb":     float64(stats.SizeBytes) / 1024 / 1024,
			"wal_size_mb": float64(stats.WALSizeBytes) / 1024 / 1024,
			"page_count":  stats.PageCount,
			"page_size":   stats.PageSize,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read database stats")
	}

	if run := h.controller.LastRun(); run != nil {
		status["last_run"] = lastRunStatus{
			RunID:         run.RunID,
			BusinessDate:  run.BusinessDate,
			Status:        string(run.Status),
			SymbolsTotal:  run.SymbolsTotal,
			RawCompleted:  run.RawCompleted,
			RawFailed:     run.RawFailed,
			DerivedOK:     run.DerivedOK,
			DerivedFailed: run.DerivedFailed,
			FailedSymbols: run.FailedSymbols,
			StartedAt:     run.StartedAt.Format(time.RFC3339),
			FinishedAt:    run.FinishedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// HandleTriggerRun starts a nightly run immediately. The run happens in the
// background; the response only acknowledges the trigger. A run already in
// progress is a conflict.
func (h *SystemHandlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.controller.Running() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.TodayBusinessDate()
	}

	h.log.Info().Str("business_date", date).Msg("Manual run triggered")

	go func() {
		if _, err := h.controller.Run(context.Background(), date, "manual"); err != nil {
			h.log.Error().Err(err).Str("business_date", date).Msg("Manual run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":        "started",
		"business_date": date,
	})
}
