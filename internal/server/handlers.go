package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/report"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
	"github.com/Awannaphasch2016/dr-daily-report/internal/worker"
)

const (
	defaultSearchLimit   = 20
	defaultRankingsLimit = 20
	maxRankingsLimit     = 100
)

// Handlers serves the read API. Every endpoint is a database read of
// precomputed rows; a request never triggers a fetch or a computation.
type Handlers struct {
	symbols   *repository.SymbolRepository
	artifacts *repository.ArtifactRepository
	derived   *repository.DerivedRepository
	watchlist *repository.WatchlistRepository
	reports   *report.Service
	clock     *marketclock.Clock
	log       zerolog.Logger

	searchMu    sync.RWMutex
	searchIndex []searchEntry
}

type searchEntry struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// NewHandlers creates the API handlers
func NewHandlers(
	symbols *repository.SymbolRepository,
	artifacts *repository.ArtifactRepository,
	derived *repository.DerivedRepository,
	watchlist *repository.WatchlistRepository,
	reports *report.Service,
	clock *marketclock.Clock,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		symbols:   symbols,
		artifacts: artifacts,
		derived:   derived,
		watchlist: watchlist,
		reports:   reports,
		clock:     clock,
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

// ReloadSearchIndex rebuilds the in-memory symbol search index from the
// symbol registry. Called at startup and after onboarding changes.
func (h *Handlers) ReloadSearchIndex() error {
	companies, err := h.symbols.ListCompanies()
	if err != nil {
		return err
	}

	index := make([]searchEntry, 0, len(companies))
	for symbol, name := range companies {
		index = append(index, searchEntry{Symbol: symbol, Name: name})
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Symbol < index[j].Symbol })

	h.searchMu.Lock()
	h.searchIndex = index
	h.searchMu.Unlock()

	h.log.Info().Int("symbols", len(index)).Msg("Search index loaded")
	return nil
}

// HandleGetReport serves the precomputed artifact for a symbol. Defaults to
// the current business date; ?date=YYYY-MM-DD selects an earlier one. A
// missing or non-completed artifact is a 404, never a trigger to compute.
func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.TodayBusinessDate()
	}

	artifact := h.readCompleted(w, symbol, date)
	if artifact == nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":        artifact.Symbol,
		"business_date": artifact.BusinessDate,
		"narrative":     artifact.Narrative,
		"payload":       artifact.Payload,
		"report_key":    artifact.ReportKey,
		"latency_ms":    artifact.LatencyMS,
		"computed_at":   artifact.ComputedAt,
		"expires_at":    artifact.ExpiresAt,
	})
}

// HandleGetChart serves the decoded chart series of an artifact.
func (h *Handlers) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.TodayBusinessDate()
	}

	artifact := h.readCompleted(w, symbol, date)
	if artifact == nil {
		return
	}
	if len(artifact.ChartBlob) == 0 {
		writeError(w, http.StatusNotFound, "no chart data for this artifact")
		return
	}

	series, err := worker.DecodeChartBlob(artifact.ChartBlob)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Str("date", date).Msg("Failed to decode chart blob")
		writeError(w, http.StatusInternalServerError, "chart data is corrupt")
		return
	}

	writeJSON(w, http.StatusOK, series)
}

// readCompleted loads an artifact and enforces the fail-fast contract: only
// completed, unexpired artifacts are served. Writes the error response itself
// and returns nil when the artifact is not servable.
func (h *Handlers) readCompleted(w http.ResponseWriter, symbol, date string) *domain.Artifact {
	artifact, err := h.artifacts.Read(symbol, date)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no precomputed report for "+symbol+" on "+date)
			return nil
		}
		h.log.Error().Err(err).Str("symbol", symbol).Str("date", date).Msg("Failed to read artifact")
		writeError(w, http.StatusInternalServerError, "failed to read report")
		return nil
	}

	switch artifact.Status {
	case domain.ArtifactCompleted:
		// servable
	case domain.ArtifactPending:
		writeError(w, http.StatusNotFound, "report for "+symbol+" on "+date+" is still being computed")
		return nil
	default:
		writeError(w, http.StatusNotFound, "precompute failed for "+symbol+" on "+date+": "+artifact.ErrorMessage)
		return nil
	}

	if h.clock.Now().After(artifact.ExpiresAt) {
		writeError(w, http.StatusNotFound, "report for "+symbol+" on "+date+" has expired")
		return nil
	}

	return artifact
}

// HandleSearch matches symbols and company names against the in-memory index.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("q")))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter: q")
		return
	}

	h.searchMu.RLock()
	index := h.searchIndex
	h.searchMu.RUnlock()

	matches := make([]searchEntry, 0, defaultSearchLimit)
	// exact and prefix symbol matches rank ahead of name substring matches
	for _, e := range index {
		if strings.HasPrefix(e.Symbol, query) {
			matches = append(matches, e)
			if len(matches) >= defaultSearchLimit {
				break
			}
		}
	}
	if len(matches) < defaultSearchLimit {
		for _, e := range index {
			if strings.HasPrefix(e.Symbol, query) {
				continue
			}
			if strings.Contains(strings.ToUpper(e.Name), query) {
				matches = append(matches, e)
				if len(matches) >= defaultSearchLimit {
					break
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": matches,
	})
}

// HandleRankings serves top-K symbols by a precomputed metric.
func (h *Handlers) HandleRankings(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter: metric")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.TodayBusinessDate()
	}

	limit := defaultRankingsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxRankingsLimit {
		limit = maxRankingsLimit
	}

	entries, err := h.derived.Rankings(metric, date, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown ranking metric: "+metric)
			return
		}
		h.log.Error().Err(err).Str("metric", metric).Msg("Failed to query rankings")
		writeError(w, http.StatusInternalServerError, "failed to query rankings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metric":  metric,
		"date":    date,
		"entries": entries,
	})
}

// HandleWatchlistGet returns a user's watchlist.
func (h *Handlers) HandleWatchlistGet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := h.watchlist.List(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list watchlist")
		writeError(w, http.StatusInternalServerError, "failed to list watchlist")
		return
	}
	if entries == nil {
		entries = []domain.WatchlistEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"entries": entries,
	})
}

// HandleWatchlistAdd adds a symbol to a user's watchlist. Only known symbols
// are accepted. Re-adding is a no-op success.
func (h *Handlers) HandleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	if _, err := h.symbols.Resolve(symbol); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown symbol: "+symbol)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve symbol")
		return
	}

	if err := h.watchlist.Add(userID, symbol); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Str("symbol", symbol).Msg("Failed to add watchlist entry")
		writeError(w, http.StatusInternalServerError, "failed to add watchlist entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "added", "symbol": symbol})
}

// HandleWatchlistRemove removes a symbol from a user's watchlist. Removing a
// missing entry is a 404 so clients can tell it apart from success.
func (h *Handlers) HandleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	if err := h.watchlist.Remove(userID, symbol); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, symbol+" is not on the watchlist")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Str("symbol", symbol).Msg("Failed to remove watchlist entry")
		writeError(w, http.StatusInternalServerError, "failed to remove watchlist entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "symbol": symbol})
}

type reportJobRequest struct {
	Symbol string `json:"symbol"`
}

// HandleReportJobCreate queues an on-demand PDF report job.
func (h *Handlers) HandleReportJobCreate(w http.ResponseWriter, r *http.Request) {
	var req reportJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing field: symbol")
		return
	}

	jobID, err := h.reports.Request(symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown symbol: "+symbol)
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to create report job")
		writeError(w, http.StatusInternalServerError, "failed to create report job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"symbol": symbol,
		"state":  string(domain.JobRequested),
	})
}

// HandleReportJobStatus returns the state of a report job.
func (h *Handlers) HandleReportJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.reports.Status(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown job: "+jobID)
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job")
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":       job.JobID,
		"symbol":       job.Symbol,
		"state":        job.State,
		"error":        job.Error,
		"requested_at": job.RequestedAt,
		"completed_at": job.CompletedAt,
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are already written; an encode error here has nowhere to go
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
