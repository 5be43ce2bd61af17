package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/analytics"
	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/queue"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
)

// DerivedWorker handles derived_compute messages: read the committed raw
// series, compute indicators, percentiles, and comparatives, and upsert the
// final artifact. The raw row is the only input; a missing raw row means the
// message raced ahead of the barrier and must be redelivered.
type DerivedWorker struct {
	raw       *repository.RawSeriesRepository
	derived   *repository.DerivedRepository
	artifacts *repository.ArtifactRepository
	refData   *repository.RefDataRepository
	clock     *marketclock.Clock
	bus       *events.Bus

	refSymbol    string
	lookbackDays int
	log          zerolog.Logger
}

// NewDerivedWorker creates a derived-phase worker. refData may be nil when
// the reference-data stream is disabled.
func NewDerivedWorker(
	raw *repository.RawSeriesRepository,
	derived *repository.DerivedRepository,
	artifacts *repository.ArtifactRepository,
	refData *repository.RefDataRepository,
	clock *marketclock.Clock,
	bus *events.Bus,
	refSymbol string,
	lookbackDays int,
	log zerolog.Logger,
) *DerivedWorker {
	return &DerivedWorker{
		raw:          raw,
		derived:      derived,
		artifacts:    artifacts,
		refData:      refData,
		clock:        clock,
		bus:          bus,
		refSymbol:    refSymbol,
		lookbackDays: lookbackDays,
		log:          log.With().Str("component", "derived_worker").Logger(),
	}
}

// Handle processes one derived_compute message.
func (w *DerivedWorker) Handle(ctx context.Context, msg *queue.Message) error {
	start := w.clock.Now()

	series, err := w.raw.Get(msg.Symbol, msg.BusinessDate)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("derived phase for %s on %s: %w",
				msg.Symbol, msg.BusinessDate, domain.ErrRawNotReady)
		}
		return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
	}
	if len(series.Bars) == 0 {
		return &domain.InvariantError{
			CorrelationID: msg.RunID,
			Detail:        fmt.Sprintf("raw series for %s on %s has zero bars", msg.Symbol, msg.BusinessDate),
		}
	}

	if err := w.artifacts.MarkPending(msg.SymbolID, msg.Symbol, msg.BusinessDate); err != nil {
		return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
	}

	indicators := analytics.ComputeIndicators(msg.Symbol, series.Bars)
	latest := &indicators[len(indicators)-1]

	for i := range indicators {
		if err := w.derived.StoreIndicators(msg.SymbolID, &indicators[i]); err != nil {
			return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
		}
	}

	percentiles := analytics.ComputePercentiles(msg.Symbol, latest.Date, w.lookbackDays, indicators)
	if percentiles != nil {
		if err := w.derived.StorePercentiles(msg.SymbolID, percentiles); err != nil {
			return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
		}
	}

	comparatives := analytics.ComputeComparatives(msg.Symbol, latest.Date, series.Bars, w.referenceBars(msg))
	if comparatives != nil {
		if err := w.derived.StoreComparatives(msg.SymbolID, comparatives); err != nil {
			return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
		}
	}

	classification := analytics.Classify(latest)
	narrative := analytics.Narrative(msg.Symbol, latest.Date, classification, latest)

	var refRows []domain.RefDataRow
	if w.refData != nil {
		refRows, err = w.refData.GetForSymbol(msg.Symbol, msg.BusinessDate)
		if err != nil {
			// Enrichment only: log and continue without it.
			w.log.Warn().Err(err).Str("symbol", msg.Symbol).Msg("Reference data lookup failed")
			refRows = nil
		}
	}

	payload, err := BuildPayload(series, latest, percentiles, comparatives, classification, refRows)
	if err != nil {
		return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
	}

	chartBlob, err := EncodeChartBlob(indicators)
	if err != nil {
		return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
	}

	finished := w.clock.Now()
	artifact := &domain.Artifact{
		SymbolID:     msg.SymbolID,
		Symbol:       msg.Symbol,
		BusinessDate: msg.BusinessDate,
		Narrative:    narrative,
		Payload:      payload,
		ChartBlob:    chartBlob,
		LatencyMS:    finished.Sub(start).Milliseconds(),
		Status:       domain.ArtifactCompleted,
		ComputedAt:   finished,
		ExpiresAt:    w.clock.NextExpiry(finished),
	}
	if err := w.artifacts.Upsert(artifact); err != nil {
		return fmt.Errorf("derived phase for %s: %w", msg.Symbol, err)
	}

	w.bus.PublishData(&events.DerivedStoredData{
		RunID:        msg.RunID,
		Symbol:       msg.Symbol,
		BusinessDate: msg.BusinessDate,
		LatencyMS:    artifact.LatencyMS,
	})

	w.log.Info().
		Str("run_id", msg.RunID).
		Str("symbol", msg.Symbol).
		Str("business_date", msg.BusinessDate).
		Int64("latency_ms", artifact.LatencyMS).
		Msg("Derived artifact committed")

	return nil
}

// RecordFailure marks the artifact failed once a derived message reaches a
// terminal failure. Called by the controller's result hook, not the handler.
func (w *DerivedWorker) RecordFailure(msg *queue.Message, cause error) {
	if err := w.artifacts.MarkFailed(msg.SymbolID, msg.Symbol, msg.BusinessDate, cause.Error()); err != nil {
		w.log.Error().Err(err).
			Str("symbol", msg.Symbol).
			Str("business_date", msg.BusinessDate).
			Msg("Failed to record artifact failure")
	}
}

// referenceBars loads the reference index series for relative strength.
// Missing reference data degrades the feature, never the run.
func (w *DerivedWorker) referenceBars(msg *queue.Message) []domain.DailyBar {
	if w.refSymbol == "" || w.refSymbol == msg.Symbol {
		return nil
	}
	ref, err := w.raw.Get(w.refSymbol, msg.BusinessDate)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.log.Warn().Err(err).Str("ref_symbol", w.refSymbol).Msg("Reference series lookup failed")
		}
		return nil
	}
	return ref.Bars
}
