// Package worker implements the queue handlers for the per-symbol pipeline
// phases: fetching raw history, computing the derived artifact, and rendering
// reports. Handlers return errors instead of retrying; the queue owns the
// retry policy.
package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/queue"
)

// SeriesFetcher is the slice of the fetcher the raw worker needs.
type SeriesFetcher interface {
	Fetch(ctx context.Context, symbol string) (*domain.RawSeries, error)
}

// RawSeriesStore is the slice of the raw repository the raw worker needs.
type RawSeriesStore interface {
	Store(series *domain.RawSeries) error
}

// RawWorker handles raw_fetch messages: fetch one symbol's history and
// commit it. The stored business date is the series' own last bar date, which
// can trail the run's business date on market holidays.
type RawWorker struct {
	fetcher SeriesFetcher
	store   RawSeriesStore
	bus     *events.Bus
	log     zerolog.Logger
}

// NewRawWorker creates a raw-phase worker.
func NewRawWorker(fetcher SeriesFetcher, store RawSeriesStore, bus *events.Bus, log zerolog.Logger) *RawWorker {
	return &RawWorker{
		fetcher: fetcher,
		store:   store,
		bus:     bus,
		log:     log.With().Str("component", "raw_worker").Logger(),
	}
}

// Handle processes one raw_fetch message.
func (w *RawWorker) Handle(ctx context.Context, msg *queue.Message) error {
	series, err := w.fetcher.Fetch(ctx, msg.Symbol)
	if err != nil {
		return fmt.Errorf("raw phase for %s: %w", msg.Symbol, err)
	}

	// Pin the series to the run's business date. The bars may end earlier
	// (holiday, suspension) but the row must land on the date the derived
	// phase will look it up under.
	series.BusinessDate = msg.BusinessDate

	if err := w.store.Store(series); err != nil {
		return fmt.Errorf("raw phase for %s: %w", msg.Symbol, err)
	}

	w.bus.PublishData(&events.RawStoredData{
		RunID:        msg.RunID,
		Symbol:       msg.Symbol,
		BusinessDate: msg.BusinessDate,
		RowCount:     series.RowCount,
	})

	w.log.Info().
		Str("run_id", msg.RunID).
		Str("symbol", msg.Symbol).
		Str("business_date", msg.BusinessDate).
		Int("rows", series.RowCount).
		Msg("Raw series committed")

	return nil
}
