package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/queue"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

type stubFetcher struct {
	series *domain.RawSeries
	err    error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (*domain.RawSeries, error) {
	return s.series, s.err
}

type captureStore struct {
	stored *domain.RawSeries
	err    error
}

func (c *captureStore) Store(series *domain.RawSeries) error {
	c.stored = series
	return c.err
}

func TestRawWorkerPinsBusinessDate(t *testing.T) {
	end := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	bars := testutil.Bars(10, end)

	// series ends on the 20th (holiday on the 21st) but the run targets the 21st
	fetcher := &stubFetcher{series: &domain.RawSeries{
		Symbol:       "PTT",
		BusinessDate: "2026-08-20",
		Bars:         bars,
		FirstDate:    bars[0].Date,
		LastDate:     bars[9].Date,
		RowCount:     10,
	}}
	store := &captureStore{}
	bus := events.NewBus(zerolog.Nop())

	var published []*events.Event
	bus.Subscribe(events.RawStored, func(e *events.Event) { published = append(published, e) })

	w := NewRawWorker(fetcher, store, bus, zerolog.Nop())
	err := w.Handle(context.Background(), &queue.Message{
		RunID:        "run-1",
		Symbol:       "PTT",
		BusinessDate: "2026-08-21",
	})
	require.NoError(t, err)

	require.NotNil(t, store.stored)
	assert.Equal(t, "2026-08-21", store.stored.BusinessDate)
	assert.Equal(t, bars[9].Date, store.stored.LastDate)

	require.Len(t, published, 1)
	assert.Equal(t, "PTT", published[0].Data["symbol"])
}

func TestRawWorkerPropagatesFetchError(t *testing.T) {
	fetchErr := domain.NewFetchError(domain.FetchTimeout, "PTT", nil)
	fetcher := &stubFetcher{err: fetchErr}
	store := &captureStore{}

	w := NewRawWorker(fetcher, store, events.NewBus(zerolog.Nop()), zerolog.Nop())
	err := w.Handle(context.Background(), &queue.Message{Symbol: "PTT", BusinessDate: "2026-08-21"})
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, domain.IsRetryable(err))
	assert.Nil(t, store.stored)
}

func TestRawWorkerPropagatesStoreError(t *testing.T) {
	end := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{series: &domain.RawSeries{
		Symbol: "PTT", Bars: testutil.Bars(5, end), RowCount: 5,
	}}
	store := &captureStore{err: errors.New("disk full")}

	w := NewRawWorker(fetcher, store, events.NewBus(zerolog.Nop()), zerolog.Nop())
	err := w.Handle(context.Background(), &queue.Message{Symbol: "PTT", BusinessDate: "2026-08-21"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
