package repository

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

func buildSeries(symbol, businessDate string, n int, end time.Time) *domain.RawSeries {
	bars := testutil.Bars(n, end)
	return &domain.RawSeries{
		Symbol:       symbol,
		BusinessDate: businessDate,
		Bars:         bars,
		Metadata:     map[string]interface{}{"currency": "THB"},
		FirstDate:    bars[0].Date,
		LastDate:     bars[len(bars)-1].Date,
		RowCount:     len(bars),
		Source:       "test-provider",
		FetchedAt:    end,
		ExpiresAt:    end.Add(24 * time.Hour),
	}
}

func TestRawSeriesStoreAndGet(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	clock := testutil.NewTestClock(t)
	repo := NewRawSeriesRepository(db.Conn(), clock, zerolog.Nop())

	end := time.Date(2026, 8, 21, 18, 0, 0, 0, clock.Location())
	series := buildSeries("PTT", "2026-08-21", 30, end)
	require.NoError(t, repo.Store(series))

	got, err := repo.Get("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.Equal(t, "PTT", got.Symbol)
	assert.Equal(t, 30, got.RowCount)
	assert.Len(t, got.Bars, 30)
	assert.Equal(t, series.Bars[0].Date, got.FirstDate)
	assert.Equal(t, series.Bars[29].Date, got.LastDate)
	assert.Equal(t, "THB", got.Metadata["currency"])
	require.NotNil(t, got.Bars[0].Volume)
}

func TestRawSeriesGetMissing(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewRawSeriesRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	_, err := repo.Get("PTT", "2026-08-21")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRawSeriesUpsertIsIdempotent(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	clock := testutil.NewTestClock(t)
	repo := NewRawSeriesRepository(db.Conn(), clock, zerolog.Nop())

	end := time.Date(2026, 8, 21, 18, 0, 0, 0, clock.Location())
	series := buildSeries("PTT", "2026-08-21", 30, end)
	require.NoError(t, repo.Store(series))
	require.NoError(t, repo.Store(series))

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM " + TableRawSeries).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRawSeriesNeverShrinks(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	clock := testutil.NewTestClock(t)
	repo := NewRawSeriesRepository(db.Conn(), clock, zerolog.Nop())

	end := time.Date(2026, 8, 21, 18, 0, 0, 0, clock.Location())
	require.NoError(t, repo.Store(buildSeries("PTT", "2026-08-21", 30, end)))

	// a later, smaller fetch must not replace the stored series
	require.NoError(t, repo.Store(buildSeries("PTT", "2026-08-21", 10, end)))

	got, err := repo.Get("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.Equal(t, 30, got.RowCount)
	assert.Len(t, got.Bars, 30)

	// a larger fetch replaces it
	require.NoError(t, repo.Store(buildSeries("PTT", "2026-08-21", 40, end)))
	got, err = repo.Get("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.Equal(t, 40, got.RowCount)
}

func TestRawSeriesExists(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	clock := testutil.NewTestClock(t)
	repo := NewRawSeriesRepository(db.Conn(), clock, zerolog.Nop())

	ok, err := repo.Exists("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.False(t, ok)

	end := time.Date(2026, 8, 21, 18, 0, 0, 0, clock.Location())
	require.NoError(t, repo.Store(buildSeries("PTT", "2026-08-21", 5, end)))

	ok, err = repo.Exists("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.True(t, ok)
}
