package fetcher

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

type stubClient struct {
	series *ProviderSeries
	err    error
}

func (s *stubClient) FetchDailyHistory(_ context.Context, _ string, _ int) (*ProviderSeries, error) {
	return s.series, s.err
}

func testClock(t *testing.T) *marketclock.Clock {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	return marketclock.New(loc)
}

func newTestFetcher(t *testing.T, client ProviderClient) *Fetcher {
	t.Helper()
	return New(client, testClock(t), 365, "test_provider", zerolog.Nop())
}

func TestFetchNormalizesOutOfOrderBars(t *testing.T) {
	client := &stubClient{series: &ProviderSeries{
		Symbol: "PTT",
		Bars: []ProviderBar{
			{Date: "2026-08-21", Open: 36, High: 37, Low: 35, Close: 36.5, Volume: 1000},
			{Date: "2026-08-19", Open: 35, High: 36, Low: 34, Close: 35.5, Volume: 900},
			{Date: "2026-08-20", Open: 35.5, High: 36.5, Low: 35, Close: 36, Volume: 950},
		},
	}}

	series, err := newTestFetcher(t, client).Fetch(context.Background(), "PTT")
	require.NoError(t, err)

	assert.Equal(t, "2026-08-19", series.Bars[0].Date)
	assert.Equal(t, "2026-08-20", series.Bars[1].Date)
	assert.Equal(t, "2026-08-21", series.Bars[2].Date)
	assert.Equal(t, "2026-08-21", series.BusinessDate, "business date is the last bar's date")
	assert.Equal(t, "2026-08-19", series.FirstDate)
	assert.Equal(t, 3, series.RowCount)
}

func TestFetchRejectsDuplicateDates(t *testing.T) {
	client := &stubClient{series: &ProviderSeries{
		Symbol: "PTT",
		Bars: []ProviderBar{
			{Date: "2026-08-20", Open: 35, High: 36, Low: 34, Close: 35.5, Volume: 900},
			{Date: "2026-08-20", Open: 35.5, High: 36.5, Low: 35, Close: 36, Volume: 950},
		},
	}}

	_, err := newTestFetcher(t, client).Fetch(context.Background(), "PTT")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchEmpty, fe.Kind)
	assert.False(t, fe.Retryable, "duplicate dates are a data-quality failure, not transient")
}

func TestFetchScrubsNonFiniteValues(t *testing.T) {
	client := &stubClient{series: &ProviderSeries{
		Symbol: "PTT",
		Bars: []ProviderBar{
			{Date: "2026-08-19", Open: 35, High: 36, Low: 34, Close: math.NaN(), Volume: 900},
			{Date: "2026-08-20", Open: 35.5, High: 36.5, Low: 35, Close: 36, Volume: math.Inf(1)},
			{Date: "2026-08-21", Open: 36, High: 37, Low: 35, Close: 36.5, Volume: 1000},
		},
		Metadata: map[string]interface{}{
			"market_cap": math.NaN(),
			"pe_ratio":   12.5,
			"nested":     map[string]interface{}{"beta": math.Inf(-1), "name": "PTT PCL"},
		},
	}}

	series, err := newTestFetcher(t, client).Fetch(context.Background(), "PTT")
	require.NoError(t, err)

	require.Len(t, series.Bars, 2, "bar with NaN close is dropped")
	assert.Nil(t, series.Bars[0].Volume, "non-finite volume becomes absent")
	require.NotNil(t, series.Bars[1].Volume)
	assert.Equal(t, 1000.0, *series.Bars[1].Volume)

	assert.NotContains(t, series.Metadata, "market_cap")
	assert.Equal(t, 12.5, series.Metadata["pe_ratio"])
	nested := series.Metadata["nested"].(map[string]interface{})
	assert.NotContains(t, nested, "beta")
	assert.Equal(t, "PTT PCL", nested["name"])
}

func TestFetchEmptyResponse(t *testing.T) {
	client := &stubClient{series: &ProviderSeries{Symbol: "PTT"}}

	_, err := newTestFetcher(t, client).Fetch(context.Background(), "PTT")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchEmpty, fe.Kind)
	assert.False(t, fe.Retryable)
}

func TestFetchPropagatesClientError(t *testing.T) {
	cause := domain.NewFetchError(domain.FetchRateLimit, "PTT", errors.New("429"))
	client := &stubClient{err: cause}

	_, err := newTestFetcher(t, client).Fetch(context.Background(), "PTT")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchRateLimit, fe.Kind)
	assert.True(t, fe.Retryable)
}

func TestFetchAllBarsUnusable(t *testing.T) {
	client := &stubClient{series: &ProviderSeries{
		Symbol: "PTT",
		Bars: []ProviderBar{
			{Date: "2026-08-19", Open: math.NaN(), High: 36, Low: 34, Close: 35, Volume: 900},
		},
	}}

	_, err := newTestFetcher(t, client).Fetch(context.Background(), "PTT")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchEmpty, fe.Kind)
}
