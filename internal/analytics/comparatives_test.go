package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	apptesting "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

func TestComputeComparatives(t *testing.T) {
	end := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	bars := apptesting.Bars(300, end)
	refBars := apptesting.Bars(300, end)

	row := ComputeComparatives("PTT", "2026-08-21", bars, refBars)
	require.NotNil(t, row)

	require.NotNil(t, row.ReturnDaily)
	require.NotNil(t, row.ReturnWeekly)
	require.NotNil(t, row.ReturnMonthly)
	require.NotNil(t, row.ReturnYTD, "300 days reaches into the prior calendar year")

	require.NotNil(t, row.Volatility30)
	require.NotNil(t, row.Volatility90)
	assert.Greater(t, *row.Volatility30, 0.0)

	require.NotNil(t, row.Sharpe90)
	require.NotNil(t, row.MaxDrawdown90)
	assert.GreaterOrEqual(t, *row.MaxDrawdown90, 0.0)

	require.NotNil(t, row.RelativeStrength)
	assert.InDelta(t, 0.0, *row.RelativeStrength, 1e-9, "identical series have zero relative strength")
}

func TestComputeComparativesShortSeries(t *testing.T) {
	end := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	bars := apptesting.Bars(10, end)

	row := ComputeComparatives("PTT", "2026-08-21", bars, nil)
	require.NotNil(t, row)

	require.NotNil(t, row.ReturnDaily)
	require.NotNil(t, row.ReturnWeekly)
	assert.Nil(t, row.ReturnMonthly, "10 days cannot produce a 21-day return")
	assert.Nil(t, row.Volatility30)
	assert.Nil(t, row.Sharpe90)
	assert.Nil(t, row.RelativeStrength, "no reference series given")
}

func TestComputeComparativesMalformedDate(t *testing.T) {
	bars := []domain.DailyBar{
		{Date: "2025-12-30", Close: 100},
		{Date: "?", Close: 105},
	}

	row := ComputeComparatives("PTT", "2026-08-21", bars, nil)
	require.NotNil(t, row)
	assert.Nil(t, row.ReturnYTD, "a date too short to carry a year yields no YTD return")
}

func TestComputeComparativesKnownDrawdown(t *testing.T) {
	bars := []domain.DailyBar{
		{Date: "2026-08-11", Close: 100},
		{Date: "2026-08-12", Close: 110},
		{Date: "2026-08-13", Close: 88},
		{Date: "2026-08-14", Close: 99},
	}

	row := ComputeComparatives("PTT", "2026-08-14", bars, nil)
	require.NotNil(t, row)
	require.NotNil(t, row.MaxDrawdown30)
	assert.InDelta(t, 0.2, *row.MaxDrawdown30, 1e-9, "110 to 88 is a 20% drawdown")
}

func TestPercentileRank(t *testing.T) {
	window := make([]float64, 100)
	for i := range window {
		window[i] = float64(i + 1)
	}

	rank := PercentileRank(50, window)
	require.NotNil(t, rank)
	assert.InDelta(t, 50.0, *rank, 1e-9)

	top := PercentileRank(100, window)
	require.NotNil(t, top)
	assert.InDelta(t, 100.0, *top, 1e-9)

	assert.Nil(t, PercentileRank(5, window[:10]), "window below minimum yields nil")
}

func TestComputePercentiles(t *testing.T) {
	end := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	rows := ComputeIndicators("PTT", apptesting.Bars(250, end))

	p := ComputePercentiles("PTT", "2026-08-21", 90, rows)
	require.NotNil(t, p)
	assert.Equal(t, 90, p.LookbackDays)

	require.NotNil(t, p.RSIRank)
	assert.GreaterOrEqual(t, *p.RSIRank, 0.0)
	assert.LessOrEqual(t, *p.RSIRank, 100.0)

	require.NotNil(t, p.ATRPctRank)
	require.NotNil(t, p.UncertaintyRank)

	require.NotNil(t, p.RSIAbove70Freq)
	require.NotNil(t, p.RSIBelow30Freq)
	assert.GreaterOrEqual(t, *p.RSIAbove70Freq, 0.0)
	assert.LessOrEqual(t, *p.RSIAbove70Freq, 1.0)

	require.NotNil(t, p.CloseAboveSMA200Freq)
}

func TestComputePercentilesColdSeries(t *testing.T) {
	end := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	rows := ComputeIndicators("PTT", apptesting.Bars(15, end))

	p := ComputePercentiles("PTT", "2026-08-21", 90, rows)
	require.NotNil(t, p)
	assert.Nil(t, p.RSIRank, "too few warm RSI values to rank")
	assert.Nil(t, p.RSIAbove70Freq)
}
