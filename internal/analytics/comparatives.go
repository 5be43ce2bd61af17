package analytics

import (
	"math"
	"strings"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

const riskFreeRate = 0.0

// ComputeComparatives computes return, risk, and relative-strength features
// for the last bar of the series. refBars is the reference index history used
// for relative strength; pass nil when unavailable and the field stays nil.
func ComputeComparatives(symbol, date string, bars, refBars []domain.DailyBar) *domain.ComparativeRow {
	if len(bars) == 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	row := &domain.ComparativeRow{
		Symbol: symbol,
		Date:   date,
	}

	row.ReturnDaily = trailingReturn(closes, 1)
	row.ReturnWeekly = trailingReturn(closes, 5)
	row.ReturnMonthly = trailingReturn(closes, 21)
	row.ReturnYTD = ytdReturn(bars)

	row.Volatility30 = windowVolatility(closes, 30)
	row.Volatility90 = windowVolatility(closes, 90)

	row.Sharpe30 = windowSharpe(closes, 30)
	row.Sharpe90 = windowSharpe(closes, 90)

	row.MaxDrawdown30 = windowMaxDrawdown(closes, 30)
	row.MaxDrawdown90 = windowMaxDrawdown(closes, 90)

	if len(refBars) > 0 {
		refCloses := make([]float64, len(refBars))
		for i, b := range refBars {
			refCloses[i] = b.Close
		}
		own := trailingReturn(closes, 90)
		ref := trailingReturn(refCloses, 90)
		if own != nil && ref != nil {
			rs := *own - *ref
			row.RelativeStrength = &rs
		}
	}

	return row
}

// trailingReturn is the simple return over the last n trading days, or nil
// when the series is too short.
func trailingReturn(closes []float64, days int) *float64 {
	if len(closes) < days+1 {
		return nil
	}
	start := closes[len(closes)-days-1]
	end := closes[len(closes)-1]
	if start == 0 {
		return nil
	}
	r := (end - start) / start
	return &r
}

// ytdReturn is the return from the last close of the prior calendar year.
// Nil when the series does not reach back into the prior year, or when the
// last bar's date is too short to carry a year.
func ytdReturn(bars []domain.DailyBar) *float64 {
	if len(bars) < 2 || len(bars[len(bars)-1].Date) < 4 {
		return nil
	}
	year := bars[len(bars)-1].Date[:4]

	// Last bar strictly before the current year.
	baseIdx := -1
	for i := len(bars) - 1; i >= 0; i-- {
		if !strings.HasPrefix(bars[i].Date, year) {
			baseIdx = i
			break
		}
	}
	if baseIdx < 0 || bars[baseIdx].Close == 0 {
		return nil
	}
	r := (bars[len(bars)-1].Close - bars[baseIdx].Close) / bars[baseIdx].Close
	return &r
}

func windowVolatility(closes []float64, days int) *float64 {
	if len(closes) < days+1 {
		return nil
	}
	returns := Returns(closes[len(closes)-days-1:])
	v := AnnualizedVolatility(returns)
	if !finite(v) {
		return nil
	}
	return &v
}

// windowSharpe is the annualized Sharpe ratio over the trailing window.
func windowSharpe(closes []float64, days int) *float64 {
	if len(closes) < days+1 {
		return nil
	}
	returns := Returns(closes[len(closes)-days-1:])
	if len(returns) < 2 {
		return nil
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / tradingDaysPerYear
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev * math.Sqrt(tradingDaysPerYear)
	if !finite(sharpe) {
		return nil
	}
	return &sharpe
}

// windowMaxDrawdown is the maximum peak-to-trough loss over the trailing
// window, as a positive fraction (0.25 = 25% below peak).
func windowMaxDrawdown(closes []float64, days int) *float64 {
	if len(closes) < 2 {
		return nil
	}
	window := closes
	if len(window) > days {
		window = window[len(window)-days:]
	}

	maxDrawdown := 0.0
	peak := window[0]
	for _, price := range window {
		if price > peak {
			peak = price
		}
		if peak > 0 {
			drawdown := (peak - price) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return &maxDrawdown
}
