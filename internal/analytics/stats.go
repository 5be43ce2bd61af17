// Package analytics computes the derived feature set for one symbol's price
// history: per-day technical indicators, trailing-window percentile ranks,
// and cross-sectional comparative features. Everything here is pure
// computation over in-memory series.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const tradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(tradingDaysPerYear)
}

// Returns converts prices to simple percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

// PercentileRank returns the ECDF percentile rank of value within window,
// as a percentage in [0,100], or nil when the window is too small to be
// meaningful.
func PercentileRank(value float64, window []float64) *float64 {
	if len(window) < minPercentileWindow {
		return nil
	}
	below := 0
	for _, v := range window {
		if v <= value {
			below++
		}
	}
	rank := float64(below) / float64(len(window)) * 100
	return &rank
}

// minPercentileWindow is the smallest trailing window a percentile rank is
// computed over. Below this the rank is too quantized to be useful.
const minPercentileWindow = 20

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ptrIfFinite returns &v for finite values and nil otherwise. go-talib pads
// warmup regions with zeros and can emit NaN on degenerate input.
func ptrIfFinite(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}
