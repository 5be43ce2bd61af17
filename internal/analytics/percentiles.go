package analytics

import (
	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// ComputePercentiles ranks the latest day's indicator values against their
// own trailing history. history is ascending by date and must end with the
// row being ranked; lookbackDays bounds the window. Fields rank nil when the
// underlying indicator is absent or the window is too small.
func ComputePercentiles(symbol, date string, lookbackDays int, history []domain.IndicatorRow) *domain.PercentileRow {
	if len(history) == 0 {
		return nil
	}

	window := history
	if len(window) > lookbackDays {
		window = window[len(window)-lookbackDays:]
	}
	latest := window[len(window)-1]

	row := &domain.PercentileRow{
		Symbol:       symbol,
		Date:         date,
		LookbackDays: lookbackDays,
	}

	row.RSIRank = rankField(latest.RSI14, window, func(r *domain.IndicatorRow) *float64 { return r.RSI14 })
	row.ATRPctRank = rankField(latest.ATRPct, window, func(r *domain.IndicatorRow) *float64 { return r.ATRPct })
	row.VolumeRatioRank = rankField(latest.VolumeRatio, window, func(r *domain.IndicatorRow) *float64 { return r.VolumeRatio })
	row.UncertaintyRank = rankField(latest.Uncertainty, window, func(r *domain.IndicatorRow) *float64 { return r.Uncertainty })

	row.RSIAbove70Freq = thresholdFreq(window, func(r *domain.IndicatorRow) *bool {
		if r.RSI14 == nil {
			return nil
		}
		v := *r.RSI14 > rsiOverbought
		return &v
	})
	row.RSIBelow30Freq = thresholdFreq(window, func(r *domain.IndicatorRow) *bool {
		if r.RSI14 == nil {
			return nil
		}
		v := *r.RSI14 < rsiOversold
		return &v
	})
	row.CloseAboveSMA200Freq = thresholdFreq(window, func(r *domain.IndicatorRow) *bool {
		if r.SMA200 == nil {
			return nil
		}
		v := r.Close > *r.SMA200
		return &v
	})

	return row
}

// rankField collects the non-nil values of one indicator across the window
// and ranks the latest value within them.
func rankField(latest *float64, window []domain.IndicatorRow, get func(*domain.IndicatorRow) *float64) *float64 {
	if latest == nil {
		return nil
	}
	values := make([]float64, 0, len(window))
	for i := range window {
		if v := get(&window[i]); v != nil {
			values = append(values, *v)
		}
	}
	return PercentileRank(*latest, values)
}

// thresholdFreq returns the fraction of window days on which the predicate
// held, ignoring days where the input indicator was absent. Nil when too few
// days had the indicator at all.
func thresholdFreq(window []domain.IndicatorRow, pred func(*domain.IndicatorRow) *bool) *float64 {
	hits, total := 0, 0
	for i := range window {
		v := pred(&window[i])
		if v == nil {
			continue
		}
		total++
		if *v {
			hits++
		}
	}
	if total < minPercentileWindow {
		return nil
	}
	freq := float64(hits) / float64(total)
	return &freq
}
