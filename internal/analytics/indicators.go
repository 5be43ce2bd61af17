package analytics

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// Standard indicator periods. These match the windows the artifact payload
// and ranking surfaces are built around.
const (
	smaShort   = 20
	smaMid     = 50
	smaLong    = 200
	rsiPeriod  = 14
	atrPeriod  = 14
	vwapWindow = 20

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9

	bbandsPeriod = 20
	bbandsStdDev = 2.0
)

// ComputeIndicators computes one IndicatorRow per bar. Fields whose trailing
// window is not yet full are nil rather than zero, so a half-warm SMA200
// never masquerades as a real value.
func ComputeIndicators(symbol string, bars []domain.DailyBar) []domain.IndicatorRow {
	n := len(bars)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	sma20 := smaSeries(closes, smaShort)
	sma50 := smaSeries(closes, smaMid)
	sma200 := smaSeries(closes, smaLong)
	rsi := rsiSeries(closes, rsiPeriod)
	macd, signal, hist := macdSeries(closes)
	bbUpper, bbMiddle, bbLower := bbandsSeries(closes)
	atr := atrSeries(highs, lows, closes, atrPeriod)
	volSMA, volRatio := volumeSeries(bars, smaShort)
	vwap := vwapSeries(bars, vwapWindow)

	rows := make([]domain.IndicatorRow, n)
	for i, b := range bars {
		row := domain.IndicatorRow{
			Symbol: symbol,
			Date:   b.Date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,

			SMA20:  sma20[i],
			SMA50:  sma50[i],
			SMA200: sma200[i],
			RSI14:  rsi[i],

			MACD:       macd[i],
			MACDSignal: signal[i],
			MACDHist:   hist[i],

			BollingerUpper:  bbUpper[i],
			BollingerMiddle: bbMiddle[i],
			BollingerLower:  bbLower[i],

			ATR14: atr[i],

			VWAP:        vwap[i],
			VolumeSMA20: volSMA[i],
			VolumeRatio: volRatio[i],
		}

		if row.ATR14 != nil && b.Close != 0 {
			atrPct := *row.ATR14 / b.Close * 100
			row.ATRPct = &atrPct
		}
		if row.VWAP != nil && *row.VWAP != 0 {
			dist := (b.Close - *row.VWAP) / *row.VWAP * 100
			row.PriceToVWAP = &dist
		}
		row.Uncertainty = uncertaintyScore(&row)

		rows[i] = row
	}

	return rows
}

// smaSeries wraps talib.Sma with nil in the warmup region.
func smaSeries(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if len(closes) < period {
		return out
	}
	sma := talib.Sma(closes, period)
	for i := period - 1; i < len(sma); i++ {
		out[i] = ptrIfFinite(sma[i])
	}
	return out
}

func rsiSeries(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if len(closes) < period+1 {
		return out
	}
	rsi := talib.Rsi(closes, period)
	for i := period; i < len(rsi); i++ {
		out[i] = ptrIfFinite(rsi[i])
	}
	return out
}

func macdSeries(closes []float64) (macd, signal, hist []*float64) {
	n := len(closes)
	macd = make([]*float64, n)
	signal = make([]*float64, n)
	hist = make([]*float64, n)

	// MACD needs the slow EMA plus the signal EMA to warm up.
	warmup := macdSlow + macdSignal - 1
	if n < warmup {
		return macd, signal, hist
	}

	m, s, h := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	for i := warmup - 1; i < n; i++ {
		macd[i] = ptrIfFinite(m[i])
		signal[i] = ptrIfFinite(s[i])
		hist[i] = ptrIfFinite(h[i])
	}
	return macd, signal, hist
}

func bbandsSeries(closes []float64) (upper, middle, lower []*float64) {
	n := len(closes)
	upper = make([]*float64, n)
	middle = make([]*float64, n)
	lower = make([]*float64, n)
	if n < bbandsPeriod {
		return upper, middle, lower
	}

	u, m, l := talib.BBands(closes, bbandsPeriod, bbandsStdDev, bbandsStdDev, 0)
	for i := bbandsPeriod - 1; i < n; i++ {
		upper[i] = ptrIfFinite(u[i])
		middle[i] = ptrIfFinite(m[i])
		lower[i] = ptrIfFinite(l[i])
	}
	return upper, middle, lower
}

func atrSeries(highs, lows, closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if len(closes) < period+1 {
		return out
	}
	atr := talib.Atr(highs, lows, closes, period)
	for i := period; i < len(atr); i++ {
		out[i] = ptrIfFinite(atr[i])
	}
	return out
}

// volumeSeries computes the trailing volume SMA and the ratio of the day's
// volume to it. Days with absent volume contribute nothing and get nil.
func volumeSeries(bars []domain.DailyBar, period int) (volSMA, volRatio []*float64) {
	n := len(bars)
	volSMA = make([]*float64, n)
	volRatio = make([]*float64, n)

	for i := range bars {
		if i < period-1 {
			continue
		}
		sum := 0.0
		complete := true
		for j := i - period + 1; j <= i; j++ {
			if bars[j].Volume == nil {
				complete = false
				break
			}
			sum += *bars[j].Volume
		}
		if !complete {
			continue
		}
		avg := sum / float64(period)
		volSMA[i] = &avg
		if avg != 0 && bars[i].Volume != nil {
			ratio := *bars[i].Volume / avg
			volRatio[i] = &ratio
		}
	}
	return volSMA, volRatio
}

// vwapSeries computes a rolling volume-weighted average of the typical price.
// Windows containing a bar with absent volume yield nil.
func vwapSeries(bars []domain.DailyBar, window int) []*float64 {
	out := make([]*float64, len(bars))
	for i := range bars {
		if i < window-1 {
			continue
		}
		var pv, vol float64
		complete := true
		for j := i - window + 1; j <= i; j++ {
			if bars[j].Volume == nil {
				complete = false
				break
			}
			typical := (bars[j].High + bars[j].Low + bars[j].Close) / 3
			pv += typical * *bars[j].Volume
			vol += *bars[j].Volume
		}
		if !complete || vol == 0 {
			continue
		}
		v := pv / vol
		out[i] = &v
	}
	return out
}

// uncertaintyScore folds volatility, band width, and volume anomaly into a
// single bounded 0-100 score. Higher means the day's price action is harder
// to trust. Nil when the volatility inputs are not warm yet.
func uncertaintyScore(row *domain.IndicatorRow) *float64 {
	if row.ATRPct == nil || row.BollingerUpper == nil || row.BollingerMiddle == nil ||
		row.BollingerLower == nil || *row.BollingerMiddle == 0 {
		return nil
	}

	// ATR% of 4 or more saturates the volatility component.
	volComponent := math.Min(*row.ATRPct*10, 40)

	bandWidthPct := (*row.BollingerUpper - *row.BollingerLower) / *row.BollingerMiddle * 100
	bandComponent := math.Min(bandWidthPct*2, 30)

	volumeComponent := 0.0
	if row.VolumeRatio != nil {
		volumeComponent = math.Min(math.Abs(*row.VolumeRatio-1)*25, 30)
	}

	score := volComponent + bandComponent + volumeComponent
	if score > 100 {
		score = 100
	}
	return &score
}
