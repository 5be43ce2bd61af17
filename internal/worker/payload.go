package worker

import (
	"encoding/json"
	"fmt"

	"github.com/Awannaphasch2016/dr-daily-report/internal/analytics"
	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// ArtifactPayload is the structured JSON document embedded in each artifact.
// This is the contract the front-ends read; field names are part of the API.
type ArtifactPayload struct {
	Symbol       string `json:"symbol"`
	BusinessDate string `json:"business_date"`
	LastBarDate  string `json:"last_bar_date"`
	Source       string `json:"source"`
	RowCount     int    `json:"row_count"`

	Price          PayloadPrice             `json:"price"`
	Indicators     PayloadIndicators        `json:"indicators"`
	Percentiles    *PayloadPercentiles      `json:"percentiles,omitempty"`
	Comparatives   *PayloadComparatives     `json:"comparatives,omitempty"`
	Classification analytics.Classification `json:"classification"`
	RefData        []PayloadRefDatum        `json:"ref_data,omitempty"`
}

// PayloadPrice is the latest bar.
type PayloadPrice struct {
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// PayloadIndicators mirrors the latest indicator row. Absent values are
// omitted rather than zeroed.
type PayloadIndicators struct {
	SMA20  *float64 `json:"sma20,omitempty"`
	SMA50  *float64 `json:"sma50,omitempty"`
	SMA200 *float64 `json:"sma200,omitempty"`

	RSI14 *float64 `json:"rsi14,omitempty"`

	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty"`
	MACDHist   *float64 `json:"macd_hist,omitempty"`

	BollingerUpper  *float64 `json:"bollinger_upper,omitempty"`
	BollingerMiddle *float64 `json:"bollinger_middle,omitempty"`
	BollingerLower  *float64 `json:"bollinger_lower,omitempty"`

	ATR14  *float64 `json:"atr14,omitempty"`
	ATRPct *float64 `json:"atr_pct,omitempty"`

	VWAP        *float64 `json:"vwap,omitempty"`
	PriceToVWAP *float64 `json:"price_to_vwap,omitempty"`
	VolumeSMA20 *float64 `json:"volume_sma20,omitempty"`
	VolumeRatio *float64 `json:"volume_ratio,omitempty"`
	Uncertainty *float64 `json:"uncertainty,omitempty"`
}

// PayloadPercentiles mirrors the percentile row.
type PayloadPercentiles struct {
	LookbackDays int `json:"lookback_days"`

	RSIRank         *float64 `json:"rsi_rank,omitempty"`
	ATRPctRank      *float64 `json:"atr_pct_rank,omitempty"`
	VolumeRatioRank *float64 `json:"volume_ratio_rank,omitempty"`
	UncertaintyRank *float64 `json:"uncertainty_rank,omitempty"`

	RSIAbove70Freq       *float64 `json:"rsi_above_70_freq,omitempty"`
	RSIBelow30Freq       *float64 `json:"rsi_below_30_freq,omitempty"`
	CloseAboveSMA200Freq *float64 `json:"close_above_sma200_freq,omitempty"`
}

// PayloadComparatives mirrors the comparative row.
type PayloadComparatives struct {
	ReturnDaily   *float64 `json:"return_daily,omitempty"`
	ReturnWeekly  *float64 `json:"return_weekly,omitempty"`
	ReturnMonthly *float64 `json:"return_monthly,omitempty"`
	ReturnYTD     *float64 `json:"return_ytd,omitempty"`

	Volatility30 *float64 `json:"volatility_30,omitempty"`
	Volatility90 *float64 `json:"volatility_90,omitempty"`

	Sharpe30 *float64 `json:"sharpe_30,omitempty"`
	Sharpe90 *float64 `json:"sharpe_90,omitempty"`

	MaxDrawdown30 *float64 `json:"max_drawdown_30,omitempty"`
	MaxDrawdown90 *float64 `json:"max_drawdown_90,omitempty"`

	RelativeStrength *float64 `json:"relative_strength,omitempty"`
}

// PayloadRefDatum is one reference-data row attached to the artifact.
type PayloadRefDatum struct {
	SourceCode   string   `json:"source_code"`
	MetricCode   string   `json:"metric_code"`
	NumericValue *float64 `json:"numeric_value,omitempty"`
	TextValue    *string  `json:"text_value,omitempty"`
}

// BuildPayload assembles and serializes the artifact payload from the
// computed rows.
func BuildPayload(
	series *domain.RawSeries,
	latest *domain.IndicatorRow,
	percentiles *domain.PercentileRow,
	comparatives *domain.ComparativeRow,
	classification analytics.Classification,
	refData []domain.RefDataRow,
) (json.RawMessage, error) {
	p := ArtifactPayload{
		Symbol:       series.Symbol,
		BusinessDate: series.BusinessDate,
		LastBarDate:  series.LastDate,
		Source:       series.Source,
		RowCount:     series.RowCount,
		Price: PayloadPrice{
			Open:   latest.Open,
			High:   latest.High,
			Low:    latest.Low,
			Close:  latest.Close,
			Volume: latest.Volume,
		},
		Indicators: PayloadIndicators{
			SMA20:           latest.SMA20,
			SMA50:           latest.SMA50,
			SMA200:          latest.SMA200,
			RSI14:           latest.RSI14,
			MACD:            latest.MACD,
			MACDSignal:      latest.MACDSignal,
			MACDHist:        latest.MACDHist,
			BollingerUpper:  latest.BollingerUpper,
			BollingerMiddle: latest.BollingerMiddle,
			BollingerLower:  latest.BollingerLower,
			ATR14:           latest.ATR14,
			ATRPct:          latest.ATRPct,
			VWAP:            latest.VWAP,
			PriceToVWAP:     latest.PriceToVWAP,
			VolumeSMA20:     latest.VolumeSMA20,
			VolumeRatio:     latest.VolumeRatio,
			Uncertainty:     latest.Uncertainty,
		},
		Classification: classification,
	}

	if percentiles != nil {
		p.Percentiles = &PayloadPercentiles{
			LookbackDays:         percentiles.LookbackDays,
			RSIRank:              percentiles.RSIRank,
			ATRPctRank:           percentiles.ATRPctRank,
			VolumeRatioRank:      percentiles.VolumeRatioRank,
			UncertaintyRank:      percentiles.UncertaintyRank,
			RSIAbove70Freq:       percentiles.RSIAbove70Freq,
			RSIBelow30Freq:       percentiles.RSIBelow30Freq,
			CloseAboveSMA200Freq: percentiles.CloseAboveSMA200Freq,
		}
	}
	if comparatives != nil {
		p.Comparatives = &PayloadComparatives{
			ReturnDaily:      comparatives.ReturnDaily,
			ReturnWeekly:     comparatives.ReturnWeekly,
			ReturnMonthly:    comparatives.ReturnMonthly,
			ReturnYTD:        comparatives.ReturnYTD,
			Volatility30:     comparatives.Volatility30,
			Volatility90:     comparatives.Volatility90,
			Sharpe30:         comparatives.Sharpe30,
			Sharpe90:         comparatives.Sharpe90,
			MaxDrawdown30:    comparatives.MaxDrawdown30,
			MaxDrawdown90:    comparatives.MaxDrawdown90,
			RelativeStrength: comparatives.RelativeStrength,
		}
	}
	for _, r := range refData {
		p.RefData = append(p.RefData, PayloadRefDatum{
			SourceCode:   r.SourceCode,
			MetricCode:   r.MetricCode,
			NumericValue: r.NumericValue,
			TextValue:    r.TextValue,
		})
	}

	raw, err := json.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize artifact payload for %s: %w", series.Symbol, err)
	}
	return raw, nil
}
