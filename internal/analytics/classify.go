package analytics

import (
	"fmt"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// TrendState classifies price position relative to the moving-average stack.
type TrendState string

const (
	TrendUp      TrendState = "uptrend"
	TrendDown    TrendState = "downtrend"
	TrendNeutral TrendState = "neutral"
	TrendUnknown TrendState = "unknown"
)

// MomentumDirection is the directional read of the momentum signals.
type MomentumDirection string

const (
	DirectionBullish MomentumDirection = "bullish"
	DirectionBearish MomentumDirection = "bearish"
	DirectionNeutral MomentumDirection = "neutral"
	DirectionUnknown MomentumDirection = "unknown"
)

// MomentumStrength grades how unanimously the signals agree.
type MomentumStrength string

const (
	StrengthStrong   MomentumStrength = "strong"
	StrengthModerate MomentumStrength = "moderate"
	StrengthWeak     MomentumStrength = "weak"
)

// MomentumState is the (direction, strength) pair derived from the
// moving-average stack, RSI, and the MACD histogram.
type MomentumState struct {
	Direction MomentumDirection `json:"direction"`
	Strength  MomentumStrength  `json:"strength"`
}

func (m MomentumState) String() string {
	switch m.Direction {
	case DirectionBullish, DirectionBearish:
		return fmt.Sprintf("%s %s", m.Strength, m.Direction)
	default:
		return string(m.Direction)
	}
}

// VolumeState classifies the day's volume against its trailing average.
type VolumeState string

const (
	VolumeElevated  VolumeState = "elevated"
	VolumeDepressed VolumeState = "depressed"
	VolumeNormal    VolumeState = "normal"
	VolumeUnknown   VolumeState = "unknown"
)

// RiskRegime classifies the uncertainty score, widened by ATR%, into coarse
// bands front-ends can color-code.
type RiskRegime string

const (
	RiskLow      RiskRegime = "low"
	RiskModerate RiskRegime = "moderate"
	RiskHigh     RiskRegime = "high"
	RiskExtreme  RiskRegime = "extreme"
	RiskUnknown  RiskRegime = "unknown"
)

// Classification thresholds. Fixed constants, deliberately in code rather
// than configuration.
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
	rsiBullish    = 55.0
	rsiBearish    = 45.0

	volumeElevatedRatio  = 1.5
	volumeDepressedRatio = 0.5

	riskModerateUncertainty = 35.0
	riskHighUncertainty     = 65.0
	riskExtremeUncertainty  = 85.0
	riskWideRangeATRPct     = 4.0
)

// Classification is the qualitative read of one day's indicators, embedded
// in the artifact payload and used to assemble the narrative.
type Classification struct {
	Trend    TrendState    `json:"trend"`
	Momentum MomentumState `json:"momentum"`
	Volume   VolumeState   `json:"volume"`
	Risk     RiskRegime    `json:"risk"`
}

// Classify derives the qualitative states from one indicator row. Absent
// inputs classify as unknown rather than defaulting to neutral.
func Classify(row *domain.IndicatorRow) Classification {
	return Classification{
		Trend:    classifyTrend(row),
		Momentum: classifyMomentum(row),
		Volume:   classifyVolume(row.VolumeRatio),
		Risk:     classifyRisk(row.Uncertainty, row.ATRPct),
	}
}

func classifyTrend(row *domain.IndicatorRow) TrendState {
	if row.SMA20 == nil || row.SMA50 == nil {
		return TrendUnknown
	}
	switch {
	case row.Close > *row.SMA20 && *row.SMA20 > *row.SMA50:
		return TrendUp
	case row.Close < *row.SMA20 && *row.SMA20 < *row.SMA50:
		return TrendDown
	default:
		return TrendNeutral
	}
}

// classifyMomentum polls three signals: RSI band, the moving-average stack,
// and the sign of the MACD histogram. Direction follows the majority of the
// signals that are present; strength grades how unanimously they agree.
func classifyMomentum(row *domain.IndicatorRow) MomentumState {
	bullish, bearish, total := 0, 0, 0

	if row.RSI14 != nil {
		total++
		switch {
		case *row.RSI14 >= rsiBullish:
			bullish++
		case *row.RSI14 <= rsiBearish:
			bearish++
		}
	}
	if row.SMA20 != nil && row.SMA50 != nil {
		total++
		switch {
		case row.Close > *row.SMA20 && *row.SMA20 > *row.SMA50:
			bullish++
		case row.Close < *row.SMA20 && *row.SMA20 < *row.SMA50:
			bearish++
		}
	}
	if row.MACDHist != nil {
		total++
		switch {
		case *row.MACDHist > 0:
			bullish++
		case *row.MACDHist < 0:
			bearish++
		}
	}

	if total == 0 {
		return MomentumState{Direction: DirectionUnknown, Strength: StrengthWeak}
	}

	state := MomentumState{Direction: DirectionNeutral, Strength: StrengthWeak}
	agree := 0
	switch {
	case bullish > bearish:
		state.Direction = DirectionBullish
		agree = bullish
	case bearish > bullish:
		state.Direction = DirectionBearish
		agree = bearish
	default:
		return state
	}

	switch {
	case agree == total && total >= 2:
		state.Strength = StrengthStrong
	case agree*2 > total:
		state.Strength = StrengthModerate
	}
	return state
}

func classifyVolume(ratio *float64) VolumeState {
	if ratio == nil {
		return VolumeUnknown
	}
	switch {
	case *ratio >= volumeElevatedRatio:
		return VolumeElevated
	case *ratio <= volumeDepressedRatio:
		return VolumeDepressed
	default:
		return VolumeNormal
	}
}

// classifyRisk bands the uncertainty score, then escalates one band when the
// daily range (ATR%) is unusually wide.
func classifyRisk(uncertainty, atrPct *float64) RiskRegime {
	if uncertainty == nil {
		return RiskUnknown
	}

	var regime RiskRegime
	switch {
	case *uncertainty >= riskExtremeUncertainty:
		regime = RiskExtreme
	case *uncertainty >= riskHighUncertainty:
		regime = RiskHigh
	case *uncertainty >= riskModerateUncertainty:
		regime = RiskModerate
	default:
		regime = RiskLow
	}

	if atrPct != nil && *atrPct >= riskWideRangeATRPct {
		regime = escalate(regime)
	}
	return regime
}

func escalate(r RiskRegime) RiskRegime {
	switch r {
	case RiskLow:
		return RiskModerate
	case RiskModerate:
		return RiskHigh
	default:
		return RiskExtreme
	}
}

// Narrative renders a short human-readable summary of the classification.
// Kept deliberately plain; front-ends do their own formatting.
func Narrative(symbol, date string, c Classification, row *domain.IndicatorRow) string {
	s := fmt.Sprintf("%s closed at %.2f on %s. Trend: %s, momentum: %s, volume: %s, risk: %s.",
		symbol, row.Close, date, c.Trend, c.Momentum, c.Volume, c.Risk)
	if row.RSI14 != nil {
		s += fmt.Sprintf(" RSI(14) %.1f.", *row.RSI14)
	}
	if row.ATRPct != nil {
		s += fmt.Sprintf(" Daily range roughly %.1f%% of price.", *row.ATRPct)
	}
	return s
}
