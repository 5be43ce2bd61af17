package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	apptesting "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

func TestClassifyStrongUptrend(t *testing.T) {
	row := &domain.IndicatorRow{
		Close:       110,
		SMA20:       apptesting.FloatPtr(105),
		SMA50:       apptesting.FloatPtr(100),
		RSI14:       apptesting.FloatPtr(62),
		MACDHist:    apptesting.FloatPtr(0.8),
		VolumeRatio: apptesting.FloatPtr(1.0),
		Uncertainty: apptesting.FloatPtr(20),
		ATRPct:      apptesting.FloatPtr(1.5),
	}

	c := Classify(row)
	assert.Equal(t, TrendUp, c.Trend)
	assert.Equal(t, DirectionBullish, c.Momentum.Direction)
	assert.Equal(t, StrengthStrong, c.Momentum.Strength, "all three signals agree")
	assert.Equal(t, VolumeNormal, c.Volume)
	assert.Equal(t, RiskLow, c.Risk)
}

func TestClassifyBearishWithStress(t *testing.T) {
	row := &domain.IndicatorRow{
		Close:       90,
		SMA20:       apptesting.FloatPtr(95),
		SMA50:       apptesting.FloatPtr(100),
		RSI14:       apptesting.FloatPtr(25),
		MACDHist:    apptesting.FloatPtr(-1.2),
		VolumeRatio: apptesting.FloatPtr(2.1),
		Uncertainty: apptesting.FloatPtr(70),
	}

	c := Classify(row)
	assert.Equal(t, TrendDown, c.Trend)
	assert.Equal(t, DirectionBearish, c.Momentum.Direction)
	assert.Equal(t, StrengthStrong, c.Momentum.Strength)
	assert.Equal(t, VolumeElevated, c.Volume)
	assert.Equal(t, RiskHigh, c.Risk)
}

func TestClassifyMixedSignalsAreModerate(t *testing.T) {
	// MA stack bullish, MACD histogram bullish, but RSI sits in the dead zone
	row := &domain.IndicatorRow{
		Close:    110,
		SMA20:    apptesting.FloatPtr(105),
		SMA50:    apptesting.FloatPtr(100),
		RSI14:    apptesting.FloatPtr(50),
		MACDHist: apptesting.FloatPtr(0.3),
	}

	m := Classify(row).Momentum
	assert.Equal(t, DirectionBullish, m.Direction)
	assert.Equal(t, StrengthModerate, m.Strength)
}

func TestClassifyConflictingSignalsAreNeutral(t *testing.T) {
	// bullish MA stack against a bearish histogram, RSI in the dead zone: a tie
	row := &domain.IndicatorRow{
		Close:    110,
		SMA20:    apptesting.FloatPtr(105),
		SMA50:    apptesting.FloatPtr(100),
		RSI14:    apptesting.FloatPtr(50),
		MACDHist: apptesting.FloatPtr(-0.3),
	}

	m := Classify(row).Momentum
	assert.Equal(t, DirectionNeutral, m.Direction)
	assert.Equal(t, StrengthWeak, m.Strength)

	// a bearish RSI breaks the tie
	row.RSI14 = apptesting.FloatPtr(40)
	m = Classify(row).Momentum
	assert.Equal(t, DirectionBearish, m.Direction)
}

func TestClassifyMixedAveragesIsNeutralTrend(t *testing.T) {
	// price above SMA20 but averages inverted: neither a clean up nor down stack
	row := &domain.IndicatorRow{
		Close: 102,
		SMA20: apptesting.FloatPtr(100),
		SMA50: apptesting.FloatPtr(104),
	}
	assert.Equal(t, TrendNeutral, Classify(row).Trend)
}

func TestClassifyAbsentInputsAreUnknown(t *testing.T) {
	c := Classify(&domain.IndicatorRow{Close: 100})
	assert.Equal(t, TrendUnknown, c.Trend)
	assert.Equal(t, DirectionUnknown, c.Momentum.Direction)
	assert.Equal(t, VolumeUnknown, c.Volume)
	assert.Equal(t, RiskUnknown, c.Risk)
}

func TestClassifyRiskBands(t *testing.T) {
	calm := apptesting.FloatPtr(1.0)
	wide := apptesting.FloatPtr(5.0)

	assert.Equal(t, RiskLow, classifyRisk(apptesting.FloatPtr(10), calm))
	assert.Equal(t, RiskModerate, classifyRisk(apptesting.FloatPtr(35), calm))
	assert.Equal(t, RiskHigh, classifyRisk(apptesting.FloatPtr(65), calm))
	assert.Equal(t, RiskExtreme, classifyRisk(apptesting.FloatPtr(85), calm))

	// a wide daily range escalates each band by one
	assert.Equal(t, RiskModerate, classifyRisk(apptesting.FloatPtr(10), wide))
	assert.Equal(t, RiskExtreme, classifyRisk(apptesting.FloatPtr(70), wide))

	assert.Equal(t, RiskUnknown, classifyRisk(nil, wide))
}

func TestClassifyVolumeBandEdges(t *testing.T) {
	assert.Equal(t, VolumeElevated, classifyVolume(apptesting.FloatPtr(1.5)))
	assert.Equal(t, VolumeDepressed, classifyVolume(apptesting.FloatPtr(0.5)))
	assert.Equal(t, VolumeNormal, classifyVolume(apptesting.FloatPtr(1.0)))
}

func TestNarrativeMentionsStates(t *testing.T) {
	row := &domain.IndicatorRow{
		Close:  35.5,
		RSI14:  apptesting.FloatPtr(61.2),
		ATRPct: apptesting.FloatPtr(2.4),
	}
	c := Classification{
		Trend:    TrendUp,
		Momentum: MomentumState{Direction: DirectionBullish, Strength: StrengthModerate},
		Volume:   VolumeNormal,
		Risk:     RiskModerate,
	}

	s := Narrative("PTT", "2026-08-21", c, row)
	assert.Contains(t, s, "PTT closed at 35.50 on 2026-08-21")
	assert.Contains(t, s, "uptrend")
	assert.Contains(t, s, "moderate bullish")
	assert.Contains(t, s, "RSI(14) 61.2")
	assert.Contains(t, s, "2.4% of price")
}
