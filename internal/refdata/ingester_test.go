package refdata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `trade_date,source_code,symbol,metric_code,value_type,value
2026-08-21,BOT,PTT,fx_thb_usd,numeric,35.42
2026-08-21,BOT,PTT,rating,text,stable
2026-08-21,SETTRADE,AOT,consensus_target,numeric,71.5
`

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(sampleCSV), "refdata/2026-08-21/bot.csv")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, "2026-08-21", first.TradeDate)
	assert.Equal(t, "BOT", first.SourceCode)
	assert.Equal(t, "PTT", first.Symbol)
	assert.Equal(t, "fx_thb_usd", first.MetricCode)
	require.NotNil(t, first.NumericValue)
	assert.InDelta(t, 35.42, *first.NumericValue, 1e-9)
	assert.Nil(t, first.TextValue)
	assert.Equal(t, "refdata/2026-08-21/bot.csv", first.SourceObject)

	second := rows[1]
	require.NotNil(t, second.TextValue)
	assert.Equal(t, "stable", *second.TextValue)
	assert.Nil(t, second.NumericValue)
}

func TestParseCSVRejectsBadHeader(t *testing.T) {
	bad := "date,source,symbol,metric,type,value\n2026-08-21,BOT,PTT,x,numeric,1\n"
	_, err := ParseCSV(strings.NewReader(bad), "f.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected header")
}

func TestParseCSVRejectsBadNumeric(t *testing.T) {
	// ParseFloat accepts the NaN/Inf spellings, but a non-finite value must
	// never reach the database
	for _, value := range []string{"abc", "NaN", "Inf", "+Inf", "-Inf", "nan"} {
		bad := "trade_date,source_code,symbol,metric_code,value_type,value\n2026-08-21,BOT,PTT,x,numeric," + value + "\n"
		_, err := ParseCSV(strings.NewReader(bad), "f.csv")
		require.Error(t, err, "value %q must be rejected", value)
		assert.Contains(t, err.Error(), "bad numeric value")
	}
}

func TestParseCSVRejectsUnknownValueType(t *testing.T) {
	bad := "trade_date,source_code,symbol,metric_code,value_type,value\n2026-08-21,BOT,PTT,x,blob,zz\n"
	_, err := ParseCSV(strings.NewReader(bad), "f.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown value_type")
}

func TestParseCSVRejectsEmptyKeyColumn(t *testing.T) {
	bad := "trade_date,source_code,symbol,metric_code,value_type,value\n2026-08-21,,PTT,x,numeric,1\n"
	_, err := ParseCSV(strings.NewReader(bad), "f.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty key column")
}

func TestParseCSVUppercasesSymbol(t *testing.T) {
	data := "trade_date,source_code,symbol,metric_code,value_type,value\n2026-08-21,BOT,ptt,x,numeric,1\n"
	rows, err := ParseCSV(strings.NewReader(data), "f.csv")
	require.NoError(t, err)
	assert.Equal(t, "PTT", rows[0].Symbol)
}
