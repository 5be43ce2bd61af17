package repository

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// DerivedRepository persists the three derived-analytics tables. Every write
// is an idempotent upsert on the natural composite key; the temporal
// prerequisite (raw row before derived row) is enforced by the worker and the
// controller barrier, not here.
type DerivedRepository struct {
	db    *sql.DB
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewDerivedRepository creates a new derived analytics repository
func NewDerivedRepository(db *sql.DB, clock *marketclock.Clock, log zerolog.Logger) *DerivedRepository {
	return &DerivedRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "derived").Logger(),
	}
}

// StoreIndicators upserts one day's indicators for a symbol.
func (r *DerivedRepository) StoreIndicators(symbolID int64, row *domain.IndicatorRow) error {
	res, err := r.db.Exec(`
		INSERT INTO `+TableDailyIndicators+`
			(symbol, date, symbol_id, open, high, low, close, volume,
			 sma20, sma50, sma200, rsi14, macd, macd_signal, macd_hist,
			 bollinger_upper, bollinger_middle, bollinger_lower,
			 atr14, atr_pct, vwap, price_to_vwap, volume_sma20, volume_ratio,
			 uncertainty, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			symbol_id = excluded.symbol_id,
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume,
			sma20 = excluded.sma20, sma50 = excluded.sma50, sma200 = excluded.sma200,
			rsi14 = excluded.rsi14,
			macd = excluded.macd, macd_signal = excluded.macd_signal, macd_hist = excluded.macd_hist,
			bollinger_upper = excluded.bollinger_upper,
			bollinger_middle = excluded.bollinger_middle,
			bollinger_lower = excluded.bollinger_lower,
			atr14 = excluded.atr14, atr_pct = excluded.atr_pct,
			vwap = excluded.vwap, price_to_vwap = excluded.price_to_vwap,
			volume_sma20 = excluded.volume_sma20, volume_ratio = excluded.volume_ratio,
			uncertainty = excluded.uncertainty,
			computed_at = excluded.computed_at
	`,
		row.Symbol, row.Date, symbolID,
		row.Open, row.High, row.Low, row.Close, row.Volume,
		row.SMA20, row.SMA50, row.SMA200, row.RSI14,
		row.MACD, row.MACDSignal, row.MACDHist,
		row.BollingerUpper, row.BollingerMiddle, row.BollingerLower,
		row.ATR14, row.ATRPct, row.VWAP, row.PriceToVWAP,
		row.VolumeSMA20, row.VolumeRatio, row.Uncertainty,
		r.clock.FormatTimestamp(r.clock.Now()),
	)
	if err != nil {
		return classifyWriteErr(TableDailyIndicators, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("store indicators", TableDailyIndicators, affected)
}

// StorePercentiles upserts one day's percentile statistics for a symbol.
func (r *DerivedRepository) StorePercentiles(symbolID int64, row *domain.PercentileRow) error {
	res, err := r.db.Exec(`
		INSERT INTO `+TableIndicatorPercentiles+`
			(symbol, date, lookback_days, symbol_id,
			 rsi_rank, atr_pct_rank, volume_ratio_rank, uncertainty_rank,
			 rsi_above_70_freq, rsi_below_30_freq, close_above_sma200_freq, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date, lookback_days) DO UPDATE SET
			symbol_id = excluded.symbol_id,
			rsi_rank = excluded.rsi_rank,
			atr_pct_rank = excluded.atr_pct_rank,
			volume_ratio_rank = excluded.volume_ratio_rank,
			uncertainty_rank = excluded.uncertainty_rank,
			rsi_above_70_freq = excluded.rsi_above_70_freq,
			rsi_below_30_freq = excluded.rsi_below_30_freq,
			close_above_sma200_freq = excluded.close_above_sma200_freq,
			computed_at = excluded.computed_at
	`,
		row.Symbol, row.Date, row.LookbackDays, symbolID,
		row.RSIRank, row.ATRPctRank, row.VolumeRatioRank, row.UncertaintyRank,
		row.RSIAbove70Freq, row.RSIBelow30Freq, row.CloseAboveSMA200Freq,
		r.clock.FormatTimestamp(r.clock.Now()),
	)
	if err != nil {
		return classifyWriteErr(TableIndicatorPercentiles, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("store percentiles", TableIndicatorPercentiles, affected)
}

// StoreComparatives upserts one day's comparative features for a symbol.
func (r *DerivedRepository) StoreComparatives(symbolID int64, row *domain.ComparativeRow) error {
	res, err := r.db.Exec(`
		INSERT INTO `+TableComparativeFeatures+`
			(symbol, date, symbol_id,
			 return_daily, return_weekly, return_monthly, return_ytd,
			 volatility_30, volatility_90, sharpe_30, sharpe_90,
			 max_drawdown_30, max_drawdown_90, relative_strength, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			symbol_id = excluded.symbol_id,
			return_daily = excluded.return_daily,
			return_weekly = excluded.return_weekly,
			return_monthly = excluded.return_monthly,
			return_ytd = excluded.return_ytd,
			volatility_30 = excluded.volatility_30,
			volatility_90 = excluded.volatility_90,
			sharpe_30 = excluded.sharpe_30,
			sharpe_90 = excluded.sharpe_90,
			max_drawdown_30 = excluded.max_drawdown_30,
			max_drawdown_90 = excluded.max_drawdown_90,
			relative_strength = excluded.relative_strength,
			computed_at = excluded.computed_at
	`,
		row.Symbol, row.Date, symbolID,
		row.ReturnDaily, row.ReturnWeekly, row.ReturnMonthly, row.ReturnYTD,
		row.Volatility30, row.Volatility90, row.Sharpe30, row.Sharpe90,
		row.MaxDrawdown30, row.MaxDrawdown90, row.RelativeStrength,
		r.clock.FormatTimestamp(r.clock.Now()),
	)
	if err != nil {
		return classifyWriteErr(TableComparativeFeatures, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("store comparatives", TableComparativeFeatures, affected)
}

// GetIndicators reads one indicator row, used by rankings and tests.
func (r *DerivedRepository) GetIndicators(symbol, date string) (*domain.IndicatorRow, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume,
		       sma20, sma50, sma200, rsi14, macd, macd_signal, macd_hist,
		       bollinger_upper, bollinger_middle, bollinger_lower,
		       atr14, atr_pct, vwap, price_to_vwap, volume_sma20, volume_ratio, uncertainty
		FROM ` + TableDailyIndicators + `
		WHERE symbol = ? AND date = ?
	`

	var row domain.IndicatorRow
	err := r.db.QueryRow(query, symbol, date).Scan(
		&row.Symbol, &row.Date, &row.Open, &row.High, &row.Low, &row.Close, &row.Volume,
		&row.SMA20, &row.SMA50, &row.SMA200, &row.RSI14,
		&row.MACD, &row.MACDSignal, &row.MACDHist,
		&row.BollingerUpper, &row.BollingerMiddle, &row.BollingerLower,
		&row.ATR14, &row.ATRPct, &row.VWAP, &row.PriceToVWAP,
		&row.VolumeSMA20, &row.VolumeRatio, &row.Uncertainty,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("indicators (%s, %s): %w", symbol, date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators (%s, %s): %w", symbol, date, err)
	}

	return &row, nil
}

// RankingEntry is one row of a rankings query.
type RankingEntry struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

// rankingColumns whitelists the metric names the rankings endpoint accepts and
// maps them to (table, column, sort order). Only these trusted values are
// ever interpolated.
var rankingColumns = map[string]struct {
	table  string
	column string
	desc   bool
}{
	"rsi":             {TableDailyIndicators, "rsi14", true},
	"uncertainty":     {TableDailyIndicators, "uncertainty", true},
	"volume_ratio":    {TableDailyIndicators, "volume_ratio", true},
	"atr_pct":         {TableDailyIndicators, "atr_pct", true},
	"return_daily":    {TableComparativeFeatures, "return_daily", true},
	"return_monthly":  {TableComparativeFeatures, "return_monthly", true},
	"return_ytd":      {TableComparativeFeatures, "return_ytd", true},
	"sharpe_90":       {TableComparativeFeatures, "sharpe_90", true},
	"max_drawdown_90": {TableComparativeFeatures, "max_drawdown_90", false},
}

// Rankings returns the top-K symbols by a precomputed metric on a business date.
// Unknown metrics fail with ErrNotFound rather than guessing a column.
func (r *DerivedRepository) Rankings(metric, date string, limit int) ([]RankingEntry, error) {
	col, ok := rankingColumns[metric]
	if !ok {
		return nil, fmt.Errorf("ranking metric %q: %w", metric, domain.ErrNotFound)
	}

	order := "ASC"
	if col.desc {
		order = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT symbol, %s FROM %s
		WHERE date = ? AND %s IS NOT NULL
		ORDER BY %s %s
		LIMIT ?
	`, col.column, col.table, col.column, col.column, order)

	rows, err := r.db.Query(query, date, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings for %s: %w", metric, err)
	}
	defer rows.Close()

	var entries []RankingEntry
	for rows.Next() {
		var e RankingEntry
		if err := rows.Scan(&e.Symbol, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan ranking entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rankings: %w", err)
	}

	return entries, nil
}

// CountForDate returns per-table derived row counts for a business date.
// The controller logs these in the run summary.
func (r *DerivedRepository) CountForDate(date string) (indicators, percentiles, comparatives int, err error) {
	if err = r.db.QueryRow("SELECT COUNT(*) FROM "+TableDailyIndicators+" WHERE date = ?", date).Scan(&indicators); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count indicators: %w", err)
	}
	if err = r.db.QueryRow("SELECT COUNT(*) FROM "+TableIndicatorPercentiles+" WHERE date = ?", date).Scan(&percentiles); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count percentiles: %w", err)
	}
	if err = r.db.QueryRow("SELECT COUNT(*) FROM "+TableComparativeFeatures+" WHERE date = ?", date).Scan(&comparatives); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count comparatives: %w", err)
	}
	return indicators, percentiles, comparatives, nil
}
