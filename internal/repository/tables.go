// Package repository is the sole owner of the SQL surface. All table names
// live here as process-wide constants; callers never embed table-name
// literals, and every user-supplied value is bound through placeholders.
package repository

// Table names. Only these trusted constants are ever interpolated into SQL.
const (
	TableSymbols              = "symbols"
	TableSymbolAliases        = "symbol_aliases"
	TableRawSeries            = "raw_series"
	TableDailyIndicators      = "daily_indicators"
	TableIndicatorPercentiles = "indicator_percentiles"
	TableComparativeFeatures  = "comparative_features"
	TableArtifacts            = "artifacts"
	TableRefData              = "ref_data"
	TableWatchlist            = "watchlist"
	TableReportJobs           = "report_jobs"
)

// ExpectedSchema lists every (table, column) the repository writes or reads.
// The pre-deploy schema test and startup verification both run against this,
// so a missing derived column blocks deployment instead of failing mid-run.
var ExpectedSchema = map[string][]string{
	TableSymbols: {
		"id", "name", "exchange", "currency", "sector", "industry", "active",
		"created_at", "updated_at",
	},
	TableSymbolAliases: {
		"symbol_id", "alias", "alias_type", "is_primary",
	},
	TableRawSeries: {
		"symbol", "business_date", "price_history", "metadata",
		"first_date", "last_date", "row_count", "source", "fetched_at", "expires_at",
	},
	TableDailyIndicators: {
		"symbol", "date", "symbol_id", "open", "high", "low", "close", "volume",
		"sma20", "sma50", "sma200", "rsi14",
		"macd", "macd_signal", "macd_hist",
		"bollinger_upper", "bollinger_middle", "bollinger_lower",
		"atr14", "atr_pct", "vwap", "price_to_vwap",
		"volume_sma20", "volume_ratio", "uncertainty", "computed_at",
	},
	TableIndicatorPercentiles: {
		"symbol", "date", "lookback_days", "symbol_id",
		"rsi_rank", "atr_pct_rank", "volume_ratio_rank", "uncertainty_rank",
		"rsi_above_70_freq", "rsi_below_30_freq", "close_above_sma200_freq",
		"computed_at",
	},
	TableComparativeFeatures: {
		"symbol", "date", "symbol_id",
		"return_daily", "return_weekly", "return_monthly", "return_ytd",
		"volatility_30", "volatility_90", "sharpe_30", "sharpe_90",
		"max_drawdown_30", "max_drawdown_90", "relative_strength", "computed_at",
	},
	TableArtifacts: {
		"symbol", "business_date", "symbol_id", "narrative", "payload",
		"chart_blob", "report_key", "latency_ms", "status", "error_message",
		"computed_at", "expires_at",
	},
	TableRefData: {
		"trade_date", "source_code", "symbol", "metric_code",
		"numeric_value", "text_value", "source_object", "ingested_at",
	},
	TableWatchlist: {
		"user_id", "symbol", "added_at",
	},
	TableReportJobs: {
		"job_id", "symbol", "state", "error", "requested_at", "completed_at",
	},
}
