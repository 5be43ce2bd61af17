// Package domain contains the core types shared across the precompute pipeline.
// The domain layer is pure: no database, queue, or HTTP dependencies.
package domain

import (
	"encoding/json"
	"time"
)

// AliasType identifies the surface a symbol alias belongs to.
type AliasType string

const (
	// AliasDisplay is the human-facing ticker (e.g. "PTT").
	AliasDisplay AliasType = "display"
	// AliasYahoo is the Yahoo Finance symbol (e.g. "PTT.BK").
	AliasYahoo AliasType = "yahoo"
	// AliasTradingView is the TradingView chart symbol (e.g. "SET:PTT").
	AliasTradingView AliasType = "tradingview"
	// AliasAnalyst is the symbol used by the analyst-consensus vendor.
	AliasAnalyst AliasType = "analyst"
)

// Symbol is the master symbol record. ID is the sole cross-table reference;
// display tickers are never used as foreign keys.
type Symbol struct {
	ID       int64
	Name     string
	Exchange string
	Currency string
	Sector   string
	Industry string
	Active   bool
}

// SymbolAlias maps a surface symbol to a master symbol id.
type SymbolAlias struct {
	SymbolID int64
	Alias    string
	Type     AliasType
	Primary  bool
}

// ActiveSymbol is the (master id, display symbol) pair the controller fans out over.
type ActiveSymbol struct {
	ID      int64
	Display string
}

// DailyBar is one OHLCV observation. Volume is a pointer because the provider
// occasionally returns non-finite or missing volume; non-finite values are
// replaced with nil at the fetcher boundary so they never reach the JSON layer.
type DailyBar struct {
	Date   string   `json:"date"` // YYYY-MM-DD, business date of the observation
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// RawSeries is one symbol's fetched price history plus metadata, keyed by
// (display symbol, business date). BusinessDate is the trading date the series
// describes, not the wall-clock of the fetch; it equals the last bar's date.
type RawSeries struct {
	Symbol       string
	BusinessDate string
	Bars         []DailyBar // ascending by date, no duplicates
	Metadata     map[string]interface{}
	FirstDate    string
	LastDate     string
	RowCount     int
	Source       string
	FetchedAt    time.Time
	ExpiresAt    time.Time
}

// IndicatorRow holds one day's computed indicators for a symbol.
// Pointer fields are absent when the trailing window is not yet full.
type IndicatorRow struct {
	Symbol string
	Date   string

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *float64

	SMA20  *float64
	SMA50  *float64
	SMA200 *float64

	RSI14 *float64

	MACD       *float64
	MACDSignal *float64
	MACDHist   *float64

	BollingerUpper  *float64
	BollingerMiddle *float64
	BollingerLower  *float64

	ATR14  *float64
	ATRPct *float64

	VWAP        *float64
	PriceToVWAP *float64 // percent distance of close from VWAP
	VolumeSMA20 *float64
	VolumeRatio *float64
	Uncertainty *float64 // bounded 0-100 composite score
}

// PercentileRow holds ECDF percentile ranks and threshold frequencies for one
// (symbol, date) over a trailing lookback window.
type PercentileRow struct {
	Symbol       string
	Date         string
	LookbackDays int

	RSIRank         *float64 // [0,100]
	ATRPctRank      *float64
	VolumeRatioRank *float64
	UncertaintyRank *float64

	RSIAbove70Freq       *float64 // fraction of lookback days with RSI > 70
	RSIBelow30Freq       *float64
	CloseAboveSMA200Freq *float64
}

// ComparativeRow holds return, risk, and relative-strength features for one
// (symbol, date).
type ComparativeRow struct {
	Symbol string
	Date   string

	ReturnDaily   *float64
	ReturnWeekly  *float64
	ReturnMonthly *float64
	ReturnYTD     *float64

	Volatility30 *float64 // annualized
	Volatility90 *float64

	Sharpe30 *float64
	Sharpe90 *float64

	MaxDrawdown30 *float64
	MaxDrawdown90 *float64

	RelativeStrength *float64 // 90d return minus reference index 90d return
}

// ArtifactStatus is the lifecycle state of a precomputed artifact.
type ArtifactStatus string

const (
	ArtifactPending   ArtifactStatus = "pending"
	ArtifactCompleted ArtifactStatus = "completed"
	ArtifactFailed    ArtifactStatus = "failed"
)

// Artifact is the final precomputed record served to front-ends, keyed by
// (display symbol, business date).
type Artifact struct {
	SymbolID     int64
	Symbol       string
	BusinessDate string

	Narrative string
	Payload   json.RawMessage // opaque structured payload; must roundtrip losslessly
	ChartBlob []byte          // msgpack-encoded chart series
	ReportKey string          // object-store key of the rendered PDF, empty if none

	LatencyMS    int64
	Status       ArtifactStatus
	ErrorMessage string
	ComputedAt   time.Time
	ExpiresAt    time.Time
}

// RefDataRow is one row of the cross-currency reference-data side stream,
// keyed by the full (trade date, source code, symbol, metric) composite.
// Exactly one of NumericValue / TextValue is set.
type RefDataRow struct {
	TradeDate    string
	SourceCode   string
	Symbol       string
	MetricCode   string
	NumericValue *float64
	TextValue    *string
	SourceObject string // object key the row was ingested from, for lineage
}

// WatchlistEntry is one (user, symbol) watchlist row.
type WatchlistEntry struct {
	UserID  string
	Symbol  string
	AddedAt time.Time
}

// JobState is the lifecycle state of an on-demand report job.
type JobState string

const (
	JobRequested JobState = "requested"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobRecord tracks one on-demand report job from request to completion.
type JobRecord struct {
	JobID       string
	Symbol      string
	State       JobState
	Error       string
	RequestedAt time.Time
	CompletedAt *time.Time
}

// RunStatus is the overall disposition of one nightly run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// RunSummary is the run-level status event emitted at the end of a nightly run.
type RunSummary struct {
	RunID        string
	BusinessDate string
	Status       RunStatus

	SymbolsTotal  int
	RawCompleted  int
	RawFailed     int
	DerivedOK     int
	DerivedFailed int

	FailedSymbols []string
	StartedAt     time.Time
	FinishedAt    time.Time
}
