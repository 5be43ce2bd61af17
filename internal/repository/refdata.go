package repository

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// RefDataRepository handles the reference-data side stream. The table is fed
// by an independent producer; the core reads it opportunistically and never
// blocks a run on it.
type RefDataRepository struct {
	db    *sql.DB
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewRefDataRepository creates a new reference-data repository
func NewRefDataRepository(db *sql.DB, clock *marketclock.Clock, log zerolog.Logger) *RefDataRepository {
	return &RefDataRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "ref_data").Logger(),
	}
}

// Upsert writes one row, idempotent on the full composite key.
func (r *RefDataRepository) Upsert(row *domain.RefDataRow) error {
	res, err := r.db.Exec(`
		INSERT INTO `+TableRefData+`
			(trade_date, source_code, symbol, metric_code,
			 numeric_value, text_value, source_object, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_date, source_code, symbol, metric_code) DO UPDATE SET
			numeric_value = excluded.numeric_value,
			text_value    = excluded.text_value,
			source_object = excluded.source_object,
			ingested_at   = excluded.ingested_at
	`,
		row.TradeDate, row.SourceCode, row.Symbol, row.MetricCode,
		row.NumericValue, row.TextValue, row.SourceObject,
		r.clock.FormatTimestamp(r.clock.Now()),
	)
	if err != nil {
		return classifyWriteErr(TableRefData, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("upsert ref data", TableRefData, affected)
}

// GetForSymbol returns all reference rows for a symbol on a trade date.
// An empty result is normal (the producer may not have delivered yet).
func (r *RefDataRepository) GetForSymbol(symbol, tradeDate string) ([]domain.RefDataRow, error) {
	query := `
		SELECT trade_date, source_code, symbol, metric_code,
		       numeric_value, text_value, source_object
		FROM ` + TableRefData + `
		WHERE symbol = ? AND trade_date = ?
		ORDER BY source_code, metric_code
	`

	rows, err := r.db.Query(query, symbol, tradeDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query ref data for %s: %w", symbol, err)
	}
	defer rows.Close()

	var result []domain.RefDataRow
	for rows.Next() {
		var row domain.RefDataRow
		var numeric sql.NullFloat64
		var text sql.NullString
		if err := rows.Scan(
			&row.TradeDate, &row.SourceCode, &row.Symbol, &row.MetricCode,
			&numeric, &text, &row.SourceObject,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ref data row: %w", err)
		}
		if numeric.Valid {
			row.NumericValue = &numeric.Float64
		}
		if text.Valid {
			row.TextValue = &text.String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ref data: %w", err)
	}

	return result, nil
}
