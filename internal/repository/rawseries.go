package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// RawSeriesRepository persists fetched price histories keyed by
// (display symbol, business date).
type RawSeriesRepository struct {
	db    *sql.DB
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewRawSeriesRepository creates a new raw series repository
func NewRawSeriesRepository(db *sql.DB, clock *marketclock.Clock, log zerolog.Logger) *RawSeriesRepository {
	return &RawSeriesRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "raw_series").Logger(),
	}
}

// Store upserts a raw series on (symbol, business_date).
// JSON columns are serialized to text before parameter binding; the driver is
// never handed a Go map or slice directly. The merge rule never shrinks a
// stored series: an incoming series with fewer rows than the stored one is
// dropped (stale partial fetch), keeping row_count monotonic until the
// rolling window trims.
func (r *RawSeriesRepository) Store(series *domain.RawSeries) error {
	priceJSON, err := json.Marshal(series.Bars)
	if err != nil {
		return fmt.Errorf("failed to serialize price history for %s: %w", series.Symbol, err)
	}

	var metadataJSON []byte
	if series.Metadata != nil {
		metadataJSON, err = json.Marshal(series.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata for %s: %w", series.Symbol, err)
		}
	}

	existing, err := r.rowCount(series.Symbol, series.BusinessDate)
	if err != nil {
		return err
	}
	if existing > 0 && series.RowCount < existing {
		r.log.Warn().
			Str("symbol", series.Symbol).
			Str("business_date", series.BusinessDate).
			Int("stored_rows", existing).
			Int("incoming_rows", series.RowCount).
			Msg("Incoming series smaller than stored, keeping stored series")
		return nil
	}

	fetchedAt := r.clock.FormatTimestamp(series.FetchedAt)
	expiresAt := r.clock.FormatTimestamp(series.ExpiresAt)

	res, err := r.db.Exec(`
		INSERT INTO `+TableRawSeries+`
			(symbol, business_date, price_history, metadata, first_date, last_date,
			 row_count, source, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, business_date) DO UPDATE SET
			price_history = excluded.price_history,
			metadata      = excluded.metadata,
			first_date    = excluded.first_date,
			last_date     = excluded.last_date,
			row_count     = excluded.row_count,
			source        = excluded.source,
			fetched_at    = excluded.fetched_at,
			expires_at    = excluded.expires_at
	`,
		series.Symbol, series.BusinessDate, string(priceJSON), nullableString(metadataJSON),
		series.FirstDate, series.LastDate, series.RowCount, series.Source,
		fetchedAt, expiresAt,
	)
	if err != nil {
		return classifyWriteErr(TableRawSeries, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if err := requireAffected("store raw series", TableRawSeries, affected); err != nil {
		return err
	}

	r.log.Debug().
		Str("symbol", series.Symbol).
		Str("business_date", series.BusinessDate).
		Int("rows", series.RowCount).
		Msg("Stored raw series")

	return nil
}

// Get reads the raw series for (symbol, business date).
// Returns domain.ErrNotFound when the raw phase has not committed the row yet.
func (r *RawSeriesRepository) Get(symbol, businessDate string) (*domain.RawSeries, error) {
	query := `
		SELECT symbol, business_date, price_history, metadata, first_date, last_date,
		       row_count, source, fetched_at, expires_at
		FROM ` + TableRawSeries + `
		WHERE symbol = ? AND business_date = ?
	`

	var series domain.RawSeries
	var priceJSON string
	var metadataJSON sql.NullString
	var fetchedAt, expiresAt string

	err := r.db.QueryRow(query, symbol, businessDate).Scan(
		&series.Symbol, &series.BusinessDate, &priceJSON, &metadataJSON,
		&series.FirstDate, &series.LastDate, &series.RowCount, &series.Source,
		&fetchedAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("raw series (%s, %s): %w", symbol, businessDate, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query raw series (%s, %s): %w", symbol, businessDate, err)
	}

	if err := json.Unmarshal([]byte(priceJSON), &series.Bars); err != nil {
		return nil, fmt.Errorf("failed to parse price history for (%s, %s): %w", symbol, businessDate, err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &series.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata for (%s, %s): %w", symbol, businessDate, err)
		}
	}

	series.FetchedAt, err = parseTimestamp(fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("bad fetched_at for (%s, %s): %w", symbol, businessDate, err)
	}
	series.ExpiresAt, err = parseTimestamp(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("bad expires_at for (%s, %s): %w", symbol, businessDate, err)
	}

	return &series, nil
}

// Exists reports whether the raw row for (symbol, business date) has been
// committed. The controller barrier polls this.
func (r *RawSeriesRepository) Exists(symbol, businessDate string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM "+TableRawSeries+" WHERE symbol = ? AND business_date = ?",
		symbol, businessDate,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check raw series (%s, %s): %w", symbol, businessDate, err)
	}
	return count > 0, nil
}

// rowCount returns the stored row_count for (symbol, date), or 0 when absent.
func (r *RawSeriesRepository) rowCount(symbol, businessDate string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT row_count FROM "+TableRawSeries+" WHERE symbol = ? AND business_date = ?",
		symbol, businessDate,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read row count for (%s, %s): %w", symbol, businessDate, err)
	}
	return count, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
