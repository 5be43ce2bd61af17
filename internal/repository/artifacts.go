package repository

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// ArtifactRepository persists the final precomputed artifacts served by the
// read API. All writes are upserts on (symbol, business_date).
type ArtifactRepository struct {
	db    *sql.DB
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *sql.DB, clock *marketclock.Clock, log zerolog.Logger) *ArtifactRepository {
	return &ArtifactRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "artifacts").Logger(),
	}
}

// Upsert writes an artifact. The JSON payload arrives pre-serialized
// (json.RawMessage) so the driver binds plain text and never double-escapes.
func (r *ArtifactRepository) Upsert(a *domain.Artifact) error {
	var payload interface{}
	if len(a.Payload) > 0 {
		payload = string(a.Payload)
	}
	var chartBlob interface{}
	if len(a.ChartBlob) > 0 {
		chartBlob = a.ChartBlob
	}

	res, err := r.db.Exec(`
		INSERT INTO `+TableArtifacts+`
			(symbol, business_date, symbol_id, narrative, payload, chart_blob,
			 report_key, latency_ms, status, error_message, computed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, business_date) DO UPDATE SET
			symbol_id     = excluded.symbol_id,
			narrative     = excluded.narrative,
			payload       = excluded.payload,
			chart_blob    = excluded.chart_blob,
			report_key    = excluded.report_key,
			latency_ms    = excluded.latency_ms,
			status        = excluded.status,
			error_message = excluded.error_message,
			computed_at   = excluded.computed_at,
			expires_at    = excluded.expires_at
	`,
		a.Symbol, a.BusinessDate, a.SymbolID, a.Narrative, payload, chartBlob,
		a.ReportKey, a.LatencyMS, string(a.Status), a.ErrorMessage,
		r.clock.FormatTimestamp(a.ComputedAt), r.clock.FormatTimestamp(a.ExpiresAt),
	)
	if err != nil {
		return classifyWriteErr(TableArtifacts, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if err := requireAffected("upsert artifact", TableArtifacts, affected); err != nil {
		return err
	}

	r.log.Debug().
		Str("symbol", a.Symbol).
		Str("business_date", a.BusinessDate).
		Str("status", string(a.Status)).
		Msg("Upserted artifact")

	return nil
}

// MarkPending writes the in-flight marker at the start of the derived phase.
func (r *ArtifactRepository) MarkPending(symbolID int64, symbol, businessDate string) error {
	now := r.clock.Now()
	return r.Upsert(&domain.Artifact{
		SymbolID:     symbolID,
		Symbol:       symbol,
		BusinessDate: businessDate,
		Status:       domain.ArtifactPending,
		ComputedAt:   now,
		ExpiresAt:    r.clock.NextExpiry(now),
	})
}

// MarkFailed records a terminal failure with its reason.
func (r *ArtifactRepository) MarkFailed(symbolID int64, symbol, businessDate, reason string) error {
	now := r.clock.Now()
	return r.Upsert(&domain.Artifact{
		SymbolID:     symbolID,
		Symbol:       symbol,
		BusinessDate: businessDate,
		Status:       domain.ArtifactFailed,
		ErrorMessage: reason,
		ComputedAt:   now,
		ExpiresAt:    r.clock.NextExpiry(now),
	})
}

// Read returns the artifact for (symbol, business date), or domain.ErrNotFound.
// Status filtering is the read API's concern; the repository returns whatever
// state the row is in.
func (r *ArtifactRepository) Read(symbol, businessDate string) (*domain.Artifact, error) {
	query := `
		SELECT symbol, business_date, symbol_id, narrative, payload, chart_blob,
		       report_key, latency_ms, status, error_message, computed_at, expires_at
		FROM ` + TableArtifacts + `
		WHERE symbol = ? AND business_date = ?
	`

	var a domain.Artifact
	var payload sql.NullString
	var chartBlob []byte
	var status, computedAt, expiresAt string

	err := r.db.QueryRow(query, symbol, businessDate).Scan(
		&a.Symbol, &a.BusinessDate, &a.SymbolID, &a.Narrative, &payload, &chartBlob,
		&a.ReportKey, &a.LatencyMS, &status, &a.ErrorMessage, &computedAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact (%s, %s): %w", symbol, businessDate, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artifact (%s, %s): %w", symbol, businessDate, err)
	}

	if payload.Valid {
		a.Payload = []byte(payload.String)
	}
	a.ChartBlob = chartBlob
	a.Status = domain.ArtifactStatus(status)

	a.ComputedAt, err = parseTimestamp(computedAt)
	if err != nil {
		return nil, fmt.Errorf("bad computed_at for (%s, %s): %w", symbol, businessDate, err)
	}
	a.ExpiresAt, err = parseTimestamp(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("bad expires_at for (%s, %s): %w", symbol, businessDate, err)
	}

	return &a, nil
}

// CountByStatus returns artifact counts per status for a business date.
func (r *ArtifactRepository) CountByStatus(businessDate string) (map[domain.ArtifactStatus]int, error) {
	rows, err := r.db.Query(
		"SELECT status, COUNT(*) FROM "+TableArtifacts+" WHERE business_date = ? GROUP BY status",
		businessDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ArtifactStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan artifact count: %w", err)
		}
		counts[domain.ArtifactStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact counts: %w", err)
	}

	return counts, nil
}
