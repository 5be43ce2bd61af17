package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// WatchlistRepository is a small key-value store of (user, symbol) pairs.
// Not in the nightly critical path.
type WatchlistRepository struct {
	db    *sql.DB
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(db *sql.DB, clock *marketclock.Clock, log zerolog.Logger) *WatchlistRepository {
	return &WatchlistRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "watchlist").Logger(),
	}
}

// Add inserts a watchlist entry. Re-adding an existing entry is a no-op
// success (the pair is already in the desired state).
func (r *WatchlistRepository) Add(userID, symbol string) error {
	_, err := r.db.Exec(`
		INSERT INTO `+TableWatchlist+` (user_id, symbol, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, symbol) DO NOTHING
	`, userID, strings.ToUpper(strings.TrimSpace(symbol)), r.clock.FormatTimestamp(r.clock.Now()))
	if err != nil {
		return classifyWriteErr(TableWatchlist, err)
	}
	return nil
}

// Remove deletes a watchlist entry. Removing a missing entry fails with
// ErrNotFound so clients can distinguish it from success.
func (r *WatchlistRepository) Remove(userID, symbol string) error {
	res, err := r.db.Exec(
		"DELETE FROM "+TableWatchlist+" WHERE user_id = ? AND symbol = ?",
		userID, strings.ToUpper(strings.TrimSpace(symbol)),
	)
	if err != nil {
		return classifyWriteErr(TableWatchlist, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("watchlist entry (%s, %s): %w", userID, symbol, domain.ErrNotFound)
	}
	return nil
}

// List returns a user's watchlist ordered by symbol.
func (r *WatchlistRepository) List(userID string) ([]domain.WatchlistEntry, error) {
	rows, err := r.db.Query(
		"SELECT user_id, symbol, added_at FROM "+TableWatchlist+" WHERE user_id = ? ORDER BY symbol",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []domain.WatchlistEntry
	for rows.Next() {
		var e domain.WatchlistEntry
		var addedAt string
		if err := rows.Scan(&e.UserID, &e.Symbol, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		e.AddedAt, err = parseTimestamp(addedAt)
		if err != nil {
			return nil, fmt.Errorf("bad added_at for (%s, %s): %w", e.UserID, e.Symbol, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist: %w", err)
	}

	return entries, nil
}
