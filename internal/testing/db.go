// Package testing provides test database helpers and fixtures for the
// precompute service.
package testing

import (
	"os"
	"testing"
	"time"

	"github.com/Awannaphasch2016/dr-daily-report/internal/database"
	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// NewTestDB creates a temporary-file SQLite database with the full migrated
// schema. Temporary files (rather than :memory:) keep each test isolated even
// when a test opens multiple connections. The cleanup function is idempotent.
func NewTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_precompute_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "core",
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		_ = db.Close()
		_ = os.Remove(tmpPath)
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
	}

	return db, cleanup
}

// NewTestClock returns a clock pinned to Asia/Bangkok, the zone the tests
// assume throughout.
func NewTestClock(t *testing.T) *marketclock.Clock {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Fatalf("Failed to load test timezone: %v", err)
	}
	return marketclock.New(loc)
}

// SeedSymbol inserts one active master symbol with a primary display alias and
// returns its id.
func SeedSymbol(t *testing.T, db *database.DB, display, name string) int64 {
	t.Helper()

	res, err := db.Exec(`
		INSERT INTO symbols (name, exchange, currency, sector, industry, active)
		VALUES (?, 'SET', 'THB', 'Energy', 'Oil & Gas', 1)
	`, name)
	if err != nil {
		t.Fatalf("Failed to seed symbol %s: %v", display, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get seeded symbol id: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO symbol_aliases (symbol_id, alias, alias_type, is_primary)
		VALUES (?, ?, 'display', 1)
	`, id, display)
	if err != nil {
		t.Fatalf("Failed to seed alias %s: %v", display, err)
	}

	return id
}

// Bars builds an ascending synthetic OHLCV series of n days ending at end.
// Prices follow a deterministic walk so indicator tests are reproducible.
func Bars(n int, end time.Time) []domain.DailyBar {
	bars := make([]domain.DailyBar, 0, n)
	price := 100.0
	for i := n - 1; i >= 0; i-- {
		d := end.AddDate(0, 0, -i)
		drift := float64((n-i)%7)*0.4 - 1.0
		price += drift
		volume := 1_000_000 + float64((n-i)%5)*50_000
		bars = append(bars, domain.DailyBar{
			Date:   d.Format(marketclock.DateFormat),
			Open:   price - 0.5,
			High:   price + 1.0,
			Low:    price - 1.2,
			Close:  price,
			Volume: &volume,
		})
	}
	return bars
}

// DateDaysAgo formats a business date n days before end.
func DateDaysAgo(end time.Time, n int) string {
	return end.AddDate(0, 0, -n).Format(marketclock.DateFormat)
}

// FloatPtr returns a pointer to v, a convenience for absent-able fields.
func FloatPtr(v float64) *float64 {
	return &v
}
