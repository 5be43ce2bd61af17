package repository

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

func TestRefDataUpsertIsIdempotent(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewRefDataRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	row := &domain.RefDataRow{
		TradeDate:    "2026-08-21",
		SourceCode:   "BOT",
		Symbol:       "PTT",
		MetricCode:   "fx_thb_usd",
		NumericValue: testutil.FloatPtr(35.42),
		SourceObject: "refdata/2026-08-21/bot.csv",
	}
	require.NoError(t, repo.Upsert(row))

	// re-ingesting the same file updates in place
	row.NumericValue = testutil.FloatPtr(35.50)
	require.NoError(t, repo.Upsert(row))

	rows, err := repo.GetForSymbol("PTT", "2026-08-21")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].NumericValue)
	assert.InDelta(t, 35.50, *rows[0].NumericValue, 1e-9)
}

func TestRefDataCompositeKey(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewRefDataRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	text := "stable"
	require.NoError(t, repo.Upsert(&domain.RefDataRow{
		TradeDate: "2026-08-21", SourceCode: "BOT", Symbol: "PTT",
		MetricCode: "fx_thb_usd", NumericValue: testutil.FloatPtr(35.42),
	}))
	require.NoError(t, repo.Upsert(&domain.RefDataRow{
		TradeDate: "2026-08-21", SourceCode: "SETTRADE", Symbol: "PTT",
		MetricCode: "fx_thb_usd", NumericValue: testutil.FloatPtr(35.45),
	}))
	require.NoError(t, repo.Upsert(&domain.RefDataRow{
		TradeDate: "2026-08-21", SourceCode: "BOT", Symbol: "PTT",
		MetricCode: "rating", TextValue: &text,
	}))

	rows, err := repo.GetForSymbol("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRefDataEmptyResultIsNormal(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewRefDataRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	rows, err := repo.GetForSymbol("PTT", "2026-08-21")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
