package repository

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

func TestWatchlistAddListRemove(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewWatchlistRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	require.NoError(t, repo.Add("user-1", "ptt"))
	require.NoError(t, repo.Add("user-1", "AOT"))

	entries, err := repo.List("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AOT", entries[0].Symbol)
	assert.Equal(t, "PTT", entries[1].Symbol)
	assert.False(t, entries[0].AddedAt.IsZero())

	require.NoError(t, repo.Remove("user-1", "PTT"))
	entries, err = repo.List("user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWatchlistReAddIsNoop(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewWatchlistRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	require.NoError(t, repo.Add("user-1", "PTT"))
	require.NoError(t, repo.Add("user-1", "PTT"))

	entries, err := repo.List("user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWatchlistRemoveMissing(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewWatchlistRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	err := repo.Remove("user-1", "PTT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWatchlistIsolatedPerUser(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewWatchlistRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	require.NoError(t, repo.Add("user-1", "PTT"))

	entries, err := repo.List("user-2")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
