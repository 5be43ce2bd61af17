package marketclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessDate_UsesConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	clock := New(loc)

	// 2024-03-15 17:30 UTC is already 2024-03-16 00:30 in Bangkok (UTC+7)
	instant := time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-16", clock.BusinessDate(instant))

	// 2024-03-15 16:59 UTC is still 2024-03-15 23:59 in Bangkok
	instant = time.Date(2024, 3, 15, 16, 59, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15", clock.BusinessDate(instant))
}

func TestBusinessDate_MidnightRollover(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	clock := New(loc)

	// A run starting at 23:59:50 local keeps day D even though it finishes
	// after midnight; the finish instant resolves to D+1.
	start := time.Date(2024, 3, 15, 23, 59, 50, 0, loc)
	finish := start.Add(20 * time.Second)

	assert.Equal(t, "2024-03-15", clock.BusinessDate(start))
	assert.Equal(t, "2024-03-16", clock.BusinessDate(finish))
}

func TestNextExpiry(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	clock := New(loc)

	fetched := time.Date(2024, 3, 15, 21, 12, 44, 0, loc)
	expiry := clock.NextExpiry(fetched)

	assert.Equal(t, time.Date(2024, 3, 16, 8, 0, 0, 0, loc), expiry)

	// A fetch just after local midnight expires at 08:00 the following day,
	// not the same morning.
	fetched = time.Date(2024, 3, 16, 0, 3, 0, 0, loc)
	expiry = clock.NextExpiry(fetched)
	assert.Equal(t, time.Date(2024, 3, 17, 8, 0, 0, 0, loc), expiry)
}

func TestNextExpiry_DSTZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	clock := New(loc)

	// Spring-forward night (2024-03-10): expiry still lands on 08:00 local.
	fetched := time.Date(2024, 3, 9, 22, 0, 0, 0, loc)
	expiry := clock.NextExpiry(fetched)
	assert.Equal(t, 8, expiry.Hour())
	assert.Equal(t, "2024-03-10", expiry.Format(DateFormat))
}

func TestParseDate_RejectsBadInput(t *testing.T) {
	_, err := ParseDate("2024-3-9")
	assert.Error(t, err)

	_, err = ParseDate("2024-03-09")
	assert.NoError(t, err)
}
