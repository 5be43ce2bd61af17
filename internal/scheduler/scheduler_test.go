package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSpec(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	_, err = New("not a cron spec", loc, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid precompute schedule")
}

func TestNewAcceptsStandardSpec(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	s, err := New("0 1 * * *", loc, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, s)

	s.Start()
	s.Stop()
}
