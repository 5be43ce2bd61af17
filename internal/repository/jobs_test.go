package repository

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

func TestJobLifecycle(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewJobRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	require.NoError(t, repo.Create("job-1", "PTT"))

	job, err := repo.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRequested, job.State)
	assert.Nil(t, job.CompletedAt)
	assert.False(t, job.RequestedAt.IsZero())

	require.NoError(t, repo.UpdateState("job-1", domain.JobRunning, ""))
	job, err = repo.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.State)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, repo.UpdateState("job-1", domain.JobCompleted, ""))
	job, err = repo.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.State)
	require.NotNil(t, job.CompletedAt)
}

func TestJobFailureRecordsError(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewJobRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	require.NoError(t, repo.Create("job-1", "PTT"))
	require.NoError(t, repo.UpdateState("job-1", domain.JobFailed, "no precomputed artifact"))

	job, err := repo.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.State)
	assert.Equal(t, "no precomputed artifact", job.Error)
	require.NotNil(t, job.CompletedAt)
}

func TestJobGetMissing(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t)
	defer cleanup()
	repo := NewJobRepository(db.Conn(), testutil.NewTestClock(t), zerolog.Nop())

	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
