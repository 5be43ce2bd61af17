package report

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/database"
	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/queue"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
)

type serviceFixture struct {
	db        *database.DB
	clock     *marketclock.Clock
	artifacts *repository.ArtifactRepository
	service   *Service
	queue     *queue.Manager
	bus       *events.Bus
	symbolID  int64
	cleanup   func()
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t)
	clock := testutil.NewTestClock(t)
	log := zerolog.Nop()

	symbols := repository.NewSymbolRepository(db.Conn(), log)
	artifacts := repository.NewArtifactRepository(db.Conn(), clock, log)
	jobs := repository.NewJobRepository(db.Conn(), clock, log)
	bus := events.NewBus(log)

	q := queue.NewManager(queue.Config{
		Concurrency:    2,
		MessageTimeout: 10 * time.Second,
		RetryDelay:     10 * time.Millisecond,
	}, func(queue.Result) {}, log)

	// store nil: render without upload, like a deployment with PDF upload off
	svc := NewService(jobs, artifacts, symbols, NewRenderer(log), nil, q, clock, bus, log)
	q.Start()

	return &serviceFixture{
		db:        db,
		clock:     clock,
		artifacts: artifacts,
		service:   svc,
		queue:     q,
		bus:       bus,
		symbolID:  testutil.SeedSymbol(t, db, "PTT", "PTT PCL"),
		cleanup: func() {
			q.Stop()
			cleanup()
		},
	}
}

func (f *serviceFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Drain(ctx))
}

func TestReportJobCompletes(t *testing.T) {
	f := newServiceFixture(t)
	defer f.cleanup()

	a := completedArtifact(t)
	a.SymbolID = f.symbolID
	a.BusinessDate = f.clock.TodayBusinessDate()
	require.NoError(t, f.artifacts.Upsert(a))

	var stateChanges []string
	f.bus.Subscribe(events.JobStateChanged, func(e *events.Event) {
		stateChanges = append(stateChanges, e.Data["state"].(string))
	})

	jobID, err := f.service.Request("PTT")
	require.NoError(t, err)
	f.drain(t)

	job, err := f.service.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.State)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.CompletedAt)

	assert.Contains(t, stateChanges, "running")
	assert.Contains(t, stateChanges, "completed")
}

func TestReportJobFailsFastWithoutArtifact(t *testing.T) {
	f := newServiceFixture(t)
	defer f.cleanup()

	jobID, err := f.service.Request("PTT")
	require.NoError(t, err)
	f.drain(t)

	job, err := f.service.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.State)
	assert.Contains(t, job.Error, "not available")
}

func TestReportRequestUnknownSymbol(t *testing.T) {
	f := newServiceFixture(t)
	defer f.cleanup()

	_, err := f.service.Request("NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
