package repository

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// JobRepository tracks on-demand report jobs from request to completion.
type JobRepository struct {
	db    *sql.DB
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB, clock *marketclock.Clock, log zerolog.Logger) *JobRepository {
	return &JobRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repo", "report_jobs").Logger(),
	}
}

// Create records a newly requested job.
func (r *JobRepository) Create(jobID, symbol string) error {
	res, err := r.db.Exec(`
		INSERT INTO `+TableReportJobs+` (job_id, symbol, state, requested_at)
		VALUES (?, ?, ?, ?)
	`, jobID, symbol, string(domain.JobRequested), r.clock.FormatTimestamp(r.clock.Now()))
	if err != nil {
		return classifyWriteErr(TableReportJobs, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("create job", TableReportJobs, affected)
}

// UpdateState advances a job's lifecycle. Terminal states also stamp
// completed_at.
func (r *JobRepository) UpdateState(jobID string, state domain.JobState, errMsg string) error {
	var completedAt interface{}
	if state == domain.JobCompleted || state == domain.JobFailed {
		completedAt = r.clock.FormatTimestamp(r.clock.Now())
	}

	res, err := r.db.Exec(`
		UPDATE `+TableReportJobs+`
		SET state = ?, error = ?, completed_at = COALESCE(?, completed_at)
		WHERE job_id = ?
	`, string(state), errMsg, completedAt, jobID)
	if err != nil {
		return classifyWriteErr(TableReportJobs, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	return requireAffected("update job state", TableReportJobs, affected)
}

// Get returns a job record, or domain.ErrNotFound.
func (r *JobRepository) Get(jobID string) (*domain.JobRecord, error) {
	query := `
		SELECT job_id, symbol, state, error, requested_at, completed_at
		FROM ` + TableReportJobs + ` WHERE job_id = ?
	`

	var job domain.JobRecord
	var state, requestedAt string
	var completedAt sql.NullString

	err := r.db.QueryRow(query, jobID).Scan(
		&job.JobID, &job.Symbol, &state, &job.Error, &requestedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", jobID, err)
	}

	job.State = domain.JobState(state)
	job.RequestedAt, err = parseTimestamp(requestedAt)
	if err != nil {
		return nil, fmt.Errorf("bad requested_at for job %s: %w", jobID, err)
	}
	if completedAt.Valid {
		t, err := parseTimestamp(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad completed_at for job %s: %w", jobID, err)
		}
		job.CompletedAt = &t
	}

	return &job, nil
}
