package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/objectstore"
	"github.com/Awannaphasch2016/dr-daily-report/internal/queue"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
)

// Uploader is the slice of the object store the report service needs.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) error
}

// Service runs on-demand report jobs: render the already-precomputed
// artifact to PDF and upload it. It never recomputes analytics; a missing
// artifact fails the job.
type Service struct {
	jobs      *repository.JobRepository
	artifacts *repository.ArtifactRepository
	symbols   *repository.SymbolRepository
	renderer  *Renderer
	store     Uploader // nil when report upload is disabled
	queue     *queue.Manager
	clock     *marketclock.Clock
	bus       *events.Bus
	log       zerolog.Logger
}

// NewService creates the report job service and registers its queue handler.
func NewService(
	jobs *repository.JobRepository,
	artifacts *repository.ArtifactRepository,
	symbols *repository.SymbolRepository,
	renderer *Renderer,
	store Uploader,
	q *queue.Manager,
	clock *marketclock.Clock,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	s := &Service{
		jobs:      jobs,
		artifacts: artifacts,
		symbols:   symbols,
		renderer:  renderer,
		store:     store,
		queue:     q,
		clock:     clock,
		bus:       bus,
		log:       log.With().Str("component", "report_service").Logger(),
	}
	q.Register(queue.KindReportRender, s.handle)
	return s
}

// Request creates a report job for a symbol and queues it. Returns the job id.
func (s *Service) Request(symbol string) (string, error) {
	symbolID, err := s.symbols.Resolve(symbol)
	if err != nil {
		return "", fmt.Errorf("report request for %s: %w", symbol, err)
	}

	jobID := uuid.NewString()
	if err := s.jobs.Create(jobID, symbol); err != nil {
		return "", fmt.Errorf("report request for %s: %w", symbol, err)
	}

	err = s.queue.Enqueue(&queue.Message{
		ID:           jobID,
		Kind:         queue.KindReportRender,
		SymbolID:     symbolID,
		Symbol:       symbol,
		BusinessDate: s.clock.TodayBusinessDate(),
		MaxAttempts:  1, // rendering is deterministic; a failure will not heal on retry
	})
	if err != nil {
		s.failJob(jobID, symbol, err)
		return "", fmt.Errorf("report request for %s: %w", symbol, err)
	}

	s.publishState(jobID, symbol, domain.JobRequested, "")
	return jobID, nil
}

// Status returns the job record.
func (s *Service) Status(jobID string) (*domain.JobRecord, error) {
	return s.jobs.Get(jobID)
}

func (s *Service) handle(ctx context.Context, msg *queue.Message) error {
	jobID := msg.ID

	if err := s.jobs.UpdateState(jobID, domain.JobRunning, ""); err != nil {
		return err
	}
	s.publishState(jobID, msg.Symbol, domain.JobRunning, "")

	key, err := s.render(ctx, msg)
	if err != nil {
		s.failJob(jobID, msg.Symbol, err)
		return err
	}

	if err := s.jobs.UpdateState(jobID, domain.JobCompleted, ""); err != nil {
		return err
	}
	s.publishState(jobID, msg.Symbol, domain.JobCompleted, "")
	s.bus.PublishData(&events.ReportRenderedData{
		Symbol:       msg.Symbol,
		BusinessDate: msg.BusinessDate,
		ReportKey:    key,
	})

	s.log.Info().
		Str("job_id", jobID).
		Str("symbol", msg.Symbol).
		Str("report_key", key).
		Msg("Report job completed")
	return nil
}

// render reads the artifact, renders the PDF, uploads it, and records the
// object key back on the artifact.
func (s *Service) render(ctx context.Context, msg *queue.Message) (string, error) {
	artifact, err := s.artifacts.Read(msg.Symbol, msg.BusinessDate)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("report for %s on %s: %w",
				msg.Symbol, msg.BusinessDate, domain.ErrPrecomputeMissing)
		}
		return "", err
	}

	pdfBytes, err := s.renderer.Render(artifact)
	if err != nil {
		return "", err
	}

	if s.store == nil {
		return "", nil
	}

	key := objectstore.ReportKey(msg.Symbol, msg.BusinessDate, s.clock.Now())
	if err := s.store.Upload(ctx, key, "application/pdf", pdfBytes); err != nil {
		return "", err
	}

	artifact.ReportKey = key
	if err := s.artifacts.Upsert(artifact); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) failJob(jobID, symbol string, cause error) {
	if err := s.jobs.UpdateState(jobID, domain.JobFailed, cause.Error()); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
	}
	s.publishState(jobID, symbol, domain.JobFailed, cause.Error())
}

func (s *Service) publishState(jobID, symbol string, state domain.JobState, errMsg string) {
	s.bus.PublishData(&events.JobStateChangedData{
		JobID:  jobID,
		Symbol: symbol,
		State:  string(state),
		Error:  errMsg,
	})
}
