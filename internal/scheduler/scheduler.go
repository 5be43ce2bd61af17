// Package scheduler triggers the nightly precompute run on a cron schedule
// evaluated in the configured market timezone.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/controller"
)

// Scheduler wraps the cron runner. The schedule fires in the market
// timezone, not server time; the business date each run stamps is derived
// from the same zone so a run started at 01:00 local computes "yesterday".
type Scheduler struct {
	cron       *cron.Cron
	controller *controller.Controller
	log        zerolog.Logger
}

// New creates a scheduler for the given cron spec (standard 5-field syntax).
func New(spec string, loc *time.Location, ctrl *controller.Controller, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		controller: ctrl,
		log:        log.With().Str("component", "scheduler").Logger(),
	}

	s.cron = cron.New(cron.WithLocation(loc))
	if _, err := s.cron.AddFunc(spec, s.runNightly); err != nil {
		return nil, fmt.Errorf("invalid precompute schedule %q: %w", spec, err)
	}

	s.log.Info().Str("schedule", spec).Str("timezone", loc.String()).Msg("Nightly schedule registered")
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a firing job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runNightly() {
	summary, err := s.controller.RunToday(context.Background(), "schedule")
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduled precompute run failed to complete")
		return
	}
	s.log.Info().
		Str("run_id", summary.RunID).
		Str("status", string(summary.Status)).
		Msg("Scheduled precompute run finished")
}
