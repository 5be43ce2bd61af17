// Package controller orchestrates the nightly precompute run: fan out the
// raw fetch phase over all active symbols, wait for the barrier, then fan out
// the derived compute phase. Phases never overlap for a given run.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/queue"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
	"github.com/Awannaphasch2016/dr-daily-report/internal/worker"
)

// barrierPollInterval is how often the barrier re-checks the raw table for
// rows that the queue reported committed but a reader cannot see yet.
const barrierPollInterval = 200 * time.Millisecond

// barrierTimeout bounds the post-drain visibility check. Rows are committed
// before the message acks, so this only covers read-after-write lag.
const barrierTimeout = 30 * time.Second

// Config holds run tuning.
type Config struct {
	Concurrency    int
	MaxRetries     int
	MessageTimeout time.Duration
	RetryDelay     time.Duration
	PhaseTimeout   time.Duration
}

// Controller drives precompute runs. One run at a time; a trigger that
// arrives mid-run is rejected.
type Controller struct {
	cfg           Config
	symbols       *repository.SymbolRepository
	raw           *repository.RawSeriesRepository
	derived       *repository.DerivedRepository
	rawWorker     *worker.RawWorker
	derivedWorker *worker.DerivedWorker
	clock         *marketclock.Clock
	bus           *events.Bus
	queue         *queue.Manager
	log           zerolog.Logger

	mu      sync.Mutex
	running bool
	state   *runState
	lastRun *domain.RunSummary
}

// runState accumulates per-symbol outcomes for the run in flight.
type runState struct {
	mu            sync.Mutex
	rawOK         map[string]bool
	rawFailed     map[string]string
	derivedOK     map[string]bool
	derivedFailed map[string]string
}

func newRunState() *runState {
	return &runState{
		rawOK:         make(map[string]bool),
		rawFailed:     make(map[string]string),
		derivedOK:     make(map[string]bool),
		derivedFailed: make(map[string]string),
	}
}

// New creates a controller. The controller owns its queue manager; handlers
// for the two phases are registered here.
func New(
	cfg Config,
	symbols *repository.SymbolRepository,
	raw *repository.RawSeriesRepository,
	derived *repository.DerivedRepository,
	rawWorker *worker.RawWorker,
	derivedWorker *worker.DerivedWorker,
	clock *marketclock.Clock,
	bus *events.Bus,
	log zerolog.Logger,
) *Controller {
	c := &Controller{
		cfg:           cfg,
		symbols:       symbols,
		raw:           raw,
		derived:       derived,
		rawWorker:     rawWorker,
		derivedWorker: derivedWorker,
		clock:         clock,
		bus:           bus,
		log:           log.With().Str("component", "controller").Logger(),
	}

	c.queue = queue.NewManager(queue.Config{
		Concurrency:    cfg.Concurrency,
		MessageTimeout: cfg.MessageTimeout,
		RetryDelay:     cfg.RetryDelay,
	}, c.onResult, log)
	c.queue.Register(queue.KindRawFetch, rawWorker.Handle)
	c.queue.Register(queue.KindDerivedCompute, derivedWorker.Handle)

	return c
}

// Queue exposes the manager so supporting services (report jobs) can
// register handlers and enqueue work between runs.
func (c *Controller) Queue() *queue.Manager {
	return c.queue
}

// Start launches the worker pool.
func (c *Controller) Start() {
	c.queue.Start()
}

// Stop shuts the worker pool down.
func (c *Controller) Stop() {
	c.queue.Stop()
}

// LastRun returns the summary of the most recently finished run, or nil.
func (c *Controller) LastRun() *domain.RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

// Running reports whether a run is in flight.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Run executes one full precompute run for a business date. trigger is
// "schedule" or "manual" and only affects logging and events.
func (c *Controller) Run(ctx context.Context, businessDate, trigger string) (*domain.RunSummary, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, fmt.Errorf("precompute run already in progress")
	}
	c.running = true
	c.state = newRunState()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = nil
		c.mu.Unlock()
	}()

	startedAt := c.clock.Now()
	runID := uuid.NewString()

	symbols, err := c.symbols.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active symbols: %w", err)
	}
	if len(symbols) == 0 {
		c.log.Warn().Str("run_id", runID).Msg("No active symbols, nothing to do")
		return &domain.RunSummary{
			RunID:        runID,
			BusinessDate: businessDate,
			Status:       domain.RunCompleted,
			StartedAt:    startedAt,
			FinishedAt:   c.clock.Now(),
		}, nil
	}

	log := c.log.With().
		Str("run_id", runID).
		Str("business_date", businessDate).
		Str("trigger", trigger).
		Logger()
	log.Info().Int("symbols", len(symbols)).Msg("Precompute run started")

	c.bus.PublishData(&events.RunStartedData{
		RunID:        runID,
		BusinessDate: businessDate,
		SymbolsTotal: len(symbols),
		Trigger:      trigger,
	})

	// Phase A: raw fetch for every active symbol.
	if err := c.runPhase(ctx, queue.KindRawFetch, runID, businessDate, symbols, log); err != nil {
		return c.finishRun(runID, businessDate, symbols, startedAt, log), err
	}

	// Barrier: phase B starts only for symbols whose raw row is visible.
	ready := c.awaitBarrier(ctx, businessDate, symbols, log)

	// Phase B: derived compute for the symbols that passed the barrier.
	if len(ready) > 0 {
		if err := c.runPhase(ctx, queue.KindDerivedCompute, runID, businessDate, ready, log); err != nil {
			return c.finishRun(runID, businessDate, symbols, startedAt, log), err
		}
	}

	summary := c.finishRun(runID, businessDate, symbols, startedAt, log)
	return summary, nil
}

// RunToday runs for the current business date in the configured timezone.
func (c *Controller) RunToday(ctx context.Context, trigger string) (*domain.RunSummary, error) {
	return c.Run(ctx, c.clock.TodayBusinessDate(), trigger)
}

// runPhase enqueues one message per symbol and drains the queue under the
// phase timeout.
func (c *Controller) runPhase(
	ctx context.Context,
	kind queue.Kind,
	runID, businessDate string,
	symbols []domain.ActiveSymbol,
	log zerolog.Logger,
) error {
	phaseCtx, cancel := context.WithTimeout(ctx, c.cfg.PhaseTimeout)
	defer cancel()

	for _, s := range symbols {
		msg := &queue.Message{
			ID:           uuid.NewString(),
			Kind:         kind,
			RunID:        runID,
			SymbolID:     s.ID,
			Symbol:       s.Display,
			BusinessDate: businessDate,
			MaxAttempts:  c.cfg.MaxRetries,
		}
		if err := c.queue.Enqueue(msg); err != nil {
			return fmt.Errorf("failed to enqueue %s for %s: %w", kind, s.Display, err)
		}
	}

	log.Info().Str("phase", string(kind)).Int("messages", len(symbols)).Msg("Phase fan-out complete")

	if err := c.queue.Drain(phaseCtx); err != nil {
		return fmt.Errorf("%s phase did not finish: %w", kind, err)
	}
	return nil
}

// awaitBarrier returns the symbols whose raw rows are visible in the raw
// table. Symbols whose raw phase failed are excluded without waiting.
func (c *Controller) awaitBarrier(
	ctx context.Context,
	businessDate string,
	symbols []domain.ActiveSymbol,
	log zerolog.Logger,
) []domain.ActiveSymbol {
	c.state.mu.Lock()
	succeeded := make([]domain.ActiveSymbol, 0, len(symbols))
	for _, s := range symbols {
		if c.state.rawOK[s.Display] {
			succeeded = append(succeeded, s)
		}
	}
	c.state.mu.Unlock()

	barrierCtx, cancel := context.WithTimeout(ctx, barrierTimeout)
	defer cancel()

	ready := make([]domain.ActiveSymbol, 0, len(succeeded))
	for _, s := range succeeded {
		if c.waitVisible(barrierCtx, s.Display, businessDate) {
			ready = append(ready, s)
			continue
		}
		log.Error().
			Str("symbol", s.Display).
			Msg("Raw row reported committed but never became visible, skipping derived phase")
		c.state.mu.Lock()
		delete(c.state.rawOK, s.Display)
		c.state.rawFailed[s.Display] = "raw row not visible at barrier"
		c.state.mu.Unlock()
	}

	log.Info().
		Int("ready", len(ready)).
		Int("raw_failed", len(symbols)-len(ready)).
		Msg("Barrier passed")
	return ready
}

func (c *Controller) waitVisible(ctx context.Context, symbol, businessDate string) bool {
	for {
		exists, err := c.raw.Exists(symbol, businessDate)
		if err == nil && exists {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(barrierPollInterval):
		}
	}
}

// onResult is the queue's terminal-outcome hook. It classifies results into
// the run state and records derived failures on the artifact row.
func (c *Controller) onResult(r queue.Result) {
	msg := r.Message

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == nil {
		// Result for a message outside a run (on-demand jobs handle their own).
		return
	}

	var phase string
	state.mu.Lock()
	switch msg.Kind {
	case queue.KindRawFetch:
		if r.Err == nil {
			state.rawOK[msg.Symbol] = true
		} else {
			state.rawFailed[msg.Symbol] = r.Err.Error()
			phase = "raw"
		}
	case queue.KindDerivedCompute:
		if r.Err == nil {
			state.derivedOK[msg.Symbol] = true
		} else {
			state.derivedFailed[msg.Symbol] = r.Err.Error()
			phase = "derived"
		}
	}
	state.mu.Unlock()

	if phase == "" {
		return
	}
	if phase == "derived" {
		c.derivedWorker.RecordFailure(msg, r.Err)
	}
	c.bus.PublishData(&events.SymbolFailedData{
		RunID:        msg.RunID,
		Symbol:       msg.Symbol,
		BusinessDate: msg.BusinessDate,
		Phase:        phase,
		Error:        r.Err.Error(),
		Attempts:     msg.Attempts,
	})
}

// finishRun assembles the summary, logs the derived row counts, and emits
// the run-finished event.
func (c *Controller) finishRun(
	runID, businessDate string,
	symbols []domain.ActiveSymbol,
	startedAt time.Time,
	log zerolog.Logger,
) *domain.RunSummary {
	c.state.mu.Lock()
	summary := &domain.RunSummary{
		RunID:         runID,
		BusinessDate:  businessDate,
		SymbolsTotal:  len(symbols),
		RawCompleted:  len(c.state.rawOK),
		RawFailed:     len(c.state.rawFailed),
		DerivedOK:     len(c.state.derivedOK),
		DerivedFailed: len(c.state.derivedFailed),
		StartedAt:     startedAt,
		FinishedAt:    c.clock.Now(),
	}
	for s := range c.state.rawFailed {
		summary.FailedSymbols = append(summary.FailedSymbols, s)
	}
	for s := range c.state.derivedFailed {
		summary.FailedSymbols = append(summary.FailedSymbols, s)
	}
	c.state.mu.Unlock()

	switch {
	case summary.DerivedOK == summary.SymbolsTotal:
		summary.Status = domain.RunCompleted
	case summary.DerivedOK > 0:
		summary.Status = domain.RunPartial
	default:
		summary.Status = domain.RunFailed
	}

	if indicators, percentiles, comparatives, err := c.derived.CountForDate(businessDate); err == nil {
		log.Info().
			Int("indicator_rows", indicators).
			Int("percentile_rows", percentiles).
			Int("comparative_rows", comparatives).
			Msg("Derived row counts for run date")
	}

	c.bus.PublishData(&events.RunFinishedData{
		RunID:         runID,
		BusinessDate:  businessDate,
		Status:        string(summary.Status),
		SymbolsTotal:  summary.SymbolsTotal,
		RawCompleted:  summary.RawCompleted,
		RawFailed:     summary.RawFailed,
		DerivedOK:     summary.DerivedOK,
		DerivedFailed: summary.DerivedFailed,
		FailedSymbols: summary.FailedSymbols,
		DurationMS:    summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	})

	log.Info().
		Str("status", string(summary.Status)).
		Int("raw_ok", summary.RawCompleted).
		Int("raw_failed", summary.RawFailed).
		Int("derived_ok", summary.DerivedOK).
		Int("derived_failed", summary.DerivedFailed).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Precompute run finished")

	c.mu.Lock()
	c.lastRun = summary
	c.mu.Unlock()

	return summary
}
