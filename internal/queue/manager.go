package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// handlerTimeoutFraction is the share of the per-message timeout the handler
// itself may use. The remainder is reserved for finalization (recording the
// failure, emitting events) so a handler that runs to the wire cannot starve
// its own bookkeeping.
const handlerTimeoutFraction = 0.8

// Config holds worker pool tuning.
type Config struct {
	Concurrency    int
	MessageTimeout time.Duration
	RetryDelay     time.Duration
}

// Manager owns the message channel and the worker pool. One Manager serves
// all message kinds; handlers are registered per kind before Start.
type Manager struct {
	cfg      Config
	handlers map[Kind]Handler
	messages chan *Message
	results  func(Result)

	pending int64 // messages enqueued but not yet terminal
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
	log     zerolog.Logger
}

// NewManager creates a manager. onResult is invoked exactly once per message
// when it reaches a terminal state; pass nil when no one cares.
func NewManager(cfg Config, onResult func(Result), log zerolog.Logger) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 5 * time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if onResult == nil {
		onResult = func(Result) {}
	}
	return &Manager{
		cfg:      cfg,
		handlers: make(map[Kind]Handler),
		messages: make(chan *Message, 1024),
		results:  onResult,
		stop:     make(chan struct{}),
		log:      log.With().Str("component", "queue").Logger(),
	}
}

// Register binds a handler to a message kind. Must be called before Start.
func (m *Manager) Register(kind Kind, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Start launches the worker pool.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		m.log.Warn().Msg("Queue already started, ignoring")
		return
	}
	m.started = true

	for i := 0; i < m.cfg.Concurrency; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	m.log.Info().Int("concurrency", m.cfg.Concurrency).Msg("Queue workers started")
}

// Stop shuts the pool down. In-flight handlers finish; queued messages are
// abandoned.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.stop)
	m.wg.Wait()
	m.stop = make(chan struct{})
	m.log.Info().Msg("Queue workers stopped")
}

// Enqueue submits a message for delivery.
func (m *Manager) Enqueue(msg *Message) error {
	msg.EnqueuedAt = time.Now()
	atomic.AddInt64(&m.pending, 1)
	select {
	case m.messages <- msg:
		return nil
	default:
		atomic.AddInt64(&m.pending, -1)
		return fmt.Errorf("queue full, rejecting %s message for %s", msg.Kind, msg.Symbol)
	}
}

// Pending returns the number of messages not yet in a terminal state,
// including those waiting out a retry delay.
func (m *Manager) Pending() int {
	return int(atomic.LoadInt64(&m.pending))
}

// Drain blocks until every enqueued message reaches a terminal state or the
// context expires.
func (m *Manager) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if atomic.LoadInt64(&m.pending) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain interrupted with %d messages pending: %w",
				atomic.LoadInt64(&m.pending), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case msg := <-m.messages:
			m.deliver(msg)
		}
	}
}

// deliver runs the handler once and routes the outcome: ack, redeliver, or
// terminal failure.
func (m *Manager) deliver(msg *Message) {
	m.mu.Lock()
	handler, ok := m.handlers[msg.Kind]
	m.mu.Unlock()
	if !ok {
		m.finalize(msg, fmt.Errorf("no handler registered for kind %s", msg.Kind))
		return
	}

	msg.Attempts++
	log := m.log.With().
		Str("run_id", msg.RunID).
		Str("symbol", msg.Symbol).
		Str("business_date", msg.BusinessDate).
		Str("kind", string(msg.Kind)).
		Str("task", GetKindDescription(msg.Kind)).
		Int("attempt", msg.Attempts).
		Logger()

	handlerTimeout := time.Duration(float64(m.cfg.MessageTimeout) * handlerTimeoutFraction)
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	err := m.runHandler(ctx, handler, msg)
	cancel()

	if err == nil {
		log.Debug().Msg("Message acknowledged")
		m.finalize(msg, nil)
		return
	}

	if domain.IsRetryable(err) && msg.Attempts < msg.MaxAttempts {
		log.Warn().Err(err).Msg("Message failed, scheduling redelivery")
		time.AfterFunc(m.cfg.RetryDelay, func() {
			select {
			case m.messages <- msg:
			default:
				m.finalize(msg, fmt.Errorf("queue full on redelivery: %w", err))
			}
		})
		return
	}

	if domain.IsRetryable(err) {
		log.Error().Err(err).Int("max_attempts", msg.MaxAttempts).Msg("Message exhausted retries")
	} else {
		log.Error().Err(err).Msg("Message failed permanently")
	}
	m.finalize(msg, err)
}

// runHandler isolates handler panics so one bad symbol cannot take down the
// worker pool.
func (m *Manager) runHandler(ctx context.Context, handler Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for %s/%s: %v", msg.Kind, msg.Symbol, r)
		}
	}()
	return handler(ctx, msg)
}

func (m *Manager) finalize(msg *Message, err error) {
	atomic.AddInt64(&m.pending, -1)
	m.results(Result{Message: msg, Err: err})
}
