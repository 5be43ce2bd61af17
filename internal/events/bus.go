// Package events is the in-process publish/subscribe bus. The pipeline
// publishes run and per-symbol lifecycle events; the HTTP layer streams them
// to clients and the job listeners react to them.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies an event on the bus.
type EventType string

const (
	// RunStarted fires when a nightly (or on-demand) run begins fan-out.
	RunStarted EventType = "run_started"
	// RunFinished fires once per run with the final summary.
	RunFinished EventType = "run_finished"
	// RawStored fires when one symbol's raw series commits.
	RawStored EventType = "raw_stored"
	// DerivedStored fires when one symbol's derived artifact commits.
	DerivedStored EventType = "derived_stored"
	// SymbolFailed fires when one symbol reaches a terminal failure.
	SymbolFailed EventType = "symbol_failed"
	// ReportRendered fires when a PDF report is uploaded.
	ReportRendered EventType = "report_rendered"
	// JobStateChanged fires when an on-demand job advances its lifecycle.
	JobStateChanged EventType = "job_state_changed"
)

// Event is one occurrence on the bus.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Listener handles one event. Listeners run synchronously on the publisher's
// goroutine and must not block.
type Listener func(event *Event)

// Bus is a minimal synchronous pub/sub bus.
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
	log       zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[EventType][]Listener),
		log:       log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a listener for one event type.
func (b *Bus) Subscribe(t EventType, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], l)
}

// Publish delivers an event to all listeners of its type. A panicking
// listener is logged and skipped; publishers never see listener failures.
func (b *Bus) Publish(t EventType, data map[string]interface{}) {
	event := &Event{Type: t, Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	listeners := b.listeners[t]
	b.mu.RUnlock()

	for _, l := range listeners {
		b.safeNotify(l, event)
	}
}

// PublishData publishes a typed event payload.
func (b *Bus) PublishData(data EventData) {
	b.Publish(data.EventType(), data.ToMap())
}

func (b *Bus) safeNotify(l Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(event.Type)).
				Interface("panic", r).
				Msg("Event listener panicked")
		}
	}()
	l(event)
}
