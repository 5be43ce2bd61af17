package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
)

const (
	streamBufferSize  = 64
	heartbeatInterval = 25 * time.Second
)

// streamedTypes is the set of bus events forwarded to SSE clients.
var streamedTypes = []events.EventType{
	events.RunStarted,
	events.RunFinished,
	events.RawStored,
	events.DerivedStored,
	events.SymbolFailed,
	events.ReportRendered,
	events.JobStateChanged,
}

// EventStream fans bus events out to connected SSE clients. Bus listeners
// must not block, so each client gets a buffered channel; a client that
// cannot keep up loses events rather than stalling the pipeline.
type EventStream struct {
	mu      sync.Mutex
	clients map[chan []byte]bool
	closed  bool
	log     zerolog.Logger
}

// NewEventStream creates the stream and subscribes it to the bus.
func NewEventStream(bus *events.Bus, log zerolog.Logger) *EventStream {
	s := &EventStream{
		clients: make(map[chan []byte]bool),
		log:     log.With().Str("component", "event_stream").Logger(),
	}
	for _, t := range streamedTypes {
		bus.Subscribe(t, s.broadcast)
	}
	return s
}

// HandleStream serves one SSE connection until the client disconnects.
func (s *EventStream) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.addClient()
	if ch == nil {
		return
	}
	defer s.removeClient(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Close disconnects all clients. Called at server shutdown.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
		delete(s.clients, ch)
	}
}

func (s *EventStream) addClient() chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	ch := make(chan []byte, streamBufferSize)
	s.clients[ch] = true
	s.log.Debug().Int("clients", len(s.clients)).Msg("SSE client connected")
	return ch
}

func (s *EventStream) removeClient(ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
	}
	s.log.Debug().Int("clients", len(s.clients)).Msg("SSE client disconnected")
}

// broadcast is the bus listener. Slow clients are skipped, never waited on.
func (s *EventStream) broadcast(event *events.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- msg:
		default:
			// client buffer full; drop this event for that client
		}
	}
}
