package server

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
)

func TestEventStreamBroadcast(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	stream := NewEventStream(bus, zerolog.Nop())
	defer stream.Close()

	ch := stream.addClient()
	require.NotNil(t, ch)

	bus.PublishData(&events.RunStartedData{
		RunID:        "run-1",
		BusinessDate: "2026-08-21",
		SymbolsTotal: 2,
		Trigger:      "schedule",
	})

	select {
	case msg := <-ch:
		var event events.Event
		require.NoError(t, json.Unmarshal(msg, &event))
		assert.Equal(t, events.RunStarted, event.Type)
		assert.Equal(t, "run-1", event.Data["run_id"])
	default:
		t.Fatal("expected a broadcast message")
	}
}

func TestEventStreamDropsWhenClientBufferFull(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	stream := NewEventStream(bus, zerolog.Nop())
	defer stream.Close()

	ch := stream.addClient()
	require.NotNil(t, ch)

	// publishing never blocks, even far past the client buffer
	for i := 0; i < streamBufferSize*2; i++ {
		bus.PublishData(&events.RawStoredData{Symbol: "PTT", BusinessDate: "2026-08-21"})
	}

	assert.Len(t, ch, streamBufferSize)
}

func TestEventStreamCloseDisconnectsClients(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	stream := NewEventStream(bus, zerolog.Nop())

	ch := stream.addClient()
	require.NotNil(t, ch)

	stream.Close()

	_, open := <-ch
	assert.False(t, open)

	// no new clients after close
	assert.Nil(t, stream.addClient())

	// publishing after close must not panic
	bus.PublishData(&events.RawStoredData{Symbol: "PTT", BusinessDate: "2026-08-21"})
}
