package infrastructure

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji/events"
)

// memoryMessageBus fans messages out to every subscriber, like a NATS server
type memoryMessageBus struct {
	mu       sync.Mutex
	handlers []func(subject string, data []byte)
	subjects []string
}

func (m *memoryMessageBus) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	handlers := append([]func(string, []byte){}, m.handlers...)
	m.subjects = append(m.subjects, subject)
	m.mu.Unlock()
	for _, h := range handlers {
		h(subject, data)
	}
	return nil
}

func (m *memoryMessageBus) Subscribe(subject string, handler func(subject string, data []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return nil
}

func (m *memoryMessageBus) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.subjects...)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	boardID := uuid.New()
	in := []events.Event{
		events.BoardChangedEvent{BoardID: boardID, Deleted: true},
		events.PrizeChangedEvent{BoardID: boardID, PrizeID: uuid.New(), QtyLeft: 3},
		events.DrawEventCreatedEvent{BoardID: boardID, DrawEventID: uuid.New(), PrizeID: uuid.New(), ViewerName: "Alice", PrizeTier: "A", PrizeName: "Figure", BoardTitle: "Board", CreatedAt: time.Now().UTC().Truncate(time.Microsecond)},
		events.OverlayStateChangedEvent{BoardID: boardID, IsModalOpen: true, UpdatedAt: time.Now().UTC().Truncate(time.Microsecond)},
	}
	focused := uuid.New()
	in = append(in, events.OverlayStateChangedEvent{BoardID: boardID, IsModalOpen: true, FocusedPrizeID: &focused, ShowLastResult: true})

	for _, e := range in {
		data, err := EncodeEnvelope("origin-1", e)
		require.NoError(t, err)

		origin, out, err := DecodeEnvelope(data)
		require.NoError(t, err)
		assert.Equal(t, "origin-1", origin)
		assert.Equal(t, e.Type(), out.Type())
		assert.Equal(t, e.Board(), out.Board())
	}

	data, err := EncodeEnvelope("origin-1", in[len(in)-1])
	require.NoError(t, err)
	_, out, err := DecodeEnvelope(data)
	require.NoError(t, err)
	changed, ok := out.(events.OverlayStateChangedEvent)
	require.True(t, ok)
	require.NotNil(t, changed.FocusedPrizeID)
	assert.Equal(t, focused, *changed.FocusedPrizeID)
	assert.True(t, changed.ShowLastResult)
}

func TestDecodeEnvelope_Garbage(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte("not msgpack"))
	assert.Error(t, err)
}

func TestRelay_MirrorsEventsBetweenInstances(t *testing.T) {
	mb := &memoryMessageBus{}
	busA, busB := events.NewBus(), events.NewBus()
	relayA, relayB := NewRelay(busA, mb), NewRelay(busB, mb)
	require.NoError(t, relayA.Start())
	require.NoError(t, relayB.Start())
	defer relayA.Stop()
	defer relayB.Stop()

	boardID := uuid.New()
	onB := make(chan events.Event, 4)
	busB.Subscribe(events.EventTypeOverlayStateChanged, boardID, func(ctx context.Context, e events.Event) {
		assert.True(t, events.IsRemote(ctx))
		onB <- e
	})
	onA := make(chan events.Event, 4)
	busA.Subscribe(events.EventTypeOverlayStateChanged, boardID, func(ctx context.Context, e events.Event) {
		onA <- e
	})

	busA.Emit(context.Background(), events.OverlayStateChangedEvent{BoardID: boardID, ShowLastResult: true})

	select {
	case e := <-onB:
		assert.True(t, e.(events.OverlayStateChangedEvent).ShowLastResult)
	case <-time.After(time.Second):
		t.Fatal("event was not relayed")
	}

	// the local delivery only; the relay neither echoes back nor re-publishes remote events
	select {
	case <-onA:
	case <-time.After(time.Second):
		t.Fatal("local delivery missing")
	}
	select {
	case <-onA:
		t.Fatal("event echoed back to its origin")
	case <-time.After(50 * time.Millisecond):
	}

	subjects := mb.published()
	require.Len(t, subjects, 1)
	assert.True(t, strings.HasPrefix(subjects[0], "kuji.sync.overlay_state_changed."))
}
