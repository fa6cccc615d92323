package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestEventDeliveryIntegration follows a draw from the transactional bus to a board subscriber
func TestEventDeliveryIntegration(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)
	board := uuid.New()

	eventReceived := make(chan DrawEventCreatedEvent, 1)
	mainBus.Subscribe(EventTypeDrawEventCreated, board, func(ctx context.Context, event Event) {
		if created, ok := event.(DrawEventCreatedEvent); ok {
			eventReceived <- created
		} else {
			t.Errorf("Expected DrawEventCreatedEvent, got %T", event)
		}
	})

	testEvent := DrawEventCreatedEvent{
		BoardID:     board,
		DrawEventID: uuid.New(),
		PrizeID:     uuid.New(),
		ViewerName:  "Alice",
		PrizeTier:   "1등",
		PrizeName:   "Figure",
		BoardTitle:  "Friday stream",
		CreatedAt:   time.Now(),
	}
	transactionalBus.Publish(testEvent)
	transactionalBus.Flush()

	select {
	case received := <-eventReceived:
		assert.Equal(t, testEvent.DrawEventID, received.DrawEventID)
		assert.Equal(t, "Alice", received.ViewerName)
		assert.Equal(t, "1등", received.PrizeTier)
	case <-time.After(2 * time.Second):
		t.Fatal("Event was not received within timeout")
	}
}

// TestMultipleEventsDelivery flushes one commit's worth of events of every type
func TestMultipleEventsDelivery(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)
	board := uuid.New()

	var (
		mu       sync.Mutex
		received = make(map[EventType]int)
		wg       sync.WaitGroup
	)
	wg.Add(len(AllTypes))
	for _, eventType := range AllTypes {
		mainBus.Subscribe(eventType, board, func(ctx context.Context, event Event) {
			defer wg.Done()
			mu.Lock()
			received[event.Type()]++
			mu.Unlock()
		})
	}

	transactionalBus.Publish(BoardChangedEvent{BoardID: board})
	transactionalBus.Publish(PrizeChangedEvent{BoardID: board, QtyLeft: 1})
	transactionalBus.Publish(DrawEventCreatedEvent{BoardID: board})
	transactionalBus.Publish(OverlayStateChangedEvent{BoardID: board, ShowLastResult: true})
	transactionalBus.Flush()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Not every event was delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, eventType := range AllTypes {
		assert.Equal(t, 1, received[eventType], eventType)
	}
}

// TestTransactionalBusDiscard checks a rolled back draw never reaches subscribers
func TestTransactionalBusDiscard(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)
	board := uuid.New()

	eventReceived := make(chan bool, 1)
	mainBus.Subscribe(EventTypeDrawEventCreated, uuid.Nil, func(ctx context.Context, event Event) {
		eventReceived <- true
	})

	transactionalBus.Publish(DrawEventCreatedEvent{BoardID: board, ViewerName: "Bob"})
	transactionalBus.Discard()

	select {
	case <-eventReceived:
		t.Fatal("Event was received despite being discarded")
	case <-time.After(100 * time.Millisecond):
	}
}
