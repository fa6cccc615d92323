package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventType names the record set a change notification belongs to
type EventType string

const (
	EventTypeBoardChanged        EventType = "board_changed"
	EventTypePrizeChanged        EventType = "prize_changed"
	EventTypeDrawEventCreated    EventType = "draw_event_created"
	EventTypeOverlayStateChanged EventType = "overlay_state_changed"
)

// AllTypes lists every event type in a stable order
var AllTypes = []EventType{
	EventTypeBoardChanged,
	EventTypePrizeChanged,
	EventTypeDrawEventCreated,
	EventTypeOverlayStateChanged,
}

// Event is the base interface for all change notifications
type Event interface {
	Type() EventType
	Board() uuid.UUID
}

// BoardChangedEvent is emitted when board details, status or token change
type BoardChangedEvent struct {
	BoardID uuid.UUID `msgpack:"board_id"`
	Deleted bool      `msgpack:"deleted"`
}

func (e BoardChangedEvent) Type() EventType  { return EventTypeBoardChanged }
func (e BoardChangedEvent) Board() uuid.UUID { return e.BoardID }

// PrizeChangedEvent is emitted when a prize quantity moves or the prize set is replaced.
// PrizeID is uuid.Nil for whole-set replacement.
type PrizeChangedEvent struct {
	BoardID uuid.UUID `msgpack:"board_id"`
	PrizeID uuid.UUID `msgpack:"prize_id"`
	QtyLeft int       `msgpack:"qty_left"`
}

func (e PrizeChangedEvent) Type() EventType  { return EventTypePrizeChanged }
func (e PrizeChangedEvent) Board() uuid.UUID { return e.BoardID }

// DrawEventCreatedEvent is emitted once per committed draw
type DrawEventCreatedEvent struct {
	BoardID     uuid.UUID `msgpack:"board_id"`
	DrawEventID uuid.UUID `msgpack:"draw_event_id"`
	PrizeID     uuid.UUID `msgpack:"prize_id"`
	ViewerName  string    `msgpack:"viewer_name"`
	PrizeTier   string    `msgpack:"prize_tier"`
	PrizeName   string    `msgpack:"prize_name"`
	BoardTitle  string    `msgpack:"board_title"`
	CreatedAt   time.Time `msgpack:"created_at"`
}

func (e DrawEventCreatedEvent) Type() EventType  { return EventTypeDrawEventCreated }
func (e DrawEventCreatedEvent) Board() uuid.UUID { return e.BoardID }

// OverlayStateChangedEvent is emitted on every overlay state write
type OverlayStateChangedEvent struct {
	BoardID        uuid.UUID  `msgpack:"board_id"`
	IsModalOpen    bool       `msgpack:"is_modal_open"`
	FocusedPrizeID *uuid.UUID `msgpack:"focused_prize_id"`
	ShowLastResult bool       `msgpack:"show_last_result"`
	UpdatedAt      time.Time  `msgpack:"updated_at"`
}

func (e OverlayStateChangedEvent) Type() EventType  { return EventTypeOverlayStateChanged }
func (e OverlayStateChangedEvent) Board() uuid.UUID { return e.BoardID }

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Subscription is the handle returned by Subscribe
type Subscription struct {
	id        uint64
	eventType EventType
	boardID   uuid.UUID
	handler   Handler
}

// EventType returns the type this subscription listens to
func (s *Subscription) EventType() EventType { return s.eventType }

func (s *Subscription) matches(boardID uuid.UUID) bool {
	return s.boardID == uuid.Nil || s.boardID == boardID
}

// Bus manages filtered subscriptions and dispatches events asynchronously.
// Delivery order across handlers and event types is not guaranteed.
type Bus struct {
	mu       sync.RWMutex
	nextID   atomic.Uint64
	handlers map[EventType][]*Subscription
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]*Subscription),
	}
}

// Subscribe registers handler for events of eventType on boardID.
// uuid.Nil subscribes to every board.
func (b *Bus) Subscribe(eventType EventType, boardID uuid.UUID, handler Handler) *Subscription {
	sub := &Subscription{
		id:        b.nextID.Add(1),
		eventType: eventType,
		boardID:   boardID,
		handler:   handler,
	}

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], sub)
	count := len(b.handlers[eventType])
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"boardID":      boardID,
		"handlerCount": count,
	}).Debug("Subscribed handler to event type")
	return sub
}

// Unsubscribe removes sub. Events already dispatched may still reach its handler.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.handlers[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// SubscriberCount returns the number of live subscriptions for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Emit publishes an event to every matching subscription
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	var matched []*Subscription
	for _, sub := range b.handlers[event.Type()] {
		if sub.matches(event.Board()) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"boardID":      event.Board(),
		"handlerCount": len(matched),
	}).Debug("Emitting event to handlers")

	for _, sub := range matched {
		go func(s *Subscription) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":      event.Type(),
						"subscriptionID": s.id,
						"panic":          r,
					}).Error("Event handler panicked")
				}
			}()
			s.handler(ctx, event)
		}(sub)
	}
}

type remoteKey struct{}

// WithRemoteOrigin marks ctx as carrying an event relayed from another instance
func WithRemoteOrigin(ctx context.Context) context.Context {
	return context.WithValue(ctx, remoteKey{}, true)
}

// IsRemote reports whether the event being handled was relayed from another instance
func IsRemote(ctx context.Context) bool {
	remote, _ := ctx.Value(remoteKey{}).(bool)
	return remote
}

// TransactionalBus holds pending events coupled to a unit of work
// and flushes them to the underlying bus after commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Flush is called after a successful commit. Emission uses a background
// context so handlers outlive the request that committed.
func (b *TransactionalBus) Flush() {
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard is called after rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}

// Pending returns the number of queued events
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}
