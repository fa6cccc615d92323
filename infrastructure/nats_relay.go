package infrastructure

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"kuji/events"
)

// SyncSubjectPrefix prefixes every relayed sync subject
const SyncSubjectPrefix = "kuji.sync"

// MessageBus is the transport the relay publishes to and subscribes on
type MessageBus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

// envelope wraps a relayed event with the instance that produced it
type envelope struct {
	Origin    string           `msgpack:"origin"`
	EventType events.EventType `msgpack:"event_type"`
	Payload   []byte           `msgpack:"payload"`
}

// Relay mirrors local bus events to other instances and re-emits theirs locally
type Relay struct {
	bus    *events.Bus
	mb     MessageBus
	origin string
	subs   []*events.Subscription
}

// NewRelay creates a relay with a fresh origin id
func NewRelay(bus *events.Bus, mb MessageBus) *Relay {
	return &Relay{
		bus:    bus,
		mb:     mb,
		origin: uuid.NewString(),
	}
}

// SubjectFor returns the subject an event is relayed on
func SubjectFor(e events.Event) string {
	return fmt.Sprintf("%s.%s.%s", SyncSubjectPrefix, e.Type(), e.Board())
}

// Start subscribes to the local bus and to the remote subjects
func (r *Relay) Start() error {
	if err := r.mb.Subscribe(SyncSubjectPrefix+".>", r.receive); err != nil {
		return err
	}
	for _, t := range events.AllTypes {
		r.subs = append(r.subs, r.bus.Subscribe(t, uuid.Nil, r.forward))
	}
	log.WithField("origin", r.origin).Info("Sync relay started")
	return nil
}

// Stop detaches the relay from the local bus
func (r *Relay) Stop() {
	for _, sub := range r.subs {
		r.bus.Unsubscribe(sub)
	}
	r.subs = nil
}

func (r *Relay) forward(ctx context.Context, e events.Event) {
	if events.IsRemote(ctx) {
		return
	}

	data, err := EncodeEnvelope(r.origin, e)
	if err != nil {
		log.WithError(err).WithField("eventType", e.Type()).Error("Failed to encode sync event")
		return
	}
	if err := r.mb.Publish(ctx, SubjectFor(e), data); err != nil {
		log.WithError(err).WithField("eventType", e.Type()).Error("Failed to relay sync event")
	}
}

func (r *Relay) receive(subject string, data []byte) {
	origin, e, err := DecodeEnvelope(data)
	if err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to decode sync event")
		return
	}
	if origin == r.origin {
		return
	}
	r.bus.Emit(events.WithRemoteOrigin(context.Background()), e)
}

// EncodeEnvelope serializes an event for the wire
func EncodeEnvelope(origin string, e events.Event) ([]byte, error) {
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type(), err)
	}
	return msgpack.Marshal(envelope{
		Origin:    origin,
		EventType: e.Type(),
		Payload:   payload,
	})
}

// DecodeEnvelope deserializes an event produced by EncodeEnvelope
func DecodeEnvelope(data []byte) (string, events.Event, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	var (
		e   events.Event
		err error
	)
	switch env.EventType {
	case events.EventTypeBoardChanged:
		e, err = decodePayload[events.BoardChangedEvent](env.Payload)
	case events.EventTypePrizeChanged:
		e, err = decodePayload[events.PrizeChangedEvent](env.Payload)
	case events.EventTypeDrawEventCreated:
		e, err = decodePayload[events.DrawEventCreatedEvent](env.Payload)
	case events.EventTypeOverlayStateChanged:
		e, err = decodePayload[events.OverlayStateChangedEvent](env.Payload)
	default:
		return "", nil, fmt.Errorf("unknown event type %q", env.EventType)
	}
	if err != nil {
		return "", nil, err
	}
	return env.Origin, e, nil
}

func decodePayload[T events.Event](payload []byte) (events.Event, error) {
	var v T
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return v, nil
}
