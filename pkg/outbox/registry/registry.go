package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/outbox/payloads"
)

// Descriptor says where an event type is published and how its payload is
// decoded.
type Descriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, map[string]string, error)
}

// Resolved is an outbox row ready to publish.
type Resolved struct {
	Descriptor Descriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
	// Attributes are event-specific Pub/Sub attributes for subscription filters.
	Attributes map[string]string
}

// EventRegistry maps each publishable event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]Descriptor
}

// New registers every event the engine emits.
func New(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.BasketEventsTopic)
	if topic == "" {
		return nil, fmt.Errorf("basket events topic is required")
	}
	r := &EventRegistry{entries: map[enums.OutboxEventType]Descriptor{}}
	err := Register(r, enums.EventCustomerBasketTransitioned, enums.AggregateCustomer, topic, transitionAttributes)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Register binds eventType to payload type T. attrs may be nil.
func Register[T any](r *EventRegistry, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, attrs func(*T) map[string]string) error {
	if _, dup := r.entries[eventType]; dup {
		return fmt.Errorf("event type %s already registered", eventType)
	}
	r.entries[eventType] = Descriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage) (any, map[string]string, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, nil, err
			}
			if attrs == nil {
				return payload, nil, nil
			}
			return payload, attrs(payload), nil
		},
	}
	return nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every error it returns is permanent for that row.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, malformed("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, malformed("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return nil, malformed("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, string(event.EventType))
	}
	payload, attrs, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+string(event.EventType))
	}
	return &Resolved{Descriptor: desc, Envelope: envelope, Payload: payload, Attributes: attrs}, nil
}

func malformed(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(format, args...))
}

func transitionAttributes(e *payloads.BasketTransitionedEvent) map[string]string {
	attrs := map[string]string{
		"customer_id":     strconv.FormatInt(e.CustomerID, 10),
		"to_basket":       e.ToBasketKey,
		"transition_type": string(e.TransitionType),
	}
	if e.FromBasketKey != nil {
		attrs["from_basket"] = *e.FromBasketKey
	}
	return attrs
}
