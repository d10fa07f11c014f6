package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/outbox/payloads"
)

func TestResolveDecodesTransitionAndAttributes(t *testing.T) {
	reg := newTestRegistry(t)
	from := "upsell_review"
	row := models.OutboxEvent{
		EventType:     enums.EventCustomerBasketTransitioned,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   "42",
		Payload: envelope(t, payloads.BasketTransitionedEvent{
			CustomerID:     42,
			FromBasketKey:  &from,
			ToBasketKey:    "personal_recent",
			TransitionType: enums.TransitionSold,
		}),
	}

	resolved, err := reg.Resolve(row)
	require.NoError(t, err)
	assert.Equal(t, "basket-events", resolved.Descriptor.Topic)
	assert.Equal(t, "evt-1", resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.BasketTransitionedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, int64(42), payload.CustomerID)
	assert.Equal(t, map[string]string{
		"customer_id":     "42",
		"from_basket":     "upsell_review",
		"to_basket":       "personal_recent",
		"transition_type": string(enums.TransitionSold),
	}, resolved.Attributes)
}

func TestResolveRejectsBadRowsAsValidation(t *testing.T) {
	reg := newTestRegistry(t)
	valid := envelope(t, payloads.BasketTransitionedEvent{CustomerID: 1, ToBasketKey: "x"})

	cases := map[string]models.OutboxEvent{
		"unknown type":         {EventType: "order_created", AggregateType: enums.AggregateCustomer, AggregateID: "1", Payload: valid},
		"aggregate mismatch":   {EventType: enums.EventCustomerBasketTransitioned, AggregateType: "order", AggregateID: "1", Payload: valid},
		"missing aggregate id": {EventType: enums.EventCustomerBasketTransitioned, AggregateType: enums.AggregateCustomer, Payload: valid},
		"null payload":         {EventType: enums.EventCustomerBasketTransitioned, AggregateType: enums.AggregateCustomer, AggregateID: "1", Payload: envelope(t, nil)},
		"bad envelope":         {EventType: enums.EventCustomerBasketTransitioned, AggregateType: enums.AggregateCustomer, AggregateID: "1", Payload: json.RawMessage(`{`)},
		"payload wrong shape":  {EventType: enums.EventCustomerBasketTransitioned, AggregateType: enums.AggregateCustomer, AggregateID: "1", Payload: envelope(t, []int{1})},
	}
	for name, row := range cases {
		_, err := reg.Resolve(row)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: got %v", name, err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := newTestRegistry(t)
	err := Register[payloads.BasketTransitionedEvent](reg, enums.EventCustomerBasketTransitioned, enums.AggregateCustomer, "other", nil)
	assert.Error(t, err)
}

func TestNewRequiresTopic(t *testing.T) {
	_, err := New(config.PubSubConfig{})
	assert.Error(t, err)
}

func newTestRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := New(config.PubSubConfig{BasketEventsTopic: "basket-events"})
	require.NoError(t, err)
	return reg
}

func envelope(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    "evt-1",
		OccurredAt: time.Now(),
		Data:       raw,
	})
	require.NoError(t, err)
	return out
}
