package enums

// OutboxAggregateType names the entity an outbox row describes.
type OutboxAggregateType string

const AggregateCustomer OutboxAggregateType = "customer"

var validAggregateTypes = []OutboxAggregateType{AggregateCustomer}

func (a OutboxAggregateType) IsValid() bool { return known(a, validAggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on published messages.
type OutboxEventType string

const EventCustomerBasketTransitioned OutboxEventType = "customer_basket_transitioned"

var validOutboxEventTypes = []OutboxEventType{EventCustomerBasketTransitioned}

func (e OutboxEventType) IsValid() bool { return known(e, validOutboxEventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}

// OutboxDLQErrorReason records why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return known(r, []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable})
}
