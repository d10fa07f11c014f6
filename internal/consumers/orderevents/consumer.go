package orderevents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/salesops/basket-engine/internal/baskets"
	"github.com/salesops/basket-engine/internal/roundrobin"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
)

const consumerName = "order-events"

// StatusChanged is the message order-management publishes on every order
// status change. An empty PreviousStatus marks a newly created order.
type StatusChanged struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	TriggeredBy    int64  `json:"triggered_by"`
}

type subscription interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type router interface {
	HandleOrderStatusChange(ctx context.Context, orderID string, newStatus enums.OrderStatus, triggeredBy int64) (*baskets.RoutingResult, error)
}

type assigner interface {
	AssignOrder(ctx context.Context, orderID string) (*roundrobin.Assignment, error)
	ClearOnAdvance(ctx context.Context, orderID string) (bool, error)
}

type dedup interface {
	Seen(ctx context.Context, consumer, messageID string) (bool, error)
	Forget(ctx context.Context, consumer, messageID string) error
}

// Params configure the consumer. Assigner is optional.
type Params struct {
	Subscription subscription
	Router       router
	Assigner     assigner
	Dedup        dedup
	Logger       *logger.Logger
}

// Consumer routes order status changes into basket transitions.
type Consumer struct {
	subscription subscription
	router       router
	assigner     assigner
	dedup        dedup
	logg         *logger.Logger
}

// NewConsumer validates the wiring.
func NewConsumer(p Params) (*Consumer, error) {
	if p.Subscription == nil {
		return nil, errors.New("order events subscription is required")
	}
	if p.Router == nil {
		return nil, errors.New("basket router is required")
	}
	if p.Dedup == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: p.Subscription,
		router:       p.Router,
		assigner:     p.Assigner,
		dedup:        p.Dedup,
		logg:         p.Logger,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

var (
	ackResult  = processResult{ack: true}
	nackResult = processResult{nack: true}
)

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	event, err := decode(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		return ackResult
	}
	status, err := enums.ParseOrderStatus(event.Status)
	if err != nil {
		c.logg.Warn(logCtx, err.Error())
		return ackResult
	}
	logCtx = c.logg.WithOrderID(logCtx, event.OrderID)
	logCtx = c.logg.WithField(logCtx, "order_status", string(status))

	seen, err := c.dedup.Seen(logCtx, consumerName, msg.ID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return nackResult
	}
	if seen {
		c.logg.Info(logCtx, "order event already processed")
		return ackResult
	}

	result, err := c.router.HandleOrderStatusChange(logCtx, event.OrderID, status, event.TriggeredBy)
	if err != nil {
		if pkgerrors.Retryable(err) {
			c.logg.Error(logCtx, "basket routing failed, will retry", err)
			if ferr := c.dedup.Forget(logCtx, consumerName, msg.ID); ferr != nil {
				c.logg.Error(logCtx, "failed to release idempotency key", ferr)
			}
			return nackResult
		}
		c.logg.Warn(logCtx, "basket routing rejected event: "+err.Error())
		return ackResult
	}
	if result != nil {
		c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
			"basket_to":       result.ToBasket,
			"transition_type": string(result.TransitionType),
			"rule":            result.Rule,
		}), "order event routed")
	}

	c.rotate(logCtx, event, status)
	return ackResult
}

// rotate hands new orders to the next agent and drops the stamp once they
// advance. Failures are logged only; redelivering would re-run routing.
func (c *Consumer) rotate(ctx context.Context, event StatusChanged, status enums.OrderStatus) {
	if c.assigner == nil {
		return
	}
	switch {
	case status == enums.OrderStatusPending && event.PreviousStatus == "":
		assignment, err := c.assigner.AssignOrder(ctx, event.OrderID)
		if err != nil {
			c.logg.Error(ctx, "round robin assignment failed", err)
			return
		}
		if assignment == nil {
			c.logg.Warn(ctx, "no agent eligible for new order")
		}
	case status != enums.OrderStatusPending:
		if _, err := c.assigner.ClearOnAdvance(ctx, event.OrderID); err != nil {
			c.logg.Error(ctx, "clearing routing owner failed", err)
		}
	}
}

func decode(data []byte) (StatusChanged, error) {
	var event StatusChanged
	if len(data) == 0 {
		return event, fmt.Errorf("payload empty")
	}
	payload := data
	if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		payload = decoded
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("unmarshal order event: %w", err)
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return event, fmt.Errorf("order_id missing")
	}
	return event, nil
}
