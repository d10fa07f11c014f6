package payloads

import (
	"time"

	"github.com/salesops/basket-engine/pkg/enums"
)

// BasketTransitionedEvent is emitted for every committed basket transition.
type BasketTransitionedEvent struct {
	CustomerID     int64                `json:"customer_id"`
	LogID          int64                `json:"log_id"`
	FromBasketKey  *string              `json:"from_basket_key,omitempty"`
	ToBasketKey    string               `json:"to_basket_key"`
	AssignedToOld  *int64               `json:"assigned_to_old,omitempty"`
	AssignedToNew  *int64               `json:"assigned_to_new,omitempty"`
	TransitionType enums.TransitionType `json:"transition_type"`
	OrderID        *string              `json:"order_id,omitempty"`
	TriggeredBy    *int64               `json:"triggered_by,omitempty"`
	TransitionedAt time.Time            `json:"transitioned_at"`
}
