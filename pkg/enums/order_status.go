package enums

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPicking   OrderStatus = "picking"
	OrderStatusShipping  OrderStatus = "shipping"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusReturned  OrderStatus = "returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPicking,
	OrderStatusShipping,
	OrderStatusDelivered,
	OrderStatusClosed,
	OrderStatusCanceled,
	OrderStatusReturned,
}

// AdvancedOrderStatuses are the states that make an order newer than any
// still-pending sibling when deciding whether an event is stale.
var AdvancedOrderStatuses = []OrderStatus{
	OrderStatusPicking,
	OrderStatusShipping,
	OrderStatusClosed,
	OrderStatusDelivered,
}

// OpenOrderStatuses are the states counted when probing for telesale activity.
var OpenOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPicking,
	OrderStatusShipping,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool { return known(s, validOrderStatuses) }

// Routable reports whether a change into this status can move a customer.
func (s OrderStatus) Routable() bool {
	return s == OrderStatusPending || s == OrderStatusPicking || s == OrderStatusShipping
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", value, validOrderStatuses)
}
