package types

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusPaymentFailed  OrderStatus = "payment_failed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// forwardTransitions is the happy-path order progression. Cancellation is
// handled separately: any non-terminal status may move to cancelled.
var forwardTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:        OrderStatusPaid,
	OrderStatusPaid:           OrderStatusConfirmed,
	OrderStatusConfirmed:      OrderStatusPreparing,
	OrderStatusPreparing:      OrderStatusReady,
	OrderStatusReady:          OrderStatusOutForDelivery,
	OrderStatusOutForDelivery: OrderStatusDelivered,
}

// IsTerminal reports whether no further automatic transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusPaymentFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step in the
// order state machine.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return false
	}
	if next == OrderStatusCancelled {
		return !s.IsTerminal()
	}
	if next == OrderStatusPaymentFailed {
		return s == OrderStatusPending
	}
	return forwardTransitions[s] == next
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusConfirmed,
		OrderStatusPreparing, OrderStatusReady, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusPaymentFailed, OrderStatusCancelled:
		return true
	}
	return false
}
