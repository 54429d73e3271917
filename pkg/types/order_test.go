package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []OrderStatus{
		OrderStatusPending, OrderStatusPaid, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusOutForDelivery, OrderStatusDelivered,
	}
	for i := 0; i < len(path)-1; i++ {
		require.True(t, path[i].CanTransition(path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransition_NoSkippingOrRewinding(t *testing.T) {
	require.False(t, OrderStatusPaid.CanTransition(OrderStatusDelivered))
	require.False(t, OrderStatusPending.CanTransition(OrderStatusConfirmed))
	require.False(t, OrderStatusReady.CanTransition(OrderStatusPreparing))
	require.False(t, OrderStatusPaid.CanTransition(OrderStatusPending))
	require.False(t, OrderStatusPaid.CanTransition(OrderStatusPaid))
}

func TestCanTransition_Cancellation(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusPending, OrderStatusPaid, OrderStatusConfirmed,
		OrderStatusPreparing, OrderStatusReady, OrderStatusOutForDelivery,
	} {
		require.True(t, s.CanTransition(OrderStatusCancelled), "%s -> cancelled", s)
	}
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusPaymentFailed, OrderStatusCancelled} {
		require.False(t, s.CanTransition(OrderStatusCancelled), "%s -> cancelled", s)
	}
}

func TestCanTransition_PaymentFailedOnlyFromPending(t *testing.T) {
	require.True(t, OrderStatusPending.CanTransition(OrderStatusPaymentFailed))
	for _, s := range []OrderStatus{
		OrderStatusPaid, OrderStatusConfirmed, OrderStatusDelivered, OrderStatusCancelled,
	} {
		require.False(t, s.CanTransition(OrderStatusPaymentFailed), "%s -> payment_failed", s)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusPaymentFailed, OrderStatusCancelled} {
		require.True(t, s.IsTerminal())
	}
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusOutForDelivery} {
		require.False(t, s.IsTerminal())
	}
}

func TestValid(t *testing.T) {
	require.True(t, OrderStatusPreparing.Valid())
	require.False(t, OrderStatus("refunded").Valid())
	require.False(t, OrderStatus("").Valid())
}
