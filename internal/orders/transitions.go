package orders

import (
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPendingConfirmation: {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:           {enums.OrderStatusInProgress, enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusInProgress:          {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:             {enums.OrderStatusDelivered, enums.OrderStatusFailed},
	enums.OrderStatusDelivered:           {enums.OrderStatusRefunded, enums.OrderStatusClosed},
	enums.OrderStatusFailed:              {enums.OrderStatusRefunded},
}

// CanTransitionTo reports whether from -> to is in the order transition table.
func CanTransitionTo(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from status.
func AllowedTransitions(status enums.OrderStatus) []enums.OrderStatus {
	next := transitions[status]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// buyerCancellable and sellerCancellable gate cancel by role.
var (
	buyerCancellable  = []enums.OrderStatus{enums.OrderStatusPendingConfirmation}
	sellerCancellable = []enums.OrderStatus{
		enums.OrderStatusPendingConfirmation,
		enums.OrderStatusConfirmed,
		enums.OrderStatusInProgress,
	}
)

func fulfillmentFor(status enums.OrderStatus) (enums.FulfillmentStatus, bool) {
	switch status {
	case enums.OrderStatusInProgress:
		return enums.FulfillmentStatusProcessing, true
	case enums.OrderStatusShipped:
		return enums.FulfillmentStatusShipped, true
	case enums.OrderStatusDelivered:
		return enums.FulfillmentStatusDelivered, true
	case enums.OrderStatusFailed:
		return enums.FulfillmentStatusFailed, true
	case enums.OrderStatusRefunded:
		return enums.FulfillmentStatusReturned, true
	}
	return "", false
}

func containsStatus(list []enums.OrderStatus, status enums.OrderStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
