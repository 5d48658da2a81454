package enums

import "fmt"

// OrderStatus tracks the lifecycle of a marketplace order.
type OrderStatus string

const (
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	OrderStatusConfirmed           OrderStatus = "confirmed"
	OrderStatusInProgress          OrderStatus = "in_progress"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusFailed              OrderStatus = "failed"
	OrderStatusCancelled           OrderStatus = "cancelled"
	OrderStatusRefunded            OrderStatus = "refunded"
	OrderStatusClosed              OrderStatus = "closed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingConfirmation,
	OrderStatusConfirmed,
	OrderStatusInProgress,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusFailed,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusClosed,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// FulfillmentStatus mirrors the physical side of an order.
type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusProcessing  FulfillmentStatus = "processing"
	FulfillmentStatusShipped     FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered   FulfillmentStatus = "delivered"
	FulfillmentStatusFailed      FulfillmentStatus = "failed"
	FulfillmentStatusReturned    FulfillmentStatus = "returned"
)

func (s FulfillmentStatus) String() string {
	return string(s)
}
