package enums

import "fmt"

// OrderPaymentStatus is derived from the set of payments recorded against an order.
type OrderPaymentStatus string

const (
	OrderPaymentUnpaid     OrderPaymentStatus = "unpaid"
	OrderPaymentPartial    OrderPaymentStatus = "partial"
	OrderPaymentAuthorized OrderPaymentStatus = "authorized"
	OrderPaymentPaid       OrderPaymentStatus = "paid"
	OrderPaymentPaidCash   OrderPaymentStatus = "paid_cash"
	OrderPaymentRefunded   OrderPaymentStatus = "refunded"
)

var validOrderPaymentStatuses = []OrderPaymentStatus{
	OrderPaymentUnpaid,
	OrderPaymentPartial,
	OrderPaymentAuthorized,
	OrderPaymentPaid,
	OrderPaymentPaidCash,
	OrderPaymentRefunded,
}

func (s OrderPaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderPaymentStatus.
func (s OrderPaymentStatus) IsValid() bool {
	for _, candidate := range validOrderPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsSettled reports whether the order needs no further money from the buyer.
func (s OrderPaymentStatus) IsSettled() bool {
	return s == OrderPaymentPaid || s == OrderPaymentPaidCash
}

// PaymentStatus tracks a single recorded payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusConfirmed,
	PaymentStatusFailed,
}

func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentStatus.
func (s PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
