package enums

import "fmt"

// AggregateType names the consistency boundary an outbox event or audit record belongs to.
type AggregateType string

const (
	AggregateOrder       AggregateType = "order"
	AggregatePayment     AggregateType = "payment"
	AggregateInvoice     AggregateType = "invoice"
	AggregateDispute     AggregateType = "dispute"
	AggregateReturn      AggregateType = "return"
	AggregatePayout      AggregateType = "payout"
	AggregateBankAccount AggregateType = "bank_account"
)

var validAggregateTypes = []AggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateInvoice,
	AggregateDispute,
	AggregateReturn,
	AggregatePayout,
	AggregateBankAccount,
}

// IsValid reports whether the value matches a known aggregate type.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAggregateType converts raw input into AggregateType.
func ParseAggregateType(value string) (AggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the business fact an outbox row announces.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderConfirmed     OutboxEventType = "order_confirmed"
	EventOrderShipped       OutboxEventType = "order_shipped"
	EventOrderDelivered     OutboxEventType = "order_delivered"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"

	EventPaymentRecorded     OutboxEventType = "payment_recorded"
	EventPaymentSubmitted    OutboxEventType = "payment_submitted"
	EventPaymentConfirmed    OutboxEventType = "payment_confirmed"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	EventCODPaymentConfirmed OutboxEventType = "cod_payment_confirmed"
	EventInvoiceGenerated    OutboxEventType = "invoice_generated"
	EventInvoicePaid         OutboxEventType = "invoice_paid"
	EventBuyerExpense        OutboxEventType = "buyer_expense_recorded"

	EventDisputeCreated         OutboxEventType = "dispute_created"
	EventDisputeUnderReview     OutboxEventType = "dispute_under_review"
	EventDisputeSellerResponded OutboxEventType = "dispute_seller_responded"
	EventDisputeResolved        OutboxEventType = "dispute_resolved"
	EventDisputeEscalated       OutboxEventType = "dispute_escalated"
	EventDisputeRejected        OutboxEventType = "dispute_rejected"
	EventDisputeClosed          OutboxEventType = "dispute_closed"

	EventReturnCreated         OutboxEventType = "return_created"
	EventReturnApproved        OutboxEventType = "return_approved"
	EventReturnRejected        OutboxEventType = "return_rejected"
	EventReturnShipped         OutboxEventType = "return_shipped"
	EventReturnReceived        OutboxEventType = "return_received"
	EventReturnRefundProcessed OutboxEventType = "return_refund_processed"
	EventReturnClosed          OutboxEventType = "return_closed"

	EventPayoutCreated  OutboxEventType = "payout_created"
	EventPayoutApproved OutboxEventType = "payout_approved"
	EventPayoutSettled  OutboxEventType = "payout_settled"
	EventPayoutFailed   OutboxEventType = "payout_failed"
	EventPayoutOnHold   OutboxEventType = "payout_on_hold"
	EventPayoutReleased OutboxEventType = "payout_released"
)

func (e OutboxEventType) String() string {
	return string(e)
}

// OutboxDestination is the external channel an outbox event is meant for.
type OutboxDestination string

const (
	DestinationWebhook        OutboxDestination = "webhook"
	DestinationEmail          OutboxDestination = "email"
	DestinationSMS            OutboxDestination = "sms"
	DestinationPaymentGateway OutboxDestination = "payment_gateway"
	DestinationAnalytics      OutboxDestination = "analytics"
	DestinationNotification   OutboxDestination = "notification"
)

var validOutboxDestinations = []OutboxDestination{
	DestinationWebhook,
	DestinationEmail,
	DestinationSMS,
	DestinationPaymentGateway,
	DestinationAnalytics,
	DestinationNotification,
}

// IsValid reports whether the value is a known destination.
func (d OutboxDestination) IsValid() bool {
	for _, candidate := range validOutboxDestinations {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseOutboxDestination converts raw input into OutboxDestination.
func ParseOutboxDestination(value string) (OutboxDestination, error) {
	for _, candidate := range validOutboxDestinations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox destination %q", value)
}

// OutboxStatus is the delivery status of an outbox row, owned by the dispatcher.
type OutboxStatus string

const (
	OutboxStatusPending      OutboxStatus = "pending"
	OutboxStatusDelivered    OutboxStatus = "delivered"
	OutboxStatusFailed       OutboxStatus = "failed"
	OutboxStatusDeadLettered OutboxStatus = "dead_lettered"
)

// OutboxDLQStatus tracks operator handling of a dead-lettered event.
type OutboxDLQStatus string

const (
	OutboxDLQStatusPending  OutboxDLQStatus = "pending"
	OutboxDLQStatusResolved OutboxDLQStatus = "resolved"
	OutboxDLQStatusSkipped  OutboxDLQStatus = "skipped"
)
