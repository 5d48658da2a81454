package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
)

// ResolvedEvent is an outbox row validated and routed to its topic.
type ResolvedEvent struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
}

// EventRegistry knows which aggregate owns each event type and which topic
// serves each destination.
type EventRegistry struct {
	aggregates map[enums.OutboxEventType]enums.AggregateType
	topics     map[enums.OutboxDestination]string
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
// Destinations without a topic are rejected at resolve time.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxDestination]string{
		enums.DestinationWebhook:        cfg.WebhookTopic,
		enums.DestinationEmail:          cfg.EmailTopic,
		enums.DestinationSMS:            cfg.SMSTopic,
		enums.DestinationPaymentGateway: cfg.PaymentGatewayTopic,
		enums.DestinationAnalytics:      cfg.AnalyticsTopic,
		enums.DestinationNotification:   cfg.NotificationTopic,
	}
	configured := 0
	for dest, topic := range topics {
		if topic == "" {
			delete(topics, dest)
			continue
		}
		configured++
	}
	if configured == 0 {
		return nil, fmt.Errorf("at least one destination topic is required")
	}

	reg := &EventRegistry{
		aggregates: make(map[enums.OutboxEventType]enums.AggregateType),
		topics:     topics,
	}
	reg.register(enums.AggregateOrder,
		enums.EventOrderCreated,
		enums.EventOrderConfirmed,
		enums.EventOrderShipped,
		enums.EventOrderDelivered,
		enums.EventOrderCancelled,
		enums.EventOrderStatusChanged,
		enums.EventBuyerExpense,
	)
	reg.register(enums.AggregatePayment,
		enums.EventPaymentRecorded,
		enums.EventPaymentSubmitted,
		enums.EventPaymentConfirmed,
		enums.EventPaymentFailed,
		enums.EventCODPaymentConfirmed,
	)
	reg.register(enums.AggregateInvoice,
		enums.EventInvoiceGenerated,
		enums.EventInvoicePaid,
	)
	reg.register(enums.AggregateDispute,
		enums.EventDisputeCreated,
		enums.EventDisputeUnderReview,
		enums.EventDisputeSellerResponded,
		enums.EventDisputeResolved,
		enums.EventDisputeEscalated,
		enums.EventDisputeRejected,
		enums.EventDisputeClosed,
	)
	reg.register(enums.AggregateReturn,
		enums.EventReturnCreated,
		enums.EventReturnApproved,
		enums.EventReturnRejected,
		enums.EventReturnShipped,
		enums.EventReturnReceived,
		enums.EventReturnRefundProcessed,
		enums.EventReturnClosed,
	)
	reg.register(enums.AggregatePayout,
		enums.EventPayoutCreated,
		enums.EventPayoutApproved,
		enums.EventPayoutSettled,
		enums.EventPayoutFailed,
		enums.EventPayoutOnHold,
		enums.EventPayoutReleased,
	)
	return reg, nil
}

func (r *EventRegistry) register(aggregate enums.AggregateType, eventTypes ...enums.OutboxEventType) {
	for _, eventType := range eventTypes {
		r.aggregates[eventType] = aggregate
	}
}

// Topics lists the configured topic names, one per destination.
func (r *EventRegistry) Topics() []string {
	out := make([]string, 0, len(r.topics))
	for _, topic := range r.topics {
		out = append(out, topic)
	}
	return out
}

// Resolve validates the row and picks its topic.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	aggregate, ok := r.aggregates[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if aggregate != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", aggregate, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	topic, ok := r.topics[event.Destination]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no topic configured for destination %q", event.Destination))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}
	if envelope.EventType != string(event.EventType) {
		return nil, NewNonRetryableError(fmt.Errorf("envelope event type %q does not match row %s", envelope.EventType, event.EventType))
	}

	return &ResolvedEvent{Topic: topic, Envelope: envelope}, nil
}
