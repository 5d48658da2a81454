// Package invoicing generates invoices from order.confirmed events.
package invoicing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
)

const (
	consumerName   = "invoicing"
	processedTTL   = 7 * 24 * time.Hour
	processedValue = "done"
)

type invoiceGenerator interface {
	GenerateForOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*models.Invoice, error)
}

type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, key string) string
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type orderConfirmedPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// Consumer listens on the notification subscription and creates the invoice
// for each confirmed order.
type Consumer struct {
	subscription receiver
	invoices     invoiceGenerator
	markers      markerStore
	logg         *logger.Logger
}

func NewConsumer(subscription receiver, invoices invoiceGenerator, markers markerStore, logg *logger.Logger) (*Consumer, error) {
	switch {
	case subscription == nil:
		return nil, fmt.Errorf("subscription required")
	case invoices == nil:
		return nil, fmt.Errorf("invoice service required")
	case markers == nil:
		return nil, fmt.Errorf("marker store required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{subscription: subscription, invoices: invoices, markers: markers, logg: logg}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Process(ctx, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Process handles one message and reports whether it should be acked.
// Malformed messages are acked so they do not redeliver forever.
func (c *Consumer) Process(ctx context.Context, eventType string, data []byte) bool {
	logCtx := c.logg.WithField(ctx, "event_type", eventType)
	if eventType != string(enums.EventOrderConfirmed) {
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	var payload orderConfirmedPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.OrderID == uuid.Nil {
		c.logg.Error(logCtx, "invalid order confirmed payload", err)
		return true
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": envelope.EventID,
		"order_id": payload.OrderID.String(),
	})

	key := c.markers.IdempotencyKey(consumerName, envelope.EventID)
	fresh, err := c.markers.SetNX(ctx, key, processedValue, processedTTL)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	invoice, err := c.invoices.GenerateForOrder(ctx, identity.System(), payload.OrderID)
	if err != nil {
		if permanent(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invoice not generated")
			return true
		}
		c.logg.Error(logCtx, "invoice generation failed", err)
		if delErr := c.markers.Del(ctx, key); delErr != nil {
			c.logg.Error(logCtx, "failed to clear idempotency marker", delErr)
		}
		return false
	}
	c.logg.Info(c.logg.WithField(logCtx, "invoice_number", invoice.InvoiceNumber), "invoice generated")
	return true
}

// permanent reports errors a redelivery cannot fix.
func permanent(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	return !pkgerrors.MetadataFor(typed.Code()).Retryable
}
