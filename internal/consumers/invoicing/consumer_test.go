package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
)

func TestProcessGeneratesInvoiceOnce(t *testing.T) {
	gen := &stubGenerator{}
	markers := newMemoryMarkers()
	consumer := newTestConsumer(t, gen, markers)
	orderID := uuid.New()
	data := envelope(t, orderID)

	assert.True(t, consumer.Process(context.Background(), string(enums.EventOrderConfirmed), data))
	assert.True(t, consumer.Process(context.Background(), string(enums.EventOrderConfirmed), data))

	require.Len(t, gen.orders, 1)
	assert.Equal(t, orderID, gen.orders[0])
	assert.True(t, gen.actor.IsSystem())
}

func TestProcessSkipsOtherEventsAndGarbage(t *testing.T) {
	gen := &stubGenerator{}
	consumer := newTestConsumer(t, gen, newMemoryMarkers())

	assert.True(t, consumer.Process(context.Background(), string(enums.EventOrderShipped), envelope(t, uuid.New())))
	assert.True(t, consumer.Process(context.Background(), string(enums.EventOrderConfirmed), []byte("not json")))
	assert.Empty(t, gen.orders)
}

func TestProcessNacksTransientFailuresAndClearsMarker(t *testing.T) {
	gen := &stubGenerator{err: errors.New("db down")}
	markers := newMemoryMarkers()
	consumer := newTestConsumer(t, gen, markers)
	data := envelope(t, uuid.New())

	assert.False(t, consumer.Process(context.Background(), string(enums.EventOrderConfirmed), data))
	assert.Empty(t, markers.keys, "marker must be cleared so redelivery retries")

	gen.err = pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	assert.True(t, consumer.Process(context.Background(), string(enums.EventOrderConfirmed), data))
}

func newTestConsumer(t *testing.T, gen *stubGenerator, markers *memoryMarkers) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(noopReceiver{}, gen, markers, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	return consumer
}

func envelope(t *testing.T, orderID uuid.UUID) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{"order_id": orderID})
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:   1,
		EventID:   uuid.NewString(),
		EventType: string(enums.EventOrderConfirmed),
		Data:      data,
	})
	require.NoError(t, err)
	return raw
}

type stubGenerator struct {
	orders []uuid.UUID
	actor  identity.Actor
	err    error
}

func (s *stubGenerator) GenerateForOrder(_ context.Context, actor identity.Actor, orderID uuid.UUID) (*models.Invoice, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.orders = append(s.orders, orderID)
	s.actor = actor
	return &models.Invoice{InvoiceNumber: "INV-2026-0001"}, nil
}

type memoryMarkers struct {
	keys map[string]bool
}

func newMemoryMarkers() *memoryMarkers { return &memoryMarkers{keys: map[string]bool{}} }

func (m *memoryMarkers) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryMarkers) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryMarkers) IdempotencyKey(scope, key string) string { return scope + ":" + key }

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}
