package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn, client := newOutboxTestDB(t)
	svc, err := NewService(ServiceParams{
		DB:         client,
		Repository: NewRepository(conn),
		DLQ:        NewDLQRepository(conn),
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func orderEvent(orderID uuid.UUID) Event {
	return Event{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Destination:   enums.DestinationWebhook,
		Actor:         &ActorRef{UserID: uuid.New(), Role: "seller"},
		Data:          map[string]any{"orderNumber": "ORD-2026-0001"},
		CorrelationID: "req-1",
	}
}

func countEvents(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	return count
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestEnqueueInTransactionWritesPendingRow(t *testing.T) {
	svc, conn := newTestService(t)
	orderID := uuid.New()

	row, err := svc.Enqueue(context.Background(), orderEvent(orderID))
	require.NoError(t, err)

	stored, err := NewRepository(conn).FindByID(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusPending, stored.Status)
	assert.Equal(t, orderID.String(), stored.PartitionKey)
	assert.Equal(t, DefaultMaxAttempts, stored.MaxAttempts)
	assert.Equal(t, 0, stored.AttemptCount)
	assert.Equal(t, enums.DestinationWebhook, stored.Destination)
	require.NotNil(t, stored.CorrelationID)
	assert.Equal(t, "req-1", *stored.CorrelationID)

	env, err := DecodeEnvelope(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, row.ID.String(), env.EventID)
	assert.Equal(t, "order_confirmed", env.EventType)
	assert.True(t, env.OccurredAt.Equal(fixedNow))
	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ORD-2026-0001", data["orderNumber"])
}

func TestEnqueueInTransactionRollsBackWithCaller(t *testing.T) {
	svc, conn := newTestService(t)
	client := svc.db

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := svc.EnqueueInTransaction(context.Background(), tx, orderEvent(uuid.New())); err != nil {
			return err
		}
		return errors.New("business write failed")
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), countEvents(t, conn))
}

func TestEnqueueAppliesDelayAndDefaultDestination(t *testing.T) {
	svc, _ := newTestService(t)
	ev := orderEvent(uuid.New())
	ev.Destination = ""
	ev.Delay = 5 * time.Minute
	ev.MaxAttempts = 3

	row, err := svc.Enqueue(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, enums.DestinationNotification, row.Destination)
	assert.True(t, row.NextAttemptAt.Equal(fixedNow.Add(5*time.Minute)))
	assert.Equal(t, 3, row.MaxAttempts)
}

func TestEnqueueBatchIsAllOrNothing(t *testing.T) {
	svc, conn := newTestService(t)
	invalid := orderEvent(uuid.Nil)

	_, err := svc.EnqueueBatch(context.Background(), []Event{orderEvent(uuid.New()), invalid})
	require.Error(t, err)
	assert.Equal(t, int64(0), countEvents(t, conn))

	rows, err := svc.EnqueueBatch(context.Background(), []Event{orderEvent(uuid.New()), orderEvent(uuid.New())})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int64(2), countEvents(t, conn))
}

func TestEnqueueBestEffortKeepsCallerTransaction(t *testing.T) {
	svc, conn := newTestService(t)
	bad := orderEvent(uuid.New())
	bad.AggregateType = "unknown"

	err := svc.db.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO probe (id, name) VALUES (?, ?)", uuid.NewString(), "kept").Error; err != nil {
			return err
		}
		svc.EnqueueBestEffort(context.Background(), tx, bad)
		svc.EnqueueBestEffort(context.Background(), tx, orderEvent(uuid.New()))
		return nil
	})
	require.NoError(t, err)

	var probes int64
	require.NoError(t, conn.Table("probe").Count(&probes).Error)
	assert.Equal(t, int64(1), probes)
	assert.Equal(t, int64(1), countEvents(t, conn))
}

func deadLetter(t *testing.T, svc *Service, conn *gorm.DB) models.OutboxDLQ {
	t.Helper()
	row, err := svc.Enqueue(context.Background(), orderEvent(uuid.New()))
	require.NoError(t, err)
	row.AttemptCount = 9
	err = svc.db.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.DeadLetterTx(context.Background(), tx, *row, enums.OutboxDLQReasonMaxAttempts, errors.New("webhook 500"))
	})
	require.NoError(t, err)

	dlq, err := NewDLQRepository(conn).FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, dlq)
	return *dlq
}

func TestDeadLetterMovesEventToDLQ(t *testing.T) {
	svc, conn := newTestService(t)
	dlq := deadLetter(t, svc, conn)

	assert.Equal(t, enums.OutboxDLQStatusPending, dlq.Status)
	assert.Equal(t, 10, dlq.AttemptCount)
	require.NotNil(t, dlq.ErrorMessage)
	assert.Equal(t, "webhook 500", *dlq.ErrorMessage)

	source, err := NewRepository(conn).FindByID(context.Background(), dlq.EventID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxStatusDeadLettered, source.Status)
}

func TestRequeueFromDLQCreatesFreshEvent(t *testing.T) {
	svc, conn := newTestService(t)
	dlq := deadLetter(t, svc, conn)
	operator := uuid.New()

	requeued, err := svc.RequeueFromDLQ(context.Background(), dlq.ID, &operator)
	require.NoError(t, err)
	assert.NotEqual(t, dlq.EventID, requeued.ID)
	assert.Equal(t, enums.OutboxStatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.AttemptCount)
	assert.Equal(t, dlq.PartitionKey, requeued.PartitionKey)

	items, err := svc.ListDLQ(context.Background(), enums.OutboxDLQStatusResolved, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].RequeuedEventID)
	assert.Equal(t, requeued.ID, *items[0].RequeuedEventID)
	require.NotNil(t, items[0].ResolvedBy)
	assert.Equal(t, operator, *items[0].ResolvedBy)

	_, err = svc.RequeueFromDLQ(context.Background(), dlq.ID, &operator)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
}

func TestResolveDLQItemSkipsWithNote(t *testing.T) {
	svc, conn := newTestService(t)
	dlq := deadLetter(t, svc, conn)

	require.NoError(t, svc.ResolveDLQItem(context.Background(), dlq.ID, nil, "customer webhook retired"))

	items, err := svc.ListDLQ(context.Background(), enums.OutboxDLQStatusSkipped, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ResolutionNote)
	assert.Equal(t, "customer webhook retired", *items[0].ResolutionNote)
	assert.Nil(t, items[0].RequeuedEventID)
	assert.Equal(t, int64(1), countEvents(t, conn))
}

func TestResolveDLQItemNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.ResolveDLQItem(context.Background(), uuid.New(), nil, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDLQItemNotFound))
}
