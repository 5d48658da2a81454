package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

func setupAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT,
		actor_role TEXT NOT NULL,
		field TEXT NOT NULL DEFAULT 'status',
		previous_value TEXT,
		new_value TEXT,
		metadata TEXT,
		created_at DATETIME
	);`).Error)
	return db
}

func TestRecordAndHistory(t *testing.T) {
	db := setupAuditDB(t)
	rec := NewRecorder(db)
	orderID := uuid.New()
	seller := identity.Actor{UserID: uuid.New(), Role: enums.ActorSeller}

	require.NoError(t, rec.Record(context.Background(), db, Entry{
		EntityType: enums.AggregateOrder,
		EntityID:   orderID,
		Action:     "confirm",
		Actor:      seller,
		Previous:   "pending_confirmation",
		New:        "confirmed",
	}))
	time.Sleep(time.Millisecond)
	require.NoError(t, rec.Record(context.Background(), db, Entry{
		EntityType: enums.AggregateOrder,
		EntityID:   orderID,
		Action:     "ship",
		Actor:      seller,
		Previous:   "confirmed",
		New:        "shipped",
		Metadata:   map[string]any{"tracking_number": "1Z999"},
	}))

	history, err := rec.History(context.Background(), enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "confirm", history[0].Action)
	assert.Equal(t, "status", history[0].Field)
	require.NotNil(t, history[1].NewValue)
	assert.Equal(t, "shipped", *history[1].NewValue)
	assert.Equal(t, "1Z999", history[1].Metadata["tracking_number"])
	require.NotNil(t, history[1].ActorID)
	assert.Equal(t, seller.UserID, *history[1].ActorID)
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	db := setupAuditDB(t)
	rec := NewRecorder(db)
	disputeID := uuid.New()

	require.NoError(t, rec.Record(context.Background(), db, Entry{
		EntityType: enums.AggregateDispute,
		EntityID:   disputeID,
		Action:     "escalate",
		Actor:      identity.System(),
	}))

	history, err := rec.History(context.Background(), enums.AggregateDispute, disputeID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.ActorSystem, history[0].ActorRole)
	assert.Nil(t, history[0].ActorID)
}

func TestRecordValidates(t *testing.T) {
	db := setupAuditDB(t)
	rec := NewRecorder(db)

	err := rec.Record(context.Background(), db, Entry{EntityType: "ghost", EntityID: uuid.New(), Action: "x"})
	require.Error(t, err)
	err = rec.Record(context.Background(), nil, Entry{EntityType: enums.AggregateOrder, EntityID: uuid.New(), Action: "x"})
	require.Error(t, err)
}
