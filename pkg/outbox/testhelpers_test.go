package outbox

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
)

func newOutboxTestDB(t *testing.T) (*gorm.DB, *db.Client) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stmts := []string{
		`CREATE TABLE outbox_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			destination TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL,
			next_attempt_at DATETIME NOT NULL,
			partition_key TEXT NOT NULL,
			correlation_id TEXT,
			causation_id TEXT,
			last_error TEXT,
			delivered_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE outbox_dlq (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			destination TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			partition_key TEXT NOT NULL,
			correlation_id TEXT,
			causation_id TEXT,
			error_reason TEXT NOT NULL,
			error_message TEXT,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			requeued_event_id TEXT,
			resolved_at DATETIME,
			resolved_by TEXT,
			resolution_note TEXT,
			failed_at DATETIME NOT NULL,
			created_at DATETIME
		);`,
		`CREATE TABLE probe (id TEXT PRIMARY KEY, name TEXT NOT NULL);`,
	}
	for _, stmt := range stmts {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn, db.NewFromGorm(conn)
}
