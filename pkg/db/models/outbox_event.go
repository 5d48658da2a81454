package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// OutboxEvent is an append-only event written in the same transaction as the
// business change. Only the dispatcher mutates delivery columns.
type OutboxEvent struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventType     enums.OutboxEventType   `gorm:"column:event_type;type:text;not null" json:"event_type"`
	AggregateType enums.AggregateType     `gorm:"column:aggregate_type;type:text;not null" json:"aggregate_type"`
	AggregateID   uuid.UUID               `gorm:"column:aggregate_id;type:uuid;not null" json:"aggregate_id"`
	Destination   enums.OutboxDestination `gorm:"column:destination;type:text;not null" json:"destination"`
	Payload       json.RawMessage         `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status        enums.OutboxStatus      `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	AttemptCount  int                     `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	MaxAttempts   int                     `gorm:"column:max_attempts;not null" json:"max_attempts"`
	NextAttemptAt time.Time               `gorm:"column:next_attempt_at;not null" json:"next_attempt_at"`
	PartitionKey  string                  `gorm:"column:partition_key;not null" json:"partition_key"`
	CorrelationID *string                 `gorm:"column:correlation_id" json:"correlation_id"`
	CausationID   *string                 `gorm:"column:causation_id" json:"causation_id"`
	LastError     *string                 `gorm:"column:last_error" json:"last_error"`
	DeliveredAt   *time.Time              `gorm:"column:delivered_at" json:"delivered_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
