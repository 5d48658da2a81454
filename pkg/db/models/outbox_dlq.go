package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// OutboxDLQ captures terminal outbox failures for operator remediation.
type OutboxDLQ struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventID         uuid.UUID                  `gorm:"column:event_id;type:uuid;not null;uniqueIndex" json:"event_id"`
	EventType       enums.OutboxEventType      `gorm:"column:event_type;type:text;not null" json:"event_type"`
	AggregateType   enums.AggregateType        `gorm:"column:aggregate_type;type:text;not null" json:"aggregate_type"`
	AggregateID     uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null" json:"aggregate_id"`
	Destination     enums.OutboxDestination    `gorm:"column:destination;type:text;not null" json:"destination"`
	Payload         json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null" json:"payload_json"`
	PartitionKey    string                     `gorm:"column:partition_key;not null" json:"partition_key"`
	CorrelationID   *string                    `gorm:"column:correlation_id" json:"correlation_id"`
	CausationID     *string                    `gorm:"column:causation_id" json:"causation_id"`
	ErrorReason     enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:text;not null" json:"error_reason"`
	ErrorMessage    *string                    `gorm:"column:error_message" json:"error_message"`
	AttemptCount    int                        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	Status          enums.OutboxDLQStatus      `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	RequeuedEventID *uuid.UUID                 `gorm:"column:requeued_event_id;type:uuid" json:"requeued_event_id"`
	ResolvedAt      *time.Time                 `gorm:"column:resolved_at" json:"resolved_at"`
	ResolvedBy      *uuid.UUID                 `gorm:"column:resolved_by;type:uuid" json:"resolved_by"`
	ResolutionNote  *string                    `gorm:"column:resolution_note" json:"resolution_note"`
	FailedAt        time.Time                  `gorm:"column:failed_at;not null" json:"failed_at"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
