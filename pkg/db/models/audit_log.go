package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// AuditLog records one state transition on an aggregate.
type AuditLog struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EntityType    enums.AggregateType `gorm:"column:entity_type;type:text;not null" json:"entity_type"`
	EntityID      uuid.UUID           `gorm:"column:entity_id;type:uuid;not null;index" json:"entity_id"`
	Action        string              `gorm:"column:action;not null" json:"action"`
	ActorID       *uuid.UUID          `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	ActorRole     enums.ActorRole     `gorm:"column:actor_role;type:text;not null" json:"actor_role"`
	Field         string              `gorm:"column:field;not null;default:'status'" json:"field"`
	PreviousValue *string             `gorm:"column:previous_value" json:"previous_value"`
	NewValue      *string             `gorm:"column:new_value" json:"new_value"`
	Metadata      datatypes.JSONMap   `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
