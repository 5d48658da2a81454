// Package audit writes one record per aggregate state transition, in the
// same transaction as the transition itself.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

const defaultField = "status"

// Entry describes a single transition.
type Entry struct {
	EntityType enums.AggregateType
	EntityID   uuid.UUID
	Action     string
	Actor      identity.Actor
	// Field defaults to "status".
	Field    string
	Previous string
	New      string
	Metadata map[string]any
}

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record stores the entry using tx.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row, err := buildRow(entry)
	if err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// History lists the records for an entity, oldest first.
func (r *Recorder) History(ctx context.Context, entityType enums.AggregateType, entityID uuid.UUID) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func buildRow(entry Entry) (*models.AuditLog, error) {
	if !entry.EntityType.IsValid() {
		return nil, fmt.Errorf("invalid entity type %q", entry.EntityType)
	}
	if entry.EntityID == uuid.Nil {
		return nil, errors.New("entity id required")
	}
	if entry.Action == "" {
		return nil, errors.New("action required")
	}
	role := entry.Actor.Role
	if role == "" {
		role = enums.ActorSystem
	}
	field := entry.Field
	if field == "" {
		field = defaultField
	}
	row := &models.AuditLog{
		ID:            uuid.New(),
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		Action:        entry.Action,
		ActorID:       entry.Actor.ActorID(),
		ActorRole:     role,
		Field:         field,
		PreviousValue: optional(entry.Previous),
		NewValue:      optional(entry.New),
	}
	if len(entry.Metadata) > 0 {
		row.Metadata = datatypes.JSONMap(entry.Metadata)
	}
	return row, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
