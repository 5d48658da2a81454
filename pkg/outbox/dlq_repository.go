package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

const maxDLQErrorLen = 1024

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry *models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(entry).Error
}

// FindForUpdateTx loads a DLQ item and locks it for the rest of the transaction.
func (r *DLQRepository) FindForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&dlq).Error
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dlq, nil
}

func (r *DLQRepository) List(ctx context.Context, status enums.OutboxDLQStatus, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var rows []models.OutboxDLQ
	err := query.Find(&rows).Error
	return rows, err
}

// CloseTx moves a pending DLQ item to a final status.
func (r *DLQRepository) CloseTx(tx *gorm.DB, id uuid.UUID, status enums.OutboxDLQStatus, requeuedEventID *uuid.UUID, actorID *uuid.UUID, note *string, at time.Time) error {
	res := tx.Model(&models.OutboxDLQ{}).
		Where("id = ? AND status = ?", id, enums.OutboxDLQStatusPending).
		Updates(map[string]any{
			"status":            status,
			"requeued_event_id": requeuedEventID,
			"resolved_by":       actorID,
			"resolution_note":   note,
			"resolved_at":       at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDLQItemClosed
	}
	return nil
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
