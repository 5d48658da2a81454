package disputes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// ActiveStatuses are the statuses covered by the one-active-dispute-per-order index.
var ActiveStatuses = []enums.DisputeStatus{
	enums.DisputeStatusOpen,
	enums.DisputeStatusUnderReview,
	enums.DisputeStatusSellerResponded,
	enums.DisputeStatusEscalated,
}

// Repository defines persistence operations for disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.DisputeStatus, updates map[string]any) error
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error)
	ListOverdueResponses(ctx context.Context, now time.Time, limit int) ([]models.Dispute, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) error {
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := db.LockByID(r.db.WithContext(ctx), &dispute, id); err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.DisputeStatus, updates map[string]any) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.Dispute{}, id, "status", expected, updates)
}

func (r *repository) FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("status IN ?", ActiveStatuses).
		First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error) {
	var rows []models.Dispute
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// ListOverdueResponses returns disputes still waiting on the seller after
// their response deadline.
func (r *repository) ListOverdueResponses(ctx context.Context, now time.Time, limit int) ([]models.Dispute, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Dispute
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}).
		Where("response_deadline < ?", now).
		Order("response_deadline ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
