package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// Repository defines persistence operations for returns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ret *models.Return) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error)
	FindByDispute(ctx context.Context, disputeID uuid.UUID) (*models.Return, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Return, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.ReturnStatus, updates map[string]any) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Return, error)
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

func (r *repository) Create(ctx context.Context, ret *models.Return) error {
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ret).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) FindByDispute(ctx context.Context, disputeID uuid.UUID) (*models.Return, error) {
	var ret models.Return
	if err := r.db.WithContext(ctx).Where("dispute_id = ?", disputeID).First(&ret).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	if err := db.LockByID(r.db.WithContext(ctx), &ret, id); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.ReturnStatus, updates map[string]any) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.Return{}, id, "status", expected, updates)
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Return, error) {
	var rows []models.Return
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
