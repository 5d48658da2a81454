package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// Repository defines persistence operations for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.PaymentStatus, updates map[string]any) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	BankReferenceExists(ctx context.Context, orderID uuid.UUID, reference string) (bool, error)
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

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := db.LockByID(r.db.WithContext(ctx), &payment, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdateIfStatus returns db.ErrStaleWrite when the payment left the expected status.
func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.PaymentStatus, updates map[string]any) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.Payment{}, id, "status", expected, updates)
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) BankReferenceExists(ctx context.Context, orderID uuid.UUID, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND bank_reference = ?", orderID, reference).
		Count(&count).Error
	return count > 0, err
}
