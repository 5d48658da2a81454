package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// Repository persists invoices and the payout claim on them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error
	ListEligible(ctx context.Context, sellerIDs []uuid.UUID, paidBefore time.Time) ([]models.Invoice, error)
	Claim(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error)
	Release(ctx context.Context, payoutID uuid.UUID) error
	ListForSeller(ctx context.Context, sellerIDs []uuid.UUID, limit int) ([]models.Invoice, error)
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

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkPaid moves an issued invoice to paid. Returns db.ErrStaleWrite when it
// was not issued.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.Invoice{}, id, "status", enums.InvoiceStatusIssued, map[string]any{
		"status":  enums.InvoiceStatusPaid,
		"paid_at": at,
	})
}

// ListEligible returns paid, unclaimed invoices paid at or before paidBefore.
func (r *repository) ListEligible(ctx context.Context, sellerIDs []uuid.UUID, paidBefore time.Time) ([]models.Invoice, error) {
	if len(sellerIDs) == 0 {
		return []models.Invoice{}, nil
	}
	var rows []models.Invoice
	err := r.db.WithContext(ctx).
		Where("seller_id IN ?", sellerIDs).
		Where("status = ?", enums.InvoiceStatusPaid).
		Where("payout_id IS NULL").
		Where("paid_at <= ?", paidBefore).
		Order("paid_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// Claim attaches unclaimed invoices to a payout and reports how many were taken.
func (r *repository) Claim(ctx context.Context, ids []uuid.UUID, payoutID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id IN ?", ids).
		Where("payout_id IS NULL").
		Update("payout_id", payoutID)
	return res.RowsAffected, res.Error
}

func (r *repository) Release(ctx context.Context, payoutID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("payout_id = ?", payoutID).
		Update("payout_id", nil).Error
}

func (r *repository) ListForSeller(ctx context.Context, sellerIDs []uuid.UUID, limit int) ([]models.Invoice, error) {
	if len(sellerIDs) == 0 {
		return []models.Invoice{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var rows []models.Invoice
	err := r.db.WithContext(ctx).
		Where("seller_id IN ?", sellerIDs).
		Order("issued_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
