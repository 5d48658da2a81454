package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

// Repository defines persistence operations for payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.PayoutStatus, updates map[string]any) error
	ListForSeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error)
	ListDueReleases(ctx context.Context, now time.Time, limit int) ([]models.Payout, error)
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

// Create inserts the payout and its items.
func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := db.LockByID(r.db.WithContext(ctx), &payout, id); err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.PayoutStatus, updates map[string]any) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.Payout{}, id, "status", expected, updates)
}

func (r *repository) ListForSeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListDueReleases returns held payouts whose hold_until has passed.
func (r *repository) ListDueReleases(ctx context.Context, now time.Time, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutStatusOnHold).
		Where("hold_until IS NOT NULL AND hold_until <= ?", now).
		Order("hold_until ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// BankAccountRepository persists seller bank accounts.
type BankAccountRepository interface {
	WithTx(tx *gorm.DB) BankAccountRepository
	Create(ctx context.Context, account *models.BankAccount) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error)
	FindDefaultApproved(ctx context.Context, sellerID uuid.UUID) (*models.BankAccount, error)
	UpdateIfVerification(ctx context.Context, id uuid.UUID, expected enums.BankAccountVerificationStatus, updates map[string]any) error
	ClearDefault(ctx context.Context, sellerID uuid.UUID) error
	ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.BankAccount, error)
}

type bankAccountRepository struct {
	db *gorm.DB
}

func NewBankAccountRepository(conn *gorm.DB) BankAccountRepository {
	return &bankAccountRepository{db: conn}
}

func (r *bankAccountRepository) WithTx(tx *gorm.DB) BankAccountRepository {
	if tx == nil {
		return r
	}
	return &bankAccountRepository{db: tx}
}

func (r *bankAccountRepository) Create(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *bankAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindDefaultApproved prefers the default account, then the most recently
// verified one.
func (r *bankAccountRepository) FindDefaultApproved(ctx context.Context, sellerID uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Where("verification_status = ?", enums.BankAccountApproved).
		Order("is_default DESC").
		Order("verified_at DESC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *bankAccountRepository) UpdateIfVerification(ctx context.Context, id uuid.UUID, expected enums.BankAccountVerificationStatus, updates map[string]any) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.BankAccount{}, id, "verification_status", expected, updates)
}

func (r *bankAccountRepository) ClearDefault(ctx context.Context, sellerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("seller_id = ? AND is_default = ?", sellerID, true).
		Update("is_default", false).Error
}

func (r *bankAccountRepository) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]models.BankAccount, error) {
	var rows []models.BankAccount
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
