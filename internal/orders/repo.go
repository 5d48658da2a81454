package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and the items they snapshot.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) error
	FindItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	IncrementItemSuccess(ctx context.Context, itemID uuid.UUID) error
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, filters ListFilters) ([]models.Order, error)
	ListForSeller(ctx context.Context, sellerIDs []uuid.UUID, filters ListFilters) ([]models.Order, error)
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status *enums.OrderStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.LockByID(r.db.WithContext(ctx), &order, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateIfStatus returns db.ErrStaleWrite when the order left the expected status.
func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) error {
	return db.GuardedUpdate(r.db.WithContext(ctx), &models.Order{}, id, "status", expected, updates)
}

func (r *repository) FindItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) IncrementItemSuccess(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ?", itemID).
		UpdateColumn("success_count", gorm.Expr("success_count + 1")).Error
}

func (r *repository) ListForBuyer(ctx context.Context, buyerID uuid.UUID, filters ListFilters) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("buyer_id = ?", buyerID)
	return r.list(query, filters)
}

func (r *repository) ListForSeller(ctx context.Context, sellerIDs []uuid.UUID, filters ListFilters) ([]models.Order, error) {
	if len(sellerIDs) == 0 {
		return []models.Order{}, nil
	}
	query := r.db.WithContext(ctx).Where("seller_id IN ?", sellerIDs)
	return r.list(query, filters)
}

func (r *repository) list(query *gorm.DB, filters ListFilters) ([]models.Order, error) {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	var orders []models.Order
	err := pagination.Keyset(query, filters.Cursor, filters.Limit).Find(&orders).Error
	return orders, err
}
