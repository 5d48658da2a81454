package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a live catalog listing. Orders copy it into an ItemSnapshot.
type Item struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SellerID     uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Name         string          `gorm:"column:name;not null" json:"name"`
	SKU          *string         `gorm:"column:sku" json:"sku"`
	Description  *string         `gorm:"column:description" json:"description"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null" json:"unit_price"`
	Currency     string          `gorm:"column:currency;type:text;not null;default:'USD'" json:"currency"`
	SuccessCount int             `gorm:"column:success_count;not null;default:0" json:"success_count"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
