package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerProfile is the storefront identity of a seller account. Orders may
// reference either the profile id or the account id.
type SellerProfile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID   uuid.UUID `gorm:"column:account_id;type:uuid;not null;uniqueIndex" json:"account_id"`
	DisplayName string    `gorm:"column:display_name;not null" json:"display_name"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
