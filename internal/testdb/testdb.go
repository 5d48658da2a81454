// Package testdb opens throwaway SQLite databases carrying the marketplace
// schema for package tests.
package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

var schema = []string{
	`CREATE TABLE seller_profiles (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE items (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  name TEXT NOT NULL,
  sku TEXT,
  description TEXT,
  unit_price TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  success_count INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  item_snapshot TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  total_price TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending_confirmation',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  fulfillment_status TEXT NOT NULL DEFAULT 'unfulfilled',
  payment_method TEXT NOT NULL DEFAULT 'bank_transfer',
  shipping_address TEXT,
  carrier TEXT,
  tracking_number TEXT,
  notes TEXT,
  cancellation_reason TEXT,
  cancelled_by TEXT,
  confirmed_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE payments (
  id TEXT PRIMARY KEY,
  payment_number TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL,
  invoice_id TEXT,
  payer_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  method TEXT NOT NULL,
  bank_reference TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  confirmed_at DATETIME,
  confirmed_by TEXT,
  failed_at DATETIME,
  failure_reason TEXT,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX uq_payments_order_bank_reference ON payments (order_id, bank_reference) WHERE bank_reference IS NOT NULL;`,
	`CREATE TABLE invoices (
  id TEXT PRIMARY KEY,
  invoice_number TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL UNIQUE,
  seller_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'issued',
  issued_at DATETIME NOT NULL,
  due_at DATETIME,
  paid_at DATETIME,
  payout_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE disputes (
  id TEXT PRIMARY KEY,
  dispute_number TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  description TEXT NOT NULL,
  requested_resolution TEXT NOT NULL,
  requested_amount TEXT,
  evidence TEXT,
  status TEXT NOT NULL DEFAULT 'open',
  seller_response_type TEXT,
  seller_response TEXT,
  proposed_resolution TEXT,
  proposed_amount TEXT,
  proposal_expires_at DATETIME,
  seller_responded_at DATETIME,
  buyer_reject_reason TEXT,
  resolution TEXT,
  resolved_by TEXT,
  resolved_at DATETIME,
  response_deadline DATETIME NOT NULL,
  resolution_deadline DATETIME NOT NULL,
  is_escalated INTEGER NOT NULL DEFAULT 0,
  escalation_reason TEXT,
  escalated_at DATETIME,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX uq_disputes_active_order ON disputes (order_id) WHERE status IN ('open','under_review','seller_responded','escalated');`,
	`CREATE TABLE order_returns (
  id TEXT PRIMARY KEY,
  return_number TEXT NOT NULL UNIQUE,
  dispute_id TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  return_type TEXT NOT NULL,
  items TEXT NOT NULL,
  return_address TEXT NOT NULL,
  reason TEXT,
  status TEXT NOT NULL DEFAULT 'requested',
  carrier TEXT,
  tracking_number TEXT,
  received_condition TEXT,
  condition_notes TEXT,
  rejection_reason TEXT,
  refund_amount TEXT,
  refund_reference TEXT,
  approved_at DATETIME,
  rejected_at DATETIME,
  shipped_at DATETIME,
  received_at DATETIME,
  refunded_at DATETIME,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE bank_accounts (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  account_holder TEXT NOT NULL,
  bank_name TEXT,
  iban_sealed TEXT NOT NULL,
  iban_last4 TEXT NOT NULL,
  currency TEXT NOT NULL,
  verification_status TEXT NOT NULL DEFAULT 'pending',
  verified_at DATETIME,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE payouts (
  id TEXT PRIMARY KEY,
  payout_number TEXT NOT NULL UNIQUE,
  seller_id TEXT NOT NULL,
  bank_account_id TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  gross_amount TEXT NOT NULL,
  fee_amount TEXT NOT NULL,
  net_amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  bank_snapshot TEXT NOT NULL,
  bank_reference TEXT,
  failure_reason TEXT,
  hold_reason TEXT,
  hold_until DATETIME,
  approved_at DATETIME,
  settled_at DATETIME,
  failed_at DATETIME,
  held_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE payout_items (
  id TEXT PRIMARY KEY,
  payout_id TEXT NOT NULL,
  invoice_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE audit_logs (
  id TEXT PRIMARY KEY,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_id TEXT,
  actor_role TEXT NOT NULL,
  field TEXT NOT NULL DEFAULT 'status',
  previous_value TEXT,
  new_value TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE ledger_entries (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  payment_id TEXT,
  return_id TEXT,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  description TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  destination TEXT NOT NULL,
  payload TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL,
  next_attempt_at DATETIME NOT NULL,
  partition_key TEXT NOT NULL,
  correlation_id TEXT,
  causation_id TEXT,
  last_error TEXT,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  destination TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  partition_key TEXT NOT NULL,
  correlation_id TEXT,
  causation_id TEXT,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  requeued_event_id TEXT,
  resolved_at DATETIME,
  resolved_by TEXT,
  resolution_note TEXT,
  failed_at DATETIME NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE sequence_counters (
  prefix TEXT NOT NULL,
  year INTEGER NOT NULL,
  value INTEGER NOT NULL,
  updated_at DATETIME,
  PRIMARY KEY (prefix, year)
);`,
}

// Open returns a fresh in-memory database with the full schema and a client
// wrapping it.
func Open(t *testing.T) (*gorm.DB, *db.Client) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, db.NewFromGorm(conn)
}

// Seller creates a seller profile and returns it.
func Seller(t *testing.T, conn *gorm.DB) models.SellerProfile {
	t.Helper()
	profile := models.SellerProfile{ID: uuid.New(), AccountID: uuid.New(), DisplayName: "Northwind Supply"}
	if err := conn.Create(&profile).Error; err != nil {
		t.Fatalf("create seller profile: %v", err)
	}
	return profile
}

// Item creates an active catalog item for sellerID.
func Item(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, price string) models.Item {
	t.Helper()
	item := models.Item{
		ID:        uuid.New(),
		SellerID:  sellerID,
		Name:      "Industrial Fan",
		UnitPrice: decimal.RequireFromString(price),
		Currency:  "USD",
		IsActive:  true,
	}
	if err := conn.Create(&item).Error; err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

// OrderOptions tweaks a seeded order.
type OrderOptions struct {
	Status        enums.OrderStatus
	PaymentStatus enums.OrderPaymentStatus
	Method        enums.PaymentMethod
	Total         string
	DeliveredAt   *time.Time
}

// Order inserts an order between buyerID and sellerID.
func Order(t *testing.T, conn *gorm.DB, buyerID, sellerID uuid.UUID, opts OrderOptions) models.Order {
	t.Helper()
	if opts.Status == "" {
		opts.Status = enums.OrderStatusPendingConfirmation
	}
	if opts.PaymentStatus == "" {
		opts.PaymentStatus = enums.OrderPaymentUnpaid
	}
	if opts.Method == "" {
		opts.Method = enums.PaymentMethodBankTransfer
	}
	if opts.Total == "" {
		opts.Total = "250.00"
	}
	total := decimal.RequireFromString(opts.Total)
	itemID := uuid.New()
	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-2026-" + uuid.NewString()[:8],
		BuyerID:     buyerID,
		SellerID:    sellerID,
		ItemID:      itemID,
		ItemSnapshot: types.ItemSnapshot{
			ItemID:    itemID,
			Name:      "Industrial Fan",
			UnitPrice: total,
			Currency:  "USD",
		},
		Quantity:          1,
		UnitPrice:         total,
		TotalPrice:        total,
		Currency:          enums.CurrencyUSD,
		Status:            opts.Status,
		PaymentStatus:     opts.PaymentStatus,
		FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
		PaymentMethod:     opts.Method,
		DeliveredAt:       opts.DeliveredAt,
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
