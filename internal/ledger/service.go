package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

// Service records buyer expense and refund entries.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.LedgerEntry, error)
	RecordBestEffort(ctx context.Context, tx *gorm.DB, input RecordEntryInput)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.LedgerEntry, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	BuyerID     uuid.UUID
	OrderID     uuid.UUID
	PaymentID   *uuid.UUID
	ReturnID    *uuid.UUID
	Type        enums.LedgerEntryType
	Amount      decimal.Decimal
	Currency    enums.Currency
	Description string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.LedgerEntry, error) {
	if input.BuyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger entry type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("ledger amount must be positive")
	}
	if !input.Currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", input.Currency)
	}

	entry := &models.LedgerEntry{
		ID:        uuid.New(),
		BuyerID:   input.BuyerID,
		OrderID:   input.OrderID,
		PaymentID: input.PaymentID,
		ReturnID:  input.ReturnID,
		Type:      input.Type,
		Amount:    input.Amount,
		Currency:  input.Currency,
	}
	if input.Description != "" {
		desc := input.Description
		entry.Description = &desc
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordBestEffort writes the entry inside a savepoint of tx. Failures are
// logged and never surface to the caller.
func (s *service) RecordBestEffort(ctx context.Context, tx *gorm.DB, input RecordEntryInput) {
	var err error
	if tx == nil {
		_, err = s.Record(ctx, nil, input)
	} else {
		err = tx.Transaction(func(sp *gorm.DB) error {
			_, recErr := s.Record(ctx, sp, input)
			return recErr
		})
	}
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":   input.OrderID.String(),
			"entry_type": input.Type,
			"error":      err.Error(),
		})
		s.logg.Warn(logCtx, "ledger entry skipped")
	}
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if buyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer id is required")
	}
	return s.repo.ListByBuyerID(ctx, buyerID, limit)
}
