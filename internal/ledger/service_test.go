package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, entry *models.LedgerEntry) error
	entries  []models.LedgerEntry
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if f.createFn != nil {
		return f.createFn(ctx, entry)
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListByBuyerID(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	return f.entries, nil
}

func validInput() RecordEntryInput {
	return RecordEntryInput{
		BuyerID:     uuid.New(),
		OrderID:     uuid.New(),
		Type:        enums.LedgerEntryExpense,
		Amount:      decimal.RequireFromString("125.50"),
		Currency:    enums.CurrencyUSD,
		Description: "ORD-2026-0001 payment",
	}
}

func TestService_Record(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	input := validInput()
	got, err := svc.Record(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if got.ID == uuid.Nil {
		t.Fatalf("expected id to be assigned")
	}
	if got.Description == nil || *got.Description != "ORD-2026-0001 payment" {
		t.Fatalf("unexpected description %v", got.Description)
	}

	listed, err := svc.ListForOrder(context.Background(), input.OrderID)
	if err != nil {
		t.Fatalf("ListForOrder error: %v", err)
	}
	if len(listed) != 1 || !listed[0].Amount.Equal(input.Amount) {
		t.Fatalf("unexpected entries %+v", listed)
	}
}

func TestService_RecordValidation(t *testing.T) {
	svc, _ := NewService(&fakeRepository{}, nil)

	cases := map[string]func(in *RecordEntryInput){
		"missing buyer":    func(in *RecordEntryInput) { in.BuyerID = uuid.Nil },
		"missing order":    func(in *RecordEntryInput) { in.OrderID = uuid.Nil },
		"bad type":         func(in *RecordEntryInput) { in.Type = "bonus" },
		"zero amount":      func(in *RecordEntryInput) { in.Amount = decimal.Zero },
		"unknown currency": func(in *RecordEntryInput) { in.Currency = "XYZ" },
	}
	for name, mutate := range cases {
		input := validInput()
		mutate(&input)
		if _, err := svc.Record(context.Background(), nil, input); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestService_RecordBestEffortSwallowsErrors(t *testing.T) {
	repo := &fakeRepository{createFn: func(ctx context.Context, entry *models.LedgerEntry) error {
		return errors.New("db down")
	}}
	svc, _ := NewService(repo, nil)

	svc.RecordBestEffort(context.Background(), nil, validInput())
}

func TestNewServiceRequiresRepository(t *testing.T) {
	if _, err := NewService(nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
