package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/invoices"
	"github.com/angelmondragon/marketsettle-backend/internal/ledger"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/internal/testdb"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
)

var fixedNow = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

type fixture struct {
	conn     *gorm.DB
	svc      Service
	invoices invoices.Service
	seller   identity.Actor
	buyer    identity.Actor
	sellerID uuid.UUID
}

// racingTx runs before inside each transaction ahead of the engine's own work,
// standing in for a writer that committed between the read and the lock.
type racingTx struct {
	txRunner
	before func(tx *gorm.DB) error
}

func (r *racingTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if r.before != nil {
			if err := r.before(tx); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTx(t, nil)
}

func newFixtureWithTx(t *testing.T, race *racingTx) *fixture {
	t.Helper()
	conn, client := testdb.Open(t)
	var tx txRunner = client
	if race != nil {
		race.txRunner = client
		tx = race
	}
	now := func() time.Time { return fixedNow }
	ob, err := outbox.NewService(outbox.ServiceParams{
		DB:         client,
		Repository: outbox.NewRepository(conn),
		DLQ:        outbox.NewDLQRepository(conn),
		Now:        now,
	})
	require.NoError(t, err)
	recorder := audit.NewRecorder(conn)
	orderRepo := orders.NewRepository(conn)
	inv, err := invoices.NewService(invoices.ServiceParams{
		Repo:   invoices.NewRepository(conn),
		Orders: orderRepo,
		Tx:     client,
		Outbox: ob,
		Audit:  recorder,
		Now:    now,
	})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Orders:   orderRepo,
		Invoices: inv,
		Ledger:   ledgerSvc,
		Tx:       tx,
		Outbox:   ob,
		Audit:    recorder,
		Now:      now,
	})
	require.NoError(t, err)

	profile := testdb.Seller(t, conn)
	buyerID := uuid.New()
	return &fixture{
		conn:     conn,
		svc:      svc,
		invoices: inv,
		sellerID: profile.ID,
		seller:   identity.Actor{UserID: profile.AccountID, Role: enums.ActorSeller, SellerIDs: identity.NewSet(profile.AccountID, profile.ID)},
		buyer:    identity.Actor{UserID: buyerID, Role: enums.ActorBuyer, SellerIDs: identity.NewSet(buyerID)},
	}
}

func (f *fixture) order(t *testing.T, opts testdb.OrderOptions) models.Order {
	return testdb.Order(t, f.conn, f.buyer.UserID, f.sellerID, opts)
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", id).Error)
	return order
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestRecordPaymentsReachPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed, Total: "250.00"})

	first, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("100"), BankReference: "TRX-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusConfirmed, first.Status)
	assert.Equal(t, "PMT-2026-0001", first.PaymentNumber)
	assert.Equal(t, enums.OrderPaymentPartial, f.reload(t, order.ID).PaymentStatus)

	second, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("150"), BankReference: "TRX-2"})
	require.NoError(t, err)
	assert.Equal(t, "PMT-2026-0002", second.PaymentNumber)

	reloaded := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderPaymentPaid, reloaded.PaymentStatus)
	assert.NotNil(t, reloaded.PaidAt)

	var entries []models.LedgerEntry
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&entries).Error)
	assert.Len(t, entries, 2)

	summary, err := f.svc.Summary(ctx, f.seller, order.ID)
	require.NoError(t, err)
	assert.True(t, summary.ConfirmedTotal.Equal(decimal.NewFromInt(250)))
	assert.True(t, summary.Outstanding.IsZero())

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("1"), BankReference: "TRX-3"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))
}

func TestRecordPaymentRejectsDuplicateBankReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("50"), BankReference: "REF-77"})
	require.NoError(t, err)

	for _, method := range []enums.PaymentMethod{enums.PaymentMethodBankTransfer, enums.PaymentMethodCard} {
		_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("10"), Method: method, BankReference: "REF-77"})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateBankReference))
	}

	other := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: other.ID, Actor: f.buyer, Amount: dec("10"), BankReference: "REF-77"})
	require.NoError(t, err)
}

func TestRecordPaymentRejectsAmountsBeyondBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed, Total: "250.00"})

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("200"), BankReference: "A"})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("60"), BankReference: "B"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountExceedsBalance))

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("0"), BankReference: "C"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))

	rest, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, BankReference: "D"})
	require.NoError(t, err)
	assert.True(t, rest.Amount.Equal(decimal.NewFromInt(50)))
}

func TestRecordPaymentRejectsOneCentOverTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed, Total: "250.00"})

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("250.01"), BankReference: "OVER"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountExceedsBalance))

	large := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed, Total: "1000000.00"})
	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: large.ID, Actor: f.buyer, Amount: dec("1000090.00"), BankReference: "BIG"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountExceedsBalance))

	var count int64
	require.NoError(t, f.conn.Model(&models.Payment{}).Where("order_id IN ?", []uuid.UUID{order.ID, large.ID}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordPaymentOneCentShortStaysPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed, Total: "250.00"})

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Amount: dec("249.99"), BankReference: "SHORT"})
	require.NoError(t, err)

	reloaded := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderPaymentPartial, reloaded.PaymentStatus)
	assert.Nil(t, reloaded.PaidAt)

	last, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, BankReference: "CENT"})
	require.NoError(t, err)
	assert.True(t, last.Amount.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, enums.OrderPaymentPaid, f.reload(t, order.ID).PaymentStatus)
}

func TestRecordPaymentGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cod := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed, Method: enums.PaymentMethodCOD})
	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: cod.ID, Actor: f.buyer, BankReference: "X"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPaymentMethod))

	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, Method: enums.PaymentMethodCOD, BankReference: "X"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPaymentMethod))

	cancelled := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusCancelled})
	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: cancelled.ID, Actor: f.buyer, BankReference: "X"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotPayable))

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.seller, BankReference: "X"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: uuid.New(), Actor: f.buyer, BankReference: "X"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestRecordPaymentMarksExistingInvoicePaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	invoice, err := f.invoices.GenerateForOrder(ctx, identity.System(), order.ID)
	require.NoError(t, err)

	payment, err := f.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, Actor: f.buyer, BankReference: "FULL"})
	require.NoError(t, err)
	require.NotNil(t, payment.InvoiceID)
	assert.Equal(t, invoice.ID, *payment.InvoiceID)

	var reloaded models.Invoice
	require.NoError(t, f.conn.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, enums.InvoiceStatusPaid, reloaded.Status)
}

func TestInvoicePaymentConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	invoice, err := f.invoices.GenerateForOrder(ctx, identity.System(), order.ID)
	require.NoError(t, err)

	pending, err := f.svc.SubmitInvoicePayment(ctx, SubmitInvoicePaymentInput{InvoiceID: invoice.ID, Actor: f.buyer, BankReference: "WIRE-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, pending.Status)
	assert.Equal(t, enums.OrderPaymentAuthorized, f.reload(t, order.ID).PaymentStatus)

	_, err = f.svc.ConfirmPayment(ctx, ConfirmPaymentInput{PaymentID: pending.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	first, err := f.svc.ConfirmPayment(ctx, ConfirmPaymentInput{PaymentID: pending.ID, Actor: f.seller})
	require.NoError(t, err)
	assert.False(t, first.AlreadyConfirmed)
	assert.Equal(t, enums.OrderPaymentPaid, first.PaymentStatus)

	second, err := f.svc.ConfirmPayment(ctx, ConfirmPaymentInput{PaymentID: pending.ID, Actor: f.seller})
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)

	var confirms int64
	require.NoError(t, f.conn.Model(&models.AuditLog{}).Where("entity_id = ? AND action = ?", pending.ID, "confirm").Count(&confirms).Error)
	assert.Equal(t, int64(1), confirms)

	var reloaded models.Invoice
	require.NoError(t, f.conn.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, enums.InvoiceStatusPaid, reloaded.Status)
}

func TestFailPaymentRestoresStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	invoice, err := f.invoices.GenerateForOrder(ctx, identity.System(), order.ID)
	require.NoError(t, err)
	pending, err := f.svc.SubmitInvoicePayment(ctx, SubmitInvoicePaymentInput{InvoiceID: invoice.ID, Actor: f.buyer, BankReference: "WIRE-9"})
	require.NoError(t, err)

	failed, err := f.svc.FailPayment(ctx, FailPaymentInput{PaymentID: pending.ID, Actor: f.seller, Reason: "funds never arrived"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, failed.Status)
	assert.Equal(t, enums.OrderPaymentUnpaid, f.reload(t, order.ID).PaymentStatus)

	_, err = f.svc.ConfirmPayment(ctx, ConfirmPaymentInput{PaymentID: pending.ID, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
}

func TestConfirmCODPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusDelivered, Method: enums.PaymentMethodCOD})

	payment, err := f.svc.ConfirmCODPayment(ctx, ConfirmCODInput{OrderID: order.ID, Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodCOD, payment.Method)
	assert.True(t, payment.Amount.Equal(order.TotalPrice))
	assert.Equal(t, enums.OrderPaymentPaidCash, f.reload(t, order.ID).PaymentStatus)

	_, err = f.svc.ConfirmCODPayment(ctx, ConfirmCODInput{OrderID: order.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))

	shipped := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusShipped, Method: enums.PaymentMethodCOD})
	_, err = f.svc.ConfirmCODPayment(ctx, ConfirmCODInput{OrderID: shipped.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	transfer := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusDelivered})
	_, err = f.svc.ConfirmCODPayment(ctx, ConfirmCODInput{OrderID: transfer.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidPaymentMethod))
}

func TestConfirmPaymentLosesToConcurrentFail(t *testing.T) {
	race := &racingTx{}
	f := newFixtureWithTx(t, race)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	invoice, err := f.invoices.GenerateForOrder(ctx, identity.System(), order.ID)
	require.NoError(t, err)
	pending, err := f.svc.SubmitInvoicePayment(ctx, SubmitInvoicePaymentInput{InvoiceID: invoice.ID, Actor: f.buyer, BankReference: "WIRE-R"})
	require.NoError(t, err)

	race.before = func(tx *gorm.DB) error {
		return tx.Model(&models.Payment{}).Where("id = ?", pending.ID).Update("status", enums.PaymentStatusFailed).Error
	}
	_, err = f.svc.ConfirmPayment(ctx, ConfirmPaymentInput{PaymentID: pending.ID, Actor: f.seller})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification))

	race.before = nil
	var reloaded models.Payment
	require.NoError(t, f.conn.First(&reloaded, "id = ?", pending.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, reloaded.Status)
	assert.Equal(t, enums.OrderPaymentAuthorized, f.reload(t, order.ID).PaymentStatus)
}

func TestFailPaymentLosesToConcurrentConfirm(t *testing.T) {
	race := &racingTx{}
	f := newFixtureWithTx(t, race)
	ctx := context.Background()
	order := f.order(t, testdb.OrderOptions{Status: enums.OrderStatusConfirmed})
	invoice, err := f.invoices.GenerateForOrder(ctx, identity.System(), order.ID)
	require.NoError(t, err)
	pending, err := f.svc.SubmitInvoicePayment(ctx, SubmitInvoicePaymentInput{InvoiceID: invoice.ID, Actor: f.buyer, BankReference: "WIRE-S"})
	require.NoError(t, err)

	race.before = func(tx *gorm.DB) error {
		return tx.Model(&models.Payment{}).Where("id = ?", pending.ID).Update("status", enums.PaymentStatusConfirmed).Error
	}
	_, err = f.svc.FailPayment(ctx, FailPaymentInput{PaymentID: pending.ID, Actor: f.seller, Reason: "bounced"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification))

	race.before = nil
	var reloaded models.Payment
	require.NoError(t, f.conn.First(&reloaded, "id = ?", pending.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, reloaded.Status)
}
