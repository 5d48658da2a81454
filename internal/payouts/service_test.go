package payouts

import (
	"context"
	"strings"
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
	"github.com/angelmondragon/marketsettle-backend/internal/testdb"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/security"
)

var fixedNow = time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

const testIBAN = "GB82 WEST 1234 5698 7654 32"

type fixture struct {
	conn   *gorm.DB
	svc    Service
	now    time.Time
	seller models.SellerProfile
	admin  identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, client := testdb.Open(t)
	f := &fixture{conn: conn, now: fixedNow}
	clock := func() time.Time { return f.now }
	ob, err := outbox.NewService(outbox.ServiceParams{
		DB:         client,
		Repository: outbox.NewRepository(conn),
		DLQ:        outbox.NewDLQRepository(conn),
		Now:        clock,
	})
	require.NoError(t, err)
	sealer, err := security.NewSealerFromKey([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(conn),
		BankAccounts: NewBankAccountRepository(conn),
		Invoices:     invoices.NewRepository(conn),
		Sealer:       sealer,
		Tx:           client,
		Outbox:       ob,
		Audit:        audit.NewRecorder(conn),
		Policy:       Policy{HoldPeriod: 7 * 24 * time.Hour, FeeRate: decimal.RequireFromString("0.05")},
		Now:          clock,
	})
	require.NoError(t, err)
	f.svc = svc
	f.seller = testdb.Seller(t, conn)
	f.admin = identity.Actor{UserID: uuid.New(), Role: enums.ActorAdmin}
	return f
}

func (f *fixture) sellerActor() identity.Actor {
	return identity.Actor{
		UserID:    f.seller.AccountID,
		Role:      enums.ActorSeller,
		SellerIDs: identity.NewSet(f.seller.AccountID, f.seller.ID),
	}
}

func (f *fixture) registerAccount(t *testing.T, approve bool) *models.BankAccount {
	t.Helper()
	account, err := f.svc.RegisterBankAccount(context.Background(), RegisterBankAccountInput{
		Actor:         f.sellerActor(),
		SellerID:      f.seller.ID,
		AccountHolder: "Northwind Supply Ltd",
		BankName:      "West Bank",
		IBAN:          testIBAN,
		Currency:      enums.CurrencyUSD,
		MakeDefault:   true,
	})
	require.NoError(t, err)
	if !approve {
		return account
	}
	account, err = f.svc.VerifyBankAccount(context.Background(), VerifyBankAccountInput{
		Actor: f.admin, BankAccountID: account.ID, Approve: true,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) paidInvoice(t *testing.T, amount string, paidAt time.Time) models.Invoice {
	t.Helper()
	invoice := models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: "INV-2026-" + uuid.NewString()[:8],
		OrderID:       uuid.New(),
		SellerID:      f.seller.ID,
		BuyerID:       uuid.New(),
		Amount:        decimal.RequireFromString(amount),
		Currency:      enums.CurrencyUSD,
		Status:        enums.InvoiceStatusPaid,
		IssuedAt:      paidAt,
		PaidAt:        &paidAt,
	}
	require.NoError(t, f.conn.Create(&invoice).Error)
	return invoice
}

func (f *fixture) create(t *testing.T) *models.Payout {
	t.Helper()
	payout, err := f.svc.CreatePayout(context.Background(), CreatePayoutInput{Actor: f.sellerActor(), SellerID: f.seller.ID})
	require.NoError(t, err)
	return payout
}

func TestRegisterBankAccountSealsIBAN(t *testing.T) {
	f := newFixture(t)
	account := f.registerAccount(t, false)

	assert.Equal(t, enums.BankAccountPending, account.VerificationStatus)
	assert.Equal(t, "5432", account.IBANLast4)
	assert.NotContains(t, account.IBANSealed, "WEST")

	_, err := f.svc.RegisterBankAccount(context.Background(), RegisterBankAccountInput{
		Actor: f.sellerActor(), SellerID: f.seller.ID, AccountHolder: "x", IBAN: "12", Currency: enums.CurrencyUSD,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.VerifyBankAccount(context.Background(), VerifyBankAccountInput{Actor: f.sellerActor(), BankAccountID: account.ID, Approve: true})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCreatePayoutRequiresApprovedAccount(t *testing.T) {
	f := newFixture(t)
	f.paidInvoice(t, "100.00", fixedNow.AddDate(0, 0, -10))

	_, err := f.svc.CreatePayout(context.Background(), CreatePayoutInput{Actor: f.sellerActor(), SellerID: f.seller.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBankAccountNotApproved))

	pending := f.registerAccount(t, false)
	_, err = f.svc.CreatePayout(context.Background(), CreatePayoutInput{Actor: f.sellerActor(), SellerID: f.seller.ID, BankAccountID: &pending.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBankAccountNotApproved))

	stranger := identity.Actor{UserID: uuid.New(), Role: enums.ActorSeller}
	_, err = f.svc.CreatePayout(context.Background(), CreatePayoutInput{Actor: stranger, SellerID: f.seller.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCreatePayoutAggregatesEligibleInvoices(t *testing.T) {
	f := newFixture(t)
	f.registerAccount(t, true)
	first := f.paidInvoice(t, "100.00", fixedNow.AddDate(0, 0, -10))
	second := f.paidInvoice(t, "60.00", fixedNow.AddDate(0, 0, -8))
	recent := f.paidInvoice(t, "40.00", fixedNow.AddDate(0, 0, -2))

	payout := f.create(t)

	assert.Equal(t, "PAY-OUT-2026-0001", payout.PayoutNumber)
	assert.Equal(t, enums.PayoutStatusPending, payout.Status)
	assert.True(t, payout.GrossAmount.Equal(decimal.NewFromInt(160)), payout.GrossAmount.String())
	assert.True(t, payout.FeeAmount.Equal(decimal.NewFromInt(8)), payout.FeeAmount.String())
	assert.True(t, payout.NetAmount.Equal(decimal.NewFromInt(152)), payout.NetAmount.String())
	assert.Equal(t, "GB****************5432", payout.BankSnapshot.MaskedIBAN)
	assert.Equal(t, "Northwind Supply Ltd", payout.BankSnapshot.AccountHolder)
	assert.Len(t, payout.Items, 2)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		var inv models.Invoice
		require.NoError(t, f.conn.First(&inv, "id = ?", id).Error)
		require.NotNil(t, inv.PayoutID)
		assert.Equal(t, payout.ID, *inv.PayoutID)
	}
	var held models.Invoice
	require.NoError(t, f.conn.First(&held, "id = ?", recent.ID).Error)
	assert.Nil(t, held.PayoutID)

	_, err := f.svc.CreatePayout(context.Background(), CreatePayoutInput{Actor: f.sellerActor(), SellerID: f.seller.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNoEligibleAmount))
}

func TestFailReleasesInvoicesAndNumbersIncrease(t *testing.T) {
	f := newFixture(t)
	f.registerAccount(t, true)
	f.paidInvoice(t, "75.00", fixedNow.AddDate(0, 0, -9))

	first := f.create(t)
	_, err := f.svc.Fail(context.Background(), FailInput{PayoutID: first.ID, Actor: f.admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	failed, err := f.svc.Fail(context.Background(), FailInput{PayoutID: first.ID, Actor: f.admin, Reason: "account closed"})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)

	second := f.create(t)
	third := func() string {
		_, err := f.svc.Fail(context.Background(), FailInput{PayoutID: second.ID, Actor: f.admin, Reason: "retry"})
		require.NoError(t, err)
		return f.create(t).PayoutNumber
	}()
	assert.Equal(t, "PAY-OUT-2026-0001", first.PayoutNumber)
	assert.Equal(t, "PAY-OUT-2026-0002", second.PayoutNumber)
	assert.Equal(t, "PAY-OUT-2026-0003", third)
}

func TestPayoutLifecycle(t *testing.T) {
	f := newFixture(t)
	f.registerAccount(t, true)
	f.paidInvoice(t, "200.00", fixedNow.AddDate(0, 0, -30))
	payout := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, ActionInput{PayoutID: payout.ID, Actor: f.sellerActor()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.Settle(ctx, SettleInput{PayoutID: payout.ID, Actor: f.admin, BankReference: "BR-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot transition from pending to settled")

	approved, err := f.svc.Approve(ctx, ActionInput{PayoutID: payout.ID, Actor: f.admin})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, approved.Status)

	_, err = f.svc.Settle(ctx, SettleInput{PayoutID: payout.ID, Actor: f.admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	settled, err := f.svc.Settle(ctx, SettleInput{PayoutID: payout.ID, Actor: f.admin, BankReference: "BR-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusSettled, settled.Status)
	require.NotNil(t, settled.BankReference)
	assert.Equal(t, "BR-1", *settled.BankReference)

	_, err = f.svc.Fail(ctx, FailInput{PayoutID: payout.ID, Actor: f.admin, Reason: "late"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
	_, err = f.svc.Hold(ctx, HoldInput{PayoutID: payout.ID, Actor: f.admin, Reason: "audit"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	got, err := f.svc.Get(ctx, f.sellerActor(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusSettled, got.Status)
}

func TestHoldAndReleaseDue(t *testing.T) {
	f := newFixture(t)
	f.registerAccount(t, true)
	f.paidInvoice(t, "90.00", fixedNow.AddDate(0, 0, -12))
	payout := f.create(t)
	ctx := context.Background()

	past := fixedNow.Add(-time.Hour)
	_, err := f.svc.Hold(ctx, HoldInput{PayoutID: payout.ID, Actor: f.admin, Reason: "kyc", HoldUntil: &past})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	until := fixedNow.Add(48 * time.Hour)
	held, err := f.svc.Hold(ctx, HoldInput{PayoutID: payout.ID, Actor: f.admin, Reason: "kyc", HoldUntil: &until})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusOnHold, held.Status)

	count, err := f.svc.ReleaseDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	f.now = fixedNow.Add(49 * time.Hour)
	count, err = f.svc.ReleaseDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.svc.Get(ctx, f.admin, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, got.Status)
	assert.Nil(t, got.HoldUntil)
}
