package returns

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
	"github.com/angelmondragon/marketsettle-backend/internal/disputes"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/ledger"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/internal/testdb"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

var fixedNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	conn   *gorm.DB
	svc    Service
	seller identity.Actor
	buyer  identity.Actor
	order  models.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, client := testdb.Open(t)
	now := func() time.Time { return fixedNow }
	ob, err := outbox.NewService(outbox.ServiceParams{
		DB:         client,
		Repository: outbox.NewRepository(conn),
		DLQ:        outbox.NewDLQRepository(conn),
		Now:        now,
	})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Disputes: disputes.NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Ledger:   ledgerSvc,
		Tx:       client,
		Outbox:   ob,
		Audit:    audit.NewRecorder(conn),
		Now:      now,
	})
	require.NoError(t, err)

	profile := testdb.Seller(t, conn)
	buyerID := uuid.New()
	delivered := fixedNow.AddDate(0, 0, -5)
	order := testdb.Order(t, conn, buyerID, profile.ID, testdb.OrderOptions{
		Status:        enums.OrderStatusDelivered,
		PaymentStatus: enums.OrderPaymentPaid,
		Total:         "120.00",
		DeliveredAt:   &delivered,
	})
	return &fixture{
		conn:   conn,
		svc:    svc,
		seller: identity.Actor{UserID: profile.AccountID, Role: enums.ActorSeller, SellerIDs: identity.NewSet(profile.AccountID, profile.ID)},
		buyer:  identity.Actor{UserID: buyerID, Role: enums.ActorBuyer, SellerIDs: identity.NewSet(buyerID)},
		order:  order,
	}
}

func (f *fixture) dispute(t *testing.T, status enums.DisputeStatus) models.Dispute {
	t.Helper()
	dispute := models.Dispute{
		ID:                  uuid.New(),
		DisputeNumber:       "DSP-2026-" + uuid.NewString()[:6],
		OrderID:             f.order.ID,
		BuyerID:             f.order.BuyerID,
		SellerID:            f.order.SellerID,
		Reason:              enums.DisputeReasonDamaged,
		Description:         "broken on arrival",
		RequestedResolution: enums.ResolutionReturnAndRefund,
		Status:              status,
		ResponseDeadline:    fixedNow.Add(72 * time.Hour),
		ResolutionDeadline:  fixedNow.AddDate(0, 0, 14),
	}
	require.NoError(t, f.conn.Create(&dispute).Error)
	return dispute
}

func returnAddress() types.Address {
	return types.Address{
		Name:       "Northwind Returns",
		Line1:      "12 Dock Road",
		City:       "Leeds",
		PostalCode: "LS1 4AP",
		Country:    "GB",
	}
}

func (f *fixture) create(t *testing.T) *models.Return {
	t.Helper()
	dispute := f.dispute(t, enums.DisputeStatusResolved)
	ret, err := f.svc.Create(context.Background(), CreateReturnInput{
		DisputeID:     dispute.ID,
		Actor:         f.buyer,
		ReturnType:    enums.ReturnTypeRefund,
		ReturnAddress: returnAddress(),
	})
	require.NoError(t, err)
	return ret
}

func TestCreateReturnSnapshotsOrderItem(t *testing.T) {
	f := newFixture(t)
	ret := f.create(t)

	assert.Equal(t, "RET-2026-0001", ret.ReturnNumber)
	assert.Equal(t, enums.ReturnStatusRequested, ret.Status)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, f.order.ItemSnapshot.Name, ret.Items[0].Name)
	assert.True(t, ret.Items.Total().Equal(decimal.NewFromInt(120)))

	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).
		Update("item_snapshot", `{"name":"Renamed"}`).Error)
	stored, err := f.svc.Get(context.Background(), f.seller, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, "Industrial Fan", stored.Items[0].Name)
	assert.Equal(t, "Leeds", stored.ReturnAddress.City)

	_, err = f.svc.Create(context.Background(), CreateReturnInput{
		DisputeID:     ret.DisputeID,
		Actor:         f.buyer,
		ReturnType:    enums.ReturnTypeRefund,
		ReturnAddress: returnAddress(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReturnExists))
}

func TestCreateReturnGuards(t *testing.T) {
	f := newFixture(t)
	open := f.dispute(t, enums.DisputeStatusOpen)

	input := CreateReturnInput{DisputeID: open.ID, Actor: f.buyer, ReturnType: enums.ReturnTypeRefund, ReturnAddress: returnAddress()}
	_, err := f.svc.Create(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	input.Actor = f.seller
	_, err = f.svc.Create(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	input.DisputeID = uuid.New()
	_, err = f.svc.Create(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDisputeNotFound))

	input.ReturnAddress = types.Address{}
	_, err = f.svc.Create(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReturnHappyPath(t *testing.T) {
	f := newFixture(t)
	ret := f.create(t)
	ctx := context.Background()

	_, err := f.svc.MarkShipped(ctx, ShipInput{ReturnID: ret.ID, Actor: f.buyer, TrackingNumber: "1Z999"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	_, err = f.svc.Approve(ctx, ActionInput{ReturnID: ret.ID, Actor: f.seller})
	require.NoError(t, err)

	_, err = f.svc.MarkShipped(ctx, ShipInput{ReturnID: ret.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.MarkShipped(ctx, ShipInput{ReturnID: ret.ID, Actor: f.seller, TrackingNumber: "1Z999"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	shipped, err := f.svc.MarkShipped(ctx, ShipInput{ReturnID: ret.ID, Actor: f.buyer, Carrier: "UPS", TrackingNumber: "1Z999"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusInTransit, shipped.Status)
	require.NotNil(t, shipped.TrackingNumber)
	assert.Equal(t, "1Z999", *shipped.TrackingNumber)

	received, err := f.svc.ConfirmReceived(ctx, ReceiveInput{ReturnID: ret.ID, Actor: f.seller, Condition: enums.ReturnConditionDamaged, Notes: "dented corner"})
	require.NoError(t, err)
	require.NotNil(t, received.ReceivedCondition)
	assert.Equal(t, enums.ReturnConditionDamaged, *received.ReceivedCondition)

	_, err = f.svc.Close(ctx, ActionInput{ReturnID: ret.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))

	refunded, err := f.svc.ProcessRefund(ctx, RefundInput{ReturnID: ret.ID, Actor: f.seller, Amount: decimal.NewFromInt(500), Reference: "RF-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRefundProcessed, refunded.Status)
	require.True(t, refunded.RefundAmount.Valid)
	assert.True(t, refunded.RefundAmount.Decimal.Equal(decimal.NewFromInt(500)))

	var entries []models.LedgerEntry
	require.NoError(t, f.conn.Where("return_id = ?", ret.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.LedgerEntryRefund, entries[0].Type)

	closed, err := f.svc.Close(ctx, ActionInput{ReturnID: ret.ID, Actor: f.buyer})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusClosed, closed.Status)

	history, err := f.svc.History(ctx, f.seller, ret.ID)
	require.NoError(t, err)
	assert.Len(t, history, 6)

	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", f.order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, order.Status)
}

func TestApproveRequiresRequestedStatus(t *testing.T) {
	f := newFixture(t)
	ret := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, ActionInput{ReturnID: ret.ID, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.Reject(ctx, RejectInput{ReturnID: ret.ID, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	rejected, err := f.svc.Reject(ctx, RejectInput{ReturnID: ret.ID, Actor: f.seller, Reason: "outside policy"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRejected, rejected.Status)

	_, err = f.svc.Approve(ctx, ActionInput{ReturnID: ret.ID, Actor: f.seller})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidState))
	assert.Contains(t, err.Error(), "not in requested status")
}

func TestProcessRefundRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	ret := f.create(t)

	_, err := f.svc.ProcessRefund(context.Background(), RefundInput{ReturnID: ret.ID, Actor: f.seller, Amount: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))
}
