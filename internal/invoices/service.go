// Package invoices issues one invoice per confirmed order and tracks when it
// is paid and claimed by a payout.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/sequence"
)

type txRunner interface {
	WithTxRetry(ctx context.Context, attempts int, fn func(tx *gorm.DB) error) error
}

type outboxWriter interface {
	EnqueueInTransaction(ctx context.Context, tx *gorm.DB, event outbox.Event) (*models.OutboxEvent, error)
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

// Service issues and settles invoices.
type Service interface {
	GenerateForOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*models.Invoice, error)
	MarkPaidInTx(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, actor identity.Actor) error
	FindForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Invoice, error)
	Get(ctx context.Context, actor identity.Actor, invoiceID uuid.UUID) (*models.Invoice, error)
	ListForSeller(ctx context.Context, actor identity.Actor, limit int) ([]models.Invoice, error)
}

type ServiceParams struct {
	Repo                Repository
	Orders              orders.Repository
	Tx                  txRunner
	Outbox              outboxWriter
	Audit               auditRecorder
	Logger              *logger.Logger
	NumberRetryAttempts int
	Now                 func() time.Time
}

type service struct {
	repo          Repository
	orders        orders.Repository
	tx            txRunner
	outbox        outboxWriter
	audit         auditRecorder
	logg          *logger.Logger
	retryAttempts int
	now           func() time.Time
}

// InvoiceEvent is the outbox payload for invoice events.
type InvoiceEvent struct {
	InvoiceID     uuid.UUID           `json:"invoice_id"`
	InvoiceNumber string              `json:"invoice_number"`
	OrderID       uuid.UUID           `json:"order_id"`
	SellerID      uuid.UUID           `json:"seller_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      enums.Currency      `json:"currency"`
	Status        enums.InvoiceStatus `json:"status"`
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil || params.Orders == nil {
		return nil, fmt.Errorf("invoice and order repositories required")
	}
	if params.Tx == nil || params.Outbox == nil || params.Audit == nil {
		return nil, fmt.Errorf("transaction runner, outbox and audit required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	attempts := params.NumberRetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &service{
		repo:          params.Repo,
		orders:        params.Orders,
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		logg:          params.Logger,
		retryAttempts: attempts,
		now:           now,
	}, nil
}

var invoiceableStatuses = map[enums.OrderStatus]struct{}{
	enums.OrderStatusConfirmed:  {},
	enums.OrderStatusInProgress: {},
	enums.OrderStatusShipped:    {},
	enums.OrderStatusDelivered:  {},
	enums.OrderStatusClosed:     {},
}

// GenerateForOrder returns the order's invoice, issuing it on first call. An
// order that is already settled gets an invoice that is paid on issue.
func (s *service) GenerateForOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*models.Invoice, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.IsSystem() && !actor.IsAdmin() && !actor.IsSellerOf(order.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can issue invoices")
	}
	if _, ok := invoiceableStatuses[order.Status]; !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "cannot invoice an order in %s", order.Status)
	}

	var invoice *models.Invoice
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByOrderID(ctx, orderID)
		if err == nil {
			invoice = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := s.now().UTC()
		number, err := sequence.Next(tx, sequence.PrefixInvoice, now)
		if err != nil {
			return err
		}
		row := &models.Invoice{
			ID:            uuid.New(),
			InvoiceNumber: number,
			OrderID:       order.ID,
			SellerID:      order.SellerID,
			BuyerID:       order.BuyerID,
			Amount:        order.TotalPrice,
			Currency:      order.Currency,
			Status:        enums.InvoiceStatusIssued,
			IssuedAt:      now,
		}
		if order.PaymentStatus.IsSettled() {
			row.Status = enums.InvoiceStatusPaid
			row.PaidAt = &now
		}
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateInvoice,
			EntityID:   row.ID,
			Action:     "issue",
			Actor:      actor,
			New:        string(row.Status),
			Metadata:   map[string]any{"order_id": order.ID.String(), "invoice_number": number},
		}); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventInvoiceGenerated, row, actor, now)); err != nil {
			return err
		}
		invoice = row
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate invoice")
	}
	return invoice, nil
}

// MarkPaidInTx marks an issued invoice paid inside the caller's transaction.
// An invoice that is already paid is left untouched.
func (s *service) MarkPaidInTx(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, actor identity.Actor) error {
	if invoice == nil || invoice.Status == enums.InvoiceStatusPaid {
		return nil
	}
	if invoice.Status == enums.InvoiceStatusVoid {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "invoice is void")
	}
	now := s.now().UTC()
	if err := s.repo.WithTx(tx).MarkPaid(ctx, invoice.ID, now); err != nil {
		if errors.Is(err, db.ErrStaleWrite) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
	}
	previous := invoice.Status
	invoice.Status = enums.InvoiceStatusPaid
	invoice.PaidAt = &now
	if err := s.audit.Record(ctx, tx, audit.Entry{
		EntityType: enums.AggregateInvoice,
		EntityID:   invoice.ID,
		Action:     "mark_paid",
		Actor:      actor,
		Previous:   string(previous),
		New:        string(invoice.Status),
	}); err != nil {
		return err
	}
	_, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventInvoicePaid, invoice, actor, now))
	return err
}

// FindForOrderInTx returns nil without error when the order has no invoice yet.
func (s *service) FindForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.WithTx(tx).FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) Get(ctx context.Context, actor identity.Actor, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvoiceNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if !actor.IsAdmin() && !actor.IsBuyerOf(invoice.BuyerID) && !actor.IsSellerOf(invoice.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this invoice")
	}
	return invoice, nil
}

func (s *service) ListForSeller(ctx context.Context, actor identity.Actor, limit int) ([]models.Invoice, error) {
	rows, err := s.repo.ListForSeller(ctx, actor.SellerIDs.IDs(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return rows, nil
}

func (s *service) event(eventType enums.OutboxEventType, invoice *models.Invoice, actor identity.Actor, now time.Time) outbox.Event {
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Destination:   enums.DestinationNotification,
		Actor:         actor.EventRef(),
		OccurredAt:    now,
		Data: InvoiceEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			OrderID:       invoice.OrderID,
			SellerID:      invoice.SellerID,
			BuyerID:       invoice.BuyerID,
			Amount:        invoice.Amount,
			Currency:      invoice.Currency,
			Status:        invoice.Status,
		},
	}
}
