// Package payments reconciles recorded payments against orders and derives
// each order's payment status from its payment set.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/ledger"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/money"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/sequence"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTxRetry(ctx context.Context, attempts int, fn func(tx *gorm.DB) error) error
}

type outboxWriter interface {
	EnqueueInTransaction(ctx context.Context, tx *gorm.DB, event outbox.Event) (*models.OutboxEvent, error)
	EnqueueBestEffort(ctx context.Context, tx *gorm.DB, event outbox.Event)
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type invoiceLinker interface {
	Get(ctx context.Context, actor identity.Actor, invoiceID uuid.UUID) (*models.Invoice, error)
	FindForOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Invoice, error)
	MarkPaidInTx(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, actor identity.Actor) error
}

type expenseLedger interface {
	RecordBestEffort(ctx context.Context, tx *gorm.DB, input ledger.RecordEntryInput)
}

// Service is the payment reconciliation engine.
type Service interface {
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error)
	SubmitInvoicePayment(ctx context.Context, input SubmitInvoicePaymentInput) (*models.Payment, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*ConfirmResult, error)
	FailPayment(ctx context.Context, input FailPaymentInput) (*models.Payment, error)
	ConfirmCODPayment(ctx context.Context, input ConfirmCODInput) (*models.Payment, error)
	SettleCODInTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor identity.Actor, status enums.OrderPaymentStatus) (*models.Payment, error)
	Summary(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*Summary, error)
	Get(ctx context.Context, actor identity.Actor, paymentID uuid.UUID) (*models.Payment, error)
}

type ServiceParams struct {
	Repo                Repository
	Orders              orders.Repository
	Invoices            invoiceLinker
	Ledger              expenseLedger
	Tx                  txRunner
	Outbox              outboxWriter
	Audit               auditRecorder
	Tolerance           decimal.Decimal
	Logger              *logger.Logger
	NumberRetryAttempts int
	Now                 func() time.Time
}

type service struct {
	repo          Repository
	orders        orders.Repository
	invoices      invoiceLinker
	ledger        expenseLedger
	tx            txRunner
	outbox        outboxWriter
	audit         auditRecorder
	cmp           money.Comparator
	logg          *logger.Logger
	retryAttempts int
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil || params.Orders == nil {
		return nil, fmt.Errorf("payment and order repositories required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	if params.Tx == nil || params.Outbox == nil || params.Audit == nil {
		return nil, fmt.Errorf("transaction runner, outbox and audit required")
	}
	tolerance := params.Tolerance
	if tolerance.IsZero() {
		tolerance = money.DefaultTolerance
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
		invoices:      params.Invoices,
		ledger:        params.Ledger,
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		cmp:           money.NewComparator(tolerance),
		logg:          params.Logger,
		retryAttempts: attempts,
		now:           now,
	}, nil
}

// RecordPayment stores a buyer payment as confirmed and recomputes the
// order's payment status.
func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsBuyerOf(order.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the buyer can record payments")
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}
	method, err := resolveMethod(order, input.Method)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(input.BankReference)
	if method == enums.PaymentMethodBankTransfer && reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank reference is required for bank transfers")
	}

	existing, err := s.repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	if err := s.checkNewPayment(order, existing, reference); err != nil {
		return nil, err
	}
	amount, err := s.resolveAmount(input.Amount, TotalsOf(existing).Outstanding(order.TotalPrice))
	if err != nil {
		return nil, err
	}

	var payment *models.Payment
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		locked, err := s.orders.WithTx(tx).LockByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := checkPayable(locked); err != nil {
			return err
		}
		current, err := s.repo.WithTx(tx).ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := s.checkNewPayment(locked, current, reference); err != nil {
			return err
		}
		totals := TotalsOf(current)
		if err := s.checkBalance(totals.Confirmed, amount, locked.TotalPrice); err != nil {
			return err
		}
		invoice, err := s.invoices.FindForOrderInTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		row, err := s.newPayment(tx, locked, input.Actor.UserID, amount, method, reference, input.Notes, now)
		if err != nil {
			return err
		}
		row.Status = enums.PaymentStatusConfirmed
		row.ConfirmedAt = &now
		row.ConfirmedBy = input.Actor.ActorID()
		if invoice != nil {
			row.InvoiceID = &invoice.ID
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}

		totals.Confirmed = totals.Confirmed.Add(amount)
		status, err := s.applyOrderStatus(ctx, tx, locked, totals, "", input.Actor, now)
		if err != nil {
			return err
		}
		if invoice != nil && status.IsSettled() {
			if err := s.invoices.MarkPaidInTx(ctx, tx, invoice, input.Actor); err != nil {
				return err
			}
		}
		if err := s.recordAudit(ctx, tx, row, "record", "", input.Actor, nil); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventPaymentRecorded, row, status, input.Actor, now, "")); err != nil {
			return err
		}
		s.recordExpense(ctx, tx, locked, row)
		payment = row
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "record payment")
	}
	s.logg.Info(s.logg.WithAggregate(ctx, "payment", payment.ID.String()), "payment recorded")
	return payment, nil
}

// SubmitInvoicePayment registers a pending payment that the seller confirms
// once the funds arrive.
func (s *service) SubmitInvoicePayment(ctx context.Context, input SubmitInvoicePaymentInput) (*models.Payment, error) {
	invoice, err := s.invoices.Get(ctx, input.Actor, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsBuyerOf(invoice.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the buyer can pay an invoice")
	}
	switch invoice.Status {
	case enums.InvoiceStatusPaid:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "invoice is already paid")
	case enums.InvoiceStatusVoid:
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotPayable, "invoice is void")
	}
	order, err := s.loadOrder(ctx, invoice.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}
	method, err := resolveMethod(order, input.Method)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(input.BankReference)

	var payment *models.Payment
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		locked, err := s.orders.WithTx(tx).LockByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := checkPayable(locked); err != nil {
			return err
		}
		current, err := s.repo.WithTx(tx).ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := s.checkNewPayment(locked, current, reference); err != nil {
			return err
		}
		totals := TotalsOf(current)
		committed := totals.Confirmed.Add(totals.Pending)
		outstanding := locked.TotalPrice.Sub(committed)
		amount, err := s.resolveAmount(input.Amount, decimal.Max(outstanding, decimal.Zero))
		if err != nil {
			return err
		}

		now := s.now().UTC()
		row, err := s.newPayment(tx, locked, input.Actor.UserID, amount, method, reference, input.Notes, now)
		if err != nil {
			return err
		}
		row.InvoiceID = &invoice.ID
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}
		totals.Pending = totals.Pending.Add(amount)
		status, err := s.applyOrderStatus(ctx, tx, locked, totals, "", input.Actor, now)
		if err != nil {
			return err
		}
		if err := s.recordAudit(ctx, tx, row, "submit", "", input.Actor, nil); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventPaymentSubmitted, row, status, input.Actor, now, "")); err != nil {
			return err
		}
		payment = row
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "submit invoice payment")
	}
	return payment, nil
}

// ConfirmPayment confirms a pending payment. Confirming an already confirmed
// payment succeeds with AlreadyConfirmed set and writes nothing.
func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*ConfirmResult, error) {
	payment, err := s.loadPayment(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsSellerOf(order.SellerID) && !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can confirm payments")
	}
	switch payment.Status {
	case enums.PaymentStatusConfirmed:
		return &ConfirmResult{Payment: payment, PaymentStatus: order.PaymentStatus, AlreadyConfirmed: true}, nil
	case enums.PaymentStatusFailed:
		return nil, invalidPaymentTransition(payment.Status, enums.PaymentStatusConfirmed)
	}

	var result *ConfirmResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payRepo := s.repo.WithTx(tx)
		locked, err := payRepo.LockByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if locked.Status != enums.PaymentStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeConcurrentModification, "payment moved to %s while confirming", locked.Status)
		}
		lockedOrder, err := s.orders.WithTx(tx).LockByID(ctx, locked.OrderID)
		if err != nil {
			return err
		}
		current, err := payRepo.ListByOrder(ctx, locked.OrderID)
		if err != nil {
			return err
		}
		totals := TotalsOf(current)
		if err := s.checkBalance(totals.Confirmed, locked.Amount, lockedOrder.TotalPrice); err != nil {
			return err
		}

		now := s.now().UTC()
		err = payRepo.UpdateIfStatus(ctx, locked.ID, enums.PaymentStatusPending, map[string]any{
			"status":       enums.PaymentStatusConfirmed,
			"confirmed_at": now,
			"confirmed_by": input.Actor.ActorID(),
		})
		if err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payment was modified concurrently")
			}
			return err
		}
		locked.Status = enums.PaymentStatusConfirmed
		locked.ConfirmedAt = &now
		locked.ConfirmedBy = input.Actor.ActorID()

		totals.Confirmed = totals.Confirmed.Add(locked.Amount)
		totals.Pending = totals.Pending.Sub(locked.Amount)
		status, err := s.applyOrderStatus(ctx, tx, lockedOrder, totals, "", input.Actor, now)
		if err != nil {
			return err
		}
		if status.IsSettled() {
			invoice, err := s.invoices.FindForOrderInTx(ctx, tx, lockedOrder.ID)
			if err != nil {
				return err
			}
			if err := s.invoices.MarkPaidInTx(ctx, tx, invoice, input.Actor); err != nil {
				return err
			}
		}
		if err := s.recordAudit(ctx, tx, locked, "confirm", enums.PaymentStatusPending, input.Actor, nil); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventPaymentConfirmed, locked, status, input.Actor, now, "")); err != nil {
			return err
		}
		s.recordExpense(ctx, tx, lockedOrder, locked)
		result = &ConfirmResult{Payment: locked, PaymentStatus: status}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "confirm payment")
	}
	return result, nil
}

// FailPayment rejects a pending payment.
func (s *service) FailPayment(ctx context.Context, input FailPaymentInput) (*models.Payment, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	payment, err := s.loadPayment(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsSellerOf(order.SellerID) && !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can reject payments")
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, invalidPaymentTransition(payment.Status, enums.PaymentStatusFailed)
	}

	var failed *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payRepo := s.repo.WithTx(tx)
		locked, err := payRepo.LockByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if locked.Status != enums.PaymentStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeConcurrentModification, "payment moved to %s while failing", locked.Status)
		}
		lockedOrder, err := s.orders.WithTx(tx).LockByID(ctx, locked.OrderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		err = payRepo.UpdateIfStatus(ctx, locked.ID, enums.PaymentStatusPending, map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failed_at":      now,
			"failure_reason": reason,
		})
		if err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payment was modified concurrently")
			}
			return err
		}
		locked.Status = enums.PaymentStatusFailed
		locked.FailedAt = &now
		locked.FailureReason = &reason

		current, err := payRepo.ListByOrder(ctx, locked.OrderID)
		if err != nil {
			return err
		}
		status, err := s.applyOrderStatus(ctx, tx, lockedOrder, TotalsOf(current), "", input.Actor, now)
		if err != nil {
			return err
		}
		if err := s.recordAudit(ctx, tx, locked, "fail", enums.PaymentStatusPending, input.Actor, map[string]any{"reason": reason}); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventPaymentFailed, locked, status, input.Actor, now, reason)); err != nil {
			return err
		}
		failed = locked
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "fail payment")
	}
	return failed, nil
}

// ConfirmCODPayment records the cash handed over for a delivered COD order.
// Buyer or seller may confirm; the first confirmation wins.
func (s *service) ConfirmCODPayment(ctx context.Context, input ConfirmCODInput) (*models.Payment, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !input.Actor.IsBuyerOf(order.BuyerID) && !input.Actor.IsSellerOf(order.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this order")
	}
	if order.PaymentMethod != enums.PaymentMethodCOD {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "order is not cash on delivery")
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "cash can only be confirmed on a delivered order, order is %s", order.Status)
	}
	if order.PaymentStatus.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}

	var payment *models.Payment
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		locked, err := s.orders.WithTx(tx).LockByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status != enums.OrderStatusDelivered {
			return pkgerrors.Newf(pkgerrors.CodeConcurrentModification, "order moved to %s while confirming cash", locked.Status)
		}
		payment, err = s.settleCOD(ctx, tx, locked, input.Actor, enums.OrderPaymentPaidCash)
		return err
	})
	if err != nil {
		return nil, asServiceError(err, "confirm cod payment")
	}
	return payment, nil
}

// SettleCODInTx is called by the order engine when cash is collected at delivery.
func (s *service) SettleCODInTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor identity.Actor, status enums.OrderPaymentStatus) (*models.Payment, error) {
	return s.settleCOD(ctx, tx, order, actor, status)
}

func (s *service) settleCOD(ctx context.Context, tx *gorm.DB, order *models.Order, actor identity.Actor, settled enums.OrderPaymentStatus) (*models.Payment, error) {
	if order.PaymentStatus.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}
	current, err := s.repo.WithTx(tx).ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	totals := TotalsOf(current)
	outstanding := totals.Outstanding(order.TotalPrice)
	if !s.cmp.Positive(outstanding) {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}
	invoice, err := s.invoices.FindForOrderInTx(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	row, err := s.newPayment(tx, order, order.BuyerID, outstanding, enums.PaymentMethodCOD, "", "", now)
	if err != nil {
		return nil, err
	}
	row.Status = enums.PaymentStatusConfirmed
	row.ConfirmedAt = &now
	row.ConfirmedBy = actor.ActorID()
	if invoice != nil {
		row.InvoiceID = &invoice.ID
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, err
	}
	totals.Confirmed = totals.Confirmed.Add(outstanding)
	status, err := s.applyOrderStatus(ctx, tx, order, totals, settled, actor, now)
	if err != nil {
		return nil, err
	}
	if invoice != nil {
		if err := s.invoices.MarkPaidInTx(ctx, tx, invoice, actor); err != nil {
			return nil, err
		}
	}
	if err := s.recordAudit(ctx, tx, row, "confirm_cod", "", actor, nil); err != nil {
		return nil, err
	}
	if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventCODPaymentConfirmed, row, status, actor, now, "")); err != nil {
		return nil, err
	}
	s.recordExpense(ctx, tx, order, row)
	return row, nil
}

func (s *service) Summary(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*Summary, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.IsBuyerOf(order.BuyerID) && !actor.IsSellerOf(order.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this order")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	totals := TotalsOf(rows)
	return &Summary{
		OrderID:        order.ID,
		TotalPrice:     order.TotalPrice,
		ConfirmedTotal: totals.Confirmed,
		PendingTotal:   totals.Pending,
		Outstanding:    totals.Outstanding(order.TotalPrice),
		Currency:       order.Currency,
		PaymentStatus:  order.PaymentStatus,
		Payments:       rows,
	}, nil
}

func (s *service) Get(ctx context.Context, actor identity.Actor, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.IsBuyerOf(order.BuyerID) && !actor.IsSellerOf(order.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this payment")
	}
	return payment, nil
}

// applyOrderStatus writes the derived payment status when it changed. A
// non-empty settled status replaces "paid" for cash settlements.
func (s *service) applyOrderStatus(ctx context.Context, tx *gorm.DB, order *models.Order, totals Totals, settled enums.OrderPaymentStatus, actor identity.Actor, now time.Time) (enums.OrderPaymentStatus, error) {
	derived := DerivePaymentStatus(order.TotalPrice, totals, s.cmp)
	if derived == enums.OrderPaymentPaid && settled != "" {
		derived = settled
	}
	if derived == order.PaymentStatus {
		return derived, nil
	}
	updates := map[string]any{"payment_status": derived}
	if derived.IsSettled() && order.PaidAt == nil {
		updates["paid_at"] = now
		order.PaidAt = &now
	}
	if err := s.orders.WithTx(tx).UpdateIfStatus(ctx, order.ID, order.Status, updates); err != nil {
		if errors.Is(err, db.ErrStaleWrite) {
			return "", pkgerrors.New(pkgerrors.CodeConcurrentModification, "order was modified concurrently")
		}
		return "", err
	}
	previous := order.PaymentStatus
	order.PaymentStatus = derived
	err := s.audit.Record(ctx, tx, audit.Entry{
		EntityType: enums.AggregateOrder,
		EntityID:   order.ID,
		Action:     "payment_status_changed",
		Actor:      actor,
		Field:      "payment_status",
		Previous:   string(previous),
		New:        string(derived),
		Metadata: map[string]any{
			"confirmed_total": totals.Confirmed.String(),
			"pending_total":   totals.Pending.String(),
		},
	})
	return derived, err
}

func (s *service) checkNewPayment(order *models.Order, existing []models.Payment, reference string) error {
	if order.PaymentStatus.IsSettled() || s.cmp.GreaterOrEqual(TotalsOf(existing).Confirmed, order.TotalPrice) {
		return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already fully paid")
	}
	if reference == "" {
		return nil
	}
	for _, p := range existing {
		if p.BankReference != nil && *p.BankReference == reference {
			return pkgerrors.Newf(pkgerrors.CodeDuplicateBankReference, "bank reference %s was already used for this order", reference)
		}
	}
	return nil
}

func (s *service) checkBalance(confirmed, amount, total decimal.Decimal) error {
	if s.cmp.Exceeds(confirmed.Add(amount), total) {
		return pkgerrors.New(pkgerrors.CodeAmountExceedsBalance, "payment exceeds the outstanding balance").
			WithDetails(map[string]any{
				"requested":   amount.StringFixed(2),
				"outstanding": decimal.Max(total.Sub(confirmed), decimal.Zero).StringFixed(2),
			})
	}
	return nil
}

func (s *service) resolveAmount(requested *decimal.Decimal, outstanding decimal.Decimal) (decimal.Decimal, error) {
	if requested == nil {
		if !s.cmp.Positive(outstanding) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "nothing left to pay")
		}
		return money.Round2(outstanding), nil
	}
	amount := money.Round2(*requested)
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero")
	}
	if s.cmp.Exceeds(amount, outstanding) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeAmountExceedsBalance, "payment exceeds the outstanding balance").
			WithDetails(map[string]any{
				"requested":   amount.StringFixed(2),
				"outstanding": outstanding.StringFixed(2),
			})
	}
	return amount, nil
}

func (s *service) newPayment(tx *gorm.DB, order *models.Order, payerID uuid.UUID, amount decimal.Decimal, method enums.PaymentMethod, reference, notes string, now time.Time) (*models.Payment, error) {
	number, err := sequence.Next(tx, sequence.PrefixPayment, now)
	if err != nil {
		return nil, err
	}
	return &models.Payment{
		ID:            uuid.New(),
		PaymentNumber: number,
		OrderID:       order.ID,
		PayerID:       payerID,
		Amount:        amount,
		Currency:      order.Currency,
		Method:        method,
		BankReference: optionalString(reference),
		Status:        enums.PaymentStatusPending,
		Notes:         optionalString(notes),
	}, nil
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, payment *models.Payment, action string, previous enums.PaymentStatus, actor identity.Actor, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["order_id"] = payment.OrderID.String()
	metadata["amount"] = payment.Amount.StringFixed(2)
	metadata["payment_number"] = payment.PaymentNumber
	return s.audit.Record(ctx, tx, audit.Entry{
		EntityType: enums.AggregatePayment,
		EntityID:   payment.ID,
		Action:     action,
		Actor:      actor,
		Previous:   string(previous),
		New:        string(payment.Status),
		Metadata:   metadata,
	})
}

// recordExpense writes the buyer ledger entry and its analytics event; neither
// may fail the payment.
func (s *service) recordExpense(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment) {
	if s.ledger != nil {
		paymentID := payment.ID
		s.ledger.RecordBestEffort(ctx, tx, ledger.RecordEntryInput{
			BuyerID:     order.BuyerID,
			OrderID:     order.ID,
			PaymentID:   &paymentID,
			Type:        enums.LedgerEntryExpense,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			Description: fmt.Sprintf("Payment %s for order %s", payment.PaymentNumber, order.OrderNumber),
		})
	}
	ev := s.event(enums.EventBuyerExpense, payment, order.PaymentStatus, identity.System(), s.now().UTC(), "")
	ev.Destination = enums.DestinationAnalytics
	ev.AggregateType = enums.AggregateOrder
	ev.AggregateID = order.ID
	s.outbox.EnqueueBestEffort(ctx, tx, ev)
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) event(eventType enums.OutboxEventType, payment *models.Payment, orderStatus enums.OrderPaymentStatus, actor identity.Actor, now time.Time, reason string) outbox.Event {
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Destination:   enums.DestinationNotification,
		Actor:         actor.EventRef(),
		OccurredAt:    now,
		Data: PaymentEvent{
			PaymentID:     payment.ID,
			PaymentNumber: payment.PaymentNumber,
			OrderID:       payment.OrderID,
			InvoiceID:     payment.InvoiceID,
			PayerID:       payment.PayerID,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			Method:        payment.Method,
			Status:        payment.Status,
			OrderStatus:   orderStatus,
			Reason:        reason,
		},
	}
}

var unpayableStatuses = map[enums.OrderStatus]struct{}{
	enums.OrderStatusCancelled: {},
	enums.OrderStatusRefunded:  {},
	enums.OrderStatusFailed:    {},
}

func checkPayable(order *models.Order) error {
	if _, blocked := unpayableStatuses[order.Status]; blocked {
		return pkgerrors.Newf(pkgerrors.CodeOrderNotPayable, "order is %s", order.Status)
	}
	if order.PaymentStatus == enums.OrderPaymentRefunded {
		return pkgerrors.New(pkgerrors.CodeOrderNotPayable, "order was refunded")
	}
	return nil
}

// resolveMethod defaults to the order's method. Cash on delivery never goes
// through the recorded-payment path.
func resolveMethod(order *models.Order, requested enums.PaymentMethod) (enums.PaymentMethod, error) {
	if order.PaymentMethod == enums.PaymentMethodCOD {
		return "", pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "cash on delivery orders are settled through cash confirmation")
	}
	method := requested
	if method == "" {
		method = order.PaymentMethod
	}
	if !method.IsValid() {
		return "", pkgerrors.Newf(pkgerrors.CodeInvalidPaymentMethod, "unknown payment method %q", method)
	}
	if method == enums.PaymentMethodCOD {
		return "", pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "cash on delivery is only available through cash confirmation")
	}
	return method, nil
}

func invalidPaymentTransition(from, to enums.PaymentStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidState, "Cannot transition from %s to %s", from, to)
}

func asServiceError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
