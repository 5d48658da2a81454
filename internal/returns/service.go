// Package returns tracks goods travelling back to the seller after a dispute.
package returns

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
	"github.com/angelmondragon/marketsettle-backend/internal/disputes"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/ledger"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/sequence"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

const returnDisputeIndex = "uq_order_returns_dispute"

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
	History(ctx context.Context, entityType enums.AggregateType, entityID uuid.UUID) ([]models.AuditLog, error)
}

type refundLedger interface {
	RecordBestEffort(ctx context.Context, tx *gorm.DB, input ledger.RecordEntryInput)
}

// Service is the return engine.
type Service interface {
	Create(ctx context.Context, input CreateReturnInput) (*models.Return, error)
	Approve(ctx context.Context, input ActionInput) (*models.Return, error)
	Reject(ctx context.Context, input RejectInput) (*models.Return, error)
	MarkShipped(ctx context.Context, input ShipInput) (*models.Return, error)
	ConfirmReceived(ctx context.Context, input ReceiveInput) (*models.Return, error)
	ProcessRefund(ctx context.Context, input RefundInput) (*models.Return, error)
	Close(ctx context.Context, input ActionInput) (*models.Return, error)
	Get(ctx context.Context, actor identity.Actor, returnID uuid.UUID) (*models.Return, error)
	History(ctx context.Context, actor identity.Actor, returnID uuid.UUID) ([]models.AuditLog, error)
}

type ServiceParams struct {
	Repo                Repository
	Disputes            disputes.Repository
	Orders              orders.Repository
	Ledger              refundLedger
	Tx                  txRunner
	Outbox              outboxWriter
	Audit               auditRecorder
	Logger              *logger.Logger
	NumberRetryAttempts int
	Now                 func() time.Time
}

type service struct {
	repo          Repository
	disputes      disputes.Repository
	orders        orders.Repository
	ledger        refundLedger
	tx            txRunner
	outbox        outboxWriter
	audit         auditRecorder
	logg          *logger.Logger
	retryAttempts int
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil || params.Disputes == nil || params.Orders == nil {
		return nil, fmt.Errorf("return, dispute and order repositories required")
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
		disputes:      params.Disputes,
		orders:        params.Orders,
		ledger:        params.Ledger,
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		logg:          params.Logger,
		retryAttempts: attempts,
		now:           now,
	}, nil
}

// Create opens the single return allowed for a resolved dispute. Items and
// the address are stored as snapshots.
func (s *service) Create(ctx context.Context, input CreateReturnInput) (*models.Return, error) {
	if input.DisputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	if _, err := enums.ParseReturnType(string(input.ReturnType)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return type")
	}
	if err := input.ReturnAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return address")
	}
	dispute, err := s.disputes.FindByID(ctx, input.DisputeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeDisputeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	if !input.Actor.IsAdmin() && !input.Actor.IsBuyerOf(dispute.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the buyer can request a return")
	}
	if dispute.Status != enums.DisputeStatusResolved {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "returns require a resolved dispute, dispute is %s", dispute.Status)
	}
	order, err := s.orders.FindByID(ctx, dispute.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	items := input.Items
	if len(items) == 0 {
		items = types.ReturnItems{{
			ItemID:    order.ItemSnapshot.ItemID,
			Name:      order.ItemSnapshot.Name,
			SKU:       order.ItemSnapshot.SKU,
			Quantity:  order.Quantity,
			UnitPrice: order.UnitPrice,
		}}
	}
	if err := items.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return items")
	}
	if err := s.ensureNone(ctx, s.repo, dispute.ID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var created *models.Return
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureNone(ctx, repo, dispute.ID); err != nil {
			return err
		}
		number, err := sequence.Next(tx, sequence.PrefixReturn, now)
		if err != nil {
			return err
		}
		ret := &models.Return{
			ID:            uuid.New(),
			ReturnNumber:  number,
			DisputeID:     dispute.ID,
			OrderID:       dispute.OrderID,
			BuyerID:       dispute.BuyerID,
			SellerID:      dispute.SellerID,
			ReturnType:    input.ReturnType,
			Items:         items,
			ReturnAddress: input.ReturnAddress,
			Reason:        optionalString(input.Reason),
			Status:        enums.ReturnStatusRequested,
		}
		if err := repo.Create(ctx, ret); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateReturn,
			EntityID:   ret.ID,
			Action:     "create",
			Actor:      input.Actor,
			New:        string(ret.Status),
			Metadata: map[string]any{
				"dispute_id":  dispute.ID.String(),
				"return_type": string(ret.ReturnType),
				"item_count":  len(items),
			},
		}); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventReturnCreated, ret, "", input.Actor, now)); err != nil {
			return err
		}
		created = ret
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, returnDisputeIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeReturnExists, "a return already exists for this dispute")
		}
		return nil, asServiceError(err, "create return")
	}
	s.logg.Info(s.logg.WithAggregate(ctx, "return", created.ID.String()), "return requested")
	return created, nil
}

func (s *service) Approve(ctx context.Context, input ActionInput) (*models.Return, error) {
	return s.apply(ctx, input.ReturnID, input.Actor, transition{
		action:    "approve",
		target:    enums.ReturnStatusApproved,
		authorize: sellerOrAdmin,
		note:      input.Notes,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"approved_at": now}
		},
	})
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.Return, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}
	return s.apply(ctx, input.ReturnID, input.Actor, transition{
		action:    "reject",
		target:    enums.ReturnStatusRejected,
		authorize: sellerOrAdmin,
		note:      reason,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"rejection_reason": reason, "rejected_at": now}
		},
	})
}

func (s *service) MarkShipped(ctx context.Context, input ShipInput) (*models.Return, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	if tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	carrier := strings.TrimSpace(input.Carrier)
	return s.apply(ctx, input.ReturnID, input.Actor, transition{
		action:    "mark_shipped",
		target:    enums.ReturnStatusInTransit,
		authorize: buyerOnly,
		metadata:  map[string]any{"tracking_number": tracking, "carrier": carrier},
		updates: func(now time.Time) map[string]any {
			updates := map[string]any{"tracking_number": tracking, "shipped_at": now}
			if carrier != "" {
				updates["carrier"] = carrier
			}
			return updates
		},
	})
}

func (s *service) ConfirmReceived(ctx context.Context, input ReceiveInput) (*models.Return, error) {
	condition, err := enums.ParseReturnCondition(string(input.Condition))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid received condition")
	}
	notes := strings.TrimSpace(input.Notes)
	return s.apply(ctx, input.ReturnID, input.Actor, transition{
		action:    "confirm_received",
		target:    enums.ReturnStatusReceived,
		authorize: sellerOrAdmin,
		note:      notes,
		metadata:  map[string]any{"condition": string(condition)},
		updates: func(now time.Time) map[string]any {
			updates := map[string]any{"received_condition": condition, "received_at": now}
			if notes != "" {
				updates["condition_notes"] = notes
			}
			return updates
		},
	})
}

// ProcessRefund records the refund amount and writes the buyer's refund
// ledger entry. The amount is not checked against the dispute.
func (s *service) ProcessRefund(ctx context.Context, input RefundInput) (*models.Return, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "refund amount must be greater than zero")
	}
	amount := input.Amount.Round(2)
	reference := strings.TrimSpace(input.Reference)
	return s.apply(ctx, input.ReturnID, input.Actor, transition{
		action:    "process_refund",
		target:    enums.ReturnStatusRefundProcessed,
		authorize: sellerOrAdmin,
		metadata:  map[string]any{"amount": amount.StringFixed(2), "reference": reference},
		updates: func(now time.Time) map[string]any {
			updates := map[string]any{"refund_amount": decimal.NewNullDecimal(amount), "refunded_at": now}
			if reference != "" {
				updates["refund_reference"] = reference
			}
			return updates
		},
		after: func(ctx context.Context, tx *gorm.DB, ret *models.Return) {
			s.recordRefund(ctx, tx, ret, amount)
		},
	})
}

func (s *service) Close(ctx context.Context, input ActionInput) (*models.Return, error) {
	return s.apply(ctx, input.ReturnID, input.Actor, transition{
		action:    "close",
		target:    enums.ReturnStatusClosed,
		authorize: party,
		note:      input.Notes,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"closed_at": now}
		},
	})
}

func (s *service) Get(ctx context.Context, actor identity.Actor, returnID uuid.UUID) (*models.Return, error) {
	ret, err := s.load(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if err := party(actor, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *service) History(ctx context.Context, actor identity.Actor, returnID uuid.UUID) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, actor, returnID); err != nil {
		return nil, err
	}
	logs, err := s.audit.History(ctx, enums.AggregateReturn, returnID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return history")
	}
	return logs, nil
}

type transition struct {
	action    string
	target    enums.ReturnStatus
	authorize func(actor identity.Actor, ret *models.Return) error
	updates   func(now time.Time) map[string]any
	after     func(ctx context.Context, tx *gorm.DB, ret *models.Return)
	note      string
	metadata  map[string]any
}

func (s *service) apply(ctx context.Context, returnID uuid.UUID, actor identity.Actor, t transition) (*models.Return, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	ret, err := s.load(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if err := t.authorize(actor, ret); err != nil {
		return nil, err
	}
	if err := checkTransition(ret.Status, t.target); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, returnID)
		if err != nil {
			return err
		}
		if err := checkTransition(locked.Status, t.target); err != nil {
			return err
		}
		now := s.now().UTC()
		updates := map[string]any{}
		if t.updates != nil {
			updates = t.updates(now)
		}
		updates["status"] = t.target
		if err := repo.UpdateIfStatus(ctx, returnID, locked.Status, updates); err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "return was modified concurrently")
			}
			return err
		}

		metadata := map[string]any{}
		for k, v := range t.metadata {
			metadata[k] = v
		}
		if t.note != "" {
			metadata["notes"] = t.note
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateReturn,
			EntityID:   returnID,
			Action:     t.action,
			Actor:      actor,
			Previous:   string(locked.Status),
			New:        string(t.target),
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		current, err := repo.FindByID(ctx, returnID)
		if err != nil {
			return err
		}
		if t.after != nil {
			t.after(ctx, tx, current)
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(eventFor(t.target), current, locked.Status, actor, now)); err != nil {
			return err
		}
		ret = current
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, t.action)
	}
	logCtx := s.logg.WithAggregate(ctx, "return", returnID.String())
	s.logg.Info(s.logg.WithField(logCtx, "status", t.target), "return "+t.action)
	return ret, nil
}

func (s *service) recordRefund(ctx context.Context, tx *gorm.DB, ret *models.Return, amount decimal.Decimal) {
	if s.ledger == nil {
		return
	}
	order, err := s.orders.WithTx(tx).FindByID(ctx, ret.OrderID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "return_id", ret.ID.String()), "refund ledger entry skipped: order lookup failed")
		return
	}
	returnID := ret.ID
	s.ledger.RecordBestEffort(ctx, tx, ledger.RecordEntryInput{
		BuyerID:     ret.BuyerID,
		OrderID:     ret.OrderID,
		ReturnID:    &returnID,
		Type:        enums.LedgerEntryRefund,
		Amount:      amount,
		Currency:    order.Currency,
		Description: fmt.Sprintf("Refund for return %s", ret.ReturnNumber),
	})
}

func (s *service) ensureNone(ctx context.Context, repo Repository, disputeID uuid.UUID) error {
	_, err := repo.FindByDispute(ctx, disputeID)
	switch {
	case err == nil:
		return pkgerrors.New(pkgerrors.CodeReturnExists, "a return already exists for this dispute")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing return")
	}
}

func (s *service) load(ctx context.Context, returnID uuid.UUID) (*models.Return, error) {
	ret, err := s.repo.FindByID(ctx, returnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeReturnNotFound, "return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return")
	}
	return ret, nil
}

func (s *service) event(eventType enums.OutboxEventType, ret *models.Return, previous enums.ReturnStatus, actor identity.Actor, now time.Time) outbox.Event {
	payload := ReturnEvent{
		ReturnID:       ret.ID,
		ReturnNumber:   ret.ReturnNumber,
		DisputeID:      ret.DisputeID,
		OrderID:        ret.OrderID,
		BuyerID:        ret.BuyerID,
		SellerID:       ret.SellerID,
		Status:         ret.Status,
		PreviousStatus: previous,
		TrackingNumber: ret.TrackingNumber,
		OccurredAt:     now,
	}
	if ret.RefundAmount.Valid {
		amount := ret.RefundAmount.Decimal
		payload.RefundAmount = &amount
	}
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregateReturn,
		AggregateID:   ret.ID,
		Destination:   enums.DestinationNotification,
		Actor:         actor.EventRef(),
		OccurredAt:    now,
		Data:          payload,
	}
}

// checkTransition reports the expected source status, e.g. "Return is not in
// requested status".
func checkTransition(from, to enums.ReturnStatus) error {
	if CanTransitionTo(from, to) {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeInvalidState, "Return is not in %s status", sourceStatus(to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func eventFor(status enums.ReturnStatus) enums.OutboxEventType {
	switch status {
	case enums.ReturnStatusApproved:
		return enums.EventReturnApproved
	case enums.ReturnStatusRejected:
		return enums.EventReturnRejected
	case enums.ReturnStatusInTransit:
		return enums.EventReturnShipped
	case enums.ReturnStatusReceived:
		return enums.EventReturnReceived
	case enums.ReturnStatusRefundProcessed:
		return enums.EventReturnRefundProcessed
	default:
		return enums.EventReturnClosed
	}
}

func sellerOrAdmin(actor identity.Actor, ret *models.Return) error {
	if actor.IsAdmin() || actor.IsSellerOf(ret.SellerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can perform this action")
}

func buyerOnly(actor identity.Actor, ret *models.Return) error {
	if actor.IsBuyerOf(ret.BuyerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the buyer can perform this action")
}

func party(actor identity.Actor, ret *models.Return) error {
	if actor.IsAdmin() || actor.IsBuyerOf(ret.BuyerID) || actor.IsSellerOf(ret.SellerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this return")
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func asServiceError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
