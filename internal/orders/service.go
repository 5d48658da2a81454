package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/money"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/pagination"
	"github.com/angelmondragon/marketsettle-backend/pkg/sequence"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
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
	History(ctx context.Context, entityType enums.AggregateType, entityID uuid.UUID) ([]models.AuditLog, error)
}

// CODSettler records cash handed over at delivery for a COD order.
type CODSettler interface {
	SettleCODInTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor identity.Actor, status enums.OrderPaymentStatus) (*models.Payment, error)
}

// Service owns the order state machine.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Confirm(ctx context.Context, input ActionInput) (*models.Order, error)
	StartProgress(ctx context.Context, input ActionInput) (*models.Order, error)
	Ship(ctx context.Context, input ShipInput) (*models.Order, error)
	MarkDelivered(ctx context.Context, input DeliverInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Get(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor identity.Actor, filters ListFilters) (pagination.Page[models.Order], error)
	History(ctx context.Context, actor identity.Actor, orderID uuid.UUID) ([]models.AuditLog, error)
}

type ServiceParams struct {
	Repo                Repository
	Tx                  txRunner
	Outbox              outboxWriter
	Audit               auditRecorder
	COD                 CODSettler
	Logger              *logger.Logger
	NumberRetryAttempts int
	Now                 func() time.Time
}

type service struct {
	repo          Repository
	tx            txRunner
	outbox        outboxWriter
	audit         auditRecorder
	cod           CODSettler
	logg          *logger.Logger
	retryAttempts int
	now           func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox writer required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
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
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		cod:           params.COD,
		logg:          params.Logger,
		retryAttempts: attempts,
		now:           now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.Buyer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "buyer identity missing")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodBankTransfer
	}
	if !method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidPaymentMethod, "unknown payment method %q", method)
	}
	if input.ShippingAddress != nil {
		if err := input.ShippingAddress.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
		}
	}

	item, err := s.repo.FindItem(ctx, input.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeItemNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if !item.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeItemNotFound, "item is no longer available")
	}
	if input.Buyer.IsSellerOf(item.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sellers cannot order their own items")
	}
	currency, err := enums.ParseCurrency(item.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "item currency unsupported")
	}

	snapshot := types.ItemSnapshot{
		ItemID:    item.ID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Currency:  item.Currency,
	}
	if item.SKU != nil {
		snapshot.SKU = *item.SKU
	}
	if item.Description != nil {
		snapshot.Description = *item.Description
	}

	var created *models.Order
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		now := s.now().UTC()
		number, err := sequence.Next(tx, sequence.PrefixOrder, now)
		if err != nil {
			return err
		}
		order := &models.Order{
			ID:                uuid.New(),
			OrderNumber:       number,
			BuyerID:           input.Buyer.UserID,
			SellerID:          item.SellerID,
			ItemID:            item.ID,
			ItemSnapshot:      snapshot,
			Quantity:          input.Quantity,
			UnitPrice:         item.UnitPrice,
			TotalPrice:        money.LineTotal(item.UnitPrice, input.Quantity),
			Currency:          currency,
			Status:            enums.OrderStatusPendingConfirmation,
			PaymentStatus:     enums.OrderPaymentUnpaid,
			FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
			PaymentMethod:     method,
			ShippingAddress:   input.ShippingAddress,
			Notes:             optionalString(input.Notes),
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateOrder,
			EntityID:   order.ID,
			Action:     "create",
			Actor:      input.Buyer,
			New:        string(order.Status),
			Metadata:   map[string]any{"order_number": number, "quantity": input.Quantity},
		}); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventOrderCreated, enums.DestinationNotification, order, "", input.Buyer, now)); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "create order")
	}
	s.logg.Info(s.logg.WithAggregate(ctx, "order", created.ID.String()), "order created")
	return created, nil
}

func (s *service) Confirm(ctx context.Context, input ActionInput) (*models.Order, error) {
	return s.apply(ctx, input.OrderID, input.Actor, transition{
		action:    "confirm",
		target:    enums.OrderStatusConfirmed,
		authorize: sellerOnly,
		eventType: enums.EventOrderConfirmed,
		notes:     input.Notes,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"confirmed_at": now}
		},
	})
}

func (s *service) StartProgress(ctx context.Context, input ActionInput) (*models.Order, error) {
	return s.apply(ctx, input.OrderID, input.Actor, transition{
		action:    "start_progress",
		target:    enums.OrderStatusInProgress,
		authorize: sellerOnly,
		eventType: enums.EventOrderStatusChanged,
		notes:     input.Notes,
	})
}

func (s *service) Ship(ctx context.Context, input ShipInput) (*models.Order, error) {
	carrier := strings.TrimSpace(input.Carrier)
	if carrier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier is required")
	}
	tracking := strings.TrimSpace(input.TrackingNumber)
	return s.apply(ctx, input.OrderID, input.Actor, transition{
		action:    "ship",
		target:    enums.OrderStatusShipped,
		authorize: sellerOnly,
		eventType: enums.EventOrderShipped,
		metadata:  map[string]any{"carrier": carrier, "tracking_number": tracking},
		updates: func(now time.Time) map[string]any {
			updates := map[string]any{"shipped_at": now, "carrier": carrier}
			if tracking != "" {
				updates["tracking_number"] = tracking
			}
			return updates
		},
		decorate: func(ev *OrderEvent) {
			ev.Carrier = carrier
			ev.TrackingNumber = tracking
		},
	})
}

func (s *service) MarkDelivered(ctx context.Context, input DeliverInput) (*models.Order, error) {
	return s.apply(ctx, input.OrderID, input.Actor, transition{
		action:    "deliver",
		target:    enums.OrderStatusDelivered,
		authorize: buyerOrSeller,
		eventType: enums.EventOrderDelivered,
		metadata:  map[string]any{"cash_collected": input.CashCollected},
		updates: func(now time.Time) map[string]any {
			return map[string]any{"delivered_at": now}
		},
		after: func(ctx context.Context, tx *gorm.DB, order *models.Order) error {
			return s.afterDelivered(ctx, tx, order, input)
		},
	})
}

func (s *service) afterDelivered(ctx context.Context, tx *gorm.DB, order *models.Order, input DeliverInput) error {
	if err := s.repo.WithTx(tx).IncrementItemSuccess(ctx, order.ItemID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment item success count")
	}
	if order.PaymentMethod != enums.PaymentMethodCOD || !input.CashCollected {
		return nil
	}
	if order.PaymentStatus.IsSettled() {
		return nil
	}
	if s.cod == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "cod settlement not configured")
	}
	_, err := s.cod.SettleCODInTx(ctx, tx, order, input.Actor, enums.OrderPaymentPaid)
	return err
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	reason := strings.TrimSpace(input.Reason)
	return s.apply(ctx, input.OrderID, input.Actor, transition{
		action:    "cancel",
		target:    enums.OrderStatusCancelled,
		authorize: cancelAuthorization,
		eventType: enums.EventOrderCancelled,
		notes:     reason,
		updates: func(now time.Time) map[string]any {
			updates := map[string]any{
				"cancelled_at": now,
				"cancelled_by": cancelRole(input.Actor),
			}
			if reason != "" {
				updates["cancellation_reason"] = reason
			}
			return updates
		},
		decorate: func(ev *OrderEvent) { ev.Reason = reason },
	})
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.Status)
	}
	if input.Status == enums.OrderStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use ship to record carrier details")
	}
	if input.Status == enums.OrderStatusCancelled {
		return s.Cancel(ctx, CancelInput{OrderID: input.OrderID, Actor: input.Actor, Reason: input.Reason})
	}
	if input.Status == enums.OrderStatusDelivered {
		return s.MarkDelivered(ctx, DeliverInput{OrderID: input.OrderID, Actor: input.Actor})
	}
	target := input.Status
	return s.apply(ctx, input.OrderID, input.Actor, transition{
		action:    "update_status",
		target:    target,
		authorize: sellerOrAdmin,
		eventType: enums.EventOrderStatusChanged,
		notes:     input.Reason,
		metadata:  input.Metadata,
		updates: func(now time.Time) map[string]any {
			if target == enums.OrderStatusConfirmed {
				return map[string]any{"confirmed_at": now}
			}
			return nil
		},
		decorate: func(ev *OrderEvent) { ev.Reason = input.Reason },
	})
}

func (s *service) Get(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := participant(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor identity.Actor, filters ListFilters) (pagination.Page[models.Order], error) {
	var (
		orders []models.Order
		err    error
	)
	switch actor.Role {
	case enums.ActorBuyer:
		orders, err = s.repo.ListForBuyer(ctx, actor.UserID, filters)
	case enums.ActorSeller:
		orders, err = s.repo.ListForSeller(ctx, actor.SellerIDs.IDs(), filters)
	default:
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "listing requires a buyer or seller")
	}
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.NewPage(orders, filters.Limit, orderCursor), nil
}

func orderCursor(o models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func (s *service) History(ctx context.Context, actor identity.Actor, orderID uuid.UUID) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	logs, err := s.audit.History(ctx, enums.AggregateOrder, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	return logs, nil
}

type transition struct {
	action    string
	target    enums.OrderStatus
	authorize func(actor identity.Actor, order *models.Order) error
	eventType enums.OutboxEventType
	notes     string
	metadata  map[string]any
	updates   func(now time.Time) map[string]any
	after     func(ctx context.Context, tx *gorm.DB, order *models.Order) error
	decorate  func(ev *OrderEvent)
}

// apply runs a transition: a non-transactional pre-check for early rejection,
// then a locked re-read and a status-guarded update inside the transaction.
func (s *service) apply(ctx context.Context, orderID uuid.UUID, actor identity.Actor, t transition) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := t.authorize(actor, order); err != nil {
		return nil, err
	}
	if err := checkTransition(order.Status, t.target); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if locked.Status != order.Status {
			return pkgerrors.Newf(pkgerrors.CodeConcurrentModification, "order moved to %s while processing", locked.Status)
		}
		if err := t.authorize(actor, locked); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{}
		if t.updates != nil {
			for k, v := range t.updates(now) {
				updates[k] = v
			}
		}
		updates["status"] = t.target
		if fulfillment, ok := fulfillmentFor(t.target); ok {
			updates["fulfillment_status"] = fulfillment
		}
		if err := repo.UpdateIfStatus(ctx, orderID, locked.Status, updates); err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "order was modified concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		previous := locked.Status
		locked.Status = t.target
		if t.after != nil {
			if err := t.after(ctx, tx, locked); err != nil {
				return err
			}
		}

		metadata := map[string]any{}
		for k, v := range t.metadata {
			metadata[k] = v
		}
		if t.notes != "" {
			metadata["notes"] = t.notes
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateOrder,
			EntityID:   orderID,
			Action:     t.action,
			Actor:      actor,
			Previous:   string(previous),
			New:        string(t.target),
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		current, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		ev := s.event(t.eventType, enums.DestinationNotification, current, previous, actor, now)
		if t.decorate != nil {
			if payload, ok := ev.Data.(OrderEvent); ok {
				t.decorate(&payload)
				ev.Data = payload
			}
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, ev); err != nil {
			return err
		}
		if t.target == enums.OrderStatusShipped || t.target == enums.OrderStatusCancelled {
			email := ev
			email.Destination = enums.DestinationEmail
			s.outbox.EnqueueBestEffort(ctx, tx, email)
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, t.action)
	}

	logCtx := s.logg.WithAggregate(ctx, "order", orderID.String())
	s.logg.Info(s.logg.WithField(logCtx, "status", t.target), "order "+t.action)
	return order, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) event(eventType enums.OutboxEventType, dest enums.OutboxDestination, order *models.Order, previous enums.OrderStatus, actor identity.Actor, now time.Time) outbox.Event {
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Destination:   dest,
		Actor:         actor.EventRef(),
		OccurredAt:    now,
		Data: OrderEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			BuyerID:        order.BuyerID,
			SellerID:       order.SellerID,
			Status:         order.Status,
			PreviousStatus: previous,
			PaymentStatus:  order.PaymentStatus,
			TotalPrice:     order.TotalPrice,
			Currency:       order.Currency,
			OccurredAt:     now,
		},
	}
}

func checkTransition(from, to enums.OrderStatus) error {
	if CanTransitionTo(from, to) {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeInvalidState, "Cannot transition from %s to %s", from, to).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": AllowedTransitions(from),
		})
}

func sellerOnly(actor identity.Actor, order *models.Order) error {
	if actor.IsSellerOf(order.SellerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can perform this action")
}

func sellerOrAdmin(actor identity.Actor, order *models.Order) error {
	if actor.IsAdmin() {
		return nil
	}
	return sellerOnly(actor, order)
}

func buyerOrSeller(actor identity.Actor, order *models.Order) error {
	if actor.IsBuyerOf(order.BuyerID) || actor.IsSellerOf(order.SellerID) || actor.IsAdmin() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this order")
}

func participant(actor identity.Actor, order *models.Order) error {
	return buyerOrSeller(actor, order)
}

// cancelAuthorization lets the buyer cancel only before confirmation, the
// seller up to in_progress.
func cancelAuthorization(actor identity.Actor, order *models.Order) error {
	switch {
	case actor.IsSellerOf(order.SellerID):
		if !containsStatus(sellerCancellable, order.Status) {
			return checkTransition(order.Status, enums.OrderStatusCancelled)
		}
		return nil
	case actor.IsBuyerOf(order.BuyerID):
		if !containsStatus(buyerCancellable, order.Status) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "buyer cannot cancel an order in %s", order.Status)
		}
		return nil
	case actor.IsAdmin():
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this order")
}

func cancelRole(actor identity.Actor) enums.ActorRole {
	if actor.Role == "" {
		return enums.ActorSystem
	}
	return actor.Role
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
