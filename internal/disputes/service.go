// Package disputes runs buyer/seller negotiation after delivery.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle-backend/internal/audit"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/sequence"
)

const activeDisputeIndex = "uq_disputes_active_order"

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

// Policy holds the dispute time limits.
type Policy struct {
	WindowDays       int
	ResponseWindow   time.Duration
	ResolutionWindow time.Duration
	ProposalExpiry   time.Duration
}

func PolicyFromConfig(cfg config.MarketplaceConfig) Policy {
	return Policy{
		WindowDays:       cfg.DisputeWindowDays,
		ResponseWindow:   cfg.DisputeResponseWindow(),
		ResolutionWindow: cfg.DisputeResolutionWindow(),
		ProposalExpiry:   cfg.ProposalExpiry(),
	}
}

func (p Policy) withDefaults() Policy {
	if p.WindowDays <= 0 {
		p.WindowDays = 14
	}
	if p.ResponseWindow <= 0 {
		p.ResponseWindow = 72 * time.Hour
	}
	if p.ResolutionWindow <= 0 {
		p.ResolutionWindow = 14 * 24 * time.Hour
	}
	if p.ProposalExpiry <= 0 {
		p.ProposalExpiry = 72 * time.Hour
	}
	return p
}

// Service is the dispute resolution engine.
type Service interface {
	Create(ctx context.Context, input CreateDisputeInput) (*models.Dispute, error)
	MarkUnderReview(ctx context.Context, input ActionInput) (*models.Dispute, error)
	SellerRespond(ctx context.Context, input SellerRespondInput) (*models.Dispute, error)
	BuyerAccept(ctx context.Context, input ActionInput) (*models.Dispute, error)
	BuyerReject(ctx context.Context, input ReasonInput) (*models.Dispute, error)
	Escalate(ctx context.Context, input ReasonInput) (*models.Dispute, error)
	Close(ctx context.Context, input ActionInput) (*models.Dispute, error)
	AdminDecide(ctx context.Context, input AdminDecideInput) (*models.Dispute, error)
	EscalateOverdue(ctx context.Context, limit int) (int, error)
	Get(ctx context.Context, actor identity.Actor, disputeID uuid.UUID) (*models.Dispute, error)
	ListForOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) ([]models.Dispute, error)
	History(ctx context.Context, actor identity.Actor, disputeID uuid.UUID) ([]models.AuditLog, error)
}

type ServiceParams struct {
	Repo                Repository
	Orders              orders.Repository
	Tx                  txRunner
	Outbox              outboxWriter
	Audit               auditRecorder
	Policy              Policy
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
	policy        Policy
	logg          *logger.Logger
	retryAttempts int
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil || params.Orders == nil {
		return nil, fmt.Errorf("dispute and order repositories required")
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
		policy:        params.Policy.withDefaults(),
		logg:          params.Logger,
		retryAttempts: attempts,
		now:           now,
	}, nil
}

// Create opens a dispute on a delivered order inside the dispute window.
func (s *service) Create(ctx context.Context, input CreateDisputeInput) (*models.Dispute, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !input.Actor.IsBuyerOf(order.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the buyer can open a dispute")
	}
	if order.Status != enums.OrderStatusDelivered || order.DeliveredAt == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidState, "disputes can only be opened on delivered orders, order is %s", order.Status)
	}
	now := s.now().UTC()
	if elapsed := DaysBetween(*order.DeliveredAt, now); elapsed > s.policy.WindowDays {
		return nil, pkgerrors.New(pkgerrors.CodeDisputeWindowExpired, "Dispute window has expired").
			WithDetails(map[string]any{"days_since_delivery": elapsed, "window_days": s.policy.WindowDays})
	}
	if input.RequestedAmount != nil && input.RequestedAmount.GreaterThan(order.TotalPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "requested amount exceeds the order total")
	}
	if err := s.ensureNoActive(ctx, s.repo, order.ID); err != nil {
		return nil, err
	}

	var created *models.Dispute
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureNoActive(ctx, repo, order.ID); err != nil {
			return err
		}
		number, err := sequence.Next(tx, sequence.PrefixDispute, now)
		if err != nil {
			return err
		}
		dispute := &models.Dispute{
			ID:                  uuid.New(),
			DisputeNumber:       number,
			OrderID:             order.ID,
			BuyerID:             order.BuyerID,
			SellerID:            order.SellerID,
			Reason:              input.Reason,
			Description:         strings.TrimSpace(input.Description),
			RequestedResolution: input.RequestedResolution,
			Evidence:            input.Evidence,
			Status:              enums.DisputeStatusOpen,
			ResponseDeadline:    now.Add(s.policy.ResponseWindow),
			ResolutionDeadline:  now.Add(s.policy.ResolutionWindow),
		}
		if input.RequestedAmount != nil {
			dispute.RequestedAmount = decimal.NewNullDecimal(*input.RequestedAmount)
		}
		if err := repo.Create(ctx, dispute); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateDispute,
			EntityID:   dispute.ID,
			Action:     "create",
			Actor:      input.Actor,
			New:        string(dispute.Status),
			Metadata: map[string]any{
				"order_id": order.ID.String(),
				"reason":   string(input.Reason),
			},
		}); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventDisputeCreated, dispute, "", input.Actor, now, "")); err != nil {
			return err
		}
		created = dispute
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, activeDisputeIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeActiveDisputeExists, "order already has an active dispute")
		}
		return nil, asServiceError(err, "create dispute")
	}
	s.logg.Info(s.logg.WithAggregate(ctx, "dispute", created.ID.String()), "dispute opened")
	return created, nil
}

func (s *service) MarkUnderReview(ctx context.Context, input ActionInput) (*models.Dispute, error) {
	return s.apply(ctx, input.DisputeID, input.Actor, transition{
		action:    "mark_under_review",
		target:    enums.DisputeStatusUnderReview,
		authorize: sellerOrAdmin,
		note:      input.Notes,
	})
}

// SellerRespond records the seller's answer. Accepting responsibility
// resolves the dispute in the same call.
func (s *service) SellerRespond(ctx context.Context, input SellerRespondInput) (*models.Dispute, error) {
	if _, err := enums.ParseSellerResponseType(string(input.ResponseType)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid response type")
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "response message is required")
	}
	t := transition{
		action:    "seller_respond",
		target:    enums.DisputeStatusSellerResponded,
		authorize: sellerOnly,
		note:      message,
		metadata:  map[string]any{"response_type": string(input.ResponseType)},
	}
	responseType := input.ResponseType
	switch responseType {
	case enums.SellerResponseAcceptResponsibility:
		t.target = enums.DisputeStatusResolved
		t.updates = func(d *models.Dispute, now time.Time) map[string]any {
			return map[string]any{
				"seller_response_type": responseType,
				"seller_response":      message,
				"seller_responded_at":  now,
				"resolution":           string(d.RequestedResolution),
				"resolved_by":          enums.ResolvedBySellerAccepted,
				"resolved_at":          now,
			}
		}
	case enums.SellerResponseProposeResolution:
		if input.ProposedResolution == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "a proposed resolution is required")
		}
		if _, err := enums.ParseDisputeResolutionType(string(*input.ProposedResolution)); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid proposed resolution")
		}
		if input.ProposedAmount != nil && !input.ProposedAmount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "proposed amount must be greater than zero")
		}
		proposed := *input.ProposedResolution
		t.metadata["proposed_resolution"] = string(proposed)
		t.updates = func(d *models.Dispute, now time.Time) map[string]any {
			updates := map[string]any{
				"seller_response_type": responseType,
				"seller_response":      message,
				"seller_responded_at":  now,
				"proposed_resolution":  proposed,
				"proposal_expires_at":  now.Add(s.policy.ProposalExpiry),
			}
			if input.ProposedAmount != nil {
				updates["proposed_amount"] = decimal.NewNullDecimal(*input.ProposedAmount)
			}
			return updates
		}
	default:
		t.updates = func(d *models.Dispute, now time.Time) map[string]any {
			return map[string]any{
				"seller_response_type": responseType,
				"seller_response":      message,
				"seller_responded_at":  now,
			}
		}
	}
	return s.apply(ctx, input.DisputeID, input.Actor, t)
}

func (s *service) BuyerAccept(ctx context.Context, input ActionInput) (*models.Dispute, error) {
	return s.apply(ctx, input.DisputeID, input.Actor, transition{
		action:    "buyer_accept",
		target:    enums.DisputeStatusResolved,
		authorize: buyerOnly,
		note:      input.Notes,
		validate: func(d *models.Dispute, now time.Time) error {
			if err := requireProposal(d); err != nil {
				return err
			}
			if d.ProposalExpiresAt != nil && now.After(*d.ProposalExpiresAt) {
				return pkgerrors.New(pkgerrors.CodeProposalExpired, "the seller's proposal has expired")
			}
			return nil
		},
		updates: func(d *models.Dispute, now time.Time) map[string]any {
			return map[string]any{
				"resolution":  string(*d.ProposedResolution),
				"resolved_by": enums.ResolvedByBuyerAccepted,
				"resolved_at": now,
			}
		},
	})
}

// BuyerReject turns down the seller's proposal and escalates the dispute.
func (s *service) BuyerReject(ctx context.Context, input ReasonInput) (*models.Dispute, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}
	return s.apply(ctx, input.DisputeID, input.Actor, transition{
		action:    "buyer_reject",
		target:    enums.DisputeStatusEscalated,
		authorize: buyerOnly,
		note:      reason,
		validate: func(d *models.Dispute, now time.Time) error {
			return requireProposal(d)
		},
		updates: func(d *models.Dispute, now time.Time) map[string]any {
			return map[string]any{
				"buyer_reject_reason": reason,
				"is_escalated":        true,
				"escalation_reason":   reason,
				"escalated_at":        now,
			}
		},
	})
}

// Escalate hands the dispute to an administrator. Parties escalate after the
// seller responded; the system and admins may escalate earlier.
func (s *service) Escalate(ctx context.Context, input ReasonInput) (*models.Dispute, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "an escalation reason is required")
	}
	actor := input.Actor
	return s.apply(ctx, input.DisputeID, actor, transition{
		action:    "escalate",
		target:    enums.DisputeStatusEscalated,
		authorize: partyOrOperator,
		note:      reason,
		validate: func(d *models.Dispute, now time.Time) error {
			if d.Status == enums.DisputeStatusSellerResponded || actor.IsSystem() || actor.IsAdmin() {
				return nil
			}
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "dispute can only be escalated after the seller responds, dispute is %s", d.Status)
		},
		updates: func(d *models.Dispute, now time.Time) map[string]any {
			return map[string]any{
				"is_escalated":      true,
				"escalation_reason": reason,
				"escalated_at":      now,
			}
		},
	})
}

func (s *service) Close(ctx context.Context, input ActionInput) (*models.Dispute, error) {
	return s.apply(ctx, input.DisputeID, input.Actor, transition{
		action:    "close",
		target:    enums.DisputeStatusClosed,
		authorize: partyOrOperator,
		note:      input.Notes,
		updates: func(d *models.Dispute, now time.Time) map[string]any {
			return map[string]any{"closed_at": now}
		},
	})
}

// AdminDecide settles a dispute an administrator has taken over.
func (s *service) AdminDecide(ctx context.Context, input AdminDecideInput) (*models.Dispute, error) {
	if input.Outcome != enums.DisputeStatusResolved && input.Outcome != enums.DisputeStatusRejected {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "outcome must be resolved or rejected, got %q", input.Outcome)
	}
	resolution := strings.TrimSpace(input.Resolution)
	if resolution == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a resolution note is required")
	}
	outcome := input.Outcome
	return s.apply(ctx, input.DisputeID, input.Actor, transition{
		action: "admin_decide",
		target: outcome,
		authorize: func(actor identity.Actor, d *models.Dispute) error {
			if actor.IsAdmin() {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "only administrators can decide disputes")
		},
		note: resolution,
		updates: func(d *models.Dispute, now time.Time) map[string]any {
			updates := map[string]any{
				"resolution":  resolution,
				"resolved_at": now,
			}
			if outcome == enums.DisputeStatusResolved {
				updates["resolved_by"] = enums.ResolvedByAdmin
			}
			return updates
		},
	})
}

// EscalateOverdue escalates disputes the seller left unanswered past the
// response deadline and reports how many moved.
func (s *service) EscalateOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.repo.ListOverdueResponses(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue disputes")
	}
	escalated := 0
	var errs error
	for _, d := range overdue {
		_, err := s.Escalate(ctx, ReasonInput{
			DisputeID: d.ID,
			Actor:     identity.System(),
			Reason:    "seller response deadline passed",
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) || pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("escalate dispute %s: %w", d.ID, err))
			continue
		}
		escalated++
	}
	return escalated, errs
}

func (s *service) Get(ctx context.Context, actor identity.Actor, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := partyOrOperator(actor, dispute); err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *service) ListForOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) ([]models.Dispute, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.IsAdmin() && !actor.IsBuyerOf(order.BuyerID) && !actor.IsSellerOf(order.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this order")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	return rows, nil
}

func (s *service) History(ctx context.Context, actor identity.Actor, disputeID uuid.UUID) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, actor, disputeID); err != nil {
		return nil, err
	}
	logs, err := s.audit.History(ctx, enums.AggregateDispute, disputeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute history")
	}
	return logs, nil
}

type transition struct {
	action    string
	target    enums.DisputeStatus
	authorize func(actor identity.Actor, d *models.Dispute) error
	validate  func(d *models.Dispute, now time.Time) error
	updates   func(d *models.Dispute, now time.Time) map[string]any
	note      string
	metadata  map[string]any
}

func (s *service) apply(ctx context.Context, disputeID uuid.UUID, actor identity.Actor, t transition) (*models.Dispute, error) {
	if disputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	dispute, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := t.authorize(actor, dispute); err != nil {
		return nil, err
	}
	if err := checkTransition(dispute.Status, t.target); err != nil {
		return nil, err
	}
	if t.validate != nil {
		if err := t.validate(dispute, s.now().UTC()); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, disputeID)
		if err != nil {
			return err
		}
		if locked.Status != dispute.Status {
			return pkgerrors.Newf(pkgerrors.CodeConcurrentModification, "dispute moved to %s while processing", locked.Status)
		}
		now := s.now().UTC()
		if t.validate != nil {
			if err := t.validate(locked, now); err != nil {
				return err
			}
		}
		updates := map[string]any{}
		if t.updates != nil {
			for k, v := range t.updates(locked, now) {
				updates[k] = v
			}
		}
		updates["status"] = t.target
		if err := repo.UpdateIfStatus(ctx, disputeID, locked.Status, updates); err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "dispute was modified concurrently")
			}
			return err
		}

		metadata := map[string]any{}
		for k, v := range t.metadata {
			metadata[k] = v
		}
		if t.note != "" {
			metadata["reason"] = t.note
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregateDispute,
			EntityID:   disputeID,
			Action:     t.action,
			Actor:      actor,
			Previous:   string(locked.Status),
			New:        string(t.target),
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		current, err := repo.FindByID(ctx, disputeID)
		if err != nil {
			return err
		}
		ev := s.event(eventFor(t.target), current, locked.Status, actor, now, t.note)
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, ev); err != nil {
			return err
		}
		if t.target == enums.DisputeStatusResolved || t.target == enums.DisputeStatusEscalated {
			email := ev
			email.Destination = enums.DestinationEmail
			s.outbox.EnqueueBestEffort(ctx, tx, email)
		}
		dispute = current
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, t.action)
	}
	logCtx := s.logg.WithAggregate(ctx, "dispute", disputeID.String())
	s.logg.Info(s.logg.WithField(logCtx, "status", t.target), "dispute "+t.action)
	return dispute, nil
}

func (s *service) ensureNoActive(ctx context.Context, repo Repository, orderID uuid.UUID) error {
	_, err := repo.FindActiveByOrder(ctx, orderID)
	switch {
	case err == nil:
		return pkgerrors.New(pkgerrors.CodeActiveDisputeExists, "order already has an active dispute")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active disputes")
	}
}

func (s *service) load(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.repo.FindByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeDisputeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	return dispute, nil
}

func (s *service) event(eventType enums.OutboxEventType, d *models.Dispute, previous enums.DisputeStatus, actor identity.Actor, now time.Time, note string) outbox.Event {
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregateDispute,
		AggregateID:   d.ID,
		Destination:   enums.DestinationNotification,
		Actor:         actor.EventRef(),
		OccurredAt:    now,
		Data: DisputeEvent{
			DisputeID:          d.ID,
			DisputeNumber:      d.DisputeNumber,
			OrderID:            d.OrderID,
			BuyerID:            d.BuyerID,
			SellerID:           d.SellerID,
			Status:             d.Status,
			PreviousStatus:     previous,
			Reason:             d.Reason,
			ProposedResolution: d.ProposedResolution,
			ResolvedBy:         d.ResolvedBy,
			Note:               note,
			OccurredAt:         now,
		},
	}
}

// DaysBetween counts calendar days in UTC from a to b.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

func validateCreate(input CreateDisputeInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, err := enums.ParseDisputeReason(string(input.Reason)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute reason")
	}
	if strings.TrimSpace(input.Description) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if _, err := enums.ParseDisputeResolutionType(string(input.RequestedResolution)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid requested resolution")
	}
	if input.RequestedAmount != nil && !input.RequestedAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "requested amount must be greater than zero")
	}
	if err := input.Evidence.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid evidence")
	}
	return nil
}

func requireProposal(d *models.Dispute) error {
	if d.Status != enums.DisputeStatusSellerResponded {
		return pkgerrors.Newf(pkgerrors.CodeInvalidState, "dispute is %s, expected seller_responded", d.Status)
	}
	if d.SellerResponseType == nil || *d.SellerResponseType != enums.SellerResponseProposeResolution || d.ProposedResolution == nil {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "the seller did not propose a resolution")
	}
	return nil
}

func checkTransition(from, to enums.DisputeStatus) error {
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

func eventFor(status enums.DisputeStatus) enums.OutboxEventType {
	switch status {
	case enums.DisputeStatusUnderReview:
		return enums.EventDisputeUnderReview
	case enums.DisputeStatusSellerResponded:
		return enums.EventDisputeSellerResponded
	case enums.DisputeStatusResolved:
		return enums.EventDisputeResolved
	case enums.DisputeStatusEscalated:
		return enums.EventDisputeEscalated
	case enums.DisputeStatusRejected:
		return enums.EventDisputeRejected
	default:
		return enums.EventDisputeClosed
	}
}

func sellerOnly(actor identity.Actor, d *models.Dispute) error {
	if actor.IsSellerOf(d.SellerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the seller can perform this action")
}

func sellerOrAdmin(actor identity.Actor, d *models.Dispute) error {
	if actor.IsAdmin() {
		return nil
	}
	return sellerOnly(actor, d)
}

func buyerOnly(actor identity.Actor, d *models.Dispute) error {
	if actor.IsBuyerOf(d.BuyerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "only the buyer can perform this action")
}

func partyOrOperator(actor identity.Actor, d *models.Dispute) error {
	if actor.IsAdmin() || actor.IsSystem() || actor.IsBuyerOf(d.BuyerID) || actor.IsSellerOf(d.SellerID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not a party to this dispute")
}

func asServiceError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
