// Package payouts aggregates a seller's paid invoices into settlements to
// their verified bank account.
package payouts

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
	"github.com/angelmondragon/marketsettle-backend/internal/invoices"
	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/db"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/money"
	"github.com/angelmondragon/marketsettle-backend/pkg/outbox"
	"github.com/angelmondragon/marketsettle-backend/pkg/security"
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

type accountSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Policy holds the payout hold period and platform fee.
type Policy struct {
	HoldPeriod time.Duration
	FeeRate    decimal.Decimal
}

func PolicyFromConfig(cfg config.MarketplaceConfig) Policy {
	return Policy{HoldPeriod: cfg.PayoutHold(), FeeRate: cfg.FeeRate()}
}

// Service is the payout engine, including seller bank accounts.
type Service interface {
	RegisterBankAccount(ctx context.Context, input RegisterBankAccountInput) (*models.BankAccount, error)
	VerifyBankAccount(ctx context.Context, input VerifyBankAccountInput) (*models.BankAccount, error)
	ListBankAccounts(ctx context.Context, actor identity.Actor, sellerID uuid.UUID) ([]models.BankAccount, error)
	CreatePayout(ctx context.Context, input CreatePayoutInput) (*models.Payout, error)
	Approve(ctx context.Context, input ActionInput) (*models.Payout, error)
	Settle(ctx context.Context, input SettleInput) (*models.Payout, error)
	Fail(ctx context.Context, input FailInput) (*models.Payout, error)
	Hold(ctx context.Context, input HoldInput) (*models.Payout, error)
	Release(ctx context.Context, input ActionInput) (*models.Payout, error)
	ReleaseDue(ctx context.Context, limit int) (int, error)
	Get(ctx context.Context, actor identity.Actor, payoutID uuid.UUID) (*models.Payout, error)
	ListForSeller(ctx context.Context, actor identity.Actor, sellerID uuid.UUID, limit int) ([]models.Payout, error)
}

type ServiceParams struct {
	Repo                Repository
	BankAccounts        BankAccountRepository
	Invoices            invoices.Repository
	Sealer              accountSealer
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
	accounts      BankAccountRepository
	invoices      invoices.Repository
	sealer        accountSealer
	tx            txRunner
	outbox        outboxWriter
	audit         auditRecorder
	policy        Policy
	logg          *logger.Logger
	retryAttempts int
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil || params.BankAccounts == nil || params.Invoices == nil {
		return nil, fmt.Errorf("payout, bank account and invoice repositories required")
	}
	if params.Sealer == nil {
		return nil, fmt.Errorf("bank account sealer required")
	}
	if params.Tx == nil || params.Outbox == nil || params.Audit == nil {
		return nil, fmt.Errorf("transaction runner, outbox and audit required")
	}
	if params.Policy.HoldPeriod < 0 || params.Policy.FeeRate.IsNegative() {
		return nil, fmt.Errorf("payout policy cannot be negative")
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
		accounts:      params.BankAccounts,
		invoices:      params.Invoices,
		sealer:        params.Sealer,
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		policy:        params.Policy,
		logg:          params.Logger,
		retryAttempts: attempts,
		now:           now,
	}, nil
}

// CreatePayout claims every eligible invoice for the seller. An invoice is
// eligible once paid and older than the hold period.
func (s *service) CreatePayout(ctx context.Context, input CreatePayoutInput) (*models.Payout, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if !operator(input.Actor) && !input.Actor.IsSellerOf(input.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller cannot create payouts for this seller")
	}
	account, err := s.payoutAccount(ctx, input.SellerID, input.BankAccountID)
	if err != nil {
		return nil, err
	}
	iban, err := s.sealer.Open(account.IBANSealed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open bank account number")
	}

	now := s.now().UTC()
	cutoff := now.Add(-s.policy.HoldPeriod)
	if input.PeriodEnd != nil && input.PeriodEnd.Before(cutoff) {
		cutoff = input.PeriodEnd.UTC()
	}
	eligible, err := s.eligibleInvoices(ctx, s.invoices, input.SellerID, account.Currency, input.PeriodStart, cutoff)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNoEligibleAmount, "no paid invoices are past the hold period")
	}

	var created *models.Payout
	err = s.tx.WithTxRetry(ctx, s.retryAttempts, func(tx *gorm.DB) error {
		invoiceRepo := s.invoices.WithTx(tx)
		rows, err := s.eligibleInvoices(ctx, invoiceRepo, input.SellerID, account.Currency, input.PeriodStart, cutoff)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return pkgerrors.New(pkgerrors.CodeNoEligibleAmount, "no paid invoices are past the hold period")
		}
		number, err := sequence.Next(tx, sequence.PrefixPayout, now)
		if err != nil {
			return err
		}
		payout := buildPayout(number, account, iban, rows, s.policy.FeeRate, input.PeriodStart, cutoff)
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return err
		}
		claimed, err := invoiceRepo.Claim(ctx, invoiceIDs(rows), payout.ID)
		if err != nil {
			return err
		}
		if claimed != int64(len(rows)) {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "invoices were claimed by another payout")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregatePayout,
			EntityID:   payout.ID,
			Action:     "create",
			Actor:      input.Actor,
			New:        string(payout.Status),
			Metadata: map[string]any{
				"invoice_count": len(rows),
				"gross_amount":  payout.GrossAmount.StringFixed(2),
				"fee_amount":    payout.FeeAmount.StringFixed(2),
				"net_amount":    payout.NetAmount.StringFixed(2),
			},
		}); err != nil {
			return err
		}
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, s.event(enums.EventPayoutCreated, payout, "", input.Actor, now, "")); err != nil {
			return err
		}
		created = payout
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "create payout")
	}
	logCtx := s.logg.WithAggregate(ctx, "payout", created.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "net_amount", created.NetAmount.StringFixed(2)), "payout created")
	return created, nil
}

func (s *service) Approve(ctx context.Context, input ActionInput) (*models.Payout, error) {
	return s.apply(ctx, input.PayoutID, input.Actor, transition{
		action: "approve",
		target: enums.PayoutStatusProcessing,
		from:   []enums.PayoutStatus{enums.PayoutStatusPending},
		updates: func(now time.Time) map[string]any {
			return map[string]any{"approved_at": now}
		},
		eventType: enums.EventPayoutApproved,
	})
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*models.Payout, error) {
	reference := strings.TrimSpace(input.BankReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank reference is required")
	}
	return s.apply(ctx, input.PayoutID, input.Actor, transition{
		action:   "settle",
		target:   enums.PayoutStatusSettled,
		metadata: map[string]any{"bank_reference": reference},
		updates: func(now time.Time) map[string]any {
			return map[string]any{"bank_reference": reference, "settled_at": now}
		},
		eventType: enums.EventPayoutSettled,
		notify:    true,
	})
}

// Fail marks the payout failed and returns its invoices to the eligible pool.
func (s *service) Fail(ctx context.Context, input FailInput) (*models.Payout, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a failure reason is required")
	}
	return s.apply(ctx, input.PayoutID, input.Actor, transition{
		action: "fail",
		target: enums.PayoutStatusFailed,
		note:   reason,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"failure_reason": reason, "failed_at": now}
		},
		after: func(ctx context.Context, tx *gorm.DB, payout *models.Payout) error {
			return s.invoices.WithTx(tx).Release(ctx, payout.ID)
		},
		eventType: enums.EventPayoutFailed,
		notify:    true,
	})
}

func (s *service) Hold(ctx context.Context, input HoldInput) (*models.Payout, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a hold reason is required")
	}
	var holdUntil *time.Time
	if input.HoldUntil != nil {
		until := input.HoldUntil.UTC()
		if !until.After(s.now().UTC()) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold release date must be in the future")
		}
		holdUntil = &until
	}
	metadata := map[string]any{}
	if holdUntil != nil {
		metadata["hold_until"] = holdUntil.Format(time.RFC3339)
	}
	return s.apply(ctx, input.PayoutID, input.Actor, transition{
		action:   "hold",
		target:   enums.PayoutStatusOnHold,
		note:     reason,
		metadata: metadata,
		updates: func(now time.Time) map[string]any {
			return map[string]any{"hold_reason": reason, "hold_until": holdUntil, "held_at": now}
		},
		eventType: enums.EventPayoutOnHold,
	})
}

// Release resumes a held payout.
func (s *service) Release(ctx context.Context, input ActionInput) (*models.Payout, error) {
	return s.apply(ctx, input.PayoutID, input.Actor, transition{
		action: "release",
		target: enums.PayoutStatusProcessing,
		from:   []enums.PayoutStatus{enums.PayoutStatusOnHold},
		updates: func(now time.Time) map[string]any {
			return map[string]any{"hold_until": nil}
		},
		eventType: enums.EventPayoutReleased,
	})
}

// ReleaseDue releases held payouts whose release date has passed.
func (s *service) ReleaseDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDueReleases(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list held payouts")
	}
	released := 0
	var errs error
	for _, payout := range due {
		if _, err := s.Release(ctx, ActionInput{PayoutID: payout.ID, Actor: identity.System()}); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) || pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("release payout %s: %w", payout.ID, err))
			continue
		}
		released++
	}
	return released, errs
}

func (s *service) Get(ctx context.Context, actor identity.Actor, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !operator(actor) && !actor.IsSellerOf(payout.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller cannot view this payout")
	}
	return payout, nil
}

func (s *service) ListForSeller(ctx context.Context, actor identity.Actor, sellerID uuid.UUID, limit int) ([]models.Payout, error) {
	if !operator(actor) && !actor.IsSellerOf(sellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller cannot view payouts for this seller")
	}
	rows, err := s.repo.ListForSeller(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return rows, nil
}

type transition struct {
	action string
	target enums.PayoutStatus
	// from narrows the transition table for this operation.
	from      []enums.PayoutStatus
	updates   func(now time.Time) map[string]any
	after     func(ctx context.Context, tx *gorm.DB, payout *models.Payout) error
	eventType enums.OutboxEventType
	note      string
	metadata  map[string]any
	notify    bool
}

// apply runs an operator-only payout transition.
func (s *service) apply(ctx context.Context, payoutID uuid.UUID, actor identity.Actor, t transition) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	if !operator(actor) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only administrators can change payout status")
	}
	payout, err := s.load(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := t.check(payout.Status); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, payoutID)
		if err != nil {
			return err
		}
		if locked.Status != payout.Status {
			return pkgerrors.Newf(pkgerrors.CodeConcurrentModification, "payout moved to %s while processing", locked.Status)
		}
		now := s.now().UTC()
		updates := map[string]any{}
		if t.updates != nil {
			updates = t.updates(now)
		}
		updates["status"] = t.target
		if err := repo.UpdateIfStatus(ctx, payoutID, locked.Status, updates); err != nil {
			if errors.Is(err, db.ErrStaleWrite) {
				return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payout was modified concurrently")
			}
			return err
		}
		if t.after != nil {
			if err := t.after(ctx, tx, locked); err != nil {
				return err
			}
		}

		metadata := map[string]any{}
		for k, v := range t.metadata {
			metadata[k] = v
		}
		if t.note != "" {
			metadata["reason"] = t.note
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AggregatePayout,
			EntityID:   payoutID,
			Action:     t.action,
			Actor:      actor,
			Previous:   string(locked.Status),
			New:        string(t.target),
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		current, err := repo.FindByID(ctx, payoutID)
		if err != nil {
			return err
		}
		ev := s.event(t.eventType, current, locked.Status, actor, now, t.note)
		if _, err := s.outbox.EnqueueInTransaction(ctx, tx, ev); err != nil {
			return err
		}
		if t.notify {
			email := ev
			email.Destination = enums.DestinationEmail
			s.outbox.EnqueueBestEffort(ctx, tx, email)
		}
		payout = current
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, t.action)
	}
	logCtx := s.logg.WithAggregate(ctx, "payout", payoutID.String())
	s.logg.Info(s.logg.WithField(logCtx, "status", t.target), "payout "+t.action)
	return payout, nil
}

func (t transition) check(from enums.PayoutStatus) error {
	allowed := CanTransitionTo(from, t.target)
	if allowed && len(t.from) > 0 {
		allowed = false
		for _, status := range t.from {
			if status == from {
				allowed = true
				break
			}
		}
	}
	if allowed {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeInvalidState, "Cannot transition from %s to %s", from, t.target).
		WithDetails(map[string]any{
			"from":    from,
			"to":      t.target,
			"allowed": AllowedTransitions(from),
		})
}

func (s *service) payoutAccount(ctx context.Context, sellerID uuid.UUID, accountID *uuid.UUID) (*models.BankAccount, error) {
	if accountID == nil {
		account, err := s.accounts.FindDefaultApproved(ctx, sellerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeBankAccountNotApproved, "seller has no approved bank account")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
		}
		return account, nil
	}
	account, err := s.loadAccount(ctx, *accountID)
	if err != nil {
		return nil, err
	}
	if account.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account belongs to another seller")
	}
	if account.VerificationStatus != enums.BankAccountApproved {
		return nil, pkgerrors.New(pkgerrors.CodeBankAccountNotApproved, "bank account is not approved")
	}
	return account, nil
}

func (s *service) eligibleInvoices(ctx context.Context, repo invoices.Repository, sellerID uuid.UUID, currency enums.Currency, from *time.Time, cutoff time.Time) ([]models.Invoice, error) {
	rows, err := repo.ListEligible(ctx, []uuid.UUID{sellerID}, cutoff)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible invoices")
	}
	out := rows[:0]
	for _, inv := range rows {
		if inv.Currency != currency || inv.PaidAt == nil {
			continue
		}
		if from != nil && inv.PaidAt.Before(*from) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func buildPayout(number string, account *models.BankAccount, iban string, rows []models.Invoice, feeRate decimal.Decimal, from *time.Time, cutoff time.Time) *models.Payout {
	payoutID := uuid.New()
	items := make([]models.PayoutItem, 0, len(rows))
	amounts := make([]decimal.Decimal, 0, len(rows))
	start := *rows[0].PaidAt
	for _, inv := range rows {
		items = append(items, models.PayoutItem{
			ID:        uuid.New(),
			PayoutID:  payoutID,
			InvoiceID: inv.ID,
			OrderID:   inv.OrderID,
			Amount:    inv.Amount,
		})
		amounts = append(amounts, inv.Amount)
		if inv.PaidAt.Before(start) {
			start = *inv.PaidAt
		}
	}
	if from != nil {
		start = from.UTC()
	}
	gross := money.Round2(money.Sum(amounts...))
	fee := money.Fee(gross, feeRate)
	bankName := ""
	if account.BankName != nil {
		bankName = *account.BankName
	}
	return &models.Payout{
		ID:            payoutID,
		PayoutNumber:  number,
		SellerID:      account.SellerID,
		BankAccountID: account.ID,
		PeriodStart:   start,
		PeriodEnd:     cutoff,
		GrossAmount:   gross,
		FeeAmount:     fee,
		NetAmount:     gross.Sub(fee),
		Currency:      account.Currency,
		Status:        enums.PayoutStatusPending,
		BankSnapshot: types.BankSnapshot{
			BankAccountID: account.ID.String(),
			AccountHolder: account.AccountHolder,
			BankName:      bankName,
			MaskedIBAN:    security.MaskIBAN(iban),
			Currency:      string(account.Currency),
		},
		Items: items,
	}
}

func invoiceIDs(rows []models.Invoice) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, inv := range rows {
		ids = append(ids, inv.ID)
	}
	return ids
}

func (s *service) load(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePayoutNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) event(eventType enums.OutboxEventType, payout *models.Payout, previous enums.PayoutStatus, actor identity.Actor, now time.Time, reason string) outbox.Event {
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Destination:   enums.DestinationNotification,
		Actor:         actor.EventRef(),
		OccurredAt:    now,
		Data: PayoutEvent{
			PayoutID:       payout.ID,
			PayoutNumber:   payout.PayoutNumber,
			SellerID:       payout.SellerID,
			Status:         payout.Status,
			PreviousStatus: previous,
			GrossAmount:    payout.GrossAmount,
			FeeAmount:      payout.FeeAmount,
			NetAmount:      payout.NetAmount,
			Currency:       payout.Currency,
			InvoiceCount:   len(payout.Items),
			BankReference:  payout.BankReference,
			Reason:         reason,
			OccurredAt:     now,
		},
	}
}

func operator(actor identity.Actor) bool {
	return actor.IsAdmin() || actor.IsSystem()
}

func asServiceError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
