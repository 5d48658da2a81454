package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/api/validators"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/payouts"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
)

type registerBankAccountRequest struct {
	AccountHolder string `json:"account_holder" validate:"required,max=200"`
	BankName      string `json:"bank_name" validate:"required,max=200"`
	IBAN          string `json:"iban" validate:"required,min=8,max=64"`
	Currency      string `json:"currency" validate:"required,len=3"`
	MakeDefault   bool   `json:"make_default"`
}

type verifyBankAccountRequest struct {
	Approve bool `json:"approve"`
}

type createPayoutRequest struct {
	BankAccountID string     `json:"bank_account_id" validate:"omitempty,uuid"`
	PeriodStart   *time.Time `json:"period_start"`
	PeriodEnd     *time.Time `json:"period_end"`
}

type settlePayoutRequest struct {
	BankReference string `json:"bank_reference" validate:"required,max=120"`
}

type holdPayoutRequest struct {
	Reason    string     `json:"reason" validate:"required,max=2000"`
	HoldUntil *time.Time `json:"hold_until"`
}

// RegisterBankAccount adds a payout destination pending verification.
func RegisterBankAccount(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return sellerHandler(svc, logg, func(r *http.Request, actor identity.Actor, sellerID uuid.UUID) (*models.BankAccount, error) {
		var req registerBankAccountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			return nil, invalidField(err, "currency")
		}
		return svc.RegisterBankAccount(r.Context(), payouts.RegisterBankAccountInput{
			Actor:         actor,
			SellerID:      sellerID,
			AccountHolder: validators.SanitizeString(req.AccountHolder, 200),
			BankName:      validators.SanitizeString(req.BankName, 200),
			IBAN:          req.IBAN,
			Currency:      currency,
			MakeDefault:   req.MakeDefault,
		})
	}, http.StatusCreated)
}

func ListBankAccounts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return sellerHandler(svc, logg, func(r *http.Request, actor identity.Actor, sellerID uuid.UUID) ([]models.BankAccount, error) {
		return svc.ListBankAccounts(r.Context(), actor, sellerID)
	}, http.StatusOK)
}

// CreatePayout aggregates the seller's eligible invoices into one payout.
func CreatePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return sellerHandler(svc, logg, func(r *http.Request, actor identity.Actor, sellerID uuid.UUID) (*models.Payout, error) {
		var req createPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		accountID, err := validators.ParseOptionalUUID("bank_account_id", req.BankAccountID)
		if err != nil {
			return nil, err
		}
		if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.Before(*req.PeriodStart) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "period_end precedes period_start").
				WithDetails(map[string]any{"field": "period_end"})
		}
		return svc.CreatePayout(r.Context(), payouts.CreatePayoutInput{
			Actor:         actor,
			SellerID:      sellerID,
			BankAccountID: accountID,
			PeriodStart:   req.PeriodStart,
			PeriodEnd:     req.PeriodEnd,
		})
	}, http.StatusCreated)
}

func ListPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return sellerHandler(svc, logg, func(r *http.Request, actor identity.Actor, sellerID uuid.UUID) ([]models.Payout, error) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			return nil, err
		}
		return svc.ListForSeller(r.Context(), actor, sellerID, limit)
	}, http.StatusOK)
}

func GetPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return payoutHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payout, error) {
		return svc.Get(r.Context(), actor, id)
	})
}

// VerifyBankAccount approves or rejects a registered account.
func VerifyBankAccount(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return func(w http.ResponseWriter, r *http.Request) { unavailable(w, r, logg, "payouts") }
	}
	return pathHandler(logg, "bankAccountId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.BankAccount, error) {
		var req verifyBankAccountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.VerifyBankAccount(r.Context(), payouts.VerifyBankAccountInput{Actor: actor, BankAccountID: id, Approve: req.Approve})
	})
}

func ApprovePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return payoutHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payout, error) {
		return svc.Approve(r.Context(), payouts.ActionInput{PayoutID: id, Actor: actor})
	})
}

// SettlePayout records the bank transfer reference of a processing payout.
func SettlePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return payoutHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payout, error) {
		var req settlePayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Settle(r.Context(), payouts.SettleInput{PayoutID: id, Actor: actor, BankReference: req.BankReference})
	})
}

func FailPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return payoutHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payout, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Fail(r.Context(), payouts.FailInput{PayoutID: id, Actor: actor, Reason: validators.SanitizeString(req.Reason, 2000)})
	})
}

func HoldPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return payoutHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payout, error) {
		var req holdPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Hold(r.Context(), payouts.HoldInput{
			PayoutID:  id,
			Actor:     actor,
			Reason:    validators.SanitizeString(req.Reason, 2000),
			HoldUntil: req.HoldUntil,
		})
	})
}

func ReleasePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return payoutHandler(svc, logg, func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payout, error) {
		return svc.Release(r.Context(), payouts.ActionInput{PayoutID: id, Actor: actor})
	})
}

func payoutHandler(svc payouts.Service, logg *logger.Logger, call func(*http.Request, identity.Actor, uuid.UUID) (*models.Payout, error)) http.HandlerFunc {
	if svc == nil {
		return func(w http.ResponseWriter, r *http.Request) { unavailable(w, r, logg, "payouts") }
	}
	return pathHandler(logg, "payoutId", call)
}

func sellerHandler[T any](svc payouts.Service, logg *logger.Logger, call func(*http.Request, identity.Actor, uuid.UUID) (T, error), status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payouts")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		sellerID, err := validators.ParseUUIDParam(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := call(r, actor, sellerID)
		responses.Write(r.Context(), logg, w, status, data, err)
	}
}
