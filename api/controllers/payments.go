package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/api/validators"
	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/invoices"
	"github.com/angelmondragon/marketsettle-backend/internal/payments"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/result"
)

// paymentRequest is shared by order and invoice payments. A blank amount pays
// the outstanding balance.
type paymentRequest struct {
	Amount        string `json:"amount" validate:"max=32"`
	Method        string `json:"method" validate:"max=32"`
	BankReference string `json:"bank_reference" validate:"max=120"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type confirmPaymentResponse struct {
	Payment       *models.Payment          `json:"payment"`
	PaymentStatus enums.OrderPaymentStatus `json:"payment_status"`
}

type parsedPayment struct {
	actor  identity.Actor
	amount *decimal.Decimal
	method enums.PaymentMethod
	ref    string
	notes  string
}

// RecordPayment records a confirmed buyer payment against an order.
func RecordPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments")
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in, ok := decodePayment(w, r, logg)
		if !ok {
			return
		}
		payment, err := svc.RecordPayment(r.Context(), payments.RecordPaymentInput{
			OrderID:       orderID,
			Actor:         in.actor,
			Amount:        in.amount,
			Method:        in.method,
			BankReference: in.ref,
			Notes:         in.notes,
		})
		responses.Write(r.Context(), logg, w, http.StatusCreated, payment, err)
	}
}

// SubmitInvoicePayment registers a pending payment awaiting seller confirmation.
func SubmitInvoicePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments")
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in, ok := decodePayment(w, r, logg)
		if !ok {
			return
		}
		payment, err := svc.SubmitInvoicePayment(r.Context(), payments.SubmitInvoicePaymentInput{
			InvoiceID:     invoiceID,
			Actor:         in.actor,
			Amount:        in.amount,
			Method:        in.method,
			BankReference: in.ref,
			Notes:         in.notes,
		})
		responses.Write(r.Context(), logg, w, http.StatusCreated, payment, err)
	}
}

// ConfirmPayment confirms a pending payment. Replays of an already confirmed
// payment succeed with the ALREADY_CONFIRMED code.
func ConfirmPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.ConfirmPayment(r.Context(), payments.ConfirmPaymentInput{PaymentID: paymentID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body := confirmPaymentResponse{Payment: res.Payment, PaymentStatus: res.PaymentStatus}
		if res.AlreadyConfirmed {
			responses.WriteResult(w, http.StatusOK, result.OKWithCode(body, pkgerrors.CodeAlreadyConfirmed))
			return
		}
		responses.WriteResult(w, http.StatusOK, result.OK(body))
	}
}

func FailPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.FailPayment(r.Context(), payments.FailPaymentInput{
			PaymentID: paymentID,
			Actor:     actor,
			Reason:    validators.SanitizeString(req.Reason, 2000),
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, payment, err)
	}
}

// ConfirmCODPayment records cash collected for a delivered COD order.
func ConfirmCODPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.ConfirmCODPayment(r.Context(), payments.ConfirmCODInput{OrderID: orderID, Actor: actor})
		responses.Write(r.Context(), logg, w, http.StatusCreated, payment, err)
	}
}

// PaymentSummary reports confirmed, pending and outstanding totals of an order.
func PaymentSummary(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "payments")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), actor, orderID)
		responses.Write(r.Context(), logg, w, http.StatusOK, summary, err)
	}
}

func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "paymentId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Payment, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable")
		}
		return svc.Get(r.Context(), actor, id)
	})
}

// GenerateInvoice issues the invoice of a confirmed order. Repeated calls
// return the existing invoice.
func GenerateInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "invoices")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svc.GenerateForOrder(r.Context(), actor, orderID)
		responses.Write(r.Context(), logg, w, http.StatusOK, invoice, err)
	}
}

func GetInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return pathHandler(logg, "invoiceId", func(r *http.Request, actor identity.Actor, id uuid.UUID) (*models.Invoice, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable")
		}
		return svc.Get(r.Context(), actor, id)
	})
}

// ListInvoices lists invoices issued by the calling seller.
func ListInvoices(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "invoices")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForSeller(r.Context(), actor, limit)
		responses.Write(r.Context(), logg, w, http.StatusOK, list, err)
	}
}

func decodePayment(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (parsedPayment, bool) {
	actor, ok := requireActor(w, r, logg)
	if !ok {
		return parsedPayment{}, false
	}
	var req paymentRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return parsedPayment{}, false
	}
	amount, err := validators.ParseAmount("amount", req.Amount)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return parsedPayment{}, false
	}
	var method enums.PaymentMethod
	if raw := strings.TrimSpace(req.Method); raw != "" {
		method, err = enums.ParsePaymentMethod(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidPaymentMethod, err, "unsupported payment method"))
			return parsedPayment{}, false
		}
	}
	return parsedPayment{
		actor:  actor,
		amount: amount,
		method: method,
		ref:    strings.TrimSpace(req.BankReference),
		notes:  validators.SanitizeString(req.Notes, 2000),
	}, true
}

// pathHandler serves endpoints addressed by a single path id.
func getByID[T any](logg *logger.Logger, param string, load func(*http.Request, identity.Actor, uuid.UUID) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := load(r, actor, id)
		responses.Write(r.Context(), logg, w, http.StatusOK, data, err)
	}
}
