package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/marketsettle-backend/api/responses"
	"github.com/angelmondragon/marketsettle-backend/api/validators"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/pagination"
	"github.com/angelmondragon/marketsettle-backend/pkg/types"
)

type createOrderRequest struct {
	ItemID          string         `json:"item_id" validate:"required,uuid"`
	Quantity        int            `json:"quantity" validate:"required,min=1,max=10000"`
	PaymentMethod   string         `json:"payment_method" validate:"required"`
	ShippingAddress *types.Address `json:"shipping_address"`
	Notes           string         `json:"notes" validate:"max=2000"`
}

type shipOrderRequest struct {
	Carrier        string `json:"carrier" validate:"required,max=100"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
}

type deliverOrderRequest struct {
	CashCollected bool `json:"cash_collected"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type updateOrderStatusRequest struct {
	Status   string         `json:"status" validate:"required"`
	Reason   string         `json:"reason" validate:"max=2000"`
	Metadata map[string]any `json:"metadata"`
}

// CreateOrder places a direct purchase for the calling buyer.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseOptionalUUID("item_id", req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidPaymentMethod, err, "unsupported payment method"))
			return
		}

		order, err := svc.CreateOrder(r.Context(), orders.CreateOrderInput{
			Buyer:           actor,
			ItemID:          *itemID,
			Quantity:        req.Quantity,
			PaymentMethod:   method,
			ShippingAddress: req.ShippingAddress,
			Notes:           validators.SanitizeString(req.Notes, 2000),
		})
		responses.Write(r.Context(), logg, w, http.StatusCreated, order, err)
	}
}

// ListOrders pages through the caller's orders; sellers see orders addressed
// to any of their identities.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := orders.ListFilters{Limit: limit, Cursor: cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		list, err := svc.List(r.Context(), actor, filters)
		responses.Write(r.Context(), logg, w, http.StatusOK, list, err)
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders")
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
		order, err := svc.Get(r.Context(), actor, orderID)
		responses.Write(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

// OrderHistory returns the audit trail of an order.
func OrderHistory(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "orders")
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
		history, err := svc.History(r.Context(), actor, orderID)
		responses.Write(r.Context(), logg, w, http.StatusOK, history, err)
	}
}

func ConfirmOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderAction(svc, logg, func(r *http.Request, in orders.ActionInput) (*models.Order, error) {
		return svc.Confirm(r.Context(), in)
	})
}

func StartOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderAction(svc, logg, func(r *http.Request, in orders.ActionInput) (*models.Order, error) {
		return svc.StartProgress(r.Context(), in)
	})
}

func ShipOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := orderInput(svc, w, r, logg)
		if !ok {
			return
		}
		var req shipOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Ship(r.Context(), orders.ShipInput{
			OrderID:        in.OrderID,
			Actor:          in.Actor,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

func DeliverOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := orderInput(svc, w, r, logg)
		if !ok {
			return
		}
		var req deliverOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.MarkDelivered(r.Context(), orders.DeliverInput{
			OrderID:       in.OrderID,
			Actor:         in.Actor,
			CashCollected: req.CashCollected,
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := orderInput(svc, w, r, logg)
		if !ok {
			return
		}
		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: in.OrderID,
			Actor:   in.Actor,
			Reason:  validators.SanitizeString(req.Reason, 2000),
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

// UpdateOrderStatus drives a generic transition checked against the state table.
func UpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := orderInput(svc, w, r, logg)
		if !ok {
			return
		}
		var req updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}
		order, err := svc.UpdateStatus(r.Context(), orders.UpdateStatusInput{
			OrderID:  in.OrderID,
			Actor:    in.Actor,
			Status:   status,
			Reason:   validators.SanitizeString(req.Reason, 2000),
			Metadata: req.Metadata,
		})
		responses.Write(r.Context(), logg, w, http.StatusOK, order, err)
	}
}

func orderInput(svc orders.Service, w http.ResponseWriter, r *http.Request, logg *logger.Logger) (orders.ActionInput, bool) {
	if svc == nil {
		unavailable(w, r, logg, "orders")
		return orders.ActionInput{}, false
	}
	actor, ok := requireActor(w, r, logg)
	if !ok {
		return orders.ActionInput{}, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return orders.ActionInput{}, false
	}
	return orders.ActionInput{OrderID: orderID, Actor: actor}, true
}

func orderAction(svc orders.Service, logg *logger.Logger, call func(*http.Request, orders.ActionInput) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := orderInput(svc, w, r, logg)
		if !ok {
			return
		}
		var req notesRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in.Notes = validators.SanitizeString(req.Notes, 2000)
		order, err := call(r, in)
		responses.Write(r.Context(), logg, w, http.StatusOK, order, err)
	}
}
