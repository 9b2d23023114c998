package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novamart/orderflow/api/middleware"
	"github.com/novamart/orderflow/api/responses"
	"github.com/novamart/orderflow/api/validators"
	orderssvc "github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/pkg/auth"
	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/types"
)

// OrderList returns the caller's order history, newest first.
func OrderList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, nextCursor, err := svc.ListByBuyer(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderResponse, 0, len(records))
		for i := range records {
			items = append(items, newOrderResponse(&records[i]))
		}

		responses.WriteSuccess(w, orderListResponse{
			Orders:     items,
			NextCursor: nextCursor,
		})
	}
}

// OrderGet returns one order, enforcing buyer ownership.
func OrderGet(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderID"), "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetByID(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderStatusUpdate advances fulfillment state. Operator only.
func OrderStatusUpdate(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderID"), "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		next, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.Transition(r.Context(), actor, orderID, next)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func requireActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type orderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	VariantID      *string   `json:"variant_id,omitempty"`
	Title          string    `json:"title"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Status          string              `json:"status"`
	RefundStatus    string              `json:"refund_status"`
	ContactEmail    string              `json:"contact_email"`
	ShippingAddress types.Address       `json:"shipping_address"`
	ShippingMethod  string              `json:"shipping_method"`
	ShippingZone    string              `json:"shipping_zone,omitempty"`
	PaymentMethod   string              `json:"payment_method"`
	Currency        string              `json:"currency"`
	SubtotalCents   int                 `json:"subtotal_cents"`
	TaxCents        int                 `json:"tax_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	TotalCents      int                 `json:"total_cents"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Title:          item.Title,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
		})
	}
	return orderResponse{
		ID:              order.ID,
		Status:          order.Status.String(),
		RefundStatus:    order.RefundStatus.String(),
		ContactEmail:    order.ContactEmail,
		ShippingAddress: order.ShippingAddress,
		ShippingMethod:  order.ShippingMethod.String(),
		ShippingZone:    order.ShippingZone,
		PaymentMethod:   order.PaymentMethod.String(),
		Currency:        order.Currency.String(),
		SubtotalCents:   order.SubtotalCents,
		TaxCents:        order.TaxCents,
		ShippingCents:   order.ShippingCents,
		TotalCents:      order.TotalCents,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func newOrderResponsePtr(order *models.Order) *orderResponse {
	resp := newOrderResponse(order)
	return &resp
}
