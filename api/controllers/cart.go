package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novamart/orderflow/api/middleware"
	"github.com/novamart/orderflow/api/responses"
	"github.com/novamart/orderflow/api/validators"
	cartsvc "github.com/novamart/orderflow/internal/cart"
	"github.com/novamart/orderflow/pkg/db/models"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
)

// CartGet returns the owner's active cart, creating it on first touch.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerKey, err := requireOwnerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.GetActiveCart(r.Context(), ownerKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartAddItem appends a line to the active cart, merging an existing line for
// the same product and variant.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerKey, err := requireOwnerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.AddItem(r.Context(), ownerKey, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(record))
	}
}

// CartSetQuantity changes one line's quantity; zero removes the line.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerKey, err := requireOwnerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := validators.ParseUUIDParam(chi.URLParam(r, "itemID"), "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.SetQuantity(r.Context(), ownerKey, itemID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartRemoveItem drops one line from the cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerKey, err := requireOwnerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := validators.ParseUUIDParam(chi.URLParam(r, "itemID"), "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.RemoveItem(r.Context(), ownerKey, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartClear empties the active cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerKey, err := requireOwnerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Clear(r.Context(), ownerKey); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"cleared": true})
	}
}

func requireOwnerKey(r *http.Request) (string, error) {
	ownerKey := middleware.OwnerKeyFromContext(r.Context())
	if ownerKey == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "credentials or a guest token are required")
	}
	return ownerKey, nil
}

type addCartItemRequest struct {
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
	VariantID      *string   `json:"variant_id"`
	Title          string    `json:"title" validate:"required"`
	UnitPriceCents int       `json:"unit_price_cents" validate:"required,min=1"`
	Quantity       int       `json:"quantity" validate:"required,min=1"`
	WeightGrams    int       `json:"weight_grams" validate:"min=0"`
}

func (r addCartItemRequest) toInput() cartsvc.AddItemInput {
	return cartsvc.AddItemInput{
		ProductID:      r.ProductID,
		VariantID:      r.VariantID,
		Title:          r.Title,
		UnitPriceCents: r.UnitPriceCents,
		Quantity:       r.Quantity,
		WeightGrams:    r.WeightGrams,
	}
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0"`
}

type cartItemResponse struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"product_id"`
	VariantID      *string   `json:"variant_id,omitempty"`
	Title          string    `json:"title"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	WeightGrams    int       `json:"weight_grams"`
	LineTotalCents int       `json:"line_total_cents"`
}

type cartResponse struct {
	ID            uuid.UUID          `json:"id"`
	Status        string             `json:"status"`
	Items         []cartItemResponse `json:"items"`
	SubtotalCents int                `json:"subtotal_cents"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func newCartResponse(record *models.CartRecord) cartResponse {
	items := make([]cartItemResponse, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, cartItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Title:          item.Title,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			WeightGrams:    item.WeightGrams,
			LineTotalCents: item.LineSubtotalCents(),
		})
	}
	return cartResponse{
		ID:            record.ID,
		Status:        record.Status.String(),
		Items:         items,
		SubtotalCents: cartsvc.Subtotal(record.Items),
		UpdatedAt:     record.UpdatedAt,
	}
}
