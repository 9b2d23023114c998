package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novamart/orderflow/api/responses"
	"github.com/novamart/orderflow/api/validators"
	returnssvc "github.com/novamart/orderflow/internal/returns"
	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/logger"
)

// ReturnCreate opens a return request against one of the caller's orders.
func ReturnCreate(svc returnssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Request(r.Context(), actor, payload.OrderID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newReturnResponse(record))
	}
}

// ReturnGet returns one return request.
func ReturnGet(svc returnssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		returnID, err := returnIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.GetByID(r.Context(), actor, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReturnResponse(record))
	}
}

// ReturnListPending lists requests awaiting review. Operator only.
func ReturnListPending(svc returnssvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		records, nextCursor, err := svc.ListPending(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]returnResponse, 0, len(records))
		for i := range records {
			items = append(items, newReturnResponse(&records[i]))
		}

		responses.WriteSuccess(w, returnListResponse{
			Returns:    items,
			NextCursor: nextCursor,
		})
	}
}

// ReturnApprove runs the refund saga for a pending request. Operator only.
func ReturnApprove(svc returnssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		returnID, err := returnIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Approve(r.Context(), actor, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReturnResponse(record))
	}
}

// ReturnReject closes a pending request without refunding. Operator only.
func ReturnReject(svc returnssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		returnID, err := returnIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Reject(r.Context(), actor, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReturnResponse(record))
	}
}

func returnIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUIDParam(chi.URLParam(r, "returnID"), "returnID")
}

type createReturnRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	Reason  string    `json:"reason" validate:"required"`
}

type returnListResponse struct {
	Returns    []returnResponse `json:"returns"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type returnResponse struct {
	ID                uuid.UUID `json:"id"`
	OrderID           uuid.UUID `json:"order_id"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason"`
	RefundProviderID  *string   `json:"refund_provider_id,omitempty"`
	RefundAmountCents *int      `json:"refund_amount_cents,omitempty"`
	FailureMessage    *string   `json:"failure_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newReturnResponse(record *models.ReturnRequest) returnResponse {
	return returnResponse{
		ID:                record.ID,
		OrderID:           record.OrderID,
		Status:            record.Status.String(),
		Reason:            record.Reason,
		RefundProviderID:  record.RefundProviderID,
		RefundAmountCents: record.RefundAmountCents,
		FailureMessage:    record.FailureMessage,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}
