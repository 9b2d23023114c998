package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novamart/orderflow/api/middleware"
	"github.com/novamart/orderflow/api/responses"
	"github.com/novamart/orderflow/api/validators"
	"github.com/novamart/orderflow/internal/cart"
	checkoutsvc "github.com/novamart/orderflow/internal/checkout"
	orderssvc "github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/internal/payments"
	"github.com/novamart/orderflow/internal/shipping"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/metrics"
)

// CheckoutStart opens a session for the owner.
func CheckoutStart(mgr checkoutsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerKey, err := requireOwnerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var buyerID *uuid.UUID
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			id := actor.UserID
			buyerID = &id
		}

		session, err := mgr.Start(r.Context(), ownerKey, buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(session))
	}
}

// CheckoutResume re-hydrates a persisted session.
func CheckoutResume(mgr checkoutsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := mgr.Resume(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// CheckoutSetField applies one field edit.
func CheckoutSetField(mgr checkoutsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setFieldRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := mgr.SetField(r.Context(), sessionID, payload.Field, payload.Value)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// CheckoutSetShippingMethod swaps the delivery speed and re-quotes.
func CheckoutSetShippingMethod(mgr checkoutsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setShippingMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParseShippingMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping method"))
			return
		}

		session, err := mgr.SetShippingMethod(r.Context(), sessionID, method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// CheckoutSetPaymentMethod records the gateway the buyer selected.
func CheckoutSetPaymentMethod(mgr checkoutsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setPaymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		session, err := mgr.SetPaymentMethod(r.Context(), sessionID, method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// CheckoutDiscard drops an abandoned session.
func CheckoutDiscard(mgr checkoutsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := mgr.Discard(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"discarded": true})
	}
}

// CheckoutPay runs the whole money path for one session: freeze the draft,
// initiate and confirm with the selected gateway, then commit the order. A
// failed confirm never reaches the commit service, so no order row can exist
// for a failed payment.
func CheckoutPay(
	mgr checkoutsvc.Manager,
	gateways *payments.Registry,
	orders orderssvc.Service,
	logg *logger.Logger,
	m *metrics.CommerceMetrics,
	gatewayTimeout time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, session, err := mgr.Commit(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var result *payments.PaymentResult
		if session.PaymentReference != "" {
			// an earlier attempt already charged the buyer; verify the stored
			// reference with the provider and re-drive the commit instead of
			// confirming again
			gateway, err := gateways.ByMethod(draft.PaymentMethod)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			result, err = gateway.Verify(r.Context(), session.PaymentReference)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !result.Succeeded() {
				responses.WriteSuccessStatus(w, http.StatusPaymentRequired, payResponse{
					Outcome: "payment_failed",
					Message: result.Message,
				})
				return
			}
		} else {
			gateway, err := gateways.ByMethod(draft.PaymentMethod)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := r.Context()
			if gatewayTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, gatewayTimeout)
				defer cancel()
			}

			handle, err := gateway.Initiate(ctx, draft.TotalCents, draft.Currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			result, err = gateway.Confirm(ctx, *handle, payload.MethodDetails)
			if err != nil {
				m.IncPaymentConfirmed(draft.PaymentMethod.String(), "error")
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !result.Succeeded() {
				m.IncPaymentConfirmed(draft.PaymentMethod.String(), "failed")
				responses.WriteSuccessStatus(w, http.StatusPaymentRequired, payResponse{
					Outcome: "payment_failed",
					Message: result.Message,
				})
				return
			}
			m.IncPaymentConfirmed(draft.PaymentMethod.String(), "succeeded")

			if err := mgr.RecordPayment(r.Context(), sessionID, result.ProviderReference); err != nil && logg != nil {
				logg.Warn(r.Context(), fmt.Sprintf("recording payment reference on session: %v", err))
			}
		}

		order, err := orders.Commit(r.Context(), *draft, *result)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, payResponse{
			Outcome: "order_created",
			Order:   newOrderResponsePtr(order),
		})
	}
}

func sessionIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUIDParam(chi.URLParam(r, "sessionID"), "sessionID")
}

type setFieldRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

type setShippingMethodRequest struct {
	Method string `json:"method" validate:"required"`
}

type setPaymentMethodRequest struct {
	Method string `json:"method" validate:"required"`
}

type payRequest struct {
	MethodDetails string `json:"method_details" validate:"required"`
}

type payResponse struct {
	Outcome string         `json:"outcome"`
	Message string         `json:"message,omitempty"`
	Order   *orderResponse `json:"order,omitempty"`
}

type sessionResponse struct {
	ID             uuid.UUID          `json:"id"`
	State          string             `json:"state"`
	Form           checkoutsvc.FormData `json:"form"`
	Errors         map[string]string  `json:"errors"`
	ShippingMethod string             `json:"shipping_method"`
	PaymentMethod  string             `json:"payment_method"`
	Currency       string             `json:"currency"`
	Quote          *shipping.Quote    `json:"quote,omitempty"`
	Totals         *cart.Totals       `json:"totals,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func newSessionResponse(session *checkoutsvc.Session) sessionResponse {
	return sessionResponse{
		ID:             session.ID,
		State:          session.State.String(),
		Form:           session.Form,
		Errors:         session.VisibleErrors(),
		ShippingMethod: session.ShippingMethod.String(),
		PaymentMethod:  session.PaymentMethod.String(),
		Currency:       session.Currency.String(),
		Quote:          session.Quote,
		Totals:         session.Totals,
		UpdatedAt:      session.UpdatedAt,
	}
}
