package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/novamart/orderflow/internal/cart"
	"github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/internal/shipping"
	"github.com/novamart/orderflow/pkg/enums"
)

// Session is one in-progress checkout. It is the resumability cache for the
// buyer's form state and quote; once an Order exists the session is never
// authoritative again.
type Session struct {
	ID             uuid.UUID            `json:"id"`
	OwnerKey       string               `json:"owner_key"`
	BuyerUserID    *uuid.UUID           `json:"buyer_user_id,omitempty"`
	State          enums.SessionState   `json:"state"`
	Form           FormData             `json:"form"`
	Touched        map[string]bool      `json:"touched"`
	Errors         map[string]string    `json:"errors"`
	SubmitAttempt  bool                 `json:"submit_attempt"`
	ShippingMethod enums.ShippingMethod `json:"shipping_method"`
	PaymentMethod  enums.PaymentMethod  `json:"payment_method"`
	Currency       enums.Currency       `json:"currency"`
	Quote          *shipping.Quote      `json:"quote,omitempty"`
	Totals         *cart.Totals         `json:"totals,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`

	// Draft and PaymentReference survive a committed session so a pay retry
	// after a transient order-store failure can re-drive the commit without
	// charging the buyer again.
	Draft            *orders.OrderDraft `json:"draft,omitempty"`
	PaymentReference string             `json:"payment_reference,omitempty"`
}

// IsGuest reports whether the session belongs to an unauthenticated buyer.
func (s *Session) IsGuest() bool {
	return s.BuyerUserID == nil
}

// VisibleErrors returns only the validation errors the buyer should see:
// fields they have touched, or every failing field after a submit attempt.
func (s *Session) VisibleErrors() map[string]string {
	visible := map[string]string{}
	for field, msg := range s.Errors {
		if s.SubmitAttempt || s.Touched[field] {
			visible[field] = msg
		}
	}
	return visible
}

// refreshState recomputes the collecting/ready flip. Committed is terminal
// and never recomputed.
func (s *Session) refreshState() {
	if s.State == enums.SessionStateCommitted {
		return
	}
	if len(s.Errors) == 0 && s.Quote != nil {
		s.State = enums.SessionStateReady
		return
	}
	s.State = enums.SessionStateCollecting
}

// revalidate runs full-form validation and refreshes the state flip. Touched
// flags are left alone; visibility is a separate concern.
func (s *Session) revalidate() {
	s.Errors = ValidateAll(s.Form)
	s.refreshState()
}

func newSession(ownerKey string, buyerUserID *uuid.UUID) *Session {
	return &Session{
		ID:             uuid.New(),
		OwnerKey:       ownerKey,
		BuyerUserID:    buyerUserID,
		State:          enums.SessionStateCollecting,
		Touched:        map[string]bool{},
		Errors:         ValidateAll(FormData{}),
		ShippingMethod: enums.ShippingMethodStandard,
		PaymentMethod:  enums.PaymentMethodCard,
		Currency:       enums.CurrencyUSD,
		UpdatedAt:      time.Now().UTC(),
	}
}
