package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/novamart/orderflow/internal/cart"
	"github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/internal/shipping"
	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/redis"
	"github.com/novamart/orderflow/pkg/types"
)

type cartLoader interface {
	GetActiveCart(ctx context.Context, ownerKey string) (*models.CartRecord, error)
}

type quoteResolver interface {
	Resolve(ctx context.Context, dest shipping.Destination, weightGrams int, method enums.ShippingMethod) (*shipping.Quote, error)
}

type progressStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ProgressKey(sessionID string) string
}

// Manager drives checkout sessions through collecting, ready, and committed.
type Manager interface {
	Start(ctx context.Context, ownerKey string, buyerUserID *uuid.UUID) (*Session, error)
	Resume(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	SetField(ctx context.Context, sessionID uuid.UUID, field, value string) (*Session, error)
	SetShippingMethod(ctx context.Context, sessionID uuid.UUID, method enums.ShippingMethod) (*Session, error)
	SetPaymentMethod(ctx context.Context, sessionID uuid.UUID, method enums.PaymentMethod) (*Session, error)
	Commit(ctx context.Context, sessionID uuid.UUID) (*orders.OrderDraft, *Session, error)
	RecordPayment(ctx context.Context, sessionID uuid.UUID, providerReference string) error
	Discard(ctx context.Context, sessionID uuid.UUID) error
}

type manager struct {
	carts       cartLoader
	quotes      quoteResolver
	progress    progressStore
	logger      *logger.Logger
	taxRateBPS  int
	progressTTL time.Duration
}

// NewManager builds the session manager.
func NewManager(
	carts cartLoader,
	quotes quoteResolver,
	progress progressStore,
	logg *logger.Logger,
	taxRateBPS int,
	progressTTL time.Duration,
) (Manager, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart loader required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("quote resolver required")
	}
	if progress == nil {
		return nil, fmt.Errorf("progress store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if taxRateBPS < 0 {
		return nil, fmt.Errorf("tax rate must be non-negative")
	}
	if progressTTL <= 0 {
		progressTTL = 72 * time.Hour
	}
	return &manager{
		carts:       carts,
		quotes:      quotes,
		progress:    progress,
		logger:      logg,
		taxRateBPS:  taxRateBPS,
		progressTTL: progressTTL,
	}, nil
}

// Start opens a fresh session for the owner and persists it immediately so a
// refresh right after landing on checkout still resumes.
func (m *manager) Start(ctx context.Context, ownerKey string, buyerUserID *uuid.UUID) (*Session, error) {
	if ownerKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner key is required")
	}
	session := newSession(ownerKey, buyerUserID)
	m.save(ctx, session)
	return session, nil
}

// Resume re-hydrates a persisted session, restoring form values, quote, and
// validation state exactly as they were.
func (m *manager) Resume(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return m.load(ctx, sessionID)
}

// SetField applies a single field edit. Only the edited field is
// re-validated, and a shipping re-quote happens only when the destination
// country changes.
func (m *manager) SetField(ctx context.Context, sessionID uuid.UUID, field, value string) (*Session, error) {
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == enums.SessionStateCommitted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is committed and frozen")
	}

	previousCountry := session.Form.CountryCode
	if !session.Form.Set(field, value) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown field %q", field))
	}
	session.Touched[field] = true

	if msg := ValidateField(field, value); msg != "" {
		session.Errors[field] = msg
	} else {
		delete(session.Errors, field)
	}

	if field == FieldCountryCode && session.Form.CountryCode != previousCountry {
		if err := m.requote(ctx, session); err != nil {
			return nil, err
		}
	}

	session.refreshState()
	m.save(ctx, session)
	return session, nil
}

// SetShippingMethod swaps the requested method and re-quotes.
func (m *manager) SetShippingMethod(ctx context.Context, sessionID uuid.UUID, method enums.ShippingMethod) (*Session, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method")
	}
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == enums.SessionStateCommitted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is committed and frozen")
	}
	if session.ShippingMethod == method {
		return session, nil
	}

	session.ShippingMethod = method
	if err := m.requote(ctx, session); err != nil {
		return nil, err
	}

	session.refreshState()
	m.save(ctx, session)
	return session, nil
}

// SetPaymentMethod records which gateway the buyer selected. No re-quote.
func (m *manager) SetPaymentMethod(ctx context.Context, sessionID uuid.UUID, method enums.PaymentMethod) (*Session, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == enums.SessionStateCommitted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is committed and frozen")
	}

	session.PaymentMethod = method
	m.save(ctx, session)
	return session, nil
}

// Commit runs a full submit: every field is validated, the cart is
// snapshotted, totals are priced from the frozen snapshot, and the resulting
// draft is immutable. The session freezes on success. Committing an already
// committed session hands back the same frozen draft so a pay retry after a
// downstream failure can finish the flow.
func (m *manager) Commit(ctx context.Context, sessionID uuid.UUID) (*orders.OrderDraft, *Session, error) {
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.State == enums.SessionStateCommitted {
		if session.Draft != nil {
			return session.Draft, session, nil
		}
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session already committed")
	}

	session.SubmitAttempt = true
	session.revalidate()
	if len(session.Errors) > 0 {
		m.save(ctx, session)
		return nil, session, pkgerrors.New(pkgerrors.CodeValidation, "checkout form is incomplete").
			WithDetails(session.VisibleErrors())
	}

	record, err := m.carts.GetActiveCart(ctx, session.OwnerKey)
	if err != nil {
		return nil, session, err
	}
	if len(record.Items) == 0 {
		return nil, session, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	if session.Quote == nil {
		if err := m.requote(ctx, session); err != nil {
			return nil, session, err
		}
	}

	totals := cart.ComputeTotals(record.Items, m.taxRateBPS, session.Quote.CostCents)
	session.Totals = &totals

	draft := &orders.OrderDraft{
		DraftID:      uuid.New(),
		OwnerKey:     session.OwnerKey,
		CartID:       record.ID,
		BuyerUserID:  session.BuyerUserID,
		ContactEmail: session.Form.Email,
		ContactPhone: session.Form.Phone,
		ShippingAddress: types.Address{
			FullName:    session.Form.FullName,
			Street:      session.Form.Street,
			City:        session.Form.City,
			Region:      session.Form.Region,
			PostalCode:  session.Form.PostalCode,
			CountryCode: session.Form.CountryCode,
			Phone:       session.Form.Phone,
		},
		Currency:       session.Currency,
		Items:          orders.SnapshotFromCart(record.Items),
		SubtotalCents:  totals.SubtotalCents,
		TaxRateBPS:     m.taxRateBPS,
		TaxCents:       totals.TaxCents,
		ShippingCents:  totals.ShippingCents,
		TotalCents:     totals.TotalCents,
		ShippingMethod: session.ShippingMethod,
		ShippingZone:   session.Quote.Zone,
		PaymentMethod:  session.PaymentMethod,
	}

	session.State = enums.SessionStateCommitted
	session.Draft = draft
	m.save(ctx, session)
	return draft, session, nil
}

// RecordPayment pins the provider reference onto the committed session so a
// retried pay never re-charges; the commit can be re-driven from the stored
// draft and reference alone.
func (m *manager) RecordPayment(ctx context.Context, sessionID uuid.UUID, providerReference string) error {
	if providerReference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	}
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	session.PaymentReference = providerReference
	m.save(ctx, session)
	return nil
}

// Discard drops the persisted progress for an abandoned session.
func (m *manager) Discard(ctx context.Context, sessionID uuid.UUID) error {
	return m.progress.Del(ctx, m.progress.ProgressKey(sessionID.String()))
}

// requote loads the cart for its weight and resolves a fresh quote, then
// reprices the displayed totals.
func (m *manager) requote(ctx context.Context, session *Session) error {
	record, err := m.carts.GetActiveCart(ctx, session.OwnerKey)
	if err != nil {
		return err
	}

	dest := shipping.Destination{
		CountryCode: session.Form.CountryCode,
		Region:      session.Form.Region,
		City:        session.Form.City,
	}
	quote, err := m.quotes.Resolve(ctx, dest, totalWeight(record.Items), session.ShippingMethod)
	if err != nil {
		return err
	}

	session.Quote = quote
	totals := cart.ComputeTotals(record.Items, m.taxRateBPS, quote.CostCents)
	session.Totals = &totals
	return nil
}

// save persists progress after every change. The cache is best-effort; a
// write failure is logged and the in-memory session stays usable.
func (m *manager) save(ctx context.Context, session *Session) {
	session.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(session)
	if err != nil {
		m.logger.Warn(ctx, fmt.Sprintf("marshaling checkout progress: %v", err))
		return
	}
	key := m.progress.ProgressKey(session.ID.String())
	if err := m.progress.Set(ctx, key, string(payload), m.progressTTL); err != nil {
		m.logger.Warn(ctx, fmt.Sprintf("persisting checkout progress: %v", err))
	}
}

func (m *manager) load(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	key := m.progress.ProgressKey(sessionID.String())
	raw, err := m.progress.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found or expired")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading checkout progress")
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInconsistent, err, "decoding checkout progress")
	}
	if session.Touched == nil {
		session.Touched = map[string]bool{}
	}
	if session.Errors == nil {
		session.Errors = map[string]string{}
	}
	return &session, nil
}

func totalWeight(items []models.CartItem) int {
	total := 0
	for _, item := range items {
		total += item.WeightGrams * item.Quantity
	}
	return total
}
