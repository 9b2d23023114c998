package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/novamart/orderflow/internal/payments"
	"github.com/novamart/orderflow/pkg/auth"
	"github.com/novamart/orderflow/pkg/db"
	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/metrics"
	"github.com/novamart/orderflow/pkg/pagination"
)

const paymentReferenceConstraint = "uq_orders_payment_reference"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartCleaner interface {
	Clear(ctx context.Context, ownerKey string) error
	MarkConverted(ctx context.Context, cartID uuid.UUID) error
}

type purchaseAnnouncer interface {
	PublishPurchase(ctx context.Context, order *models.Order)
}

// Service owns order commits and the operator status transitions.
type Service interface {
	Commit(ctx context.Context, draft OrderDraft, result payments.PaymentResult) (*models.Order, error)
	GetByID(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.Order, string, error)
	Transition(ctx context.Context, actor auth.Actor, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
}

type service struct {
	repo          OrderRepository
	tx            txRunner
	carts         cartCleaner
	announcer     purchaseAnnouncer
	logger        *logger.Logger
	metrics       *metrics.CommerceMetrics
	commitRetries int
}

// NewService builds the order service.
func NewService(
	repo OrderRepository,
	tx txRunner,
	carts cartCleaner,
	announcer purchaseAnnouncer,
	logg *logger.Logger,
	m *metrics.CommerceMetrics,
	commitRetries int,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart cleaner required")
	}
	if announcer == nil {
		return nil, fmt.Errorf("event announcer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if commitRetries < 0 {
		commitRetries = 0
	}
	return &service{
		repo:          repo,
		tx:            tx,
		carts:         carts,
		announcer:     announcer,
		logger:        logg,
		metrics:       m,
		commitRetries: commitRetries,
	}, nil
}

// Commit turns a succeeded payment into a durable Order. The operation is
// idempotent on the provider payment reference: a retried commit after a
// transient store failure returns the already-persisted Order instead of
// creating a duplicate.
func (s *service) Commit(ctx context.Context, draft OrderDraft, result payments.PaymentResult) (*models.Order, error) {
	if !result.Succeeded() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commit requires a succeeded payment")
	}
	if result.ProviderReference == "" {
		logCtx := s.logger.WithDraftID(ctx, draft.DraftID.String())
		s.logger.Error(logCtx, "succeeded payment with no provider reference", nil)
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "succeeded payment with no provider reference")
	}
	if len(draft.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "draft has no items")
	}
	if draft.TotalCents != draft.SubtotalCents+draft.TaxCents+draft.ShippingCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "draft totals do not reconcile")
	}

	logCtx := s.logger.WithDraftID(ctx, draft.DraftID.String())

	if existing, err := s.findExisting(ctx, result.ProviderReference); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Info(s.logger.WithOrderID(logCtx, existing.ID.String()), "commit replay, returning existing order")
		return existing, nil
	}

	order := buildOrder(draft, result)

	var persisted *models.Order
	backoff := retry.WithMaxRetries(uint64(s.commitRetries), retry.NewConstant(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		created, err := s.persist(ctx, order)
		if err != nil {
			if db.IsUniqueViolation(err, paymentReferenceConstraint) {
				return err
			}
			return retry.RetryableError(err)
		}
		persisted = created
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, paymentReferenceConstraint) {
			// lost a race with a concurrent commit for the same payment
			if existing, lookupErr := s.findExisting(ctx, result.ProviderReference); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		s.logger.Error(logCtx, "persisting order", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "order store unavailable").
			WithDetails(map[string]any{
				"draft_id":          draft.DraftID.String(),
				"payment_reference": result.ProviderReference,
			})
	}

	s.metrics.IncOrderCommitted()

	// cart cleanup is best-effort; the order is authoritative even if it lags
	if err := s.carts.MarkConverted(ctx, draft.CartID); err != nil {
		s.logger.Warn(logCtx, fmt.Sprintf("marking cart converted failed: %v", err))
	}
	if err := s.carts.Clear(ctx, draft.OwnerKey); err != nil {
		s.logger.Warn(logCtx, fmt.Sprintf("clearing cart failed: %v", err))
	}

	s.announcer.PublishPurchase(ctx, persisted)

	s.logger.Info(s.logger.WithOrderID(logCtx, persisted.ID.String()), "order committed")
	return persisted, nil
}

// GetByID loads an order. Buyers see only their own orders; operators see any.
func (s *service) GetByID(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsOperator() {
		if order.BuyerUserID == nil || *order.BuyerUserID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}
	}
	return order, nil
}

// ListByBuyer pages through the actor's own orders.
func (s *service) ListByBuyer(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.Order, string, error) {
	if actor.UserID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, next, err := s.repo.ListByBuyer(ctx, actor.UserID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "listing orders")
	}
	return rows, next, nil
}

// Transition applies one operator-driven status move. The chain is strictly
// forward; only the status column is written.
func (s *service) Transition(ctx context.Context, actor auth.Actor, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if !actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "status transitions are operator-only")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition order from %s to %s", order.Status, next)).
			WithDetails(map[string]any{"from": order.Status.String(), "to": next.String()})
	}

	if err := s.repo.UpdateStatus(ctx, orderID, next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "updating order status")
	}

	order.Status = next
	logCtx := s.logger.WithOrderID(ctx, orderID.String())
	s.logger.Info(s.logger.WithField(logCtx, "status", next.String()), "order status updated")
	return order, nil
}

func (s *service) findExisting(ctx context.Context, reference string) (*models.Order, error) {
	existing, err := s.repo.FindByPaymentReference(ctx, reference)
	if err == nil {
		return existing, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "looking up payment reference")
}

func (s *service) persist(ctx context.Context, order *models.Order) (*models.Order, error) {
	clone := *order
	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.repo.WithTx(tx).Create(ctx, &clone)
		if err != nil {
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading order")
	}
	return order, nil
}

func buildOrder(draft OrderDraft, result payments.PaymentResult) *models.Order {
	items := make([]models.OrderItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		items = append(items, models.OrderItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Title:          item.Title,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			WeightGrams:    item.WeightGrams,
		})
	}

	return &models.Order{
		DraftID:          draft.DraftID,
		BuyerUserID:      draft.BuyerUserID,
		ContactEmail:     draft.ContactEmail,
		ContactPhone:     draft.ContactPhone,
		ShippingAddress:  draft.ShippingAddress,
		Currency:         draft.Currency,
		SubtotalCents:    draft.SubtotalCents,
		TaxRateBPS:       draft.TaxRateBPS,
		TaxCents:         draft.TaxCents,
		ShippingCents:    draft.ShippingCents,
		TotalCents:       draft.TotalCents,
		ShippingMethod:   draft.ShippingMethod,
		ShippingZone:     draft.ShippingZone,
		Status:           enums.OrderStatusPaid,
		RefundStatus:     enums.RefundStatusNone,
		PaymentMethod:    draft.PaymentMethod,
		PaymentReference: result.ProviderReference,
		Items:            items,
	}
}
