package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	orderssvc "github.com/novamart/orderflow/internal/orders"
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

const (
	openRequestConstraint = "uq_return_requests_order_open"
	refundLockTTL         = 2 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayRegistry interface {
	ByMethod(method enums.PaymentMethod) (payments.Gateway, error)
}

type refundLocker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	RefundLockKey(returnID string) string
}

type refundAnnouncer interface {
	PublishRefund(ctx context.Context, order *models.Order, amountCents int, refundID string)
}

// Service owns the return request lifecycle and the refund saga.
type Service interface {
	Request(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.ReturnRequest, error)
	Approve(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error)
	Reject(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error)
	GetByID(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error)
	ListPending(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.ReturnRequest, string, error)
}

type service struct {
	repo      ReturnRepository
	orders    orderssvc.OrderRepository
	tx        txRunner
	gateways  gatewayRegistry
	locks     refundLocker
	announcer refundAnnouncer
	logger    *logger.Logger
	metrics   *metrics.CommerceMetrics
}

// NewService builds the return service.
func NewService(
	repo ReturnRepository,
	orders orderssvc.OrderRepository,
	tx txRunner,
	gateways gatewayRegistry,
	locks refundLocker,
	announcer refundAnnouncer,
	logg *logger.Logger,
	m *metrics.CommerceMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("return repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if locks == nil {
		return nil, fmt.Errorf("refund locker required")
	}
	if announcer == nil {
		return nil, fmt.Errorf("event announcer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		orders:    orders,
		tx:        tx,
		gateways:  gateways,
		locks:     locks,
		announcer: announcer,
		logger:    logg,
		metrics:   m,
	}, nil
}

// Request opens a return for a paid order. At most one non-rejected request
// may exist per order; the pre-check catches the common case and the partial
// unique index closes the race.
func (s *service) Request(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.ReturnRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a return reason is required")
	}
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsOperator() {
		if order.BuyerUserID == nil || *order.BuyerUserID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}
	}
	if !isRefundable(order) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s is not refundable", order.Status))
	}

	if existing, err := s.repo.FindOpenByOrder(ctx, orderID); err == nil && existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a return request is already open for this order")
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "checking open requests")
	}

	request := &models.ReturnRequest{
		OrderID:     orderID,
		RequesterID: actor.UserID,
		Reason:      strings.TrimSpace(reason),
		Status:      enums.ReturnStatusPending,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).Create(ctx, request)
		if err != nil {
			return err
		}
		request = created
		return s.orders.WithTx(tx).UpdateRefundStatus(ctx, orderID, enums.RefundStatusRequested)
	})
	if err != nil {
		if db.IsUniqueViolation(err, openRequestConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a return request is already open for this order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "creating return request")
	}

	logCtx := s.logger.WithOrderID(ctx, orderID.String())
	s.logger.Info(s.logger.WithField(logCtx, "return_id", request.ID.String()), "return request opened")
	return request, nil
}

// Approve runs the refund saga: optimistic status writes, then the gateway
// refund, then either the persisted result or a compensating rollback. A
// Redis lock and the status check together guarantee at most one refund per
// request even under concurrent approvals.
func (s *service) Approve(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error) {
	if !actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "approvals are operator-only")
	}

	request, err := s.loadRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if request.Status == enums.ReturnStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "rejected requests cannot be approved")
	}
	if request.HasRefund() {
		// refund already issued, nothing to do
		return request, nil
	}

	order, err := s.loadOrder(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "order has no payment reference to refund against")
	}

	lockKey := s.locks.RefundLockKey(returnID.String())
	acquired, err := s.locks.SetNX(ctx, lockKey, actor.UserID.String(), refundLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "acquiring refund lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a refund for this request is already in flight")
	}
	defer func() {
		if err := s.locks.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.Warn(ctx, fmt.Sprintf("releasing refund lock: %v", err))
		}
	}()

	// re-read under the lock; a concurrent approval may have finished
	request, err = s.loadRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if request.HasRefund() {
		return request, nil
	}

	// phase 1: optimistic transition committed before the gateway call
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, returnID, enums.ReturnStatusApproved); err != nil {
			return err
		}
		return s.orders.WithTx(tx).UpdateRefundStatus(ctx, request.OrderID, enums.RefundStatusApproved)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "recording approval")
	}

	// phase 2: the gateway refund
	gateway, err := s.gateways.ByMethod(order.PaymentMethod)
	if err != nil {
		return nil, s.rollback(ctx, request, err.Error(), err)
	}

	idemKey := "refund-" + request.ID.String()
	result, err := gateway.Refund(ctx, order.PaymentReference, order.TotalCents, order.Currency, idemKey)
	if err != nil && pkgerrors.IsRetryable(err) {
		// the shared idempotency key makes a second attempt safe
		s.logger.Warn(ctx, fmt.Sprintf("retrying refund after transient gateway failure: %v", err))
		result, err = gateway.Refund(ctx, order.PaymentReference, order.TotalCents, order.Currency, idemKey)
	}
	if err != nil {
		return nil, s.rollback(ctx, request, err.Error(), err)
	}
	if result.Status != enums.PaymentStatusSucceeded {
		failure := fmt.Errorf("provider declined the refund")
		return nil, s.rollback(ctx, request, failure.Error(), failure)
	}

	// phase 3: persist the confirmed result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		scoped := s.repo.WithTx(tx)
		if err := scoped.SaveRefundResult(ctx, returnID, result.ProviderRefundID, order.TotalCents); err != nil {
			return err
		}
		return s.orders.WithTx(tx).UpdateRefundStatus(ctx, request.OrderID, enums.RefundStatusRefunded)
	})
	if err != nil {
		// the money moved; never roll the request back past this point
		logCtx := s.logger.WithOrderID(ctx, order.ID.String())
		s.logger.Error(logCtx, "refund issued but result not persisted, manual reconciliation needed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInconsistent, err, "refund issued but not recorded").
			WithDetails(map[string]any{
				"return_id":          returnID.String(),
				"provider_refund_id": result.ProviderRefundID,
			})
	}

	s.metrics.IncRefund("issued")
	s.announcer.PublishRefund(ctx, order, order.TotalCents, result.ProviderRefundID)

	refreshed, err := s.loadRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	logCtx := s.logger.WithOrderID(ctx, order.ID.String())
	s.logger.Info(s.logger.WithField(logCtx, "return_id", returnID.String()), "refund issued")
	return refreshed, nil
}

// Reject closes a pending request without touching the gateway.
func (s *service) Reject(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error) {
	if !actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "rejections are operator-only")
	}

	request, err := s.loadRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.ReturnStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("only pending requests can be rejected, this one is %s", request.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, returnID, enums.ReturnStatusRejected); err != nil {
			return err
		}
		return s.orders.WithTx(tx).UpdateRefundStatus(ctx, request.OrderID, enums.RefundStatusNone)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "rejecting return request")
	}

	request.Status = enums.ReturnStatusRejected
	return request, nil
}

// GetByID loads a request. Buyers see only their own; operators see any.
func (s *service) GetByID(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.loadRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if !actor.IsOperator() && request.RequesterID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "return request belongs to another buyer")
	}
	return request, nil
}

// ListPending pages the operator review queue.
func (s *service) ListPending(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.ReturnRequest, string, error) {
	if !actor.IsOperator() {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "the review queue is operator-only")
	}
	rows, next, err := s.repo.ListPending(ctx, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "listing pending requests")
	}
	return rows, next, nil
}

// rollback is the compensating action for a failed refund: both rows return
// to their pre-approval states and the provider's message is kept on the
// request so the operator can retry.
func (s *service) rollback(ctx context.Context, request *models.ReturnRequest, message string, cause error) error {
	rollbackErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		scoped := s.repo.WithTx(tx)
		if err := scoped.UpdateStatus(ctx, request.ID, enums.ReturnStatusPending); err != nil {
			return err
		}
		if err := scoped.SaveFailure(ctx, request.ID, message); err != nil {
			return err
		}
		return s.orders.WithTx(tx).UpdateRefundStatus(ctx, request.OrderID, enums.RefundStatusRequested)
	})
	if rollbackErr != nil {
		logCtx := s.logger.WithOrderID(ctx, request.OrderID.String())
		s.logger.Error(logCtx, "refund rollback failed, rows left approved with no refund", rollbackErr)
	}
	s.metrics.IncRefund("rolled_back")

	combined := multierr.Append(cause, rollbackErr)
	return pkgerrors.Wrap(pkgerrors.CodeRefundFailed, combined, "refund was not issued").
		WithDetails(map[string]any{"provider_message": message})
}

func (s *service) loadRequest(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.repo.FindByID(ctx, returnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading return request")
	}
	return request, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading order")
	}
	return order, nil
}

func isRefundable(order *models.Order) bool {
	switch order.Status {
	case enums.OrderStatusPaid, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return true
	default:
		return false
	}
}
