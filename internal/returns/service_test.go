package returns

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	orderssvc "github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/internal/payments"
	"github.com/novamart/orderflow/pkg/auth"
	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

type stubReturnRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*models.ReturnRequest
	byOrder  map[uuid.UUID]*models.ReturnRequest
	createUV bool
}

func newStubReturnRepo() *stubReturnRepo {
	return &stubReturnRepo{
		byID:    map[uuid.UUID]*models.ReturnRequest{},
		byOrder: map[uuid.UUID]*models.ReturnRequest{},
	}
}

func (s *stubReturnRepo) WithTx(tx *gorm.DB) ReturnRepository { return s }

func (s *stubReturnRepo) Create(ctx context.Context, request *models.ReturnRequest) (*models.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createUV {
		return nil, fmt.Errorf(`duplicate key value violates unique constraint "uq_return_requests_order_open"`)
	}
	saved := *request
	saved.ID = uuid.New()
	s.byID[saved.ID] = &saved
	s.byOrder[saved.OrderID] = &saved
	return &saved, nil
}

func (s *stubReturnRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.byID[id]; ok {
		clone := *request
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubReturnRepo) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.byOrder[orderID]; ok && request.Status != enums.ReturnStatusRejected {
		clone := *request
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubReturnRepo) ListPending(ctx context.Context, params pagination.Params) ([]models.ReturnRequest, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.ReturnRequest
	for _, request := range s.byID {
		if request.Status == enums.ReturnStatusPending {
			rows = append(rows, *request)
		}
	}
	return rows, "", nil
}

func (s *stubReturnRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReturnStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.byID[id]; ok {
		request.Status = status
	}
	return nil
}

func (s *stubReturnRepo) SaveRefundResult(ctx context.Context, id uuid.UUID, providerRefundID string, amountCents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.byID[id]; ok {
		request.RefundProviderID = &providerRefundID
		request.RefundAmountCents = &amountCents
		request.FailureMessage = nil
	}
	return nil
}

func (s *stubReturnRepo) SaveFailure(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.byID[id]; ok {
		request.FailureMessage = &message
	}
	return nil
}

type stubOrderStore struct {
	mu               sync.Mutex
	orders           map[uuid.UUID]*models.Order
	bareRefundWrites int
	txRefundWrites   int
}

func newStubOrderStore(orders ...*models.Order) *stubOrderStore {
	store := &stubOrderStore{orders: map[uuid.UUID]*models.Order{}}
	for _, order := range orders {
		store.orders[order.ID] = order
	}
	return store
}

func (s *stubOrderStore) WithTx(tx *gorm.DB) orderssvc.OrderRepository {
	return txOrderStore{s}
}

func (s *stubOrderStore) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[id]; ok {
		clone := *order
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderStore) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderStore) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return nil, "", nil
}

func (s *stubOrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[id]; ok {
		order.Status = status
	}
	return nil
}

func (s *stubOrderStore) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status enums.RefundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bareRefundWrites++
	if order, ok := s.orders[id]; ok {
		order.RefundStatus = status
	}
	return nil
}

func (s *stubOrderStore) refundStatus(id uuid.UUID) enums.RefundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].RefundStatus
}

// txOrderStore is what WithTx hands back; refund writes through it are
// counted separately so tests can tell scoped writes from base-connection
// writes.
type txOrderStore struct {
	*stubOrderStore
}

func (s txOrderStore) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status enums.RefundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txRefundWrites++
	if order, ok := s.orders[id]; ok {
		order.RefundStatus = status
	}
	return nil
}

type stubTx struct{}

func (s stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubGateway struct {
	mu           sync.Mutex
	method       enums.PaymentMethod
	refunds      int
	refundErr    error
	transientErr error
	failuresLeft int
	result       *payments.RefundResult
}

func (s *stubGateway) Method() enums.PaymentMethod { return s.method }

func (s *stubGateway) Initiate(ctx context.Context, amountCents int, currency enums.Currency) (*payments.ClientHandle, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubGateway) Confirm(ctx context.Context, handle payments.ClientHandle, methodDetails string) (*payments.PaymentResult, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubGateway) Verify(ctx context.Context, providerRef string) (*payments.PaymentResult, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubGateway) Refund(ctx context.Context, providerRef string, amountCents int, currency enums.Currency, idempotencyKey string) (*payments.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds++
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, s.transientErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &payments.RefundResult{Status: enums.PaymentStatusSucceeded, ProviderRefundID: "re_" + idempotencyKey}, nil
}

func (s *stubGateway) refundCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunds
}

type stubRegistry struct {
	gateway *stubGateway
}

func (s *stubRegistry) ByMethod(method enums.PaymentMethod) (payments.Gateway, error) {
	return s.gateway, nil
}

type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: map[string]bool{}}
}

func (s *stubLocker) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[key] {
		return false, nil
	}
	s.held[key] = true
	return true, nil
}

func (s *stubLocker) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.held, key)
	}
	return nil
}

func (s *stubLocker) RefundLockKey(returnID string) string {
	return "of:refund-lock:" + returnID
}

type stubRefundAnnouncer struct {
	mu      sync.Mutex
	refunds []string
}

func (s *stubRefundAnnouncer) PublishRefund(ctx context.Context, order *models.Order, amountCents int, refundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, refundID)
}

func (s *stubRefundAnnouncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

func paidOrder(buyerID uuid.UUID) *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		BuyerUserID:      &buyerID,
		Currency:         enums.CurrencyUSD,
		TotalCents:       29000,
		Status:           enums.OrderStatusPaid,
		RefundStatus:     enums.RefundStatusNone,
		PaymentMethod:    enums.PaymentMethodCard,
		PaymentReference: "pi_abc123",
	}
}

type fixture struct {
	svc       Service
	repo      *stubReturnRepo
	orders    *stubOrderStore
	gateway   *stubGateway
	locker    *stubLocker
	announcer *stubRefundAnnouncer
}

func newFixture(t *testing.T, orders ...*models.Order) *fixture {
	t.Helper()
	repo := newStubReturnRepo()
	store := newStubOrderStore(orders...)
	gateway := &stubGateway{method: enums.PaymentMethodCard}
	locker := newStubLocker()
	announcer := &stubRefundAnnouncer{}
	svc, err := NewService(repo, store, stubTx{}, &stubRegistry{gateway: gateway}, locker, announcer, testLogger(), nil)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return &fixture{svc: svc, repo: repo, orders: store, gateway: gateway, locker: locker, announcer: announcer}
}

func TestRequestOpensReturn(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, err := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if request.Status != enums.ReturnStatusPending {
		t.Fatalf("new request must be pending, got %s", request.Status)
	}
	if f.orders.refundStatus(order.ID) != enums.RefundStatusRequested {
		t.Fatalf("order refund mirror must be requested")
	}
}

func TestRequestValidations(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	cancelled := paidOrder(buyerID)
	cancelled.Status = enums.OrderStatusCancelled
	f := newFixture(t, order, cancelled)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}

	if _, err := f.svc.Request(context.Background(), buyer, order.ID, "   "); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("blank reason must fail validation, got %v", err)
	}
	stranger := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	if _, err := f.svc.Request(context.Background(), stranger, order.ID, "wrong size"); pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("stranger must be forbidden, got %v", err)
	}
	if _, err := f.svc.Request(context.Background(), buyer, cancelled.ID, "changed my mind"); pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("cancelled order must not be refundable, got %v", err)
	}
	if _, err := f.svc.Request(context.Background(), buyer, uuid.New(), "missing"); pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unknown order must be not found, got %v", err)
	}
}

func TestRequestSecondOpenReturnConflicts(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	if _, err := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := f.svc.Request(context.Background(), buyer, order.ID, "still damaged"); pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("second open request must conflict, got %v", err)
	}
}

func TestRequestIndexRaceMapsToConflict(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)
	f.repo.createUV = true

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	if _, err := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged"); pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("index violation must map to conflict, got %v", err)
	}
}

func TestApproveIssuesRefund(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	approved, err := f.svc.Approve(context.Background(), operator, request.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if approved.Status != enums.ReturnStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if !approved.HasRefund() {
		t.Fatalf("refund result must be attached: %+v", approved)
	}
	if approved.RefundAmountCents == nil || *approved.RefundAmountCents != order.TotalCents {
		t.Fatalf("refund must cover the full order total")
	}
	if f.orders.refundStatus(order.ID) != enums.RefundStatusRefunded {
		t.Fatalf("order mirror must be refunded")
	}
	if f.gateway.refundCalls() != 1 {
		t.Fatalf("expected exactly one refund call, got %d", f.gateway.refundCalls())
	}
	if f.announcer.count() != 1 {
		t.Fatalf("expected one refund event")
	}
}

func TestApproveIsOperatorOnly(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	if _, err := f.svc.Approve(context.Background(), buyer, request.ID); pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("buyer must not approve, got %v", err)
	}
	if f.gateway.refundCalls() != 0 {
		t.Fatalf("forbidden approve must not reach the gateway")
	}
}

func TestApproveGatewayFailureRollsBack(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)
	f.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGatewayTimeout, "provider timed out")

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	_, err := f.svc.Approve(context.Background(), operator, request.ID)
	if pkgerrors.As(err).Code() != pkgerrors.CodeRefundFailed {
		t.Fatalf("expected refund failed, got %v", err)
	}

	after, findErr := f.repo.FindByID(context.Background(), request.ID)
	if findErr != nil {
		t.Fatalf("loading request: %v", findErr)
	}
	if after.Status != enums.ReturnStatusPending {
		t.Fatalf("request must roll back to pending, got %s", after.Status)
	}
	if after.FailureMessage == nil || *after.FailureMessage == "" {
		t.Fatalf("provider message must be persisted")
	}
	if after.HasRefund() {
		t.Fatalf("no refund result may exist after rollback")
	}
	if f.orders.refundStatus(order.ID) != enums.RefundStatusRequested {
		t.Fatalf("order mirror must roll back to requested")
	}
	if f.announcer.count() != 0 {
		t.Fatalf("no refund event on failure")
	}
}

func TestApproveRetryAfterRollbackSucceeds(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)
	f.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGatewayTimeout, "provider timed out")

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := f.svc.Approve(context.Background(), operator, request.ID); err == nil {
		t.Fatalf("first approve should fail")
	}

	f.gateway.refundErr = nil
	approved, err := f.svc.Approve(context.Background(), operator, request.ID)
	if err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
	if !approved.HasRefund() {
		t.Fatalf("retry must issue the refund")
	}
}

func TestApproveRetriesTransientRefundFailureOnce(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)
	f.gateway.transientErr = pkgerrors.New(pkgerrors.CodeGatewayTimeout, "provider timed out")
	f.gateway.failuresLeft = 1

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	approved, err := f.svc.Approve(context.Background(), operator, request.ID)
	if err != nil {
		t.Fatalf("one transient failure must be absorbed: %v", err)
	}
	if !approved.HasRefund() {
		t.Fatalf("refund must be issued on the second attempt")
	}
	if f.gateway.refundCalls() != 2 {
		t.Fatalf("expected two refund calls, got %d", f.gateway.refundCalls())
	}
	if f.orders.refundStatus(order.ID) != enums.RefundStatusRefunded {
		t.Fatalf("order mirror must be refunded")
	}
}

func TestApproveDoesNotRetryTerminalRefundFailure(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)
	f.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGatewayRejected, "refund not allowed for this payment")

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := f.svc.Approve(context.Background(), operator, request.ID); err == nil {
		t.Fatalf("terminal gateway failure must surface")
	}
	if f.gateway.refundCalls() != 1 {
		t.Fatalf("terminal failures must not be retried, got %d calls", f.gateway.refundCalls())
	}
}

func TestApproveShortCircuitsAfterRefund(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := f.svc.Approve(context.Background(), operator, request.ID); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	again, err := f.svc.Approve(context.Background(), operator, request.ID)
	if err != nil {
		t.Fatalf("replayed approve: %v", err)
	}
	if !again.HasRefund() {
		t.Fatalf("replay must return the recorded refund")
	}
	if f.gateway.refundCalls() != 1 {
		t.Fatalf("replay must not call the gateway again, got %d calls", f.gateway.refundCalls())
	}
}

func TestConcurrentApprovalsIssueOneRefund(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	const attempts = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicted := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(context.Background(), operator, request.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.As(err).Code() == pkgerrors.CodeConflict:
				conflicted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.gateway.refundCalls() != 1 {
		t.Fatalf("exactly one refund must be issued, got %d", f.gateway.refundCalls())
	}
	if succeeded < 1 {
		t.Fatalf("at least one approval must succeed (got %d success, %d conflict)", succeeded, conflicted)
	}
	if f.announcer.count() != 1 {
		t.Fatalf("exactly one refund event, got %d", f.announcer.count())
	}
}

func TestOrderMirrorWritesUseTransactionHandle(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, err := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := f.svc.Approve(context.Background(), operator, request.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	f.orders.mu.Lock()
	bare, scoped := f.orders.bareRefundWrites, f.orders.txRefundWrites
	f.orders.mu.Unlock()

	if bare != 0 {
		t.Fatalf("%d refund mirror writes ran on the base connection instead of the transaction", bare)
	}
	if scoped < 3 {
		t.Fatalf("expected the requested, approved, and refunded mirror writes inside transactions, got %d", scoped)
	}
}

func TestRejectClosesRequest(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	rejected, err := f.svc.Reject(context.Background(), operator, request.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.ReturnStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if f.gateway.refundCalls() != 0 {
		t.Fatalf("reject must never call the gateway")
	}
	if f.orders.refundStatus(order.ID) != enums.RefundStatusNone {
		t.Fatalf("order mirror must clear on rejection")
	}

	// a rejected request no longer blocks a new one
	if _, err := f.svc.Request(context.Background(), buyer, order.ID, "second attempt"); err != nil {
		t.Fatalf("new request after rejection: %v", err)
	}
}

func TestRejectRequiresPending(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	order := paidOrder(buyerID)
	f := newFixture(t, order)

	buyer := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	request, _ := f.svc.Request(context.Background(), buyer, order.ID, "arrived damaged")

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := f.svc.Approve(context.Background(), operator, request.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Reject(context.Background(), operator, request.ID); pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("approved request must not be rejectable, got %v", err)
	}
}
