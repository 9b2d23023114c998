package orders

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/orderflow/internal/payments"
	"github.com/novamart/orderflow/pkg/auth"
	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/pagination"
	"github.com/novamart/orderflow/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

type stubOrderRepo struct {
	byReference map[string]*models.Order
	byID        map[uuid.UUID]*models.Order

	created       []*models.Order
	createErrs    []error
	raceWinner    *models.Order
	statusUpdates []enums.OrderStatus
	updateErr     error
	listRows      []models.Order
	listCursor    string
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		byReference: map[string]*models.Order{},
		byID:        map[uuid.UUID]*models.Order{},
	}
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) OrderRepository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			if s.raceWinner != nil {
				s.byReference[s.raceWinner.PaymentReference] = s.raceWinner
			}
			return nil, err
		}
	}
	saved := *order
	saved.ID = uuid.New()
	s.created = append(s.created, &saved)
	s.byReference[saved.PaymentReference] = &saved
	s.byID[saved.ID] = &saved
	return &saved, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := s.byID[id]; ok {
		clone := *order
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderRepo) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	if order, ok := s.byReference[reference]; ok {
		clone := *order
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return s.listRows, s.listCursor, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statusUpdates = append(s.statusUpdates, status)
	if order, ok := s.byID[id]; ok {
		order.Status = status
	}
	return nil
}

func (s *stubOrderRepo) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status enums.RefundStatus) error {
	if order, ok := s.byID[id]; ok {
		order.RefundStatus = status
	}
	return nil
}

type stubTx struct{}

func (s stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubCarts struct {
	cleared   []string
	converted []uuid.UUID
	clearErr  error
}

func (s *stubCarts) Clear(ctx context.Context, ownerKey string) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = append(s.cleared, ownerKey)
	return nil
}

func (s *stubCarts) MarkConverted(ctx context.Context, cartID uuid.UUID) error {
	s.converted = append(s.converted, cartID)
	return nil
}

type stubAnnouncer struct {
	purchases []*models.Order
}

func (s *stubAnnouncer) PublishPurchase(ctx context.Context, order *models.Order) {
	s.purchases = append(s.purchases, order)
}

func testDraft() OrderDraft {
	buyerID := uuid.New()
	return OrderDraft{
		DraftID:      uuid.New(),
		OwnerKey:     "user:" + buyerID.String(),
		CartID:       uuid.New(),
		BuyerUserID:  &buyerID,
		ContactEmail: "buyer@example.com",
		ContactPhone: "5551234567",
		ShippingAddress: types.Address{
			FullName:    "Jordan Buyer",
			Street:      "1 Main St",
			City:        "Springfield",
			Region:      "IL",
			PostalCode:  "62704",
			CountryCode: "US",
		},
		Currency: enums.CurrencyUSD,
		Items: []DraftItem{
			{ProductID: uuid.New(), Title: "Widget", UnitPriceCents: 10000, Quantity: 2, WeightGrams: 500},
		},
		SubtotalCents:  20000,
		TaxRateBPS:     1600,
		TaxCents:       4000,
		ShippingCents:  5000,
		TotalCents:     29000,
		ShippingMethod: enums.ShippingMethodStandard,
		ShippingZone:   "domestic",
		PaymentMethod:  enums.PaymentMethodCard,
	}
}

func succeededResult(reference string) payments.PaymentResult {
	return payments.PaymentResult{
		Status:            enums.PaymentStatusSucceeded,
		ProviderReference: reference,
	}
}

func newTestService(t *testing.T, repo *stubOrderRepo, carts *stubCarts, announcer *stubAnnouncer) Service {
	t.Helper()
	svc, err := NewService(repo, stubTx{}, carts, announcer, testLogger(), nil, 2)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func TestCommitPersistsOrderFromDraft(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	carts := &stubCarts{}
	announcer := &stubAnnouncer{}
	svc := newTestService(t, repo, carts, announcer)

	draft := testDraft()
	order, err := svc.Commit(context.Background(), draft, succeededResult("pi_abc123"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected status paid, got %s", order.Status)
	}
	if order.TotalCents != draft.TotalCents || order.TaxCents != draft.TaxCents {
		t.Fatalf("price fields not copied verbatim: %+v", order)
	}
	if order.PaymentReference != "pi_abc123" {
		t.Fatalf("unexpected payment reference %q", order.PaymentReference)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Fatalf("expected draft items on order, got %+v", order.Items)
	}
	if len(carts.converted) != 1 || carts.converted[0] != draft.CartID {
		t.Fatalf("expected cart marked converted")
	}
	if len(carts.cleared) != 1 || carts.cleared[0] != draft.OwnerKey {
		t.Fatalf("expected cart cleared for owner")
	}
	if len(announcer.purchases) != 1 {
		t.Fatalf("expected one purchase event, got %d", len(announcer.purchases))
	}
}

func TestCommitRejectsFailedPayment(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	result := payments.PaymentResult{Status: enums.PaymentStatusFailed}
	_, err := svc.Commit(context.Background(), testDraft(), result)
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("failed payment must never produce an order")
	}
}

func TestCommitRejectsSucceededWithoutReference(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	result := payments.PaymentResult{Status: enums.PaymentStatusSucceeded}
	_, err := svc.Commit(context.Background(), testDraft(), result)
	if pkgerrors.As(err).Code() != pkgerrors.CodeInconsistent {
		t.Fatalf("expected inconsistent state error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("no order may be created without a provider reference")
	}
}

func TestCommitIsIdempotentOnPaymentReference(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	draft := testDraft()
	first, err := svc.Commit(context.Background(), draft, succeededResult("pi_once"))
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	second, err := svc.Commit(context.Background(), draft, succeededResult("pi_once"))
	if err != nil {
		t.Fatalf("replayed commit: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("replay returned a different order: %s vs %s", first.ID, second.ID)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected exactly one persisted order, got %d", len(repo.created))
	}
}

func TestCommitRecoversFromUniqueViolationRace(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	// the winner's row becomes visible only once our insert collides
	winner := &models.Order{ID: uuid.New(), PaymentReference: "pi_race", Status: enums.OrderStatusPaid}
	repo.raceWinner = winner
	repo.createErrs = []error{fmt.Errorf(`duplicate key value violates unique constraint "uq_orders_payment_reference"`)}

	order, err := svc.Commit(context.Background(), testDraft(), succeededResult("pi_race"))
	if err != nil {
		t.Fatalf("losing the race should resolve to the winner's order: %v", err)
	}
	if order.ID != winner.ID {
		t.Fatalf("expected the winner's order back, got %s", order.ID)
	}
}

func TestCommitRetriesTransientStoreFailure(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	repo.createErrs = []error{fmt.Errorf("connection reset"), nil}
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	order, err := svc.Commit(context.Background(), testDraft(), succeededResult("pi_retry"))
	if err != nil {
		t.Fatalf("commit after transient failure: %v", err)
	}
	if order == nil || len(repo.created) != 1 {
		t.Fatalf("expected a single order after retry")
	}
}

func TestCommitExhaustedRetriesReturnsStoreUnavailable(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	repo.createErrs = []error{
		fmt.Errorf("connection reset"),
		fmt.Errorf("connection reset"),
		fmt.Errorf("connection reset"),
		fmt.Errorf("connection reset"),
	}
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	_, err := svc.Commit(context.Background(), testDraft(), succeededResult("pi_down"))
	if pkgerrors.As(err).Code() != pkgerrors.CodeStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("no order may exist after exhausted retries")
	}
}

func TestCommitSurvivesCartClearFailure(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	carts := &stubCarts{clearErr: fmt.Errorf("redis unavailable")}
	announcer := &stubAnnouncer{}
	svc := newTestService(t, repo, carts, announcer)

	order, err := svc.Commit(context.Background(), testDraft(), succeededResult("pi_cartfail"))
	if err != nil {
		t.Fatalf("cart clear failure must not fail commit: %v", err)
	}
	if order == nil {
		t.Fatalf("expected a committed order")
	}
	if len(announcer.purchases) != 1 {
		t.Fatalf("purchase event still expected")
	}
}

func TestGetByIDEnforcesOwnership(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	buyerID := uuid.New()
	order := &models.Order{ID: uuid.New(), BuyerUserID: &buyerID, Status: enums.OrderStatusPaid}
	repo.byID[order.ID] = order
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	owner := auth.Actor{UserID: buyerID, Role: enums.ActorRoleBuyer}
	if _, err := svc.GetByID(context.Background(), owner, order.ID); err != nil {
		t.Fatalf("owner should read own order: %v", err)
	}

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	if _, err := svc.GetByID(context.Background(), stranger, order.ID); pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for another buyer, got %v", err)
	}

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := svc.GetByID(context.Background(), operator, order.ID); err != nil {
		t.Fatalf("operator should read any order: %v", err)
	}
}

func TestGetByIDUnknownOrder(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}
	if _, err := svc.GetByID(context.Background(), operator, uuid.New()); pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    enums.OrderStatus
		to      enums.OrderStatus
		wantErr pkgerrors.Code
	}{
		{"paid to shipped", enums.OrderStatusPaid, enums.OrderStatusShipped, ""},
		{"paid to cancelled", enums.OrderStatusPaid, enums.OrderStatusCancelled, ""},
		{"shipped to delivered", enums.OrderStatusShipped, enums.OrderStatusDelivered, ""},
		{"shipped to cancelled", enums.OrderStatusShipped, enums.OrderStatusCancelled, ""},
		{"paid to delivered skips shipped", enums.OrderStatusPaid, enums.OrderStatusDelivered, pkgerrors.CodeStateConflict},
		{"delivered is terminal", enums.OrderStatusDelivered, enums.OrderStatusCancelled, pkgerrors.CodeStateConflict},
		{"cancelled is terminal", enums.OrderStatusCancelled, enums.OrderStatusShipped, pkgerrors.CodeStateConflict},
		{"backwards move rejected", enums.OrderStatusShipped, enums.OrderStatusPaid, pkgerrors.CodeStateConflict},
	}

	operator := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleOperator}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := newStubOrderRepo()
			order := &models.Order{ID: uuid.New(), Status: tc.from}
			repo.byID[order.ID] = order
			svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

			updated, err := svc.Transition(context.Background(), operator, order.ID, tc.to)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected transition to succeed: %v", err)
				}
				if updated.Status != tc.to {
					t.Fatalf("expected status %s, got %s", tc.to, updated.Status)
				}
				return
			}
			if pkgerrors.As(err).Code() != tc.wantErr {
				t.Fatalf("expected %s, got %v", tc.wantErr, err)
			}
			if len(repo.statusUpdates) != 0 {
				t.Fatalf("rejected transition must not touch the store")
			}
		})
	}
}

func TestTransitionIsOperatorOnly(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid}
	repo.byID[order.ID] = order
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	buyer := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	_, err := svc.Transition(context.Background(), buyer, order.ID, enums.OrderStatusShipped)
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for buyer, got %v", err)
	}
}

func TestListByBuyerRequiresIdentity(t *testing.T) {
	t.Parallel()

	repo := newStubOrderRepo()
	repo.listRows = []models.Order{{ID: uuid.New()}}
	svc := newTestService(t, repo, &stubCarts{}, &stubAnnouncer{})

	anonymous := auth.Actor{Role: enums.ActorRoleBuyer}
	if _, _, err := svc.ListByBuyer(context.Background(), anonymous, pagination.Params{}); pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for anonymous list, got %v", err)
	}

	buyer := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	rows, _, err := svc.ListByBuyer(context.Background(), buyer, pagination.Params{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
}
