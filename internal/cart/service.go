package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart mutation and pricing operations. The owner key is the
// authenticated user id or the guest session token.
type Service interface {
	GetActiveCart(ctx context.Context, ownerKey string) (*models.CartRecord, error)
	AddItem(ctx context.Context, ownerKey string, input AddItemInput) (*models.CartRecord, error)
	RemoveItem(ctx context.Context, ownerKey string, itemID uuid.UUID) (*models.CartRecord, error)
	SetQuantity(ctx context.Context, ownerKey string, itemID uuid.UUID, quantity int) (*models.CartRecord, error)
	Totals(ctx context.Context, ownerKey string, taxRateBPS, shippingCents int) (*Totals, error)
	Clear(ctx context.Context, ownerKey string) error
	MarkConverted(ctx context.Context, cartID uuid.UUID) error
}

type service struct {
	repo CartRepository
	tx   txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// AddItemInput captures one line added to the cart.
type AddItemInput struct {
	ProductID      uuid.UUID
	VariantID      *string
	Title          string
	UnitPriceCents int
	Quantity       int
	WeightGrams    int
}

// GetActiveCart loads the owner's active cart, creating an empty one on first
// touch.
func (s *service) GetActiveCart(ctx context.Context, ownerKey string) (*models.CartRecord, error) {
	if strings.TrimSpace(ownerKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}

	record, err := s.repo.FindActiveByOwner(ctx, ownerKey)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading cart")
	}

	created, err := s.repo.Create(ctx, &models.CartRecord{OwnerKey: ownerKey, Status: enums.CartStatusActive})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "creating cart")
	}
	return created, nil
}

// AddItem appends a line to the owner's active cart. Adding a product/variant
// pair already present merges into the existing line's quantity.
func (s *service) AddItem(ctx context.Context, ownerKey string, input AddItemInput) (*models.CartRecord, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item title is required")
	}
	if input.UnitPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must be non-negative")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer")
	}
	if input.WeightGrams < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be non-negative")
	}

	record, err := s.GetActiveCart(ctx, ownerKey)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if existing := findLine(record.Items, input.ProductID, input.VariantID); existing != nil {
			return repo.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+input.Quantity)
		}
		return repo.CreateItem(ctx, &models.CartItem{
			CartID:         record.ID,
			ProductID:      input.ProductID,
			VariantID:      input.VariantID,
			Title:          input.Title,
			UnitPriceCents: input.UnitPriceCents,
			Quantity:       input.Quantity,
			WeightGrams:    input.WeightGrams,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "adding cart item")
	}

	return s.reload(ctx, ownerKey)
}

// RemoveItem deletes a line from the owner's active cart.
func (s *service) RemoveItem(ctx context.Context, ownerKey string, itemID uuid.UUID) (*models.CartRecord, error) {
	record, err := s.requireActiveCart(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if findLineByID(record.Items, itemID) == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "removing cart item")
	}
	return s.reload(ctx, ownerKey)
}

// SetQuantity replaces a line's quantity. Zero removes the line; negative
// values are rejected.
func (s *service) SetQuantity(ctx context.Context, ownerKey string, itemID uuid.UUID, quantity int) (*models.CartRecord, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, ownerKey, itemID)
	}

	record, err := s.requireActiveCart(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if findLineByID(record.Items, itemID) == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	if err := s.repo.UpdateItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "updating cart quantity")
	}
	return s.reload(ctx, ownerKey)
}

// Totals prices the owner's active cart with the injected tax rate and
// shipping cost.
func (s *service) Totals(ctx context.Context, ownerKey string, taxRateBPS, shippingCents int) (*Totals, error) {
	record, err := s.requireActiveCart(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	totals := ComputeTotals(record.Items, taxRateBPS, shippingCents)
	return &totals, nil
}

// Clear drops every line from the owner's active cart. Used by the commit
// path as a best-effort cleanup.
func (s *service) Clear(ctx context.Context, ownerKey string) error {
	record, err := s.repo.FindActiveByOwner(ctx, ownerKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading cart")
	}
	if err := s.repo.DeleteItemsByCart(ctx, record.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "clearing cart")
	}
	return nil
}

// MarkConverted flips a cart out of the active state after its order exists.
func (s *service) MarkConverted(ctx context.Context, cartID uuid.UUID) error {
	if err := s.repo.UpdateStatus(ctx, cartID, enums.CartStatusConverted); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "marking cart converted")
	}
	return nil
}

func (s *service) requireActiveCart(ctx context.Context, ownerKey string) (*models.CartRecord, error) {
	if strings.TrimSpace(ownerKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	record, err := s.repo.FindActiveByOwner(ctx, ownerKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading cart")
	}
	return record, nil
}

func (s *service) reload(ctx context.Context, ownerKey string) (*models.CartRecord, error) {
	record, err := s.repo.FindActiveByOwner(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "reloading cart")
	}
	return record, nil
}

func findLine(items []models.CartItem, productID uuid.UUID, variantID *string) *models.CartItem {
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		if variantValue(items[i].VariantID) == variantValue(variantID) {
			return &items[i]
		}
	}
	return nil
}

func findLineByID(items []models.CartItem, itemID uuid.UUID) *models.CartItem {
	for i := range items {
		if items[i].ID == itemID {
			return &items[i]
		}
	}
	return nil
}

func variantValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
