package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a mutable line in the live cart. Subtotals are always recomputed
// from unit price and quantity, never stored.
type CartItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID         uuid.UUID `gorm:"column:cart_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *string   `gorm:"column:variant_id"`
	Title          string    `gorm:"column:title;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	WeightGrams    int       `gorm:"column:weight_grams;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LineSubtotalCents returns unit price times quantity.
func (c CartItem) LineSubtotalCents() int {
	return c.UnitPriceCents * c.Quantity
}
