package orders

import (
	"github.com/google/uuid"

	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	"github.com/novamart/orderflow/pkg/types"
)

// OrderDraft is the immutable, priced snapshot produced when checkout is
// committed. Price fields are frozen here and copied verbatim into the Order;
// they are never recomputed from the live cart.
type OrderDraft struct {
	DraftID         uuid.UUID            `json:"draft_id"`
	OwnerKey        string               `json:"owner_key"`
	CartID          uuid.UUID            `json:"cart_id"`
	BuyerUserID     *uuid.UUID           `json:"buyer_user_id,omitempty"`
	ContactEmail    string               `json:"contact_email"`
	ContactPhone    string               `json:"contact_phone"`
	ShippingAddress types.Address        `json:"shipping_address"`
	Currency        enums.Currency       `json:"currency"`
	Items           []DraftItem          `json:"items"`
	SubtotalCents   int                  `json:"subtotal_cents"`
	TaxRateBPS      int                  `json:"tax_rate_bps"`
	TaxCents        int                  `json:"tax_cents"`
	ShippingCents   int                  `json:"shipping_cents"`
	TotalCents      int                  `json:"total_cents"`
	ShippingMethod  enums.ShippingMethod `json:"shipping_method"`
	ShippingZone    string               `json:"shipping_zone"`
	PaymentMethod   enums.PaymentMethod  `json:"payment_method"`
}

// DraftItem is one frozen cart line inside a draft.
type DraftItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	VariantID      *string   `json:"variant_id,omitempty"`
	Title          string    `json:"title"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	WeightGrams    int       `json:"weight_grams"`
}

// IsGuest reports whether the draft belongs to an unauthenticated buyer.
func (d OrderDraft) IsGuest() bool {
	return d.BuyerUserID == nil
}

// SnapshotFromCart freezes the cart lines into draft items.
func SnapshotFromCart(items []models.CartItem) []DraftItem {
	snapshot := make([]DraftItem, 0, len(items))
	for _, item := range items {
		snapshot = append(snapshot, DraftItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Title:          item.Title,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			WeightGrams:    item.WeightGrams,
		})
	}
	return snapshot
}
