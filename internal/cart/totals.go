package cart

import (
	"github.com/shopspring/decimal"

	"github.com/novamart/orderflow/pkg/db/models"
)

// Totals is the priced breakdown of a cart for a given tax rate and shipping
// cost. Tax applies to the subtotal and to shipping independently; both parts
// are rounded to the minor unit before summing.
type Totals struct {
	SubtotalCents      int
	TaxOnSubtotalCents int
	TaxOnShippingCents int
	TaxCents           int
	ShippingCents      int
	TotalCents         int
}

// Subtotal recomputes the item sum. It is never read from a stored column.
func Subtotal(items []models.CartItem) int {
	sum := 0
	for _, item := range items {
		sum += item.LineSubtotalCents()
	}
	return sum
}

// ComputeTotals prices a cart against an injected tax rate (basis points) and
// shipping cost. The aggregator knows nothing about tax or shipping policy.
func ComputeTotals(items []models.CartItem, taxRateBPS int, shippingCents int) Totals {
	subtotal := Subtotal(items)
	taxOnSubtotal := taxCents(subtotal, taxRateBPS)
	taxOnShipping := taxCents(shippingCents, taxRateBPS)

	return Totals{
		SubtotalCents:      subtotal,
		TaxOnSubtotalCents: taxOnSubtotal,
		TaxOnShippingCents: taxOnShipping,
		TaxCents:           taxOnSubtotal + taxOnShipping,
		ShippingCents:      shippingCents,
		TotalCents:         subtotal + taxOnSubtotal + taxOnShipping + shippingCents,
	}
}

func taxCents(amountCents, taxRateBPS int) int {
	if amountCents <= 0 || taxRateBPS <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(taxRateBPS)).Div(decimal.NewFromInt(10000))
	return int(decimal.NewFromInt(int64(amountCents)).Mul(rate).Round(0).IntPart())
}
