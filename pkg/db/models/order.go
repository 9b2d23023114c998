package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/novamart/orderflow/pkg/enums"
	"github.com/novamart/orderflow/pkg/types"
)

// Order is the durable, priced record produced by a successful commit. Price
// fields are copied verbatim from the draft at commit time and never
// recomputed. Status moves only through the defined forward transitions;
// refund progress lives in the RefundStatus side channel.
type Order struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DraftID          uuid.UUID            `gorm:"column:draft_id;type:uuid;not null"`
	BuyerUserID      *uuid.UUID           `gorm:"column:buyer_user_id;type:uuid"`
	ContactEmail     string               `gorm:"column:contact_email;not null"`
	ContactPhone     string               `gorm:"column:contact_phone;not null"`
	ShippingAddress  types.Address        `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Currency         enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents    int                  `gorm:"column:subtotal_cents;not null"`
	TaxRateBPS       int                  `gorm:"column:tax_rate_bps;not null"`
	TaxCents         int                  `gorm:"column:tax_cents;not null"`
	ShippingCents    int                  `gorm:"column:shipping_cents;not null"`
	TotalCents       int                  `gorm:"column:total_cents;not null"`
	ShippingMethod   enums.ShippingMethod `gorm:"column:shipping_method;type:text;not null"`
	ShippingZone     string               `gorm:"column:shipping_zone;not null;default:''"`
	Status           enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	RefundStatus     enums.RefundStatus   `gorm:"column:refund_status;type:text;not null;default:'none'"`
	PaymentMethod    enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null"`
	PaymentReference string               `gorm:"column:payment_reference;not null;uniqueIndex:uq_orders_payment_reference"`
	Items            []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsGuest reports whether the order was placed without an authenticated buyer.
func (o Order) IsGuest() bool {
	return o.BuyerUserID == nil
}
