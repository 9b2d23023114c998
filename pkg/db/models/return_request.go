package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/novamart/orderflow/pkg/enums"
)

// ReturnRequest is a buyer's request to return a paid order. At most one
// non-rejected request may exist per order; the partial unique index in the
// migrations enforces it. Refund columns are populated only after the gateway
// confirmed the refund.
type ReturnRequest struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	RequesterID       uuid.UUID          `gorm:"column:requester_id;type:uuid;not null"`
	Reason            string             `gorm:"column:reason;not null"`
	Status            enums.ReturnStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RefundProviderID  *string            `gorm:"column:refund_provider_id"`
	RefundAmountCents *int               `gorm:"column:refund_amount_cents"`
	FailureMessage    *string            `gorm:"column:failure_message"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// HasRefund reports whether a confirmed refund result is attached.
func (r ReturnRequest) HasRefund() bool {
	return r.RefundProviderID != nil && *r.RefundProviderID != ""
}
