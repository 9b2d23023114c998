package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/novamart/orderflow/pkg/enums"
)

// CartRecord is the durable buyer cart. OwnerKey is the authenticated user id
// or the guest session token; one active cart exists per owner.
type CartRecord struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKey  string           `gorm:"column:owner_key;not null"`
	Status    enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (CartRecord) TableName() string {
	return "carts"
}
