package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/auroralabs/storefront-backend/pkg/enums"
	"github.com/auroralabs/storefront-backend/pkg/types"
)

// Order is an immutable purchase snapshot. Only Status and PaymentStatus may
// change after creation; line prices are frozen at order time.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Items           []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json" json:"shipping_address"`
	BillingAddress  types.Address       `gorm:"column:billing_address;type:jsonb;serializer:json" json:"billing_address"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;not null" json:"payment_method"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0" json:"shipping_cents"`
	TotalCents      int                 `gorm:"column:total_cents;not null" json:"total_cents"`
	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'" json:"status"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'" json:"payment_status"`
	PaymentRef      *string             `gorm:"column:payment_ref;index" json:"payment_ref,omitempty"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
