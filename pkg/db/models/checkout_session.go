package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/auroralabs/storefront-backend/pkg/enums"
	"github.com/auroralabs/storefront-backend/pkg/types"
)

// CheckoutSession links a Stripe checkout session to the cart snapshot that
// initiated it, so confirm/webhook paths can finish the order exactly once.
type CheckoutSession struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	StripeSessionID string                      `gorm:"column:stripe_session_id;not null;uniqueIndex" json:"stripe_session_id"`
	OrderID         *uuid.UUID                  `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	ShippingAddress types.Address               `gorm:"column:shipping_address;type:jsonb;serializer:json" json:"shipping_address"`
	AmountCents     int                         `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Status          enums.CheckoutSessionStatus `gorm:"column:status;not null;default:'open'" json:"status"`
	ExpiresAt       time.Time                   `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
