package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem freezes one purchased line. Title and price are snapshots so
// later catalog edits never rewrite order history.
type OrderLineItem struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Title             string    `gorm:"column:title;not null" json:"title"`
	Color             *string   `gorm:"column:color" json:"color,omitempty"`
	Size              *string   `gorm:"column:size" json:"size,omitempty"`
	Quantity          int       `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceCents    int       `gorm:"column:unit_price_cents;not null" json:"unit_price_cents"`
	LineSubtotalCents int       `gorm:"column:line_subtotal_cents;not null" json:"line_subtotal_cents"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
