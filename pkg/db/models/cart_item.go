package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one (product, variant) line inside a cart. UnitPriceCents is a
// snapshot captured when the line was added, not a live catalog reference.
type CartItem struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID            uuid.UUID `gorm:"column:cart_id;type:uuid;not null" json:"cart_id"`
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Color             *string   `gorm:"column:color" json:"color,omitempty"`
	Size              *string   `gorm:"column:size" json:"size,omitempty"`
	Quantity          int       `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceCents    int       `gorm:"column:unit_price_cents;not null" json:"unit_price_cents"`
	LineSubtotalCents int       `gorm:"column:line_subtotal_cents;not null" json:"line_subtotal_cents"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Matches reports whether the line refers to the same (product, color, size)
// combination. Nil and empty variant selectors are equivalent.
func (i CartItem) Matches(productID uuid.UUID, color, size *string) bool {
	return i.ProductID == productID &&
		variantEqual(i.Color, color) &&
		variantEqual(i.Size, size)
}

func variantEqual(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}
