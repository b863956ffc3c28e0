package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the per-user aggregate of pending line items. Version is the
// optimistic-concurrency token: every successful persist bumps it by one, and
// writers compare-and-swap on it rather than locking the row.
type Cart struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Items           []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	TotalPriceCents int        `gorm:"column:total_price_cents;not null;default:0" json:"total_price_cents"`
	Version         int        `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// RecomputeTotal rebuilds the derived total from the line items. Callers must
// invoke it before every persist; totals are never trusted from the outside.
func (c *Cart) RecomputeTotal() {
	total := 0
	for i := range c.Items {
		c.Items[i].LineSubtotalCents = c.Items[i].UnitPriceCents * c.Items[i].Quantity
		total += c.Items[i].LineSubtotalCents
	}
	c.TotalPriceCents = total
}

// FindItem returns the line matching (product, color, size), or nil.
func (c *Cart) FindItem(productID uuid.UUID, color, size *string) *CartItem {
	for i := range c.Items {
		if c.Items[i].Matches(productID, color, size) {
			return &c.Items[i]
		}
	}
	return nil
}
