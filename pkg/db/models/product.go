package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is a catalog listing. Stock is the single source of truth for
// available quantity and is only ever mutated through atomic increments.
type Product struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU         string         `gorm:"column:sku;not null;uniqueIndex" json:"sku"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description *string        `gorm:"column:description" json:"description,omitempty"`
	PriceCents  int            `gorm:"column:price_cents;not null" json:"price_cents"`
	Stock       int            `gorm:"column:stock;not null;default:0" json:"stock"`
	Colors      pq.StringArray `gorm:"column:colors;type:text[]" json:"colors"`
	Sizes       pq.StringArray `gorm:"column:sizes;type:text[]" json:"sizes"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
