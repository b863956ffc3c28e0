package orders

import (
	"github.com/auroralabs/storefront-backend/pkg/db/models"
)

// OrderList is one page of a user's order history, newest first.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor *string        `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}
