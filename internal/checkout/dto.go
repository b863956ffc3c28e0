package checkout

import (
	"github.com/google/uuid"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
	"github.com/auroralabs/storefront-backend/pkg/enums"
	"github.com/auroralabs/storefront-backend/pkg/types"
)

// OrderItemInput is one client-declared line in a direct order.
type OrderItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Color     *string   `json:"color,omitempty"`
	Size      *string   `json:"size,omitempty"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// CreateOrderInput carries the direct-order payload. Prices are never taken
// from it; the client total is only compared against the server recomputation.
type CreateOrderInput struct {
	Items            []OrderItemInput    `json:"items" validate:"required,min=1,dive"`
	ShippingAddress  types.Address       `json:"shipping_address" validate:"required"`
	BillingAddress   *types.Address      `json:"billing_address,omitempty"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method" validate:"required"`
	ClientTotalCents int                 `json:"total_cents" validate:"required,min=1"`
}

// InitiateInput starts a Stripe-hosted checkout for the user's current cart.
type InitiateInput struct {
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

// InitiateResult points the client at the hosted payment page.
type InitiateResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ConfirmResult returns the order created for a paid session.
type ConfirmResult struct {
	Order *models.Order `json:"order"`
}
