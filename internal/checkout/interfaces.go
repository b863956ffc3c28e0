package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
)

// SessionRepository persists the link between Stripe sessions and carts.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error)
	FindByStripeSessionID(ctx context.Context, stripeSessionID string) (*models.CheckoutSession, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
