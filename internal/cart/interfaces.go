package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
)

// ErrVersionConflict signals that a compare-and-swap write lost the race: the
// cart row's version moved between read and write.
var ErrVersionConflict = errors.New("cart version conflict")

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int) error
	EmptyByUserID(ctx context.Context, userID uuid.UUID) error
}
