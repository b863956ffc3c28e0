package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
)

// Repository persists cart aggregates with version-guarded writes.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUserID loads the user's cart with its items.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a fresh cart. A concurrent create for the same user trips the
// unique index and is reported as a version conflict so callers re-read.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	return cart, nil
}

// SaveVersioned persists the cart only if the stored row still carries
// expectedVersion. Items are replaced wholesale; the version bump and the
// item rewrite must share a transaction, so callers bind via WithTx first.
func (r *Repository) SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cart.ID, expectedVersion).
		Updates(map[string]any{
			"total_price_cents": cart.TotalPriceCents,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(cart.Items) > 0 {
		for i := range cart.Items {
			cart.Items[i].CartID = cart.ID
		}
		if err := r.db.WithContext(ctx).Create(&cart.Items).Error; err != nil {
			return err
		}
	}

	cart.Version = expectedVersion + 1
	return nil
}

// EmptyByUserID drops every line from the user's cart but keeps the row, so
// the version counter survives checkout. Missing carts are a no-op.
func (r *Repository) EmptyByUserID(ctx context.Context, userID uuid.UUID) error {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Select("id").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cart.ID).
		Updates(map[string]any{
			"total_price_cents": 0,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Delete(&models.CartItem{}).Error
}
