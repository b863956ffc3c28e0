package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:carts_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	carts := `
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  total_price_cents INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	items := `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  color TEXT,
  size TEXT,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_subtotal_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(carts).Error)
	require.NoError(t, db.Exec(items).Error)
	return db
}

func seedCart(t *testing.T, db *gorm.DB, userID uuid.UUID, version int) *models.Cart {
	t.Helper()

	cart := &models.Cart{
		ID:     uuid.New(),
		UserID: userID,
		Items: []models.CartItem{
			{
				ID:                uuid.New(),
				ProductID:         uuid.New(),
				Quantity:          2,
				UnitPriceCents:    999,
				LineSubtotalCents: 1998,
			},
		},
		TotalPriceCents: 1998,
		Version:         version,
	}
	require.NoError(t, db.Create(cart).Error)
	return cart
}

func TestEmptyByUserIDKeepsRowAndBumpsVersion(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	seeded := seedCart(t, db, userID, 4)

	require.NoError(t, repo.EmptyByUserID(context.Background(), userID))

	found, err := repo.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID, "the cart row must survive checkout")
	assert.Equal(t, 5, found.Version, "emptying counts as a versioned write")
	assert.Empty(t, found.Items)
	assert.Zero(t, found.TotalPriceCents)
}

func TestEmptyByUserIDMissingCartIsNoOp(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.EmptyByUserID(context.Background(), uuid.New()))
}

func TestSaveVersionedRejectsStaleWriter(t *testing.T) {
	db := setupCartTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	seeded := seedCart(t, db, userID, 2)

	stale := *seeded
	err := repo.SaveVersioned(context.Background(), &stale, 1)
	require.ErrorIs(t, err, ErrVersionConflict)

	require.NoError(t, repo.SaveVersioned(context.Background(), seeded, 2))
	assert.Equal(t, 3, seeded.Version)
}
