package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
	"github.com/auroralabs/storefront-backend/pkg/enums"
	"github.com/auroralabs/storefront-backend/pkg/pagination"
	"github.com/auroralabs/storefront-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  shipping_address TEXT,
  billing_address TEXT,
  payment_method TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  payment_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	lineItems := `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  title TEXT NOT NULL,
  color TEXT,
  size TEXT,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_subtotal_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(lineItems).Error)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, createdAt time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:     uuid.New(),
		UserID: userID,
		Items: []models.OrderLineItem{
			{
				ID:                uuid.New(),
				ProductID:         uuid.New(),
				Title:             "Crew Neck Tee",
				Quantity:          1,
				UnitPriceCents:    1999,
				LineSubtotalCents: 1999,
			},
		},
		ShippingAddress: types.Address{Name: "A Shopper", Line1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN"},
		BillingAddress:  types.Address{Name: "A Shopper", Line1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN"},
		PaymentMethod:   enums.PaymentMethodCOD,
		SubtotalCents:   1999,
		TotalCents:      1999,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestListByUserPaginatesNewestFirst(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	oldest := seedOrder(t, db, userID, base)
	middle := seedOrder(t, db, userID, base.Add(time.Hour))
	newest := seedOrder(t, db, userID, base.Add(2*time.Hour))
	seedOrder(t, db, uuid.New(), base.Add(3*time.Hour)) // other user, excluded

	page, err := repo.ListByUser(context.Background(), userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, newest.ID, page.Orders[0].ID)
	assert.Equal(t, middle.ID, page.Orders[1].ID)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	require.Len(t, page.Orders[0].Items, 1)

	rest, err := repo.ListByUser(context.Background(), userID, pagination.Params{Limit: 2, Cursor: *page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Equal(t, oldest.ID, rest.Orders[0].ID)
	assert.False(t, rest.HasMore)
	assert.Nil(t, rest.NextCursor)
}

func TestListByUserRejectsGarbageCursor(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	_, err := repo.ListByUser(context.Background(), uuid.New(), pagination.Params{Cursor: "not-a-cursor"})
	require.Error(t, err)
}

func TestFindForUserScopesOwnership(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	order := seedOrder(t, db, userID, time.Now().UTC())

	found, err := repo.FindForUser(context.Background(), order.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindForUser(context.Background(), order.ID, uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFindByPaymentRef(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, uuid.New(), time.Now().UTC())

	ref := "pi_test_" + uuid.NewString()[:8]
	require.NoError(t, repo.UpdateStatus(context.Background(), order.ID, map[string]any{"payment_ref": ref}))

	found, err := repo.FindByPaymentRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByPaymentRef(context.Background(), "pi_unknown")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateStatusPersists(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, uuid.New(), time.Now().UTC())

	require.NoError(t, repo.UpdateStatus(context.Background(), order.ID, map[string]any{
		"status":         enums.OrderStatusProcessing,
		"payment_status": enums.PaymentStatusPaid,
	}))

	found, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, found.Status)
	assert.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
}
