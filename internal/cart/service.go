package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
)

const (
	// MaxQuantityPerItem caps how many units of one variant a cart may hold.
	MaxQuantityPerItem = 5

	maxWriteAttempts = 3
	retryBaseBackoff = 50 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// Service exposes cart mutation operations. Every write runs through a
// version-checked persist with bounded retry, so concurrent mutations from
// multiple devices converge without losing either side's change.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID uuid.UUID, input UpdateQuantityInput) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, input RemoveItemInput) (*models.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Sync(ctx context.Context, userID uuid.UUID, input SyncInput) (*models.Cart, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

// AddItemInput identifies a product variant and how many units to add.
type AddItemInput struct {
	ProductID uuid.UUID
	Color     *string
	Size      *string
	Quantity  int
}

// UpdateQuantityInput sets the absolute quantity for an existing line.
// Quantity zero removes the line.
type UpdateQuantityInput struct {
	ProductID uuid.UUID
	Color     *string
	Size      *string
	Quantity  int
}

// RemoveItemInput identifies the line to drop.
type RemoveItemInput struct {
	ProductID uuid.UUID
	Color     *string
	Size      *string
}

// SyncInput replaces the entire cart with the client's local snapshot.
type SyncInput struct {
	Items []AddItemInput
}

// GetOrCreate returns the user's cart, creating an empty one on first use.
func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cart, err := s.repo.FindByUserID(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		created, createErr := s.repo.Create(ctx, &models.Cart{UserID: userID})
		if createErr == nil {
			return created, nil
		}
		// lost the create race; the next read picks up the winner's row
		if errors.Is(createErr, ErrVersionConflict) {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create cart")
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently")
}

// AddItem merges the requested units into the matching line, or appends a new
// line priced from the current catalog snapshot.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing quantity")
	}
	if input.Quantity > MaxQuantityPerItem {
		return nil, quantityLimitError()
	}

	product, err := s.loadSellableProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if err := validateVariant(product, input.Color, input.Size); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		if line := cart.FindItem(input.ProductID, input.Color, input.Size); line != nil {
			next := line.Quantity + input.Quantity
			if next > MaxQuantityPerItem {
				return quantityLimitError()
			}
			if next > product.Stock {
				return insufficientStockError(product.ID, product.Stock)
			}
			// the merged line keeps the price snapshot from its first add
			line.Quantity = next
			return nil
		}
		if input.Quantity > product.Stock {
			return insufficientStockError(product.ID, product.Stock)
		}
		cart.Items = append(cart.Items, models.CartItem{
			ProductID:      product.ID,
			Color:          input.Color,
			Size:           input.Size,
			Quantity:       input.Quantity,
			UnitPriceCents: product.PriceCents,
		})
		return nil
	})
}

// UpdateItemQuantity sets the absolute quantity of an existing line; zero
// removes it.
func (s *service) UpdateItemQuantity(ctx context.Context, userID uuid.UUID, input UpdateQuantityInput) (*models.Cart, error) {
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-negative")
	}
	if input.Quantity > MaxQuantityPerItem {
		return nil, quantityLimitError()
	}

	var stock int
	if input.Quantity > 0 {
		product, err := s.loadSellableProduct(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		stock = product.Stock
	}

	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		line := cart.FindItem(input.ProductID, input.Color, input.Size)
		if line == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if input.Quantity == 0 {
			removeLine(cart, input.ProductID, input.Color, input.Size)
			return nil
		}
		if input.Quantity > stock {
			return insufficientStockError(input.ProductID, stock)
		}
		line.Quantity = input.Quantity
		return nil
	})
}

// RemoveItem drops the matching line from the cart.
func (s *service) RemoveItem(ctx context.Context, userID uuid.UUID, input RemoveItemInput) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		if cart.FindItem(input.ProductID, input.Color, input.Size) == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		removeLine(cart, input.ProductID, input.Color, input.Size)
		return nil
	})
}

// Clear empties the cart, keeping the row (and its version history) alive.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		cart.Items = nil
		return nil
	})
}

// Sync replaces the server cart with the client's local snapshot, re-pricing
// every line from the catalog. Quantities above the per-item cap are clamped
// rather than rejected so a stale device can still converge.
func (s *service) Sync(ctx context.Context, userID uuid.UUID, input SyncInput) (*models.Cart, error) {
	ids := make([]uuid.UUID, 0, len(input.Items))
	seen := map[uuid.UUID]struct{}{}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing quantity")
		}
		if _, ok := seen[item.ProductID]; !ok {
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}

	catalog := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		rows, err := s.products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		for _, p := range rows {
			catalog[p.ID] = p
		}
	}

	// enumerate every unresolvable product so the client can drop them all in
	// one pass instead of retrying line by line
	unavailable := []string{}
	for _, id := range ids {
		product, ok := catalog[id]
		if !ok || !product.IsActive || product.Stock < 1 {
			unavailable = append(unavailable, id.String())
		}
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products unavailable").
			WithDetails(map[string]any{"product_ids": unavailable})
	}

	lines := make([]models.CartItem, 0, len(input.Items))
	for _, item := range input.Items {
		product := catalog[item.ProductID]
		if err := validateVariant(&product, item.Color, item.Size); err != nil {
			return nil, err
		}
		qty := item.Quantity
		if qty > MaxQuantityPerItem {
			qty = MaxQuantityPerItem
		}
		if qty > product.Stock {
			qty = product.Stock
		}
		lines = append(lines, models.CartItem{
			ProductID:      product.ID,
			Color:          item.Color,
			Size:           item.Size,
			Quantity:       qty,
			UnitPriceCents: product.PriceCents,
		})
	}

	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		merged := make([]models.CartItem, 0, len(lines))
		for _, line := range lines {
			appended := false
			for i := range merged {
				if merged[i].Matches(line.ProductID, line.Color, line.Size) {
					next := merged[i].Quantity + line.Quantity
					if next > MaxQuantityPerItem {
						next = MaxQuantityPerItem
					}
					// duplicate client lines merge, but never past stock
					if stock := catalog[line.ProductID].Stock; next > stock {
						next = stock
					}
					merged[i].Quantity = next
					appended = true
					break
				}
			}
			if !appended {
				merged = append(merged, line)
			}
		}
		cart.Items = merged
		return nil
	})
}

// mutate loads the cart, applies fn, and persists with a version guard.
// Version conflicts retry with a doubling backoff; exhaustion surfaces as a
// CONFLICT the client may replay.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, fn func(cart *models.Cart) error) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	backoff := retryBaseBackoff
	for attempt := 1; ; attempt++ {
		cart, err := s.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		if err := fn(cart); err != nil {
			return nil, err
		}
		cart.RecomputeTotal()

		expected := cart.Version
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).SaveVersioned(ctx, cart, expected)
		})
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
		}
		if attempt >= maxWriteAttempts {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *service) loadSellableProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func validateVariant(product *models.Product, color, size *string) error {
	if color != nil && *color != "" && !contains(product.Colors, *color) {
		return pkgerrors.New(pkgerrors.CodeValidation, "color not offered for this product").
			WithDetails(map[string]any{"color": *color})
	}
	if size != nil && *size != "" && !contains(product.Sizes, *size) {
		return pkgerrors.New(pkgerrors.CodeValidation, "size not offered for this product").
			WithDetails(map[string]any{"size": *size})
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func removeLine(cart *models.Cart, productID uuid.UUID, color, size *string) {
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if !item.Matches(productID, color, size) {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
}

func insufficientStockError(productID uuid.UUID, available int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
		WithDetails(map[string]any{"product_id": productID.String(), "available": available})
}

func quantityLimitError() error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity limited to %d per item", MaxQuantityPerItem)).
		WithDetails(map[string]any{"max_quantity": MaxQuantityPerItem})
}
