package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// memCartRepo mimics the version-guarded persistence contract in memory so
// the retry loop can be exercised without a database.
type memCartRepo struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*models.Cart

	// conflictsBeforeSuccess forces SaveVersioned to fail N times regardless
	// of the actual version, to exercise backoff exhaustion.
	conflictsBeforeSuccess int
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[uuid.UUID]*models.Cart)}
}

func (m *memCartRepo) WithTx(tx *gorm.DB) CartRepository { return m }

func (m *memCartRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneCart(cart), nil
}

func (m *memCartRepo) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.carts[cart.UserID]; exists {
		return nil, ErrVersionConflict
	}
	cart.ID = uuid.New()
	m.carts[cart.UserID] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (m *memCartRepo) SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictsBeforeSuccess > 0 {
		m.conflictsBeforeSuccess--
		return ErrVersionConflict
	}
	stored, ok := m.carts[cart.UserID]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := cloneCart(cart)
	next.Version = expectedVersion + 1
	m.carts[cart.UserID] = next
	cart.Version = next.Version
	return nil
}

func (m *memCartRepo) EmptyByUserID(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[userID]
	if !ok {
		return nil
	}
	cart.Items = nil
	cart.TotalPriceCents = 0
	cart.Version++
	return nil
}

func cloneCart(cart *models.Cart) *models.Cart {
	out := *cart
	out.Items = append([]models.CartItem(nil), cart.Items...)
	return &out
}

type stubProducts struct {
	byID map[uuid.UUID]models.Product
}

func (s *stubProducts) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if p, ok := s.byID[id]; ok {
		out := p
		return &out, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProducts) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			rows = append(rows, p)
		}
	}
	return rows, nil
}

func newTestStack(t *testing.T, products ...models.Product) (Service, *memCartRepo, *stubProducts) {
	t.Helper()
	repo := newMemCartRepo()
	loader := &stubProducts{byID: map[uuid.UUID]models.Product{}}
	for _, p := range products {
		loader.byID[p.ID] = p
	}
	svc, err := NewService(repo, stubTxRunner{}, loader)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo, loader
}

func testProduct(priceCents, stock int) models.Product {
	return models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:8],
		Title:      "Product",
		PriceCents: priceCents,
		Stock:      stock,
		Colors:     []string{"black", "white"},
		Sizes:      []string{"S", "M", "L"},
		IsActive:   true,
	}
}

func TestGetOrCreateReturnsEmptyCart(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestStack(t)
	userID := uuid.New()

	cart, err := svc.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.UserID != userID {
		t.Fatalf("cart bound to wrong user")
	}
	if len(cart.Items) != 0 || cart.Version != 0 {
		t.Fatalf("expected empty v0 cart, got %d items v%d", len(cart.Items), cart.Version)
	}

	again, err := svc.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != cart.ID {
		t.Fatalf("second call should return the same cart")
	}
}

func TestAddItemSnapshotsCatalogPrice(t *testing.T) {
	t.Parallel()

	product := testProduct(1999, 10)
	svc, _, _ := newTestStack(t, product)
	userID := uuid.New()

	cart, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Items))
	}
	line := cart.Items[0]
	if line.UnitPriceCents != 1999 || line.LineSubtotalCents != 3998 {
		t.Fatalf("unexpected pricing unit=%d subtotal=%d", line.UnitPriceCents, line.LineSubtotalCents)
	}
	if cart.TotalPriceCents != 3998 {
		t.Fatalf("unexpected total %d", cart.TotalPriceCents)
	}
	if cart.Version != 1 {
		t.Fatalf("expected version bump to 1, got %d", cart.Version)
	}
}

func TestAddItemMergesMatchingVariant(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, _, _ := newTestStack(t, product)
	userID := uuid.New()
	black := "black"

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Color: &black, Quantity: 2}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Color: &black, Quantity: 1})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("matching variant should merge, got %d lines", len(cart.Items))
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", cart.Items[0].Quantity)
	}

	// distinct variant stays its own line
	white := "white"
	cart, err = svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Color: &white, Quantity: 1})
	if err != nil {
		t.Fatalf("third add: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("distinct variant should append, got %d lines", len(cart.Items))
	}
}

func TestAddItemMergeKeepsPriceSnapshot(t *testing.T) {
	t.Parallel()

	product := testProduct(1000, 10)
	svc, _, loader := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("first add: %v", err)
	}

	// catalog price moves between adds; the line keeps its original snapshot
	updated := loader.byID[product.ID]
	updated.PriceCents = 1500
	loader.byID[product.ID] = updated

	cart, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if cart.Items[0].UnitPriceCents != 1000 {
		t.Fatalf("merge must keep the add-time price, got %d", cart.Items[0].UnitPriceCents)
	}
	if cart.TotalPriceCents != 2000 {
		t.Fatalf("expected total 2000 from the snapshot price, got %d", cart.TotalPriceCents)
	}
}

func TestAddItemEnforcesQuantityCap(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 100)
	svc, _, _ := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: MaxQuantityPerItem + 1}); err == nil {
		t.Fatal("expected cap rejection for oversized single add")
	}

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 4}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 2})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error when merge exceeds cap, got %v", err)
	}
}

func TestAddItemRejectsUnknownVariant(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, _, _ := newTestStack(t, product)
	neon := "neon"

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: product.ID, Color: &neon, Quantity: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for unknown color, got %v", err)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	product.IsActive = false
	svc, _, _ := newTestStack(t, product)

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: product.ID, Quantity: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("inactive product should read as not found, got %v", err)
	}
}

func TestUpdateItemQuantityZeroRemovesLine(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, _, _ := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.UpdateItemQuantity(context.Background(), userID, UpdateQuantityInput{ProductID: product.ID, Quantity: 0})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("zero quantity should remove the line")
	}
	if cart.TotalPriceCents != 0 {
		t.Fatalf("total should be recomputed to 0, got %d", cart.TotalPriceCents)
	}
}

func TestUpdateItemQuantityMissingLine(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, _, _ := newTestStack(t, product)

	_, err := svc.UpdateItemQuantity(context.Background(), uuid.New(), UpdateQuantityInput{ProductID: product.ID, Quantity: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for absent line, got %v", err)
	}
}

func TestRemoveItemAndClear(t *testing.T) {
	t.Parallel()

	first := testProduct(500, 10)
	second := testProduct(700, 10)
	svc, _, _ := newTestStack(t, first, second)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: first.ID, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: second.ID, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err := svc.RemoveItem(context.Background(), userID, RemoveItemInput{ProductID: first.ID})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != second.ID {
		t.Fatalf("wrong line removed")
	}

	cart, err = svc.Clear(context.Background(), userID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cart.Items) != 0 || cart.TotalPriceCents != 0 {
		t.Fatalf("clear should empty the cart")
	}
}

func TestSyncReplacesAndReprices(t *testing.T) {
	t.Parallel()

	product := testProduct(1000, 10)
	svc, _, loader := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}

	// catalog price moved; sync must reprice from the server side
	updated := loader.byID[product.ID]
	updated.PriceCents = 1500
	loader.byID[product.ID] = updated

	cart, err := svc.Sync(context.Background(), userID, SyncInput{Items: []AddItemInput{
		{ProductID: product.ID, Quantity: 9}, // clamped to cap
	}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != MaxQuantityPerItem {
		t.Fatalf("expected clamped quantity %d, got %d", MaxQuantityPerItem, cart.Items[0].Quantity)
	}
	if cart.Items[0].UnitPriceCents != 1500 {
		t.Fatalf("sync should snapshot the current catalog price, got %d", cart.Items[0].UnitPriceCents)
	}
}

func TestSyncRejectsUnknownProduct(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestStack(t)
	_, err := svc.Sync(context.Background(), uuid.New(), SyncInput{Items: []AddItemInput{
		{ProductID: uuid.New(), Quantity: 1},
	}})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSyncListsAllUnavailableProducts(t *testing.T) {
	t.Parallel()

	inactive := testProduct(500, 10)
	inactive.IsActive = false
	svc, _, _ := newTestStack(t, inactive)
	missing := uuid.New()

	_, err := svc.Sync(context.Background(), uuid.New(), SyncInput{Items: []AddItemInput{
		{ProductID: missing, Quantity: 1},
		{ProductID: inactive.ID, Quantity: 1},
	}})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	ids, ok := details["product_ids"].([]string)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected both unavailable ids enumerated, got %v", details["product_ids"])
	}
}

func TestSyncMergesDuplicateLinesWithinStock(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 3)
	svc, _, _ := newTestStack(t, product)

	// a stale device can send the same variant twice; the merged quantity
	// must still respect available stock
	cart, err := svc.Sync(context.Background(), uuid.New(), SyncInput{Items: []AddItemInput{
		{ProductID: product.ID, Quantity: 3},
		{ProductID: product.ID, Quantity: 3},
	}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("duplicate lines must merge, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("merged quantity must clamp to stock 3, got %d", cart.Items[0].Quantity)
	}
}

func TestAddItemRejectsBeyondStock(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 2)
	svc, _, _ := newTestStack(t, product)

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: product.ID, Quantity: 3})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error when stock exhausted, got %v", err)
	}
}

func TestSyncClampsToStock(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 3)
	svc, _, _ := newTestStack(t, product)

	cart, err := svc.Sync(context.Background(), uuid.New(), SyncInput{Items: []AddItemInput{
		{ProductID: product.ID, Quantity: 5},
	}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity clamped to available stock, got %d", cart.Items[0].Quantity)
	}
}

func TestConcurrentAddsBothLand(t *testing.T) {
	t.Parallel()

	first := testProduct(500, 10)
	second := testProduct(700, 10)
	svc, repo, _ := newTestStack(t, first, second)
	userID := uuid.New()

	if _, err := svc.GetOrCreate(context.Background(), userID); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, productID := range []uuid.UUID{first.ID, second.ID} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: id, Quantity: 1}); err != nil {
				errs <- err
			}
		}(productID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add failed: %v", err)
	}

	cart, err := svc.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected both concurrent adds to land, got %d lines", len(cart.Items))
	}
	if cart.Version != 2 {
		t.Fatalf("expected two successful writes (v2), got v%d", cart.Version)
	}
	if cart.TotalPriceCents != 1200 {
		t.Fatalf("expected combined total 1200, got %d", cart.TotalPriceCents)
	}

	stored := repo.carts[userID]
	if stored.TotalPriceCents != cart.TotalPriceCents {
		t.Fatalf("stored total drifted from returned cart")
	}
}

func TestConcurrentSameProductAddsMergeWithoutLoss(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, _, _ := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.GetOrCreate(context.Background(), userID); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	const adders = 3
	var wg sync.WaitGroup
	errs := make(chan error, adders)
	for i := 0; i < adders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent add failed: %v", err)
	}

	cart, err := svc.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("same variant must merge into one line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != adders {
		t.Fatalf("lost update: expected quantity %d, got %d", adders, cart.Items[0].Quantity)
	}
	if cart.Version != adders {
		t.Fatalf("expected %d version bumps, got %d", adders, cart.Version)
	}
}

func TestMutateSurfacesConflictAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, repo, _ := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.GetOrCreate(context.Background(), userID); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	repo.conflictsBeforeSuccess = maxWriteAttempts

	_, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
}

func TestMutateRecoversFromSingleConflict(t *testing.T) {
	t.Parallel()

	product := testProduct(500, 10)
	svc, repo, _ := newTestStack(t, product)
	userID := uuid.New()

	if _, err := svc.GetOrCreate(context.Background(), userID); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	repo.conflictsBeforeSuccess = 1

	cart, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected item to land after retry")
	}
}
