package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/internal/cart"
	"github.com/auroralabs/storefront-backend/internal/notifications"
	"github.com/auroralabs/storefront-backend/internal/orders"
	"github.com/auroralabs/storefront-backend/internal/products"
	"github.com/auroralabs/storefront-backend/pkg/config"
	"github.com/auroralabs/storefront-backend/pkg/db/models"
	"github.com/auroralabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
	"github.com/auroralabs/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates order creation. Every path that creates an order keeps
// the order row, the stock decrement, and the cart clear inside one
// transaction so a failure leaves no partial state.
type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*models.Order, error)
	Initiate(ctx context.Context, userID uuid.UUID, input InitiateInput) (*InitiateResult, error)
	Confirm(ctx context.Context, userID uuid.UUID, stripeSessionID string) (*ConfirmResult, error)
}

type service struct {
	tx       txRunner
	carts    cart.CartRepository
	products products.ProductRepository
	orders   orders.Repository
	sessions SessionRepository
	stripe   StripeCheckoutClient
	mailer   notifications.Mailer
	cfg      config.CheckoutConfig
	currency string
	logg     *logger.Logger
}

// ServiceParams bundles the checkout service dependencies.
type ServiceParams struct {
	Tx          txRunner
	CartRepo    cart.CartRepository
	ProductRepo products.ProductRepository
	OrderRepo   orders.Repository
	SessionRepo SessionRepository
	Stripe      StripeCheckoutClient
	Mailer      notifications.Mailer
	Config      config.CheckoutConfig
	Currency    string
	Logger      *logger.Logger
}

// NewService builds a checkout service with the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.ProductRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.SessionRepo == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "inr"
	}
	return &service{
		tx:       params.Tx,
		carts:    params.CartRepo,
		products: params.ProductRepo,
		orders:   params.OrderRepo,
		sessions: params.SessionRepo,
		stripe:   params.Stripe,
		mailer:   params.Mailer,
		cfg:      params.Config,
		currency: currency,
		logg:     params.Logger,
	}, nil
}

// pricedLine is a server-priced order line ready to freeze into an order.
type pricedLine struct {
	Product  models.Product
	Color    *string
	Size     *string
	Quantity int
}

// CreateOrder handles the direct (pay-on-delivery style) flow: server-side
// re-pricing, client total verification, then order + stock + cart in one tx.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	input.ShippingAddress.Normalize()
	if !input.ShippingAddress.IsComplete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete")
	}
	billing := input.ShippingAddress
	if input.BillingAddress != nil {
		input.BillingAddress.Normalize()
		if !input.BillingAddress.IsComplete() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing address is incomplete")
		}
		billing = *input.BillingAddress
	}

	lines, err := s.priceLines(ctx, toLineRequests(input.Items))
	if err != nil {
		return nil, err
	}
	subtotal := subtotalOf(lines)
	shipping := s.shippingFee(subtotal)
	total := subtotal + shipping

	if diff := total - input.ClientTotalCents; diff > s.cfg.TotalToleranceCents || diff < -s.cfg.TotalToleranceCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total mismatch").
			WithDetails(map[string]any{
				"expected_cents": total,
				"received_cents": input.ClientTotalCents,
			})
	}

	order := &models.Order{
		UserID:          userID,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   input.PaymentMethod,
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TotalCents:      total,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		Items:           freezeLines(lines),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.debitStock(ctx, tx, lines); err != nil {
			return err
		}
		if _, err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.carts.WithTx(tx).EmptyByUserID(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "empty cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyConfirmation(ctx, order)
	return order, nil
}

// Initiate starts a Stripe-hosted checkout for the user's current cart.
func (s *service) Initiate(ctx context.Context, userID uuid.UUID, input InitiateInput) (*InitiateResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	input.ShippingAddress.Normalize()
	if !input.ShippingAddress.IsComplete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete")
	}

	userCart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines, err := s.priceLines(ctx, cartLineRequests(userCart))
	if err != nil {
		return nil, err
	}
	subtotal := subtotalOf(lines)
	shipping := s.shippingFee(subtotal)
	total := subtotal + shipping
	expiresAt := time.Now().UTC().Add(s.cfg.SessionTTL)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
	}
	for _, line := range lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(line.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(int64(line.Product.PriceCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Product.Title),
				},
			},
		})
	}
	if shipping > 0 {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(int64(shipping)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping"),
				},
			},
		})
	}

	stripeSession, err := s.stripe.CreateSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe session")
	}

	_, err = s.sessions.Create(ctx, &models.CheckoutSession{
		UserID:          userID,
		StripeSessionID: stripeSession.ID,
		ShippingAddress: input.ShippingAddress,
		AmountCents:     total,
		Status:          enums.CheckoutSessionStatusOpen,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist checkout session")
	}

	return &InitiateResult{SessionID: stripeSession.ID, URL: stripeSession.URL}, nil
}

// Confirm verifies the session is paid with Stripe and finishes the order in
// one transaction. Replaying a confirmed session returns the existing order.
func (s *service) Confirm(ctx context.Context, userID uuid.UUID, stripeSessionID string) (*ConfirmResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(stripeSessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	record, err := s.sessions.FindByStripeSessionID(ctx, stripeSessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if record.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}

	// replayed confirm: hand back the order created the first time
	if record.Status == enums.CheckoutSessionStatusConfirmed {
		if record.OrderID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "confirmed session has no order")
		}
		order, err := s.orders.FindByID(ctx, *record.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return &ConfirmResult{Order: order}, nil
	}
	if record.Status == enums.CheckoutSessionStatusExpired || time.Now().UTC().After(record.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired")
	}

	stripeSession, err := s.stripe.GetSession(ctx, stripeSessionID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify stripe session")
	}
	if stripeSession.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not completed")
	}
	paymentRef := stripeSession.ID
	if stripeSession.PaymentIntent != nil && stripeSession.PaymentIntent.ID != "" {
		paymentRef = stripeSession.PaymentIntent.ID
	}

	userCart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines, err := s.priceLines(ctx, cartLineRequests(userCart))
	if err != nil {
		return nil, err
	}
	subtotal := subtotalOf(lines)
	shipping := s.shippingFee(subtotal)

	order := &models.Order{
		UserID:          userID,
		ShippingAddress: record.ShippingAddress,
		BillingAddress:  record.ShippingAddress,
		PaymentMethod:   enums.PaymentMethodCard,
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TotalCents:      subtotal + shipping,
		Status:          enums.OrderStatusProcessing,
		PaymentStatus:   enums.PaymentStatusPaid,
		PaymentRef:      &paymentRef,
		Items:           freezeLines(lines),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.debitStock(ctx, tx, lines); err != nil {
			return err
		}
		if _, err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		updates := map[string]any{
			"status":   enums.CheckoutSessionStatusConfirmed,
			"order_id": order.ID,
		}
		if err := s.sessions.WithTx(tx).Update(ctx, record.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm checkout session")
		}
		if err := s.carts.WithTx(tx).EmptyByUserID(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "empty cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyConfirmation(ctx, order)
	return &ConfirmResult{Order: order}, nil
}

type lineRequest struct {
	ProductID uuid.UUID
	Color     *string
	Size      *string
	Quantity  int
}

func toLineRequests(items []OrderItemInput) []lineRequest {
	out := make([]lineRequest, 0, len(items))
	for _, item := range items {
		out = append(out, lineRequest{
			ProductID: item.ProductID,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}
	return out
}

func cartLineRequests(userCart *models.Cart) []lineRequest {
	out := make([]lineRequest, 0, len(userCart.Items))
	for _, item := range userCart.Items {
		out = append(out, lineRequest{
			ProductID: item.ProductID,
			Color:     item.Color,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}
	return out
}

func (s *service) loadCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	userCart, err := s.carts.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(userCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	return userCart, nil
}

// priceLines re-resolves every product server-side and validates quantity
// against live stock. Client-supplied prices never enter the result.
func (s *service) priceLines(ctx context.Context, requests []lineRequest) ([]pricedLine, error) {
	ids := make([]uuid.UUID, 0, len(requests))
	seen := map[uuid.UUID]struct{}{}
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if req.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing quantity")
		}
		if req.Quantity > cart.MaxQuantityPerItem {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("quantity limited to %d per item", cart.MaxQuantityPerItem))
		}
		if _, ok := seen[req.ProductID]; !ok {
			seen[req.ProductID] = struct{}{}
			ids = append(ids, req.ProductID)
		}
	}

	rows, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	catalog := make(map[uuid.UUID]models.Product, len(rows))
	for _, p := range rows {
		catalog[p.ID] = p
	}

	missing := []string{}
	lines := make([]pricedLine, 0, len(requests))
	for _, req := range requests {
		product, ok := catalog[req.ProductID]
		if !ok || !product.IsActive {
			missing = append(missing, req.ProductID.String())
			continue
		}
		if req.Quantity > product.Stock {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
				WithDetails(map[string]any{
					"product_id": product.ID.String(),
					"available":  product.Stock,
				})
		}
		lines = append(lines, pricedLine{
			Product:  product,
			Color:    req.Color,
			Size:     req.Size,
			Quantity: req.Quantity,
		})
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "products not found").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return lines, nil
}

// shippingFee applies the configured rule: free above the threshold, flat
// otherwise.
func (s *service) shippingFee(subtotal int) int {
	if subtotal > s.cfg.FreeShippingThresholdCents {
		return 0
	}
	return s.cfg.FlatShippingFeeCents
}

func subtotalOf(lines []pricedLine) int {
	total := 0
	for _, line := range lines {
		total += line.Product.PriceCents * line.Quantity
	}
	return total
}

func freezeLines(lines []pricedLine) []models.OrderLineItem {
	out := make([]models.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, models.OrderLineItem{
			ProductID:         line.Product.ID,
			Title:             line.Product.Title,
			Color:             line.Color,
			Size:              line.Size,
			Quantity:          line.Quantity,
			UnitPriceCents:    line.Product.PriceCents,
			LineSubtotalCents: line.Product.PriceCents * line.Quantity,
		})
	}
	return out
}

func (s *service) debitStock(ctx context.Context, tx *gorm.DB, lines []pricedLine) error {
	repo := s.products.WithTx(tx)
	for _, line := range lines {
		if err := repo.DecrementStock(ctx, line.Product.ID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) notifyConfirmation(ctx context.Context, order *models.Order) {
	if err := s.mailer.OrderConfirmation(ctx, order); err != nil {
		s.logg.Error(ctx, "order confirmation mail failed", err)
	}
}
