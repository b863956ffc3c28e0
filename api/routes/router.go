package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auroralabs/storefront-backend/api/controllers"
	webhookcontrollers "github.com/auroralabs/storefront-backend/api/controllers/webhooks"
	"github.com/auroralabs/storefront-backend/api/middleware"
	"github.com/auroralabs/storefront-backend/internal/auth"
	"github.com/auroralabs/storefront-backend/internal/cart"
	checkoutsvc "github.com/auroralabs/storefront-backend/internal/checkout"
	"github.com/auroralabs/storefront-backend/internal/orders"
	"github.com/auroralabs/storefront-backend/internal/products"
	stripewebhook "github.com/auroralabs/storefront-backend/internal/webhooks/stripe"
	"github.com/auroralabs/storefront-backend/pkg/auth/session"
	"github.com/auroralabs/storefront-backend/pkg/config"
	"github.com/auroralabs/storefront-backend/pkg/db"
	"github.com/auroralabs/storefront-backend/pkg/logger"
	"github.com/auroralabs/storefront-backend/pkg/redis"
	"github.com/auroralabs/storefront-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	authService auth.Service,
	registerService auth.RegisterService,
	productService products.Service,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	orderService orders.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	// Stripe authenticates with its signature header, not a bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(registerService, authService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Post("/logout", controllers.AuthLogout(authService, cfg.JWT, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(productService, logg))
		r.Get("/{productId}", controllers.ProductDetail(productService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Post("/", controllers.CartAddItem(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
			r.Post("/sync", controllers.CartSync(cartService, logg))
			r.Patch("/{itemId}", controllers.CartUpdateItem(cartService, logg))
			r.Delete("/{itemId}", controllers.CartRemoveItem(cartService, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/initiate", controllers.CheckoutInitiate(checkoutService, logg))
			r.Post("/confirm/{sessionId}", controllers.CheckoutConfirm(checkoutService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderCreate(checkoutService, logg))
			r.Get("/", controllers.OrderList(orderService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(orderService, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(orderService, logg))
			r.With(middleware.RequireRole("admin", logg)).Patch("/{orderId}/status", controllers.AdminOrderStatusUpdate(orderService, logg))
		})
	})

	return r
}
