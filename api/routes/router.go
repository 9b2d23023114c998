package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novamart/orderflow/api/controllers"
	"github.com/novamart/orderflow/api/middleware"
	cartsvc "github.com/novamart/orderflow/internal/cart"
	checkoutsvc "github.com/novamart/orderflow/internal/checkout"
	orderssvc "github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/internal/payments"
	returnssvc "github.com/novamart/orderflow/internal/returns"
	"github.com/novamart/orderflow/pkg/config"
	"github.com/novamart/orderflow/pkg/db"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/metrics"
	pkgredis "github.com/novamart/orderflow/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DBPinger     db.Pinger
	RedisPinger  pkgredis.Pinger
	Idempotency  pkgredis.IdempotencyStore
	PromGatherer prometheus.Gatherer

	Carts    cartsvc.Service
	Checkout checkoutsvc.Manager
	Gateways *payments.Registry
	Orders   orderssvc.Service
	Returns  returnssvc.Service
	Metrics  *metrics.CommerceMetrics
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.RedisPinger))
	})

	if deps.PromGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.PromGatherer, promhttp.HandlerOpts{}))
	}

	// Cart and checkout accept guests; identity is the owner key, either a
	// bearer token or the X-Guest-Token header.
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Get("/", controllers.CartGet(deps.Carts, logg))
		r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
		r.Patch("/items/{itemID}", controllers.CartSetQuantity(deps.Carts, logg))
		r.Delete("/items/{itemID}", controllers.CartRemoveItem(deps.Carts, logg))
		r.Delete("/", controllers.CartClear(deps.Carts, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Post("/", controllers.CheckoutStart(deps.Checkout, logg))
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", controllers.CheckoutResume(deps.Checkout, logg))
			r.Patch("/fields", controllers.CheckoutSetField(deps.Checkout, logg))
			r.Patch("/shipping-method", controllers.CheckoutSetShippingMethod(deps.Checkout, logg))
			r.Patch("/payment-method", controllers.CheckoutSetPaymentMethod(deps.Checkout, logg))
			r.Post("/pay", controllers.CheckoutPay(
				deps.Checkout,
				deps.Gateways,
				deps.Orders,
				logg,
				deps.Metrics,
				cfg.Checkout.GatewayTimeout,
			))
			r.Delete("/", controllers.CheckoutDiscard(deps.Checkout, logg))
		})
	})

	// Orders and returns require an authenticated actor.
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Get("/", controllers.OrderList(deps.Orders, logg))
		r.Get("/{orderID}", controllers.OrderGet(deps.Orders, logg))
		r.Post("/{orderID}/status", controllers.OrderStatusUpdate(deps.Orders, logg))
	})

	r.Route("/api/v1/returns", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Post("/", controllers.ReturnCreate(deps.Returns, logg))
		r.Get("/pending", controllers.ReturnListPending(deps.Returns, logg))
		r.Get("/{returnID}", controllers.ReturnGet(deps.Returns, logg))
		r.Post("/{returnID}/approve", controllers.ReturnApprove(deps.Returns, logg))
		r.Post("/{returnID}/reject", controllers.ReturnReject(deps.Returns, logg))
	})

	return r
}
