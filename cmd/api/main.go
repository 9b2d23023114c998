package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/novamart/orderflow/api/routes"
	cartsvc "github.com/novamart/orderflow/internal/cart"
	checkoutsvc "github.com/novamart/orderflow/internal/checkout"
	"github.com/novamart/orderflow/internal/events"
	orderssvc "github.com/novamart/orderflow/internal/orders"
	"github.com/novamart/orderflow/internal/payments"
	returnssvc "github.com/novamart/orderflow/internal/returns"
	"github.com/novamart/orderflow/internal/shipping"
	"github.com/novamart/orderflow/pkg/config"
	"github.com/novamart/orderflow/pkg/db"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/metrics"
	"github.com/novamart/orderflow/pkg/migrate"
	"github.com/novamart/orderflow/pkg/pubsub"
	"github.com/novamart/orderflow/pkg/redis"
	"github.com/novamart/orderflow/pkg/square"
	"github.com/novamart/orderflow/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}
	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	cardGateway, err := payments.NewCardGateway(stripeClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build card gateway", err)
		os.Exit(1)
	}
	walletGateway, err := payments.NewWalletGateway(squareClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build wallet gateway", err)
		os.Exit(1)
	}
	gateways, err := payments.NewRegistry(cardGateway, walletGateway)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway registry", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	commerceMetrics := metrics.NewCommerceMetrics(promRegistry)

	// Order events are best-effort; a missing project id disables the channel.
	var orderEvents *events.OrderEvents
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub client", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		orderEvents, err = events.NewOrderEvents(pubsubClient.OrderEventsPublisher(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to build order events publisher", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "gcp project id not set, order events disabled")
		orderEvents, err = events.NewOrderEvents(nil, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to build order events publisher", err)
			os.Exit(1)
		}
	}

	cartService, err := cartsvc.NewService(cartsvc.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart service", err)
		os.Exit(1)
	}

	var remoteRates *shipping.RateClient
	if cfg.Shipping.RateServiceURL != "" {
		remoteRates, err = shipping.NewRateClient(cfg.Shipping.RateServiceURL, shipping.WithTimeout(cfg.Shipping.RateTimeout))
		if err != nil {
			logg.Error(context.Background(), "failed to build shipping rate client", err)
			os.Exit(1)
		}
	}
	quoteResolver, err := newQuoteResolver(remoteRates, logg, commerceMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build shipping resolver", err)
		os.Exit(1)
	}

	checkoutManager, err := checkoutsvc.NewManager(
		cartService,
		quoteResolver,
		redisClient,
		logg,
		cfg.Checkout.TaxRateBPS,
		cfg.Checkout.ProgressTTL,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout manager", err)
		os.Exit(1)
	}

	ordersRepo := orderssvc.NewRepository(dbClient.DB())
	ordersService, err := orderssvc.NewService(
		ordersRepo,
		dbClient,
		cartService,
		orderEvents,
		logg,
		commerceMetrics,
		cfg.Checkout.CommitRetries,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build orders service", err)
		os.Exit(1)
	}

	returnsService, err := returnssvc.NewService(
		returnssvc.NewRepository(dbClient.DB()),
		ordersRepo,
		dbClient,
		gateways,
		redisClient,
		orderEvents,
		logg,
		commerceMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build returns service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DBPinger:     dbClient,
			RedisPinger:  redisClient,
			Idempotency:  redisClient,
			PromGatherer: promRegistry,
			Carts:        cartService,
			Checkout:     checkoutManager,
			Gateways:     gateways,
			Orders:       ordersService,
			Returns:      returnsService,
			Metrics:      commerceMetrics,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func newQuoteResolver(remote *shipping.RateClient, logg *logger.Logger, m *metrics.CommerceMetrics) (*shipping.Resolver, error) {
	if remote == nil {
		return shipping.NewResolver(nil, logg, m)
	}
	return shipping.NewResolver(remote, logg, m)
}
