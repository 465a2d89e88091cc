package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-checkout/api/controllers"
	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

// RouterParams wires the dev backend's dependencies.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Store       controllers.Store
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.CheckoutMetrics
	Ready       map[string]controllers.Pinger
	Now         func() time.Time
}

// NewRouter builds the storefront REST surface served by cmd/devbackend.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Ready))
	})
	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/token-validation", controllers.TokenValidation(cfg.JWT, logg))
	if !cfg.App.IsProd() {
		r.Post("/dev/token", controllers.DevToken(cfg.JWT, params.Now, logg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Idempotency, cfg.Dev.IdempotencyTTL, logg))

		r.Get("/products/{productID}", controllers.ProductDetail(params.Store, logg))
		r.Get("/addresses/{addressID}", controllers.AddressDetail(params.Store, logg))

		r.Get("/cart", controllers.CartFetch(params.Store, logg))
		r.Post("/cart/items", controllers.CartAddItem(params.Store, logg))
		r.Delete("/cart/items/{itemID}", controllers.CartRemoveItem(params.Store, logg))

		r.Get("/payment-methods", controllers.PaymentMethodList(params.Store, logg))
		r.Post("/payment-methods", controllers.PaymentMethodCreate(params.Store, logg))
		r.Delete("/payment-methods/{methodID}", controllers.PaymentMethodDelete(params.Store, logg))

		r.Post("/charges", controllers.ChargeCreate(params.Store, params.Metrics, logg))
	})

	return r
}
