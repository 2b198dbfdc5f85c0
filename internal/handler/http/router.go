package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codewithrichardb/ecommerce-backend/internal/service"
	"github.com/codewithrichardb/ecommerce-backend/pkg/health"
	"github.com/codewithrichardb/ecommerce-backend/pkg/middleware"
)

// RouterConfig holds the settings the router needs beyond its dependencies.
type RouterConfig struct {
	JWTSecret         string
	AllowedOrigins    []string
	Environment       string
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all recovery service routes registered.
// Storefront endpoints (capture, validation, recovery, tracking) are public;
// coupon management and statistics require an admin token.
func NewRouter(
	couponService *service.CouponService,
	recoveryService *service.RecoveryService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Environment:    cfg.Environment,
	}))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("recovery"))
	r.Use(middleware.Tracing("recovery"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	couponHandler := NewCouponHandler(couponService, logger)
	cartHandler := NewAbandonedCartHandler(recoveryService, logger)

	adminOnly := []func(http.Handler) http.Handler{
		middleware.Auth(NewJWTValidator(cfg.JWTSecret)),
		middleware.RequireRole("admin"),
	}

	r.Route("/api/v1/coupons", func(r chi.Router) {
		// Storefront endpoints.
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/validate", couponHandler.ValidateCoupon)
			r.Post("/apply", couponHandler.ApplyCoupon)
		})
		r.With(middleware.CacheControl(60)).Get("/available", couponHandler.AvailableCoupons)

		// Management endpoints.
		r.Group(func(r chi.Router) {
			r.Use(adminOnly...)
			r.Use(ContentTypeJSON)

			r.Post("/", couponHandler.CreateCoupon)
			r.Get("/", couponHandler.ListCoupons)
			r.Get("/stats", couponHandler.CouponStats)
			r.Get("/{id}", couponHandler.GetCoupon)
			r.Put("/{id}", couponHandler.UpdateCoupon)
			r.Delete("/{id}", couponHandler.DeleteCoupon)
		})
	})

	r.Route("/api/v1/abandoned-carts", func(r chi.Router) {
		// Storefront endpoints.
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/", cartHandler.SaveCart)
			r.Post("/recover/{token}", cartHandler.RecoverCart)
		})

		// Tracking endpoints are hit by mail clients; no JSON enforcement.
		r.Get("/track/open/{emailId}", cartHandler.TrackOpen)
		r.Get("/track/click/{emailId}", cartHandler.TrackClick)

		// Management endpoints.
		r.Group(func(r chi.Router) {
			r.Use(adminOnly...)

			r.Get("/stats", cartHandler.CartStats)
			r.Post("/process-emails", cartHandler.ProcessEmails)
			r.Get("/{id}", cartHandler.GetCart)
		})
	})

	return r
}
