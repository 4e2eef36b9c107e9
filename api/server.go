/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RequestLogger:  Structured request logging (logrus)
  3. Recoverer:      Panic recovery (500 instead of crash)
  4. CORS:           Admin API only
  5. BearerAuth:     Admin API only

ROUTES:
  POST /interactions   Chat platform webhook (signature-verified)
  GET  /healthz        Liveness + database ping
  GET  /metrics        Prometheus metrics
  /api/*               Admin REST API, mounted only when a token is set

SEE ALSO:
  - interactions.go: Webhook handler
  - handlers.go: Admin handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// ServerConfig wires the HTTP surface.
type ServerConfig struct {
	Interactions http.Handler
	Admin        *Handler
	AdminToken   string
	CORSOrigins  []string
	Metrics      http.Handler
	Health       func(ctx context.Context) error
	Logger       logrus.FieldLogger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Interactions != nil {
		r.Method(http.MethodPost, "/interactions", cfg.Interactions)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				cfg.Logger.WithField("request_id", middleware.GetReqID(r.Context())).
					WithError(err).Error("Health check failed")
				writeError(w, http.StatusServiceUnavailable, "unhealthy", nil)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.Admin == nil || cfg.AdminToken == "" {
		cfg.Logger.Info("Admin API disabled")
		return r
	}

	h := cfg.Admin

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
		}))
		r.Use(BearerAuth(cfg.AdminToken))

		// Account routes
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Post("/credits", h.AddCredits)
			r.Put("/blacklist", h.Blacklist)
			r.Delete("/blacklist", h.Unblacklist)
			r.Get("/purchases", h.ListAccountPurchases)
		})

		// Code routes
		r.Route("/codes", func(r chi.Router) {
			r.Get("/", h.ListCodes)
			r.Post("/", h.CreateCodes)
		})

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Delete("/{name}", h.DeleteProduct)
			r.Get("/{name}/stock", h.ListStock)
			r.Post("/{name}/stock", h.AddStock)
			r.Delete("/{name}/stock", h.RemoveStock)
		})

		// Discount routes
		r.Route("/discounts", func(r chi.Router) {
			r.Get("/", h.ListDiscounts)
			r.Post("/", h.CreateDiscount)
			r.Delete("/{code}", h.DeleteDiscount)
		})

		// Purchase routes
		r.Get("/purchases/{id}", h.GetPurchase)
	})

	return r
}
