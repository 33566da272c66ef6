// Package httpserver exposes the payment reconciliation endpoints over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/masterco/lahza-server/internal/config"
	"github.com/masterco/lahza-server/internal/logger"
	"github.com/masterco/lahza-server/internal/metrics"
	"github.com/masterco/lahza-server/internal/offers"
	"github.com/masterco/lahza-server/internal/reconcile"
)

var serverStartTime = time.Now()

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg     *config.Config
	service *reconcile.Service
	catalog *offers.Catalog
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New builds the HTTP server with its configured router.
func New(cfg *config.Config, service *reconcile.Service, catalog *offers.Catalog, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:     cfg,
			service: service,
			catalog: catalog,
			metrics: metricsCollector,
			logger:  appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router, appLogger)
	return s
}

func (s *Server) configureRouter(router chi.Router, appLogger zerolog.Logger) {
	cfg := s.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if cfg.RateLimit.Enabled && cfg.RateLimit.Limit > 0 {
		router.Use(httprate.LimitByIP(cfg.RateLimit.Limit, cfg.RateLimit.Window.Duration))
	}

	// Lightweight endpoints with a short timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/health", s.health)
		r.Get("/payment/offers", s.listOffers)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle("/metrics", s.metrics.Handler())
	})

	// Payment endpoints block on gateway calls; give them headroom.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.With(s.metrics.Middleware("/payment/initialize")).
			Post("/payment/initialize", s.initializePayment)

		verifyMW := s.metrics.Middleware("/payment/verify")
		r.With(verifyMW).Get("/payment/verify", s.verifyPayment)
		r.With(verifyMW).Post("/payment/verify", s.verifyPayment)
		// Channel-scoped aliases used as gateway callback targets.
		r.With(verifyMW).Get("/payment/verify/{source}", s.verifyPayment)
		r.With(verifyMW).Post("/payment/verify/{source}", s.verifyPayment)

		r.With(s.metrics.Middleware("/payment/webhook")).
			Post("/payment/webhook", s.handleWebhook)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
