package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/vaidashi/chickiemart-api/internal/catalog"
	"github.com/vaidashi/chickiemart-api/internal/config"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/outbox"
	"github.com/vaidashi/chickiemart-api/internal/service"
	"github.com/vaidashi/chickiemart-api/pkg/kafka"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
	"github.com/vaidashi/chickiemart-api/pkg/middleware"
)

const apiVersion = "1.0.0"

// FailedMessageStore exposes outbox messages that ran out of retries
type FailedMessageStore interface {
	GetFailedMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	Requeue(ctx context.Context, id int64) error
}

type Server struct {
	config              *config.Config
	logger              logger.Logger
	router              *mux.Router
	httpServer          *http.Server
	catalog             *catalog.Catalog
	cartService         *service.CartService
	orderService        *service.OrderService
	authService         *service.AuthService
	failedMessages      FailedMessageStore
	outboxProcessor     *outbox.Processor
	kafkaProducer       *kafka.Producer
	kafkaConsumer       *kafka.Consumer
	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware
	gracefulDegradation *middleware.GracefulDegradation
	healthChecks        map[string]func(ctx context.Context) error
	closers             []func() error
}

// NewServer wires the storage backends, services and event pipeline selected by cfg.
// Background workers are started by Start.
func NewServer(ctx context.Context, cfg *config.Config, logger logger.Logger) (*Server, error) {
	s := &Server{
		config:       cfg,
		logger:       logger,
		router:       mux.NewRouter(),
		catalog:      catalog.Default(),
		healthChecks: make(map[string]func(ctx context.Context) error),
	}

	orders, outboxStore, err := s.buildLedger(ctx)
	if err != nil {
		s.closeAll()
		return nil, err
	}

	carts, err := s.buildCartStore(ctx)
	if err != nil {
		s.closeAll()
		return nil, err
	}

	s.failedMessages = outboxStore
	s.cartService = service.NewCartService(carts, s.catalog, logger)
	s.orderService = service.NewOrderService(orders, carts, logger)

	s.authService, err = service.NewAuthService(cfg.Admin.Password, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL, logger)
	if err != nil {
		s.closeAll()
		return nil, err
	}

	if err := s.buildEventPipeline(outboxStore); err != nil {
		s.closeAll()
		return nil, err
	}

	s.rateLimiter = middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
		IPMaxTokens:       cfg.RateLimit.Burst,
		IPRefillRate:      cfg.RateLimit.RequestsPerSecond,
		IdleTTL:           10 * time.Minute,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
	}, logger)

	s.endpointRateLimiter = middleware.NewEndpointRateLimiterMiddleware(cfg.RateLimit.TrustForwardedFor, logger)
	s.gracefulDegradation = middleware.NewGracefulDegradation(
		middleware.DefaultBreakerConfig(),
		[]string{"/api/v1/health", "/api/v1/admin"},
		logger,
	)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartBackground starts the outbox processor and the Kafka consumer
func (s *Server) StartBackground() {
	s.outboxProcessor.Start()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Start(); err != nil {
			// Customer notifications are best effort; the API keeps serving
			s.logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}
}

// Start starts the background workers and the HTTP server
func (s *Server) Start() error {
	s.StartBackground()
	s.logger.Info("Starting server", "port", s.config.Port, "storage", s.config.Storage, "cartStore", s.config.CartStore)

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.outboxProcessor.Stop()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	s.rateLimiter.Stop()
	s.endpointRateLimiter.Stop()
	s.closeAll()

	return err
}

func (s *Server) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("Error releasing resource", "error", err)
		}
	}

	s.closers = nil
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.gracefulDegradation.Middleware)
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(s.endpointRateLimiter.Middleware)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusNotFound, "Route not found")
	})

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	api.HandleFunc("/products", s.listProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.getProductHandler).Methods(http.MethodGet)

	api.HandleFunc("/carts", s.createCartHandler).Methods(http.MethodPost)
	api.HandleFunc("/carts/{id}", s.getCartHandler).Methods(http.MethodGet)
	api.HandleFunc("/carts/{id}", s.clearCartHandler).Methods(http.MethodDelete)
	api.HandleFunc("/carts/{id}/session", s.endCartSessionHandler).Methods(http.MethodDelete)
	api.HandleFunc("/carts/{id}/items", s.addCartItemHandler).Methods(http.MethodPost)
	api.HandleFunc("/carts/{id}/items/{productID}", s.updateCartItemHandler).Methods(http.MethodPut)
	api.HandleFunc("/carts/{id}/items/{productID}", s.removeCartItemHandler).Methods(http.MethodDelete)
	api.HandleFunc("/carts/{id}/checkout", s.checkoutHandler).Methods(http.MethodPost)

	api.HandleFunc("/orders/{id}", s.getOrderHandler).Methods(http.MethodGet)

	api.HandleFunc("/admin/login", s.adminLoginHandler).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/orders", s.listOrdersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)
	admin.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/outbox/failed", s.listFailedMessagesHandler).Methods(http.MethodGet)
	admin.HandleFunc("/outbox/{id:[0-9]+}/retry", s.retryFailedMessageHandler).Methods(http.MethodPost)
	admin.HandleFunc("/system/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/system/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
	admin.HandleFunc("/system/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)

	login, checkout := s.config.RateLimit.LoginPerMinute, s.config.RateLimit.CheckoutPerMinute
	s.endpointRateLimiter.SetLimit(http.MethodPost, "/api/v1/admin/login", login, login/60)
	s.endpointRateLimiter.SetLimit(http.MethodPost, "/api/v1/carts/{id}/checkout", checkout, checkout/60)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status,
			"duration", time.Since(start).String(),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
