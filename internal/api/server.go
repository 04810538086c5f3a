package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"busticket/internal/cache"
	"busticket/internal/config"
	"busticket/internal/database"
	"busticket/internal/external"
	"busticket/internal/handlers"
	"busticket/internal/messaging"
	"busticket/internal/middleware"
	"busticket/internal/notify"
	"busticket/internal/repository"
	"busticket/internal/repository/memory"
	"busticket/internal/search"
	"busticket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports the state of one backing dependency.
type HealthChecker func(ctx context.Context) error

// Server is the HTTP API together with the connections it owns.
type Server struct {
	router     *gin.Engine
	config     *config.Config
	db         *database.DB
	nats       *messaging.NATSClient
	redis      *cache.ValkeyClient
	dispatcher *notify.Dispatcher
	services   *service.Services
	search     handlers.TicketSearcher
	checks     map[string]HealthChecker
}

// NewServer connects every configured backend and wires the services.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	s := &Server{
		config: cfg,
		checks: map[string]HealthChecker{},
	}

	store, err := s.openStore()
	if err != nil {
		s.Cleanup()
		return nil, err
	}

	deps := service.Deps{
		Store:          store,
		Gateways:       buildGateways(cfg.Gateways),
		GatewayTimeout: cfg.Gateways.Timeout,
	}

	if cfg.NATS.Enabled {
		s.nats, err = messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			s.Cleanup()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		deps.Publisher = s.nats
	}

	if cfg.Redis.Enabled {
		s.redis, err = cache.NewValkeyClient(cfg.Redis)
		if err != nil {
			s.Cleanup()
			return nil, err
		}
		deps.Locker = s.redis
		deps.Deduper = s.redis
		s.checks["redis"] = s.redis.Ping
	}

	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			s.Cleanup()
			return nil, err
		}
		s.search = es
		s.checks["elasticsearch"] = es.HealthCheck
	}

	s.dispatcher = BuildDispatcher(cfg)
	s.dispatcher.Start(context.Background())
	deps.Notifier = s.dispatcher

	s.services = service.NewServices(deps)
	s.setupRouter()
	return s, nil
}

// NewServerWithServices serves already wired services. Used by tests and
// tools that bring their own store.
func NewServerWithServices(cfg *config.Config, services *service.Services, searcher handlers.TicketSearcher) *Server {
	s := &Server{
		config:   cfg,
		services: services,
		search:   searcher,
		checks:   map[string]HealthChecker{},
	}
	s.setupRouter()
	return s
}

func (s *Server) openStore() (repository.Store, error) {
	store, db, err := OpenStore(s.config)
	if err != nil {
		return nil, err
	}
	if db != nil {
		s.db = db
		s.checks["database"] = func(ctx context.Context) error {
			hc := db.HealthCheck(ctx)
			if hc.Error != "" {
				return errors.New(hc.Error)
			}
			return nil
		}
	}
	return store, nil
}

// OpenStore opens the store selected by cfg.StoreDriver. db is nil for the
// memory store.
func OpenStore(cfg *config.Config) (repository.Store, *database.DB, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		slog.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), nil, nil
	case config.StorePostgres, "":
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		db.ValidateConnectionPool()
		return repository.NewPostgresStore(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func buildGateways(cfg external.GatewayConfig) *external.Registry {
	var gws []external.Gateway
	if cfg.Mock.Enabled {
		gws = append(gws, external.NewMockGateway(cfg.Mock))
	}
	if cfg.Hub.TeamSlug != "" {
		gws = append(gws, external.NewHubGateway(cfg.Hub))
	}
	stripeGw, err := external.NewStripeGateway(cfg.Stripe)
	switch {
	case err == nil:
		gws = append(gws, stripeGw)
	case !errors.Is(err, external.ErrStripeNotConfigured):
		slog.Warn("Stripe gateway disabled", "error", err)
	}

	registry := external.NewRegistry(gws...)
	slog.Info("Payment gateways registered", "gateways", registry.Names())
	return registry
}

// BuildDispatcher assembles the notification channels enabled in cfg.
func BuildDispatcher(cfg *config.Config) *notify.Dispatcher {
	var channels []notify.Channel
	if cfg.SMTP.Enabled {
		channels = append(channels, notify.NewEmailChannel(cfg.SMTP))
	}
	if cfg.SMS.Enabled {
		channels = append(channels, notify.NewSMSChannel(external.NewSMSClient(cfg.SMS)))
	}
	return notify.NewDispatcher(cfg.Notifications, channels...)
}

func (s *Server) setupRouter() {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	if s.config.RequestTimeout > 0 {
		router.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	s.router = router
	s.setupRoutes()
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services, s.search)
	admin := middleware.AdminToken(s.config.AdminToken)

	api := s.router.Group("/api")
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("/:ticketNumber", h.GetBooking)
			bookings.PATCH("/cancel", h.CancelBooking)
		}

		payments := api.Group("/payments")
		{
			payments.POST("", h.ProcessPayment)
			payments.GET("/:id", h.GetPayment)
			payments.POST("/:id/verify", h.VerifyPayment)
			payments.POST("/:id/refund", admin, h.RefundPayment)
			payments.POST("/:id/cancel", admin, h.CancelPayment)
		}

		seats := api.Group("/seats")
		{
			seats.GET("", h.ListSeats)
			seats.POST("/generate", admin, h.GenerateSeatMap)
			seats.PATCH("/:id/block", admin, h.BlockSeat)
			seats.PATCH("/:id/unblock", admin, h.UnblockSeat)
		}

		api.GET("/tickets/search", h.SearchTickets)
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "busticket-api",
		"dependencies": deps,
	})
}

// Run serves on the configured port until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter returns the router for tests and http.Server.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Services exposes the wired core services.
func (s *Server) Services() *service.Services {
	return s.services
}

// Cleanup drains notifications and closes connections.
func (s *Server) Cleanup() error {
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("Error closing Redis connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
