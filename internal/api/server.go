package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campreg/internal/cache"
	"campreg/internal/config"
	"campreg/internal/database"
	"campreg/internal/external"
	"campreg/internal/handlers"
	"campreg/internal/inventory"
	"campreg/internal/jobs"
	"campreg/internal/logger"
	"campreg/internal/messaging"
	"campreg/internal/middleware"
	"campreg/internal/repository"
	"campreg/internal/service"
)

// Server wires the HTTP surface to the database, the ticketing client, NATS
// and the retry machinery.
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	services *service.Services
	repos    *repository.Repositories
	cleanup  *jobs.RetryCleanupJob
}

func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Valkey is an optional credential cache; auth falls back to the
	// database when it is absent.
	var valkeyClient *cache.ValkeyClient
	if cfg.ValkeyAddr != "" {
		valkeyClient, err = cache.NewValkeyClient(cfg.ValkeyAddr, cfg.ValkeyPassword)
		if err != nil {
			logger.Get().Warn("Valkey unavailable, auth will hit the database", "error", err)
			valkeyClient = nil
		}
	}

	ticketingClient := external.NewPretixClient(cfg.Pretix)
	resolver := inventory.NewResolver(cfg.IdentityKeywords())

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, natsClient, ticketingClient, resolver, cfg.Retry)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		nats:     natsClient,
		valkey:   valkeyClient,
		services: services,
		repos:    repos,
		cleanup:  jobs.NewRetryCleanupJob(services.Retries, cfg.CleanupInterval, time.Duration(cfg.CleanupMaxAgeHours)*time.Hour),
	}

	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services)

	api := s.router.Group("/api")
	api.Use(middleware.BasicAuth(s.repos.Users, s.valkey))
	{
		registrations := api.Group("/registrations")
		{
			registrations.POST("", h.SubmitRegistration)
			registrations.GET("", h.ListRegistrations)
			registrations.PATCH("/cancel", h.CancelRegistration)
			registrations.GET("/retries/:id", h.GetRetryStatus)
			registrations.DELETE("/retries/:id", h.AbandonRetry)
		}

		events := api.Group("/events")
		{
			events.GET("/:slug/availability", h.GetAvailability)
			events.GET("/:slug/orders/:code", h.GetRegistrationStatus)
		}
	}

	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/health/db", s.dbHealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) dbHealthCheck(c *gin.Context) {
	check := s.db.HealthCheck(c.Request.Context())
	status := 200
	if check.Status != "healthy" {
		status = 503
	}
	c.JSON(status, check)
}

// Start launches background work that is not request-driven: pending records
// from a previous process resume their schedules, and the cleanup job begins
// its passes.
func (s *Server) Start(ctx context.Context) {
	resumed, err := s.services.Retries.ResumePending(ctx)
	if err != nil {
		logger.Get().Error("Failed to resume pending retries", "error", err)
	} else if resumed > 0 {
		logger.Get().Info("Resumed pending retry records", "count", resumed)
	}

	s.cleanup.Start(ctx)
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.config.Port))
}

// GetRouter exposes the router for tests and for custom http.Server setups.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup stops background work and closes connections.
func (s *Server) Cleanup() error {
	if s.cleanup != nil {
		s.cleanup.Stop()
	}
	if s.services != nil {
		s.services.Retries.Close()
	}
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			logger.Get().Error("Error closing NATS connection", "error", err)
		}
	}
	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			logger.Get().Error("Error closing Valkey connection", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Get().Error("Error closing database connection", "error", err)
			return err
		}
	}
	return nil
}
