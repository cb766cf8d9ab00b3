package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"inkbook/internal/app"
	"inkbook/internal/config"
	"inkbook/internal/handlers"
	"inkbook/internal/messaging"
	"inkbook/internal/middleware"
	"inkbook/internal/models"
	"inkbook/internal/notify"
	"inkbook/internal/payments"
	"inkbook/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// dispatcher is a notify.Dispatcher that can be drained on shutdown.
type dispatcher interface {
	notify.Dispatcher
	Wait()
}

// Server is the public booking API plus the staff API.
type Server struct {
	router     *gin.Engine
	config     *config.Config
	core       *app.Core
	broker     io.Closer
	dispatcher dispatcher
	services   *service.Services
}

// NewServer connects the infrastructure and builds the router.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	core, err := app.Open(cfg)
	if err != nil {
		return nil, err
	}

	memory := notify.NewMemoryDispatcher(core.Registry(), notify.DefaultJobTimeout)
	disp, broker, err := newDispatcher(cfg, memory)
	if err != nil {
		_ = core.Close()
		return nil, err
	}

	rails := payments.NewRouter(cfg.Payments, core.Resolver, core.Rates(), core.Repos.Bookings)
	services := service.NewServices(core.Repos, core.Clients, rails, core.Resolver, disp)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		router:     router,
		config:     cfg,
		core:       core,
		broker:     broker,
		dispatcher: disp,
		services:   services,
	}

	server.setupRoutes()

	return server, nil
}

// newDispatcher picks the notification transport. Broker modes fall back to
// in-process delivery for jobs they cannot publish.
func newDispatcher(cfg *config.Config, memory *notify.MemoryDispatcher) (dispatcher, io.Closer, error) {
	switch cfg.DispatchMode {
	case config.DispatchNATS:
		nc, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return notify.NewBrokerDispatcher(nc, models.SubjectNotifyJobs, memory), nc, nil
	case config.DispatchRabbitMQ:
		rc, err := messaging.NewRabbitClient(cfg.RabbitMQ)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		return notify.NewBrokerDispatcher(rc, models.SubjectNotifyJobs, memory), rc, nil
	default:
		return memory, nil, nil
	}
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services)

	var rdb *redis.Client
	if s.core.Redis != nil {
		rdb = s.core.Redis.Client()
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		tours := api.Group("/tours")
		{
			tours.GET("/cities", h.ListCities)
			tours.GET("/dates", h.ListDates)
			tours.GET("/slots", h.ListSlots)
		}

		api.POST("/bookings", middleware.RateLimit(s.config.RateLimit, rdb), h.CreateBooking)

		consent := api.Group("/consent")
		{
			consent.GET("/:bookingId", h.GetConsent)
			consent.POST("/:bookingId", middleware.RateLimit(s.config.RateLimit, rdb), h.SignConsent)
		}

		// Webhooks
		api.POST("/webhooks/mercadopago", h.MercadoPagoWebhook)
		api.POST("/webhooks/stripe", h.StripeWebhook)
		api.POST("/payments/webhook", h.PaymentsWebhook)

		admin := api.Group("/admin")
		admin.Use(middleware.StaffAuth(s.config.StaffJWTSecret))
		{
			bookings := admin.Group("/bookings")
			{
				bookings.GET("", h.ListBookings)
				bookings.GET("/export", h.ExportBookings)
				bookings.GET("/:id", h.GetBooking)
				bookings.PATCH("/:id/status", h.UpdateBookingStatus)
			}

			tours := admin.Group("/tours")
			{
				tours.GET("", h.ListTourSegments)
				tours.POST("", h.CreateTourSegment)
				tours.PUT("/:id", h.UpdateTourSegment)
				tours.DELETE("/:id", h.DeleteTourSegment)
			}

			admin.GET("/gaps", h.ListGaps)

			clients := admin.Group("/clients")
			{
				clients.GET("", h.ListClients)
				clients.POST("/backfill", h.BackfillClients)
				clients.GET("/:email", h.GetClient)
				clients.PATCH("/:email", h.UpdateClient)
			}

			integrations := admin.Group("/integrations")
			{
				integrations.GET("", h.ListIntegrations)
				integrations.PUT("/:serviceId", h.UpsertIntegration)
			}
		}
	}
}

// healthCheck reports the database and the optional backends. Only the
// database decides the status code.
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	db := s.core.DB.HealthCheck(ctx)
	checks := gin.H{"database": db.Status}

	if s.core.Redis != nil {
		checks["redis"] = statusOf(s.core.Redis.Ping(ctx))
	}
	if s.core.Search != nil {
		checks["elasticsearch"] = statusOf(s.core.Search.HealthCheck(ctx))
	}

	code, status := http.StatusOK, "ok"
	if db.Status != "healthy" {
		code, status = http.StatusServiceUnavailable, "degraded"
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "inkbook-api",
		"version": "1.0.0",
		"checks":  checks,
	})
}

func statusOf(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// GetRouter returns the router for the HTTP server and tests
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup drains in-process notifications and closes connections
func (s *Server) Cleanup() error {
	s.dispatcher.Wait()

	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			slog.Error("Error closing broker connection", "error", err)
		}
	}

	return s.core.Close()
}
