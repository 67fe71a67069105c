package router

import (
	"course-checkout/internal/api/handlers"
	"course-checkout/internal/api/middleware"
	"course-checkout/internal/infrastructure/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health       *handlers.HealthHandler
	Student      *handlers.StudentHandler
	Registration *handlers.RegistrationHandler
	Webhook      *handlers.WebhookHandler
}

func NewRouter(h Handlers, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(m))
	r.Use(cors.New(corsConfig()))
	r.Use(gin.Recovery())

	r.GET("/health", h.Health.HealthCheck)
	r.GET("/ready", h.Health.ReadinessCheck)
	r.GET("/live", h.Health.LivenessCheck)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.POST("/webhooks/payments", h.Webhook.HandlePaymentEvent)

	v1 := r.Group("/api/v1")
	{
		students := v1.Group("/students")
		{
			students.POST("", h.Student.CreateStudent)
			students.GET("/:id", h.Student.GetStudent)
		}

		registrations := v1.Group("/registrations")
		{
			registrations.POST("", h.Registration.CreateRegistration)
			registrations.GET("/:id", h.Registration.GetRegistration)
			registrations.POST("/:id/checkout", h.Registration.StartCheckout)
			registrations.POST("/:id/confirm", h.Registration.Confirm)
			registrations.POST("/:id/cancel", h.Registration.Cancel)
			registrations.POST("/:id/poll", h.Registration.Poll)
		}

		v1.GET("/courses/:id/availability", h.Registration.GetAvailability)
		v1.GET("/reconciliation/failures", h.Registration.ListReconciliationFailures)
	}
	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	return cfg
}
