package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/serenitycare/server/internal/container"
	"github.com/serenitycare/server/internal/handlers"
	"github.com/serenitycare/server/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	// Set Gin mode for production
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{container.Config.AllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Razorpay-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Add middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	// API version 1
	v1 := r.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "OK",
				"service": "serenity-api",
			})
		})

		// Public directory and availability
		v1.GET("/therapists", handlers.ListTherapists(container.TherapistService))
		v1.GET("/therapists/:id", handlers.GetTherapistByID(container.TherapistService))
		v1.GET("/slots", handlers.GetAvailableSlots(container.TherapistService))

		// Reservation and the two completion triggers
		v1.POST("/reservations", handlers.CreateReservation(container.BookingService))
		v1.POST("/reservations/verify", handlers.VerifyPayment(container.BookingService))
		v1.POST("/webhooks/payment", handlers.PaymentWebhook(container.BookingService, container.Logger))

		// Back-office audit view
		v1.GET("/bookings", handlers.ListBookings(container.BookingService))
	}

	return r
}
