package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/config"
	"clinic-frontdesk-server/internal/handlers"
	"clinic-frontdesk-server/internal/metrics"
	"clinic-frontdesk-server/internal/middleware"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/services"
)

// Dependencies are the components the routes are built from.
type Dependencies struct {
	DB           *gorm.DB
	Cfg          *config.Config
	Log          *zap.Logger
	Appointments *services.AppointmentService
	Queue        *services.QueueService
	// Gatherer backs /metrics; the default gatherer when nil.
	Gatherer prometheus.Gatherer
	// Breaker reports the cache circuit breaker on /health. Optional.
	Breaker interface{ State() gobreaker.State }
	// AuthLimiter throttles the public auth endpoints. Optional.
	AuthLimiter *middleware.IPRateLimiter
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Cfg, log)
	userHandler := handlers.NewUserHandler(deps.DB)
	patientHandler := handlers.NewPatientHandler(deps.DB, deps.Queue)
	doctorHandler := handlers.NewDoctorHandler(deps.DB)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Appointments, log)
	queueHandler := handlers.NewQueueHandler(deps.Queue, deps.Cfg.Clinic.Name, deps.Cfg.Clinic.Location, log)

	frontDesk := middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleReceptionist)
	clinicians := middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleReceptionist, models.RoleDoctor)
	adminOnly := middleware.RoleAuthMiddleware(models.RoleAdmin)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		if deps.AuthLimiter != nil {
			authRoutes.Use(middleware.RateLimit(deps.AuthLimiter))
		}
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh-token", authHandler.RefreshToken)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(deps.Cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
			authRoutesPrivate.PUT("/password", authHandler.ChangePassword)
		}

		// Staff accounts are managed by admins only
		userRoutes := private.Group("/users")
		userRoutes.Use(adminOnly)
		{
			userRoutes.POST("", userHandler.CreateUser)
			userRoutes.GET("", userHandler.GetUsers)
			userRoutes.GET("/:id", userHandler.GetUserByID)
			userRoutes.PUT("/:id", userHandler.UpdateUser)
			userRoutes.DELETE("/:id", userHandler.DeleteUser)
		}

		patientRoutes := private.Group("/patients")
		{
			patientRoutes.GET("", patientHandler.GetPatients)
			patientRoutes.GET("/:id", patientHandler.GetPatientByID)
			patientRoutes.POST("", frontDesk, patientHandler.CreatePatient)
			patientRoutes.PATCH("/:id", frontDesk, patientHandler.UpdatePatient)
			patientRoutes.DELETE("/:id", frontDesk, patientHandler.DeletePatient)
		}

		doctorRoutes := private.Group("/doctors")
		{
			doctorRoutes.GET("", doctorHandler.GetDoctors)
			doctorRoutes.GET("/search", doctorHandler.SearchDoctors)
			doctorRoutes.GET("/available", doctorHandler.GetAvailableDoctors)
			doctorRoutes.GET("/specialization/:specialization", doctorHandler.GetDoctorsBySpecialization)
			doctorRoutes.GET("/location/:location", doctorHandler.GetDoctorsByLocation)
			doctorRoutes.GET("/:id", doctorHandler.GetDoctorByID)
			doctorRoutes.GET("/:id/slots", appointmentHandler.GetDoctorSlots)
			doctorRoutes.POST("", adminOnly, doctorHandler.CreateDoctor)
			doctorRoutes.PATCH("/:id", adminOnly, doctorHandler.UpdateDoctor)
			doctorRoutes.DELETE("/:id", adminOnly, doctorHandler.DeleteDoctor)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.GET("/patient/:patientId", appointmentHandler.GetAppointmentsByPatient)
			appointmentRoutes.GET("/doctor/:doctorId", appointmentHandler.GetAppointmentsByDoctor)
			appointmentRoutes.GET("/status/:status", appointmentHandler.GetAppointmentsByStatus)
			appointmentRoutes.GET("/date-range", appointmentHandler.GetAppointmentsByDateRange)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.POST("", frontDesk, appointmentHandler.CreateAppointment)
			appointmentRoutes.PATCH("/:id", frontDesk, appointmentHandler.UpdateAppointment)
			appointmentRoutes.DELETE("/:id", frontDesk, appointmentHandler.DeleteAppointment)
			// Doctors close out their own visits
			appointmentRoutes.PATCH("/:id/status", clinicians, appointmentHandler.UpdateAppointmentStatus)
		}

		queueRoutes := private.Group("/queue")
		{
			queueRoutes.GET("", queueHandler.GetQueue)
			queueRoutes.GET("/active", queueHandler.GetActiveQueue)
			queueRoutes.GET("/stats", queueHandler.GetQueueStats)
			queueRoutes.GET("/status/:status", queueHandler.GetQueueByStatus)
			queueRoutes.GET("/priority/:priority", queueHandler.GetQueueByPriority)
			queueRoutes.GET("/:id", queueHandler.GetQueueItemByID)
			queueRoutes.GET("/:id/ticket", queueHandler.GetQueueTicket)
			queueRoutes.POST("", frontDesk, queueHandler.Enqueue)
			queueRoutes.PATCH("/:id", frontDesk, queueHandler.UpdateQueueItem)
			queueRoutes.DELETE("/:id", frontDesk, queueHandler.DeleteQueueItem)
			queueRoutes.POST("/call-next", clinicians, queueHandler.CallNext)
			queueRoutes.PATCH("/:id/status", clinicians, queueHandler.UpdateQueueItemStatus)
		}
	}

	router.GET("/health", healthCheck(deps.DB, deps.Breaker))
	router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
}

// healthCheck pings the database. An open cache breaker degrades the report
// but not the status code, since the cache is optional.
func healthCheck(db *gorm.DB, breaker interface{ State() gobreaker.State }) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "UP", "database": "UP"}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			body["status"] = "DOWN"
			body["database"] = "DOWN"
			body["error"] = err.Error()
		}

		if breaker != nil {
			body["cache"] = breaker.State().String()
		}

		code := http.StatusOK
		if body["status"] == "DOWN" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, body)
	}
}
