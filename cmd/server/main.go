package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/greengrey/guesthouse-backend/internal/config"
	"github.com/greengrey/guesthouse-backend/internal/database"
	"github.com/greengrey/guesthouse-backend/internal/handlers"
	"github.com/greengrey/guesthouse-backend/internal/metrics"
	"github.com/greengrey/guesthouse-backend/internal/middleware"
	"github.com/greengrey/guesthouse-backend/internal/models"
	"github.com/greengrey/guesthouse-backend/internal/services"
	"github.com/greengrey/guesthouse-backend/pkg/jwt"
	"github.com/greengrey/guesthouse-backend/pkg/validator"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Green & Grey guest house backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if err := validator.RegisterGinValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	metrics.Register()

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Redis is optional; without it the login throttle is off
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = newRedisClient(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, login throttling disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("Redis connection established")
		}
	}

	// Repositories
	userRepository := database.NewUserRepository(db)
	userSessionRepository := database.NewUserSessionRepository(db)
	roomRepository := database.NewRoomRepository(db)
	bookingRepository := database.NewBookingRepository(db)
	paymentRepository := database.NewPaymentRepository(db)
	paymentEventRepository := database.NewPaymentEventRepository(db, logger)

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	rateLimitService := services.NewRateLimitService(redisClient, cfg.Redis.LoginMaxAttempts, cfg.Redis.LoginWindow, logger)
	authService := services.NewAuthService(userRepository, userSessionRepository, rateLimitService, jwtService, cfg.Security.BcryptCost, logger)

	paystackService := services.NewPaystackService(&cfg.Payment, logger)
	if !paystackService.IsConfigured() {
		logger.Warn("PAYSTACK_SECRET_KEY not set - payments cannot be collected or verified")
	}

	availabilityService := services.NewAvailabilityService(roomRepository)
	identityService := services.NewIdentityService(userRepository, logger)
	bookingLedger := services.NewBookingLedger(bookingRepository, logger)
	paymentBridge := services.NewPaymentBridge(paymentRepository, paystackService, &cfg.Payment, logger)
	reconciliationService := services.NewReconciliationService(paymentRepository, paymentBridge, paymentEventRepository, logger)
	workflowService := services.NewBookingWorkflowService(
		identityService,
		bookingLedger,
		paymentBridge,
		reconciliationService,
		bookingRepository,
		paymentRepository,
		paymentEventRepository,
		&cfg.Payment,
		logger,
	)
	exportService := services.NewExportService(bookingRepository, logger)

	// Background jobs
	expiryService := services.NewBookingExpiryService(bookingRepository, paymentEventRepository, cfg.Booking, logger)
	expiryService.Start()

	cronService := services.NewCronService(userSessionRepository, reconciliationService, cfg.Booking, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Services initialized")

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, handlers.CookieSettings{
		Name:   cfg.JWT.CookieName,
		Secure: cfg.Server.IsProduction(),
	}, logger)
	roomHandler := handlers.NewRoomHandler(roomRepository, availabilityService, logger)
	bookingHandler := handlers.NewBookingHandler(workflowService, bookingRepository, logger)
	paymentHandler := handlers.NewPaymentHandler(workflowService, reconciliationService, paystackService, cfg.Payment.CallbackURL, logger)
	adminHandler := handlers.NewAdminHandler(bookingLedger, exportService, expiryService, cronService, paymentEventRepository, logger)

	authenticator := middleware.NewAuthenticator(jwtService, authService, cfg.JWT.CookieName, logger)

	// Setup router
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Metrics())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db, workflowService))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Booking and payment endpoints take anonymous traffic; throttle them per IP
	var throttle gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		throttle = middleware.NewIPRateLimiter(cfg.RateLimit).Middleware()
	}

	api := router.Group("/api")
	{
		// Authentication routes
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)

			protected := auth.Group("")
			protected.Use(authenticator.RequireAuth())
			{
				protected.POST("/logout", authHandler.Logout)
				protected.GET("/me", authHandler.Me)
			}
		}

		// Rooms (public)
		rooms := api.Group("/rooms")
		{
			rooms.GET("", roomHandler.ListRooms)
			rooms.GET("/available", roomHandler.AvailableRooms)
			rooms.GET("/:idOrSlug", roomHandler.GetRoom)
		}

		// Booking form (guests may be anonymous)
		booking := api.Group("/booking")
		booking.Use(throttle, authenticator.OptionalAuth())
		{
			booking.POST("/create", bookingHandler.CreateBooking)
		}

		// Payment routes
		payment := api.Group("/payment")
		payment.Use(throttle)
		{
			payment.POST("/initialize", paymentHandler.InitializePayment)
			payment.POST("/verify", paymentHandler.VerifyPayment)
			payment.POST("/cancel", paymentHandler.CancelPayment)
			payment.POST("/webhook", paymentHandler.PaymentWebhook)
		}

		// Guest booking views
		bookings := api.Group("/bookings")
		bookings.Use(authenticator.RequireAuth())
		{
			bookings.GET("/mine", bookingHandler.ListMyBookings)
			bookings.GET("/:id", middleware.RequireBookingAccess(bookingRepository, logger), bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
		}

		// Staff and admin routes
		admin := api.Group("/admin")
		admin.Use(authenticator.RequireAuth(), middleware.RequireRole(models.RoleStaff, models.RoleAdmin))
		{
			admin.PATCH("/bookings/:id/status", adminHandler.UpdateBookingStatus)
			admin.GET("/bookings/export", adminHandler.ExportBookings)
			admin.GET("/payments/:reference/events", adminHandler.PaymentEvents)

			adminOnly := admin.Group("")
			adminOnly.Use(middleware.RequireRole(models.RoleAdmin))
			{
				adminOnly.POST("/maintenance/expire-bookings", adminHandler.ExpireBookings)
				adminOnly.GET("/cron/status", adminHandler.CronStatus)
				adminOnly.POST("/cron/:job/run", adminHandler.RunCronJob)
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Stopping background jobs...")
	cronService.Stop()
	expiryService.Stop()
	if err := workflowService.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Payment watchers did not stop in time")
	}

	logger.Info("Server exited successfully")
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, workflow *services.BookingWorkflowService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"database":         "healthy",
			"payment_watchers": workflow.ActiveWatchers(),
			"version":          version,
			"timestamp":        time.Now().Unix(),
		})
	}
}
