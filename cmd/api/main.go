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
	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/handlers"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/middleware"
	"github.com/otpeak/otp-service/internal/observability"
	"github.com/otpeak/otp-service/internal/services"
	"github.com/otpeak/otp-service/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/otpeak/otp-service/docs"
)

// @title           OTP Service API
// @version         1.0
// @description     Multi-tenant one-time password issuance and verification service. Clients authenticate with an API key, projects carry a token budget that is charged per issued code, and delivery happens asynchronously over email or WhatsApp.

// @contact.name   API Support

// @license.name  MIT

// @host      localhost:8080
// @BasePath  /v1

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey AdminAuth
// @in header
// @name Authorization

// @tag.name otp
// @tag.description OTP issuance and verification

// @tag.name projects
// @tag.description Project management

// @tag.name analytics
// @tag.description OTP records and statistics

// @tag.name admin
// @tag.description Operator endpoints

// @tag.name health
// @tag.description Health check operations

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}

	// Initialize observability
	observability.InitTracer()
	defer observability.ShutdownTracer()

	// Initialize database connections
	config.InitMongoDB()
	config.InitRedis()

	clients := config.MongoDB.Collection(config.AppConfig.ClientCollection)
	projects := config.MongoDB.Collection(config.AppConfig.ProjectCollection)
	otps := config.MongoDB.Collection(config.AppConfig.OTPCollection)

	// Wire services
	keyService := services.NewAPIKeyService(clients, config.Redis, config.AppConfig.APIKeyCacheTTL)
	clientService := services.NewClientService(clients, keyService)
	projectService := services.NewProjectService(projects)
	otpStore := services.NewMongoOTPStore(otps)
	ledger := services.NewMongoTokenLedger(projects)

	queue := services.NewDispatchQueue(&utils.Notifier{},
		config.AppConfig.DispatchWorkers, config.AppConfig.DispatchQueueSize)
	defer queue.Stop()

	engine := services.NewOTPEngine(otpStore, ledger, queue)

	sweeper := services.NewCleanupSweeper(otpStore, config.AppConfig.OTPCleanupInterval)
	defer sweeper.Stop()

	var counterStore services.CounterStore
	if config.AppConfig.RateLimitUseRedis {
		counterStore = services.NewRedisCounterStore(config.Redis)
	} else {
		memStore := services.NewMemoryCounterStore(config.AppConfig.RateLimitWindow)
		defer memStore.Stop()
		counterStore = memStore
	}
	limiter := services.NewRateLimiter(counterStore,
		config.AppConfig.RateLimitWindow, config.AppConfig.RateLimitMaxRequests)

	otpHandler := handlers.NewOTPHandler(engine, projectService)
	projectHandler := handlers.NewProjectHandler(projectService, otpStore)
	adminHandler := handlers.NewAdminHandler(clientService, sweeper, queue)
	healthHandler := handlers.NewHealthHandler(config.MongoDB.Client(), config.Redis, queue)

	// Set Gin mode
	if config.AppConfig.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router with middleware
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RequestTracker(),
		cors.Default(),
	)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/v1")
	{
		v1.GET("/health", healthHandler.Health)

		authed := v1.Group("", middleware.APIKeyAuth(keyService))
		{
			authed.POST("/projects", projectHandler.Create)
			authed.GET("/projects", projectHandler.List)
			authed.GET("/projects/:projectId", projectHandler.Get)
			authed.PATCH("/projects/:projectId", projectHandler.Update)
			authed.POST("/projects/:projectId/tokens", projectHandler.AddTokens)
			authed.PUT("/projects/:projectId/active", projectHandler.SetActive)
			authed.GET("/projects/:projectId/otp/records", projectHandler.Records)
			authed.GET("/projects/:projectId/otp/stats", projectHandler.Stats)

			otp := authed.Group("", middleware.RateLimit(limiter, projectService))
			{
				otp.POST("/projects/:projectId/otp/send", otpHandler.Send)
				otp.POST("/projects/:projectId/otp/verify", otpHandler.Verify)
			}
		}

		admin := v1.Group("/admin", middleware.AdminAuth())
		{
			admin.POST("/clients", adminHandler.CreateClient)
			admin.GET("/clients", adminHandler.ListClients)
			admin.PUT("/clients/:id/active", adminHandler.SetClientActive)
			admin.POST("/clients/:id/rotate-key", adminHandler.RotateClientKey)
			admin.POST("/cleanup", adminHandler.Cleanup)
			admin.GET("/queue/stats", adminHandler.QueueStats)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Create server with timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.AppConfig.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", config.AppConfig.Port),
			zap.String("environment", config.AppConfig.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logging.Logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logging.Logger.Info("server exited gracefully")
}
