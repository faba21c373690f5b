// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/config"
	"github.com/netwarden/backend/internal/handlers"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, hub *realtime.Hub) *gin.Engine {
	// Initialize services
	authorizationService := services.NewAuthorizationService(db)
	licenseService := services.NewLicenseService(db)
	notificationService := services.NewNotificationService(db, hub)
	intrusionService := services.NewIntrusionService(db, notificationService, authorizationService, hub)
	joinRequestService := services.NewJoinRequestService(db, licenseService, intrusionService,
		notificationService, authorizationService, hub)
	deviceService := services.NewDeviceService(db, notificationService, authorizationService, hub)
	networkService := services.NewNetworkService(db, authorizationService, hub)
	snapshotService := services.NewSnapshotService(db, time.Duration(cfg.Realtime.IntruderWindow)*time.Minute)
	authService := services.NewAuthService(db, licenseService, cfg.JWT)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	networkHandler := handlers.NewNetworkHandler(networkService, snapshotService, authorizationService)
	joinRequestHandler := handlers.NewJoinRequestHandler(joinRequestService)
	deviceHandler := handlers.NewDeviceHandler(deviceService)
	intruderHandler := handlers.NewIntruderHandler(intrusionService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	licenseHandler := handlers.NewLicenseHandler(licenseService)
	realtimeHandler := handlers.NewRealtimeHandler(hub, authorizationService, snapshotService,
		joinRequestService, deviceService, intrusionService, cfg.Realtime.AllowedOrigins)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	agentTokenHash := ""
	if cfg.Server.AgentToken != "" {
		agentTokenHash = utils.HashString(cfg.Server.AgentToken)
	}
	agentAuth := middleware.AgentAuth(agentTokenHash)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Realtime.AllowedOrigins))
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Realtime subscriptions; the handler authenticates itself so it can
	// answer with websocket close codes instead of HTTP statuses.
	r.GET("/realtime", realtimeHandler.Connect)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.RegisterCompany)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
			auth.POST("/users", middleware.AuthRequired(), authHandler.RegisterUser)
		}

		networks := v1.Group("/networks")
		networks.Use(middleware.AuthRequired())
		{
			networks.POST("", networkHandler.Create)
			networks.GET("", networkHandler.List)
			networks.GET("/:id", networkHandler.Get)
			networks.PATCH("/:id", networkHandler.Update)
			networks.DELETE("/:id", networkHandler.Delete)
			networks.POST("/:id/leave", networkHandler.Leave)
			networks.GET("/:id/status", networkHandler.Status)
			networks.GET("/:id/join-requests", joinRequestHandler.ListForNetwork)
			networks.GET("/:id/intruders", intruderHandler.ListForNetwork)
			networks.POST("/:id/intruders/read-all", intruderHandler.MarkAllRead)
		}

		joinRequests := v1.Group("/join-requests")
		joinRequests.Use(middleware.AuthRequired())
		{
			joinRequests.POST("", joinRequestHandler.Create)
			joinRequests.GET("/mine", joinRequestHandler.ListMine)
			joinRequests.POST("/:id/recommend", joinRequestHandler.Recommend)
			joinRequests.POST("/:id/approve", joinRequestHandler.Approve)
			joinRequests.POST("/:id/deny", joinRequestHandler.Deny)
			joinRequests.POST("/:id/cancel", joinRequestHandler.Cancel)
		}

		devices := v1.Group("/devices")
		{
			devices.POST("/heartbeat", middleware.ReportRateLimit(), agentAuth, deviceHandler.Heartbeat)
			devices.Use(middleware.AuthRequired())
			devices.POST("", deviceHandler.Register)
			devices.GET("", deviceHandler.List)
			devices.POST("/:id/block", deviceHandler.Block)
			devices.POST("/:id/unblock", deviceHandler.Unblock)
		}

		intruders := v1.Group("/intruders")
		{
			intruders.POST("/report", middleware.ReportRateLimit(), agentAuth, intruderHandler.Report)
			intruders.POST("/:id/advance", middleware.AuthRequired(), intruderHandler.Advance)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
		}

		license := v1.Group("/license")
		license.Use(middleware.AuthRequired())
		{
			license.GET("", licenseHandler.Get)
			license.POST("/renew", middleware.AdminRequired(), licenseHandler.Renew)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.SuperuserRequired())
		{
			admin.POST("/licenses", licenseHandler.Provision)
			admin.POST("/agent-tokens", handlers.MintAgentToken)
		}
	}

	return r
}
