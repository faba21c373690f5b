// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/config"
	"github.com/netwarden/backend/internal/database"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/router"
	"github.com/netwarden/backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Start the realtime hub
	hub := realtime.NewHub()
	hub.Start()
	defer hub.Stop()

	// Initialize router
	r := router.Initialize(db, cfg, hub)

	// Background reaper: devices that stop heartbeating go offline.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go runDeviceReaper(reaperCtx, db, hub)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func runDeviceReaper(ctx context.Context, db *gorm.DB, hub *realtime.Hub) {
	notifications := services.NewNotificationService(db, hub)
	authz := services.NewAuthorizationService(db)
	devices := services.NewDeviceService(db, notifications, authz, hub)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := devices.MarkOffline(3 * time.Minute); err != nil {
				logrus.WithError(err).Error("Device reaper failed")
			} else if n > 0 {
				logrus.WithField("count", n).Info("Marked stale devices offline")
			}
		}
	}
}
