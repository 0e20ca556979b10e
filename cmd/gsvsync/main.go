package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victorlcs87/gsv-sync/internal/activity"
	"github.com/victorlcs87/gsv-sync/internal/auth"
	"github.com/victorlcs87/gsv-sync/internal/cache"
	"github.com/victorlcs87/gsv-sync/internal/config"
	"github.com/victorlcs87/gsv-sync/internal/connectivity"
	"github.com/victorlcs87/gsv-sync/internal/gcal"
	"github.com/victorlcs87/gsv-sync/internal/notify"
	"github.com/victorlcs87/gsv-sync/internal/pricing"
	"github.com/victorlcs87/gsv-sync/internal/scheduler"
	"github.com/victorlcs87/gsv-sync/internal/store"
	syncengine "github.com/victorlcs87/gsv-sync/internal/sync"
	"github.com/victorlcs87/gsv-sync/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting gsv-sync...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid time zone configuration: %v", err)
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	rule := pricing.HourlyRate{Rate: cfg.Pricing.HourlyRate, NetFactor: cfg.Pricing.NetFactor}
	database, err := store.New(cfg.Database.Path, rule)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Initialize OIDC provider
	ctx := context.Background()
	oidcProvider, err := auth.NewOIDCProvider(
		ctx,
		cfg.OIDC.Issuer,
		cfg.OIDC.ClientID,
		cfg.OIDC.ClientSecret,
		cfg.OIDC.RedirectURL,
	)
	if err != nil {
		log.Fatalf("Failed to initialize OIDC provider: %v", err)
	}

	// Initialize session manager
	sessionManager := auth.NewSessionManager(cfg.Security.SessionSecret, cfg.IsProduction())

	// Initialize snapshot cache when Redis is configured
	var snapshots *cache.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unreachable, snapshot cache disabled: %v", err)
		} else {
			snapshots = cache.New(rdb)
			log.Printf("Snapshot cache enabled (%s)", cfg.Redis.Addr)
		}
	}

	// Initialize calendar client
	var calOpts []gcal.Option
	if cfg.Calendar.BaseURL != "" {
		calOpts = append(calOpts, gcal.WithBaseURL(cfg.Calendar.BaseURL))
	}
	calClient := gcal.NewClient(calOpts...)

	// Start connectivity monitoring
	monitor := connectivity.NewMonitor(cfg.Sync.ConnectivityURL,
		connectivity.WithInterval(cfg.Sync.ProbeInterval))
	monitor.Start(ctx)
	defer monitor.Stop()

	// Initialize notifier for sync failure alerts
	if cfg.Notify.WebhookURL != "" {
		if err := notify.ValidateWebhookURL(cfg.Notify.WebhookURL); err != nil {
			log.Fatalf("Invalid alert configuration: %v", err)
		}
	}
	notifier := notify.New(cfg.Notify.WebhookURL)
	if notifier.IsEnabled() {
		log.Println("Sync failure notifications enabled")
	}

	// Initialize sync engine
	tracker := activity.NewTracker()
	engine := syncengine.NewEngine(database, calClient, monitor, snapshots,
		syncengine.WithCalendarName(cfg.Calendar.CalendarName),
		syncengine.WithEventPrefix(cfg.Calendar.EventPrefix),
		syncengine.WithLocation(loc),
		syncengine.WithBatchSize(cfg.Sync.BatchSize),
		syncengine.WithTracker(tracker),
		syncengine.WithNotifier(notifier),
	)

	// Initialize scheduler
	sched := scheduler.New(database,
		scheduler.WithCleanupInterval(cfg.Sync.CleanupInterval),
		scheduler.WithRetentionDays(cfg.Sync.RunRetentionDays),
	)

	// Initialize handlers
	handlers := web.NewHandlers(
		cfg,
		database,
		oidcProvider,
		sessionManager,
		engine,
		tracker,
		monitor,
	)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestLogger())
	router.Use(web.SecurityHeaders())

	// Setup routes
	web.SetupRoutes(router, handlers, sessionManager)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Start scheduler
	sched.Start()

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop scheduler
	sched.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
