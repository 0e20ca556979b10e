package web

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/victorlcs87/gsv-sync/internal/auth"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers, sm *auth.SessionManager) {
	// Health endpoints (no auth, no rate limit)
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)

	// Auth endpoints with rate limiting to prevent brute force attacks
	authRateLimiter := RateLimiter(5, 10) // 5 requests/sec, burst of 10
	authGroup := r.Group("/auth")
	authGroup.Use(authRateLimiter)
	{
		authGroup.GET("/login", h.Login)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/callback", h.Callback)
		authGroup.POST("/logout", h.Logout)
	}

	// API routes for the frontend with rate limiting
	apiRateLimiter := RateLimiter(30, 60) // 30 requests/sec, burst of 60
	apiGroup := r.Group("/api")
	apiGroup.Use(apiRateLimiter)
	apiGroup.Use(auth.OptionalAuth(sm))
	{
		apiGroup.GET("/auth/status", h.APIAuthStatus)
		apiGroup.POST("/auth/logout", h.APILogout)
	}

	// Protected API routes with rate limiting, origin validation, and content-type validation
	protectedAPI := r.Group("/api")
	protectedAPI.Use(apiRateLimiter)
	protectedAPI.Use(auth.RequireAuth(sm))
	protectedAPI.Use(ValidateOrigin())         // CSRF protection via origin check
	protectedAPI.Use(RequireJSONContentType()) // Validate Content-Type header
	{
		protectedAPI.GET("/shifts", h.APIListShifts)
		protectedAPI.POST("/shifts", h.APICreateShift)
		protectedAPI.GET("/shifts/:id", h.APIGetShift)
		protectedAPI.PATCH("/shifts/:id", h.APIUpdateShift)
		protectedAPI.DELETE("/shifts/:id", h.APIDeleteShift)
		protectedAPI.DELETE("/shifts", h.APIDeleteAllShifts)
		protectedAPI.GET("/sync/runs", h.APISyncRuns)
		protectedAPI.GET("/sync/activity", h.APISyncActivity)
		protectedAPI.GET("/reports/monthly", h.APIMonthlyReport)
		protectedAPI.GET("/export/csv", h.APIExportCSV)
		protectedAPI.GET("/export/ics", h.APIExportICS)
	}

	// Expensive operations with stricter rate limiting (remote calendar calls)
	expensiveRateLimiter := RateLimiter(2, 5) // 2 requests/sec, burst of 5
	expensiveAPI := r.Group("/api")
	expensiveAPI.Use(expensiveRateLimiter)
	expensiveAPI.Use(auth.RequireAuth(sm))
	expensiveAPI.Use(ValidateOrigin())
	{
		// Import takes a multipart upload, so no JSON content-type check here
		expensiveAPI.POST("/shifts/import", h.APIImportShifts)
		expensiveAPI.POST("/sync", h.APITriggerSync)
	}

	// Serve frontend static files
	setupFrontend(r)
}

// setupFrontend configures serving of the SPA frontend.
func setupFrontend(r *gin.Engine) {
	// Check if frontend build exists
	webDistPath := "web/dist"
	if _, err := os.Stat(webDistPath); os.IsNotExist(err) {
		// In development or frontend not built yet
		return
	}

	// Serve static assets
	r.Static("/assets", filepath.Join(webDistPath, "assets"))
	r.StaticFile("/favicon.ico", filepath.Join(webDistPath, "favicon.ico"))

	// SPA fallback - serve index.html for all unmatched routes
	r.NoRoute(func(c *gin.Context) {
		// Don't serve index.html for API routes
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		// Don't serve index.html for auth routes
		if len(c.Request.URL.Path) >= 5 && c.Request.URL.Path[:5] == "/auth" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		// Don't serve index.html for health routes
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/ready" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		c.File(filepath.Join(webDistPath, "index.html"))
	})
}
