package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victorlcs87/gsv-sync/internal/activity"
	"github.com/victorlcs87/gsv-sync/internal/auth"
	"github.com/victorlcs87/gsv-sync/internal/config"
	"github.com/victorlcs87/gsv-sync/internal/connectivity"
	"github.com/victorlcs87/gsv-sync/internal/store"
	syncengine "github.com/victorlcs87/gsv-sync/internal/sync"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg     *config.Config
	db      *store.DB
	oidc    *auth.OIDCProvider
	session *auth.SessionManager
	engine  *syncengine.Engine
	tracker *activity.Tracker
	monitor *connectivity.Monitor
	started time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	cfg *config.Config,
	database *store.DB,
	oidc *auth.OIDCProvider,
	session *auth.SessionManager,
	engine *syncengine.Engine,
	tracker *activity.Tracker,
	monitor *connectivity.Monitor,
) *Handlers {
	return &Handlers{
		cfg:     cfg,
		db:      database,
		oidc:    oidc,
		session: session,
		engine:  engine,
		tracker: tracker,
		monitor: monitor,
		started: time.Now(),
	}
}

// identity builds the sync identity for the current session.
func identity(c *gin.Context) syncengine.Identity {
	session := auth.GetCurrentUser(c)
	if session == nil {
		return syncengine.Identity{}
	}
	return syncengine.Identity{
		UserID:        session.UserID,
		CalendarToken: session.CalendarToken,
	}
}

// HealthCheck returns a full health report.
func (h *Handlers) HealthCheck(c *gin.Context) {
	report := gin.H{
		"status":  "healthy",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"offline": h.monitor.Offline(),
	}

	status := http.StatusOK
	if err := h.db.Ping(); err != nil {
		report["status"] = "unhealthy"
		report["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, report)
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Readiness checks all dependencies.
func (h *Handlers) Readiness(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Login initiates OIDC authentication.
func (h *Handlers) Login(c *gin.Context) {
	state, err := auth.GenerateState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate state"})
		return
	}

	if err := h.session.SetOAuthState(c.Writer, c.Request, state); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save state"})
		return
	}

	authURL := h.oidc.AuthCodeURL(state)
	c.Redirect(http.StatusFound, authURL)
}

// Callback handles the OIDC callback. The access token from the exchange is
// stored in the session as the delegated calendar token.
func (h *Handlers) Callback(c *gin.Context) {
	// Verify state
	state := c.Query("state")
	savedState, err := h.session.GetOAuthState(c.Writer, c.Request)
	if err != nil || state != savedState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state parameter"})
		return
	}

	// Check for error from OIDC provider
	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed: " + errParam})
		return
	}

	// Exchange code for token
	code := c.Query("code")
	token, err := h.oidc.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to exchange code"})
		return
	}

	// Verify ID token and get claims
	claims, err := h.oidc.VerifyIDToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify token"})
		return
	}

	// Get or create user
	user, err := h.db.GetOrCreateUser(claims.Email, claims.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	// Create session
	sessionData := &auth.SessionData{
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		CalendarToken: token.AccessToken,
	}
	if err := h.session.Set(c.Writer, c.Request, sessionData); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	// Check for redirect cookie with validation to prevent open redirect
	redirectURL := "/"
	if cookie, err := c.Cookie("redirect_after_login"); err == nil && cookie != "" {
		// Only use redirect URL if it's safe (relative path, no protocol)
		if IsSafeRedirectURL(cookie) {
			redirectURL = cookie
		}
		c.SetCookie("redirect_after_login", "", -1, "/", "", h.cfg.IsProduction(), true)
	}

	c.Redirect(http.StatusFound, redirectURL)
}

// Logout clears the session.
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.session.Clear(c.Writer, c.Request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}
	c.Redirect(http.StatusFound, "/auth/login")
}

// APIUser represents a user in JSON format.
type APIUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthStatusResponse represents auth status response.
type AuthStatusResponse struct {
	Authenticated     bool     `json:"authenticated"`
	CalendarConnected bool     `json:"calendar_connected"`
	Offline           bool     `json:"offline"`
	User              *APIUser `json:"user,omitempty"`
}

// APIAuthStatus returns the current authentication and connectivity state.
func (h *Handlers) APIAuthStatus(c *gin.Context) {
	resp := &AuthStatusResponse{Offline: h.monitor.Offline()}

	session := auth.GetCurrentUser(c)
	if session != nil {
		resp.Authenticated = true
		resp.CalendarConnected = session.CalendarToken != ""
		resp.User = &APIUser{
			ID:    session.UserID,
			Email: session.Email,
			Name:  session.Name,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// APILogout clears the session (JSON variant).
func (h *Handlers) APILogout(c *gin.Context) {
	if err := h.session.Clear(c.Writer, c.Request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// verifyShiftOwnership loads a shift and checks it belongs to the session
// user. Responds with 404 on any mismatch so shift IDs are not probeable.
func (h *Handlers) verifyShiftOwnership(c *gin.Context, shiftID string) (*store.Shift, bool) {
	session := auth.GetCurrentUser(c)
	shift, err := h.db.GetShiftByID(shiftID)
	if err != nil || session == nil || shift.UserID != session.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shift not found"})
		return nil, false
	}
	return shift, true
}
