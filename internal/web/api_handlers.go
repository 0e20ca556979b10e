package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victorlcs87/gsv-sync/internal/export"
	"github.com/victorlcs87/gsv-sync/internal/gcal"
	"github.com/victorlcs87/gsv-sync/internal/ingest"
	"github.com/victorlcs87/gsv-sync/internal/store"
	syncengine "github.com/victorlcs87/gsv-sync/internal/sync"
)

// maxImportSize caps upload size for bulk imports.
const maxImportSize = 5 << 20 // 5 MiB

// sanitizeError returns a user-safe error message without exposing internal details.
// Internal error details are logged but not returned to the client.
func sanitizeError(err error, userMessage string) string {
	if err != nil {
		// Log the full error for debugging (server-side only)
		log.Printf("Error: %s - Details: %v", userMessage, err)
	}
	return userMessage
}

// respondSyncError maps engine errors to HTTP responses. The gate errors get
// a machine-readable code so the frontend can prompt for reconnection.
func respondSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, syncengine.ErrReconnectRequired):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Calendar account must be reconnected before changing synced shifts",
			"code":  "reconnect_required",
		})
	case errors.Is(err, syncengine.ErrOffline):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Calendar service is unreachable. Try again when back online.",
			"code":  "offline",
		})
	case errors.Is(err, syncengine.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gcal.ErrAuth):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Calendar authorization expired. Reconnect your account.",
			"code":  "reconnect_required",
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Shift not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Operation failed"),
		})
	}
}

// APIListShifts returns the user's shifts. A stale response comes from the
// snapshot cache and includes when it was taken.
func (h *Handlers) APIListShifts(c *gin.Context) {
	list, err := h.engine.FetchShifts(c.Request.Context(), identity(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load shifts"),
		})
		return
	}

	// Ensure shifts is never null in JSON
	if list.Shifts == nil {
		list.Shifts = []*store.Shift{}
	}
	c.JSON(http.StatusOK, list)
}

// APIGetShift returns a single shift.
func (h *Handlers) APIGetShift(c *gin.Context) {
	shift, ok := h.verifyShiftOwnership(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, shift)
}

// APICreateShift stores a new shift and mirrors it when possible.
func (h *Handlers) APICreateShift(c *gin.Context) {
	var input syncengine.ShiftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.engine.Create(c.Request.Context(), identity(c), input)
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// APIUpdateShift applies a partial update to a shift.
func (h *Handlers) APIUpdateShift(c *gin.Context) {
	if _, ok := h.verifyShiftOwnership(c, c.Param("id")); !ok {
		return
	}

	var patch store.ShiftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	shift, err := h.engine.Update(c.Request.Context(), identity(c), c.Param("id"), &patch)
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, shift)
}

// APIDeleteShift deletes a shift, removing its calendar event first when one
// is linked.
func (h *Handlers) APIDeleteShift(c *gin.Context) {
	if _, ok := h.verifyShiftOwnership(c, c.Param("id")); !ok {
		return
	}

	if err := h.engine.Delete(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Shift deleted"})
}

// APIDeleteAllShifts wipes the user's local records. Calendar events are not
// touched.
func (h *Handlers) APIDeleteAllShifts(c *gin.Context) {
	deleted, err := h.engine.DeleteAll(c.Request.Context(), identity(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to delete shifts"),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// APIImportShifts accepts a CSV upload and bulk-creates shifts.
func (h *Handlers) APIImportShifts(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file upload"})
		return
	}
	defer file.Close()

	parsed, err := ingest.ParseCSV(http.MaxBytesReader(c.Writer, file, maxImportSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": sanitizeError(err, "Could not parse the uploaded file"),
		})
		return
	}

	result, err := h.engine.Import(c.Request.Context(), identity(c), parsed.Rows)
	if err != nil {
		respondSyncError(c, err)
		return
	}

	for _, rowErr := range parsed.Errors {
		result.Errors = append(result.Errors, rowErr.Error())
	}

	c.JSON(http.StatusOK, result)
}

// APITriggerSync pushes pending shifts to the calendar.
func (h *Handlers) APITriggerSync(c *gin.Context) {
	session := identity(c)
	if h.tracker.IsRunning(session.UserID) {
		c.JSON(http.StatusConflict, gin.H{"error": "A sync is already running"})
		return
	}

	run, err := h.engine.SyncPending(c.Request.Context(), session)
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// APISyncRuns returns recent sync run records.
func (h *Handlers) APISyncRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	runs, err := h.db.GetSyncRuns(identity(c).UserID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load sync runs"),
		})
		return
	}

	if runs == nil {
		runs = []*store.SyncRun{}
	}
	c.JSON(http.StatusOK, runs)
}

// APISyncActivity returns in-flight and recent sync passes.
func (h *Handlers) APISyncActivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.GetAll())
}

// APIMonthlyReport returns per-month shift aggregates.
func (h *Handlers) APIMonthlyReport(c *gin.Context) {
	summaries, err := h.db.MonthlySummaries(identity(c).UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to build report"),
		})
		return
	}

	if summaries == nil {
		summaries = []*store.MonthlySummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

// APIExportCSV streams the user's shifts as a CSV download.
func (h *Handlers) APIExportCSV(c *gin.Context) {
	shifts, err := h.db.GetShiftsByUserID(identity(c).UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load shifts"),
		})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", exportFilename("csv"))
	if err := export.WriteCSV(c.Writer, shifts); err != nil {
		log.Printf("CSV export failed: %v", err)
	}
}

// APIExportICS streams the user's shifts as an iCalendar download.
func (h *Handlers) APIExportICS(c *gin.Context) {
	shifts, err := h.db.GetShiftsByUserID(identity(c).UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load shifts"),
		})
		return
	}

	loc, err := h.cfg.Location()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Invalid time zone configuration"),
		})
		return
	}

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", exportFilename("ics"))
	if err := export.WriteICS(c.Writer, shifts, h.cfg.Calendar.EventPrefix, loc); err != nil {
		log.Printf("ICS export failed: %v", err)
	}
}

func exportFilename(ext string) string {
	return fmt.Sprintf(`attachment; filename="shifts-%s.%s"`,
		time.Now().Format("2006-01-02"), ext)
}
