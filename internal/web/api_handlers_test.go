package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/victorlcs87/gsv-sync/internal/auth"
	"github.com/victorlcs87/gsv-sync/internal/gcal"
	"github.com/victorlcs87/gsv-sync/internal/store"
	syncengine "github.com/victorlcs87/gsv-sync/internal/sync"
)

// apiRouter binds the JSON API routes with a fixed session injected, so
// handler tests exercise real routing without cookie machinery.
func apiRouter(h *Handlers, session *auth.SessionData) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if session != nil {
			c.Set(auth.ContextKeySession, session)
		}
	})

	r.GET("/api/shifts", h.APIListShifts)
	r.POST("/api/shifts", h.APICreateShift)
	r.GET("/api/shifts/:id", h.APIGetShift)
	r.PATCH("/api/shifts/:id", h.APIUpdateShift)
	r.DELETE("/api/shifts/:id", h.APIDeleteShift)
	r.DELETE("/api/shifts", h.APIDeleteAllShifts)
	r.POST("/api/shifts/import", h.APIImportShifts)
	r.POST("/api/sync", h.APITriggerSync)
	r.GET("/api/sync/runs", h.APISyncRuns)
	r.GET("/api/sync/activity", h.APISyncActivity)
	r.GET("/api/reports/monthly", h.APIMonthlyReport)
	r.GET("/api/export/csv", h.APIExportCSV)
	r.GET("/api/export/ics", h.APIExportICS)
	return r
}

func createAPIShift(t *testing.T, r *gin.Engine, body string) *store.Shift {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/shifts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var result syncengine.CreateResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}
	return result.Shift
}

const shiftJSON = `{"date":"2026-03-15","kind":"extra","location":"Terminal 3","start_hour":19,"end_hour":7,"operation":"Carnival"}`

func TestAPICreateShift(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)

	t.Run("creates pending shift with warning", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/shifts", strings.NewReader(shiftJSON))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var result syncengine.CreateResult
		json.Unmarshal(w.Body.Bytes(), &result)
		if result.Shift == nil || result.Shift.Hours != 12 {
			t.Errorf("shift = %+v", result.Shift)
		}
		if result.Warning == "" {
			t.Error("no calendar token, expected a warning")
		}
		if result.Shift.SyncStatus != store.SyncStatusPending {
			t.Errorf("SyncStatus = %q", result.Shift.SyncStatus)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/shifts", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("rejects invalid fields", func(t *testing.T) {
		w := httptest.NewRecorder()
		bad := `{"date":"15/03/2026","kind":"extra","location":"T3","start_hour":19,"end_hour":7}`
		req := httptest.NewRequest(http.MethodPost, "/api/shifts", strings.NewReader(bad))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestAPIListShifts(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)

	t.Run("empty list is never null", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shifts", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"shifts":[]`) {
			t.Errorf("body = %s, want empty array", w.Body.String())
		}
	})

	t.Run("returns created shifts", func(t *testing.T) {
		createAPIShift(t, r, shiftJSON)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shifts", nil))

		var list syncengine.ShiftList
		if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(list.Shifts) != 1 {
			t.Errorf("shifts = %d, want 1", len(list.Shifts))
		}
		if list.Stale {
			t.Error("live read must not be stale")
		}
	})
}

func TestAPIGetShift(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)
	shift := createAPIShift(t, r, shiftJSON)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shifts/"+shift.ID, nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shifts/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAPIUpdateShift(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)
	shift := createAPIShift(t, r, shiftJSON)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/shifts/"+shift.ID,
		strings.NewReader(`{"location":"Terminal 1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated store.Shift
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Location != "Terminal 1" {
		t.Errorf("Location = %q", updated.Location)
	}
}

func TestAPIDeleteShift(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)
	shift := createAPIShift(t, r, shiftJSON)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/shifts/"+shift.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if _, err := harness.db.GetShiftByID(shift.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("shift should be gone, got %v", err)
	}
}

func TestAPIDeleteAllShifts(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)

	createAPIShift(t, r, shiftJSON)
	createAPIShift(t, r, strings.Replace(shiftJSON, "2026-03-15", "2026-03-16", 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/shifts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]int64
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["deleted"] != 2 {
		t.Errorf("deleted = %d, want 2", body["deleted"])
	}
}

func TestAPIImportShifts(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)

	t.Run("imports upload", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", "shifts.csv")
		part.Write([]byte("date,location,start,end\n2026-03-15,Terminal 3,19,7\nbad-date,Terminal 3,8,17\n"))
		mw.Close()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/shifts/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var result syncengine.ImportResult
		json.Unmarshal(w.Body.Bytes(), &result)
		if result.Imported != 1 {
			t.Errorf("Imported = %d, want 1", result.Imported)
		}
		if len(result.Errors) != 1 {
			t.Errorf("Errors = %v, want the bad row reported", result.Errors)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/shifts/import", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestAPITriggerSync(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()

	t.Run("requires calendar connection", func(t *testing.T) {
		r := apiRouter(harness.handlers, harness.session)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

		if w.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", w.Code)
		}
		if !strings.Contains(w.Body.String(), "reconnect_required") {
			t.Errorf("body = %s, want reconnect_required code", w.Body.String())
		}
	})

	t.Run("refuses concurrent runs", func(t *testing.T) {
		session := *harness.session
		session.CalendarToken = "tok"
		r := apiRouter(harness.handlers, &session)

		harness.handlers.tracker.StartRun(session.UserID, "manual", 1)
		defer harness.handlers.tracker.FinishRun(session.UserID, true, "", nil)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
		if !strings.Contains(w.Body.String(), "already running") {
			t.Errorf("body = %s", w.Body.String())
		}
	})
}

func TestAPISyncRuns(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/runs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s, want empty array, never null", w.Body.String())
	}
}

func TestAPISyncActivity(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync/activity", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := body["active"]; !ok {
		t.Error("missing active runs")
	}
	if _, ok := body["recent"]; !ok {
		t.Error("missing recent runs")
	}
}

func TestAPIMonthlyReport(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)
	createAPIShift(t, r, shiftJSON)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reports/monthly", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var summaries []*store.MonthlySummary
	if err := json.Unmarshal(w.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Month != "2026-03" {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestAPIExportCSV(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)
	createAPIShift(t, r, shiftJSON)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export/csv", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(w.Body.String(), "Terminal 3") {
		t.Error("export body missing shift data")
	}
}

func TestAPIExportICS(t *testing.T) {
	harness, cleanup := setupTestHandlers(t)
	defer cleanup()
	r := apiRouter(harness.handlers, harness.session)
	createAPIShift(t, r, shiftJSON)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export/ics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "BEGIN:VEVENT") {
		t.Error("export body missing events")
	}
}

func TestRespondSyncError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"reconnect gate", syncengine.ErrReconnectRequired, http.StatusConflict, "reconnect_required"},
		{"offline gate", syncengine.ErrOffline, http.StatusServiceUnavailable, "offline"},
		{"validation", syncengine.ErrValidation, http.StatusBadRequest, ""},
		{"expired auth", gcal.ErrAuth, http.StatusConflict, "reconnect_required"},
		{"missing record", store.ErrNotFound, http.StatusNotFound, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Operation failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			respondSyncError(c, tc.err)

			if w.Code != tc.code {
				t.Errorf("status = %d, want %d", w.Code, tc.code)
			}
			if tc.body != "" && !strings.Contains(w.Body.String(), tc.body) {
				t.Errorf("body = %s, want %q", w.Body.String(), tc.body)
			}
		})
	}
}
