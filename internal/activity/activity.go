package activity

import (
	"sync"
	"time"
)

// RunActivity represents the current state of a sync pass for one user.
type RunActivity struct {
	UserID        string     `json:"user_id"`
	Trigger       string     `json:"trigger"`
	Status        string     `json:"status"` // "running", "completed", "partial", "error"
	TotalPending  int        `json:"total_pending"`
	EventsCreated int        `json:"events_created"`
	EventsLinked  int        `json:"events_linked"`
	EventsFailed  int        `json:"events_failed"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Duration      string     `json:"duration,omitempty"`
	Message       string     `json:"message,omitempty"`
	Errors        []string   `json:"errors,omitempty"`
}

// Tracker tracks sync activity across all users.
type Tracker struct {
	mu        sync.RWMutex
	active    map[string]*RunActivity // userID -> activity
	recent    []*RunActivity          // Recently completed runs
	maxRecent int
}

// NewTracker creates a new activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:    make(map[string]*RunActivity),
		recent:    make([]*RunActivity, 0),
		maxRecent: 20, // Keep last 20 completed runs
	}
}

// StartRun begins tracking a new sync pass.
func (t *Tracker) StartRun(userID, trigger string, totalPending int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[userID] = &RunActivity{
		UserID:       userID,
		Trigger:      trigger,
		Status:       "running",
		TotalPending: totalPending,
		StartedAt:    time.Now(),
	}
}

// Progress updates the counters of an in-flight run.
func (t *Tracker) Progress(userID string, created, linked, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if activity, exists := t.active[userID]; exists {
		activity.EventsCreated = created
		activity.EventsLinked = linked
		activity.EventsFailed = failed
	}
}

// FinishRun marks a run as completed and moves it to recent.
func (t *Tracker) FinishRun(userID string, success bool, message string, errors []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	activity, exists := t.active[userID]
	if !exists {
		return
	}

	now := time.Now()
	activity.CompletedAt = &now
	activity.Duration = now.Sub(activity.StartedAt).Round(time.Millisecond).String()
	activity.Message = message
	activity.Errors = errors

	if success {
		if len(errors) > 0 {
			activity.Status = "partial"
		} else {
			activity.Status = "completed"
		}
	} else {
		activity.Status = "error"
	}

	// Move to recent list
	t.recent = append([]*RunActivity{activity}, t.recent...)
	if len(t.recent) > t.maxRecent {
		t.recent = t.recent[:t.maxRecent]
	}

	// Remove from active
	delete(t.active, userID)
}

// GetActive returns all currently running sync passes.
func (t *Tracker) GetActive() []*RunActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*RunActivity, 0, len(t.active))
	for _, activity := range t.active {
		// Create a copy to avoid race conditions
		copy := *activity
		copy.Duration = time.Since(activity.StartedAt).Round(time.Millisecond).String()
		result = append(result, &copy)
	}
	return result
}

// GetRecent returns recently completed sync passes.
func (t *Tracker) GetRecent() []*RunActivity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*RunActivity, len(t.recent))
	for i, activity := range t.recent {
		copy := *activity
		result[i] = &copy
	}
	return result
}

// GetAll returns both active and recent sync passes.
func (t *Tracker) GetAll() map[string]interface{} {
	return map[string]interface{}{
		"active": t.GetActive(),
		"recent": t.GetRecent(),
	}
}

// IsRunning returns true if the given user has a sync pass in flight.
func (t *Tracker) IsRunning(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.active[userID]
	return exists
}
