// Package sync implements the bidirectional shift synchronization engine.
// The local store is the source of truth for record data; the remote
// calendar is a mirror. Creation is local-first with a best-effort mirror,
// while updates and deletes of linked records go remote-first so the two
// sides never diverge silently.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/victorlcs87/gsv-sync/internal/activity"
	"github.com/victorlcs87/gsv-sync/internal/cache"
	"github.com/victorlcs87/gsv-sync/internal/connectivity"
	"github.com/victorlcs87/gsv-sync/internal/gcal"
	"github.com/victorlcs87/gsv-sync/internal/store"
)

var (
	// ErrReconnectRequired means the shift is linked to a remote event but no
	// calendar token is available, so a consistent update or delete cannot be
	// guaranteed. The caller must re-authenticate before retrying.
	ErrReconnectRequired = errors.New("calendar reconnection required")

	// ErrOffline means the operation needs the remote calendar and the
	// connectivity monitor currently reports the service as unreachable.
	ErrOffline = errors.New("calendar service unreachable")

	// ErrValidation wraps input validation failures.
	ErrValidation = errors.New("validation failed")
)

const (
	// dedupeTolerance is how far apart two event start instants may be while
	// still counting as the same event during duplicate detection.
	dedupeTolerance = 60 * time.Second

	defaultBatchSize    = 10
	defaultCalendarName = "GSV Calendar"
	defaultEventPrefix  = "GSV"
)

// Identity carries the acting user and their delegated calendar token. An
// empty token means the calendar account is not connected.
type Identity struct {
	UserID        string
	CalendarToken string
}

// Connected reports whether a calendar token is available.
func (id Identity) Connected() bool {
	return id.CalendarToken != ""
}

// FailureNotifier receives alerts about sync passes that ended with
// failures.
type FailureNotifier interface {
	SyncFailed(ctx context.Context, userID, message string, errors []string) bool
}

// Engine coordinates the local store, the remote calendar client, the
// connectivity monitor and the snapshot cache.
type Engine struct {
	db       *store.DB
	cal      *gcal.Client
	probe    connectivity.Probe
	snap     *cache.Store
	tracker  *activity.Tracker
	notifier FailureNotifier
	validate *validator.Validate

	prefix       string
	calendarName string
	loc          *time.Location
	batchSize    int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCalendarName sets the summary of the dedicated remote calendar.
func WithCalendarName(name string) EngineOption {
	return func(e *Engine) { e.calendarName = name }
}

// WithEventPrefix sets the title prefix applied to mirrored events.
func WithEventPrefix(prefix string) EngineOption {
	return func(e *Engine) { e.prefix = prefix }
}

// WithLocation sets the time zone shifts are anchored in.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) { e.loc = loc }
}

// WithBatchSize caps how many pending shifts one sync pass will push.
func WithBatchSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTracker attaches an in-memory activity tracker.
func WithTracker(t *activity.Tracker) EngineOption {
	return func(e *Engine) { e.tracker = t }
}

// WithNotifier attaches a failure notifier.
func WithNotifier(n FailureNotifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// NewEngine creates a sync engine. The snapshot cache may be nil, in which
// case shift reads have no offline fallback.
func NewEngine(db *store.DB, cal *gcal.Client, probe connectivity.Probe, snap *cache.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		db:           db,
		cal:          cal,
		probe:        probe,
		snap:         snap,
		validate:     validator.New(),
		prefix:       defaultEventPrefix,
		calendarName: defaultCalendarName,
		loc:          time.UTC,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShiftInput is the caller-facing payload for creating a shift.
type ShiftInput struct {
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Kind      store.ShiftKind `json:"kind" validate:"required,oneof=ordinary extra"`
	Location  string          `json:"location" validate:"required,max=200"`
	StartHour int             `json:"start_hour" validate:"min=0,max=23"`
	EndHour   int             `json:"end_hour" validate:"min=0,max=23"`
	Operation string          `json:"operation" validate:"max=200"`
	Notes     string          `json:"notes" validate:"max=2000"`

	Active           *bool  `json:"active"`
	InactivityReason string `json:"inactivity_reason" validate:"max=500"`
}

func (e *Engine) validateInput(in *ShiftInput) error {
	if err := e.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	// An inactive shift must say why it is inactive.
	if in.Active != nil && !*in.Active && strings.TrimSpace(in.InactivityReason) == "" {
		return fmt.Errorf("%w: inactivity reason is required when active is false", ErrValidation)
	}
	return nil
}

// validateShift runs the input rules against a fully merged record, so a
// partial update cannot smuggle in values a create would have rejected.
func (e *Engine) validateShift(s *store.Shift) error {
	in := ShiftInput{
		Date:             s.Date,
		Kind:             s.Kind,
		Location:         s.Location,
		StartHour:        s.StartHour,
		EndHour:          s.EndHour,
		Operation:        s.Operation,
		Notes:            s.Notes,
		Active:           &s.Active,
		InactivityReason: s.InactivityReason,
	}
	return e.validateInput(&in)
}

func (in *ShiftInput) toShift(userID string) *store.Shift {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return &store.Shift{
		UserID:           userID,
		Date:             in.Date,
		Kind:             in.Kind,
		Location:         in.Location,
		StartHour:        in.StartHour,
		EndHour:          in.EndHour,
		Operation:        in.Operation,
		Notes:            in.Notes,
		Active:           active,
		InactivityReason: in.InactivityReason,
	}
}

// CreateResult reports the outcome of a shift creation. Warning is non-empty
// when the record was stored locally but could not be mirrored yet.
type CreateResult struct {
	Shift   *store.Shift `json:"shift"`
	Warning string       `json:"warning,omitempty"`
}

// Create stores a new shift and then tries to mirror it onto the calendar.
// The local write always wins: a remote failure leaves the record pending
// and surfaces as a warning, never as an error.
func (e *Engine) Create(ctx context.Context, id Identity, in ShiftInput) (*CreateResult, error) {
	if err := e.validateInput(&in); err != nil {
		return nil, err
	}

	shift := in.toShift(id.UserID)
	if err := e.db.CreateShift(shift); err != nil {
		return nil, err
	}

	result := &CreateResult{Shift: shift}

	if !id.Connected() {
		result.Warning = "shift saved locally; connect your calendar account to sync it"
		return result, nil
	}
	if e.probe.Offline() {
		result.Warning = "shift saved locally; calendar sync will run once the service is reachable"
		return result, nil
	}

	calendarID, err := e.resolveCalendar(ctx, id.CalendarToken)
	if err != nil {
		log.Printf("Calendar resolution failed for user %s: %v", id.UserID, err)
		result.Warning = "shift saved locally; calendar sync failed and will be retried"
		return result, nil
	}

	eventID, _, err := e.mirrorShift(ctx, id.CalendarToken, calendarID, shift)
	if err != nil {
		log.Printf("Event mirror failed for shift %s: %v", shift.ID, err)
		result.Warning = "shift saved locally; calendar sync failed and will be retried"
		return result, nil
	}

	if err := e.db.SetShiftSyncState(shift.ID, store.SyncStatusSynced, eventID); err != nil {
		return nil, err
	}
	shift.SyncStatus = store.SyncStatusSynced
	shift.RemoteEventID = eventID

	return result, nil
}

// Update applies a partial update. When the shift is linked to a remote
// event the calendar is updated first and the local write only happens after
// the remote side succeeded, so a failure leaves both sides unchanged.
func (e *Engine) Update(ctx context.Context, id Identity, shiftID string, patch *store.ShiftPatch) (*store.Shift, error) {
	current, err := e.getOwnedShift(id, shiftID)
	if err != nil {
		return nil, err
	}

	merged := e.db.Preview(*current, patch)
	if err := e.validateShift(&merged); err != nil {
		return nil, err
	}

	link := linkOf(current)
	relink := ""

	if eventID, ok := link.EventID(); ok {
		if err := e.requireRemote(id); err != nil {
			return nil, err
		}

		event, _, _, err := e.projectShift(&merged)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}

		calendarID, err := e.resolveCalendar(ctx, id.CalendarToken)
		if err != nil {
			return nil, err
		}

		_, err = e.cal.UpdateEvent(ctx, id.CalendarToken, calendarID, eventID, event)
		if errors.Is(err, gcal.ErrNotFound) {
			// The mirror disappeared remotely. Recreate it so the link
			// stays honest instead of pointing at a dead event.
			created, insertErr := e.cal.InsertEvent(ctx, id.CalendarToken, calendarID, event)
			if insertErr != nil {
				return nil, insertErr
			}
			relink = created.ID
		} else if err != nil {
			return nil, err
		}
	}

	if _, err := e.db.UpdateShift(shiftID, patch); err != nil {
		return nil, err
	}

	if relink != "" {
		if err := e.db.SetShiftSyncState(shiftID, store.SyncStatusSynced, relink); err != nil {
			return nil, err
		}
	}

	return e.db.GetShiftByID(shiftID)
}

// Delete removes a shift. For linked shifts the remote event is deleted
// first; a vanished event counts as already deleted, any other remote
// failure aborts before the local record is touched.
func (e *Engine) Delete(ctx context.Context, id Identity, shiftID string) error {
	current, err := e.getOwnedShift(id, shiftID)
	if err != nil {
		return err
	}

	if eventID, ok := linkOf(current).EventID(); ok {
		if err := e.requireRemote(id); err != nil {
			return err
		}

		calendarID, err := e.resolveCalendar(ctx, id.CalendarToken)
		if err != nil {
			return err
		}
		if err := e.cal.DeleteEvent(ctx, id.CalendarToken, calendarID, eventID); err != nil {
			return err
		}
	}

	return e.db.DeleteShift(shiftID)
}

// DeleteAll wipes every shift owned by the user from the local store. Remote
// events are left alone so the calendar history survives a local reset.
func (e *Engine) DeleteAll(ctx context.Context, id Identity) (int64, error) {
	deleted, err := e.db.DeleteAllShifts(id.UserID)
	if err != nil {
		return 0, err
	}

	if e.snap != nil {
		if err := e.snap.Clear(ctx, id.UserID); err != nil {
			log.Printf("Snapshot clear failed for user %s: %v", id.UserID, err)
		}
	}

	return deleted, nil
}

// ShiftList is the result of a shift fetch. Stale is true when the list
// comes from the snapshot cache instead of the live store.
type ShiftList struct {
	Shifts  []*store.Shift `json:"shifts"`
	Stale   bool           `json:"stale"`
	SavedAt time.Time      `json:"saved_at,omitempty"`
}

// FetchShifts returns the user's shifts. A healthy read refreshes the
// snapshot cache; when the store is unavailable the last snapshot is served
// flagged as stale.
func (e *Engine) FetchShifts(ctx context.Context, id Identity) (*ShiftList, error) {
	shifts, err := e.db.GetShiftsByUserID(id.UserID)
	if err == nil {
		if e.snap != nil {
			if cacheErr := e.snap.Save(ctx, id.UserID, shifts); cacheErr != nil {
				log.Printf("Snapshot save failed for user %s: %v", id.UserID, cacheErr)
			}
		}
		return &ShiftList{Shifts: shifts}, nil
	}

	if e.snap != nil {
		snapshot, ok, cacheErr := e.snap.Load(ctx, id.UserID)
		if cacheErr != nil {
			log.Printf("Snapshot load failed for user %s: %v", id.UserID, cacheErr)
		}
		if ok {
			log.Printf("Serving stale snapshot for user %s: %v", id.UserID, err)
			return &ShiftList{Shifts: snapshot.Shifts, Stale: true, SavedAt: snapshot.SavedAt}, nil
		}
	}

	return nil, err
}

// SyncPending pushes unsynced shifts to the calendar, at most one batch per
// call. The dedicated calendar is resolved once per pass.
func (e *Engine) SyncPending(ctx context.Context, id Identity) (*store.SyncRun, error) {
	return e.syncPending(ctx, id, "manual")
}

func (e *Engine) syncPending(ctx context.Context, id Identity, trigger string) (*store.SyncRun, error) {
	if err := e.requireRemote(id); err != nil {
		return nil, err
	}

	shifts, err := e.db.GetShiftsByUserID(id.UserID)
	if err != nil {
		return nil, err
	}

	var pending []*store.Shift
	for _, s := range shifts {
		if !linkOf(s).IsLinked() {
			pending = append(pending, s)
		}
	}
	if len(pending) > e.batchSize {
		pending = pending[:e.batchSize]
	}

	started := time.Now()
	run := &store.SyncRun{UserID: id.UserID, Trigger: trigger}

	if e.tracker != nil {
		e.tracker.StartRun(id.UserID, trigger, len(pending))
	}

	calendarID, err := e.resolveCalendar(ctx, id.CalendarToken)
	if err != nil {
		if e.tracker != nil {
			e.tracker.FinishRun(id.UserID, false, err.Error(), nil)
		}
		return nil, err
	}

	var failures []string
	for _, shift := range pending {
		eventID, reused, err := e.mirrorShift(ctx, id.CalendarToken, calendarID, shift)
		if err != nil {
			run.Failed++
			failures = append(failures, fmt.Sprintf("shift %s: %v", shift.ID, err))
			if stateErr := e.db.SetShiftSyncState(shift.ID, store.SyncStatusError, ""); stateErr != nil {
				log.Printf("Failed to flag shift %s: %v", shift.ID, stateErr)
			}
			if errors.Is(err, gcal.ErrAuth) {
				// A dead token fails every remaining shift the same way.
				break
			}
			continue
		}

		if err := e.db.SetShiftSyncState(shift.ID, store.SyncStatusSynced, eventID); err != nil {
			run.Failed++
			failures = append(failures, fmt.Sprintf("shift %s: %v", shift.ID, err))
			continue
		}

		if reused {
			run.Linked++
		} else {
			run.Created++
		}
		if e.tracker != nil {
			e.tracker.Progress(id.UserID, run.Created, run.Linked, run.Failed)
		}
	}

	run.Duration = time.Since(started)
	run.Message = fmt.Sprintf("%d created, %d linked, %d failed", run.Created, run.Linked, run.Failed)

	if e.tracker != nil {
		e.tracker.FinishRun(id.UserID, run.Failed == 0, run.Message, failures)
	}
	if run.Failed > 0 && e.notifier != nil {
		e.notifier.SyncFailed(ctx, id.UserID, run.Message, failures)
	}
	if err := e.db.CreateSyncRun(run); err != nil {
		log.Printf("Failed to record sync run for user %s: %v", id.UserID, err)
	}

	return run, nil
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	Errors   []string       `json:"errors,omitempty"`
	SyncRun  *store.SyncRun `json:"sync_run,omitempty"`
}

// Import stores a batch of shifts, skipping rows whose (date, location,
// start, end) key already exists locally or earlier in the same batch. When
// the calendar is reachable a sync pass runs right after.
func (e *Engine) Import(ctx context.Context, id Identity, rows []ShiftInput) (*ImportResult, error) {
	existing, err := e.db.GetShiftsByUserID(id.UserID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.ImportKey()] = true
	}

	result := &ImportResult{}
	for i := range rows {
		in := rows[i]
		if err := e.validateInput(&in); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		key := store.ImportKey(in.Date, in.Location, in.StartHour, in.EndHour)
		if seen[key] {
			result.Skipped++
			continue
		}

		shift := in.toShift(id.UserID)
		if err := e.db.CreateShift(shift); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		seen[key] = true
		result.Imported++
	}

	if result.Imported > 0 && id.Connected() && !e.probe.Offline() {
		run, err := e.syncPending(ctx, id, "import")
		if err != nil {
			log.Printf("Post-import sync failed for user %s: %v", id.UserID, err)
		} else {
			result.SyncRun = run
		}
	}

	return result, nil
}

// requireRemote enforces the consistency gate for operations that must reach
// the calendar.
func (e *Engine) requireRemote(id Identity) error {
	if !id.Connected() {
		return ErrReconnectRequired
	}
	if e.probe.Offline() {
		return ErrOffline
	}
	return nil
}

func (e *Engine) getOwnedShift(id Identity, shiftID string) (*store.Shift, error) {
	shift, err := e.db.GetShiftByID(shiftID)
	if err != nil {
		return nil, err
	}
	if shift.UserID != id.UserID {
		return nil, store.ErrNotFound
	}
	return shift, nil
}

// resolveCalendar finds the dedicated calendar by exact summary match,
// creating it on first use.
func (e *Engine) resolveCalendar(ctx context.Context, token string) (string, error) {
	calendars, err := e.cal.ListCalendars(ctx, token)
	if err != nil {
		return "", err
	}
	for _, c := range calendars {
		if c.Summary == e.calendarName {
			return c.ID, nil
		}
	}

	created, err := e.cal.CreateCalendar(ctx, token, e.calendarName)
	if err != nil {
		return "", err
	}
	log.Printf("Created calendar %q (%s)", e.calendarName, created.ID)
	return created.ID, nil
}

// mirrorShift ensures a remote event exists for the shift. An existing event
// with the same title whose start lies within the tolerance is reused
// instead of inserting a duplicate. Returns the event ID and whether an
// existing event was reused.
func (e *Engine) mirrorShift(ctx context.Context, token, calendarID string, shift *store.Shift) (string, bool, error) {
	event, start, _, err := e.projectShift(shift)
	if err != nil {
		return "", false, err
	}

	existing, err := e.cal.ListEvents(ctx, token, calendarID,
		start.Add(-dedupeTolerance), start.Add(dedupeTolerance))
	if err != nil {
		return "", false, err
	}
	for i := range existing {
		if existing[i].Matches(event.Summary, start, dedupeTolerance) {
			return existing[i].ID, true, nil
		}
	}

	created, err := e.cal.InsertEvent(ctx, token, calendarID, event)
	if err != nil {
		return "", false, err
	}
	return created.ID, false, nil
}
