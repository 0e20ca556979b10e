package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SyncStatus represents the calendar sync state of a shift record.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// ShiftKind classifies a shift.
type ShiftKind string

const (
	KindOrdinary ShiftKind = "ordinary"
	KindExtra    ShiftKind = "extra"
)

// ValidShiftKinds contains all valid shift kind values.
var ValidShiftKinds = map[ShiftKind]bool{
	KindOrdinary: true,
	KindExtra:    true,
}

// IsValid returns true if the shift kind is a known valid value.
func (k ShiftKind) IsValid() bool {
	return ValidShiftKinds[k]
}

// Shift represents a work shift record. Dates are stored as "YYYY-MM-DD";
// StartHour and EndHour are wall-clock hours in [0,23]. An end hour less than
// or equal to the start hour means the shift wraps past midnight into the
// next day (equal hours span a full 24 hours).
type Shift struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Date     string    `json:"date"`
	Kind     ShiftKind `json:"kind"`
	Location string    `json:"location"`

	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`

	// Derived by the pricing rule at insert/update time; never set by callers.
	Hours      int     `json:"hours"`
	GrossValue float64 `json:"gross_value"`
	NetValue   float64 `json:"net_value"`

	// Operation is kept as its own attribute internally and only merged into
	// the combined notes text at the ingest/display boundary.
	Operation string `json:"operation,omitempty"`
	Notes     string `json:"notes,omitempty"`

	Active           bool   `json:"active"`
	InactivityReason string `json:"inactivity_reason,omitempty"`

	SyncStatus    SyncStatus `json:"sync_status"`
	RemoteEventID string     `json:"remote_event_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationHours returns the worked interval length, applying the midnight
// wrap rule: end <= start wraps into the next day, equal hours mean 24h.
func (s *Shift) DurationHours() int {
	return IntervalHours(s.StartHour, s.EndHour)
}

// IntervalHours computes the length in hours of a wall-clock hour interval
// with midnight wrapping.
func IntervalHours(startHour, endHour int) int {
	if endHour <= startHour {
		return 24 - startHour + endHour
	}
	return endHour - startHour
}

// ImportKey returns the exact-match key used for bulk import deduplication.
func (s *Shift) ImportKey() string {
	return ImportKey(s.Date, s.Location, s.StartHour, s.EndHour)
}

// ImportKey builds the (date, location, startHour, endHour) dedup key.
func ImportKey(date, location string, startHour, endHour int) string {
	return fmt.Sprintf("%s|%s|%d|%d", date, location, startHour, endHour)
}

// ShiftPatch describes a partial update. Nil fields are left untouched.
type ShiftPatch struct {
	Date             *string    `json:"date,omitempty"`
	Kind             *ShiftKind `json:"kind,omitempty"`
	Location         *string    `json:"location,omitempty"`
	StartHour        *int       `json:"start_hour,omitempty"`
	EndHour          *int       `json:"end_hour,omitempty"`
	Operation        *string    `json:"operation,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Active           *bool      `json:"active,omitempty"`
	InactivityReason *string    `json:"inactivity_reason,omitempty"`
}

// Apply merges the patch into a copy of the given shift and returns it.
func (p *ShiftPatch) Apply(s Shift) Shift {
	if p.Date != nil {
		s.Date = *p.Date
	}
	if p.Kind != nil {
		s.Kind = *p.Kind
	}
	if p.Location != nil {
		s.Location = *p.Location
	}
	if p.StartHour != nil {
		s.StartHour = *p.StartHour
	}
	if p.EndHour != nil {
		s.EndHour = *p.EndHour
	}
	if p.Operation != nil {
		s.Operation = *p.Operation
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.InactivityReason != nil {
		s.InactivityReason = *p.InactivityReason
	}
	return s
}

// TouchesInterval reports whether the patch changes any field the pricing
// rule derives from.
func (p *ShiftPatch) TouchesInterval() bool {
	return p.StartHour != nil || p.EndHour != nil
}

// operationRe matches the structured "Operation: <name>" line that may be
// embedded in free-text notes. Only the first match is meaningful.
var operationRe = regexp.MustCompile(`Operation: (.*?)(?:\n|$)`)

// SplitOperation extracts the operation name from a combined notes text and
// returns it together with the remaining notes.
func SplitOperation(notes string) (operation, rest string) {
	m := operationRe.FindStringSubmatchIndex(notes)
	if m == nil {
		return "", notes
	}
	operation = strings.TrimSpace(notes[m[2]:m[3]])
	rest = strings.TrimSpace(notes[:m[0]] + notes[m[1]:])
	return operation, rest
}

// CombineNotes serializes the operation back into the combined notes form
// used for display and export.
func CombineNotes(operation, notes string) string {
	op := strings.TrimSpace(operation)
	if op == "" {
		return strings.TrimSpace(notes)
	}
	return strings.TrimSpace("Operation: " + op + "\n" + strings.TrimSpace(notes))
}

// MonthlySummary aggregates a user's shifts for one calendar month.
type MonthlySummary struct {
	Month          string  `json:"month"` // YYYY-MM
	TotalShifts    int     `json:"total_shifts"`
	TotalHours     int     `json:"total_hours"`
	TotalGross     float64 `json:"total_gross"`
	TotalNet       float64 `json:"total_net"`
	OrdinaryShifts int     `json:"ordinary_shifts"`
	ExtraShifts    int     `json:"extra_shifts"`
}

// SyncRun records the outcome of one explicit synchronization pass.
type SyncRun struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Trigger   string        `json:"trigger"` // "manual", "import"
	Created   int           `json:"created"`
	Linked    int           `json:"linked"`
	Failed    int           `json:"failed"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}
