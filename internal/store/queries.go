package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetOrCreateUser returns an existing user by email or creates a new one.
func (db *DB) GetOrCreateUser(email, name string) (*User, error) {
	user, err := db.GetUserByEmail(email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = &User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err = db.conn.Exec(query, user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns a user by their email address.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE email = ?`
	row := db.conn.QueryRow(query, email)

	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetUserByID returns a user by their ID.
func (db *DB) GetUserByID(id string) (*User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE id = ?`
	row := db.conn.QueryRow(query, id)

	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

const shiftColumns = `id, user_id, shift_date, kind, location, start_hour, end_hour,
	hours, gross_value, net_value, operation, notes, active, inactivity_reason,
	sync_status, remote_event_id, created_at, updated_at`

// CreateShift inserts a new shift record. The derived financial fields are
// computed here from the interval and kind; any values supplied by the caller
// are ignored.
func (db *DB) CreateShift(shift *Shift) error {
	if shift.ID == "" {
		shift.ID = uuid.New().String()
	}
	shift.CreatedAt = time.Now().UTC()
	shift.UpdatedAt = shift.CreatedAt
	if shift.SyncStatus == "" {
		shift.SyncStatus = SyncStatusPending
	}

	derived := db.rule.Derive(shift.DurationHours())
	shift.Hours = derived.Hours
	shift.GrossValue = derived.GrossValue
	shift.NetValue = derived.NetValue

	query := `INSERT INTO shifts (
		id, user_id, shift_date, kind, location, start_hour, end_hour,
		hours, gross_value, net_value, operation, notes, active, inactivity_reason,
		sync_status, remote_event_id, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		shift.ID, shift.UserID, shift.Date, shift.Kind, shift.Location,
		shift.StartHour, shift.EndHour,
		shift.Hours, shift.GrossValue, shift.NetValue,
		nullString(shift.Operation), nullString(shift.Notes),
		shift.Active, nullString(shift.InactivityReason),
		shift.SyncStatus, nullString(shift.RemoteEventID),
		shift.CreatedAt, shift.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}

	return nil
}

// GetShiftByID returns a shift by its ID.
func (db *DB) GetShiftByID(id string) (*Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = ?`
	return scanShift(db.conn.QueryRow(query, id))
}

// GetShiftsByUserID returns all shifts owned by a user, most recent date first.
func (db *DB) GetShiftsByUserID(userID string) ([]*Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE user_id = ? ORDER BY shift_date DESC, start_hour`

	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*Shift
	for rows.Next() {
		shift, err := scanShiftFromRows(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}

	return shifts, nil
}

// Preview applies a patch to a shift in memory and returns the merged result
// without writing anything. The derived financial fields are recomputed when
// the patch touches the interval.
func (db *DB) Preview(s Shift, patch *ShiftPatch) Shift {
	merged := patch.Apply(s)
	if patch.TouchesInterval() {
		derived := db.rule.Derive(merged.DurationHours())
		merged.Hours = derived.Hours
		merged.GrossValue = derived.GrossValue
		merged.NetValue = derived.NetValue
	}
	return merged
}

// UpdateShift applies a partial update to a shift and returns the previous
// stored version. Only non-nil patch fields are overwritten; the derived
// financial fields are recomputed whenever the patch touches the interval.
func (db *DB) UpdateShift(id string, patch *ShiftPatch) (*Shift, error) {
	previous, err := db.GetShiftByID(id)
	if err != nil {
		return nil, err
	}

	merged := db.Preview(*previous, patch)
	merged.UpdatedAt = time.Now().UTC()

	query := `UPDATE shifts SET
		shift_date = ?, kind = ?, location = ?, start_hour = ?, end_hour = ?,
		hours = ?, gross_value = ?, net_value = ?, operation = ?, notes = ?,
		active = ?, inactivity_reason = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		merged.Date, merged.Kind, merged.Location, merged.StartHour, merged.EndHour,
		merged.Hours, merged.GrossValue, merged.NetValue,
		nullString(merged.Operation), nullString(merged.Notes),
		merged.Active, nullString(merged.InactivityReason),
		merged.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update shift: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return previous, nil
}

// SetShiftSyncState updates the sync status and remote event link of a shift.
// An empty eventID clears the link.
func (db *DB) SetShiftSyncState(id string, status SyncStatus, eventID string) error {
	now := time.Now().UTC()
	query := `UPDATE shifts SET sync_status = ?, remote_event_id = ?, updated_at = ? WHERE id = ?`

	result, err := db.conn.Exec(query, status, nullString(eventID), now, id)
	if err != nil {
		return fmt.Errorf("failed to update shift sync state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteShift deletes a shift by its ID.
func (db *DB) DeleteShift(id string) error {
	result, err := db.conn.Exec(`DELETE FROM shifts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteAllShifts deletes every shift owned by a user and returns how many
// records were removed. Remote calendar events are intentionally untouched.
func (db *DB) DeleteAllShifts(userID string) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM shifts WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete shifts: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// MonthlySummaries returns per-month aggregates for a user, newest month first.
func (db *DB) MonthlySummaries(userID string) ([]*MonthlySummary, error) {
	query := `SELECT substr(shift_date, 1, 7) AS month,
		COUNT(*),
		COALESCE(SUM(hours), 0),
		COALESCE(SUM(gross_value), 0),
		COALESCE(SUM(net_value), 0),
		COALESCE(SUM(CASE WHEN kind = 'ordinary' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = 'extra' THEN 1 ELSE 0 END), 0)
		FROM shifts WHERE user_id = ?
		GROUP BY month ORDER BY month DESC`

	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*MonthlySummary
	for rows.Next() {
		s := &MonthlySummary{}
		err := rows.Scan(&s.Month, &s.TotalShifts, &s.TotalHours,
			&s.TotalGross, &s.TotalNet, &s.OrdinaryShifts, &s.ExtraShifts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly summaries: %w", err)
	}

	return summaries, nil
}

// CreateSyncRun records the outcome of a synchronization pass.
func (db *DB) CreateSyncRun(run *SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()

	query := `INSERT INTO sync_runs (id, user_id, trigger_kind, created_count, linked_count, failed_count, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query, run.ID, run.UserID, run.Trigger,
		run.Created, run.Linked, run.Failed, run.Message,
		run.Duration.Milliseconds(), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	return nil
}

// GetSyncRuns returns the most recent sync runs for a user.
func (db *DB) GetSyncRuns(userID string, limit int) ([]*SyncRun, error) {
	query := `SELECT id, user_id, trigger_kind, created_count, linked_count, failed_count, message, duration_ms, created_at
		FROM sync_runs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		run := &SyncRun{}
		var durationMs int64
		var message sql.NullString
		err := rows.Scan(&run.ID, &run.UserID, &run.Trigger,
			&run.Created, &run.Linked, &run.Failed, &message, &durationMs, &run.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.Message = message.String
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// CleanOldSyncRuns deletes sync runs older than the given time.
func (db *DB) CleanOldSyncRuns(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM sync_runs WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean old sync runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShiftRow(scanner rowScanner) (*Shift, error) {
	shift := &Shift{}
	var operation, notes, inactivityReason, remoteEventID sql.NullString

	err := scanner.Scan(
		&shift.ID, &shift.UserID, &shift.Date, &shift.Kind, &shift.Location,
		&shift.StartHour, &shift.EndHour,
		&shift.Hours, &shift.GrossValue, &shift.NetValue,
		&operation, &notes, &shift.Active, &inactivityReason,
		&shift.SyncStatus, &remoteEventID,
		&shift.CreatedAt, &shift.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	shift.Operation = operation.String
	shift.Notes = notes.String
	shift.InactivityReason = inactivityReason.String
	shift.RemoteEventID = remoteEventID.String

	return shift, nil
}

// scanShift scans a single row into a Shift struct.
func scanShift(row *sql.Row) (*Shift, error) {
	shift, err := scanShiftRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}
	return shift, nil
}

// scanShiftFromRows scans a row from sql.Rows into a Shift struct.
func scanShiftFromRows(rows *sql.Rows) (*Shift, error) {
	shift, err := scanShiftRow(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}
	return shift, nil
}
