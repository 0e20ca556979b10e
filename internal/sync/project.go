package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/victorlcs87/gsv-sync/internal/gcal"
	"github.com/victorlcs87/gsv-sync/internal/store"
)

// combiningStrikethrough is appended after each rune to render a struck
// through title. Inactive shifts stay visible on the remote calendar instead
// of being deleted; the struck title flags them as not performed.
const combiningStrikethrough = '̶'

// ShiftWindow computes the absolute start and end instants of a shift in the
// given zone, applying the midnight wrap rule: an end hour less than or equal
// to the start hour rolls the end into the next calendar day.
func ShiftWindow(date string, startHour, endHour int, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid shift date %q: %w", date, err)
	}

	start := day.Add(time.Duration(startHour) * time.Hour)
	end := day.Add(time.Duration(endHour) * time.Hour)
	if endHour <= startHour {
		end = end.AddDate(0, 0, 1)
	}

	return start, end, nil
}

// EventTitle builds the remote event title for a shift: the application
// prefix followed by the operation name when one exists, else the location.
// Inactive shifts get the struck-through rendering.
func EventTitle(prefix string, s *store.Shift) string {
	label := s.Location
	if s.Operation != "" {
		label = s.Operation
	}
	title := prefix + " - " + label
	if !s.Active {
		title = strikeThrough(title)
	}
	return title
}

// strikeThrough renders text with a combining strikethrough mark after each
// character. Presentation-layer transform only; the domain title is never
// stored this way.
func strikeThrough(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 3)
	for _, r := range text {
		b.WriteRune(r)
		b.WriteRune(combiningStrikethrough)
	}
	return b.String()
}

// eventDescription builds the remote event description: formatted financial
// values, then the combined notes text. When the shift was not performed the
// description starts with the inactivity reason.
func eventDescription(s *store.Shift) string {
	lines := []string{
		"Gross value: " + formatBRL(s.GrossValue),
		"Net value: " + formatBRL(s.NetValue),
		"",
		store.CombineNotes(s.Operation, s.Notes),
	}
	description := strings.TrimSpace(strings.Join(lines, "\n"))

	if !s.Active && s.InactivityReason != "" {
		description = "Not performed: " + s.InactivityReason + "\n" + description
	}

	return description
}

// projectShift maps a shift record to its remote event together with the
// event window used for duplicate detection.
func (e *Engine) projectShift(s *store.Shift) (*gcal.Event, time.Time, time.Time, error) {
	start, end, err := ShiftWindow(s.Date, s.StartHour, s.EndHour, e.loc)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	event := &gcal.Event{
		Summary:     EventTitle(e.prefix, s),
		Description: eventDescription(s),
		Location:    s.Location,
		Start: gcal.EventTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: e.loc.String(),
		},
		End: gcal.EventTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: e.loc.String(),
		},
	}

	return event, start, end, nil
}

// formatBRL renders a value as Brazilian currency, e.g. "R$ 1.234,56".
func formatBRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	s := fmt.Sprintf("%.2f", v)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	out := "R$ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
