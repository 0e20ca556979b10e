// Package export renders a user's shifts as downloadable CSV or iCalendar
// documents. Exports are read-only views; they never touch sync state.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"

	"github.com/victorlcs87/gsv-sync/internal/store"
	syncengine "github.com/victorlcs87/gsv-sync/internal/sync"
)

const productID = "-//gsv-sync//shift export//EN"

// csvHeader is the column order of CSV exports. It round-trips through the
// ingest parser.
var csvHeader = []string{
	"date", "kind", "location", "start_hour", "end_hour",
	"hours", "gross_value", "net_value",
	"operation", "notes", "active", "inactivity_reason", "sync_status",
}

// WriteCSV writes the shifts as CSV.
func WriteCSV(w io.Writer, shifts []*store.Shift) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range shifts {
		record := []string{
			s.Date,
			string(s.Kind),
			s.Location,
			strconv.Itoa(s.StartHour),
			strconv.Itoa(s.EndHour),
			strconv.Itoa(s.Hours),
			strconv.FormatFloat(s.GrossValue, 'f', 2, 64),
			strconv.FormatFloat(s.NetValue, 'f', 2, 64),
			s.Operation,
			s.Notes,
			strconv.FormatBool(s.Active),
			s.InactivityReason,
			string(s.SyncStatus),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteICS writes the shifts as an iCalendar document. Event titles and
// windows follow the same projection the calendar mirror uses, so a local
// export looks identical to the synced calendar.
func WriteICS(w io.Writer, shifts []*store.Shift, prefix string, loc *time.Location) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	now := time.Now().UTC()
	for _, s := range shifts {
		start, end, err := syncengine.ShiftWindow(s.Date, s.StartHour, s.EndHour, loc)
		if err != nil {
			return fmt.Errorf("shift %s: %w", s.ID, err)
		}

		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, s.ID+"@gsv-sync")
		event.Props.SetText(ical.PropSummary, syncengine.EventTitle(prefix, s))
		event.Props.SetText(ical.PropLocation, s.Location)
		event.Props.SetDateTime(ical.PropDateTimeStamp, now)
		event.Props.SetDateTime(ical.PropDateTimeStart, start)
		event.Props.SetDateTime(ical.PropDateTimeEnd, end)
		if notes := store.CombineNotes(s.Operation, s.Notes); notes != "" {
			event.Props.SetText(ical.PropDescription, notes)
		}

		cal.Children = append(cal.Children, event.Component)
	}

	enc := ical.NewEncoder(w)
	if err := enc.Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}
