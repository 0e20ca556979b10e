package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/victorlcs87/gsv-sync/internal/ingest"
	"github.com/victorlcs87/gsv-sync/internal/store"
)

func sampleShifts() []*store.Shift {
	return []*store.Shift{
		{
			ID:         "shift-1",
			Date:       "2026-03-15",
			Kind:       store.KindExtra,
			Location:   "Terminal 3",
			StartHour:  19,
			EndHour:    7,
			Hours:      12,
			GrossValue: 600,
			NetValue:   435,
			Operation:  "Carnival",
			Notes:      "Night watch",
			Active:     true,
			SyncStatus: store.SyncStatusSynced,
		},
		{
			ID:               "shift-2",
			Date:             "2026-03-16",
			Kind:             store.KindOrdinary,
			Location:         "Terminal 1",
			StartHour:        8,
			EndHour:          8,
			Hours:            24,
			GrossValue:       1200,
			NetValue:         870,
			Active:           false,
			InactivityReason: "storm",
			SyncStatus:       store.SyncStatusPending,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleShifts()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}
	if records[0][0] != "date" || records[0][6] != "gross_value" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][6] != "600.00" || records[1][7] != "435.00" {
		t.Errorf("row 1 values = %v / %v", records[1][6], records[1][7])
	}
	if records[2][10] != "false" || records[2][11] != "storm" {
		t.Errorf("row 2 active/reason = %v / %v", records[2][10], records[2][11])
	}
}

func TestCSVRoundTripsThroughIngest(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleShifts()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	result, err := ingest.ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("round trip row errors: %v", result.Errors)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}

	first := result.Rows[0]
	if first.Date != "2026-03-15" || first.Kind != store.KindExtra || first.StartHour != 19 {
		t.Errorf("row 1 = %+v", first)
	}
	second := result.Rows[1]
	if second.Active == nil || *second.Active {
		t.Error("row 2 should come back inactive")
	}
	if second.InactivityReason != "storm" {
		t.Errorf("row 2 reason = %q", second.InactivityReason)
	}
}

func TestWriteICS(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteICS(&buf, sampleShifts(), "GSV", loc); err != nil {
		t.Fatalf("WriteICS() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + productID,
		"UID:shift-1@gsv-sync",
		"SUMMARY:GSV - Carnival",
		"LOCATION:Terminal 3",
		"UID:shift-2@gsv-sync",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ICS output missing %q", want)
		}
	}
	if count := strings.Count(out, "BEGIN:VEVENT"); count != 2 {
		t.Errorf("VEVENT count = %d, want 2", count)
	}
}

func TestWriteICSEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteICS(&buf, nil, "GSV", time.UTC); err != nil {
		t.Fatalf("WriteICS() error = %v", err)
	}
	if !strings.Contains(buf.String(), "BEGIN:VCALENDAR") {
		t.Error("empty export should still be a valid calendar")
	}
}
