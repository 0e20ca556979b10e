package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/victorlcs87/gsv-sync/internal/store"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"date,kind,location,start,end,operation,notes,active,inactivity_reason",
		"2026-03-15,extra,Terminal 3,19,7,Carnival,Night watch,true,",
		"2026-03-16,ordinary,Terminal 1,8,8,,,,",
	}, "\n")

	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected row errors: %v", result.Errors)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}

	first := result.Rows[0]
	if first.Date != "2026-03-15" || first.Kind != store.KindExtra {
		t.Errorf("row 1 = %+v", first)
	}
	if first.StartHour != 19 || first.EndHour != 7 {
		t.Errorf("row 1 hours = %d-%d", first.StartHour, first.EndHour)
	}
	if first.Operation != "Carnival" || first.Notes != "Night watch" {
		t.Errorf("row 1 operation/notes = %q / %q", first.Operation, first.Notes)
	}
	if first.Active == nil || !*first.Active {
		t.Error("row 1 should be active")
	}
}

func TestParseCSVPortugueseHeaders(t *testing.T) {
	input := strings.Join([]string{
		"Data,Tipo,Local,Hora Inicio,Hora Fim,Observacoes,Ativa,Motivo",
		"15/03/2026,extra,Terminal 3,19:00,07:00,\"Operation: Carnaval\nPlantao noturno\",nao,tempestade",
	}, "\n")

	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d, want 1 (errors: %v)", len(result.Rows), result.Errors)
	}

	row := result.Rows[0]
	if row.Date != "2026-03-15" {
		t.Errorf("Date = %q, want ISO form", row.Date)
	}
	if row.StartHour != 19 || row.EndHour != 7 {
		t.Errorf("hours = %d-%d, want 19-7", row.StartHour, row.EndHour)
	}
	if row.Operation != "Carnaval" {
		t.Errorf("Operation = %q, want extracted from notes", row.Operation)
	}
	if row.Notes != "Plantao noturno" {
		t.Errorf("Notes = %q", row.Notes)
	}
	if row.Active == nil || *row.Active {
		t.Error("row should be inactive")
	}
	if row.InactivityReason != "tempestade" {
		t.Errorf("InactivityReason = %q", row.InactivityReason)
	}
}

func TestParseCSVKindInference(t *testing.T) {
	input := strings.Join([]string{
		"date,location,start,end",
		"2026-03-15,Terminal 3,8,8",
		"2026-03-16,Terminal 3,19,7",
	}, "\n")

	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if result.Rows[0].Kind != store.KindOrdinary {
		t.Errorf("24h span Kind = %q, want ordinary", result.Rows[0].Kind)
	}
	if result.Rows[1].Kind != store.KindExtra {
		t.Errorf("12h span Kind = %q, want extra", result.Rows[1].Kind)
	}
}

func TestParseCSVRowErrors(t *testing.T) {
	input := strings.Join([]string{
		"date,location,start,end",
		"not-a-date,Terminal 3,8,17",
		"2026-03-15,,8,17",
		"2026-03-16,Terminal 3,25,17",
		"2026-03-17,Terminal 3,8,17",
		"", // blank rows are skipped, not errors
	}, "\n")

	result, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Errorf("rows = %d, want the one good row", len(result.Rows))
	}
	if len(result.Errors) != 3 {
		t.Fatalf("errors = %d, want 3: %v", len(result.Errors), result.Errors)
	}
	// Line numbers are 1-based and count the header.
	wantLines := []int{2, 3, 4}
	for i, re := range result.Errors {
		if re.Line != wantLines[i] {
			t.Errorf("error %d line = %d, want %d", i, re.Line, wantLines[i])
		}
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	input := "date,location\n2026-03-15,Terminal 3\n"

	_, err := ParseCSV(strings.NewReader(input))
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("error = %v, want ErrMissingColumns", err)
	}
	if !strings.Contains(err.Error(), "start") || !strings.Contains(err.Error(), "end") {
		t.Errorf("error should name the missing columns: %v", err)
	}
}

func TestParseCSVNoHeader(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("empty file error = %v, want ErrNoHeader", err)
	}
	if _, err := ParseCSV(strings.NewReader("foo,bar\n1,2\n")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("unknown header error = %v, want ErrNoHeader", err)
	}
}
