// Package ingest parses bulk shift uploads. Only CSV is supported; the
// parser is tolerant about header naming and date formats because the files
// come from hand-maintained spreadsheets.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/victorlcs87/gsv-sync/internal/store"
	"github.com/victorlcs87/gsv-sync/internal/sync"
)

var (
	// ErrNoHeader means the file is empty or its first row matched no known
	// column names.
	ErrNoHeader = errors.New("no usable header row")

	// ErrMissingColumns means a required column is absent from the header.
	ErrMissingColumns = errors.New("missing required columns")
)

// headerAliases maps accepted column spellings to canonical field names.
// Both English and Portuguese spreadsheet headers are in circulation.
var headerAliases = map[string]string{
	"date":              "date",
	"data":              "date",
	"kind":              "kind",
	"type":              "kind",
	"tipo":              "kind",
	"location":          "location",
	"local":             "location",
	"start":             "start",
	"start_hour":        "start",
	"hora inicio":       "start",
	"hora_inicio":       "start",
	"end":               "end",
	"end_hour":          "end",
	"hora fim":          "end",
	"hora_fim":          "end",
	"operation":         "operation",
	"operacao":          "operation",
	"notes":             "notes",
	"observacoes":       "notes",
	"active":            "active",
	"ativa":             "active",
	"inactivity_reason": "reason",
	"motivo":            "reason",
}

var requiredColumns = []string{"date", "location", "start", "end"}

// RowError reports a parse failure for one data row. Line is 1-based and
// counts the header.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Result holds the parsed rows and the rows that could not be parsed.
// Parsing never aborts on a bad row; callers decide what a partial file
// means.
type Result struct {
	Rows   []sync.ShiftInput
	Errors []*RowError
}

// ParseCSV reads a shift upload. The header row is matched case
// insensitively against the known aliases; unknown columns are ignored.
func ParseCSV(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if field, ok := headerAliases[key]; ok {
			columns[field] = i
		}
	}
	if len(columns) == 0 {
		return nil, ErrNoHeader
	}
	var missing []string
	for _, field := range requiredColumns {
		if _, ok := columns[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	result := &Result{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, &RowError{Line: line, Err: err})
			continue
		}
		if isBlank(record) {
			continue
		}

		row, err := parseRow(record, columns)
		if err != nil {
			result.Errors = append(result.Errors, &RowError{Line: line, Err: err})
			continue
		}
		result.Rows = append(result.Rows, *row)
	}

	return result, nil
}

func parseRow(record []string, columns map[string]int) (*sync.ShiftInput, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := parseDate(field("date"))
	if err != nil {
		return nil, err
	}

	startHour, err := parseHour("start", field("start"))
	if err != nil {
		return nil, err
	}
	endHour, err := parseHour("end", field("end"))
	if err != nil {
		return nil, err
	}

	location := field("location")
	if location == "" {
		return nil, errors.New("location is empty")
	}

	kind, err := parseKind(field("kind"), startHour, endHour)
	if err != nil {
		return nil, err
	}

	in := &sync.ShiftInput{
		Date:      date,
		Kind:      kind,
		Location:  location,
		StartHour: startHour,
		EndHour:   endHour,
		Operation: field("operation"),
		Notes:     field("notes"),
	}

	// Operation may also arrive embedded in the notes column.
	if in.Operation == "" && in.Notes != "" {
		op, rest := store.SplitOperation(in.Notes)
		if op != "" {
			in.Operation = op
			in.Notes = rest
		}
	}

	if raw := field("active"); raw != "" {
		active, err := parseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid active value %q", raw)
		}
		in.Active = &active
		if !active {
			in.InactivityReason = field("reason")
		}
	}

	return in, nil
}

// parseDate accepts ISO dates and the DD/MM/YYYY form common in the source
// spreadsheets, normalizing to "YYYY-MM-DD".
func parseDate(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("date is empty")
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", raw)
}

func parseHour(name, raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s hour is empty", name)
	}
	// Accept "19:00" as well as "19".
	raw, _, _ = strings.Cut(raw, ":")
	h, err := strconv.Atoi(raw)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid %s hour %q", name, raw)
	}
	return h, nil
}

// parseKind maps the spreadsheet kind column; a blank kind is inferred from
// the interval, treating only a full 24h span as an ordinary shift.
func parseKind(raw string, startHour, endHour int) (store.ShiftKind, error) {
	switch strings.ToLower(raw) {
	case "":
		if store.IntervalHours(startHour, endHour) == 24 {
			return store.KindOrdinary, nil
		}
		return store.KindExtra, nil
	case "ordinary", "ordinaria", "ordinária":
		return store.KindOrdinary, nil
	case "extra":
		return store.KindExtra, nil
	default:
		return "", fmt.Errorf("invalid kind %q", raw)
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "sim":
		return true, nil
	case "false", "0", "no", "nao", "não":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
