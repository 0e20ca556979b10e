// Package gcal is a thin client for the remote calendar REST service. Every
// operation is a single blocking round-trip with no internal retry; retry
// policy belongs to the caller.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrAuth     = errors.New("calendar authentication failed")
	ErrNotFound = errors.New("calendar resource not found")
	ErrProtocol = errors.New("calendar service error")
)

const (
	// DefaultBaseURL is the public calendar API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

	defaultTimeout = 30 * time.Second
)

// Calendar represents a remote calendar.
type Calendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
}

// EventTime is a start or end boundary of a remote event.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"` // RFC3339
	Date     string `json:"date,omitempty"`     // YYYY-MM-DD for all-day events
	TimeZone string `json:"timeZone,omitempty"` // IANA name
}

// Instant parses the boundary into an absolute instant. All-day dates are
// interpreted as midnight UTC.
func (t EventTime) Instant() (time.Time, error) {
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	if t.Date != "" {
		return time.Parse("2006-01-02", t.Date)
	}
	return time.Time{}, errors.New("event time has neither dateTime nor date")
}

// Event represents a remote calendar event.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// Matches reports whether the remote event duplicates the given projection:
// identical summary and a start instant within the tolerance. Both sides are
// compared as UTC instants.
func (e *Event) Matches(summary string, start time.Time, tolerance time.Duration) bool {
	if e.Summary != summary {
		return false
	}
	remoteStart, err := e.Start.Instant()
	if err != nil {
		return false
	}
	diff := remoteStart.UTC().Sub(start.UTC())
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}

// Client provides remote calendar operations.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new calendar client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListCalendars returns the calendars visible to the token's user.
func (c *Client) ListCalendars(ctx context.Context, token string) ([]Calendar, error) {
	var out struct {
		Items []Calendar `json:"items"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/users/me/calendarList", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return out.Items, nil
}

// CreateCalendar creates a new secondary calendar with the given name.
func (c *Client) CreateCalendar(ctx context.Context, token, name string) (*Calendar, error) {
	body := map[string]string{
		"summary":     name,
		"description": "Shift calendar managed by gsv-sync.",
	}
	cal := &Calendar{}
	if err := c.do(ctx, token, http.MethodPost, "/calendars", body, cal); err != nil {
		return nil, fmt.Errorf("failed to create calendar: %w", err)
	}
	return cal, nil
}

// ListEvents returns the events of a calendar overlapping [from, to]. A 404
// (calendar vanished) yields an empty list, not an error: an absent calendar
// is operationally the same as one with no conflicting events.
func (c *Client) ListEvents(ctx context.Context, token, calendarID string, from, to time.Time) ([]Event, error) {
	path := fmt.Sprintf("/calendars/%s/events?timeMin=%s&timeMax=%s&singleEvents=true",
		url.PathEscape(calendarID),
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)))

	var out struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, token, http.MethodGet, path, nil, &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return out.Items, nil
}

// InsertEvent creates a new event on the given calendar.
func (c *Client) InsertEvent(ctx context.Context, token, calendarID string, event *Event) (*Event, error) {
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))
	created := &Event{}
	if err := c.do(ctx, token, http.MethodPost, path, event, created); err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return created, nil
}

// UpdateEvent replaces an existing event.
func (c *Client) UpdateEvent(ctx context.Context, token, calendarID, eventID string, event *Event) (*Event, error) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	updated := &Event{}
	if err := c.do(ctx, token, http.MethodPut, path, event, updated); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return updated, nil
}

// DeleteEvent removes an event. Deleting an already-gone event (404/410) is
// treated as success; deletion is idempotent.
func (c *Client) DeleteEvent(ctx context.Context, token, calendarID, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	err := c.do(ctx, token, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// do performs one authenticated request and decodes the JSON response into
// out when it is non-nil.
func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request: %w", ErrProtocol, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrProtocol, err)
	}

	return nil
}

// classifyStatus maps HTTP status codes to the client's error taxonomy.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read a bounded amount of the body for the error message
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, string(detail))
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrProtocol, resp.StatusCode, string(detail))
	}
}
