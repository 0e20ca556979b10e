package sync

import "github.com/victorlcs87/gsv-sync/internal/store"

// RemoteLink makes the "is this record mirrored" invariant explicit inside
// the engine: a record is either unlinked or linked to exactly one remote
// event. The persisted schema keeps this as a nullable column; the union is
// derived at the domain boundary.
type RemoteLink struct {
	eventID string
}

// Unlinked is the zero link.
var Unlinked = RemoteLink{}

// Linked builds a link to the given remote event.
func Linked(eventID string) RemoteLink {
	return RemoteLink{eventID: eventID}
}

// IsLinked reports whether a remote event mirrors the record.
func (l RemoteLink) IsLinked() bool {
	return l.eventID != ""
}

// EventID returns the linked remote event id, or false when unlinked.
func (l RemoteLink) EventID() (string, bool) {
	return l.eventID, l.eventID != ""
}

// linkOf derives the link union from the stored record.
func linkOf(s *store.Shift) RemoteLink {
	return RemoteLink{eventID: s.RemoteEventID}
}
