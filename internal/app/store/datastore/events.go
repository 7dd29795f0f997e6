package datastore

import (
	json "github.com/goccy/go-json"

	"github.com/plenumhq/plenum/internal/domain"
)

// Position is the monotonically increasing counter the datastore bumps on
// every successful write. Locked reads record the position they saw.
type Position int

// EventType enumerates the four kinds of entries in the datastore log.
type EventType string

const (
	EventCreate  EventType = "create"
	EventUpdate  EventType = "update"
	EventDelete  EventType = "delete"
	EventRestore EventType = "restore"
)

// Event is one entry of a WriteRequest. Fields is nil for delete/restore.
type Event struct {
	Type   EventType
	FQID   domain.FQID
	Fields map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type": string(e.Type),
		"fqid": e.FQID.String(),
	}
	if e.Type == EventCreate || e.Type == EventUpdate {
		out["fields"] = e.Fields
	}
	return json.Marshal(out)
}

// CreateEvent builds a create event.
func CreateEvent(fqid domain.FQID, fields map[string]any) Event {
	return Event{Type: EventCreate, FQID: fqid, Fields: fields}
}

// UpdateEvent builds an update event.
func UpdateEvent(fqid domain.FQID, fields map[string]any) Event {
	return Event{Type: EventUpdate, FQID: fqid, Fields: fields}
}

// DeleteEvent builds a delete event.
func DeleteEvent(fqid domain.FQID) Event {
	return Event{Type: EventDelete, FQID: fqid}
}

// WriteRequest is the atomic unit submitted to the datastore writer: an
// ordered list of events plus the optimistic-lock fingerprints of every
// read the events were based on.
type WriteRequest struct {
	UserID       int                 `json:"user_id"`
	Information  map[string][]string `json:"information,omitempty"`
	LockedFields map[string]Position `json:"locked_fields"`
	Events       []Event             `json:"events"`
}
