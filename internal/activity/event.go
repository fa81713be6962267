// Package activity defines the enriched event model that flows through the
// polling pipeline, plus the normalisation of raw Drive Activity API records
// into that model. The polling stage only fills the provider-derived fields;
// path, parent, link and folder classification are populated later by the
// enrichment stage so the queue carries the raw record untouched.
package activity

import (
	"bytes"
	"encoding/json"
	"time"
)

// Action kinds the dispatchers branch on by name.
const (
	ActionCreate  = "create"
	ActionEdit    = "edit"
	ActionMove    = "move"
	ActionRename  = "rename"
	ActionDelete  = "delete"
	ActionRestore = "restore"
)

// Actions lists every action kind the Drive Activity API reports. An empty
// `actions` filter in configuration expands to this full set.
var Actions = []string{
	ActionCreate, ActionEdit, ActionMove, ActionRename, ActionDelete,
	ActionRestore, "permissionChange", "comment", "dlpChange", "reference",
	"settingsChange", "appliedLabelChange",
}

// MIME types that classify a drive item as a folder for dispatch purposes.
const (
	MimeFolder   = "application/vnd.google-apps.folder"
	MimeShortcut = "application/vnd.google-apps.shortcut"
)

// Target identifies the item an activity acted on: its display title, its
// opaque name (usually "items/<id>"), and its MIME type.
type Target struct {
	Title    string
	Name     string
	MimeType string
}

// ID returns the bare item id, stripping the "items/" resource prefix.
func (t Target) ID() string {
	for i := 0; i < len(t.Name); i++ {
		if t.Name[i] == '/' {
			return t.Name[i+1:]
		}
	}

	return t.Name
}

// Parent is the (name, id) pair of the immediate parent directory of a
// resolved item, used for folder-link construction.
type Parent struct {
	Name string
	ID   string
}

// Event is the unit flowing through the pipeline. The polling stage
// constructs it from a raw activity record; the enrichment stage fills the
// path, parent, link, size and folder fields before fan-out.
type Event struct {
	// Raw is the provider's original activity record, kept for debugging.
	// Two events are equal iff their raw payloads are equal.
	Raw json.RawMessage

	// Timestamp is the UTC instant reported by the provider. It doubles as
	// the queue priority (earlier = dispatched first). Immutable.
	Timestamp time.Time

	Target Target
	Action string

	// Detail carries the action-specific payload for string-valued details
	// (the old title for rename, a reason code for delete, and so on).
	Detail string
	// MoveSource is the removed-parent target for move actions; nil otherwise.
	MoveSource *Target

	// Ancestor and RootLabel identify which configured target produced the
	// event.
	Ancestor  string
	RootLabel string

	// Enrichment-stage fields.
	Path          string
	RemovedPath   string
	Link          string
	IsFolder      bool
	Parent        Parent
	Size          int64
	Poller        string
	TimestampText string
}

// Equal reports whether two events carry the same raw provider payload.
// Buffers rely on this for idempotence; priority is deliberately excluded.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}

	return bytes.Equal(e.Raw, other.Raw)
}

// Clone returns a shallow copy of the event. The buffered dispatchers use it
// to split a move into its delete and create halves without mutating the
// event other dispatchers still hold.
func (e *Event) Clone() *Event {
	clone := *e

	return &clone
}

// Priority is the queue ordering key: provider timestamp in unix seconds.
func (e *Event) Priority() int64 {
	return e.Timestamp.Unix()
}
