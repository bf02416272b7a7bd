package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers allocated on the client before the remote
// store has confirmed the note. Server ids never carry it.
const TempIDPrefix = "tmp_"

// Defaults used for freshly created notes.
const (
	DefaultTitle   = "Add Title Here"
	DefaultContent = "Add Content Here"
)

// Note is a single text note as known locally.
type Note struct {
	ID        string    `json:"id" yaml:"id" msgpack:"id"`
	Title     string    `json:"title" yaml:"title" msgpack:"title"`
	Content   string    `json:"content" yaml:"content" msgpack:"content"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt" msgpack:"updated_at"`
	Synced    bool      `json:"synced" yaml:"synced" msgpack:"synced"`
}

// Action is the kind of mutation carried by a pending operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// PendingOp is a queued mutation not yet confirmed by the remote store.
type PendingOp struct {
	OpID      int64     `json:"opId" msgpack:"op_id"`
	NoteID    string    `json:"noteId" msgpack:"note_id"`
	Action    Action    `json:"action" msgpack:"action"`
	Payload   Note      `json:"payload" msgpack:"payload"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// SyncStatus is the display-level state of a note. It is derived, never stored.
type SyncStatus string

const (
	StatusLocalOnly SyncStatus = "unsynced-local-only"
	StatusPending   SyncStatus = "pending"
	StatusSyncing   SyncStatus = "syncing"
	StatusSynced    SyncStatus = "synced"
	StatusError     SyncStatus = "error"
)

// Patch is a partial edit of a note. Nil fields are left unchanged; empty
// strings are valid values.
type Patch struct {
	Title   *string
	Content *string
}

// Apply returns n with the patch applied. It does not touch UpdatedAt or Synced.
func (p Patch) Apply(n Note) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	return n
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Content == nil
}

// NewTempID allocates a client-side identifier for a note the remote has not seen.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was allocated locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Timestamp truncates t to the precision notes are stored and exchanged with.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NextUpdatedAt returns a timestamp strictly greater than prev, based on now.
func NextUpdatedAt(prev, now time.Time) time.Time {
	next := Timestamp(now)
	if !next.After(prev) {
		next = Timestamp(prev).Add(time.Millisecond)
	}
	return next
}

// Fields returns column names and values in the order the notes table expects.
func (n *Note) Fields() ([]string, []interface{}) {
	return []string{"id", "title", "content", "updated_at", "synced"},
		[]interface{}{n.ID, n.Title, n.Content, n.UpdatedAt.Format(time.RFC3339Nano), n.Synced}
}
