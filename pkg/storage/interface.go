// Package storage defines the local note store used by the sync engine and
// the write-through wrapper that keeps the client usable when the durable
// backend fails.
package storage

import (
	"context"
	"errors"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

var (
	// ErrNotFound is returned when a note or pending operation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps durable I/O failures. The caller may keep
	// working from memory; persistence is not guaranteed until it recovers.
	ErrStoreUnavailable = errors.New("local store unavailable")
)

// LocalStore holds the notes and pending_ops collections.
//
// Single-record calls are atomic and durable before returning. Batch calls
// (ReplaceNotes, RemapNoteID, ClearAll) apply as one transaction.
type LocalStore interface {
	GetNote(ctx context.Context, id string) (models.Note, error)
	// ListNotes returns every note in no particular order.
	ListNotes(ctx context.Context) ([]models.Note, error)
	PutNote(ctx context.Context, n models.Note) error
	DeleteNote(ctx context.Context, id string) error

	GetOp(ctx context.Context, opID int64) (models.PendingOp, error)
	// ListOps returns pending operations ordered by Timestamp, then OpID.
	ListOps(ctx context.Context) ([]models.PendingOp, error)
	// PutOp upserts op. A zero OpID allocates the next id; the stored op is returned.
	PutOp(ctx context.Context, op models.PendingOp) (models.PendingOp, error)
	DeleteOp(ctx context.Context, opID int64) error

	// ReplaceNotes clears the notes collection and stores notes in its place.
	ReplaceNotes(ctx context.Context, notes []models.Note) error
	// RemapNoteID renames a note and rewrites every pending operation that
	// refers to the old id.
	RemapNoteID(ctx context.Context, oldID, newID string) error
	ClearAll(ctx context.Context) error

	Close() error
}
