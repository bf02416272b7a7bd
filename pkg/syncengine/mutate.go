package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
)

// UpdateNote applies patch to the note, stores it and schedules the remote
// update: after the quiet period when online, through the pending queue
// when offline.
func (e *Engine) UpdateNote(ctx context.Context, id string, patch models.Patch) (models.Note, error) {
	e.mu.Lock()
	id = e.state.Resolve(id)
	n, err := e.store.GetNote(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return models.Note{}, err
	}

	prev := n.UpdatedAt
	n = patch.Apply(n)
	n.UpdatedAt = models.NextUpdatedAt(prev, e.now())
	n.Synced = false

	n, err = e.writeLocked(ctx, n)
	e.mu.Unlock()
	if err != nil {
		return n, err
	}

	e.state.notify(Event{Kind: EventChanged, NoteID: n.ID})
	return n, nil
}

// CreateNote stores a new note under a temporary id, selects it and
// schedules the remote create.
func (e *Engine) CreateNote(ctx context.Context) (models.Note, error) {
	n := models.Note{
		ID:        models.NewTempID(),
		Title:     models.DefaultTitle,
		Content:   models.DefaultContent,
		UpdatedAt: models.Timestamp(e.now()),
	}

	e.mu.Lock()
	n, err := e.writeLocked(ctx, n)
	e.mu.Unlock()
	if err != nil {
		return n, err
	}

	e.state.Select(n.ID)
	e.log.Info("note created", "note_id", n.ID)
	e.state.notify(Event{Kind: EventChanged, NoteID: n.ID})
	return n, nil
}

// writeLocked stores n and routes it to the debouncer or the queue.
func (e *Engine) writeLocked(ctx context.Context, n models.Note) (models.Note, error) {
	if err := e.putNoteLocked(ctx, n); err != nil {
		return n, fmt.Errorf("failed to store note %s: %w", n.ID, err)
	}
	e.state.clearError(n.ID)

	if e.net.IsOnline() {
		e.deb.schedule(n)
		return n, nil
	}
	e.deb.cancel(n.ID)
	if err := e.enqueueLocked(ctx, n, actionFor(n)); err != nil {
		return n, err
	}
	return n, nil
}

// DeleteNote removes the note locally right away. Notes the remote never
// saw are dropped without a remote call; others are deleted remotely now
// when online, or through the queue.
func (e *Engine) DeleteNote(ctx context.Context, id string) error {
	e.mu.Lock()
	id = e.state.Resolve(id)
	e.deb.cancel(id)

	_, err := e.store.GetNote(ctx, id)
	existed := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.mu.Unlock()
		return err
	}

	ops, err := e.opsForLocked(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !existed && len(ops) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}

	if err := e.store.DeleteNote(ctx, id); err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
		e.mu.Unlock()
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	e.state.forget(id)

	deleteQueued := false
	for _, op := range ops {
		if op.Action == models.ActionDelete {
			deleteQueued = true
			continue
		}
		if err := e.store.DeleteOp(ctx, op.OpID); err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
			e.log.Warn("failed to drop superseded op", "note_id", id, "op_id", op.OpID, "error", err)
		}
	}

	if models.IsTempID(id) {
		if e.state.InFlight(id) {
			// The create is on the wire; delete the server copy when it lands.
			e.tombstones[id] = true
		}
		e.mu.Unlock()
		e.log.Info("local-only note dropped", "note_id", id)
		e.state.notify(Event{Kind: EventDeleted, NoteID: id})
		return nil
	}

	if deleteQueued || !e.net.IsOnline() {
		if !deleteQueued {
			if err := e.enqueueLocked(ctx, models.Note{ID: id}, models.ActionDelete); err != nil {
				e.mu.Unlock()
				return err
			}
		}
		e.mu.Unlock()
		e.state.notify(Event{Kind: EventDeleted, NoteID: id})
		return nil
	}

	e.state.setInFlight(id, true)
	e.mu.Unlock()
	e.state.notify(Event{Kind: EventDeleted, NoteID: id})

	e.syncMu.Lock()
	err = e.remote.DeleteNote(ctx, id)
	e.syncMu.Unlock()

	e.mu.Lock()
	e.state.setInFlight(id, false)
	if err != nil {
		e.log.Warn("remote delete failed, queued", "note_id", id, "error", err)
		e.state.setError(id, err)
		if err := e.enqueueLocked(ctx, models.Note{ID: id}, models.ActionDelete); err != nil {
			e.mu.Unlock()
			return err
		}
		e.mu.Unlock()
		e.state.notify(Event{Kind: EventChanged, NoteID: id})
		return nil
	}
	e.mu.Unlock()

	e.recordSync()
	return nil
}

// flush sends the latest state of a note once its quiet period ends.
func (e *Engine) flush(payload models.Note) {
	e.track(func(ctx context.Context) {
		if e.flushNote(ctx, payload.ID) {
			if err := e.DrainQueue(ctx); err != nil {
				e.log.Warn("drain after flush failed", "error", err)
			}
		}
	})
}

// FlushPending sends edits still inside their quiet period without waiting
// for it to end.
func (e *Engine) FlushPending(ctx context.Context) error {
	drain := false
	for _, n := range e.deb.take() {
		if e.flushNote(ctx, n.ID) {
			drain = true
		}
	}
	if drain {
		return e.DrainQueue(ctx)
	}
	return nil
}

// flushNote reports whether the note went to the queue instead of the remote
// while online, in which case the caller drains.
func (e *Engine) flushNote(ctx context.Context, id string) bool {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	e.mu.Lock()
	id = e.state.Resolve(id)
	n, err := e.store.GetNote(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return false
	}
	ops, err := e.opsForLocked(ctx, id)
	if err != nil {
		e.mu.Unlock()
		e.log.Warn("flush skipped", "note_id", id, "error", err)
		return false
	}
	online := e.net.IsOnline()
	if !online || len(ops) > 0 {
		if err := e.enqueueLocked(ctx, n, actionFor(n)); err != nil {
			e.log.Warn("failed to queue note", "note_id", id, "error", err)
		}
		e.mu.Unlock()
		e.state.notify(Event{Kind: EventChanged, NoteID: id})
		return online
	}
	e.state.setInFlight(id, true)
	e.mu.Unlock()
	e.state.notify(Event{Kind: EventChanged, NoteID: id})

	action := actionFor(n)
	res, err := e.send(ctx, action, n)
	events := e.settle(ctx, action, n, res, err)
	e.state.notify(events...)
	return false
}

// send performs one remote call. The caller holds syncMu.
func (e *Engine) send(ctx context.Context, action models.Action, n models.Note) (models.Note, error) {
	switch action {
	case models.ActionCreate:
		return e.remote.CreateNote(ctx, n)
	case models.ActionUpdate:
		return e.remote.UpdateNote(ctx, n)
	case models.ActionDelete:
		return models.Note{}, e.remote.DeleteNote(ctx, n.ID)
	}
	return models.Note{}, fmt.Errorf("invalid action %q", action)
}

// settle applies the outcome of a debounced send. On failure the latest
// local state is queued.
func (e *Engine) settle(ctx context.Context, action models.Action, sent, res models.Note, sendErr error) []Event {
	e.mu.Lock()
	e.state.setInFlight(sent.ID, false)

	if sendErr != nil {
		defer e.mu.Unlock()
		e.log.Warn("remote sync failed, queued", "note_id", sent.ID, "action", action, "error", sendErr)
		cur, err := e.store.GetNote(ctx, sent.ID)
		if err == nil {
			if err := e.enqueueLocked(ctx, cur, actionFor(cur)); err != nil {
				e.log.Warn("failed to queue note", "note_id", sent.ID, "error", err)
			}
			e.state.setError(sent.ID, sendErr)
		}
		return []Event{{Kind: EventChanged, NoteID: sent.ID}}
	}

	var events []Event
	if action == models.ActionCreate {
		var orphan string
		events, orphan = e.applyCreateLocked(ctx, sent, res)
		e.mu.Unlock()
		if orphan != "" {
			e.deleteOrphan(ctx, orphan)
		}
	} else {
		events = e.applyUpdateLocked(ctx, sent)
		e.mu.Unlock()
	}
	e.recordSync()
	return events
}

// applyCreateLocked moves the note from its temporary id to the server id:
// the store record and pending ops in one batch, then the selection, the
// debounce slot and the alias table. It returns the server id when the
// note was deleted while the create was in flight.
func (e *Engine) applyCreateLocked(ctx context.Context, sent, created models.Note) ([]Event, string) {
	tempID, newID := sent.ID, created.ID

	if e.tombstones[tempID] {
		delete(e.tombstones, tempID)
		e.state.remap(tempID, newID)
		return nil, newID
	}
	cur, err := e.store.GetNote(ctx, tempID)
	if err != nil {
		e.state.remap(tempID, newID)
		return nil, newID
	}

	if err := e.store.RemapNoteID(ctx, tempID, newID); err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
		e.log.Error("failed to remap note", "note_id", tempID, "new_id", newID, "error", err)
	}
	ops, err := e.opsForLocked(ctx, newID)
	if err != nil {
		e.log.Warn("failed to read ops after remap", "note_id", newID, "error", err)
	}
	for _, op := range ops {
		if op.Action != models.ActionCreate {
			continue
		}
		// The server already has the note; a later queued create would duplicate it.
		op.Action = models.ActionUpdate
		if _, err := e.store.PutOp(ctx, op); err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
			e.log.Warn("failed to rewrite queued create", "op_id", op.OpID, "error", err)
		}
	}

	cur.ID = newID
	if cur.UpdatedAt.Equal(sent.UpdatedAt) && len(ops) == 0 {
		cur.Synced = true
	}
	if err := e.putNoteLocked(ctx, cur); err != nil {
		e.log.Warn("failed to store remapped note", "note_id", newID, "error", err)
	}

	e.state.remap(tempID, newID)
	e.state.clearError(newID)
	e.deb.rename(tempID, newID)
	e.log.Info("note created remotely", "note_id", newID, "temp_id", tempID)

	return []Event{{Kind: EventRemapped, NoteID: newID, OldID: tempID}}, ""
}

// applyUpdateLocked marks the note synced unless it changed after sent.
func (e *Engine) applyUpdateLocked(ctx context.Context, sent models.Note) []Event {
	e.state.clearError(sent.ID)
	cur, err := e.store.GetNote(ctx, sent.ID)
	if err != nil {
		return nil
	}
	ops, err := e.opsForLocked(ctx, sent.ID)
	if err != nil || len(ops) > 0 || !cur.UpdatedAt.Equal(sent.UpdatedAt) {
		return []Event{{Kind: EventChanged, NoteID: sent.ID}}
	}
	cur.Synced = true
	if err := e.putNoteLocked(ctx, cur); err != nil {
		e.log.Warn("failed to mark note synced", "note_id", sent.ID, "error", err)
	}
	return []Event{{Kind: EventChanged, NoteID: sent.ID}}
}

// deleteOrphan removes a server note whose local copy is already gone. The
// caller holds syncMu.
func (e *Engine) deleteOrphan(ctx context.Context, id string) {
	err := e.remote.DeleteNote(ctx, id)
	if err == nil {
		e.log.Info("deleted note removed remotely", "note_id", id)
		return
	}
	e.log.Warn("remote delete failed, queued", "note_id", id, "error", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enqueueLocked(ctx, models.Note{ID: id}, models.ActionDelete); err != nil {
		e.log.Warn("failed to queue delete", "note_id", id, "error", err)
	}
}
