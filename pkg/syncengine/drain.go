package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/notesync"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
)

// queueChanged asks a running drain for one more pass.
func (e *Engine) queueChanged() {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()
	if e.draining {
		e.rerun = true
	}
}

// DrainQueue replays pending operations against the remote in enqueue
// order and refreshes from the remote when at least one succeeded. A call
// made while a drain runs waits for that drain, which makes one more pass
// if the queue changed meanwhile.
func (e *Engine) DrainQueue(ctx context.Context) error {
	succeeded, err := e.drain(ctx)
	if err != nil || succeeded == 0 {
		return err
	}
	if err := e.refresh(ctx); err != nil {
		e.log.Warn("refresh after drain failed", "error", err)
	}
	return nil
}

func (e *Engine) drain(ctx context.Context) (int, error) {
	e.drainMu.Lock()
	if e.draining {
		e.rerun = true
		done := e.drainDone
		e.drainMu.Unlock()
		select {
		case <-done:
			return 0, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	e.draining = true
	e.rerun = false
	e.drainDone = make(chan struct{})
	e.drainMu.Unlock()

	total := 0
	var err error
	for {
		var n, remaining int
		n, remaining, err = e.drainPass(ctx)
		total += n

		e.drainMu.Lock()
		if err != nil || !e.rerun || remaining == 0 {
			e.draining = false
			close(e.drainDone)
			e.drainMu.Unlock()
			break
		}
		e.rerun = false
		e.drainMu.Unlock()
	}
	return total, err
}

// drainPass attempts every queued op once. It returns how many succeeded
// and how many are still queued.
func (e *Engine) drainPass(ctx context.Context) (succeeded, remaining int, err error) {
	pass := e.passes.Add(1)
	e.mu.Lock()
	ops, err := e.store.ListOps(ctx)
	e.mu.Unlock()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending ops: %w", err)
	}
	if len(ops) == 0 {
		return 0, 0, nil
	}
	e.log.Info("draining pending ops", "count", len(ops), "pass", pass)

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return succeeded, e.countOps(ctx), err
		}
		if !e.net.IsOnline() {
			e.log.Info("offline, drain stopped")
			break
		}
		if e.replay(ctx, op.OpID) {
			succeeded++
		}
	}
	return succeeded, e.countOps(ctx), nil
}

func (e *Engine) countOps(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops, _ := e.store.ListOps(ctx)
	return len(ops)
}

// replay executes the current version of one op. The op is re-read since
// it may have been coalesced, remapped or superseded since the pass began.
func (e *Engine) replay(ctx context.Context, opID int64) bool {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	e.mu.Lock()
	op, err := e.store.GetOp(ctx, opID)
	if err != nil {
		e.mu.Unlock()
		return false
	}
	e.state.setInFlight(op.NoteID, true)
	e.mu.Unlock()
	e.state.notify(Event{Kind: EventChanged, NoteID: op.NoteID})

	sent := op.Payload
	sent.ID = op.NoteID
	res, sendErr := e.send(ctx, op.Action, sent)

	e.mu.Lock()
	e.state.setInFlight(op.NoteID, false)
	if sendErr != nil {
		e.state.setError(op.NoteID, sendErr)
		kind := "rejected"
		if notesync.IsRetriable(sendErr) {
			kind = "retriable"
		}
		e.mu.Unlock()
		e.log.Warn("pending op failed", "note_id", op.NoteID, "op_id", op.OpID, "action", op.Action, "failure", kind, "error", sendErr)
		e.state.notify(Event{Kind: EventChanged, NoteID: op.NoteID})
		return false
	}

	// An op coalesced while its call was on the wire carries a newer
	// payload and stays queued.
	cur, err := e.store.GetOp(ctx, opID)
	if err == nil && cur.Payload.UpdatedAt.Equal(op.Payload.UpdatedAt) {
		if err := e.store.DeleteOp(ctx, opID); err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
			e.log.Warn("failed to remove pending op", "op_id", opID, "error", err)
		}
	}
	e.log.Info("pending op synced", "note_id", op.NoteID, "op_id", op.OpID, "action", op.Action)

	var events []Event
	var orphan string
	switch op.Action {
	case models.ActionCreate:
		events, orphan = e.applyCreateLocked(ctx, sent, res)
	case models.ActionUpdate:
		events = e.applyUpdateLocked(ctx, sent)
	case models.ActionDelete:
		e.state.forget(op.NoteID)
		e.state.clearError(op.NoteID)
	}
	e.mu.Unlock()

	if orphan != "" {
		e.deleteOrphan(ctx, orphan)
	}
	e.state.notify(events...)
	e.recordSync()
	return true
}

// GetNote reads a note from the local store. Replaced temporary ids resolve
// to the server id.
func (e *Engine) GetNote(ctx context.Context, id string) (models.Note, error) {
	return e.store.GetNote(ctx, e.state.Resolve(id))
}

// ListNotes returns the local notes, newest first.
func (e *Engine) ListNotes(ctx context.Context) ([]models.Note, error) {
	notes, err := e.store.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(notes)
	return notes, nil
}

func sortNewestFirst(notes []models.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
}

// FetchAll returns the notes to display. Offline it reads the local store.
// Online it drains the queue first and then takes the remote list as
// authoritative for every note without local work outstanding. When the
// remote cannot be listed the local notes are returned together with an
// error wrapping ErrFetchFailed.
func (e *Engine) FetchAll(ctx context.Context) ([]models.Note, error) {
	if !e.net.IsOnline() {
		return e.ListNotes(ctx)
	}

	if _, err := e.drain(ctx); err != nil {
		e.log.Warn("drain before fetch failed", "error", err)
	}

	if err := e.refresh(ctx); err != nil {
		e.state.SetBanner(FetchFailedBanner)
		e.log.Warn("fetch failed, showing local notes", "error", err)
		notes, lerr := e.ListNotes(ctx)
		if lerr != nil {
			return nil, errors.Join(err, lerr)
		}
		return notes, err
	}
	e.state.SetBanner("")
	return e.ListNotes(ctx)
}

// Sync is run on reconnect and on demand.
func (e *Engine) Sync(ctx context.Context) error {
	_, err := e.FetchAll(ctx)
	return err
}

// refresh lists the remote notes and folds them into the store. Notes with
// queued ops, a call in flight or a pending debounce keep their local
// state; so do notes the remote has never seen. Everything else follows
// the remote.
func (e *Engine) refresh(ctx context.Context) error {
	e.syncMu.Lock()
	remote, err := e.remote.ListNotes(ctx)
	e.syncMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	e.mu.Lock()
	local, err := e.store.ListNotes(ctx)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to list local notes: %w", err)
	}
	queued, err := e.queuedLocked(ctx)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	busy := func(id string) bool {
		return queued[id] || e.state.InFlight(id) || e.deb.pending(id)
	}
	byID := make(map[string]models.Note, len(local))
	for _, n := range local {
		byID[n.ID] = n
	}

	next := make([]models.Note, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		seen[r.ID] = true
		if busy(r.ID) {
			if l, ok := byID[r.ID]; ok {
				next = append(next, l)
			}
			continue
		}
		r.Synced = true
		next = append(next, r)
	}
	for _, l := range local {
		if seen[l.ID] {
			continue
		}
		if busy(l.ID) || models.IsTempID(l.ID) {
			next = append(next, l)
		}
	}

	if err := e.store.ReplaceNotes(ctx, next); err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
		e.mu.Unlock()
		return fmt.Errorf("failed to store fetched notes: %w", err)
	}
	for _, n := range next {
		if n.Synced && !busy(n.ID) {
			e.state.clearError(n.ID)
		}
	}

	if sel := e.state.Selected(); sel == "" || !containsID(next, sel) {
		sortNewestFirst(next)
		if len(next) > 0 {
			e.state.Select(next[0].ID)
		} else {
			e.state.Select("")
		}
	}
	e.mu.Unlock()

	e.log.Info("notes refreshed", "remote", len(remote), "local", len(next))
	e.recordFetch()
	e.state.notify(Event{Kind: EventRefreshed})
	return nil
}

func containsID(notes []models.Note, id string) bool {
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Status derives the display status of a note.
func (e *Engine) Status(ctx context.Context, id string) (models.SyncStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id = e.state.Resolve(id)
	if e.state.InFlight(id) {
		return models.StatusSyncing, nil
	}
	_, failed := e.state.Err(id)

	n, err := e.store.GetNote(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		ops, oerr := e.opsForLocked(ctx, id)
		if oerr != nil {
			return "", oerr
		}
		for _, op := range ops {
			if op.Action == models.ActionDelete {
				if failed {
					return models.StatusError, nil
				}
				return models.StatusPending, nil
			}
		}
		return "", err
	}
	if err != nil {
		return "", err
	}

	switch {
	case failed:
		return models.StatusError, nil
	case n.Synced:
		return models.StatusSynced, nil
	case models.IsTempID(n.ID):
		return models.StatusLocalOnly, nil
	default:
		return models.StatusPending, nil
	}
}
