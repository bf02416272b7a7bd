// Package syncengine keeps the local note store and the remote notes API
// converging. Every mutation is written locally first; while online it is
// sent after a short quiet period, while offline it waits in the pending
// queue until the connectivity monitor reports a reconnect.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
)

// DefaultDebounce is the quiet period before an online edit is sent.
const DefaultDebounce = 500 * time.Millisecond

// FetchFailedBanner is shown after the remote list could not be fetched.
const FetchFailedBanner = "Failed to fetch notes. Displaying offline data."

// ErrFetchFailed wraps remote listing failures. Local notes are returned
// alongside it.
var ErrFetchFailed = errors.New("failed to fetch remote notes")

// RemoteClient is the notes API as seen by the engine.
type RemoteClient interface {
	ListNotes(ctx context.Context) ([]models.Note, error)
	CreateNote(ctx context.Context, n models.Note) (models.Note, error)
	UpdateNote(ctx context.Context, n models.Note) (models.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

// Connectivity reports the network state and announces reconnects.
type Connectivity interface {
	IsOnline() bool
	OnReconnect(fn func())
}

// Recorder persists sync bookkeeping.
type Recorder interface {
	RecordSync(t time.Time) error
	RecordFetch(t time.Time) error
}

type Engine struct {
	store  storage.LocalStore
	remote RemoteClient
	net    Connectivity
	state  *SyncState
	deb    *debouncer
	info   Recorder
	log    *slog.Logger
	now    func() time.Time

	// mu guards read-modify-write sequences over the store and the
	// tombstones. It is never held across a remote call.
	mu         sync.Mutex
	tombstones map[string]bool

	// syncMu serialises remote calls so a note's operations reach the
	// remote in the order they were made.
	syncMu sync.Mutex

	drainMu   sync.Mutex
	draining  bool
	rerun     bool
	drainDone chan struct{}
	passes    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed bool
	delay  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithDebounce sets the quiet period for online edits.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder stores the time of every confirmed push and fetch.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.info = r }
}

// New wires the engine to its collaborators and registers the reconnect
// handler. Notes left unsynced without a queued operation, for example by a
// crash inside the debounce window, are queued again.
func New(ctx context.Context, store storage.LocalStore, remote RemoteClient, net Connectivity, state *SyncState, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:      store,
		remote:     remote,
		net:        net,
		state:      state,
		log:        slog.Default(),
		now:        time.Now,
		delay:      DefaultDebounce,
		tombstones: make(map[string]bool),
	}
	for _, o := range opts {
		o(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.deb = newDebouncer(e.delay, e.flush)

	if err := e.recover(ctx); err != nil {
		e.cancel()
		return nil, err
	}
	net.OnReconnect(e.onReconnect)
	return e, nil
}

// State returns the shared sync state.
func (e *Engine) State() *SyncState {
	return e.state
}

// Close stops the debouncer, moves edits still waiting for their quiet
// period into the pending queue and waits for background work.
func (e *Engine) Close() error {
	e.bgMu.Lock()
	if e.closed {
		e.bgMu.Unlock()
		return nil
	}
	e.closed = true
	e.bgMu.Unlock()

	e.cancel()
	left := e.deb.stop()
	e.bg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, n := range left {
		cur, err := e.store.GetNote(context.Background(), n.ID)
		if err != nil {
			continue
		}
		if err := e.enqueueLocked(context.Background(), cur, actionFor(cur)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// track runs fn as background work unless the engine is closed.
func (e *Engine) track(fn func(ctx context.Context)) {
	e.bgMu.Lock()
	if e.closed {
		e.bgMu.Unlock()
		return
	}
	e.bg.Add(1)
	e.bgMu.Unlock()

	defer e.bg.Done()
	fn(e.ctx)
}

func (e *Engine) onReconnect() {
	e.track(func(ctx context.Context) {
		e.log.Info("back online, syncing")
		if _, err := e.FetchAll(ctx); err != nil {
			e.log.Warn("sync after reconnect failed", "error", err)
		}
	})
}

func (e *Engine) recover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	notes, err := e.store.ListNotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}
	queued, err := e.queuedLocked(ctx)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.Synced || queued[n.ID] {
			continue
		}
		e.log.Info("requeueing unsynced note", "note_id", n.ID)
		if err := e.enqueueLocked(ctx, n, actionFor(n)); err != nil {
			return err
		}
	}
	return nil
}

func actionFor(n models.Note) models.Action {
	if models.IsTempID(n.ID) {
		return models.ActionCreate
	}
	return models.ActionUpdate
}

// queuedLocked returns the ids of notes with at least one pending op.
func (e *Engine) queuedLocked(ctx context.Context) (map[string]bool, error) {
	ops, err := e.store.ListOps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops: %w", err)
	}
	ids := make(map[string]bool, len(ops))
	for _, op := range ops {
		ids[op.NoteID] = true
	}
	return ids, nil
}

func (e *Engine) opsForLocked(ctx context.Context, id string) ([]models.PendingOp, error) {
	ops, err := e.store.ListOps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops: %w", err)
	}
	var out []models.PendingOp
	for _, op := range ops {
		if op.NoteID == id {
			out = append(out, op)
		}
	}
	return out, nil
}

// enqueueLocked queues n, coalescing with an existing create or update op
// for the same note. A create stays a create.
func (e *Engine) enqueueLocked(ctx context.Context, n models.Note, action models.Action) error {
	ops, err := e.opsForLocked(ctx, n.ID)
	if err != nil {
		return err
	}

	op := models.PendingOp{NoteID: n.ID, Action: action}
	if action != models.ActionDelete {
		for _, existing := range ops {
			if existing.Action == models.ActionCreate || existing.Action == models.ActionUpdate {
				op = existing
				break
			}
		}
	}
	op.Payload = n
	op.Timestamp = e.now()

	stored, err := e.store.PutOp(ctx, op)
	if err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
		return fmt.Errorf("failed to queue %s for note %s: %w", op.Action, n.ID, err)
	}
	if err != nil {
		e.log.Warn("pending op kept in memory only", "note_id", n.ID, "error", err)
	}
	e.log.Debug("queued", "note_id", n.ID, "op_id", stored.OpID, "action", stored.Action)
	e.queueChanged()
	return nil
}

// putNoteLocked writes n, tolerating a degraded store.
func (e *Engine) putNoteLocked(ctx context.Context, n models.Note) error {
	err := e.store.PutNote(ctx, n)
	if errors.Is(err, storage.ErrStoreUnavailable) {
		e.log.Warn("note kept in memory only", "note_id", n.ID, "error", err)
		return nil
	}
	return err
}

func (e *Engine) recordSync() {
	if e.info == nil {
		return
	}
	if err := e.info.RecordSync(e.now()); err != nil {
		e.log.Warn("failed to record sync time", "error", err)
	}
}

func (e *Engine) recordFetch() {
	if e.info == nil {
		return
	}
	if err := e.info.RecordFetch(e.now()); err != nil {
		e.log.Warn("failed to record fetch time", "error", err)
	}
}
