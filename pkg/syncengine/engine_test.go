package syncengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/netwatch"
	"github.com/wurt83ow/gophnotes-client/pkg/notesync"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
)

const (
	testDebounce = 20 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

// fakeRemote is an in-memory notes API that records every call.
type fakeRemote struct {
	mu     sync.Mutex
	notes  map[string]models.Note
	nextID int
	calls  []string
	fail   map[string]error
	hook   func(method string, n models.Note)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		notes:  make(map[string]models.Note),
		nextID: 1,
		fail:   make(map[string]error),
	}
}

func (f *fakeRemote) enter(method string, n models.Note) error {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(method, n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+n.ID)
	return f.fail[method]
}

func (f *fakeRemote) ListNotes(context.Context) ([]models.Note, error) {
	if err := f.enter("list", models.Note{}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Note, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeRemote) CreateNote(_ context.Context, n models.Note) (models.Note, error) {
	if err := f.enter("create", n); err != nil {
		return models.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = strconv.Itoa(f.nextID)
	f.nextID++
	n.Synced = true
	f.notes[n.ID] = n
	return n, nil
}

func (f *fakeRemote) UpdateNote(_ context.Context, n models.Note) (models.Note, error) {
	if err := f.enter("update", n); err != nil {
		return models.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.notes[n.ID]; !ok {
		return models.Note{}, &notesync.RemoteError{StatusCode: http.StatusNotFound}
	}
	n.Synced = true
	f.notes[n.ID] = n
	return n, nil
}

func (f *fakeRemote) DeleteNote(_ context.Context, id string) error {
	if err := f.enter("delete", models.Note{ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, id)
	return nil
}

func (f *fakeRemote) setFail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

func (f *fakeRemote) setHook(hook func(method string, n models.Note)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakeRemote) seed(n models.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.Synced = true
	f.notes[n.ID] = n
	if id, err := strconv.Atoi(n.ID); err == nil && id >= f.nextID {
		f.nextID = id + 1
	}
}

// count returns how many calls of method were made; "" counts all but list.
func (f *fakeRemote) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		m, _, _ := strings.Cut(c, " ")
		if (method == "" && m != "list") || m == method {
			n++
		}
	}
	return n
}

func (f *fakeRemote) note(id string) (models.Note, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	return n, ok
}

func (f *fakeRemote) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixture struct {
	engine *Engine
	store  *storage.Memory
	remote *fakeRemote
	net    *netwatch.Monitor
	state  *SyncState
}

func setup(t *testing.T, online bool) (*fixture, func()) {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemory(),
		remote: newFakeRemote(),
		net:    netwatch.NewMonitor(online, nil),
		state:  NewSyncState(),
	}
	e, err := New(context.Background(), f.store, f.remote, f.net, f.state, WithDebounce(testDebounce))
	require.NoError(t, err)
	f.engine = e

	cleanup := func() {
		if err := e.Close(); err != nil {
			t.Logf("error closing engine: %v", err)
		}
		f.state.Close()
	}
	return f, cleanup
}

func (f *fixture) ops(t *testing.T) []models.PendingOp {
	t.Helper()
	ops, err := f.store.ListOps(context.Background())
	require.NoError(t, err)
	return ops
}

func (f *fixture) notes(t *testing.T) []models.Note {
	t.Helper()
	notes, err := f.store.ListNotes(context.Background())
	require.NoError(t, err)
	return notes
}

// seedSynced puts a note both on the remote and locally as synced.
func (f *fixture) seedSynced(t *testing.T, id, title string) models.Note {
	t.Helper()
	n := models.Note{ID: id, Title: title, UpdatedAt: models.Timestamp(time.Now().Add(-time.Hour)), Synced: true}
	f.remote.seed(n)
	require.NoError(t, f.store.PutNote(context.Background(), n))
	return n
}

func (f *fixture) reconnect() {
	f.net.Set(false)
	f.net.Set(true)
}

func strp(s string) *string { return &s }

func TestScenarioA_OfflineCreateSyncsOnReconnect(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	assert.True(t, models.IsTempID(n.ID))
	assert.Equal(t, models.DefaultTitle, n.Title)
	assert.Equal(t, models.DefaultContent, n.Content)

	require.Len(t, f.notes(t), 1)
	ops := f.ops(t)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionCreate, ops[0].Action)
	assert.Equal(t, n.ID, ops[0].NoteID)

	status, err := f.engine.Status(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocalOnly, status)

	f.net.Set(true)

	assert.Eventually(t, func() bool { return len(f.ops(t)) == 0 && f.remote.count("create") == 1 }, waitFor, tick)
	assert.Eventually(t, func() bool {
		notes := f.notes(t)
		return len(notes) == 1 && notes[0].ID == "1" && notes[0].Synced
	}, waitFor, tick)

	status, err = f.engine.Status(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, status)
	assert.Equal(t, 1, f.remote.count("create"))

	// The temporary id still resolves for late callers.
	status, err = f.engine.Status(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, status)
	assert.Equal(t, "1", f.state.Selected())
}

func TestScenarioB_DebouncedUpdatesSendLastValue(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "old")

	for _, title := range []string{"A", "B", "X"} {
		_, err := f.engine.UpdateNote(ctx, "1", models.Patch{Title: strp(title)})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return f.remote.count("update") == 1 }, waitFor, tick)
	time.Sleep(5 * testDebounce)
	assert.Equal(t, 1, f.remote.count("update"))
	got, ok := f.remote.note("1")
	require.True(t, ok)
	assert.Equal(t, "X", got.Title)

	assert.Eventually(t, func() bool {
		s, err := f.engine.Status(ctx, "1")
		return err == nil && s == models.StatusSynced
	}, waitFor, tick)
	assert.Empty(t, f.ops(t))
}

func TestScenarioC_OfflineCreateEditDeleteCancelsOut(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.engine.UpdateNote(ctx, n.ID, models.Patch{Content: strp(fmt.Sprintf("edit %d", i))})
		require.NoError(t, err)
	}
	require.Len(t, f.ops(t), 1)

	require.NoError(t, f.engine.DeleteNote(ctx, n.ID))
	assert.Empty(t, f.ops(t))
	assert.Empty(t, f.notes(t))

	f.net.Set(true)
	assert.Eventually(t, func() bool { return len(f.remote.callLog()) > 0 }, waitFor, tick)
	assert.Equal(t, 0, f.remote.count(""), "no create, update or delete reaches the remote")
	assert.Empty(t, f.notes(t))
}

func TestScenarioD_FailedDrainKeepsOpAndRetries(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "old")

	_, err := f.engine.UpdateNote(ctx, "1", models.Patch{Title: strp("new")})
	require.NoError(t, err)
	require.Len(t, f.ops(t), 1)

	f.remote.setFail("update", &notesync.RemoteError{StatusCode: http.StatusInternalServerError})
	f.net.Set(true)

	assert.Eventually(t, func() bool {
		s, err := f.engine.Status(ctx, "1")
		return err == nil && s == models.StatusError
	}, waitFor, tick)
	assert.Len(t, f.ops(t), 1)
	assert.Equal(t, 1, f.remote.count("update"))

	f.remote.setFail("update", nil)
	f.reconnect()

	assert.Eventually(t, func() bool { return len(f.ops(t)) == 0 }, waitFor, tick)
	assert.Equal(t, 2, f.remote.count("update"))
	assert.Eventually(t, func() bool {
		s, err := f.engine.Status(ctx, "1")
		return err == nil && s == models.StatusSynced
	}, waitFor, tick)
}

func TestOfflineEditsCoalesce(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "old")

	var last models.Note
	for i := 0; i < 5; i++ {
		var err error
		last, err = f.engine.UpdateNote(ctx, "1", models.Patch{Title: strp(fmt.Sprintf("v%d", i))})
		require.NoError(t, err)
	}

	ops := f.ops(t)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionUpdate, ops[0].Action)
	assert.Equal(t, "v4", ops[0].Payload.Title)
	assert.Equal(t, last, ops[0].Payload)

	status, err := f.engine.Status(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)
}

func TestUpdatedAtStrictlyIncreases(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return frozen }

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	prev := n.UpdatedAt
	for i := 0; i < 3; i++ {
		n, err = f.engine.UpdateNote(ctx, n.ID, models.Patch{})
		require.NoError(t, err)
		assert.True(t, n.UpdatedAt.After(prev))
		prev = n.UpdatedAt
	}
}

func TestDrainQueue_EmptyIsNoop(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, f.engine.DrainQueue(ctx))
	require.NoError(t, f.engine.DrainQueue(ctx))
	assert.Empty(t, f.remote.callLog())
	assert.Empty(t, f.ops(t))
}

func TestUpdateUpdateDelete_OnlyDeleteReachesRemote(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "old")

	_, err := f.engine.UpdateNote(ctx, "1", models.Patch{Title: strp("a")})
	require.NoError(t, err)
	_, err = f.engine.UpdateNote(ctx, "1", models.Patch{Title: strp("b")})
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteNote(ctx, "1"))

	ops := f.ops(t)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionDelete, ops[0].Action)

	status, err := f.engine.Status(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status, "deleted note with a queued delete")

	f.net.Set(true)
	assert.Eventually(t, func() bool { return len(f.ops(t)) == 0 }, waitFor, tick)

	assert.Equal(t, 0, f.remote.count("update"))
	assert.Equal(t, 1, f.remote.count("delete"))
	assert.Empty(t, f.notes(t))

	_, err = f.engine.Status(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOnlineDelete(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "a")
	f.state.Select("1")

	require.NoError(t, f.engine.DeleteNote(ctx, "1"))
	assert.Equal(t, 1, f.remote.count("delete"))
	assert.Empty(t, f.notes(t))
	assert.Empty(t, f.ops(t))
	assert.Equal(t, "", f.state.Selected())

	err := f.engine.DeleteNote(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOnlineDeleteFailureIsQueued(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "a")

	f.remote.setFail("delete", fmt.Errorf("%w: connection reset", notesync.ErrNetworkUnavailable))
	require.NoError(t, f.engine.DeleteNote(ctx, "1"))

	ops := f.ops(t)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionDelete, ops[0].Action)
	status, err := f.engine.Status(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, status)

	f.remote.setFail("delete", nil)
	require.NoError(t, f.engine.DrainQueue(ctx))
	assert.Empty(t, f.ops(t))
	assert.Zero(t, f.remote.size())
}

func TestCreateRemapRewritesQueuedEdits(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)

	// While the create is on the wire the note is edited offline.
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	f.remote.setHook(func(method string, _ models.Note) {
		if method == "create" {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	f.net.Set(true)
	<-entered
	s, err := f.engine.Status(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSyncing, s)

	f.net.Set(false)
	_, err = f.engine.UpdateNote(ctx, n.ID, models.Patch{Title: strp("edited offline")})
	require.NoError(t, err)
	close(release)

	assert.Eventually(t, func() bool {
		ops := f.ops(t)
		return len(ops) == 1 && ops[0].NoteID == "1"
	}, waitFor, tick)
	ops := f.ops(t)
	assert.Equal(t, models.ActionUpdate, ops[0].Action, "queued create becomes an update after remap")
	assert.Equal(t, "1", ops[0].Payload.ID)
	assert.Equal(t, "edited offline", ops[0].Payload.Title)

	got, err := f.store.GetNote(ctx, "1")
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, "1", f.state.Selected())

	f.remote.setHook(nil)
	f.net.Set(true)
	assert.Eventually(t, func() bool { return len(f.ops(t)) == 0 }, waitFor, tick)
	assert.Equal(t, 1, f.remote.count("create"))
	remote, ok := f.remote.note("1")
	require.True(t, ok)
	assert.Equal(t, "edited offline", remote.Title)
}

func TestDeleteDuringInFlightCreateRemovesServerCopy(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	f.remote.setHook(func(method string, _ models.Note) {
		if method == "create" {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	<-entered

	require.NoError(t, f.engine.DeleteNote(ctx, n.ID))
	close(release)

	assert.Eventually(t, func() bool { return f.remote.count("delete") == 1 }, waitFor, tick)
	assert.Equal(t, []string{"create " + n.ID, "delete 1"}, f.remote.callLog())
	assert.Empty(t, f.notes(t))
	assert.Zero(t, f.remote.size())
}

func TestOnlineCreateFailureIsQueued(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	f.remote.setFail("create", &notesync.RemoteError{StatusCode: http.StatusBadRequest})
	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(f.ops(t)) == 1 }, waitFor, tick)
	s, err := f.engine.Status(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, s)

	// An edit clears the error until the next attempt.
	f.net.Set(false)
	_, err = f.engine.UpdateNote(ctx, n.ID, models.Patch{Title: strp("fixed")})
	require.NoError(t, err)
	s, err = f.engine.Status(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocalOnly, s)
	assert.Len(t, f.ops(t), 1)
}

func TestFetchAll_ReplacesAndSelectsNewest(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, f.store.PutNote(ctx, models.Note{ID: "stale", Synced: true, UpdatedAt: now}))
	f.remote.seed(models.Note{ID: "1", Title: "older", UpdatedAt: models.Timestamp(now.Add(-2 * time.Hour))})
	f.remote.seed(models.Note{ID: "2", Title: "newer", UpdatedAt: models.Timestamp(now.Add(-time.Hour))})

	notes, err := f.engine.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "2", notes[0].ID, "newest first")
	assert.Equal(t, "1", notes[1].ID)
	assert.True(t, notes[0].Synced)
	assert.Equal(t, "2", f.state.Selected())
	assert.Empty(t, f.state.Banner())
}

func TestFetchAll_KeepsQueuedLocalWork(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "server title")

	f.net.Set(false)
	_, err := f.engine.UpdateNote(ctx, "1", models.Patch{Title: strp("local title")})
	require.NoError(t, err)

	// The queued update fails, so the local edit must survive the refresh.
	f.remote.setFail("update", &notesync.RemoteError{StatusCode: http.StatusServiceUnavailable})
	f.net.Set(true)
	notes, err := f.engine.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "local title", notes[0].Title)
	assert.False(t, notes[0].Synced)
	assert.Len(t, f.ops(t), 1)
}

func TestFetchAll_RemoteFailureFallsBackToLocal(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "cached")

	f.remote.setFail("list", errors.New("boom"))
	notes, err := f.engine.FetchAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	require.Len(t, notes, 1)
	assert.Equal(t, "cached", notes[0].Title)
	assert.Equal(t, FetchFailedBanner, f.state.Banner())

	f.remote.setFail("list", nil)
	_, err = f.engine.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.state.Banner())
}

func TestFetchAll_OfflineReadsLocal(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "1", "cached")

	notes, err := f.engine.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Empty(t, f.remote.callLog())
}

func TestClose_QueuesPendingDebounce(t *testing.T) {
	store := storage.NewMemory()
	remote := newFakeRemote()
	net := netwatch.NewMonitor(true, nil)
	state := NewSyncState()
	defer state.Close()
	ctx := context.Background()

	e, err := New(ctx, store, remote, net, state, WithDebounce(time.Hour))
	require.NoError(t, err)
	n, err := e.CreateNote(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	ops, err := store.ListOps(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, n.ID, ops[0].NoteID)
	assert.Equal(t, models.ActionCreate, ops[0].Action)
	assert.Empty(t, remote.callLog())
}

func TestNew_RequeuesUnsyncedNotes(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.PutNote(ctx, models.Note{ID: "1", Title: "edited before crash"}))
	require.NoError(t, store.PutNote(ctx, models.Note{ID: "2", Synced: true}))

	state := NewSyncState()
	defer state.Close()
	e, err := New(ctx, store, newFakeRemote(), netwatch.NewMonitor(false, nil), state)
	require.NoError(t, err)
	defer e.Close()

	ops, err := store.ListOps(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "1", ops[0].NoteID)
	assert.Equal(t, models.ActionUpdate, ops[0].Action)
}

func TestObserversSeeRemap(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	events := make(chan Event, 64)
	unsubscribe := f.state.Subscribe(func(ev Event) { events <- ev })
	defer unsubscribe()

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	f.net.Set(true)

	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventRemapped {
				assert.Equal(t, n.ID, ev.OldID)
				assert.Equal(t, "1", ev.NoteID)
				// Store, queue and selection are consistent by the time observers run.
				got, err := f.store.GetNote(ctx, "1")
				require.NoError(t, err)
				assert.Equal(t, "1", got.ID)
				assert.Equal(t, "1", f.state.Selected())
				return
			}
		case <-timeout:
			t.Fatal("no remap event")
		}
	}
}

func TestStatus_Unknown(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()

	_, err := f.engine.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFlushPending_SendsWithoutWaiting(t *testing.T) {
	store := storage.NewMemory()
	remote := newFakeRemote()
	state := NewSyncState()
	defer state.Close()
	ctx := context.Background()

	e, err := New(ctx, store, remote, netwatch.NewMonitor(true, nil), state, WithDebounce(time.Hour))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.CreateNote(ctx)
	require.NoError(t, err)
	require.NoError(t, e.FlushPending(ctx))

	assert.Equal(t, 1, remote.count("create"))
	notes, err := store.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "1", notes[0].ID)
	assert.True(t, notes[0].Synced)

	require.NoError(t, e.FlushPending(ctx))
	assert.Equal(t, 1, remote.count("create"))
}

func TestObserverMayCallEngine(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	f.seedSynced(t, "50", "doomed")

	type result struct {
		notes     []models.Note
		fetchErr  error
		deleteErr error
	}
	results := make(chan result, 1)
	unsubscribe := f.state.Subscribe(func(ev Event) {
		if ev.Kind != EventRemapped {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, waitFor)
		defer cancel()
		var r result
		r.notes, r.fetchErr = f.engine.FetchAll(cctx)
		r.deleteErr = f.engine.DeleteNote(cctx, "50")
		results <- r
	})
	defer unsubscribe()

	_, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	f.net.Set(true)

	select {
	case r := <-results:
		require.NoError(t, r.fetchErr)
		require.NoError(t, r.deleteErr)
		assert.NotEmpty(t, r.notes)
	case <-time.After(2 * waitFor):
		t.Fatal("observer blocked by the engine")
	}
	assert.Eventually(t, func() bool { return len(f.ops(t)) == 0 }, waitFor, tick)
	_, ok := f.remote.note("50")
	assert.False(t, ok)
}

// blockFirstCreate holds the first create call until release is closed.
func blockFirstCreate(f *fixture) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	f.remote.setHook(func(method string, _ models.Note) {
		if method != "create" {
			return
		}
		first := false
		once.Do(func() {
			first = true
			close(entered)
		})
		if first {
			<-release
		}
	})
	return entered, release
}

// waitForRerun blocks until a second drain request has joined the running one.
func waitForRerun(t *testing.T, e *Engine) {
	t.Helper()
	assert.Eventually(t, func() bool {
		e.drainMu.Lock()
		defer e.drainMu.Unlock()
		return e.draining && e.rerun
	}, waitFor, tick)
}

func TestReconnectDuringDrain_NoExtraPassWhenQueueEmpties(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	_, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	entered, release := blockFirstCreate(f)

	f.net.Set(true)
	<-entered
	f.reconnect()
	waitForRerun(t, f.engine)
	close(release)

	assert.Eventually(t, func() bool { return len(f.ops(t)) == 0 }, waitFor, tick)
	assert.Eventually(t, func() bool {
		f.engine.drainMu.Lock()
		defer f.engine.drainMu.Unlock()
		return !f.engine.draining
	}, waitFor, tick)
	time.Sleep(5 * testDebounce)

	assert.Equal(t, 1, f.remote.count("create"))
	assert.Equal(t, int64(1), f.engine.passes.Load())
}

func TestReconnectDuringDrain_OneMorePassWhenOpsRemain(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()

	n, err := f.engine.CreateNote(ctx)
	require.NoError(t, err)
	entered, release := blockFirstCreate(f)
	f.remote.setFail("create", &notesync.RemoteError{StatusCode: http.StatusServiceUnavailable})

	f.net.Set(true)
	<-entered
	f.reconnect()
	waitForRerun(t, f.engine)
	close(release)

	assert.Eventually(t, func() bool { return f.remote.count("create") == 2 }, waitFor, tick)
	assert.Eventually(t, func() bool {
		f.engine.drainMu.Lock()
		defer f.engine.drainMu.Unlock()
		return !f.engine.draining
	}, waitFor, tick)
	time.Sleep(5 * testDebounce)

	assert.Equal(t, 2, f.remote.count("create"))
	assert.Equal(t, int64(2), f.engine.passes.Load())
	ops := f.ops(t)
	require.Len(t, ops, 1)
	assert.Equal(t, n.ID, ops[0].NoteID)

	status, err := f.engine.Status(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, status)
}
