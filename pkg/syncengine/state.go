package syncengine

import (
	"sort"
	"sync"
)

// EventKind says what happened to a note.
type EventKind int

const (
	// EventChanged covers content and status changes.
	EventChanged EventKind = iota
	// EventRemapped means a temporary id was replaced by the server id.
	EventRemapped
	// EventDeleted means the note left the local store.
	EventDeleted
	// EventRefreshed follows a fetch of the remote list.
	EventRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventRemapped:
		return "remapped"
	case EventDeleted:
		return "deleted"
	case EventRefreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Event is delivered to observers in order on the state's dispatch
// goroutine, never on a goroutine that holds engine locks or runs a drain.
// Observers may call back into the engine.
type Event struct {
	Kind   EventKind
	NoteID string
	// OldID is the temporary id for EventRemapped.
	OldID string
}

// SyncState is the shared, process-wide view of synchronisation: which note
// is selected, which notes have a remote call in flight, which failed, the
// temporary ids that were replaced, and the banner shown after a failed
// fetch. Create it with NewSyncState and release it with Close.
type SyncState struct {
	mu        sync.Mutex
	selected  string
	inFlight  map[string]int
	errs      map[string]string
	aliases   map[string]string
	banner    string
	observers map[int]func(Event)
	nextObs   int
	closed    bool

	pending []Event
	wake    chan struct{}
	done    chan struct{}
}

func NewSyncState() *SyncState {
	s := &SyncState{
		inFlight:  make(map[string]int),
		errs:      make(map[string]string),
		aliases:   make(map[string]string),
		observers: make(map[int]func(Event)),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Close drops all observers and stops delivery. Events not yet delivered
// are discarded.
func (s *SyncState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.observers = make(map[int]func(Event))
	s.pending = nil
	close(s.done)
}

// Resolve follows remaps from a temporary id to the current id.
func (s *SyncState) Resolve(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id)
}

func (s *SyncState) resolve(id string) string {
	for i := 0; i < len(s.aliases); i++ {
		next, ok := s.aliases[id]
		if !ok {
			break
		}
		id = next
	}
	return id
}

func (s *SyncState) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = s.resolve(id)
}

// Selected returns the selected note id, or "" when nothing is selected.
func (s *SyncState) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *SyncState) unselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == id {
		s.selected = ""
	}
}

func (s *SyncState) setInFlight(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.inFlight[id]++
		return
	}
	if s.inFlight[id] <= 1 {
		delete(s.inFlight, id)
		return
	}
	s.inFlight[id]--
}

// InFlight reports whether a remote call for id is running.
func (s *SyncState) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[s.resolve(id)] > 0
}

func (s *SyncState) setError(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = err.Error()
}

func (s *SyncState) clearError(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs, id)
}

// Err returns the last sync failure recorded for id.
func (s *SyncState) Err(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.errs[s.resolve(id)]
	return msg, ok
}

// Failed lists the ids currently flagged with a sync error.
func (s *SyncState) Failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.errs))
	for id := range s.errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// remap moves every per-note entry from oldID to newID in one step.
func (s *SyncState) remap(oldID, newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[oldID] = newID
	if s.selected == oldID {
		s.selected = newID
	}
	if msg, ok := s.errs[oldID]; ok {
		s.errs[newID] = msg
		delete(s.errs, oldID)
	}
	if n := s.inFlight[oldID]; n > 0 {
		s.inFlight[newID] += n
		delete(s.inFlight, oldID)
	}
}

func (s *SyncState) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs, id)
	if s.selected == id {
		s.selected = ""
	}
}

func (s *SyncState) SetBanner(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = msg
}

// Banner returns the message left by the last failed fetch, if any.
func (s *SyncState) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (s *SyncState) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// notify queues events for delivery and returns immediately.
func (s *SyncState) notify(events ...Event) {
	s.mu.Lock()
	if s.closed || len(events) == 0 {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, events...)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *SyncState) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			events := s.pending
			s.pending = nil
			s.mu.Unlock()

			for _, ev := range events {
				for _, fn := range s.snapshot() {
					fn(ev)
				}
			}
		}
	}
}

func (s *SyncState) snapshot() []func(Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}
