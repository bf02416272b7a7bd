package syncengine

import (
	"sync"
	"time"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

// debouncer holds at most one pending payload per note. Scheduling again
// replaces the payload and restarts the delay.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	slots   map[string]*slot
	fire    func(models.Note)
	wg      sync.WaitGroup
	stopped bool
}

type slot struct {
	key     string
	timer   *time.Timer
	payload models.Note
}

func newDebouncer(delay time.Duration, fire func(models.Note)) *debouncer {
	return &debouncer{
		delay: delay,
		slots: make(map[string]*slot),
		fire:  fire,
	}
}

func (d *debouncer) schedule(n models.Note) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if old, ok := d.slots[n.ID]; ok {
		old.timer.Stop()
	}
	s := &slot{key: n.ID, payload: n}
	s.timer = time.AfterFunc(d.delay, func() { d.expire(s) })
	d.slots[n.ID] = s
}

func (d *debouncer) expire(s *slot) {
	d.mu.Lock()
	if d.stopped || d.slots[s.key] != s {
		d.mu.Unlock()
		return
	}
	delete(d.slots, s.key)
	payload := s.payload
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.fire(payload)
}

func (d *debouncer) cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.slots[key]; ok {
		s.timer.Stop()
		delete(d.slots, key)
	}
}

// rename moves a pending slot to a new key without restarting its timer.
func (d *debouncer) rename(oldKey, newKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[oldKey]
	if !ok {
		return
	}
	delete(d.slots, oldKey)
	if other, ok := d.slots[newKey]; ok {
		other.timer.Stop()
	}
	s.key = newKey
	s.payload.ID = newKey
	d.slots[newKey] = s
}

func (d *debouncer) pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[key]
	return ok
}

// take removes every pending slot without firing it.
func (d *debouncer) take() []models.Note {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Note
	for key, s := range d.slots {
		s.timer.Stop()
		out = append(out, s.payload)
		delete(d.slots, key)
	}
	return out
}

// stop cancels every timer, waits for running flushes and returns the
// payloads that never fired.
func (d *debouncer) stop() []models.Note {
	d.mu.Lock()
	d.stopped = true
	var left []models.Note
	for key, s := range d.slots {
		s.timer.Stop()
		left = append(left, s.payload)
		delete(d.slots, key)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return left
}
