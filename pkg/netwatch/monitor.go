// Package netwatch tracks whether the notes API is reachable.
//
// A Monitor combines two signals: reachability reported by a Prober (or any
// caller of Set) and an operator override raised by a SignalWatcher. The
// monitor is online only when the remote is reachable and no override is in
// place. Reconnect handlers fire once per offline to online edge.
package netwatch

import (
	"log/slog"
	"sync"
)

type Monitor struct {
	mu        sync.Mutex
	reachable bool
	forced    bool
	reconnect []func()
	change    []func(online bool)
	log       *slog.Logger
}

// NewMonitor returns a monitor whose remote is initially reachable or not.
func NewMonitor(reachable bool, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{reachable: reachable, log: log}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online()
}

func (m *Monitor) online() bool {
	return m.reachable && !m.forced
}

// OnReconnect registers fn to run on every offline to online transition.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = append(m.reconnect, fn)
}

// OnChange registers fn to run on every transition in either direction.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.change = append(m.change, fn)
}

// Set records whether the remote is reachable.
func (m *Monitor) Set(reachable bool) {
	m.update(func() { m.reachable = reachable })
}

// Force holds the monitor offline regardless of reachability until lifted.
func (m *Monitor) Force(offline bool) {
	m.update(func() { m.forced = offline })
}

func (m *Monitor) update(apply func()) {
	m.mu.Lock()
	was := m.online()
	apply()
	now := m.online()
	if was == now {
		m.mu.Unlock()
		return
	}
	var handlers []func()
	if now {
		handlers = append(handlers, m.reconnect...)
	}
	change := append([]func(bool){}, m.change...)
	m.mu.Unlock()

	m.log.Info("connectivity changed", "online", now)
	for _, fn := range change {
		go fn(now)
	}
	for _, fn := range handlers {
		go fn()
	}
}
