package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

// Memory is a LocalStore kept entirely in process memory. It backs ephemeral
// sessions and tests, and serves as the mirror inside Storage.
type Memory struct {
	mu     sync.RWMutex
	notes  map[string]models.Note
	ops    map[int64]models.PendingOp
	lastOp int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		notes: make(map[string]models.Note),
		ops:   make(map[int64]models.PendingOp),
	}
}

func (m *Memory) GetNote(_ context.Context, id string) (models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok {
		return models.Note{}, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (m *Memory) ListNotes(_ context.Context) ([]models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	notes := make([]models.Note, 0, len(m.notes))
	for _, n := range m.notes {
		notes = append(notes, n)
	}
	return notes, nil
}

func (m *Memory) PutNote(_ context.Context, n models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[n.ID] = n
	return nil
}

func (m *Memory) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notes, id)
	return nil
}

func (m *Memory) GetOp(_ context.Context, opID int64) (models.PendingOp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.ops[opID]
	if !ok {
		return models.PendingOp{}, fmt.Errorf("pending op %d: %w", opID, ErrNotFound)
	}
	return op, nil
}

func (m *Memory) ListOps(_ context.Context) ([]models.PendingOp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ops := make([]models.PendingOp, 0, len(m.ops))
	for _, op := range m.ops {
		ops = append(ops, op)
	}
	SortOps(ops)
	return ops, nil
}

func (m *Memory) PutOp(_ context.Context, op models.PendingOp) (models.PendingOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.OpID == 0 {
		m.lastOp++
		op.OpID = m.lastOp
	} else if op.OpID > m.lastOp {
		m.lastOp = op.OpID
	}
	m.ops[op.OpID] = op
	return op, nil
}

func (m *Memory) DeleteOp(_ context.Context, opID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ops, opID)
	return nil
}

func (m *Memory) ReplaceNotes(_ context.Context, notes []models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = make(map[string]models.Note, len(notes))
	for _, n := range notes {
		m.notes[n.ID] = n
	}
	return nil
}

func (m *Memory) RemapNoteID(_ context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.notes[oldID]; ok {
		delete(m.notes, oldID)
		n.ID = newID
		m.notes[newID] = n
	}
	for id, op := range m.ops {
		if op.NoteID != oldID {
			continue
		}
		op.NoteID = newID
		op.Payload.ID = newID
		m.ops[id] = op
	}
	return nil
}

func (m *Memory) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = make(map[string]models.Note)
	m.ops = make(map[int64]models.PendingOp)
	return nil
}

func (m *Memory) Close() error { return nil }

// SortOps orders pending operations for replay: by Timestamp, then OpID.
func SortOps(ops []models.PendingOp) {
	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].Timestamp.Equal(ops[j].Timestamp) {
			return ops[i].Timestamp.Before(ops[j].Timestamp)
		}
		return ops[i].OpID < ops[j].OpID
	})
}

var _ LocalStore = (*Memory)(nil)
