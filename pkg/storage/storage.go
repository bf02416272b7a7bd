package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

// Storage is the write-through store the engine talks to. Reads are served
// from an in-memory mirror; writes land in the mirror first and then in the
// durable keeper. When the keeper fails the store keeps working from memory
// (degraded) and retries the keeper with a full snapshot on the next write.
type Storage struct {
	mu       sync.Mutex
	mirror   *Memory
	keeper   LocalStore
	degraded bool
	log      *slog.Logger
}

// New loads the keeper's contents into memory. A keeper that cannot be read
// leaves the store degraded rather than failing the session.
func New(ctx context.Context, keeper LocalStore, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.Default()
	}
	s := &Storage{
		mirror: NewMemory(),
		keeper: keeper,
		log:    log,
	}
	if err := s.load(ctx); err != nil {
		s.degraded = true
		s.log.Warn("local store unavailable, continuing in memory", "error", err)
	}
	return s
}

func (s *Storage) load(ctx context.Context) error {
	notes, err := s.keeper.ListNotes(ctx)
	if err != nil {
		return err
	}
	ops, err := s.keeper.ListOps(ctx)
	if err != nil {
		return err
	}
	if err := s.mirror.ReplaceNotes(ctx, notes); err != nil {
		return err
	}
	for _, op := range ops {
		if _, err := s.mirror.PutOp(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// Degraded reports whether writes are currently memory-only.
func (s *Storage) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// persist runs fn against the keeper. The mirror must already hold the change.
func (s *Storage) persist(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		if err := s.restore(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		s.degraded = false
		s.log.Info("local store recovered")
		return nil
	}

	if err := fn(ctx); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		s.degraded = true
		s.log.Warn("local store write failed, continuing in memory", "error", err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// restore rewrites the keeper from the mirror snapshot.
func (s *Storage) restore(ctx context.Context) error {
	notes, _ := s.mirror.ListNotes(ctx)
	ops, _ := s.mirror.ListOps(ctx)
	if err := s.keeper.ClearAll(ctx); err != nil {
		return err
	}
	if err := s.keeper.ReplaceNotes(ctx, notes); err != nil {
		return err
	}
	for _, op := range ops {
		if _, err := s.keeper.PutOp(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) GetNote(ctx context.Context, id string) (models.Note, error) {
	return s.mirror.GetNote(ctx, id)
}

func (s *Storage) ListNotes(ctx context.Context) ([]models.Note, error) {
	return s.mirror.ListNotes(ctx)
}

func (s *Storage) PutNote(ctx context.Context, n models.Note) error {
	_ = s.mirror.PutNote(ctx, n)
	return s.persist(ctx, func(ctx context.Context) error {
		return s.keeper.PutNote(ctx, n)
	})
}

func (s *Storage) DeleteNote(ctx context.Context, id string) error {
	_ = s.mirror.DeleteNote(ctx, id)
	return s.persist(ctx, func(ctx context.Context) error {
		return s.keeper.DeleteNote(ctx, id)
	})
}

func (s *Storage) GetOp(ctx context.Context, opID int64) (models.PendingOp, error) {
	return s.mirror.GetOp(ctx, opID)
}

func (s *Storage) ListOps(ctx context.Context) ([]models.PendingOp, error) {
	return s.mirror.ListOps(ctx)
}

func (s *Storage) PutOp(ctx context.Context, op models.PendingOp) (models.PendingOp, error) {
	stored, _ := s.mirror.PutOp(ctx, op)
	err := s.persist(ctx, func(ctx context.Context) error {
		_, err := s.keeper.PutOp(ctx, stored)
		return err
	})
	return stored, err
}

func (s *Storage) DeleteOp(ctx context.Context, opID int64) error {
	_ = s.mirror.DeleteOp(ctx, opID)
	return s.persist(ctx, func(ctx context.Context) error {
		return s.keeper.DeleteOp(ctx, opID)
	})
}

func (s *Storage) ReplaceNotes(ctx context.Context, notes []models.Note) error {
	_ = s.mirror.ReplaceNotes(ctx, notes)
	return s.persist(ctx, func(ctx context.Context) error {
		return s.keeper.ReplaceNotes(ctx, notes)
	})
}

func (s *Storage) RemapNoteID(ctx context.Context, oldID, newID string) error {
	_ = s.mirror.RemapNoteID(ctx, oldID, newID)
	return s.persist(ctx, func(ctx context.Context) error {
		return s.keeper.RemapNoteID(ctx, oldID, newID)
	})
}

func (s *Storage) ClearAll(ctx context.Context) error {
	_ = s.mirror.ClearAll(ctx)
	return s.persist(ctx, func(ctx context.Context) error {
		return s.keeper.ClearAll(ctx)
	})
}

// Close closes the keeper.
func (s *Storage) Close() error {
	return s.keeper.Close()
}

var _ LocalStore = (*Storage)(nil)
