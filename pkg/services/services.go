// Package services is the note repository the CLI and the shell talk to.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/syncengine"
)

// Connectivity tells the repository whether the remote is reachable.
type Connectivity interface {
	IsOnline() bool
	OnChange(fn func(online bool))
}

type Service struct {
	engine *syncengine.Engine
	net    Connectivity
	log    *slog.Logger
}

func NewServices(engine *syncengine.Engine, net Connectivity, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		engine: engine,
		net:    net,
		log:    log,
	}
}

// ListNotes returns every note, newest first. When the remote list cannot be
// fetched the local notes are returned together with the error.
func (s *Service) ListNotes(ctx context.Context) ([]models.Note, error) {
	return s.engine.FetchAll(ctx)
}

func (s *Service) GetNote(ctx context.Context, id string) (models.Note, error) {
	return s.engine.GetNote(ctx, id)
}

// CreateNote adds a note with the default title and content, then applies
// patch to it when it sets any field.
func (s *Service) CreateNote(ctx context.Context, patch models.Patch) (models.Note, error) {
	n, err := s.engine.CreateNote(ctx)
	if err != nil {
		return models.Note{}, err
	}
	if patch.Empty() {
		return n, nil
	}
	return s.engine.UpdateNote(ctx, n.ID, patch)
}

func (s *Service) UpdateNote(ctx context.Context, id string, patch models.Patch) (models.Note, error) {
	return s.engine.UpdateNote(ctx, id, patch)
}

func (s *Service) DeleteNote(ctx context.Context, id string) error {
	return s.engine.DeleteNote(ctx, id)
}

// GetSyncStatus returns the display status of a note.
func (s *Service) GetSyncStatus(ctx context.Context, id string) (models.SyncStatus, error) {
	return s.engine.Status(ctx, id)
}

// Sync drains the pending queue and refreshes from the remote.
func (s *Service) Sync(ctx context.Context) error {
	if !s.net.IsOnline() {
		return fmt.Errorf("sync skipped: %w", ErrOffline)
	}
	if err := s.engine.FlushPending(ctx); err != nil {
		s.log.Warn("flush before sync failed", "error", err)
	}
	return s.engine.Sync(ctx)
}

// Flush pushes edits waiting for their quiet period, or queues them when
// offline.
func (s *Service) Flush(ctx context.Context) error {
	return s.engine.FlushPending(ctx)
}

func (s *Service) IsOnline() bool {
	return s.net.IsOnline()
}

// OnConnectivityChange registers fn for every online/offline transition.
func (s *Service) OnConnectivityChange(fn func(online bool)) {
	s.net.OnChange(fn)
}

func (s *Service) Select(id string) {
	s.engine.State().Select(id)
}

func (s *Service) Selected() string {
	return s.engine.State().Selected()
}

// Subscribe registers fn for note events; call the returned func to stop.
func (s *Service) Subscribe(fn func(syncengine.Event)) func() {
	return s.engine.State().Subscribe(fn)
}

// Banner is the message left by the last failed fetch, or "".
func (s *Service) Banner() string {
	return s.engine.State().Banner()
}

// Failed lists notes whose last sync attempt failed, with the reason.
func (s *Service) Failed() map[string]string {
	state := s.engine.State()
	out := make(map[string]string)
	for _, id := range state.Failed() {
		if msg, ok := state.Err(id); ok {
			out[id] = msg
		}
	}
	return out
}

// SyncError returns the reason the last sync attempt for id failed.
func (s *Service) SyncError(id string) (string, bool) {
	return s.engine.State().Err(id)
}

type exportDoc struct {
	Notes []models.Note `yaml:"notes"`
}

// Export writes the local notes as YAML.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	notes, err := s.engine.ListNotes(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(exportDoc{Notes: notes}); err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}
	return enc.Close()
}
