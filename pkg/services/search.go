package services

import (
	"context"
	"errors"
	"strings"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

// ErrOffline is returned by operations that need the remote.
var ErrOffline = errors.New("offline")

// SearchNotes returns the local notes whose title or content contains term,
// ignoring case, newest first. An empty term matches every note; whitespace
// is part of the term.
func (s *Service) SearchNotes(ctx context.Context, term string) ([]models.Note, error) {
	notes, err := s.engine.ListNotes(ctx)
	if err != nil {
		return nil, err
	}
	if term == "" {
		return notes, nil
	}
	term = strings.ToLower(term)

	var found []models.Note
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), term) || strings.Contains(strings.ToLower(n.Content), term) {
			found = append(found, n)
		}
	}
	return found, nil
}
