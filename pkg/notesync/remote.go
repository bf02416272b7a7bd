package notesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wurt83ow/gophnotes-client/pkg/appcontext"
	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

var (
	// ErrNetworkUnavailable means the request never got an HTTP answer.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrRetriable marks server answers worth retrying unchanged.
	ErrRetriable = errors.New("remote temporarily failed")
	// ErrRejected marks server answers that will fail again unless the payload changes.
	ErrRejected = errors.New("remote rejected request")
)

// RemoteError is a non-2xx answer from the notes API.
type RemoteError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retriable reports whether the same request may succeed later. Every
// status outside the 4xx range is retriable; 408 and 429 are rejected like
// any other client error.
func (e *RemoteError) Retriable() bool {
	return e.StatusCode < 400 || e.StatusCode >= 500
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRetriable:
		return e.Retriable()
	case ErrRejected:
		return !e.Retriable()
	}
	return false
}

// IsRetriable reports whether err should leave an operation queued for the
// next drain without marking its payload as bad.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrRetriable)
}

// Remote adapts the generated client to the note operations the sync
// engine needs.
type Remote struct {
	client ClientWithResponsesInterface
}

// NewRemote builds a Remote for the API at server.
func NewRemote(server string, opts ...ClientOption) (*Remote, error) {
	c, err := NewClientWithResponses(server, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create notes client: %w", err)
	}
	return &Remote{client: c}, nil
}

// WithAuth adds the bearer token and client id to every request. Values
// found in the request context take precedence.
func WithAuth(token, clientID string) ClientOption {
	return WithRequestEditorFn(func(ctx context.Context, req *http.Request) error {
		tok := token
		if v, ok := appcontext.GetAuthToken(ctx); ok {
			tok = v
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		id := clientID
		if v, ok := appcontext.GetClientID(ctx); ok {
			id = v
		}
		if id != "" {
			req.Header.Set("X-Client-ID", id)
		}
		return nil
	})
}

// ListNotes returns every note the server holds.
func (r *Remote) ListNotes(ctx context.Context) ([]models.Note, error) {
	rsp, err := r.client.GetNotesWithResponse(ctx)
	if err != nil {
		return nil, transportError(err)
	}
	if err := checkStatus(rsp.HTTPResponse, rsp.Body); err != nil {
		return nil, err
	}
	if rsp.JSON200 == nil {
		return nil, fmt.Errorf("GET /notes: unexpected response %q", rsp.Status())
	}

	notes := make([]models.Note, 0, len(*rsp.JSON200))
	for _, n := range *rsp.JSON200 {
		notes = append(notes, toModel(n))
	}
	return notes, nil
}

// CreateNote posts n and returns the note as stored by the server, carrying
// its permanent id.
func (r *Remote) CreateNote(ctx context.Context, n models.Note) (models.Note, error) {
	rsp, err := r.client.PostNotesWithResponse(ctx, toInput(n, false))
	if err != nil {
		return models.Note{}, transportError(err)
	}
	if err := checkStatus(rsp.HTTPResponse, rsp.Body); err != nil {
		return models.Note{}, err
	}
	if rsp.JSON201 == nil || rsp.JSON201.Id == "" {
		return models.Note{}, fmt.Errorf("POST /notes: response carries no id: %w", ErrRetriable)
	}
	return toModel(*rsp.JSON201), nil
}

// UpdateNote replaces the server copy of n. Servers that answer without a
// body get n echoed back.
func (r *Remote) UpdateNote(ctx context.Context, n models.Note) (models.Note, error) {
	rsp, err := r.client.PutNotesIdWithResponse(ctx, n.ID, toInput(n, true))
	if err != nil {
		return models.Note{}, transportError(err)
	}
	if err := checkStatus(rsp.HTTPResponse, rsp.Body); err != nil {
		return models.Note{}, err
	}
	if rsp.JSON200 == nil {
		return n, nil
	}
	return toModel(*rsp.JSON200), nil
}

// DeleteNote removes the note. A note the server no longer knows counts
// as deleted.
func (r *Remote) DeleteNote(ctx context.Context, id string) error {
	rsp, err := r.client.DeleteNotesIdWithResponse(ctx, id)
	if err != nil {
		return transportError(err)
	}
	if rsp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return checkStatus(rsp.HTTPResponse, rsp.Body)
}

// Ping reports whether the API answers at all. Any HTTP status counts.
func (r *Remote) Ping(ctx context.Context) error {
	if _, err := r.client.GetNotesWithResponse(ctx); err != nil {
		return transportError(err)
	}
	return nil
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}

func checkStatus(rsp *http.Response, body []byte) error {
	if rsp == nil {
		return ErrNetworkUnavailable
	}
	if rsp.StatusCode/100 == 2 {
		return nil
	}
	e := &RemoteError{
		StatusCode: rsp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if rsp.Request != nil {
		e.Method = rsp.Request.Method
		e.Path = rsp.Request.URL.Path
	}
	return e
}

func toInput(n models.Note, withID bool) NoteInput {
	in := NoteInput{
		Title:     n.Title,
		Content:   n.Content,
		UpdatedAt: n.UpdatedAt,
		Synced:    n.Synced,
	}
	if withID {
		id := n.ID
		in.Id = &id
	}
	return in
}

func toModel(n Note) models.Note {
	return models.Note{
		ID:        n.Id,
		Title:     n.Title,
		Content:   n.Content,
		UpdatedAt: models.Timestamp(n.UpdatedAt),
		Synced:    true,
	}
}
